package display

import (
	"fmt"
	"time"

	"github.com/banshee-data/handheld/internal/eventbus"
	"github.com/banshee-data/handheld/internal/monitoring"
	"github.com/banshee-data/handheld/internal/motion"
	"github.com/banshee-data/handheld/internal/timeutil"
)

var logf = monitoring.Named("display")

// Config holds the machine's timing rules.
type Config struct {
	// DizzyMinDwell is how long Dizzy must have been showing before Still or
	// Back may leave it. Measured on the monotonic clock.
	DizzyMinDwell time.Duration
	// ErrorTimeoutTicks is how many ticks Error is shown before the machine
	// returns to Welcome.
	ErrorTimeoutTicks uint32
}

func DefaultConfig() Config {
	return Config{
		DizzyMinDwell:     3 * time.Second,
		ErrorTimeoutTicks: 60,
	}
}

// Transition describes one state change.
type Transition struct {
	From  State
	To    State
	At    time.Time
	Cause string
}

// Machine is the display state machine. It is owned by the orchestrator
// goroutine and is not safe for concurrent use.
type Machine struct {
	cfg      Config
	renderer Renderer
	clock    timeutil.Clock

	state     State
	enteredAt time.Time
	ticks     uint32

	onTransition func(Transition)
	renderErrors uint64

	// lastMotion is the state carried by the most recent Motion event.
	lastMotion motion.MotionState
}

// NewMachine starts in Welcome.
func NewMachine(cfg Config, renderer Renderer, clock timeutil.Clock) *Machine {
	return &Machine{
		cfg:       cfg,
		renderer:  renderer,
		clock:     clock,
		state:     State{Kind: Welcome},
		enteredAt: clock.Now(),
	}
}

// OnTransition registers f to be called after every state change.
func (m *Machine) OnTransition(f func(Transition)) {
	m.onTransition = f
}

func (m *Machine) State() State { return m.state }

func (m *Machine) TicksSinceEntry() uint32 { return m.ticks }

func (m *Machine) EnteredAt() time.Time { return m.enteredAt }

// RenderErrors returns how many Clear or Render calls have failed.
func (m *Machine) RenderErrors() uint64 { return m.renderErrors }

// CanExitDizzy reports whether the Dizzy dwell has elapsed. It is false in
// any other state.
func (m *Machine) CanExitDizzy() bool {
	return m.state.Kind == Dizzy && m.clock.Since(m.enteredAt) >= m.cfg.DizzyMinDwell
}

// Handle applies one event and reports whether it caused a transition.
func (m *Machine) Handle(e eventbus.Event) bool {
	switch ev := e.(type) {
	case eventbus.SystemFaultEvent:
		return m.transition(State{Kind: Error, Message: ev.Reason}, "fault:"+ev.Source)
	case eventbus.MotionEvent:
		m.lastMotion = ev.State
		return m.onMotion(ev.State)
	case eventbus.UserInputEvent:
		return m.onInput(ev.Input)
	case eventbus.NetworkResultEvent:
		// status polls run in the background and do not answer a request
		if m.state.Kind == Thinking && ev.Command != eventbus.CommandGetStatus {
			return m.transition(State{Kind: Home}, "network:"+ev.Command.String())
		}
	}
	return false
}

func (m *Machine) onMotion(s motion.MotionState) bool {
	cause := "motion:" + s.String()
	switch m.state.Kind {
	case Welcome:
		// picking the device up counts as input; resting Still does not
		if s != motion.Still {
			return m.transition(State{Kind: Home}, cause)
		}
	case Home, Settings:
		switch s {
		case motion.Shaking:
			return m.transition(State{Kind: Dizzy}, cause)
		case motion.Tilting:
			return m.transition(State{Kind: Tilted}, cause)
		}
	case Tilted:
		switch s {
		case motion.Shaking:
			return m.transition(State{Kind: Dizzy}, cause)
		case motion.Still:
			return m.transition(State{Kind: Home}, cause)
		}
	case Dizzy:
		if s == motion.Still && m.CanExitDizzy() {
			return m.transition(State{Kind: Home}, cause)
		}
	}
	return false
}

func (m *Machine) onInput(in eventbus.UserInput) bool {
	cause := "input:" + in.String()
	switch m.state.Kind {
	case Welcome:
		return m.transition(State{Kind: Home}, cause)
	case Home:
		switch in {
		case eventbus.InputSettings:
			return m.transition(State{Kind: Settings}, cause)
		case eventbus.InputConfirm:
			return m.transition(State{Kind: Thinking}, cause)
		}
	case Settings:
		if in == eventbus.InputBack {
			return m.transition(State{Kind: Home}, cause)
		}
	case Thinking:
		if in == eventbus.InputBack || in == eventbus.InputCancel {
			return m.transition(State{Kind: Home}, cause)
		}
	case Tilted:
		if in == eventbus.InputBack {
			return m.transition(State{Kind: Home}, cause)
		}
	case Dizzy:
		if in == eventbus.InputBack && m.CanExitDizzy() {
			return m.transition(State{Kind: Home}, cause)
		}
	}
	return false
}

// Tick advances the tick counter, renders the current state and then applies
// the timed exits: the Error timeout, and leaving Dizzy once the dwell has
// elapsed if the device was last reported Still. The sensor reports Still
// once when shaking stops, usually before the dwell is over.
func (m *Machine) Tick() {
	if m.ticks < ^uint32(0) {
		m.ticks++
	}
	if err := m.renderer.Render(m.state, m.ticks); err != nil {
		m.renderFailed("render", err)
	}
	switch {
	case m.state.Kind == Error && m.ticks >= m.cfg.ErrorTimeoutTicks:
		m.transition(State{Kind: Welcome}, "timeout")
	case m.lastMotion == motion.Still && m.CanExitDizzy():
		m.transition(State{Kind: Home}, "motion:"+motion.Still.String())
	}
}

// transition moves to next unless it is the current state, in which case
// nothing happens: no clear, and the dwell timer and tick count are kept.
func (m *Machine) transition(next State, cause string) bool {
	if next == m.state {
		return false
	}
	prev := m.state
	m.state = next
	m.enteredAt = m.clock.Now()
	m.ticks = 0
	logf("%s -> %s (%s)", prev, next, cause)

	if m.onTransition != nil {
		m.onTransition(Transition{From: prev, To: next, At: m.enteredAt, Cause: cause})
	}
	if err := m.renderer.Clear(); err != nil {
		m.renderFailed("clear", err)
	}
	return true
}

// renderFailed surfaces a panel failure through the Error state. A failure
// while already in Error is only logged, so a dead panel cannot loop.
func (m *Machine) renderFailed(op string, err error) {
	m.renderErrors++
	if m.state.Kind == Error {
		logf("%s failed in error state: %v", op, err)
		return
	}
	m.transition(State{Kind: Error, Message: fmt.Sprintf("display %s failed: %v", op, err)}, "render")
}
