// Package orchestrator runs the UI loop: it drains the event bus into the
// display state machine and ticks the machine at a fixed rate.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/banshee-data/handheld/internal/display"
	"github.com/banshee-data/handheld/internal/eventbus"
	"github.com/banshee-data/handheld/internal/monitoring"
	"github.com/banshee-data/handheld/internal/motion"
	"github.com/banshee-data/handheld/internal/timeutil"
)

// FaultSource names the orchestrator in SystemFault events it raises itself.
const FaultSource = "orchestrator"

var logf = monitoring.Named("orchestrator")

type Config struct {
	// TickInterval is the sleep between loop iterations.
	TickInterval time.Duration
	// StatusPollTicks is how often, in ticks, the network actor is asked for
	// its status. Zero disables polling.
	StatusPollTicks uint64
}

func DefaultConfig() Config {
	return Config{
		TickInterval:    50 * time.Millisecond,
		StatusPollTicks: 100,
	}
}

// Network is the part of the network actor's handle the loop uses.
// *network.Handle satisfies it.
type Network interface {
	Scan() error
	RequestStatus() error
}

// Journal receives a copy of every dispatched event and every transition.
// Implementations must not block.
type Journal interface {
	RecordEvent(e eventbus.Event)
	RecordTransition(t display.Transition)
}

// Snapshot is the loop's externally visible state. It is published by value
// after every step.
type Snapshot struct {
	State           display.State              `json:"-"`
	Screen          string                     `json:"screen"`
	Message         string                     `json:"message,omitempty"`
	Frame           []string                   `json:"frame"`
	TicksSinceEntry uint32                     `json:"ticks_since_entry"`
	EnteredAt       time.Time                  `json:"entered_at"`
	Ticks           uint64                     `json:"ticks"`
	Events          uint64                     `json:"events"`
	Transitions     uint64                     `json:"transitions"`
	Motion          motion.MotionState         `json:"-"`
	MotionName      string                     `json:"motion"`
	Network         eventbus.NetworkStatusKind `json:"-"`
	NetworkName     string                     `json:"network"`
	NetworkDetail   string                     `json:"network_detail,omitempty"`
	Address         string                     `json:"address,omitempty"`
	Networks        []string                   `json:"networks,omitempty"`
	LastFault       string                     `json:"last_fault,omitempty"`
	BusClosed       bool                       `json:"bus_closed,omitempty"`
	UpdatedAt       time.Time                  `json:"updated_at"`
}

// Orchestrator owns the receiver and the machine. Run and Step must be
// called from one goroutine; Snapshot may be called from any.
type Orchestrator struct {
	rx      *eventbus.Receiver
	machine *display.Machine
	cfg     Config
	clock   timeutil.Clock

	network Network
	journal Journal

	ticks       uint64
	events      uint64
	transitions uint64
	motion      motion.MotionState
	netStatus   eventbus.NetworkStatusKind
	netDetail   string
	address     string
	networks    []string
	lastFault   string
	busClosed   bool

	// ask is set by the transition hook when Thinking is entered and
	// served once the triggering event has been handled.
	ask bool

	snap atomic.Pointer[Snapshot]
}

// New wires the orchestrator to rx and machine. It installs the machine's
// transition hook.
func New(rx *eventbus.Receiver, machine *display.Machine, cfg Config, clock timeutil.Clock) *Orchestrator {
	o := &Orchestrator{
		rx:        rx,
		machine:   machine,
		cfg:       cfg,
		clock:     clock,
		netStatus: eventbus.StatusDisconnected,
	}
	machine.OnTransition(o.onTransition)
	o.publish()
	return o
}

// SetNetwork attaches the network actor. Without one, entering Thinking
// raises a fault.
func (o *Orchestrator) SetNetwork(n Network) { o.network = n }

func (o *Orchestrator) SetJournal(j Journal) { o.journal = j }

// Run loops until ctx is done. Each iteration drains every pending event,
// ticks the machine once and then waits one tick interval.
func (o *Orchestrator) Run(ctx context.Context) error {
	logf("running, tick %v", o.cfg.TickInterval)
	for {
		o.Step()
		select {
		case <-ctx.Done():
			logf("stopping after %d ticks", o.ticks)
			return ctx.Err()
		case <-o.clock.After(o.cfg.TickInterval):
		}
	}
}

// Step performs one loop iteration without sleeping and returns the number
// of events dispatched.
func (o *Orchestrator) Step() int {
	n := 0
	for {
		e, err := o.rx.TryRecv()
		if err != nil {
			if errors.Is(err, eventbus.ErrClosed) && !o.busClosed {
				// the display keeps ticking so a pending Error still times out
				logf("every sender has closed")
				o.busClosed = true
			}
			break
		}
		n++
		o.dispatch(e)
	}

	o.ticks++
	o.machine.Tick()
	o.serveAsk()

	if o.cfg.StatusPollTicks > 0 && o.ticks%o.cfg.StatusPollTicks == 0 && o.network != nil {
		if err := o.network.RequestStatus(); err != nil {
			logf("status poll: %v", err)
		}
	}

	o.publish()
	return n
}

func (o *Orchestrator) dispatch(e eventbus.Event) {
	o.events++
	switch ev := e.(type) {
	case eventbus.MotionEvent:
		o.motion = ev.State
	case eventbus.NetworkStatusEvent:
		o.netStatus, o.netDetail = ev.Status, ev.Detail
	case eventbus.NetworkResultEvent:
		o.netStatus = ev.Status
		if ev.Address != "" {
			o.address = ev.Address
		}
		if ev.Command == eventbus.CommandScan && ev.OK() {
			o.networks = ev.Networks
		}
	case eventbus.SystemFaultEvent:
		o.lastFault = fmt.Sprintf("%s: %s", ev.Source, ev.Reason)
	}
	if o.journal != nil {
		o.journal.RecordEvent(e)
	}
	o.machine.Handle(e)
	o.serveAsk()
}

func (o *Orchestrator) onTransition(t display.Transition) {
	o.transitions++
	if t.To.Kind == display.Thinking {
		o.ask = true
	}
	if o.journal != nil {
		o.journal.RecordTransition(t)
	}
}

// serveAsk starts the network request behind a Thinking screen. A request
// that cannot be queued is reported as a fault so the screen does not wait
// forever.
func (o *Orchestrator) serveAsk() {
	if !o.ask {
		return
	}
	o.ask = false
	if o.machine.State().Kind != display.Thinking {
		return
	}
	err := errors.New("network unavailable")
	if o.network != nil {
		err = o.network.Scan()
	}
	if err != nil {
		logf("request failed: %v", err)
		reason := fmt.Sprintf("request failed: %v", err)
		o.lastFault = FaultSource + ": " + reason
		o.machine.Handle(eventbus.SystemFaultEvent{Source: FaultSource, Reason: reason})
	}
}

func (o *Orchestrator) publish() {
	st := o.machine.State()
	o.snap.Store(&Snapshot{
		State:           st,
		Screen:          st.Kind.String(),
		Message:         st.Message,
		Frame:           display.Frame(st, o.machine.TicksSinceEntry()),
		TicksSinceEntry: o.machine.TicksSinceEntry(),
		EnteredAt:       o.machine.EnteredAt(),
		Ticks:           o.ticks,
		Events:          o.events,
		Transitions:     o.transitions,
		Motion:          o.motion,
		MotionName:      o.motion.String(),
		Network:         o.netStatus,
		NetworkName:     o.netStatus.String(),
		NetworkDetail:   o.netDetail,
		Address:         o.address,
		Networks:        append([]string(nil), o.networks...),
		LastFault:       o.lastFault,
		BusClosed:       o.busClosed,
		UpdatedAt:       o.clock.Now(),
	})
}

// Snapshot returns a copy of the state published by the last step.
func (o *Orchestrator) Snapshot() Snapshot {
	s := *o.snap.Load()
	s.Frame = append([]string(nil), s.Frame...)
	s.Networks = append([]string(nil), s.Networks...)
	return s
}
