package sensor

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/banshee-data/handheld/internal/eventbus"
	"github.com/banshee-data/handheld/internal/monitoring"
	"github.com/banshee-data/handheld/internal/motion"
	"github.com/banshee-data/handheld/internal/timeutil"
)

// FaultSource names this actor in SystemFault events.
const FaultSource = "sensor"

var logf = monitoring.Named("sensor")

// Config holds the actor's timing.
type Config struct {
	// PollInterval is the sleep between polls.
	PollInterval time.Duration
	// HeartbeatInterval forces a publish when the state has not changed.
	HeartbeatInterval time.Duration
	// SampleGapReset resets the classifier when consecutive sample
	// timestamps are further apart than this. Zero disables the check.
	SampleGapReset time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval:      50 * time.Millisecond,
		HeartbeatInterval: 5 * time.Second,
		SampleGapReset:    time.Second,
	}
}

// Stats are counters maintained by the actor goroutine and safe to read
// from any goroutine.
type Stats struct {
	Samples    uint64
	ReadErrors uint64
	Published  uint64
	Heartbeats uint64
	GapResets  uint64
	Panics     uint64
}

type counters struct {
	samples, readErrors, published, heartbeats, gapResets, panics atomic.Uint64
}

// Actor owns one driver and one classifier. All fields except the counters
// belong to the actor goroutine.
type Actor struct {
	driver     Driver
	classifier *motion.Classifier
	tx         *eventbus.Sender
	cfg        Config
	clock      timeutil.Clock

	published   bool
	lastState   motion.MotionState
	lastPublish time.Time
	lastStamp   timeutil.Micros
	hasStamp    bool

	stats counters
	done  chan struct{}
}

// NewActor builds an actor without starting it. Tests drive it with Step.
func NewActor(driver Driver, classifier *motion.Classifier, tx *eventbus.Sender, cfg Config, clock timeutil.Clock) *Actor {
	return &Actor{
		driver:     driver,
		classifier: classifier,
		tx:         tx,
		cfg:        cfg,
		clock:      clock,
		done:       make(chan struct{}),
	}
}

// Spawn validates the classifier configuration, then starts the actor on its
// own goroutine. The driver is opened on that goroutine; if opening fails a
// SystemFault is published and the goroutine exits. tx is owned by the actor
// from here on and closed when it exits.
//
// There is no stop method. The loop ends only when the bus receiver is gone.
func Spawn(open DriverFactory, mcfg motion.Config, tx *eventbus.Sender, cfg Config, clock timeutil.Clock) (*Actor, error) {
	classifier, err := motion.NewClassifier(mcfg)
	if err != nil {
		return nil, err
	}
	a := NewActor(nil, classifier, tx, cfg, clock)
	go a.run(open)
	return a, nil
}

func (a *Actor) run(open DriverFactory) {
	defer close(a.done)
	defer a.tx.Close()

	driver, err := open()
	if err != nil {
		logf("driver init failed: %v", err)
		if err := a.fault(fmt.Sprintf("sensor init failed: %v", err)); err != nil {
			logf("cannot report init failure: %v", err)
		}
		return
	}
	a.driver = driver
	if c, ok := driver.(io.Closer); ok {
		defer c.Close()
	}

	logf("started, polling every %v", a.cfg.PollInterval)
	for {
		if err := a.safeStep(); errors.Is(err, eventbus.ErrReceiverClosed) {
			logf("bus receiver gone, exiting")
			return
		}
		a.clock.Sleep(a.cfg.PollInterval)
	}
}

// Done is closed when a spawned actor's goroutine has exited.
func (a *Actor) Done() <-chan struct{} {
	return a.done
}

// safeStep runs Step and turns a panic into a SystemFault.
func (a *Actor) safeStep() (err error) {
	defer func() {
		if r := recover(); r != nil {
			a.stats.panics.Add(1)
			a.classifier.Reset()
			logf("recovered from panic: %v", r)
			err = a.fault(fmt.Sprintf("sensor panic: %v", r))
		}
	}()
	return a.Step()
}

func (a *Actor) fault(reason string) error {
	return a.tx.Send(eventbus.SystemFaultEvent{Source: FaultSource, Reason: reason})
}

// Step performs one poll: read a sample, classify it, and publish at most one
// MotionEvent. Read errors skip the cycle. The only error returned is a
// failed Send.
func (a *Actor) Step() error {
	sample, err := a.driver.ReadSample()
	if err != nil {
		if !errors.Is(err, ErrNoSample) {
			if n := a.stats.readErrors.Add(1); n == 1 || n%100 == 0 {
				logf("read error (%d so far): %v", n, err)
			}
		}
		return nil
	}
	a.stats.samples.Add(1)

	if a.hasStamp && a.cfg.SampleGapReset > 0 {
		if gap := sample.Timestamp.Sub(a.lastStamp); gap > a.cfg.SampleGapReset {
			a.stats.gapResets.Add(1)
			logf("sample gap %v, resetting classifier", gap)
			a.classifier.Reset()
		}
	}
	a.lastStamp, a.hasStamp = sample.Timestamp, true

	r := a.classifier.Detail(sample)
	now := a.clock.Now()

	changed := !a.published || r.State != a.lastState
	heartbeat := !changed && a.clock.Since(a.lastPublish) > a.cfg.HeartbeatInterval
	if !changed && !heartbeat {
		return nil
	}

	ev := eventbus.MotionEvent{
		State:          r.State,
		Heartbeat:      heartbeat,
		AccelMagnitude: r.AccelMagnitude,
		GyroMagnitude:  r.GyroMagnitude,
		TiltAngle:      r.TiltAngle,
		At:             now,
	}
	if err := a.tx.Send(ev); err != nil {
		return err
	}
	a.published, a.lastState, a.lastPublish = true, r.State, now
	a.stats.published.Add(1)
	if heartbeat {
		a.stats.heartbeats.Add(1)
	}
	return nil
}

// Stats returns a snapshot of the actor's counters.
func (a *Actor) Stats() Stats {
	return Stats{
		Samples:    a.stats.samples.Load(),
		ReadErrors: a.stats.readErrors.Load(),
		Published:  a.stats.published.Load(),
		Heartbeats: a.stats.heartbeats.Load(),
		GapResets:  a.stats.gapResets.Load(),
		Panics:     a.stats.panics.Load(),
	}
}
