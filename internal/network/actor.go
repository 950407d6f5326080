package network

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/handheld/internal/eventbus"
	"github.com/banshee-data/handheld/internal/monitoring"
	"github.com/banshee-data/handheld/internal/timeutil"
)

// FaultSource names this actor in SystemFault events.
const FaultSource = "network"

var logf = monitoring.Named("network")

// Config holds the actor's timing and queue depth.
type Config struct {
	// IdlePoll is how long the actor waits for a command before checking
	// the link.
	IdlePoll time.Duration
	// CommandTimeout bounds each transport call.
	CommandTimeout time.Duration
	// QueueSize is the command channel capacity.
	QueueSize int
}

func DefaultConfig() Config {
	return Config{
		IdlePoll:       time.Second,
		CommandTimeout: 15 * time.Second,
		QueueSize:      8,
	}
}

// Actor owns the transport. Only its goroutine touches it.
type Actor struct {
	transport Transport
	tx        *eventbus.Sender
	cfg       Config
	clock     timeutil.Clock
	status    eventbus.NetworkStatusKind

	// resulted is set once the current command has published its result.
	resulted bool
}

func NewActor(transport Transport, tx *eventbus.Sender, cfg Config, clock timeutil.Clock) *Actor {
	return &Actor{
		transport: transport,
		tx:        tx,
		cfg:       cfg,
		clock:     clock,
		status:    eventbus.StatusDisconnected,
	}
}

// Handle is the caller's side of the actor: a private command queue.
type Handle struct {
	cmds chan Command
	done chan struct{}
}

// Spawn starts the actor goroutine and returns its command handle. The
// transport is opened on that goroutine; on failure a SystemFault is
// published and the goroutine exits. tx belongs to the actor from here on.
func Spawn(open TransportFactory, tx *eventbus.Sender, cfg Config, clock timeutil.Clock) *Handle {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	h := &Handle{
		cmds: make(chan Command, cfg.QueueSize),
		done: make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		defer tx.Close()

		transport, err := open()
		if err != nil {
			logf("transport init failed: %v", err)
			_ = tx.Send(eventbus.SystemFaultEvent{Source: FaultSource, Reason: fmt.Sprintf("network init failed: %v", err)})
			return
		}
		NewActor(transport, tx, cfg, clock).run(h.cmds)
	}()
	return h
}

// Send queues cmd without blocking.
func (h *Handle) Send(cmd Command) error {
	select {
	case <-h.done:
		return ErrStopped
	default:
	}
	select {
	case h.cmds <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

func (h *Handle) Connect(creds Credentials) error { return h.Send(ConnectCommand(creds)) }
func (h *Handle) Disconnect() error { return h.Send(DisconnectCommand()) }
func (h *Handle) Scan() error { return h.Send(ScanCommand()) }
func (h *Handle) RequestStatus() error { return h.Send(StatusCommand()) }

// Done is closed when the actor goroutine exits.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (a *Actor) run(cmds <-chan Command) {
	logf("started")
	for {
		var err error
		select {
		case cmd := <-cmds:
			err = a.safeExecute(cmd)
		case <-a.clock.After(a.cfg.IdlePoll):
			err = a.CheckConnection()
		}
		if errors.Is(err, eventbus.ErrReceiverClosed) {
			logf("bus receiver gone, exiting")
			return
		}
	}
}

// Status returns the actor's view of the link.
func (a *Actor) Status() eventbus.NetworkStatusKind {
	return a.status
}

func (a *Actor) safeExecute(cmd Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logf("recovered from panic in %v: %v", cmd.Kind, r)
			reason := fmt.Sprintf("network panic: %v", r)
			// a command interrupted mid-way leaves Connecting or Scanning behind
			stale := a.status
			a.status = a.safeLinkStatus()
			if err = a.publish(eventbus.SystemFaultEvent{Source: FaultSource, Reason: reason}); err != nil {
				return
			}
			if !a.resulted {
				if err = a.result(cmd.Kind, nil, "", reason); err != nil {
					return
				}
			}
			if a.status != stale {
				err = a.setStatus(a.status, "")
			}
		}
	}()
	return a.Execute(cmd)
}

// safeLinkStatus is linkStatus for use inside a recover: a transport that
// panics again reports Error.
func (a *Actor) safeLinkStatus() (status eventbus.NetworkStatusKind) {
	defer func() {
		if r := recover(); r != nil {
			logf("link check panicked: %v", r)
			status = eventbus.StatusError
		}
	}()
	return a.linkStatus()
}

// Execute runs one command to completion. The returned error is a bus
// failure; command failures are reported in the result event.
func (a *Actor) Execute(cmd Command) error {
	a.resulted = false
	switch cmd.Kind {
	case eventbus.CommandConnect:
		return a.connect(cmd.Creds)
	case eventbus.CommandDisconnect:
		return a.disconnect()
	case eventbus.CommandScan:
		return a.scan()
	case eventbus.CommandGetStatus:
		return a.result(cmd.Kind, nil, "", "")
	default:
		return a.result(cmd.Kind, nil, "", fmt.Sprintf("unknown command %d", cmd.Kind))
	}
}

func (a *Actor) commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), a.cfg.CommandTimeout)
}

// describe turns a transport error into the text carried by events.
func (a *Actor) describe(op string, err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %v", ErrTimeout, a.cfg.CommandTimeout)
	}
	return fmt.Sprintf("%s failed: %v", op, err)
}

func (a *Actor) connect(creds Credentials) error {
	if err := creds.Validate(); err != nil {
		return a.result(eventbus.CommandConnect, nil, "", a.describe("connect", err))
	}

	logf("connecting to %q", creds.SSID)
	if err := a.setStatus(eventbus.StatusConnecting, creds.SSID); err != nil {
		return err
	}

	ctx, cancel := a.commandContext()
	addr, err := a.transport.Connect(ctx, creds)
	cancel()

	if err != nil {
		msg := a.describe("connect", err)
		logf("%s", msg)
		a.status = eventbus.StatusDisconnected
		if err := a.result(eventbus.CommandConnect, nil, "", msg); err != nil {
			return err
		}
		return a.setStatus(eventbus.StatusDisconnected, msg)
	}

	logf("connected, address %s", addr)
	a.status = eventbus.StatusConnected
	if err := a.result(eventbus.CommandConnect, nil, addr, ""); err != nil {
		return err
	}
	return a.setStatus(eventbus.StatusConnected, addr)
}

func (a *Actor) disconnect() error {
	ctx, cancel := a.commandContext()
	err := a.transport.Disconnect(ctx)
	cancel()

	if err != nil {
		msg := a.describe("disconnect", err)
		a.status = eventbus.StatusError
		if err := a.result(eventbus.CommandDisconnect, nil, "", msg); err != nil {
			return err
		}
		return a.setStatus(eventbus.StatusError, msg)
	}

	a.status = eventbus.StatusDisconnected
	if err := a.result(eventbus.CommandDisconnect, nil, "", ""); err != nil {
		return err
	}
	return a.setStatus(eventbus.StatusDisconnected, "")
}

func (a *Actor) scan() error {
	if err := a.setStatus(eventbus.StatusScanning, ""); err != nil {
		return err
	}

	ctx, cancel := a.commandContext()
	networks, err := a.transport.Scan(ctx)
	cancel()

	// the scan does not change the link, so restore what the transport says
	a.status = a.linkStatus()

	var msg string
	if err != nil {
		msg = a.describe("scan", err)
		networks = nil
	}
	if err := a.result(eventbus.CommandScan, networks, "", msg); err != nil {
		return err
	}
	return a.setStatus(a.status, "")
}

func (a *Actor) linkStatus() eventbus.NetworkStatusKind {
	ctx, cancel := a.commandContext()
	defer cancel()
	if a.transport.Connected(ctx) {
		return eventbus.StatusConnected
	}
	return eventbus.StatusDisconnected
}

// CheckConnection is the idle-timeout branch. It publishes a status event
// only when the link disagrees with the last status published: the link has
// gone down, come back, or settled after a failed or interrupted command
// left Error, Connecting or Scanning behind.
func (a *Actor) CheckConnection() error {
	link := a.linkStatus()
	if link == a.status {
		return nil
	}
	var detail string
	switch {
	case a.status == eventbus.StatusConnected:
		detail = "connection lost"
	case link == eventbus.StatusConnected:
		detail = "connection restored"
	default:
		detail = "link down"
	}
	logf("%s -> %s: %s", a.status, link, detail)
	return a.setStatus(link, detail)
}

func (a *Actor) setStatus(kind eventbus.NetworkStatusKind, detail string) error {
	a.status = kind
	return a.publish(eventbus.NetworkStatusEvent{Status: kind, Detail: detail})
}

func (a *Actor) result(cmd eventbus.NetworkCommand, networks []string, addr, errMsg string) error {
	a.resulted = true
	return a.publish(eventbus.NetworkResultEvent{
		Command:  cmd,
		Status:   a.status,
		Address:  addr,
		Networks: networks,
		Err:      errMsg,
	})
}

func (a *Actor) publish(e eventbus.Event) error {
	if err := a.tx.Send(e); err != nil {
		if !errors.Is(err, eventbus.ErrReceiverClosed) {
			logf("publish %T: %v", e, err)
		}
		return err
	}
	return nil
}
