// Package eventbus is the multi-producer, single-consumer channel that
// connects the device actors to the orchestrator.
//
// New returns one Sender and one Receiver. Senders are cloned per producer
// and are safe for concurrent use; Send never blocks. The Receiver is the
// only way to read events and there is exactly one per bus.
package eventbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrReceiverClosed is returned by Send once the receiver has been closed.
	ErrReceiverClosed = errors.New("eventbus: receiver closed")
	// ErrSenderClosed is returned by Send on a sender that was closed.
	ErrSenderClosed = errors.New("eventbus: sender closed")
	// ErrEmpty is returned by TryRecv when no event is pending.
	ErrEmpty = errors.New("eventbus: no pending events")
	// ErrClosed is returned by the receiver once every sender has been closed
	// and all pending events have been read.
	ErrClosed = errors.New("eventbus: all senders closed")
)

// queue is the state shared by all senders and the receiver. It is unbounded:
// a slow consumer grows memory instead of blocking a hardware loop.
type queue struct {
	mu       sync.Mutex
	items    []Event
	head     int
	senders  int
	rxClosed bool
	sent     uint64

	// ready holds at most one wakeup for a receiver blocked in Recv.
	ready chan struct{}
}

func (q *queue) notify() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// New creates a bus and returns its first sender and its only receiver.
func New() (*Sender, *Receiver) {
	q := &queue{senders: 1, ready: make(chan struct{}, 1)}
	return &Sender{q: q}, &Receiver{q: q}
}

// Sender publishes events onto the bus.
type Sender struct {
	q      *queue
	closed atomic.Bool
}

// Send enqueues e. It never blocks. It fails only when the receiver has been
// closed or this sender has been closed.
func (s *Sender) Send(e Event) error {
	if s.closed.Load() {
		return ErrSenderClosed
	}
	q := s.q
	q.mu.Lock()
	if q.rxClosed {
		q.mu.Unlock()
		return ErrReceiverClosed
	}
	q.items = append(q.items, e)
	q.sent++
	q.mu.Unlock()
	q.notify()
	return nil
}

// Clone returns a new sender on the same bus. Each actor gets its own clone.
func (s *Sender) Clone() *Sender {
	s.q.mu.Lock()
	s.q.senders++
	s.q.mu.Unlock()
	return &Sender{q: s.q}
}

// Close releases this sender. Once every sender is closed the receiver
// drains what is left and then reports ErrClosed. Close is idempotent.
func (s *Sender) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.q.mu.Lock()
	s.q.senders--
	s.q.mu.Unlock()
	s.q.notify()
}

// noCopy makes go vet's copylocks check flag copies of the Receiver.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Receiver reads events in the order each sender sent them. Ordering across
// different senders is not defined. It must not be copied.
type Receiver struct {
	_ noCopy
	q *queue
}

// pop must be called with q.mu held.
func (q *queue) pop() (Event, bool) {
	if q.head == len(q.items) {
		return nil, false
	}
	e := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return e, true
}

// TryRecv returns the next pending event without blocking. It returns
// ErrEmpty when nothing is pending, or ErrClosed when nothing is pending and
// every sender has been closed.
func (r *Receiver) TryRecv() (Event, error) {
	q := r.q
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.pop(); ok {
		return e, nil
	}
	if q.senders == 0 {
		return nil, ErrClosed
	}
	return nil, ErrEmpty
}

// Recv blocks until an event arrives, every sender is closed, or ctx is done.
func (r *Receiver) Recv(ctx context.Context) (Event, error) {
	for {
		e, err := r.TryRecv()
		if !errors.Is(err, ErrEmpty) {
			return e, err
		}
		select {
		case <-r.q.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len returns the number of pending events.
func (r *Receiver) Len() int {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()
	return len(r.q.items) - r.q.head
}

// Sent returns the total number of events accepted by the bus.
func (r *Receiver) Sent() uint64 {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()
	return r.q.sent
}

// Close drops the receiver. Pending events are discarded and every later
// Send fails with ErrReceiverClosed.
func (r *Receiver) Close() {
	q := r.q
	q.mu.Lock()
	q.rxClosed = true
	q.items = nil
	q.head = 0
	q.mu.Unlock()
}
