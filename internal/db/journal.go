package db

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/handheld/internal/display"
	"github.com/banshee-data/handheld/internal/eventbus"
	"github.com/banshee-data/handheld/internal/timeutil"
)

// DefaultJournalBuffer is the number of records the journal queues before
// it starts dropping.
const DefaultJournalBuffer = 256

// maxBatch bounds how many queued records share one transaction.
const maxBatch = 64

var ErrJournalClosed = errors.New("journal: closed")

type record struct {
	query string
	args  []any
}

// Journal writes records on its own goroutine. Offers never block: when the
// queue is full the record is dropped and counted, so a slow disk cannot
// stall the UI loop.
type Journal struct {
	db     *DB
	bootID string
	clock  timeutil.Clock

	mu      sync.RWMutex
	closed  bool
	records chan record
	done    chan struct{}

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewJournal registers a new boot and starts the writer.
func NewJournal(db *DB, version string, buffer int, clock timeutil.Clock) (*Journal, error) {
	if buffer <= 0 {
		buffer = DefaultJournalBuffer
	}
	j := &Journal{
		db:      db,
		bootID:  uuid.NewString(),
		clock:   clock,
		records: make(chan record, buffer),
		done:    make(chan struct{}),
	}
	if _, err := db.Exec(
		`INSERT INTO boots (boot_id, started_at, version) VALUES (?, ?, ?)`,
		j.bootID, unixSeconds(clock.Now()), version,
	); err != nil {
		return nil, fmt.Errorf("failed to record boot: %w", err)
	}
	logf("boot %s (%s)", j.bootID, version)
	go j.run()
	return j, nil
}

func (j *Journal) BootID() string { return j.bootID }

func (j *Journal) DB() *DB { return j.db }

// Written, Dropped and Failed count records stored, discarded because the
// queue was full, and lost to a database error.
func (j *Journal) Written() uint64 { return j.written.Load() }
func (j *Journal) Dropped() uint64 { return j.dropped.Load() }
func (j *Journal) Failed() uint64  { return j.failed.Load() }

// RecordEvent queues e. User input is not journaled; its effect shows up as
// the cause of a transition.
func (j *Journal) RecordEvent(e eventbus.Event) {
	now := j.clock.Now()
	switch ev := e.(type) {
	case eventbus.MotionEvent:
		at := ev.At
		if at.IsZero() {
			at = now
		}
		j.offer(record{
			`INSERT INTO motion_events (boot_id, state, heartbeat, accel_mg, gyro_dps, tilt_deg, recorded_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			[]any{j.bootID, ev.State.String(), ev.Heartbeat, ev.AccelMagnitude, ev.GyroMagnitude, ev.TiltAngle, unixSeconds(at)},
		})
	case eventbus.NetworkStatusEvent:
		j.offer(record{
			`INSERT INTO network_events (boot_id, kind, status, detail, recorded_at) VALUES (?, 'status', ?, ?, ?)`,
			[]any{j.bootID, ev.Status.String(), ev.Detail, unixSeconds(now)},
		})
	case eventbus.NetworkResultEvent:
		detail := ev.Err
		if detail == "" {
			detail = ev.Address
		}
		j.offer(record{
			`INSERT INTO network_events (boot_id, kind, command, status, detail, recorded_at) VALUES (?, 'result', ?, ?, ?, ?)`,
			[]any{j.bootID, ev.Command.String(), ev.Status.String(), detail, unixSeconds(now)},
		})
	case eventbus.SystemFaultEvent:
		j.offer(record{
			`INSERT INTO faults (boot_id, source, reason, recorded_at) VALUES (?, ?, ?, ?)`,
			[]any{j.bootID, ev.Source, ev.Reason, unixSeconds(now)},
		})
	}
}

// RecordTransition queues one display state change.
func (j *Journal) RecordTransition(t display.Transition) {
	j.offer(record{
		`INSERT INTO transitions (boot_id, from_state, to_state, message, cause, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		[]any{j.bootID, t.From.Kind.String(), t.To.Kind.String(), t.To.Message, t.Cause, unixSeconds(t.At)},
	})
}

func (j *Journal) offer(r record) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.dropped.Add(1)
		return
	}
	select {
	case j.records <- r:
	default:
		if n := j.dropped.Add(1); n == 1 || n%100 == 0 {
			logf("queue full, %d records dropped", n)
		}
	}
}

func (j *Journal) run() {
	defer close(j.done)
	batch := make([]record, 0, maxBatch)
	for r := range j.records {
		batch = append(batch[:0], r)
	fill:
		for len(batch) < maxBatch {
			select {
			case next, ok := <-j.records:
				if !ok {
					break fill
				}
				batch = append(batch, next)
			default:
				break fill
			}
		}
		if err := j.write(batch); err != nil {
			j.failed.Add(uint64(len(batch)))
			logf("write failed, %d records lost: %v", len(batch), err)
			continue
		}
		j.written.Add(uint64(len(batch)))
	}
}

func (j *Journal) write(batch []record) error {
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	for _, r := range batch {
		if _, err := tx.Exec(r.query, r.args...); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Close stops accepting records, writes what is queued and waits for the
// writer. The database stays open.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return ErrJournalClosed
	}
	j.closed = true
	close(j.records)
	j.mu.Unlock()

	<-j.done
	logf("closed: %d written, %d dropped, %d failed", j.Written(), j.Dropped(), j.Failed())
	return nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*1e9)).UTC()
}
