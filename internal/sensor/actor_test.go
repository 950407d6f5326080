package sensor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/handheld/internal/eventbus"
	"github.com/banshee-data/handheld/internal/motion"
	"github.com/banshee-data/handheld/internal/timeutil"
)

type readResult struct {
	sample motion.SensorSample
	err    error
	panic  string
}

// scriptedDriver returns its results in order, then ErrNoSample.
type scriptedDriver struct {
	mu      sync.Mutex
	results []readResult
	closed  bool
}

func (d *scriptedDriver) push(r ...readResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, r...)
}

func (d *scriptedDriver) ReadSample() (motion.SensorSample, error) {
	d.mu.Lock()
	if len(d.results) == 0 {
		d.mu.Unlock()
		return motion.SensorSample{}, ErrNoSample
	}
	r := d.results[0]
	d.results = d.results[1:]
	d.mu.Unlock()
	if r.panic != "" {
		panic(r.panic)
	}
	return r.sample, r.err
}

func (d *scriptedDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func level(t timeutil.Micros) readResult {
	return readResult{sample: motion.SensorSample{AccelZ: 1000, Timestamp: t}}
}

func shake(i int, t timeutil.Micros) readResult {
	az := 2000.0
	if i%2 == 0 {
		az = 1000
	}
	return readResult{sample: motion.SensorSample{AccelZ: az, GyroX: 200, Timestamp: t}}
}

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	actor  *Actor
	driver *scriptedDriver
	clock  *timeutil.MockClock
	rx     *eventbus.Receiver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	classifier, err := motion.NewClassifier(motion.DefaultConfig())
	require.NoError(t, err)
	tx, rx := eventbus.New()
	t.Cleanup(tx.Close)
	clock := timeutil.NewMockClock(epoch)
	driver := &scriptedDriver{}
	return &harness{
		actor:  NewActor(driver, classifier, tx, DefaultConfig(), clock),
		driver: driver,
		clock:  clock,
		rx:     rx,
	}
}

// step advances one 50ms quantum and runs the loop body.
func (h *harness) step(t *testing.T) {
	t.Helper()
	require.NoError(t, h.actor.Step())
	h.clock.Advance(50 * time.Millisecond)
}

func (h *harness) drain() []eventbus.Event {
	var out []eventbus.Event
	for {
		e, err := h.rx.TryRecv()
		if err != nil {
			return out
		}
		out = append(out, e)
	}
}

func TestStep_PublishesFirstStateThenOnlyChanges(t *testing.T) {
	h := newHarness(t)
	ts := timeutil.Micros(0)
	h.driver.push(level(ts))
	for i := 1; i <= 14; i++ {
		ts = ts.Add(50 * time.Millisecond)
		h.driver.push(shake(i, ts))
	}
	for i := 0; i < 15; i++ {
		h.step(t)
	}

	events := h.drain()
	require.Len(t, events, 2)
	first := events[0].(eventbus.MotionEvent)
	assert.Equal(t, motion.Still, first.State)
	assert.False(t, first.Heartbeat)
	assert.Equal(t, epoch, first.At)

	second := events[1].(eventbus.MotionEvent)
	assert.Equal(t, motion.Shaking, second.State)
	assert.Equal(t, epoch.Add(12*50*time.Millisecond), second.At, "shaking confirmed on the 12th qualifying sample")
	assert.Greater(t, second.GyroMagnitude, 120.0)

	assert.Equal(t, Stats{Samples: 15, Published: 2}, h.actor.Stats())
}

func TestStep_Heartbeat(t *testing.T) {
	h := newHarness(t)
	ts := timeutil.Micros(0)
	next := func() readResult {
		ts = ts.Add(50 * time.Millisecond)
		return level(ts)
	}

	h.driver.push(next())
	h.step(t)
	require.Len(t, h.drain(), 1)

	// 99 more quanta bring the clock to 4.95s after the first publish
	for i := 0; i < 99; i++ {
		h.driver.push(next())
		h.step(t)
	}
	assert.Empty(t, h.drain())

	// exactly one interval since the last publish is not yet stale
	h.driver.push(next())
	h.step(t)
	assert.Empty(t, h.drain())

	h.driver.push(next())
	h.step(t)
	events := h.drain()
	require.Len(t, events, 1)
	hb := events[0].(eventbus.MotionEvent)
	assert.True(t, hb.Heartbeat)
	assert.Equal(t, motion.Still, hb.State)
	assert.Equal(t, uint64(1), h.actor.Stats().Heartbeats)

	h.driver.push(next())
	h.step(t)
	assert.Empty(t, h.drain(), "heartbeat restarts the interval")
}

func TestStep_ReadErrorsSkipTheCycle(t *testing.T) {
	h := newHarness(t)
	h.driver.push(readResult{err: errors.New("i2c nack")})
	h.step(t)
	h.step(t) // ErrNoSample

	assert.Empty(t, h.drain())
	stats := h.actor.Stats()
	assert.Equal(t, uint64(1), stats.ReadErrors)
	assert.Zero(t, stats.Samples)
}

func TestStep_SampleGapResetsClassifier(t *testing.T) {
	h := newHarness(t)
	ts := timeutil.Micros(0)
	h.driver.push(level(ts))
	for i := 1; i <= 11; i++ {
		ts = ts.Add(50 * time.Millisecond)
		h.driver.push(shake(i, ts))
	}
	for i := 0; i < 12; i++ {
		h.step(t)
	}
	shakeCount, _ := h.actor.classifier.Counters()
	require.Equal(t, 11, shakeCount)

	// the IMU stalled for two seconds
	ts = ts.Add(2 * time.Second)
	h.driver.push(shake(12, ts))
	h.step(t)

	shakeCount, _ = h.actor.classifier.Counters()
	assert.Zero(t, shakeCount, "first sample after a gap has no baseline")
	assert.Equal(t, uint64(1), h.actor.Stats().GapResets)
}

func TestStep_GapAcrossCounterWrapIsNotAGap(t *testing.T) {
	h := newHarness(t)
	ts := timeutil.Micros(^uint32(0) - 10_000)
	h.driver.push(level(ts), level(ts.Add(50*time.Millisecond)))
	h.step(t)
	h.step(t)
	assert.Zero(t, h.actor.Stats().GapResets)
}

func TestStep_ReceiverClosed(t *testing.T) {
	h := newHarness(t)
	h.rx.Close()
	h.driver.push(level(0))
	assert.ErrorIs(t, h.actor.Step(), eventbus.ErrReceiverClosed)
}

func TestSafeStep_PanicBecomesFault(t *testing.T) {
	h := newHarness(t)
	h.driver.push(readResult{panic: "index out of range"})

	require.NoError(t, h.actor.safeStep())
	events := h.drain()
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.SystemFaultEvent{Source: FaultSource, Reason: "sensor panic: index out of range"}, events[0])
	assert.Equal(t, uint64(1), h.actor.Stats().Panics)
}

func TestSpawn_RejectsInvalidClassifierConfig(t *testing.T) {
	tx, _ := eventbus.New()
	cfg := motion.DefaultConfig()
	cfg.TiltThreshold = 120

	opened := false
	a, err := Spawn(func() (Driver, error) { opened = true; return &scriptedDriver{}, nil }, cfg, tx, DefaultConfig(), timeutil.RealClock{})
	assert.Error(t, err)
	assert.Nil(t, a)
	assert.False(t, opened)
}

func TestSpawn_OpenFailurePublishesFault(t *testing.T) {
	tx, rx := eventbus.New()
	a, err := Spawn(func() (Driver, error) { return nil, errors.New("no imu on bus") }, motion.DefaultConfig(), tx, DefaultConfig(), timeutil.RealClock{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	e, err := rx.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, eventbus.SystemFaultEvent{Source: FaultSource, Reason: "sensor init failed: no imu on bus"}, e)

	<-a.Done()
	_, err = rx.Recv(ctx)
	assert.ErrorIs(t, err, eventbus.ErrClosed, "actor releases its sender on exit")
}

func TestSpawn_RunsUntilReceiverCloses(t *testing.T) {
	tx, rx := eventbus.New()
	driver := &scriptedDriver{}
	driver.push(level(0))
	cfg := DefaultConfig()
	cfg.PollInterval = time.Millisecond
	cfg.HeartbeatInterval = 5 * time.Millisecond

	a, err := Spawn(func() (Driver, error) { return driver, nil }, motion.DefaultConfig(), tx, cfg, timeutil.RealClock{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	e, err := rx.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, motion.Still, e.(eventbus.MotionEvent).State)

	rx.Close()
	// the next publish attempt fails; feed samples until the heartbeat fires
	go func() {
		for i := 1; ; i++ {
			select {
			case <-a.Done():
				return
			case <-time.After(time.Millisecond):
				driver.push(level(timeutil.Micros(i * 1000)))
			}
		}
	}()
	select {
	case <-a.Done():
	case <-ctx.Done():
		t.Fatal("actor did not exit after the receiver closed")
	}
	driver.mu.Lock()
	defer driver.mu.Unlock()
	assert.True(t, driver.closed)
}
