package orchestrator

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/handheld/internal/display"
	"github.com/banshee-data/handheld/internal/eventbus"
	"github.com/banshee-data/handheld/internal/motion"
	"github.com/banshee-data/handheld/internal/sensor"
	"github.com/banshee-data/handheld/internal/timeutil"
)

// feed is a sensor driver that hands out queued samples, one per poll.
type feed struct {
	mu      sync.Mutex
	samples []motion.SensorSample
}

func (d *feed) push(s motion.SensorSample) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.samples = append(d.samples, s)
}

func (d *feed) ReadSample() (motion.SensorSample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.samples) == 0 {
		return motion.SensorSample{}, sensor.ErrNoSample
	}
	s := d.samples[0]
	d.samples = d.samples[1:]
	return s, nil
}

// rig runs the sensor actor and the orchestrator in lock step on one clock,
// one 50 ms quantum per cycle.
type rig struct {
	*fixture
	driver *feed
	sensor *sensor.Actor
	stamp  timeutil.Micros
}

func newRig(t *testing.T) *rig {
	t.Helper()
	f := newFixture()
	classifier, err := motion.NewClassifier(motion.DefaultConfig())
	require.NoError(t, err)
	driver := &feed{}
	return &rig{
		fixture: f,
		driver:  driver,
		sensor:  sensor.NewActor(driver, classifier, f.tx.Clone(), sensor.DefaultConfig(), f.clock),
	}
}

func (r *rig) sample(az, gyro float64) {
	r.stamp = r.stamp.Add(50 * time.Millisecond)
	r.driver.push(motion.SensorSample{AccelZ: az, GyroX: gyro, Timestamp: r.stamp})
}

func (r *rig) cycle(t *testing.T) {
	t.Helper()
	require.NoError(t, r.sensor.Step())
	r.orch.Step()
	r.clock.Advance(50 * time.Millisecond)
}

// gentle handling: the magnitude wobbles by 300 mg, well under the threshold.
func (r *rig) gentle(t *testing.T, cycles int) {
	t.Helper()
	for i := 0; i < cycles; i++ {
		r.sample(1000+300*float64(i%2), 50)
		r.cycle(t)
	}
}

func TestScenario_GentleHandlingThenShake(t *testing.T) {
	r := newRig(t)
	r.send(t, press(eventbus.InputPress))

	r.gentle(t, 100)
	assert.Equal(t, display.Home, r.machine.State().Kind)
	for _, s := range r.journal.motionStates() {
		require.Equal(t, motion.Still, s)
	}

	for k := 1; k <= 15; k++ {
		az := 2500.0
		if k%2 == 0 {
			az = 1000
		}
		r.sample(az, 200)
		r.cycle(t)

		snap := r.orch.Snapshot()
		if k < 12 {
			require.Equal(t, motion.Still, snap.Motion, "cycle %d", k)
			require.Equal(t, display.Home, snap.State.Kind, "cycle %d", k)
			continue
		}
		require.Equal(t, motion.Shaking, snap.Motion, "cycle %d", k)
		require.Equal(t, display.Dizzy, snap.State.Kind, "cycle %d", k)
	}

	last := r.journal.transitions[len(r.journal.transitions)-1]
	assert.Equal(t, display.Transition{
		From:  display.State{Kind: display.Home},
		To:    display.State{Kind: display.Dizzy},
		At:    epoch.Add(111 * 50 * time.Millisecond),
		Cause: "motion:shaking",
	}, last)
}

func TestScenario_DizzyDwell(t *testing.T) {
	r := newRig(t)
	r.send(t, press(eventbus.InputPress))
	r.gentle(t, 2)

	for k := 1; r.machine.State().Kind != display.Dizzy; k++ {
		require.LessOrEqual(t, k, 20, "never got dizzy")
		az := 2500.0
		if k%2 == 0 {
			az = 1000
		}
		r.sample(az, 200)
		r.cycle(t)
	}
	entered := r.machine.EnteredAt()

	// set down: the sensor reports Still long before the dwell is over
	stillAt := 0
	for cycle := 1; cycle <= 60; cycle++ {
		r.sample(1000, 0)
		r.cycle(t)
		if stillAt == 0 && r.orch.Snapshot().Motion == motion.Still {
			stillAt = cycle
		}
		if cycle < 60 {
			require.Equal(t, display.Dizzy, r.machine.State().Kind, "cycle %d", cycle)
		}
	}
	assert.Equal(t, 10, stillAt)
	assert.Equal(t, display.Home, r.machine.State().Kind)

	last := r.journal.transitions[len(r.journal.transitions)-1]
	assert.Equal(t, display.Transition{
		From:  display.State{Kind: display.Dizzy},
		To:    display.State{Kind: display.Home},
		At:    entered.Add(3 * time.Second),
		Cause: "motion:still",
	}, last)
}
