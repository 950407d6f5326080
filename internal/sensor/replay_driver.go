package sensor

import (
	"io"
	"sync"

	"github.com/banshee-data/handheld/internal/motion"
)

// ReplayDriver plays back a fixed sequence of samples, one per ReadSample.
// Once exhausted it returns io.EOF, or starts over when Loop is set.
type ReplayDriver struct {
	mu      sync.Mutex
	samples []motion.SensorSample
	next    int
	Loop    bool
}

func NewReplayDriver(samples []motion.SensorSample) *ReplayDriver {
	return &ReplayDriver{samples: samples}
}

func (d *ReplayDriver) ReadSample() (motion.SensorSample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.next >= len(d.samples) {
		if !d.Loop || len(d.samples) == 0 {
			return motion.SensorSample{}, io.EOF
		}
		d.next = 0
	}
	s := d.samples[d.next]
	d.next++
	return s, nil
}

// Remaining returns the number of samples not yet read in this pass.
func (d *ReplayDriver) Remaining() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.samples) - d.next
}
