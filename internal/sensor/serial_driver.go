package sensor

import (
	"errors"

	"github.com/banshee-data/handheld/internal/motion"
	"github.com/banshee-data/handheld/internal/serialmux"
)

// ErrStreamClosed is returned once the mux has closed the subscription.
var ErrStreamClosed = errors.New("sensor: imu stream closed")

// SerialDriver reads samples from the IMU's line stream. Each ReadSample
// drains what has arrived since the last call and returns the newest
// sample, so a slow poll never works through a backlog of stale data.
type SerialDriver struct {
	mux    serialmux.SerialMuxInterface
	id     string
	lines  chan string
	closed bool
}

// NewSerialDriver subscribes to mux. The mux's Monitor loop must be running
// for samples to arrive.
func NewSerialDriver(mux serialmux.SerialMuxInterface) *SerialDriver {
	id, lines := mux.Subscribe()
	return &SerialDriver{mux: mux, id: id, lines: lines}
}

func (d *SerialDriver) ReadSample() (motion.SensorSample, error) {
	if d.closed {
		return motion.SensorSample{}, ErrStreamClosed
	}

	var (
		newest  motion.SensorSample
		have    bool
		lastErr error
	)
	for {
		select {
		case line, ok := <-d.lines:
			if !ok {
				d.closed = true
				if have {
					return newest, nil
				}
				return motion.SensorSample{}, ErrStreamClosed
			}
			if serialmux.ClassifyLine(line) != serialmux.LineSample {
				continue
			}
			s, err := ParseLine(line)
			if err != nil {
				lastErr = err
				continue
			}
			newest, have, lastErr = s, true, nil
		default:
			switch {
			case have:
				return newest, nil
			case lastErr != nil:
				return motion.SensorSample{}, lastErr
			default:
				return motion.SensorSample{}, ErrNoSample
			}
		}
	}
}

// Close releases the subscription.
func (d *SerialDriver) Close() error {
	if !d.closed {
		d.closed = true
		d.mux.Unsubscribe(d.id)
	}
	return nil
}
