// Package sensor runs the motion-sensing actor: it polls an IMU driver,
// classifies each sample and publishes motion events to the bus.
package sensor

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/handheld/internal/motion"
	"github.com/banshee-data/handheld/internal/timeutil"
)

// ErrNoSample means the driver has nothing new this quantum. It is not
// logged as a read error.
var ErrNoSample = errors.New("sensor: no fresh sample")

// Driver is the hardware collaborator. Any error skips the current cycle.
type Driver interface {
	ReadSample() (motion.SensorSample, error)
}

// DriverFactory opens a driver. It runs on the actor's goroutine so the
// handle is owned by that goroutine from the start.
type DriverFactory func() (Driver, error)

// jsonSample is the IMU's JSON line format.
type jsonSample struct {
	T  *uint32 `json:"t_us"`
	AX float64 `json:"ax"`
	AY float64 `json:"ay"`
	AZ float64 `json:"az"`
	GX float64 `json:"gx"`
	GY float64 `json:"gy"`
	GZ float64 `json:"gz"`
}

// ParseLine parses one IMU output line, either
// "t_us,ax,ay,az,gx,gy,gz" or a JSON object with the same keys.
func ParseLine(line string) (motion.SensorSample, error) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "{") {
		var js jsonSample
		if err := json.Unmarshal([]byte(line), &js); err != nil {
			return motion.SensorSample{}, fmt.Errorf("parse sample json: %w", err)
		}
		if js.T == nil {
			return motion.SensorSample{}, errors.New("parse sample json: missing t_us")
		}
		return motion.SensorSample{
			AccelX: js.AX, AccelY: js.AY, AccelZ: js.AZ,
			GyroX: js.GX, GyroY: js.GY, GyroZ: js.GZ,
			Timestamp: timeutil.Micros(*js.T),
		}, nil
	}
	return parseFields(strings.Split(line, ","))
}

func parseFields(fields []string) (motion.SensorSample, error) {
	if len(fields) != 7 {
		return motion.SensorSample{}, fmt.Errorf("parse sample: want 7 fields, got %d", len(fields))
	}
	t, err := strconv.ParseUint(strings.TrimSpace(fields[0]), 10, 32)
	if err != nil {
		return motion.SensorSample{}, fmt.Errorf("parse sample timestamp: %w", err)
	}
	var v [6]float64
	for i := range v {
		v[i], err = strconv.ParseFloat(strings.TrimSpace(fields[i+1]), 64)
		if err != nil {
			return motion.SensorSample{}, fmt.Errorf("parse sample field %d: %w", i+1, err)
		}
	}
	return motion.SensorSample{
		AccelX: v[0], AccelY: v[1], AccelZ: v[2],
		GyroX: v[3], GyroY: v[4], GyroZ: v[5],
		Timestamp: timeutil.Micros(t),
	}, nil
}

// LoadSamples reads a recorded CSV capture. A header row starting with
// "t_us" and lines starting with '#' are skipped.
func LoadSamples(r io.Reader) ([]motion.SensorSample, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var samples []motion.SensorSample
	for row := 1; ; row++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return samples, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read capture: %w", err)
		}
		if row == 1 && len(fields) > 0 && strings.TrimSpace(fields[0]) == "t_us" {
			continue
		}
		s, err := parseFields(fields)
		if err != nil {
			return nil, fmt.Errorf("capture row %d: %w", row, err)
		}
		samples = append(samples, s)
	}
}
