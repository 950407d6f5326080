// Command motion-replay runs a recorded IMU capture through the motion
// classifier and reports every state change. It is used to tune the
// thresholds in the device config against real captures.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"io"
	"log"
	"os"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/handheld/internal/config"
	"github.com/banshee-data/handheld/internal/motion"
	"github.com/banshee-data/handheld/internal/sensor"
)

var (
	configFile = flag.String("config", config.DefaultConfigPath, "Path to the JSON tuning file")
	plotFile   = flag.String("plot", "", "Write a PNG of accel and gyro magnitude with state bands to this path")
	verbose    = flag.Bool("v", false, "Print every reading, not only state changes")
)

// change is one classifier state transition within a capture.
type change struct {
	Index   int
	Offset  time.Duration
	From    motion.MotionState
	Reading motion.Reading
}

// replay classifies samples in order. The classifier is reset whenever the
// gap between consecutive timestamps exceeds gapReset, as the sensor actor
// does; zero disables that.
func replay(samples []motion.SensorSample, mcfg motion.Config, gapReset time.Duration) ([]motion.Reading, []change, error) {
	c, err := motion.NewClassifier(mcfg)
	if err != nil {
		return nil, nil, err
	}
	readings := make([]motion.Reading, 0, len(samples))
	var changes []change
	prev := motion.Still
	for i, s := range samples {
		if i > 0 && gapReset > 0 && s.Timestamp.Sub(samples[i-1].Timestamp) > gapReset {
			c.Reset()
		}
		r := c.Detail(s)
		readings = append(readings, r)
		if r.State != prev {
			changes = append(changes, change{
				Index:   i,
				Offset:  s.Timestamp.Sub(samples[0].Timestamp),
				From:    prev,
				Reading: r,
			})
			prev = r.State
		}
	}
	return readings, changes, nil
}

var stateColors = map[motion.MotionState]color.RGBA{
	motion.Shaking: {R: 230, G: 80, B: 60, A: 255},
	motion.Tilting: {R: 240, G: 180, B: 40, A: 255},
}

func plotReadings(samples []motion.SensorSample, readings []motion.Reading, path string) error {
	p := plot.New()
	p.Title.Text = "Motion replay"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Magnitude"

	accel := make(plotter.XYs, len(readings))
	gyro := make(plotter.XYs, len(readings))
	marks := map[motion.MotionState]plotter.XYs{}
	for i, r := range readings {
		x := samples[i].Timestamp.Sub(samples[0].Timestamp).Seconds()
		accel[i] = plotter.XY{X: x, Y: r.AccelMagnitude}
		gyro[i] = plotter.XY{X: x, Y: r.GyroMagnitude}
		if _, ok := stateColors[r.State]; ok {
			marks[r.State] = append(marks[r.State], plotter.XY{X: x, Y: 0})
		}
	}

	accelLine, err := plotter.NewLine(accel)
	if err != nil {
		return fmt.Errorf("accel line: %w", err)
	}
	accelLine.Width = vg.Points(1)
	accelLine.Color = color.RGBA{R: 40, G: 90, B: 200, A: 255}
	p.Add(accelLine)
	p.Legend.Add("accel (mg)", accelLine)

	gyroLine, err := plotter.NewLine(gyro)
	if err != nil {
		return fmt.Errorf("gyro line: %w", err)
	}
	gyroLine.Width = vg.Points(1)
	gyroLine.Color = color.RGBA{R: 60, G: 160, B: 90, A: 255}
	p.Add(gyroLine)
	p.Legend.Add("gyro (dps)", gyroLine)

	for _, s := range []motion.MotionState{motion.Shaking, motion.Tilting} {
		pts := marks[s]
		if len(pts) == 0 {
			continue
		}
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("%s marks: %w", s, err)
		}
		sc.GlyphStyle.Color = stateColors[s]
		sc.GlyphStyle.Radius = vg.Points(2)
		p.Add(sc)
		p.Legend.Add(s.String(), sc)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	return p.Save(14*vg.Inch, 6*vg.Inch, path)
}

func report(out io.Writer, readings []motion.Reading, changes []change, all bool) {
	if all {
		for i, r := range readings {
			fmt.Fprintf(out, "%6d %-8s accel=%7.1f gyro=%6.1f tilt=%5.1f\n", i, r.State, r.AccelMagnitude, r.GyroMagnitude, r.TiltAngle)
		}
	}
	for _, c := range changes {
		fmt.Fprintf(out, "%10.3fs #%-6d %s -> %s (accel=%.1f gyro=%.1f tilt=%.1f)\n",
			c.Offset.Seconds(), c.Index, c.From, c.Reading.State,
			c.Reading.AccelMagnitude, c.Reading.GyroMagnitude, c.Reading.TiltAngle)
	}
	fmt.Fprintf(out, "%d samples, %d state changes\n", len(readings), len(changes))
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: motion-replay [flags] <capture.csv>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatalf("failed to open capture: %v", err)
	}
	samples, err := sensor.LoadSamples(f)
	f.Close()
	if err != nil {
		log.Fatalf("failed to read capture: %v", err)
	}
	if len(samples) == 0 {
		log.Fatal("capture holds no samples")
	}

	readings, changes, err := replay(samples, cfg.ClassifierConfig(), cfg.GetSampleGapReset())
	if err != nil {
		log.Fatalf("invalid classifier config: %v", err)
	}
	report(os.Stdout, readings, changes, *verbose)

	if *plotFile != "" {
		if err := plotReadings(samples, readings, *plotFile); err != nil {
			log.Fatalf("failed to write plot: %v", err)
		}
		log.Printf("wrote %s", *plotFile)
	}
}
