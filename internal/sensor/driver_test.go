package sensor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/handheld/internal/motion"
	"github.com/banshee-data/handheld/internal/serialmux"
)

func TestParseLine(t *testing.T) {
	want := motion.SensorSample{AccelX: 1.5, AccelY: -2, AccelZ: 998, GyroX: 0.25, GyroY: 0, GyroZ: -120, Timestamp: 4000000000}

	got, err := ParseLine("4000000000, 1.5,-2,998,0.25,0,-120\r\n")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = ParseLine(`{"t_us":4000000000,"ax":1.5,"ay":-2,"az":998,"gx":0.25,"gy":0,"gz":-120}`)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParseLine_Errors(t *testing.T) {
	for _, line := range []string{
		"1,2,3",
		"x,0,0,0,0,0,0",
		"5000000000,0,0,0,0,0,0",
		"1,0,0,nope,0,0,0",
		`{"ax":1}`,
		`{"t_us":`,
	} {
		_, err := ParseLine(line)
		assert.Error(t, err, line)
	}
}

func TestLoadSamples(t *testing.T) {
	capture := "t_us,ax,ay,az,gx,gy,gz\n" +
		"# picked up from the desk\n" +
		"0,0,0,1000,0,0,0\n" +
		"50000, 10,0,990,3,0,0\n"

	samples, err := LoadSamples(strings.NewReader(capture))
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, 990.0, samples[1].AccelZ)

	_, err = LoadSamples(strings.NewReader("0,0,0,1000,0,0,0\n1,2\n"))
	assert.ErrorContains(t, err, "row 2")
}

func TestReplayDriver(t *testing.T) {
	d := NewReplayDriver([]motion.SensorSample{{Timestamp: 1}, {Timestamp: 2}})
	s, err := d.ReadSample()
	require.NoError(t, err)
	assert.EqualValues(t, 1, s.Timestamp)
	assert.Equal(t, 1, d.Remaining())
	_, _ = d.ReadSample()
	_, err = d.ReadSample()
	assert.ErrorIs(t, err, io.EOF)

	d.Loop = true
	s, err = d.ReadSample()
	require.NoError(t, err)
	assert.EqualValues(t, 1, s.Timestamp)
}

// chanMux is a SerialMuxInterface whose single subscription is fed by the test.
type chanMux struct {
	lines        chan string
	unsubscribed bool
}

func (m *chanMux) Subscribe() (string, chan string) { return "only", m.lines }
func (m *chanMux) Unsubscribe(string) { m.unsubscribed = true }
func (m *chanMux) SendCommand(string) error { return nil }
func (m *chanMux) Monitor(context.Context) error { return nil }
func (m *chanMux) Close() error { close(m.lines); return nil }
func (m *chanMux) Initialise() error { return nil }
func (m *chanMux) AttachAdminRoutes(*http.ServeMux) {}

var _ serialmux.SerialMuxInterface = (*chanMux)(nil)

func TestSerialDriver_ReturnsNewestSample(t *testing.T) {
	mux := &chanMux{lines: make(chan string, 8)}
	d := NewSerialDriver(mux)

	_, err := d.ReadSample()
	assert.ErrorIs(t, err, ErrNoSample)

	mux.lines <- "100,0,0,1000,0,0,0"
	mux.lines <- "# ack"
	mux.lines <- "150,0,0,1010,0,0,0"
	s, err := d.ReadSample()
	require.NoError(t, err)
	assert.EqualValues(t, 150, s.Timestamp)

	_, err = d.ReadSample()
	assert.ErrorIs(t, err, ErrNoSample, "each sample is returned once")
}

func TestSerialDriver_MalformedOnly(t *testing.T) {
	mux := &chanMux{lines: make(chan string, 8)}
	d := NewSerialDriver(mux)

	mux.lines <- "100,0,0,abc,0,0,0"
	_, err := d.ReadSample()
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoSample))

	mux.lines <- "100,0,0,abc,0,0,0"
	mux.lines <- "200,0,0,1000,0,0,0"
	_, err = d.ReadSample()
	assert.NoError(t, err, "a later good line wins")
}

func TestSerialDriver_StreamClosed(t *testing.T) {
	mux := &chanMux{lines: make(chan string, 8)}
	d := NewSerialDriver(mux)
	mux.lines <- "300,0,0,1000,0,0,0"
	mux.Close()

	s, err := d.ReadSample()
	require.NoError(t, err)
	assert.EqualValues(t, 300, s.Timestamp)
	_, err = d.ReadSample()
	assert.ErrorIs(t, err, ErrStreamClosed)
	assert.NoError(t, d.Close())
	assert.False(t, mux.unsubscribed, "mux already dropped the subscription")
}
