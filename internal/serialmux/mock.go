package serialmux

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"
)

// SimulatedIMU is a SerialPorter that streams synthetic CSV samples. It backs
// the --dev mode of the device binary so the full pipeline runs without
// hardware.
type SimulatedIMU struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu       sync.Mutex
	commands bytes.Buffer
	done     chan struct{}
	once     sync.Once
}

// SimulatedScript returns the sample line for the n-th sample. t is the
// sample time in microseconds since the simulation started.
type SimulatedScript func(n int, t uint32) string

// DefaultScript cycles through 10s resting, 3s shaking, 7s resting and 5s
// tilted at 60°.
func DefaultScript(n int, t uint32) string {
	phase := (t / 1_000_000) % 25
	wobble := 5 * math.Sin(float64(n)/7)
	switch {
	case phase >= 10 && phase < 13:
		az := 1000.0
		if n%2 == 0 {
			az = 2200
		}
		return FormatSample(t, wobble, 0, az, 250, 40, 0)
	case phase >= 20:
		return FormatSample(t, 866+wobble, 0, 500, 0, 0, 0)
	default:
		return FormatSample(t, wobble, 0, 1000, 0, 0, 0)
	}
}

// FormatSample renders one CSV sample line in the IMU's output format.
func FormatSample(t uint32, ax, ay, az, gx, gy, gz float64) string {
	return fmt.Sprintf("%d,%.1f,%.1f,%.1f,%.1f,%.1f,%.1f\n", t, ax, ay, az, gx, gy, gz)
}

// NewSimulatedIMU starts generating one line per interval using script.
func NewSimulatedIMU(interval time.Duration, script SimulatedScript) *SimulatedIMU {
	r, w := io.Pipe()
	imu := &SimulatedIMU{r: r, w: w, done: make(chan struct{})}

	go func() {
		defer w.Close()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		start := time.Now()
		for n := 0; ; n++ {
			select {
			case <-imu.done:
				return
			case now := <-ticker.C:
				t := uint32(now.Sub(start) / time.Microsecond)
				if _, err := io.WriteString(w, script(n, t)); err != nil {
					return
				}
			}
		}
	}()
	return imu
}

func (s *SimulatedIMU) Read(p []byte) (int, error) {
	return s.r.Read(p)
}

// Write records commands sent to the device.
func (s *SimulatedIMU) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commands.Write(p)
}

// Commands returns everything written to the device so far.
func (s *SimulatedIMU) Commands() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commands.String()
}

func (s *SimulatedIMU) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.r.Close()
	})
	return nil
}

// NewSimulatedSerialMux wraps a SimulatedIMU running DefaultScript.
func NewSimulatedSerialMux(interval time.Duration) *SerialMux[*SimulatedIMU] {
	return NewSerialMux(NewSimulatedIMU(interval, DefaultScript))
}

// TestableSerialPort implements SerialPorter with configurable behaviour for testing.
type TestableSerialPort struct {
	mu sync.Mutex

	ReadBuffer  *bytes.Buffer
	WriteBuffer *bytes.Buffer

	// ReadError and WriteError are returned once by the next call.
	ReadError  error
	WriteError error
	CloseError error

	// ShortWrite makes Write report one byte fewer than it was given.
	ShortWrite bool

	Closed      bool
	ReadCalls   int
	WriteCalls  int
	ReadTimeout time.Duration

	// BlockReads causes Read to block until data is added or Close is called
	BlockReads bool

	readCond *sync.Cond
}

// NewTestableSerialPort creates a new TestableSerialPort for testing.
func NewTestableSerialPort() *TestableSerialPort {
	tsp := &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
	tsp.readCond = sync.NewCond(&tsp.mu)
	return tsp
}

func (t *TestableSerialPort) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadCalls++
	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}
	if t.BlockReads {
		for !t.Closed && t.ReadBuffer.Len() == 0 {
			t.readCond.Wait()
		}
	}
	if t.Closed {
		return 0, errors.New("serial port closed")
	}
	return t.ReadBuffer.Read(p)
}

func (t *TestableSerialPort) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.WriteCalls++
	if t.Closed {
		return 0, errors.New("serial port closed")
	}
	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}
	if t.ShortWrite && len(p) > 0 {
		return t.WriteBuffer.Write(p[:len(p)-1])
	}
	return t.WriteBuffer.Write(p)
}

func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	t.readCond.Broadcast()
	return t.CloseError
}

// SetReadTimeout implements TimeoutSerialPorter.
func (t *TestableSerialPort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadTimeout = timeout
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadBuffer.Write(data)
	t.readCond.Signal()
}

// GetWrittenData returns all data written to the port.
func (t *TestableSerialPort) GetWrittenData() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.WriteBuffer.String()
}

// MockSerialPortFactory implements SerialPortFactory for testing.
type MockSerialPortFactory struct {
	mu sync.Mutex

	Port      SerialPorter
	Error     error
	OpenCalls []MockOpenCall
}

// MockOpenCall records details of an Open call.
type MockOpenCall struct {
	Path string
	Opts PortOptions
}

// NewMockSerialPortFactory creates a new MockSerialPortFactory.
func NewMockSerialPortFactory(port SerialPorter) *MockSerialPortFactory {
	return &MockSerialPortFactory{Port: port}
}

func (f *MockSerialPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OpenCalls = append(f.OpenCalls, MockOpenCall{Path: path, Opts: opts})
	if f.Error != nil {
		return nil, f.Error
	}
	return f.Port, nil
}

// LastCall returns the most recent Open call, or nil if none.
func (f *MockSerialPortFactory) LastCall() *MockOpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.OpenCalls) == 0 {
		return nil
	}
	return &f.OpenCalls[len(f.OpenCalls)-1]
}
