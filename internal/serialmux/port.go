package serialmux

import (
	"io"
	"time"
)

// SerialPorter is the minimal port surface the mux needs.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter is implemented by ports that support a read deadline.
type TimeoutSerialPorter interface {
	SerialPorter
	SetReadTimeout(timeout time.Duration) error
}

// SerialPortFactory opens ports. The sensor driver takes one so tests can
// substitute a fake device.
type SerialPortFactory interface {
	Open(path string, opts PortOptions) (SerialPorter, error)
}
