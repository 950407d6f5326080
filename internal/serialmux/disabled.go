package serialmux

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"tailscale.com/tsweb"
)

// ErrNoDevice is returned by commands sent to an IMU that was never opened.
var ErrNoDevice = errors.New("no IMU serial port configured")

// DisabledSerialMux stands in for the IMU when no port is given. It never
// yields a line, so the sensor driver sees no samples and the device reads
// as Still. Tail readers block until they unsubscribe or the mux closes.
type DisabledSerialMux struct {
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	readers map[string]chan string
}

func NewDisabledSerialMux() *DisabledSerialMux {
	return &DisabledSerialMux{
		done:    make(chan struct{}),
		readers: make(map[string]chan string),
	}
}

func (d *DisabledSerialMux) closed() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// Subscribe hands out a channel that is only ever closed.
func (d *DisabledSerialMux) Subscribe() (string, chan string) {
	id, ch := randomID(), make(chan string)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed() {
		close(ch)
	} else {
		d.readers[id] = ch
	}
	return id, ch
}

func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.mu.Lock()
	ch, ok := d.readers[id]
	delete(d.readers, id)
	d.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Subscribers reports how many tail readers are attached.
func (d *DisabledSerialMux) Subscribers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.readers)
}

func (d *DisabledSerialMux) SendCommand(command string) error {
	return fmt.Errorf("send %q: %w", command, ErrNoDevice)
}

// Initialise has no device to configure. It logs once so a missing --port
// flag is visible at startup.
func (d *DisabledSerialMux) Initialise() error {
	logf("IMU disabled: %v, motion will read as still", ErrNoDevice)
	return nil
}

// Monitor idles until ctx ends or the mux is closed.
func (d *DisabledSerialMux) Monitor(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return nil
	}
}

func (d *DisabledSerialMux) Close() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		close(d.done)
		for id, ch := range d.readers {
			close(ch)
			delete(d.readers, id)
		}
	})
	return nil
}

// AttachAdminRoutes mounts the same debug paths as the live console so the
// admin index looks alike with or without a device.
func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("imu", "IMU console (disabled)", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "IMU disabled: %v\nstart with --port to attach a device\n", ErrNoDevice)
	})

	unavailable := func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, ErrNoDevice.Error(), http.StatusServiceUnavailable)
	}
	debug.HandleSilentFunc("send-command-api", unavailable)
	debug.HandleSilentFunc("tail", unavailable)
}
