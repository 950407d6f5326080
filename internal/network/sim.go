package network

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// ErrAuth is returned by SimTransport for a wrong passphrase.
var ErrAuth = errors.New("authentication rejected")

// SimTransport is an in-memory access point environment. It backs --dev mode
// and the actor tests. Methods are safe for concurrent use so tests can flip
// the link from outside the actor.
type SimTransport struct {
	mu        sync.Mutex
	networks  map[string]string // ssid -> passphrase
	latency   time.Duration
	linkUp    bool
	address   string
	failNext  error
	connects  int
	lastCreds Credentials
}

// NewSimTransport creates an environment where the given networks are
// visible. The map value is each network's passphrase ("" for open).
func NewSimTransport(networks map[string]string) *SimTransport {
	m := make(map[string]string, len(networks))
	for k, v := range networks {
		m[k] = v
	}
	return &SimTransport{networks: m, address: "192.168.4.23"}
}

// SetLatency makes every call take d, or until ctx ends.
func (s *SimTransport) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// SetLinkUp changes link state without a command, as a dropped association
// or an out-of-band reconnect would.
func (s *SimTransport) SetLinkUp(up bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linkUp = up
}

// FailNext makes the next Connect, Disconnect or Scan return err.
func (s *SimTransport) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// Connects returns how many Connect calls reached the transport.
func (s *SimTransport) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

// LastCredentials returns the credentials of the most recent Connect.
func (s *SimTransport) LastCredentials() Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCreds
}

func (s *SimTransport) wait(ctx context.Context) error {
	s.mu.Lock()
	d := s.latency
	s.mu.Unlock()
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SimTransport) takeFailure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *SimTransport) Connect(ctx context.Context, creds Credentials) (string, error) {
	s.mu.Lock()
	s.connects++
	s.lastCreds = creds
	s.mu.Unlock()

	if err := s.wait(ctx); err != nil {
		return "", err
	}
	if err := s.takeFailure(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	pass, ok := s.networks[creds.SSID]
	if !ok {
		return "", fmt.Errorf("network %q not found", creds.SSID)
	}
	if pass != creds.Password {
		return "", ErrAuth
	}
	s.linkUp = true
	return s.address, nil
}

func (s *SimTransport) Disconnect(ctx context.Context) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	if err := s.takeFailure(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linkUp = false
	return nil
}

func (s *SimTransport) Scan(ctx context.Context) ([]string, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	if err := s.takeFailure(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.networks))
	for name := range s.networks {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

func (s *SimTransport) Connected(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linkUp
}
