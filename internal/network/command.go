// Package network runs the connectivity actor. Commands are executed one at
// a time on the actor's goroutine and every command yields exactly one
// NetworkResultEvent on the bus, bracketed by status events.
package network

import (
	"errors"
	"fmt"

	"github.com/banshee-data/handheld/internal/eventbus"
)

var (
	// ErrQueueFull is returned when the command queue cannot take another
	// command without blocking.
	ErrQueueFull = errors.New("network: command queue full")
	// ErrStopped is returned once the actor goroutine has exited.
	ErrStopped = errors.New("network: actor stopped")
	// ErrTimeout wraps a command that ran past its deadline.
	ErrTimeout = errors.New("network: command timed out")
)

// MinPasswordLen is the WPA2 passphrase minimum.
const MinPasswordLen = 8

// Credentials identify one access point.
type Credentials struct {
	SSID     string `json:"ssid"`
	Password string `json:"password,omitempty"`
}

// Validate rejects credentials no access point would accept. An empty
// password selects an open network.
func (c Credentials) Validate() error {
	if c.SSID == "" {
		return errors.New("ssid is required")
	}
	if len(c.SSID) > 32 {
		return fmt.Errorf("ssid %q longer than 32 bytes", c.SSID)
	}
	if c.Password != "" && len(c.Password) < MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLen)
	}
	return nil
}

// Command is one request for the actor.
type Command struct {
	Kind  eventbus.NetworkCommand
	Creds Credentials // Connect only
}

func ConnectCommand(creds Credentials) Command {
	return Command{Kind: eventbus.CommandConnect, Creds: creds}
}

func DisconnectCommand() Command { return Command{Kind: eventbus.CommandDisconnect} }

func ScanCommand() Command { return Command{Kind: eventbus.CommandScan} }

func StatusCommand() Command { return Command{Kind: eventbus.CommandGetStatus} }

// ParseCommand maps the command names used by the admin API.
func ParseCommand(name string, creds Credentials) (Command, error) {
	switch name {
	case "connect":
		return ConnectCommand(creds), nil
	case "disconnect":
		return DisconnectCommand(), nil
	case "scan":
		return ScanCommand(), nil
	case "status":
		return StatusCommand(), nil
	default:
		return Command{}, fmt.Errorf("unknown network command %q", name)
	}
}
