package eventbus

import (
	"time"

	"github.com/banshee-data/handheld/internal/motion"
)

// Event is the closed set of messages carried by the bus. Events are values:
// the producer builds one, sends it, and never touches it again.
type Event interface {
	isEvent()
}

// MotionEvent reports the sensor actor's classification. Heartbeat is set
// when the state has not changed since the previous publish.
type MotionEvent struct {
	State          motion.MotionState
	Heartbeat      bool
	AccelMagnitude float64
	GyroMagnitude  float64
	TiltAngle      float64
	At             time.Time
}

// NetworkStatusKind is the connectivity state reported by the network actor.
type NetworkStatusKind int

const (
	StatusDisconnected NetworkStatusKind = iota
	StatusConnecting
	StatusConnected
	StatusScanning
	StatusError
)

func (k NetworkStatusKind) String() string {
	switch k {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusScanning:
		return "scanning"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// NetworkStatusEvent is an intermediate or unsolicited status change.
type NetworkStatusEvent struct {
	Status NetworkStatusKind
	Detail string
}

// NetworkCommand identifies the operation a NetworkResultEvent answers.
type NetworkCommand int

const (
	CommandConnect NetworkCommand = iota
	CommandDisconnect
	CommandScan
	CommandGetStatus
)

func (c NetworkCommand) String() string {
	switch c {
	case CommandConnect:
		return "connect"
	case CommandDisconnect:
		return "disconnect"
	case CommandScan:
		return "scan"
	case CommandGetStatus:
		return "status"
	default:
		return "unknown"
	}
}

// NetworkResultEvent is the single terminal result of one network command.
type NetworkResultEvent struct {
	Command  NetworkCommand
	Status   NetworkStatusKind
	Address  string   // set by a successful connect
	Networks []string // set by a successful scan
	Err      string   // empty on success
}

// OK reports whether the command succeeded.
func (e NetworkResultEvent) OK() bool {
	return e.Err == ""
}

// SystemFaultEvent reports a fault that the UI must surface.
type SystemFaultEvent struct {
	Source string
	Reason string
}

// UserInput is a discrete input gesture.
type UserInput int

const (
	InputPress UserInput = iota
	InputConfirm
	InputCancel
	InputSettings
	InputBack
)

var userInputNames = map[UserInput]string{
	InputPress:    "press",
	InputConfirm:  "confirm",
	InputCancel:   "cancel",
	InputSettings: "settings",
	InputBack:     "back",
}

func (u UserInput) String() string {
	if name, ok := userInputNames[u]; ok {
		return name
	}
	return "unknown"
}

// ParseUserInput is the inverse of UserInput.String.
func ParseUserInput(s string) (UserInput, bool) {
	for u, name := range userInputNames {
		if name == s {
			return u, true
		}
	}
	return 0, false
}

// UserInputEvent carries one input gesture.
type UserInputEvent struct {
	Input UserInput
}

func (MotionEvent) isEvent()        {}
func (NetworkStatusEvent) isEvent() {}
func (NetworkResultEvent) isEvent() {}
func (SystemFaultEvent) isEvent()   {}
func (UserInputEvent) isEvent()     {}
