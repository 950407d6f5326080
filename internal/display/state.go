// Package display holds the UI state machine and the screens it renders.
package display

import "fmt"

// Kind is the display state without its payload.
type Kind int

const (
	Welcome Kind = iota
	Home
	Settings
	Thinking
	Dizzy
	Tilted
	Error

	kindCount
)

var kindNames = [kindCount]string{
	Welcome:  "welcome",
	Home:     "home",
	Settings: "settings",
	Thinking: "thinking",
	Dizzy:    "dizzy",
	Tilted:   "tilted",
	Error:    "error",
}

func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), true
		}
	}
	return 0, false
}

// State is what the screen shows. Message is only set for Error. Two states
// are the same state when both fields are equal.
type State struct {
	Kind    Kind
	Message string
}

func (s State) String() string {
	if s.Kind == Error {
		return fmt.Sprintf("error(%s)", s.Message)
	}
	return s.Kind.String()
}
