package display

// A screen turns a state and its tick count into the lines to draw. The
// table is indexed by Kind, so a new Kind without a screen fails the
// coverage test rather than falling through a switch.
type screen func(s State, tick uint32) []string

var screens = [kindCount]screen{
	Welcome: func(State, uint32) []string {
		return []string{"Handheld", "Press any key"}
	},
	Home: func(State, uint32) []string {
		return []string{"Home", "S: settings", "Enter: ask"}
	},
	Settings: func(State, uint32) []string {
		return []string{"Settings", "* Network", "* Display", "* About", "B: back"}
	},
	Thinking: func(_ State, tick uint32) []string {
		return []string{"Thinking", thinkingDots[(tick/10)%4]}
	},
	Dizzy: func(_ State, tick uint32) []string {
		return []string{"Ah! So dizzy!", dizzyText[(tick/5)%3], "Please stop shaking"}
	},
	Tilted: func(State, uint32) []string {
		return []string{"Device is tilting", "Please keep the device level"}
	},
	Error: func(s State, _ uint32) []string {
		return []string{"Error", s.Message}
	},
}

var thinkingDots = [4]string{"   ", ".  ", ".. ", "..."}

var dizzyText = [3]string{"Shaking...", "Spinning...", "Feeling dizzy..."}

// Frame returns the lines shown for s at the given tick.
func Frame(s State, tick uint32) []string {
	if s.Kind < 0 || s.Kind >= kindCount || screens[s.Kind] == nil {
		return []string{s.String()}
	}
	return screens[s.Kind](s, tick)
}
