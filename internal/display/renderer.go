package display

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Renderer is the panel collaborator. Clear is called once per transition,
// Render once per tick.
type Renderer interface {
	Clear() error
	Render(s State, tick uint32) error
}

// TextRenderer draws frames as single text lines. It skips a frame that is
// identical to the previous one, so a static screen prints once.
type TextRenderer struct {
	w    io.Writer
	last string
}

func NewTextRenderer(w io.Writer) *TextRenderer {
	return &TextRenderer{w: w}
}

func (r *TextRenderer) Clear() error {
	r.last = ""
	return nil
}

func (r *TextRenderer) Render(s State, tick uint32) error {
	frame := fmt.Sprintf("[%s] %s", s.Kind, strings.Join(Frame(s, tick), " | "))
	if frame == r.last {
		return nil
	}
	r.last = frame
	_, err := fmt.Fprintln(r.w, frame)
	return err
}

// Recorder is a Renderer that remembers every call. It is safe to inspect
// from another goroutine.
type Recorder struct {
	mu      sync.Mutex
	clears  int
	renders []Rendered

	// FailRender, when set, is returned by Render.
	FailRender error
}

// Rendered is one recorded Render call.
type Rendered struct {
	State State
	Tick  uint32
}

func (r *Recorder) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
	return nil
}

func (r *Recorder) Render(s State, tick uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders = append(r.renders, Rendered{State: s, Tick: tick})
	return r.FailRender
}

// Clears returns the number of Clear calls.
func (r *Recorder) Clears() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clears
}

// Renders returns a copy of the recorded Render calls.
func (r *Recorder) Renders() []Rendered {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Rendered(nil), r.renders...)
}

// Last returns the most recent Render call.
func (r *Recorder) Last() (Rendered, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.renders) == 0 {
		return Rendered{}, false
	}
	return r.renders[len(r.renders)-1], true
}
