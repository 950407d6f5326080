package display

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryKindHasAScreen(t *testing.T) {
	for k := Kind(0); k < kindCount; k++ {
		require.NotNil(t, screens[k], k.String())
		assert.NotEmpty(t, Frame(State{Kind: k}, 0))
	}
	assert.Equal(t, []string{"kind(99)"}, Frame(State{Kind: 99}, 0))
}

func TestThinkingDotsCycle(t *testing.T) {
	var got []string
	for _, tick := range []uint32{0, 9, 10, 20, 30, 40} {
		got = append(got, Frame(State{Kind: Thinking}, tick)[1])
	}
	assert.Equal(t, []string{"   ", "   ", ".  ", ".. ", "...", "   "}, got)
}

func TestDizzyTextCycle(t *testing.T) {
	var got []string
	for _, tick := range []uint32{0, 5, 10, 15} {
		got = append(got, Frame(State{Kind: Dizzy}, tick)[1])
	}
	assert.Equal(t, []string{"Shaking...", "Spinning...", "Feeling dizzy...", "Shaking..."}, got)
}

func TestErrorScreenShowsMessage(t *testing.T) {
	assert.Equal(t, []string{"Error", "wifi down"}, Frame(State{Kind: Error, Message: "wifi down"}, 3))
}

func TestTextRenderer_SkipsUnchangedFrames(t *testing.T) {
	var buf bytes.Buffer
	r := NewTextRenderer(&buf)

	require.NoError(t, r.Render(State{Kind: Home}, 1))
	require.NoError(t, r.Render(State{Kind: Home}, 2))
	require.NoError(t, r.Clear())
	require.NoError(t, r.Render(State{Kind: Home}, 1))
	require.NoError(t, r.Render(State{Kind: Thinking}, 10))

	assert.Equal(t,
		"[home] Home | S: settings | Enter: ask\n"+
			"[home] Home | S: settings | Enter: ask\n"+
			"[thinking] Thinking | .  \n",
		buf.String())
}

func TestKindNames(t *testing.T) {
	for k := Kind(0); k < kindCount; k++ {
		got, ok := ParseKind(k.String())
		require.True(t, ok)
		assert.Equal(t, k, got)
	}
	_, ok := ParseKind("sleeping")
	assert.False(t, ok)
	assert.Equal(t, "error(x)", State{Kind: Error, Message: "x"}.String())
}
