package visualizer

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noshadows/soundmachine/internal/errors"
	"github.com/noshadows/soundmachine/internal/sounds"
)

func TestNewCanvas(t *testing.T) {
	c, ok, err := NewCanvas(RendererNull)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.IsType(t, &NullCanvas{}, c)

	// Test output is not a terminal.
	c, ok, err = NewCanvas(RendererTerminal)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.IsType(t, &NullCanvas{}, c)

	_, _, err = NewCanvas("hub75")
	var verr *errors.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestNullCanvas(t *testing.T) {
	c := &NullCanvas{}
	c.Draw(NewFrame(1, 1))
	c.Draw(NewFrame(1, 1))
	assert.Equal(t, int64(2), c.Frames())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.NoError(t, c.Run(ctx))
}

func TestRenderFrame(t *testing.T) {
	f := NewFrame(4, 4)
	f.Set(0, 0, sounds.Color{R: 255})
	f.Label = "red 0008479619"

	out := RenderFrame(f)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3, "two pixel rows per line plus the label")
	assert.Equal(t, 8, strings.Count(out, "▀"))
	assert.Contains(t, lines[2], "red 0008479619")
}

func TestRenderFrame_OddHeight(t *testing.T) {
	out := RenderFrame(NewFrame(3, 5))
	assert.Equal(t, 3, strings.Count(out, "\n"))
	assert.Equal(t, 9, strings.Count(out, "▀"))
}

func TestCanvasModel(t *testing.T) {
	var m tea.Model = canvasModel{}
	assert.Nil(t, m.Init())

	m, cmd := m.Update(frameMsg("frame"))
	assert.Nil(t, cmd)
	assert.Equal(t, "frame", m.View())

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}})
	assert.Nil(t, cmd)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestTerminalCanvas_DrawBeforeRun(t *testing.T) {
	c := NewTerminalCanvas(strings.NewReader(""), &strings.Builder{})
	c.Draw(NewFrame(2, 2)) // dropped, must not block
}
