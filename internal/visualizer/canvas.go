package visualizer

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/noshadows/soundmachine/internal/errors"
	"github.com/noshadows/soundmachine/internal/sounds"
)

// Renderer names accepted by NewCanvas.
const (
	RendererTerminal = "terminal"
	RendererNull     = "null"
)

// Canvas displays frames.
type Canvas interface {
	// Run blocks until ctx is done or the canvas is closed by its user.
	Run(ctx context.Context) error
	// Draw replaces the displayed frame.
	Draw(f *Frame)
}

// NewCanvas returns the canvas for renderer. The terminal renderer needs
// stdout to be a terminal; otherwise frames are discarded and ok is false.
func NewCanvas(renderer string) (c Canvas, ok bool, err error) {
	switch renderer {
	case RendererNull:
		return &NullCanvas{}, true, nil
	case RendererTerminal, "":
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return &NullCanvas{}, false, nil
		}
		return NewTerminalCanvas(os.Stdin, os.Stdout), true, nil
	}
	return nil, false, errors.NewValidationError("unknown renderer").
		WithField("visualizer.renderer").WithValue(renderer)
}

// NullCanvas counts frames and shows nothing.
type NullCanvas struct {
	frames atomic.Int64
}

// Run waits for ctx.
func (c *NullCanvas) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// Draw discards f.
func (c *NullCanvas) Draw(*Frame) {
	c.frames.Add(1)
}

// Frames returns how many frames were drawn.
func (c *NullCanvas) Frames() int64 {
	return c.frames.Load()
}

var labelStyle = lipgloss.NewStyle().Faint(true)

func hexColor(c sounds.Color) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B))
}

// RenderFrame draws f with upper half blocks, two pixel rows per text line:
// the foreground is the top pixel and the background the bottom one.
func RenderFrame(f *Frame) string {
	var b strings.Builder
	for y := 0; y < f.Height; y += 2 {
		for x := 0; x < f.Width; x++ {
			style := lipgloss.NewStyle().
				Foreground(hexColor(f.At(x, y))).
				Background(hexColor(f.At(x, y+1)))
			b.WriteString(style.Render("▀"))
		}
		b.WriteByte('\n')
	}
	if f.Label != "" {
		b.WriteString(labelStyle.Render(f.Label))
		b.WriteByte('\n')
	}
	return b.String()
}

type frameMsg string

type canvasModel struct {
	view string
}

func (m canvasModel) Init() tea.Cmd { return nil }

func (m canvasModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case frameMsg:
		m.view = string(msg)
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m canvasModel) View() string { return m.view }

// TerminalCanvas shows frames full screen in a terminal. Pressing q quits.
type TerminalCanvas struct {
	in  io.Reader
	out io.Writer

	mu      sync.Mutex
	program *tea.Program
}

// NewTerminalCanvas returns a canvas reading keys from in and drawing to out.
func NewTerminalCanvas(in io.Reader, out io.Writer) *TerminalCanvas {
	return &TerminalCanvas{in: in, out: out}
}

// Run shows the canvas until ctx is done or the user quits.
func (c *TerminalCanvas) Run(ctx context.Context) error {
	p := tea.NewProgram(canvasModel{},
		tea.WithContext(ctx),
		tea.WithInput(c.in),
		tea.WithOutput(c.out),
		tea.WithAltScreen(),
	)
	c.mu.Lock()
	c.program = p
	c.mu.Unlock()

	_, err := p.Run()

	c.mu.Lock()
	c.program = nil
	c.mu.Unlock()

	if err != nil && ctx.Err() != nil && errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// Draw sends f to the running program. Frames drawn while the program is not
// running are dropped.
func (c *TerminalCanvas) Draw(f *Frame) {
	c.mu.Lock()
	p := c.program
	c.mu.Unlock()
	if p != nil {
		p.Send(frameMsg(RenderFrame(f)))
	}
}
