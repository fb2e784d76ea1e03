// Package tmux runs worker sessions on an isolated tmux server.
//
// Every command goes through `tmux -L <socket>`, so soundmachine sessions live
// on their own server and never collide with sessions the user runs by hand.
package tmux

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/noshadows/soundmachine/internal/errors"
	"github.com/noshadows/soundmachine/internal/proc"
)

// DefaultSocket is the tmux socket name used when none is configured.
const DefaultSocket = "soundmachine"

// commandTimeout bounds individual tmux invocations.
const commandTimeout = 5 * time.Second

// Session describes a running tmux session.
type Session struct {
	Name    string
	PanePID int
	Created time.Time
}

// Client issues tmux commands against one socket.
type Client struct {
	Socket string
	// GracefulTimeout is how long KillSession waits after Ctrl+C.
	GracefulTimeout time.Duration
}

// New returns a Client for socket, falling back to DefaultSocket.
func New(socket string) *Client {
	if socket == "" {
		socket = DefaultSocket
	}
	return &Client{Socket: socket, GracefulTimeout: proc.DefaultGracePeriod}
}

// Available reports whether the tmux binary is on PATH.
func Available() bool {
	_, err := exec.LookPath("tmux")
	return err == nil
}

// CommandContextWithSocket creates a context-aware exec.Cmd for tmux on socket.
func CommandContextWithSocket(ctx context.Context, socket string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, "tmux", CommandArgsWithSocket(socket, args...)...)
}

// CommandArgsWithSocket returns tmux arguments prefixed with the socket flag.
func CommandArgsWithSocket(socket string, args ...string) []string {
	return append([]string{"-L", socket}, args...)
}

func (c *Client) command(ctx context.Context, args ...string) *exec.Cmd {
	return CommandContextWithSocket(ctx, c.Socket, args...)
}

// run executes a tmux command and folds stderr into the returned error.
func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := c.command(ctx, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, errors.Wrap(err, msg)
		}
		return out, err
	}
	return out, nil
}

// target returns an exact-match target so "audio" never matches "audio-player".
func target(name string) string {
	return "=" + name
}

// HasSession reports whether the named session exists.
// A missing server counts as a missing session.
func (c *Client) HasSession(ctx context.Context, name string) (bool, error) {
	_, err := c.run(ctx, "has-session", "-t", target(name))
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, err
}

// NewSession starts argv detached in a new session named name, in dir.
func (c *Client) NewSession(ctx context.Context, name, dir string, argv []string) error {
	if len(argv) == 0 {
		return errors.NewLaunchError("empty command", errors.ErrSpawnFailed).WithSession(name)
	}

	args := []string{"new-session", "-d", "-s", name}
	if dir != "" {
		args = append(args, "-c", dir)
	}
	args = append(args, ShellJoin(argv))

	if _, err := c.run(ctx, args...); err != nil {
		return errors.NewLaunchError("tmux new-session failed: "+err.Error(), errors.ErrSpawnFailed).
			WithSession(name).WithRetryable(true)
	}

	// A crashed worker should leave no dead pane behind, so the supervisor
	// sees the session disappear.
	_, _ = c.run(ctx, "set-option", "-t", target(name), "remain-on-exit", "off")
	return nil
}

// PanePID returns the PID of the process in the session's pane, or 0.
func (c *Client) PanePID(ctx context.Context, name string) int {
	out, err := c.run(ctx, "display-message", "-t", target(name), "-p", "#{pane_pid}")
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(out)))
	if err != nil {
		return 0
	}
	return pid
}

// KillSession stops the named session. The pane gets Ctrl+C and
// GracefulTimeout to exit, then the session is killed and any surviving
// processes of the pane tree are force-killed. Missing sessions are ignored.
func (c *Client) KillSession(ctx context.Context, name string) error {
	exists, err := c.HasSession(ctx, name)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	tree := proc.Tree(ctx, c.PanePID(ctx, name))

	_, _ = c.run(ctx, "send-keys", "-t", target(name), "C-c")
	if len(tree) > 0 {
		proc.WaitExit(ctx, tree[0], c.GracefulTimeout)
	}

	if _, err := c.run(ctx, "kill-session", "-t", target(name)); err != nil {
		if still, _ := c.HasSession(ctx, name); still {
			return errors.NewLaunchError("tmux kill-session failed: "+err.Error(), nil).WithSession(name)
		}
	}

	proc.KillAll(tree)
	return nil
}

// ListSessions returns all sessions on the socket. No server means no sessions.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	out, err := c.run(ctx, "list-sessions", "-F", "#{session_name}\t#{pane_pid}\t#{session_created}")
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, nil
		}
		return nil, err
	}
	return parseSessions(string(out)), nil
}

func parseSessions(out string) []Session {
	var sessions []Session
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) != 3 || fields[0] == "" {
			continue
		}
		s := Session{Name: fields[0]}
		s.PanePID, _ = strconv.Atoi(fields[1])
		if secs, err := strconv.ParseInt(fields[2], 10, 64); err == nil {
			s.Created = time.Unix(secs, 0)
		}
		sessions = append(sessions, s)
	}
	return sessions
}

// ShellQuote quotes s for a POSIX shell when it contains special characters.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !isShellSafe(r) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func isShellSafe(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	return strings.ContainsRune("-_./=:,+@%", r)
}

// ShellJoin quotes and joins argv into one shell command line.
func ShellJoin(argv []string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		quoted[i] = ShellQuote(arg)
	}
	return strings.Join(quoted, " ")
}
