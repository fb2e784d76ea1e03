package tmux

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/noshadows/soundmachine/internal/testutil"
)

func TestNew(t *testing.T) {
	if c := New(""); c.Socket != DefaultSocket {
		t.Errorf("New(\"\").Socket = %q, want %q", c.Socket, DefaultSocket)
	}
	if c := New("other"); c.Socket != "other" {
		t.Errorf("New(\"other\").Socket = %q, want %q", c.Socket, "other")
	}
}

func TestCommandContextWithSocket(t *testing.T) {
	cmd := CommandContextWithSocket(context.Background(), "soundmachine", "list-sessions")
	want := []string{"tmux", "-L", "soundmachine", "list-sessions"}

	if len(cmd.Args) != len(want) {
		t.Fatalf("Args = %v, want %v", cmd.Args, want)
	}
	for i := range want {
		if cmd.Args[i] != want[i] {
			t.Errorf("Args[%d] = %q, want %q", i, cmd.Args[i], want[i])
		}
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "''"},
		{"--sync-interval=60", "--sync-interval=60"},
		{"/usr/bin/soundmachine", "/usr/bin/soundmachine"},
		{"hw:0,0", "hw:0,0"},
		{"two words", "'two words'"},
		{"it's", `'it'\''s'`},
		{"$HOME", "'$HOME'"},
		{"a;rm -rf /", "'a;rm -rf /'"},
	}
	for _, tt := range tests {
		if got := ShellQuote(tt.in); got != tt.want {
			t.Errorf("ShellQuote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestShellJoin(t *testing.T) {
	got := ShellJoin([]string{"python3", "scripts/audio-player.py", "--sync-interval=60", "my file.mp3"})
	want := "python3 scripts/audio-player.py --sync-interval=60 'my file.mp3'"
	if got != want {
		t.Errorf("ShellJoin() = %q, want %q", got, want)
	}
}

func TestParseSessions(t *testing.T) {
	out := "audio-player\t1234\t1760868000\nrfid-reader\t99\tbogus\n\nbroken line\n"
	sessions := parseSessions(out)

	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2: %+v", len(sessions), sessions)
	}
	if sessions[0].Name != "audio-player" || sessions[0].PanePID != 1234 {
		t.Errorf("sessions[0] = %+v", sessions[0])
	}
	if !sessions[0].Created.Equal(time.Unix(1760868000, 0)) {
		t.Errorf("sessions[0].Created = %v", sessions[0].Created)
	}
	if !sessions[1].Created.IsZero() {
		t.Errorf("unparseable created time should be zero, got %v", sessions[1].Created)
	}
}

func TestClient_SessionLifecycle(t *testing.T) {
	testutil.SkipIfNoTmux(t)

	ctx := context.Background()
	c := New(fmt.Sprintf("soundmachine-test-%d", os.Getpid()))
	t.Cleanup(func() {
		_ = c.command(context.Background(), "kill-server").Run()
	})

	exists, err := c.HasSession(ctx, "worker")
	if err != nil {
		t.Fatalf("HasSession failed: %v", err)
	}
	if exists {
		t.Fatal("session should not exist before NewSession")
	}

	if err := c.NewSession(ctx, "worker", t.TempDir(), []string{"sleep", "30"}); err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	exists, err = c.HasSession(ctx, "worker")
	if err != nil || !exists {
		t.Fatalf("HasSession after NewSession = %v, %v", exists, err)
	}
	if pid := c.PanePID(ctx, "worker"); pid <= 0 {
		t.Errorf("PanePID = %d, want > 0", pid)
	}

	sessions, err := c.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Name != "worker" {
		t.Errorf("ListSessions = %+v", sessions)
	}

	if err := c.KillSession(ctx, "worker"); err != nil {
		t.Fatalf("KillSession failed: %v", err)
	}
	if exists, _ := c.HasSession(ctx, "worker"); exists {
		t.Error("session still exists after KillSession")
	}

	// Killing a missing session is a no-op.
	if err := c.KillSession(ctx, "worker"); err != nil {
		t.Errorf("second KillSession = %v, want nil", err)
	}
}
