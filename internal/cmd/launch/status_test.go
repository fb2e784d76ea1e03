package launch

import (
	"strings"
	"testing"
	"time"

	"github.com/noshadows/soundmachine/internal/launcher"
)

func TestRenderStatusTable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	statuses := []launcher.WorkerStatus{
		{
			Name:      "audio",
			Session:   "audio-player",
			Mode:      launcher.ModeTmux,
			Running:   true,
			PID:       4242,
			StartedAt: now.Add(-90 * time.Second),
		},
		{
			Name:    "rfid",
			Session: "rfid-reader",
			Mode:    launcher.ModeBackground,
			Running: true,
			LogFile: "rfid-reader.log",
		},
		{Name: "visualizer", Session: "visualizer"},
	}

	out := renderStatusTable(statuses, now)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header plus 3 rows:\n%s", len(lines), out)
	}

	for _, col := range []string{"WORKER", "SESSION", "STATE", "MODE", "PID", "UPTIME", "LOG"} {
		if !strings.Contains(lines[0], col) {
			t.Errorf("header missing %q: %s", col, lines[0])
		}
	}

	checks := []struct {
		line int
		want []string
	}{
		{1, []string{"audio", "audio-player", "running", "tmux", "4242", "1m30s"}},
		{2, []string{"rfid", "rfid-reader", "running", "background", "rfid-reader.log"}},
		{3, []string{"visualizer", "stopped"}},
	}
	for _, c := range checks {
		for _, want := range c.want {
			if !strings.Contains(lines[c.line], want) {
				t.Errorf("line %d missing %q: %s", c.line, want, lines[c.line])
			}
		}
	}

	// Columns line up: every row starts its STATE cell at the same offset.
	stateCol := strings.Index(lines[0], "STATE")
	for i, state := range []string{"running", "running", "stopped"} {
		if got := strings.Index(lines[i+1], state); got != stateCol {
			t.Errorf("row %d: %q at column %d, want %d", i+1, state, got, stateCol)
		}
	}
}

func TestRenderStatusTable_Empty(t *testing.T) {
	out := renderStatusTable(nil, time.Now())
	if strings.Count(out, "\n") != 1 || !strings.Contains(out, "WORKER") {
		t.Errorf("empty table should be the header only, got %q", out)
	}
}
