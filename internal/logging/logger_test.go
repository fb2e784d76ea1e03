package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/noshadows/soundmachine/internal/errors"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("log line is not JSON: %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNewLogger(t *testing.T) {
	t.Run("creates component log file", func(t *testing.T) {
		dir := t.TempDir()

		logger, err := NewLogger(dir, "launcher", LevelDebug)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		if _, err := os.Stat(filepath.Join(dir, "launcher.log")); err != nil {
			t.Errorf("log file was not created: %v", err)
		}
	})

	t.Run("writes to stderr when logDir is empty", func(t *testing.T) {
		logger, err := NewLogger("", "launcher", LevelInfo)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		if logger.out != nil {
			t.Error("expected no file when logDir is empty")
		}
		if err := logger.Close(); err != nil {
			t.Errorf("Close() = %v, want nil", err)
		}
	})
}

func TestLogger_LevelFiltering(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, "player", LevelWarn)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")
	logger.Close()

	lines := readLines(t, filepath.Join(dir, "player.log"))
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0]["msg"] != "warn message" || lines[1]["msg"] != "error message" {
		t.Errorf("unexpected messages: %v, %v", lines[0]["msg"], lines[1]["msg"])
	}
}

func TestLogger_ContextAttributes(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, "launcher", LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	child := logger.WithWorker("audio").WithSession("audio-player").With("pid", 42)
	child.Info("started")
	logger.Info("parent only")
	logger.Close()

	lines := readLines(t, filepath.Join(dir, "launcher.log"))
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	first := lines[0]
	if first["component"] != "launcher" {
		t.Errorf("component = %v, want launcher", first["component"])
	}
	if first["worker"] != "audio" || first["session"] != "audio-player" {
		t.Errorf("worker/session = %v/%v", first["worker"], first["session"])
	}
	if first["pid"] != float64(42) {
		t.Errorf("pid = %v, want 42", first["pid"])
	}
	if _, ok := lines[1]["worker"]; ok {
		t.Error("parent logger should not inherit child attributes")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"Warn":    LevelWarn,
		"error":   LevelError,
		"verbose": LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	logger.WithWorker("rfid").Error("discarded")
	if err := logger.Close(); err != nil {
		t.Errorf("Close() = %v, want nil", err)
	}
}

func TestLogger_LogErrorUsesSeverity(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, "player", LevelDebug)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.LogError("sync failed", errors.NewSyncError("listing request failed", errors.ErrRemoteUnavailable))
	logger.LogError("spawn failed", errors.NewLaunchError("boom", errors.ErrSpawnFailed).WithWorker("rfid"))
	logger.LogError("no reader", errors.NewTimeoutError("waiting for a reader", time.Second))
	logger.LogError("plain", errors.New("unclassified"))
	logger.LogError("no work dir", errors.NewLaunchError("not a directory", errors.ErrWorkDirUnavailable).
		WithSeverity(errors.SeverityCritical))
	logger.Close()

	lines := readLines(t, filepath.Join(dir, "player.log"))
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5", len(lines))
	}

	tests := []struct {
		level     string
		retryable bool
		critical  bool
	}{
		{LevelWarn, true, false},
		{LevelError, false, false},
		{LevelWarn, true, false},
		{LevelError, false, false},
		{LevelError, false, true},
	}
	for i, tt := range tests {
		line := lines[i]
		if line["level"] != tt.level {
			t.Errorf("%v: level = %v, want %s", line["msg"], line["level"], tt.level)
		}
		if _, ok := line["error"]; !ok {
			t.Errorf("%v: missing error attribute", line["msg"])
		}
		if got := line["retryable"] == true; got != tt.retryable {
			t.Errorf("%v: retryable = %v, want %v", line["msg"], got, tt.retryable)
		}
		if got := line["critical"] == true; got != tt.critical {
			t.Errorf("%v: critical = %v, want %v", line["msg"], got, tt.critical)
		}
	}
}
