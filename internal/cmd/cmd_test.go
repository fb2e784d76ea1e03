package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/noshadows/soundmachine/internal/testutil"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

// setupEnv points the configuration at a fresh work directory and log
// directory through environment variables.
func setupEnv(t *testing.T) (workDir, logDir string) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	workDir = t.TempDir()
	logDir = filepath.Join(t.TempDir(), "logs")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("SOUNDMACHINE_LAUNCHER_WORK_DIR", workDir)
	t.Setenv("SOUNDMACHINE_LOGGING_DIR", logDir)
	return workDir, logDir
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "soundmachine" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "soundmachine")
	}

	expectedCmds := []string{"start", "resync", "stop", "status", "logs", "config", "player", "rfid", "visualizer", "sync"}
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}

	for _, expected := range expectedCmds {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}
}

func TestConfigShow(t *testing.T) {
	workDir, _ := setupEnv(t)

	output, err := executeCommand(rootCmd, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v\nOutput: %s", err, output)
	}

	for _, want := range []string{
		"# Config file: (none - using defaults)",
		"work_dir: " + workDir,
		"session: audio-player",
		"--sync-interval=60",
		"remote_url: https://labs.noshado.ws/sound-machine-storage",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("config show output missing %q\nOutput: %s", want, output)
		}
	}
}

func TestConfigShow_Invalid(t *testing.T) {
	setupEnv(t)
	t.Setenv("SOUNDMACHINE_LOGGING_LEVEL", "loud")

	_, err := executeCommand(rootCmd, "config", "show")
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("expected invalid configuration error, got %v", err)
	}
}

func TestConfigInit(t *testing.T) {
	setupEnv(t)
	configInitForce = false

	output, err := executeCommand(rootCmd, "config", "init")
	if err != nil {
		t.Fatalf("config init failed: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(output, "Created config file") {
		t.Errorf("unexpected output: %s", output)
	}

	if _, err := executeCommand(rootCmd, "config", "init"); err == nil {
		t.Error("config init should refuse to overwrite an existing file")
	}
}

func TestStart_UnusableWorkDir(t *testing.T) {
	setupEnv(t)
	missing := filepath.Join(t.TempDir(), "missing")
	t.Setenv("SOUNDMACHINE_LAUNCHER_WORK_DIR", missing)

	_, err := executeCommand(rootCmd, "start")
	if err == nil {
		t.Fatal("start should fail when the work directory does not exist")
	}
	if !strings.Contains(err.Error(), "cannot enter work directory") {
		t.Errorf("unexpected error: %v", err)
	}
	if _, statErr := os.Stat(missing); !os.IsNotExist(statErr) {
		t.Errorf("start should not create the work directory, stat err = %v", statErr)
	}
}

const sampleLogs = `{"time":"2026-03-01T10:00:00Z","level":"INFO","msg":"playing","component":"player","tag":"0008479619"}
{"time":"2026-03-01T10:00:02Z","level":"WARN","msg":"no audio file for tag","component":"player","tag":"0000000404"}
not json
`

const sampleLauncherLogs = `{"time":"2026-03-01T10:00:01Z","level":"ERROR","msg":"worker failed to start","component":"launcher","worker":"rfid"}
`

func resetLogsFlags() {
	logsTail, logsFollow = 50, false
	logsLevel, logsSince, logsGrep = "", "", ""
	logsComponent, logsWorker = "", ""
	logsNoColor = true
}

func TestLogs(t *testing.T) {
	_, logDir := setupEnv(t)
	testutil.WriteFile(t, filepath.Join(logDir, "player.log"), sampleLogs)
	testutil.WriteFile(t, filepath.Join(logDir, "launcher.log"), sampleLauncherLogs)

	tests := []struct {
		name    string
		args    []string
		want    []string
		notWant []string
	}{
		{
			name: "merged in time order",
			args: []string{"logs", "--no-color"},
			want: []string{"playing", "worker failed to start", "no audio file for tag"},
		},
		{
			name:    "level",
			args:    []string{"logs", "--no-color", "--level", "warn"},
			want:    []string{"no audio file", "worker failed"},
			notWant: []string{"playing"},
		},
		{
			name:    "component",
			args:    []string{"logs", "--no-color", "--component", "launcher"},
			want:    []string{"worker=rfid"},
			notWant: []string{"playing"},
		},
		{
			name:    "grep searches attributes",
			args:    []string{"logs", "--no-color", "--grep", "0000000404"},
			want:    []string{"no audio file for tag"},
			notWant: []string{"playing"},
		},
		{
			name:    "tail",
			args:    []string{"logs", "--no-color", "-n", "1"},
			want:    []string{"no audio file for tag"},
			notWant: []string{"worker failed"},
		},
		{
			name: "nothing matches",
			args: []string{"logs", "--no-color", "--worker", "visualizer"},
			want: []string{"No matching log entries found."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetLogsFlags()
			output, err := executeCommand(rootCmd, tt.args...)
			if err != nil {
				t.Fatalf("logs failed: %v", err)
			}

			last := -1
			for _, want := range tt.want {
				idx := strings.Index(output, want)
				if idx < 0 {
					t.Errorf("output missing %q\nOutput: %s", want, output)
					continue
				}
				if tt.name == "merged in time order" && idx < last {
					t.Errorf("%q out of order\nOutput: %s", want, output)
				}
				last = idx
			}
			for _, notWant := range tt.notWant {
				if strings.Contains(output, notWant) {
					t.Errorf("output should not contain %q\nOutput: %s", notWant, output)
				}
			}
		})
	}
}

func TestLogs_InvalidFlags(t *testing.T) {
	_, logDir := setupEnv(t)
	testutil.WriteFile(t, filepath.Join(logDir, "player.log"), sampleLogs)

	resetLogsFlags()
	if _, err := executeCommand(rootCmd, "logs", "--since", "yesterday"); err == nil {
		t.Error("expected an error for an invalid duration")
	}
	resetLogsFlags()
	if _, err := executeCommand(rootCmd, "logs", "--grep", "("); err == nil {
		t.Error("expected an error for an invalid pattern")
	}
}
