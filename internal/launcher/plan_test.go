package launcher

import (
	"path/filepath"
	"testing"

	"github.com/noshadows/soundmachine/internal/config"
	"github.com/noshadows/soundmachine/internal/errors"
)

func TestBuildPlan(t *testing.T) {
	cfg := config.Default()
	l := New(cfg, WithExecutable("/opt/sm"))
	workDir := "/srv/sound-machine"

	tests := []struct {
		name     string
		profile  string
		patterns []string
		want     map[string][]string
		order    []string
	}{
		{
			name:    "full",
			profile: config.ProfileFull,
			order:   []string{"audio", "visualizer", "rfid"},
			want: map[string][]string{
				"audio": {"/opt/sm", "player", "--sync-interval=60", "--max-downloads=10"},
				"visualizer": {"/opt/sm", "visualizer", "--led-rows=32", "--led-cols=64", "--led-chain=1",
					"--led-parallel=1", "--led-gpio-mapping=adafruit-hat"},
				"rfid": {"/opt/sm", "rfid"},
			},
		},
		{
			name:    "resync",
			profile: config.ProfileResync,
			order:   []string{"audio"},
			want: map[string][]string{
				"audio": {"/opt/sm", "player", "--resync", "--force-update", "--sync-interval=60", "--max-downloads=10"},
			},
		},
		{
			name:     "default profile with pattern",
			profile:  "",
			patterns: []string{"vis*", "rfid"},
			order:    []string{"visualizer", "rfid"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := l.BuildPlan(tt.profile, workDir, tt.patterns)
			if err != nil {
				t.Fatalf("BuildPlan failed: %v", err)
			}
			if len(plan.Workers) != len(tt.order) {
				t.Fatalf("got %d workers, want %d", len(plan.Workers), len(tt.order))
			}
			for i, w := range plan.Workers {
				if w.Name != tt.order[i] {
					t.Errorf("worker %d = %q, want %q", i, w.Name, tt.order[i])
				}
				if want, ok := tt.want[w.Name]; ok {
					if len(w.Argv) != len(want) {
						t.Fatalf("%s argv = %v, want %v", w.Name, w.Argv, want)
					}
					for j := range want {
						if w.Argv[j] != want[j] {
							t.Errorf("%s argv = %v, want %v", w.Name, w.Argv, want)
							break
						}
					}
				}
			}
		})
	}
}

func TestBuildPlan_LogFilesAndSessions(t *testing.T) {
	l := New(config.Default(), WithExecutable("/opt/sm"))

	plan, err := l.BuildPlan(config.ProfileFull, "/srv/sm", nil)
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}

	wantLogs := map[string]string{
		"audio":      "audio-player.log",
		"visualizer": "waveform-visualizer.log",
		"rfid":       "rfid-reader.log",
	}
	for _, w := range plan.Workers {
		if want := filepath.Join("/srv/sm", wantLogs[w.Name]); w.LogFile != want {
			t.Errorf("%s log file = %q, want %q", w.Name, w.LogFile, want)
		}
	}

	sessions := plan.Sessions()
	want := []string{"audio-player", "waveform-visualizer", "rfid-reader"}
	for i := range want {
		if sessions[i] != want[i] {
			t.Errorf("Sessions() = %v, want %v", sessions, want)
			break
		}
	}
}

func TestBuildPlan_ExternalCommandAndConfigFile(t *testing.T) {
	cfg := config.Default()
	cfg.Workers[config.WorkerRFID] = config.WorkerConfig{
		Session: "rfid-reader",
		Command: []string{"python3", "scripts/rfid-reader.py"},
		LogFile: "/var/log/rfid.log",
	}
	l := New(cfg, WithExecutable("/opt/sm"), WithConfigFile("/etc/sm.yaml"))

	plan, err := l.BuildPlan(config.ProfileFull, "/srv/sm", nil)
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}

	audio, rfid := plan.Workers[0], plan.Workers[2]
	if got := audio.Argv[:4]; got[2] != "--config" || got[3] != "/etc/sm.yaml" {
		t.Errorf("audio argv = %v, want --config passed to the subcommand", audio.Argv)
	}
	if len(rfid.Argv) != 2 || rfid.Argv[0] != "python3" {
		t.Errorf("rfid argv = %v, want the configured command", rfid.Argv)
	}
	if rfid.LogFile != "/var/log/rfid.log" {
		t.Errorf("rfid log file = %q, want absolute path kept", rfid.LogFile)
	}
}

func TestBuildPlan_Errors(t *testing.T) {
	l := New(config.Default())

	if _, err := l.BuildPlan("party", "/srv", nil); !errors.Is(err, errors.ErrUnknownProfile) {
		t.Errorf("unknown profile error = %v, want ErrUnknownProfile", err)
	}
	if _, err := l.BuildPlan(config.ProfileResync, "/srv", []string{"rfid"}); !errors.Is(err, errors.ErrUnknownWorker) {
		t.Errorf("unmatched pattern error = %v, want ErrUnknownWorker", err)
	}
	if _, err := l.BuildPlan(config.ProfileFull, "/srv", []string{"[audio"}); err == nil {
		t.Error("expected error for invalid pattern")
	}
}
