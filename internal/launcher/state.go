package launcher

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/noshadows/soundmachine/internal/errors"
	"gopkg.in/yaml.v3"
)

// StateFileName is the launch state file inside the state directory.
const StateFileName = "state.yaml"

// Mode is how workers were started.
type Mode string

const (
	ModeTmux       Mode = "tmux"
	ModeBackground Mode = "background"
)

// State records the most recent launch.
type State struct {
	RunID     string        `yaml:"run_id"`
	Profile   string        `yaml:"profile"`
	Mode      Mode          `yaml:"mode"`
	WorkDir   string        `yaml:"work_dir"`
	StartedAt time.Time     `yaml:"started_at"`
	Workers   []WorkerState `yaml:"workers"`
}

// WorkerState is one started worker.
type WorkerState struct {
	Name      string    `yaml:"name"`
	Session   string    `yaml:"session"`
	Mode      Mode      `yaml:"mode"`
	PID       int       `yaml:"pid,omitempty"`
	// Identity pins PID to the process that was started, see proc.Identity.
	Identity  string    `yaml:"identity,omitempty"`
	LogFile   string    `yaml:"log_file,omitempty"`
	Argv      []string  `yaml:"argv,flow"`
	StartedAt time.Time `yaml:"started_at"`
}

// NewState starts a state record for a new run.
func NewState(profile, workDir string, mode Mode) *State {
	return &State{
		RunID:     uuid.NewString(),
		Profile:   profile,
		Mode:      mode,
		WorkDir:   workDir,
		StartedAt: time.Now(),
	}
}

// StatePath returns the state file path for stateDir.
func StatePath(stateDir string) string {
	return filepath.Join(stateDir, StateFileName)
}

// LoadState reads the state file. A missing file yields an empty State.
func LoadState(stateDir string) (*State, error) {
	data, err := os.ReadFile(StatePath(stateDir))
	if err != nil {
		if os.IsNotExist(err) {
			return &State{}, nil
		}
		return nil, errors.Wrap(err, "failed to read launch state")
	}

	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, errors.Wrap(err, "failed to parse launch state")
	}
	return &st, nil
}

// Save writes the state file atomically.
func (s *State) Save(stateDir string) error {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return errors.Wrap(err, "failed to create state directory")
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "failed to marshal launch state")
	}

	path := StatePath(stateDir)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write launch state")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "failed to write launch state")
	}
	return nil
}

// Worker returns the record for name, or nil.
func (s *State) Worker(name string) *WorkerState {
	for i := range s.Workers {
		if s.Workers[i].Name == name {
			return &s.Workers[i]
		}
	}
	return nil
}

// Put adds or replaces the record for w.Name.
func (s *State) Put(w WorkerState) {
	if existing := s.Worker(w.Name); existing != nil {
		*existing = w
		return
	}
	s.Workers = append(s.Workers, w)
}

// Drop removes the record for name.
func (s *State) Drop(name string) {
	kept := s.Workers[:0]
	for _, w := range s.Workers {
		if w.Name != name {
			kept = append(kept, w)
		}
	}
	s.Workers = kept
}
