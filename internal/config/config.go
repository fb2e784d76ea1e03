package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Worker names known to the launcher.
const (
	WorkerAudio      = "audio"
	WorkerVisualizer = "visualizer"
	WorkerRFID       = "rfid"
)

// Profile names known to the launcher.
const (
	ProfileFull   = "full"
	ProfileResync = "resync"
)

// Config represents the complete soundmachine configuration
type Config struct {
	Launcher   LauncherConfig           `mapstructure:"launcher" yaml:"launcher"`
	Workers    map[string]WorkerConfig  `mapstructure:"workers" yaml:"workers"`
	Profiles   map[string]ProfileConfig `mapstructure:"profiles" yaml:"profiles"`
	Sync       SyncConfig               `mapstructure:"sync" yaml:"sync"`
	Player     PlayerConfig             `mapstructure:"player" yaml:"player"`
	RFID       RFIDConfig               `mapstructure:"rfid" yaml:"rfid"`
	Visualizer VisualizerConfig         `mapstructure:"visualizer" yaml:"visualizer"`
	Supervise  SuperviseConfig          `mapstructure:"supervise" yaml:"supervise"`
	Metrics    MetricsConfig            `mapstructure:"metrics" yaml:"metrics"`
	Logging    LoggingConfig            `mapstructure:"logging" yaml:"logging"`
}

// LauncherConfig controls how workers are started
type LauncherConfig struct {
	// WorkDir is the directory every worker runs in. Supports ~ expansion.
	WorkDir string `mapstructure:"work_dir" yaml:"work_dir"`
	// Profile is the profile used by `start` when none is given (default: "full")
	Profile string `mapstructure:"profile" yaml:"profile"`
	// InstallTmux runs InstallCommand when tmux is not on PATH (default: true)
	InstallTmux bool `mapstructure:"install_tmux" yaml:"install_tmux"`
	// InstallCommand is the argv used to install tmux
	InstallCommand []string `mapstructure:"install_command" yaml:"install_command"`
	// RequireTmux fails the launch instead of falling back to background processes
	RequireTmux bool `mapstructure:"require_tmux" yaml:"require_tmux"`
	// Socket is the tmux socket name; sessions live on an isolated server
	Socket string `mapstructure:"socket" yaml:"socket"`
	// StopTimeoutMs is how long to wait after Ctrl+C before killing a session
	StopTimeoutMs int `mapstructure:"stop_timeout_ms" yaml:"stop_timeout_ms"`
}

// WorkerConfig describes one worker program
type WorkerConfig struct {
	// Session is the tmux session name
	Session string `mapstructure:"session" yaml:"session"`
	// Command is the argv to run. Empty means run this binary with Subcommand.
	Command []string `mapstructure:"command" yaml:"command,omitempty"`
	// Subcommand is the soundmachine subcommand used when Command is empty
	Subcommand string `mapstructure:"subcommand" yaml:"subcommand,omitempty"`
	// LogFile receives stdout/stderr in background mode, relative to WorkDir
	LogFile string `mapstructure:"log_file" yaml:"log_file"`
}

// ProfileConfig is an ordered list of workers and the flags passed to each
type ProfileConfig struct {
	Workers []ProfileWorker `mapstructure:"workers" yaml:"workers"`
}

// ProfileWorker names a worker and its literal flags within a profile
type ProfileWorker struct {
	Name string   `mapstructure:"name" yaml:"name"`
	Args []string `mapstructure:"args" yaml:"args,omitempty"`
}

// SyncConfig controls synchronization of sounds with the remote store
type SyncConfig struct {
	// RemoteURL is the base URL of the sound store directory listing
	RemoteURL string `mapstructure:"remote_url" yaml:"remote_url"`
	// SoundsDir holds <tag>/{manifest.json,audio.mp3}. Empty means <work_dir>/sounds.
	SoundsDir string `mapstructure:"sounds_dir" yaml:"sounds_dir"`
	// MaxDownloads bounds concurrent tag downloads (default: 10)
	MaxDownloads int `mapstructure:"max_downloads" yaml:"max_downloads"`
	// IntervalMinutes is the periodic sync interval, 0 disables (default: 60)
	IntervalMinutes int `mapstructure:"interval_minutes" yaml:"interval_minutes"`
	// HTTPTimeoutSeconds bounds each request to the remote (default: 30)
	HTTPTimeoutSeconds int `mapstructure:"http_timeout_seconds" yaml:"http_timeout_seconds"`
}

// PlayerConfig controls audio playback
type PlayerConfig struct {
	// FIFO is the named pipe the player reads tags from
	FIFO string `mapstructure:"fifo" yaml:"fifo"`
	// Device is the ALSA output device (default: "hw:0,0")
	Device string `mapstructure:"device" yaml:"device"`
	// Binary is the mp3 player executable (default: "mpg123")
	Binary string `mapstructure:"binary" yaml:"binary"`
	// KillStrays also kills mpg123 processes not started by this player
	KillStrays bool `mapstructure:"kill_strays" yaml:"kill_strays"`
}

// RFIDConfig controls the RFID reader
type RFIDConfig struct {
	// FIFO is the named pipe tags are written to
	FIFO string `mapstructure:"fifo" yaml:"fifo"`
	// DevicesFile lists input devices (default: /proc/bus/input/devices)
	DevicesFile string `mapstructure:"devices_file" yaml:"devices_file"`
	// InputDir holds the event device nodes (default: /dev/input)
	InputDir string `mapstructure:"input_dir" yaml:"input_dir"`
	// DevicePatterns are glob patterns matched against device names
	DevicePatterns []string `mapstructure:"device_patterns" yaml:"device_patterns"`
}

// VisualizerConfig controls the waveform visualizer
type VisualizerConfig struct {
	// FIFO is the named pipe tags are read from
	FIFO string `mapstructure:"fifo" yaml:"fifo"`
	// AudioFIFO is the named pipe tags are forwarded to
	AudioFIFO string `mapstructure:"audio_fifo" yaml:"audio_fifo"`
	// Renderer is "terminal" or "null"
	Renderer string `mapstructure:"renderer" yaml:"renderer"`
	// FrameIntervalMs is the delay between frames (default: 50)
	FrameIntervalMs int `mapstructure:"frame_interval_ms" yaml:"frame_interval_ms"`
	// Brightness is the fixed color brightness, 0-255 (default: 180)
	Brightness int `mapstructure:"brightness" yaml:"brightness"`
}

// SuperviseConfig controls `start --watch`
type SuperviseConfig struct {
	// IntervalMs is how often worker liveness is checked
	IntervalMs int `mapstructure:"interval_ms" yaml:"interval_ms"`
	// InitialBackoffMs is the delay before the first restart
	InitialBackoffMs int `mapstructure:"initial_backoff_ms" yaml:"initial_backoff_ms"`
	// MaxBackoffMs caps the doubling restart delay
	MaxBackoffMs int `mapstructure:"max_backoff_ms" yaml:"max_backoff_ms"`
	// MaxRestarts gives up on a worker after this many consecutive failures (0 = unlimited)
	MaxRestarts int `mapstructure:"max_restarts" yaml:"max_restarts"`
	// StopOnExit stops all workers when the supervisor exits
	StopOnExit bool `mapstructure:"stop_on_exit" yaml:"stop_on_exit"`
}

// MetricsConfig controls the admin HTTP server
type MetricsConfig struct {
	// Enabled starts the admin server for long-running commands
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Addr is the listen address (default: "127.0.0.1:9464")
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir holds component logs. Empty means <work_dir>/.soundmachine/logs.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
	// Compress gzips rotated log files
	Compress bool `mapstructure:"compress" yaml:"compress"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Launcher: LauncherConfig{
			WorkDir:        "/home/fcc-005/sound-machine",
			Profile:        ProfileFull,
			InstallTmux:    true,
			InstallCommand: []string{"sudo", "apt-get", "install", "-y", "tmux"},
			RequireTmux:    false,
			Socket:         "soundmachine",
			StopTimeoutMs:  500,
		},
		Workers: map[string]WorkerConfig{
			WorkerAudio: {
				Session:    "audio-player",
				Subcommand: "player",
				LogFile:    "audio-player.log",
			},
			WorkerVisualizer: {
				Session:    "waveform-visualizer",
				Subcommand: "visualizer",
				LogFile:    "waveform-visualizer.log",
			},
			WorkerRFID: {
				Session:    "rfid-reader",
				Subcommand: "rfid",
				LogFile:    "rfid-reader.log",
			},
		},
		Profiles: map[string]ProfileConfig{
			ProfileFull: {Workers: []ProfileWorker{
				{Name: WorkerAudio, Args: []string{"--sync-interval=60", "--max-downloads=10"}},
				{Name: WorkerVisualizer, Args: []string{
					"--led-rows=32",
					"--led-cols=64",
					"--led-chain=1",
					"--led-parallel=1",
					"--led-gpio-mapping=adafruit-hat",
				}},
				{Name: WorkerRFID},
			}},
			ProfileResync: {Workers: []ProfileWorker{
				{Name: WorkerAudio, Args: []string{"--resync", "--force-update", "--sync-interval=60", "--max-downloads=10"}},
			}},
		},
		Sync: SyncConfig{
			RemoteURL:          "https://labs.noshado.ws/sound-machine-storage",
			SoundsDir:          "", // Empty means <work_dir>/sounds
			MaxDownloads:       10,
			IntervalMinutes:    60,
			HTTPTimeoutSeconds: 30,
		},
		Player: PlayerConfig{
			FIFO:       "/tmp/rfid_audio_pipe",
			Device:     "hw:0,0",
			Binary:     "mpg123",
			KillStrays: true,
		},
		RFID: RFIDConfig{
			FIFO:           "/tmp/rfid_pipe",
			DevicesFile:    "/proc/bus/input/devices",
			InputDir:       "/dev/input",
			DevicePatterns: []string{"*sycreader*", "*rfid*", "*keyboard*"},
		},
		Visualizer: VisualizerConfig{
			FIFO:            "/tmp/rfid_pipe",
			AudioFIFO:       "/tmp/rfid_audio_pipe",
			Renderer:        "terminal",
			FrameIntervalMs: 50,
			Brightness:      180,
		},
		Supervise: SuperviseConfig{
			IntervalMs:       5000,
			InitialBackoffMs: 1000,
			MaxBackoffMs:     60000,
			MaxRestarts:      0, // Unlimited
			StopOnExit:       false,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Dir:        "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
	}
}

// StopTimeout returns the graceful stop timeout as a time.Duration
func (c *LauncherConfig) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutMs) * time.Millisecond
}

// Interval returns the liveness check interval as a time.Duration
func (c *SuperviseConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// InitialBackoff returns the first restart delay as a time.Duration
func (c *SuperviseConfig) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffMs) * time.Millisecond
}

// MaxBackoff returns the restart delay cap as a time.Duration
func (c *SuperviseConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffMs) * time.Millisecond
}

// FrameInterval returns the frame delay as a time.Duration
func (c *VisualizerConfig) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMs) * time.Millisecond
}

// HTTPTimeout returns the per-request timeout as a time.Duration
func (c *SyncConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	return path
}

// WorkDir returns the expanded work directory. It does not check that it exists.
func (c *Config) WorkDir() string {
	return ExpandHome(c.Launcher.WorkDir)
}

// StateDir returns the directory holding soundmachine's own files.
func (c *Config) StateDir() string {
	return filepath.Join(c.WorkDir(), ".soundmachine")
}

// LogDir returns the directory component logs are written to.
func (c *Config) LogDir() string {
	if c.Logging.Dir != "" {
		return c.resolve(c.Logging.Dir)
	}
	return filepath.Join(c.StateDir(), "logs")
}

// SoundsDir returns the local sound library directory.
func (c *Config) SoundsDir() string {
	if c.Sync.SoundsDir != "" {
		return c.resolve(c.Sync.SoundsDir)
	}
	return filepath.Join(c.WorkDir(), "sounds")
}

// resolve expands ~ and makes relative paths relative to the work directory.
func (c *Config) resolve(path string) string {
	path = ExpandHome(path)
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.WorkDir(), path)
	}
	return path
}

// WorkerNames returns the configured worker names in sorted order.
func (c *Config) WorkerNames() []string {
	names := make([]string, 0, len(c.Workers))
	for name := range c.Workers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProfileNames returns the configured profile names in sorted order.
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetDefaults registers default values with the global viper instance.
func SetDefaults() {
	SetDefaultsOn(viper.GetViper())
}

// SetDefaultsOn registers default values with v.
// Workers and profiles are merged in LoadFrom instead, since viper defaults
// for maps of structs would be replaced wholesale by a config file.
func SetDefaultsOn(v *viper.Viper) {
	defaults := Default()

	// Launcher defaults
	v.SetDefault("launcher.work_dir", defaults.Launcher.WorkDir)
	v.SetDefault("launcher.profile", defaults.Launcher.Profile)
	v.SetDefault("launcher.install_tmux", defaults.Launcher.InstallTmux)
	v.SetDefault("launcher.install_command", defaults.Launcher.InstallCommand)
	v.SetDefault("launcher.require_tmux", defaults.Launcher.RequireTmux)
	v.SetDefault("launcher.socket", defaults.Launcher.Socket)
	v.SetDefault("launcher.stop_timeout_ms", defaults.Launcher.StopTimeoutMs)

	// Sync defaults
	v.SetDefault("sync.remote_url", defaults.Sync.RemoteURL)
	v.SetDefault("sync.sounds_dir", defaults.Sync.SoundsDir)
	v.SetDefault("sync.max_downloads", defaults.Sync.MaxDownloads)
	v.SetDefault("sync.interval_minutes", defaults.Sync.IntervalMinutes)
	v.SetDefault("sync.http_timeout_seconds", defaults.Sync.HTTPTimeoutSeconds)

	// Player defaults
	v.SetDefault("player.fifo", defaults.Player.FIFO)
	v.SetDefault("player.device", defaults.Player.Device)
	v.SetDefault("player.binary", defaults.Player.Binary)
	v.SetDefault("player.kill_strays", defaults.Player.KillStrays)

	// RFID defaults
	v.SetDefault("rfid.fifo", defaults.RFID.FIFO)
	v.SetDefault("rfid.devices_file", defaults.RFID.DevicesFile)
	v.SetDefault("rfid.input_dir", defaults.RFID.InputDir)
	v.SetDefault("rfid.device_patterns", defaults.RFID.DevicePatterns)

	// Visualizer defaults
	v.SetDefault("visualizer.fifo", defaults.Visualizer.FIFO)
	v.SetDefault("visualizer.audio_fifo", defaults.Visualizer.AudioFIFO)
	v.SetDefault("visualizer.renderer", defaults.Visualizer.Renderer)
	v.SetDefault("visualizer.frame_interval_ms", defaults.Visualizer.FrameIntervalMs)
	v.SetDefault("visualizer.brightness", defaults.Visualizer.Brightness)

	// Supervise defaults
	v.SetDefault("supervise.interval_ms", defaults.Supervise.IntervalMs)
	v.SetDefault("supervise.initial_backoff_ms", defaults.Supervise.InitialBackoffMs)
	v.SetDefault("supervise.max_backoff_ms", defaults.Supervise.MaxBackoffMs)
	v.SetDefault("supervise.max_restarts", defaults.Supervise.MaxRestarts)
	v.SetDefault("supervise.stop_on_exit", defaults.Supervise.StopOnExit)

	// Metrics defaults
	v.SetDefault("metrics.enabled", defaults.Metrics.Enabled)
	v.SetDefault("metrics.addr", defaults.Metrics.Addr)

	// Logging defaults
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.dir", defaults.Logging.Dir)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	v.SetDefault("logging.compress", defaults.Logging.Compress)
}

// Load reads the configuration from viper into a Config struct and validates it.
// Workers and profiles from the config file are merged over the defaults by name.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom is Load for an explicit viper instance.
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg := Default()
	// Slices decode element-wise into existing backing arrays; viper already
	// carries their defaults.
	cfg.Launcher.InstallCommand = nil
	cfg.RFID.DevicePatterns = nil
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	cfg.fillWorkerDefaults()

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return cfg, nil
}

// fillWorkerDefaults completes partially overridden built-in workers.
func (c *Config) fillWorkerDefaults() {
	defaults := Default().Workers
	for name, w := range c.Workers {
		def, ok := defaults[name]
		if !ok {
			continue
		}
		if w.Session == "" {
			w.Session = def.Session
		}
		if w.Subcommand == "" && len(w.Command) == 0 {
			w.Subcommand = def.Subcommand
		}
		if w.LogFile == "" {
			w.LogFile = def.LogFile
		}
		c.Workers[name] = w
	}
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "soundmachine")
	}
	// Fall back to ~/.config/soundmachine
	home, err := os.UserHomeDir()
	if err != nil {
		return ".soundmachine"
	}
	return filepath.Join(home, ".config", "soundmachine")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidRenderers returns the list of valid visualizer renderers
func ValidRenderers() []string {
	return []string{"terminal", "null"}
}
