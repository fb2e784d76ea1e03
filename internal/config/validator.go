package config

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "sync.max_downloads")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// sessionNameRegex matches names tmux accepts without quoting.
// tmux rejects '.' and ':' in session names.
var sessionNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Upper bound for concurrent downloads; the device is a single-board computer.
const maxDownloadsLimit = 100

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateLauncher()...)
	errors = append(errors, c.validateWorkers()...)
	errors = append(errors, c.validateProfiles()...)
	errors = append(errors, c.validateSync()...)
	errors = append(errors, c.validatePlayer()...)
	errors = append(errors, c.validateRFID()...)
	errors = append(errors, c.validateVisualizer()...)
	errors = append(errors, c.validateSupervise()...)
	errors = append(errors, c.validateMetrics()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateLauncher() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Launcher.WorkDir) == "" {
		errors = append(errors, ValidationError{
			Field:   "launcher.work_dir",
			Value:   c.Launcher.WorkDir,
			Message: "must not be empty",
		})
	}

	if c.Launcher.Profile != "" {
		if _, ok := c.Profiles[c.Launcher.Profile]; !ok {
			errors = append(errors, ValidationError{
				Field:   "launcher.profile",
				Value:   c.Launcher.Profile,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(c.ProfileNames(), ", ")),
			})
		}
	}

	if c.Launcher.InstallTmux && len(c.Launcher.InstallCommand) == 0 {
		errors = append(errors, ValidationError{
			Field:   "launcher.install_command",
			Value:   c.Launcher.InstallCommand,
			Message: "must not be empty when launcher.install_tmux is enabled",
		})
	}

	if !sessionNameRegex.MatchString(c.Launcher.Socket) {
		errors = append(errors, ValidationError{
			Field:   "launcher.socket",
			Value:   c.Launcher.Socket,
			Message: "must start with alphanumeric and contain only alphanumeric, hyphen, or underscore",
		})
	}

	if c.Launcher.StopTimeoutMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "launcher.stop_timeout_ms",
			Value:   c.Launcher.StopTimeoutMs,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateWorkers() []ValidationError {
	var errors []ValidationError

	if len(c.Workers) == 0 {
		return append(errors, ValidationError{
			Field:   "workers",
			Value:   len(c.Workers),
			Message: "at least one worker must be configured",
		})
	}

	sessions := make(map[string]string)
	logFiles := make(map[string]string)
	for _, name := range c.WorkerNames() {
		w := c.Workers[name]
		prefix := "workers." + name

		if !sessionNameRegex.MatchString(w.Session) {
			errors = append(errors, ValidationError{
				Field:   prefix + ".session",
				Value:   w.Session,
				Message: "must start with alphanumeric and contain only alphanumeric, hyphen, or underscore",
			})
		} else if other, dup := sessions[w.Session]; dup {
			errors = append(errors, ValidationError{
				Field:   prefix + ".session",
				Value:   w.Session,
				Message: fmt.Sprintf("already used by worker %q", other),
			})
		} else {
			sessions[w.Session] = name
		}

		if len(w.Command) == 0 && w.Subcommand == "" {
			errors = append(errors, ValidationError{
				Field:   prefix + ".command",
				Value:   w.Command,
				Message: "either command or subcommand must be set",
			})
		}

		switch {
		case w.LogFile == "":
			errors = append(errors, ValidationError{
				Field:   prefix + ".log_file",
				Value:   w.LogFile,
				Message: "must not be empty",
			})
		case filepath.IsAbs(w.LogFile) || strings.Contains(w.LogFile, ".."):
			errors = append(errors, ValidationError{
				Field:   prefix + ".log_file",
				Value:   w.LogFile,
				Message: "must be a path relative to launcher.work_dir",
			})
		default:
			if other, dup := logFiles[w.LogFile]; dup {
				errors = append(errors, ValidationError{
					Field:   prefix + ".log_file",
					Value:   w.LogFile,
					Message: fmt.Sprintf("already used by worker %q", other),
				})
			}
			logFiles[w.LogFile] = name
		}
	}

	return errors
}

func (c *Config) validateProfiles() []ValidationError {
	var errors []ValidationError

	for _, name := range c.ProfileNames() {
		p := c.Profiles[name]
		prefix := "profiles." + name

		if len(p.Workers) == 0 {
			errors = append(errors, ValidationError{
				Field:   prefix + ".workers",
				Value:   len(p.Workers),
				Message: "must list at least one worker",
			})
			continue
		}

		var seen []string
		for i, pw := range p.Workers {
			field := fmt.Sprintf("%s.workers[%d].name", prefix, i)
			if _, ok := c.Workers[pw.Name]; !ok {
				errors = append(errors, ValidationError{
					Field:   field,
					Value:   pw.Name,
					Message: fmt.Sprintf("must be one of: %s", strings.Join(c.WorkerNames(), ", ")),
				})
				continue
			}
			if slices.Contains(seen, pw.Name) {
				errors = append(errors, ValidationError{
					Field:   field,
					Value:   pw.Name,
					Message: "worker listed more than once",
				})
			}
			seen = append(seen, pw.Name)
		}
	}

	return errors
}

func (c *Config) validateSync() []ValidationError {
	var errors []ValidationError

	u, err := url.Parse(c.Sync.RemoteURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "sync.remote_url",
			Value:   c.Sync.RemoteURL,
			Message: "must be an absolute http or https URL",
		})
	}

	if c.Sync.MaxDownloads < 1 {
		errors = append(errors, ValidationError{
			Field:   "sync.max_downloads",
			Value:   c.Sync.MaxDownloads,
			Message: "must be at least 1",
		})
	} else if c.Sync.MaxDownloads > maxDownloadsLimit {
		errors = append(errors, ValidationError{
			Field:   "sync.max_downloads",
			Value:   c.Sync.MaxDownloads,
			Message: fmt.Sprintf("exceeds maximum of %d", maxDownloadsLimit),
		})
	}

	if c.Sync.IntervalMinutes < 0 {
		errors = append(errors, ValidationError{
			Field:   "sync.interval_minutes",
			Value:   c.Sync.IntervalMinutes,
			Message: "must be non-negative (0 disables periodic sync)",
		})
	}

	if c.Sync.HTTPTimeoutSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "sync.http_timeout_seconds",
			Value:   c.Sync.HTTPTimeoutSeconds,
			Message: "must be at least 1",
		})
	}

	return errors
}

func (c *Config) validatePlayer() []ValidationError {
	var errors []ValidationError

	errors = append(errors, validateAbsPath("player.fifo", c.Player.FIFO)...)

	if c.Player.Device == "" {
		errors = append(errors, ValidationError{
			Field:   "player.device",
			Value:   c.Player.Device,
			Message: "must not be empty",
		})
	}
	if c.Player.Binary == "" {
		errors = append(errors, ValidationError{
			Field:   "player.binary",
			Value:   c.Player.Binary,
			Message: "must not be empty",
		})
	}

	return errors
}

func (c *Config) validateRFID() []ValidationError {
	var errors []ValidationError

	errors = append(errors, validateAbsPath("rfid.fifo", c.RFID.FIFO)...)
	errors = append(errors, validateAbsPath("rfid.devices_file", c.RFID.DevicesFile)...)
	errors = append(errors, validateAbsPath("rfid.input_dir", c.RFID.InputDir)...)

	for i, pattern := range c.RFID.DevicePatterns {
		if _, err := glob.Compile(pattern); err != nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("rfid.device_patterns[%d]", i),
				Value:   pattern,
				Message: fmt.Sprintf("invalid glob pattern: %v", err),
			})
		}
	}

	return errors
}

func (c *Config) validateVisualizer() []ValidationError {
	var errors []ValidationError

	errors = append(errors, validateAbsPath("visualizer.fifo", c.Visualizer.FIFO)...)
	errors = append(errors, validateAbsPath("visualizer.audio_fifo", c.Visualizer.AudioFIFO)...)

	if c.Visualizer.FIFO != "" && c.Visualizer.FIFO == c.Visualizer.AudioFIFO {
		errors = append(errors, ValidationError{
			Field:   "visualizer.audio_fifo",
			Value:   c.Visualizer.AudioFIFO,
			Message: "must differ from visualizer.fifo",
		})
	}

	if !slices.Contains(ValidRenderers(), c.Visualizer.Renderer) {
		errors = append(errors, ValidationError{
			Field:   "visualizer.renderer",
			Value:   c.Visualizer.Renderer,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidRenderers(), ", ")),
		})
	}

	if c.Visualizer.FrameIntervalMs < 10 {
		errors = append(errors, ValidationError{
			Field:   "visualizer.frame_interval_ms",
			Value:   c.Visualizer.FrameIntervalMs,
			Message: "must be at least 10",
		})
	}

	if c.Visualizer.Brightness < 0 || c.Visualizer.Brightness > 255 {
		errors = append(errors, ValidationError{
			Field:   "visualizer.brightness",
			Value:   c.Visualizer.Brightness,
			Message: "must be between 0 and 255",
		})
	}

	return errors
}

func (c *Config) validateSupervise() []ValidationError {
	var errors []ValidationError

	if c.Supervise.IntervalMs < 100 {
		errors = append(errors, ValidationError{
			Field:   "supervise.interval_ms",
			Value:   c.Supervise.IntervalMs,
			Message: "must be at least 100",
		})
	}
	if c.Supervise.InitialBackoffMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "supervise.initial_backoff_ms",
			Value:   c.Supervise.InitialBackoffMs,
			Message: "must be non-negative",
		})
	}
	if c.Supervise.MaxBackoffMs < c.Supervise.InitialBackoffMs {
		errors = append(errors, ValidationError{
			Field:   "supervise.max_backoff_ms",
			Value:   c.Supervise.MaxBackoffMs,
			Message: "must be at least supervise.initial_backoff_ms",
		})
	}
	if c.Supervise.MaxRestarts < 0 {
		errors = append(errors, ValidationError{
			Field:   "supervise.max_restarts",
			Value:   c.Supervise.MaxRestarts,
			Message: "must be non-negative (0 = unlimited)",
		})
	}

	return errors
}

func (c *Config) validateMetrics() []ValidationError {
	if !c.Metrics.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
		return []ValidationError{{
			Field:   "metrics.addr",
			Value:   c.Metrics.Addr,
			Message: "must be a host:port listen address",
		}}
	}
	return nil
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative (0 disables rotation)",
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

func validateAbsPath(field, path string) []ValidationError {
	if path == "" || !filepath.IsAbs(path) {
		return []ValidationError{{
			Field:   field,
			Value:   path,
			Message: "must be an absolute path",
		}}
	}
	return nil
}
