// Package cmdutil holds helpers shared by the soundmachine subcommands.
package cmdutil

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"

	"github.com/noshadows/soundmachine/internal/config"
	"github.com/noshadows/soundmachine/internal/errors"
	"github.com/noshadows/soundmachine/internal/logging"
	"github.com/noshadows/soundmachine/internal/metrics"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "soundmachine"

// LoadConfig reads and validates the configuration. Validation failures are
// returned as config.ValidationErrors.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ConfigFileUsed returns the config file viper read, or "".
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// NewLogger opens the rotating JSON log of component in the configured log
// directory. If the directory cannot be used the logger writes to stderr.
// The default log directory lives in the work directory, which is never
// created here.
func NewLogger(cfg *config.Config, component string) *logging.Logger {
	logDir := cfg.LogDir()
	if cfg.Logging.Dir == "" {
		if info, err := os.Stat(cfg.WorkDir()); err != nil || !info.IsDir() {
			logDir = ""
		}
	}

	rotation := logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	}
	logger, err := logging.NewLoggerWithRotation(logDir, component, cfg.Logging.Level, rotation)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v, logging to stderr\n", err)
		logger, _ = logging.NewLoggerWithRotation("", component, cfg.Logging.Level, rotation)
	}
	return logger
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// NewMetrics returns a Prometheus recorder when the admin server is enabled
// and a no-op recorder otherwise.
func NewMetrics(cfg *config.Config) (metrics.Recorder, *metrics.Prometheus) {
	if !cfg.Metrics.Enabled {
		return metrics.Nop(), nil
	}
	p := metrics.NewPrometheus(MetricsNamespace)
	return p, p
}

// ServeAdmin runs the admin HTTP server in the background until ctx is done.
// It does nothing when prom is nil. The returned channel yields the server's
// exit error once.
func ServeAdmin(ctx context.Context, cfg *config.Config, prom *metrics.Prometheus, status metrics.StatusFunc, logger *logging.Logger) <-chan error {
	done := make(chan error, 1)
	if prom == nil {
		close(done)
		return done
	}

	router := metrics.NewRouter(prom, status, logger.Slog())
	go func() {
		err := metrics.Serve(ctx, cfg.Metrics.Addr, router, logger.Slog())
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server failed", "addr", cfg.Metrics.Addr, "error", err.Error())
		}
		done <- err
		close(done)
	}()
	return done
}
