package launcher

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/noshadows/soundmachine/internal/errors"
	"github.com/noshadows/soundmachine/internal/tmux"
)

// installTimeout bounds the tmux install command. Package managers can be slow
// on the first run.
const installTimeout = 10 * time.Minute

// Installer runs argv to install the terminal multiplexer.
type Installer func(ctx context.Context, argv []string) error

// ExecInstaller runs argv attached to the launcher's terminal so that sudo can
// prompt for a password.
func ExecInstaller(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return errors.NewValidationError("empty install command").WithField("launcher.install_command")
	}

	ctx, cancel := context.WithTimeout(ctx, installTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "install command %q failed", argv[0])
	}
	return nil
}

// EnsureMultiplexer returns the backend a launch uses. tmux is preferred; when
// it is missing and installation is enabled the install command runs once and
// tmux is checked again. Otherwise workers fall back to background processes,
// unless the configuration requires tmux.
func (l *Launcher) EnsureMultiplexer(ctx context.Context) (Backend, error) {
	if l.tmuxAvailable() {
		return l.multiplexer, nil
	}

	lc := l.cfg.Launcher
	if lc.InstallTmux && len(lc.InstallCommand) > 0 {
		l.logger.Info("tmux not found, installing", "command", lc.InstallCommand)
		if err := l.install(ctx, lc.InstallCommand); err != nil {
			l.logger.Warn("tmux install failed", "error", err.Error())
		}
		if l.tmuxAvailable() {
			l.logger.Info("tmux installed")
			return l.multiplexer, nil
		}
	}

	if lc.RequireTmux {
		return nil, errors.NewLaunchError("tmux is not installed and require_tmux is set",
			errors.ErrMultiplexerUnavailable)
	}

	l.logger.Warn("tmux unavailable, starting workers in the background")
	return l.background, nil
}

func defaultTmuxAvailable() bool {
	return tmux.Available()
}
