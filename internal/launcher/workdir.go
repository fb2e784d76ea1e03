package launcher

import (
	"os"
	"path/filepath"

	"github.com/noshadows/soundmachine/internal/config"
	"github.com/noshadows/soundmachine/internal/errors"
	"golang.org/x/sys/unix"
)

// ResolveWorkDir expands dir and checks that it is an existing directory the
// current user can enter. Failures are critical: no worker can start.
func ResolveWorkDir(dir string) (string, error) {
	if dir == "" {
		return "", workDirError("work directory is not configured", "")
	}

	path := config.ExpandHome(dir)
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", workDirError(err.Error(), dir)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", workDirError("cannot access work directory", abs)
	}
	if !info.IsDir() {
		return "", workDirError("not a directory", abs)
	}
	if err := unix.Access(abs, unix.X_OK); err != nil {
		return "", workDirError("cannot enter work directory", abs)
	}

	return abs, nil
}

func workDirError(msg, dir string) error {
	err := errors.NewLaunchError(msg, errors.ErrWorkDirUnavailable).WithSeverity(errors.SeverityCritical)
	if dir != "" {
		err = err.WithWorkDir(dir)
	}
	return err
}
