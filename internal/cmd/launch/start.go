package launch

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/noshadows/soundmachine/internal/cmd/cmdutil"
	"github.com/noshadows/soundmachine/internal/config"
	"github.com/noshadows/soundmachine/internal/errors"
	"github.com/noshadows/soundmachine/internal/launcher"
	"github.com/noshadows/soundmachine/internal/logging"
	"github.com/noshadows/soundmachine/internal/metrics"
	"github.com/noshadows/soundmachine/internal/supervisor"
)

var startCmd = &cobra.Command{
	Use:   "start [worker-pattern...]",
	Short: "Start the workers of a profile",
	Long: `Start the workers of a profile, each in its own named tmux session.

Previously running sessions are terminated first. When tmux is not installed
it is installed with the configured command if allowed; otherwise the workers
are started as background processes whose output goes to log files in the
work directory.

Optional glob patterns restrict the launch to matching workers, e.g.
  soundmachine start 'audio*'

With --watch the command stays in the foreground and restarts workers that
exit, backing off exponentially between attempts.`,
	RunE: runStart,
}

var resyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Restart the audio player with a forced sound resync",
	Long: `Restart the audio player with the resync profile, which downloads every
sound from the remote store again before playing.`,
	Args: cobra.NoArgs,
	RunE: runResync,
}

var (
	startProfile string
	startWatch   bool
	resyncWatch  bool
)

func init() {
	startCmd.Flags().StringVarP(&startProfile, "profile", "p", "", "Profile to launch (default from launcher.profile)")
	startCmd.Flags().BoolVar(&startWatch, "watch", false, "Stay in the foreground and restart workers that exit")
	resyncCmd.Flags().BoolVar(&resyncWatch, "watch", false, "Stay in the foreground and restart the player if it exits")
}

// RegisterStartCmd registers the start command with the given parent command.
func RegisterStartCmd(parent *cobra.Command) {
	parent.AddCommand(startCmd)
}

// RegisterResyncCmd registers the resync command with the given parent command.
func RegisterResyncCmd(parent *cobra.Command) {
	parent.AddCommand(resyncCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	return launch(cmd, startProfile, args, startWatch)
}

func runResync(cmd *cobra.Command, args []string) error {
	return launch(cmd, config.ProfileResync, nil, resyncWatch)
}

func launch(cmd *cobra.Command, profile string, patterns []string, watch bool) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}
	if _, err := launcher.ResolveWorkDir(cfg.Launcher.WorkDir); err != nil {
		return fmt.Errorf("cannot enter work directory %s: %w", cfg.Launcher.WorkDir, err)
	}
	logger := cmdutil.NewLogger(cfg, "launcher")
	defer func() { _ = logger.Close() }()

	ctx, stop := cmdutil.SignalContext(cmd.Context())
	defer stop()

	rec, prom := cmdutil.NewMetrics(cfg)
	l := launcher.New(cfg,
		launcher.WithLogger(logger),
		launcher.WithMetrics(rec),
		launcher.WithConfigFile(cmdutil.ConfigFileUsed()),
	)

	out := cmd.OutOrStdout()
	res, err := l.Launch(ctx, profile, patterns)
	if res != nil {
		printResult(out, res, cfg.Launcher.Socket)
	}
	if err != nil {
		logger.LogError("launch failed", err, "profile", profile)
		if errors.Is(err, errors.ErrWorkDirUnavailable) {
			return fmt.Errorf("cannot enter work directory %s: %w", cfg.Launcher.WorkDir, err)
		}
		if res == nil || !watch {
			return err
		}
		// Workers that failed to start are retried by the supervisor.
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}

	if !watch {
		return nil
	}
	return supervise(ctx, out, cfg, l, res, logger, rec, prom)
}

func printResult(out io.Writer, res *launcher.Result, socket string) {
	if res.Mode == launcher.ModeBackground {
		fmt.Fprintln(out, "tmux is not available, starting workers in the background")
	}
	for _, w := range res.Started {
		switch w.Mode {
		case launcher.ModeTmux:
			fmt.Fprintf(out, "Started %s in tmux session %s\n", w.Name, w.Session)
		default:
			fmt.Fprintf(out, "Started %s in the background (pid %d), logging to %s\n", w.Name, w.PID, w.LogFile)
		}
	}
	if res.Mode == launcher.ModeTmux && len(res.Started) > 0 {
		fmt.Fprintf(out, "Attach with: tmux -L %s attach -t %s\n", socket, res.Started[0].Session)
	}
}

func supervise(ctx context.Context, out io.Writer, cfg *config.Config, l *launcher.Launcher, res *launcher.Result,
	logger *logging.Logger, rec metrics.Recorder, prom *metrics.Prometheus) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	handles := res.Handles(l)
	targets := make([]supervisor.Target, len(handles))
	for i, h := range handles {
		targets[i] = h
	}

	sup := supervisor.New(targets,
		supervisor.WithConfig(cfg.Supervise),
		supervisor.WithLogger(logger),
		supervisor.WithMetrics(rec),
	)

	adminDone := cmdutil.ServeAdmin(ctx, cfg, prom, func(ctx context.Context) (any, error) {
		workers, err := l.Status(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"run_id":     res.RunID,
			"mode":       res.Mode,
			"workers":    workers,
			"supervisor": sup.Snapshot(),
		}, nil
	}, logger)

	fmt.Fprintf(out, "Watching %d workers (Ctrl+C to stop)\n", len(targets))
	err := sup.Run(ctx)
	cancel()
	<-adminDone
	return err
}
