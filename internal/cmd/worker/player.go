package worker

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/noshadows/soundmachine/internal/cmd/cmdutil"
	"github.com/noshadows/soundmachine/internal/player"
)

var playerCmd = &cobra.Command{
	Use:   "player",
	Short: "Play the sound of every tag read from the audio pipe",
	Long: `Play the sound of every tag written to the audio pipe with mpg123.

The local sounds are kept in sync with the remote store: once at startup with
--resync, then every --sync-interval minutes.`,
	Args: cobra.NoArgs,
	RunE: runPlayer,
}

var (
	playerResync       bool
	playerForceUpdate  bool
	playerSyncInterval int
	playerMaxDownloads int
)

func init() {
	playerCmd.Flags().BoolVar(&playerResync, "resync", false, "Sync sounds with the remote store before playing")
	playerCmd.Flags().BoolVar(&playerForceUpdate, "force-update", false, "With --resync, download every file again")
	playerCmd.Flags().IntVar(&playerSyncInterval, "sync-interval", -1, "Minutes between periodic syncs, 0 disables (default from sync.interval_minutes)")
	playerCmd.Flags().IntVar(&playerMaxDownloads, "max-downloads", 0, "Concurrent tag downloads (default from sync.max_downloads)")
}

// RegisterPlayerCmd registers the player command with the given parent command.
func RegisterPlayerCmd(parent *cobra.Command) {
	parent.AddCommand(playerCmd)
}

func runPlayer(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}
	logger := cmdutil.NewLogger(cfg, "player")
	defer func() { _ = logger.Close() }()

	ctx, stop := cmdutil.SignalContext(cmd.Context())
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rec, prom := cmdutil.NewMetrics(cfg)
	syncer, lib := newSyncer(cfg, playerMaxDownloads, logger, rec)

	if playerResync {
		logger.Info("syncing sounds before playback", "force", playerForceUpdate)
		if _, err := syncer.Sync(ctx, playerForceUpdate); err != nil {
			// Play whatever is already on disk.
			logger.Warn("initial sync failed", "error", err.Error())
		}
	}

	interval := playerSyncInterval
	if interval < 0 {
		interval = cfg.Sync.IntervalMinutes
	}

	p := player.New(cfg.Player, lib, player.WithLogger(logger), player.WithMetrics(rec))
	adminDone := cmdutil.ServeAdmin(ctx, cfg, prom, func(ctx context.Context) (any, error) {
		return map[string]any{"playing": p.Playing(), "sounds": lib.Dir}, nil
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.Run(gctx)
	})
	g.Go(func() error {
		return syncer.Run(gctx, time.Duration(interval)*time.Minute)
	})
	err = g.Wait()
	cancel()
	<-adminDone
	return err
}
