package worker

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/noshadows/soundmachine/internal/cmd/cmdutil"
	"github.com/noshadows/soundmachine/internal/config"
	"github.com/noshadows/soundmachine/internal/logging"
	"github.com/noshadows/soundmachine/internal/metrics"
	"github.com/noshadows/soundmachine/internal/sounds"
	"github.com/noshadows/soundmachine/internal/soundsync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the local sounds with the remote store once",
	Long: `Synchronize the local sound library with the remote store.

Tags missing remotely are deleted, new tags are downloaded and existing tags
are updated when a file's MD5 differs from the remote copy. --force downloads
every file again.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

var (
	syncForce        bool
	syncMaxDownloads int
)

func init() {
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "Download every file regardless of its hash")
	syncCmd.Flags().IntVar(&syncMaxDownloads, "max-downloads", 0, "Concurrent tag downloads (default from sync.max_downloads)")
}

// RegisterSyncCmd registers the sync command with the given parent command.
func RegisterSyncCmd(parent *cobra.Command) {
	parent.AddCommand(syncCmd)
}

// newSyncer builds the syncer for cfg. maxDownloads overrides the configured
// limit when positive.
func newSyncer(cfg *config.Config, maxDownloads int, logger *logging.Logger, rec metrics.Recorder) (*soundsync.Syncer, *sounds.Library) {
	if maxDownloads <= 0 {
		maxDownloads = cfg.Sync.MaxDownloads
	}
	lib := sounds.NewLibrary(cfg.SoundsDir())
	remote := soundsync.NewRemote(cfg.Sync.RemoteURL, cfg.Sync.HTTPTimeout())
	return soundsync.New(remote, lib,
		soundsync.WithMaxDownloads(maxDownloads),
		soundsync.WithLogger(logger),
		soundsync.WithMetrics(rec),
	), lib
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}
	logger := cmdutil.NewLogger(cfg, "sync")
	defer func() { _ = logger.Close() }()

	ctx, stop := cmdutil.SignalContext(cmd.Context())
	defer stop()

	syncer, lib := newSyncer(cfg, syncMaxDownloads, logger, metrics.Nop())
	fmt.Fprintf(cmd.OutOrStdout(), "Syncing %s from %s\n", lib.Dir, cfg.Sync.RemoteURL)

	report, err := syncer.Sync(ctx, syncForce)
	if report != nil {
		printReport(cmd.OutOrStdout(), report)
	}
	return err
}

func printReport(out io.Writer, r *soundsync.Report) {
	line := func(label string, tags []string) {
		if len(tags) > 0 {
			fmt.Fprintf(out, "  %-10s %d (%s)\n", label+":", len(tags), strings.Join(tags, ", "))
		}
	}
	fmt.Fprintf(out, "Sync finished in %s\n", r.Duration.Round(time.Millisecond))
	line("added", r.Added)
	line("updated", r.Updated)
	line("deleted", r.Deleted)
	line("failed", r.Failed)
	fmt.Fprintf(out, "  %-10s %d\n", "unchanged:", len(r.UpToDate))
}
