package launch

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noshadows/soundmachine/internal/cmd/cmdutil"
	"github.com/noshadows/soundmachine/internal/launcher"
)

var stopCmd = &cobra.Command{
	Use:   "stop [worker-pattern...]",
	Short: "Stop running workers",
	Long: `Stop the workers matching the given glob patterns, or every configured
worker. Sessions that are not running are ignored.`,
	RunE: runStop,
}

// RegisterStopCmd registers the stop command with the given parent command.
func RegisterStopCmd(parent *cobra.Command) {
	parent.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}
	logger := cmdutil.NewLogger(cfg, "launcher")
	defer func() { _ = logger.Close() }()

	ctx, stop := cmdutil.SignalContext(cmd.Context())
	defer stop()

	l := launcher.New(cfg, launcher.WithLogger(logger))
	stopped, err := l.Stop(ctx, args)

	out := cmd.OutOrStdout()
	if len(stopped) == 0 {
		fmt.Fprintln(out, "No workers were running.")
	} else {
		fmt.Fprintf(out, "Stopped %s\n", strings.Join(stopped, ", "))
	}
	return err
}
