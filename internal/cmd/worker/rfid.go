package worker

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/noshadows/soundmachine/internal/cmd/cmdutil"
	"github.com/noshadows/soundmachine/internal/rfid"
)

var rfidCmd = &cobra.Command{
	Use:   "rfid",
	Short: "Read RFID tags and write them to the RFID pipe",
	Long: `Read tags from RFID readers that act as USB keyboards and write each one
to the RFID pipe.

Input devices are found in /proc/bus/input/devices by name; when none match
the configured patterns every /dev/input/event* node is read. Reading input
devices usually needs root or membership of the input group.`,
	Args: cobra.NoArgs,
	RunE: runRFID,
}

var rfidDevices []string

func init() {
	rfidCmd.Flags().StringSliceVar(&rfidDevices, "device", nil, "Read these event devices instead of discovering them")
}

// RegisterRFIDCmd registers the rfid command with the given parent command.
func RegisterRFIDCmd(parent *cobra.Command) {
	parent.AddCommand(rfidCmd)
}

func runRFID(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}
	logger := cmdutil.NewLogger(cfg, "rfid")
	defer func() { _ = logger.Close() }()

	ctx, stop := cmdutil.SignalContext(cmd.Context())
	defer stop()

	rec, prom := cmdutil.NewMetrics(cfg)
	opts := []rfid.Option{rfid.WithLogger(logger), rfid.WithMetrics(rec)}
	if len(rfidDevices) > 0 {
		devices := make([]rfid.Device, len(rfidDevices))
		for i, path := range rfidDevices {
			devices[i] = rfid.Device{Path: path, Name: path}
		}
		opts = append(opts, rfid.WithDevices(devices...))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	adminDone := cmdutil.ServeAdmin(ctx, cfg, prom, nil, logger)

	err = rfid.New(cfg.RFID, opts...).Run(ctx)
	cancel()
	<-adminDone
	return err
}
