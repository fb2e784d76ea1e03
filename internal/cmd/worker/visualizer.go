package worker

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noshadows/soundmachine/internal/cmd/cmdutil"
	"github.com/noshadows/soundmachine/internal/sounds"
	"github.com/noshadows/soundmachine/internal/visualizer"
)

var visualizerCmd = &cobra.Command{
	Use:   "visualizer",
	Short: "Animate a waveform and relay tags to the audio player",
	Long: `Animate a waveform in the color of the last scanned tag.

Tags are read from the RFID pipe and forwarded to the audio pipe. The color
comes from the tag's manifest, then from the built-in red and blue tags, and
is grey otherwise. The --led-* flags describe the panel chain; frames are
drawn in the terminal with the terminal renderer.`,
	Args: cobra.NoArgs,
	RunE: runVisualizer,
}

var (
	ledRows        int
	ledCols        int
	ledChain       int
	ledParallel    int
	ledGPIOMapping string
	ledBrightness  int
	vizRenderer    string
)

func init() {
	def := visualizer.DefaultGeometry()
	visualizerCmd.Flags().IntVar(&ledRows, "led-rows", def.Rows, "Rows per panel")
	visualizerCmd.Flags().IntVar(&ledCols, "led-cols", def.Cols, "Columns per panel")
	visualizerCmd.Flags().IntVar(&ledChain, "led-chain", def.Chain, "Panels daisy-chained")
	visualizerCmd.Flags().IntVar(&ledParallel, "led-parallel", def.Parallel, "Parallel chains")
	visualizerCmd.Flags().StringVar(&ledGPIOMapping, "led-gpio-mapping", "regular", "GPIO mapping of the panel driver board")
	visualizerCmd.Flags().IntVar(&ledBrightness, "led-brightness", 100, "Panel brightness in percent")
	visualizerCmd.Flags().StringVar(&vizRenderer, "renderer", "", "terminal or null (default from visualizer.renderer)")
}

// RegisterVisualizerCmd registers the visualizer command with the given parent command.
func RegisterVisualizerCmd(parent *cobra.Command) {
	parent.AddCommand(visualizerCmd)
}

func runVisualizer(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}
	if ledBrightness < 1 || ledBrightness > 100 {
		return fmt.Errorf("--led-brightness must be between 1 and 100, got %d", ledBrightness)
	}

	logger := cmdutil.NewLogger(cfg, "visualizer")
	defer func() { _ = logger.Close() }()

	ctx, stop := cmdutil.SignalContext(cmd.Context())
	defer stop()

	renderer := vizRenderer
	if renderer == "" {
		renderer = cfg.Visualizer.Renderer
	}
	canvas, ok, err := visualizer.NewCanvas(renderer)
	if err != nil {
		return err
	}
	if !ok {
		logger.Info("stdout is not a terminal, frames are not displayed", "renderer", renderer)
	}

	geom := visualizer.Geometry{Rows: ledRows, Cols: ledCols, Chain: ledChain, Parallel: ledParallel}
	vcfg := cfg.Visualizer
	vcfg.Brightness = vcfg.Brightness * ledBrightness / 100
	logger.Info("panel geometry", "width", geom.Width(), "height", geom.Height(),
		"gpio_mapping", ledGPIOMapping, "brightness", vcfg.Brightness)

	rec, prom := cmdutil.NewMetrics(cfg)
	cache := sounds.NewCache(sounds.NewLibrary(cfg.SoundsDir()), logger)
	v := visualizer.New(vcfg, geom, cache,
		visualizer.WithLogger(logger),
		visualizer.WithMetrics(rec),
		visualizer.WithCanvas(canvas),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	adminDone := cmdutil.ServeAdmin(ctx, cfg, prom, func(context.Context) (any, error) {
		return v.Scheme(), nil
	}, logger)

	err = v.Run(ctx)
	cancel()
	<-adminDone
	return err
}
