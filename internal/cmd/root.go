package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/noshadows/soundmachine/internal/cmd/launch"
	"github.com/noshadows/soundmachine/internal/cmd/worker"
	"github.com/noshadows/soundmachine/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "soundmachine",
	Short: "RFID sound box launcher and workers",
	Long: `Soundmachine runs an RFID-triggered sound box.

The launcher commands (start, resync, stop, status) start the workers in
named tmux sessions, or as background processes when tmux is unavailable.
The worker commands (rfid, visualizer, player, sync) are what those sessions
run: an RFID reader, a waveform visualizer and an audio player that keeps its
sounds in sync with a remote store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/soundmachine/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	// Every worker process serves its own admin endpoint.
	rootCmd.PersistentFlags().String("metrics-addr", "", "admin server listen address (overrides metrics.addr)")
	_ = viper.BindPFlag("metrics.addr", rootCmd.PersistentFlags().Lookup("metrics-addr"))

	launch.Register(rootCmd)
	worker.Register(rootCmd)
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SOUNDMACHINE")
	// e.g., SOUNDMACHINE_LAUNCHER_WORK_DIR for launcher.work_dir
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
