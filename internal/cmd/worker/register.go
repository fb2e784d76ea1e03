// Package worker provides the CLI commands that run inside the worker
// sessions: the RFID reader, the visualizer, the audio player and the sound
// sync.
package worker

import "github.com/spf13/cobra"

// Register adds the worker commands to the given parent command.
func Register(parent *cobra.Command) {
	RegisterPlayerCmd(parent)
	RegisterRFIDCmd(parent)
	RegisterVisualizerCmd(parent)
	RegisterSyncCmd(parent)
}
