// Package launch provides the CLI commands that start, stop and inspect the
// worker sessions.
package launch

import "github.com/spf13/cobra"

// Register adds the launcher commands to the given parent command.
func Register(parent *cobra.Command) {
	RegisterStartCmd(parent)
	RegisterResyncCmd(parent)
	RegisterStopCmd(parent)
	RegisterStatusCmd(parent)
}
