// Command soundmachine launches and runs the sound box workers.
package main

import (
	"fmt"
	"os"

	"github.com/noshadows/soundmachine/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
