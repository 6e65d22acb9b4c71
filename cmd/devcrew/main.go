// Command devcrew is the entry point for the devcrew CLI.
package main

import (
	"fmt"
	"os"

	"github.com/Iron-Ham/devcrew/internal/cmd"
	"github.com/Iron-Ham/devcrew/internal/ui"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.Error.Render("Error:"), err)
		os.Exit(1)
	}
}
