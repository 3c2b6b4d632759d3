package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tasktrack",
	Short: "Minimal task tracking REST API",
	Long: `tasktrack serves a JSON API for todos together with a small browser
client, an OpenAPI document and a websocket change feed.

Running without a subcommand starts the server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
