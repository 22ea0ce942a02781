package cmd

import (
	"fmt"
	"log"
	"os"

	"ClearFM/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "clearfm_server",
	Short: "ClearFM is a redacted adaptive audio streaming service.",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting ClearFM server...")
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
