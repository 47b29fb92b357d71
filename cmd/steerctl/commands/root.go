// Package commands implements the steerctl CLI commands.
package commands

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// httpClient is the admin API client, shared by every subcommand.
	httpClient = &http.Client{Timeout: 10 * time.Second}

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// adminAddr is the steerd admin API address (host:port).
	adminAddr string
)

// rootCmd is the top-level cobra command for steerctl.
var rootCmd = &cobra.Command{
	Use:   "steerctl",
	Short: "CLI client for the steerd daemon",
	Long:  "steerctl talks to the steerd admin API (plain JSON over HTTP) to inspect and steer clients.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&adminAddr, "addr", "localhost:8268",
		"steerd admin API address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(clientsCmd())
	rootCmd.AddCommand(modeCmd())
	rootCmd.AddCommand(monitorCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func baseURL() string {
	return "http://" + adminAddr
}
