package commands

import (
	"fmt"

	"github.com/reeflective/console"
	"github.com/spf13/cobra"
)

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Start an interactive steerctl shell",
		Long:  "Launches a reeflective/console REPL over the steerctl command tree.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			app := console.New("steerctl")

			menu := app.NewMenu("")
			menu.SetCommands(func() *cobra.Command {
				return rootCmd
			})
			menu.Prompt().Primary = func() string { return "steerctl> " }

			if err := app.Start(); err != nil {
				return fmt.Errorf("run interactive shell: %w", err)
			}

			return nil
		},
	}
}
