package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func monitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Stream client state-change events",
		Long:  "Connects to the steerd admin API and streams state-change events until interrupted (Ctrl+C).",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL()+"/events", nil)
			if err != nil {
				return fmt.Errorf("build watch request: %w", err)
			}

			resp, err := httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("watch client events: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("%w: status %d", errAdminAPI, resp.StatusCode)
			}

			scanner := bufio.NewScanner(resp.Body)
			for scanner.Scan() {
				var change stateChangeView
				if err := json.Unmarshal(scanner.Bytes(), &change); err != nil {
					return fmt.Errorf("decode event: %w", err)
				}

				out, fmtErr := formatEvent(change, outputFormat)
				if fmtErr != nil {
					return fmt.Errorf("format event: %w", fmtErr)
				}

				fmt.Println(out)
			}

			if err := scanner.Err(); err != nil {
				// Context cancellation (Ctrl+C) is expected, not an error.
				if errors.Is(ctx.Err(), context.Canceled) {
					return nil
				}

				return fmt.Errorf("stream error: %w", err)
			}

			return nil
		},
	}

	return cmd
}
