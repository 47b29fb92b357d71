package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

// Sentinel errors for CLI validation and API responses.
var (
	errUnknownMode   = errors.New("unknown mode, expected off, suggest, or force")
	errAdminAPI      = errors.New("admin API request failed")
	errAdminNotFound = errors.New("client not found")
)

func clientsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "Inspect steered clients",
	}

	cmd.AddCommand(clientsListCmd())
	cmd.AddCommand(clientsShowCmd())

	return cmd
}

// --- clients list ---

func clientsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all known clients",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var views []clientView
			if err := getJSON("/clients", &views); err != nil {
				return fmt.Errorf("list clients: %w", err)
			}

			out, err := formatClients(views, outputFormat)
			if err != nil {
				return fmt.Errorf("format clients: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}

// --- clients show ---

func clientsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <mac>",
		Short: "Show details of a single client",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var view clientView
			if err := getJSON("/clients/"+args[0], &view); err != nil {
				return fmt.Errorf("get client %s: %w", args[0], err)
			}

			out, err := formatClient(view, outputFormat)
			if err != nil {
				return fmt.Errorf("format client: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}

// --- mode ---

func modeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mode <off|suggest|force>",
		Short: "Change the steering mode",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			mode := args[0]
			switch mode {
			case "off", "suggest", "force":
			default:
				return fmt.Errorf("%w: %q", errUnknownMode, mode)
			}

			body, err := json.Marshal(setModeRequest{Mode: mode})
			if err != nil {
				return fmt.Errorf("encode mode request: %w", err)
			}

			if err := postJSON("/mode", body); err != nil {
				return fmt.Errorf("set mode: %w", err)
			}

			fmt.Printf("mode set to %s.\n", mode)

			return nil
		},
	}

	return cmd
}

// -------------------------------------------------------------------------
// HTTP helpers
// -------------------------------------------------------------------------

func getJSON(path string, out any) error {
	resp, err := httpClient.Get(baseURL() + path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func postJSON(path string, body []byte) error {
	resp, err := httpClient.Post(baseURL()+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, nil)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode == http.StatusNotFound {
		return errAdminNotFound
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var ev errorView
		if decErr := json.NewDecoder(resp.Body).Decode(&ev); decErr == nil && ev.Error != "" {
			return fmt.Errorf("%w: %s", errAdminAPI, ev.Error)
		}
		return fmt.Errorf("%w: status %d", errAdminAPI, resp.StatusCode)
	}

	if out == nil {
		_, err := io.Copy(io.Discard, resp.Body)
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
