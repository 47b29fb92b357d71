package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
)

const (
	formatJSON  = "json"
	formatTable = "table"
	valueNA     = "N/A"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatClients renders a slice of clients in the requested format.
func formatClients(clients []clientView, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONValue(clients)
	case formatTable:
		return formatClientsTable(clients), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatClient renders a single client in the requested format.
func formatClient(client clientView, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONValue(client)
	case formatTable:
		return formatClientDetail(client), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatEvent renders a state-change event in the requested format.
func formatEvent(event stateChangeView, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONValue(event)
	case formatTable:
		return formatEventTable(event), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// --- Table formatters ---

func formatClientsTable(clients []clientView) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDR\tSTATE\tSCORE\tREMOTE-BSSID\tCLOSE-BSSID")

	for _, c := range clients {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			c.Addr,
			c.State,
			c.Score,
			orNA(c.RemoteBSSID),
			orNA(c.CloseBSSID),
		)
	}

	_ = w.Flush()

	return buf.String()
}

func formatClientDetail(c clientView) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Address:\t%s\n", c.Addr)
	fmt.Fprintf(w, "State:\t%s\n", c.State)
	fmt.Fprintf(w, "Score:\t%d\n", c.Score)
	fmt.Fprintf(w, "Remote BSSID:\t%s\n", orNA(c.RemoteBSSID))
	fmt.Fprintf(w, "Remote Channel:\t%d\n", c.RemoteChannel)
	fmt.Fprintf(w, "Remote Adjusted Time:\t%s\n", orNA(c.RemoteAdjustedTime))
	fmt.Fprintf(w, "Close BSSID:\t%s\n", orNA(c.CloseBSSID))
	fmt.Fprintf(w, "Association Time:\t%s\n", orNA(c.AssociationTime))

	_ = w.Flush()

	return buf.String()
}

func formatEventTable(e stateChangeView) string {
	return fmt.Sprintf("%s: %s -> %s (%s)", e.Client, e.OldState, e.NewState, e.Event)
}

func formatJSONValue(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json: %w", err)
	}
	return string(b) + "\n", nil
}

func orNA(s string) string {
	if s == "" {
		return valueNA
	}
	return s
}
