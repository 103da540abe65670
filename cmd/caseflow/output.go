package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"caseflow/internal/api"
)

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func printJSON(cmd *cobra.Command, value any) error {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	cmd.Println(string(encoded))
	return nil
}

// printQueueState renders a queue state as a table on terminals and as
// JSON otherwise. The --json flag forces JSON.
func printQueueState(cmd *cobra.Command, state *api.QueueStateResponse, forceJSON bool) error {
	if forceJSON || !stdoutIsTerminal() {
		return printJSON(cmd, state)
	}

	if state.CurrentCase == nil {
		if state.Message != "" {
			cmd.Println(state.Message)
		} else {
			cmd.Println("No case to present.")
		}
		if state.SessionID != "" {
			cmd.Printf("Session: %s (queue size %d)\n", state.SessionID, state.TotalInQueue)
		}
		return nil
	}

	rows := [][]string{
		{"Session", state.SessionID},
		{"Case", state.CurrentCase.ID},
		{"Title", state.CurrentCase.Title},
		{"Position", fmt.Sprintf("%d of %d", state.QueuePosition+1, state.TotalInQueue)},
	}
	if len(state.CurrentCase.Attributes) > 0 {
		rows = append(rows, []string{"Attributes", formatAttributes(state.CurrentCase.Attributes)})
	}
	cmd.Println(renderTable([]string{"Field", "Value"}, rows))
	return nil
}

func formatAttributes(attrs map[string]string) string {
	pairs := make([]string, 0, len(attrs))
	for key, value := range attrs {
		pairs = append(pairs, key+"="+value)
	}
	return strings.Join(pairs, ", ")
}

// parseFilterArgs converts repeated key=value flags into the filter
// object sent to the daemon.
func parseFilterArgs(values []string) (map[string]any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	filters := make(map[string]any, len(values))
	for _, value := range values {
		key, val, ok := strings.Cut(value, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q (expected key=value)", value)
		}
		filters[key] = val
	}
	return filters, nil
}
