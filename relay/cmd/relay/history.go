package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/telhawk-systems/callrelay/relay/internal/journal"
	"github.com/telhawk-systems/callrelay/relay/internal/models"
)

var historyCmd = &cobra.Command{
	Use:   "history <call_id>",
	Short: "Print a call's journaled events",
	Long: `Reads the durable line log for a call and prints its events in arrival
order. Events that arrived without a call id are stored under "global".`,
	Example: `  relay history c-123
  relay history c-123 --dir /var/lib/callrelay --output yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().String("dir", "./logs", "journal directory")
	historyCmd.Flags().StringP("output", "o", "lines", "output format: lines, json, yaml")
}

func runHistory(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("dir")
	format, _ := cmd.Flags().GetString("output")

	events, err := journal.ReadFile(dir, args[0])
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("no journal for call %q in %s", args[0], dir)
		}
		return err
	}

	return writeEvents(cmd.OutOrStdout(), events, format)
}

func writeEvents(w io.Writer, events []models.Event, format string) error {
	switch format {
	case "lines":
		for _, ev := range events {
			if _, err := fmt.Fprintln(w, ev.String()); err != nil {
				return err
			}
		}
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	case "yaml":
		docs := make([]any, 0, len(events))
		for _, ev := range events {
			var v any
			if err := json.Unmarshal(ev, &v); err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			docs = append(docs, v)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(docs); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (supported: lines, json, yaml)", format)
	}
}
