// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/convert-relay/internal/history"
	"github.com/pdiddy/convert-relay/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent conversions recorded by this client",
	Long: `History lists conversions this client has run, newest first. The log
lives in a local database next to the downloaded files; the backend is
never contacted.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of entries to show")
	historyCmd.Flags().String("db", "", "history database path (default <output-dir>/history.db)")
	historyCmd.Flags().Bool("json", false, "print entries as JSON")

	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		path = viper.GetString("client.history_path")
	}
	if path == "" {
		path = filepath.Join(resolveOutputDir(cmd), "history.db")
	}

	store, err := history.Open(path)
	if err != nil {
		return fmt.Errorf("opening history database: %w", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	limit, _ := cmd.Flags().GetInt("limit")
	receipts, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(receipts)
	}

	if len(receipts) == 0 {
		fmt.Println("No conversions recorded.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-20s  %-18s  %-10s  %-44s  %s\n",
		"Finished", "Kind", "Status", "File", "ID")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 120))

	for _, r := range receipts {
		fmt.Fprintf(os.Stdout, "%-20s  %-18s  %-10s  %-44s  %s\n",
			finishedColumn(r), r.Kind, r.Status, fileColumn(r), r.ConversionID)
	}

	counts, err := store.Counts(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "\n%s\n", summarizeCounts(counts))
	return nil
}

func finishedColumn(r types.Receipt) string {
	if r.FinishedAt.IsZero() {
		return "-"
	}
	return r.FinishedAt.Local().Format("2006-01-02 15:04:05")
}

// fileColumn renders "input -> output" for completed runs and
// "input (error)" for everything else, clipped to the column width.
func fileColumn(r types.Receipt) string {
	col := filepath.Base(r.InputFile)
	switch {
	case r.OutputFile != "":
		col += " -> " + filepath.Base(r.OutputFile)
	case r.Error != "":
		col += " (" + r.Error + ")"
	}
	if len(col) > 44 {
		col = col[:41] + "..."
	}
	return col
}

func summarizeCounts(counts map[types.JobStatus]int) string {
	order := []types.JobStatus{
		types.StatusCompleted, types.StatusFailed,
		types.StatusTimedOut, types.StatusNotFound,
	}
	total := 0
	parts := make([]string, 0, len(order))
	for _, status := range order {
		n := counts[status]
		total += n
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, status))
		}
	}
	return fmt.Sprintf("%s (total: %d)", strings.Join(parts, ", "), total)
}
