// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pdiddy/convert-relay/internal/backend"
	"github.com/pdiddy/convert-relay/internal/track"
	"github.com/pdiddy/convert-relay/pkg/types"
)

var statusCmd = &cobra.Command{
	Use:   "status <conversion-id>",
	Short: "Check the status of a conversion job",
	Long: `Status reports one observation of a conversion job. With --wait it polls
until the job reaches a terminal state, using the same schedule as the
convert command.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().Bool("wait", false, "poll until the job reaches a terminal state")
	statusCmd.Flags().Bool("json", false, "output the raw job state as JSON")
	statusCmd.Flags().Duration("interval", 0, "delay between status polls with --wait (default 3s)")
	statusCmd.Flags().Int("max-attempts", 0, "status polls before giving up with --wait (default 60)")
	statusCmd.Flags().Float64("backoff", 0, "poll interval growth factor with --wait (default 1.0)")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	conversionID := args[0]
	client := backend.New(backendConfig(cmd))
	ctx := cmd.Context()

	wait, _ := cmd.Flags().GetBool("wait")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if !wait {
		state, err := client.Status(ctx, conversionID)
		if err != nil {
			return err
		}
		return printState(state, jsonOutput)
	}

	tracker := track.New(client, pollConfig(cmd))
	outcome, err := tracker.Track(ctx, conversionID, nil)
	if err != nil {
		return err
	}

	state := outcome.State
	if state == nil {
		state = &types.JobState{ConversionID: conversionID, Status: outcome.Status}
	} else {
		state.Status = outcome.Status
	}
	if state.Error == "" && outcome.Failure != nil {
		state.Error = outcome.Failure.Message
	}

	if err := printState(state, jsonOutput); err != nil {
		return err
	}
	if outcome.Status != types.StatusCompleted {
		return fmt.Errorf("conversion %s: %s", conversionID, outcome.Status)
	}
	return nil
}

func printState(state *types.JobState, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	}

	fmt.Printf("Conversion: %s\n", state.ConversionID)
	fmt.Printf("Status:     %s\n", state.Status)
	if state.Filename != "" {
		fmt.Printf("Filename:   %s\n", state.Filename)
	}
	if state.DownloadURL != "" {
		fmt.Printf("Download:   %s\n", state.DownloadURL)
	}
	if state.Error != "" {
		fmt.Printf("Error:      %s\n", state.Error)
	}
	if len(state.Metadata) > 0 {
		keys := make([]string, 0, len(state.Metadata))
		for k := range state.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Println("Metadata:")
		for _, k := range keys {
			fmt.Printf("  %s: %v\n", k, state.Metadata[k])
		}
	}
	return nil
}
