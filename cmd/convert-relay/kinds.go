// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/convert-relay/internal/kind"
)

var kindsCmd = &cobra.Command{
	Use:   "kinds",
	Short: "List the supported conversion kinds",
	Long: `Kinds lists every supported conversion with its accepted input
extensions, size limit, usual output extension, and optional fields.`,
	RunE: runKinds,
}

func init() {
	rootCmd.AddCommand(kindsCmd)
}

func runKinds(cmd *cobra.Command, args []string) error {
	fmt.Fprintf(os.Stdout, "%-18s  %-12s  %-6s  %-7s  %s\n",
		"Kind", "Input", "Max", "Output", "Options")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))

	specs := kind.All()
	for _, s := range specs {
		options := make([]string, 0, len(s.Fields))
		for _, f := range s.Fields {
			options = append(options, fieldSummary(f))
		}
		fmt.Fprintf(os.Stdout, "%-18s  %-12s  %-6s  %-7s  %s\n",
			s.Kind,
			strings.Join(s.Extensions, ", "),
			fmt.Sprintf("%d MB", s.MaxBytes>>20),
			s.OutputExt,
			strings.Join(options, ", "))
	}

	fmt.Fprintf(os.Stdout, "\n%d kinds\n", len(specs))
	return nil
}

func fieldSummary(f kind.FieldSpec) string {
	if len(f.Allowed) > 0 {
		return f.Name + "=" + strings.Join(f.Allowed, "|")
	}
	if f.Max > 0 {
		return fmt.Sprintf("%s=%d-%d", f.Name, f.Min, f.Max)
	}
	return f.Name
}
