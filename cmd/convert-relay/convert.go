// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/convert-relay/internal/backend"
	"github.com/pdiddy/convert-relay/internal/history"
	"github.com/pdiddy/convert-relay/internal/kind"
	"github.com/pdiddy/convert-relay/internal/session"
	"github.com/pdiddy/convert-relay/internal/track"
)

const (
	defaultOutputDir   = "converted"
	defaultConcurrency = 4
)

var convertCmd = &cobra.Command{
	Use:   "convert <kind> <files...>",
	Short: "Convert files and download the results",
	Long: `Convert submits one or more files for conversion, follows each job to a
terminal state, and downloads finished artifacts into the output directory.
Every artifact gets a YAML receipt next to it, and every run is recorded in
the local history database.

Run "convert-relay kinds" to list the supported conversion kinds and the
options each accepts.`,
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().String("output-dir", "", "directory for converted files (default converted)")
	convertCmd.Flags().Int("concurrency", 0, "conversions in flight at once (default 4)")
	convertCmd.Flags().Duration("interval", 0, "delay between status polls (default 3s)")
	convertCmd.Flags().Int("max-attempts", 0, "status polls before giving up (default 60)")
	convertCmd.Flags().Float64("backoff", 0, "poll interval growth factor (default 1.0, fixed interval)")
	convertCmd.Flags().String("history-db", "", "history database path (default <output-dir>/history.db)")
	convertCmd.Flags().Bool("no-history", false, "skip recording this run in the history database")

	convertCmd.Flags().String("mode", "", "conversion mode: auto, fast, accurate, hybrid, or ocr")
	convertCmd.Flags().String("output-format", "", "image output format: jpg or png")
	convertCmd.Flags().String("dpi", "", "image resolution: 72, 150, or 300")
	convertCmd.Flags().String("quality", "", "image quality: 1-100")
	convertCmd.Flags().String("page-range", "", "pages to convert: all, first, or custom")

	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("provide a conversion kind and at least one file")
	}

	spec, ok := kind.Lookup(args[0])
	if !ok {
		return fmt.Errorf("unknown conversion kind %q: supported kinds are %s",
			args[0], strings.Join(kind.Names(), ", "))
	}
	files := args[1:]

	options := optionsFromFlags(cmd)
	outputDir := resolveOutputDir(cmd)
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	if concurrency <= 0 {
		concurrency = viper.GetInt("client.concurrency")
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	client := backend.New(backendConfig(cmd))
	tracker := track.New(client, pollConfig(cmd))
	store := openHistory(cmd, outputDir)
	if store != nil {
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		mu        sync.Mutex
		converted int
		failed    int
	)
	report := func(format string, a ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(os.Stdout, format, a...)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, file := range files {
		file := file
		g.Go(func() error {
			start := time.Now()
			sess := session.New(client, tracker)

			err := convertOne(ctx, sess, file, spec, options, outputDir)
			receipt := sess.Receipt()
			if store != nil {
				if recErr := store.Record(ctx, receipt); recErr != nil {
					report("  warning: history write failed: %v\n", recErr)
				}
			}

			mu.Lock()
			if err != nil {
				failed++
			} else {
				converted++
			}
			mu.Unlock()

			if err != nil {
				report("failed:  %s (%v)\n", file, err)
				return nil
			}
			report("converted: %s -> %s (%s)\n", file, receipt.OutputFile, formatDuration(time.Since(start)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "\nBatch summary: %d converted, %d failed (total: %d)\n",
		converted, failed, len(files))

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("conversion interrupted: %w", err)
	}
	if failed > 0 {
		return fmt.Errorf("%d conversion(s) failed", failed)
	}
	return nil
}

// convertOne runs one file through the full session workflow: validate,
// submit, poll to a terminal state, and save the artifact.
func convertOne(ctx context.Context, sess *session.Session, file string, spec *kind.Spec, options map[string]string, outputDir string) error {
	if err := sess.SelectFile(file, spec, options); err != nil {
		return err
	}
	if err := sess.Convert(ctx, nil); err != nil {
		return err
	}
	if _, err := sess.SaveArtifact(ctx, outputDir); err != nil {
		return err
	}
	return nil
}

// optionsFromFlags collects the conversion option flags the user set.
// Validation happens in the session against the chosen kind.
func optionsFromFlags(cmd *cobra.Command) map[string]string {
	options := map[string]string{}
	for _, name := range []string{"mode", "output_format", "dpi", "quality", "page_range"} {
		flagName := strings.ReplaceAll(name, "_", "-")
		if v, _ := cmd.Flags().GetString(flagName); v != "" {
			options[name] = v
		}
	}
	return options
}

func resolveOutputDir(cmd *cobra.Command) string {
	outputDir, _ := cmd.Flags().GetString("output-dir")
	if outputDir == "" {
		outputDir = viper.GetString("client.output_dir")
	}
	if outputDir == "" {
		outputDir = defaultOutputDir
	}
	return outputDir
}

// openHistory opens the run log. History is best effort: a failure to
// open it warns and the conversion proceeds unrecorded.
func openHistory(cmd *cobra.Command, outputDir string) *history.Store {
	if noHistory, _ := cmd.Flags().GetBool("no-history"); noHistory {
		return nil
	}
	path, _ := cmd.Flags().GetString("history-db")
	if path == "" {
		path = viper.GetString("client.history_path")
	}
	if path == "" {
		path = filepath.Join(outputDir, "history.db")
	}

	store, err := history.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: history database unavailable: %v\n", err)
		return nil
	}
	return store
}
