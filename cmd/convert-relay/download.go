// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdiddy/convert-relay/internal/backend"
)

var downloadCmd = &cobra.Command{
	Use:   "download <conversion-id> [filename]",
	Short: "Download the artifact of a completed conversion",
	Long: `Download fetches the converted file for a job. Without a filename it asks
the backend for the job's reported download location first; artifacts of
expired jobs are gone and cannot be recovered.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().String("output-dir", "", "directory for downloaded files (default converted)")

	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	client := backend.New(backendConfig(cmd))
	ctx := cmd.Context()
	conversionID := args[0]

	var (
		artifact *backend.Artifact
		filename string
		err      error
	)
	if len(args) == 2 {
		filename = args[1]
		artifact, err = client.Download(ctx, conversionID, filename)
	} else {
		state, statusErr := client.Status(ctx, conversionID)
		if statusErr != nil {
			return statusErr
		}
		result := state.Result()
		if result == nil {
			return fmt.Errorf("conversion %s is %s, nothing to download", conversionID, state.Status)
		}
		filename = result.Filename
		if filename == "" {
			filename = path.Base(result.DownloadURL)
		}
		artifact, err = client.Fetch(ctx, result.DownloadURL)
	}
	if err != nil {
		return err
	}
	defer artifact.Body.Close()

	outputDir := resolveOutputDir(cmd)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	dest := filepath.Join(outputDir, filename)

	written, err := saveTo(dest, artifact.Body)
	if err != nil {
		return err
	}
	fmt.Printf("downloaded: %s (%d bytes)\n", dest, written)
	return nil
}

// saveTo streams body into dest via a temp file so aborted downloads
// never leave a partial artifact under the final name.
func saveTo(dest string, body io.Reader) (int64, error) {
	tmpFile, err := os.CreateTemp(filepath.Dir(dest), ".download-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	written, copyErr := io.Copy(tmpFile, body)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("writing %s: %w", dest, copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("closing temp file: %w", closeErr)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("renaming temp file: %w", err)
	}
	return written, nil
}
