// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the convert-relay CLI. It serves
// the conversion gateway and drives conversions from the command line:
// submit files, follow their status, and download finished artifacts.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/convert-relay/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

const userAgent = "convert-relay/0.1"

// rootCmd is the base command for the convert-relay CLI.
var rootCmd = &cobra.Command{
	Use:   "convert-relay",
	Short: "Document conversion gateway and client",
	Long: `convert-relay fronts a document conversion backend. The serve command
runs the public HTTP gateway that validates uploads and proxies jobs; the
convert command submits files and follows them to completion; status,
download, and history inspect individual jobs and past runs.

The backend owns all conversion state: convert-relay never fabricates a
conversion id and never re-derives a download location.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./convert-relay.yaml or ~/.config/convert-relay/config.yaml)")
	rootCmd.PersistentFlags().String("base-url", "", "conversion backend base URL (default http://127.0.0.1:8000/api)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "HTTP request timeout for backend calls (default 120s)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("convert-relay")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "convert-relay"))
		}
	}

	viper.SetEnvPrefix("CONVERT_RELAY")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// backendConfig resolves backend settings: flag, then config file or
// environment, then the built-in defaults.
func backendConfig(cmd *cobra.Command) types.BackendConfig {
	baseURL, _ := cmd.Flags().GetString("base-url")
	if baseURL == "" {
		baseURL = viper.GetString("backend.base_url")
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout == 0 {
		timeout = viper.GetDuration("backend.timeout")
	}

	return types.BackendConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   timeout,
			UserAgent: userAgent,
		},
		BaseURL: baseURL,
	}
}

// pollConfig resolves tracker settings from flags with config fallback.
func pollConfig(cmd *cobra.Command) types.PollConfig {
	interval, _ := cmd.Flags().GetDuration("interval")
	if interval == 0 {
		interval = viper.GetDuration("client.poll.interval")
	}
	maxAttempts, _ := cmd.Flags().GetInt("max-attempts")
	if maxAttempts == 0 {
		maxAttempts = viper.GetInt("client.poll.max_attempts")
	}
	backoff, _ := cmd.Flags().GetFloat64("backoff")
	if backoff == 0 {
		backoff = viper.GetFloat64("client.poll.backoff_factor")
	}

	return types.PollConfig{
		Interval:      interval,
		MaxAttempts:   maxAttempts,
		BackoffFactor: backoff,
	}
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
