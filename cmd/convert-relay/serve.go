// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/convert-relay/internal/backend"
	"github.com/pdiddy/convert-relay/internal/gateway"
)

const defaultListen = ":8090"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the conversion gateway HTTP server",
	Long: `Serve runs the public conversion API: it accepts uploads on
/api/convert/{kind}, validates them before they reach the backend, and
relays status checks and artifact downloads. The process drains in-flight
requests on SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address (default :8090)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	listen, _ := cmd.Flags().GetString("listen")
	if listen == "" {
		listen = viper.GetString("gateway.listen")
	}
	if listen == "" {
		listen = defaultListen
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	client := backend.New(backendConfig(cmd))
	gw := gateway.New(client, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return gw.Serve(ctx, listen)
}
