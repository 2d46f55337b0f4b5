// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package gateway exposes the public conversion HTTP API. It validates
// uploads before they spend backend capacity, forwards accepted work to
// the conversion backend, and relays job status and artifacts back to
// clients. The gateway holds no job state of its own; the backend owns
// every conversion id.
package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pdiddy/convert-relay/internal/backend"
	"github.com/pdiddy/convert-relay/internal/kind"
	"github.com/pdiddy/convert-relay/pkg/types"
)

// Client-facing messages fixed by the public API contract.
const (
	msgServiceUnavailable = "This conversion service is not available"
	msgConversionNotFound = "Conversion not found"
	msgFileNotFound       = "File not found or has expired"
)

const shutdownGrace = 10 * time.Second

// Gateway proxies the conversion API between clients and the backend.
type Gateway struct {
	backend *backend.Client
	logger  *slog.Logger
}

// New returns a gateway forwarding to the given backend client. A nil
// logger disables request logging.
func New(client *backend.Client, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Gateway{backend: client, logger: logger}
}

// Router builds the gin engine with all public routes attached.
func (g *Gateway) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), g.requestLog(), cors())

	api := router.Group("/api")
	api.GET("/health", g.handleHealth)
	api.POST("/convert/:kind", g.handleConvert)
	api.GET("/status/:id", g.handleStatus)
	api.GET("/download/:id/:filename", g.handleDownload)
	return router
}

// Serve runs the gateway on addr until ctx is cancelled, then drains
// in-flight requests before returning.
func (g *Gateway) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: g.Router()}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	g.logger.Info("gateway listening", "addr", addr, "backend", g.backend.BaseURL())

	select {
	case err := <-errCh:
		return fmt.Errorf("gateway server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("draining gateway: %w", err)
	}
	g.logger.Info("gateway stopped")
	return nil
}

func (g *Gateway) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		g.logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).Round(time.Millisecond).String(),
		)
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// handleConvert accepts a multipart upload, validates it against the
// conversion kind's rules, and forwards it. Validation failures are
// answered locally; the backend never sees the request.
func (g *Gateway) handleConvert(c *gin.Context) {
	spec, ok := kind.Lookup(c.Param("kind"))
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": msgServiceUnavailable})
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file provided"})
		return
	}
	filename := filepath.Base(fh.Filename)

	if err := spec.ValidateFile(filename, fh.Size); err != nil {
		g.reject(c, err)
		return
	}

	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read uploaded file"})
		return
	}
	defer f.Close()

	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	if err := spec.ValidateSniff(head[:n]); err != nil {
		g.reject(c, err)
		return
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot read uploaded file"})
		return
	}

	raw := make(map[string]string, len(spec.Fields))
	for _, field := range spec.Fields {
		if v := c.PostForm(field.Name); v != "" {
			raw[field.Name] = v
		}
	}
	options, err := spec.ValidateOptions(raw)
	if err != nil {
		g.reject(c, err)
		return
	}

	ack, err := g.backend.Submit(c.Request.Context(), string(spec.Kind), filename, f, options)
	if err != nil {
		g.relayError(c, err)
		return
	}
	if ack.StatusURL == "" {
		ack.StatusURL = "/api/status/" + ack.ConversionID
	}

	g.logger.Info("conversion accepted",
		"kind", spec.Kind,
		"conversion_id", ack.ConversionID,
		"file", filename,
		"size", fh.Size,
	)
	c.JSON(http.StatusAccepted, ack)
}

// handleStatus relays one job observation. The job state passes through
// unchanged; clients capture download_url and metadata exactly as the
// backend reported them.
func (g *Gateway) handleStatus(c *gin.Context) {
	state, err := g.backend.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		if types.FailureIs(err, types.FailNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": msgConversionNotFound})
			return
		}
		g.relayError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// handleDownload streams a finished artifact to the client.
func (g *Gateway) handleDownload(c *gin.Context) {
	conversionID := c.Param("id")
	filename := c.Param("filename")

	artifact, err := g.backend.Download(c.Request.Context(), conversionID, filename)
	if err != nil {
		if types.FailureIs(err, types.FailNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": msgFileNotFound})
			return
		}
		g.relayError(c, err)
		return
	}
	defer artifact.Body.Close()

	contentType := artifact.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = kind.ContentTypeFor(filename)
	}
	extra := map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", filename),
	}
	c.DataFromReader(http.StatusOK, artifact.ContentLength, contentType, artifact.Body, extra)
}

func (g *Gateway) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "convert-relay",
		"backend": g.backend.BaseURL(),
		"kinds":   kind.Names(),
	})
}

// reject answers a locally failed validation; nothing was forwarded.
func (g *Gateway) reject(c *gin.Context, err error) {
	g.logger.Warn("upload rejected",
		"path", c.Request.URL.Path,
		"reason", err.Error(),
	)
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// relayError maps a backend failure onto the client-facing envelope.
func (g *Gateway) relayError(c *gin.Context, err error) {
	f, ok := types.AsFailure(err)
	if !ok {
		f = &types.Failure{Kind: types.FailTransport, Message: err.Error()}
	}
	status := statusFor(f)
	g.logger.Error("backend call failed",
		"path", c.Request.URL.Path,
		"status", status,
		"reason", f.Message,
	)
	c.JSON(status, gin.H{"error": f.Message})
}

// statusFor maps failure kinds to client-facing HTTP statuses. Transport
// failures distinguish an unreachable backend (503, worth retrying) from
// a malformed backend response (500, not retryable as-is).
func statusFor(f *types.Failure) int {
	switch f.Kind {
	case types.FailValidation:
		return http.StatusBadRequest
	case types.FailNotFound:
		return http.StatusNotFound
	case types.FailTransport:
		if f.HTTPStatus == 0 || f.HTTPStatus == http.StatusServiceUnavailable {
			return http.StatusServiceUnavailable
		}
		return http.StatusInternalServerError
	case types.FailSubmission:
		if f.HTTPStatus >= 400 && f.HTTPStatus < 500 {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}
