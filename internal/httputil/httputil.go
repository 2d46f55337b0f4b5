// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared by the gateway and the
// conversion client: client construction with one timeout policy, and
// defensive decoding of backend response bodies.
package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout is the request timeout applied when none is configured.
// One policy covers every backend call.
const DefaultTimeout = 120 * time.Second

// maxBodyBytes bounds how much of a JSON response body is read. Status
// and error payloads are small; artifact bytes never go through the JSON
// decoders.
const maxBodyBytes = 1 << 20

// NewClient returns an http.Client with the given timeout, or
// DefaultTimeout when timeout is zero or negative.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// DrainAndClose discards any unread response body and closes it so the
// underlying connection can be reused.
func DrainAndClose(body io.ReadCloser) {
	io.Copy(io.Discard, io.LimitReader(body, maxBodyBytes))
	body.Close()
}

// errorEnvelope is the normalized error payload shape: {"error": "..."}.
type errorEnvelope struct {
	Error string `json:"error"`
}

// ErrorMessage extracts the error message from a non-2xx response body.
// A missing, malformed, or off-shape body falls back to a generic HTTP
// status description, so reporting a failure can itself never fail.
func ErrorMessage(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err == nil && len(data) > 0 {
		var env errorEnvelope
		if jsonErr := json.Unmarshal(data, &env); jsonErr == nil && env.Error != "" {
			return env.Error
		}
	}
	return fmt.Sprintf("backend returned HTTP %d", resp.StatusCode)
}

// DecodeJSON decodes a JSON response body into v.
func DecodeJSON(resp *http.Response, v any) error {
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}
