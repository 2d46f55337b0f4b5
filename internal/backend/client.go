// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package backend implements the HTTP client for the conversion backend.
// The gateway uses it to forward requests; the CLI client uses it to talk
// to a gateway, which exposes the identical wire shape. Every error it
// returns is a classified *types.Failure.
package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/pdiddy/convert-relay/internal/httputil"
	"github.com/pdiddy/convert-relay/pkg/types"
)

// DefaultBaseURL is the conversion backend root used when none is
// configured.
const DefaultBaseURL = "http://127.0.0.1:8000/api"

const defaultUserAgent = "convert-relay"

// User-facing messages for infrastructure failures. The gateway and the
// CLI surface these verbatim.
const (
	msgUnavailable    = "conversion service is not available, please try again later"
	msgJobNotFound    = "conversion not found or expired"
	msgFileNotFound   = "file not found or has expired"
	msgBadResponse    = "invalid response from conversion backend"
	msgNoConversionID = "backend accepted the request but returned no conversion id"
)

// Client talks to the conversion backend over HTTP. One base URL and one
// request timeout cover all three operations.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// New builds a Client from config, applying DefaultBaseURL and the
// default timeout where unset.
func New(cfg types.BackendConfig) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return &Client{
		baseURL:   base,
		userAgent: ua,
		http:      httputil.NewClient(cfg.Timeout),
	}
}

// BaseURL returns the backend root this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Submit uploads a file as a multipart body to the backend's conversion
// endpoint for the given kind and returns the acknowledgement carrying
// the backend-assigned conversion id. Options are written as additional
// form fields; callers pass only validated, allow-listed options.
func (c *Client) Submit(ctx context.Context, kind, filename string, file io.Reader, options map[string]string) (*types.SubmitAck, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copying file into form: %w", err)
	}

	// Stable field order keeps request bodies reproducible.
	names := make([]string, 0, len(options))
	for name := range options {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writer.WriteField(name, options[name]); err != nil {
			return nil, fmt.Errorf("writing field %s: %w", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	endpoint := fmt.Sprintf("%s/convert/%s", c.baseURL, url.PathEscape(kind))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, unreachable(err)
	}
	defer httputil.DrainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.submitFailure(resp)
	}

	var ack types.SubmitAck
	if err := httputil.DecodeJSON(resp, &ack); err != nil {
		return nil, badResponse(resp.StatusCode)
	}
	if !ack.Success || ack.ConversionID == "" {
		msg := ack.Message
		if msg == "" {
			msg = msgNoConversionID
		}
		return nil, &types.Failure{Kind: types.FailSubmission, Message: msg, HTTPStatus: resp.StatusCode}
	}
	if ack.Status == "" {
		ack.Status = types.StatusProcessing
	}
	return &ack, nil
}

// Status fetches one observation of a conversion job. A backend 404 is
// reported as a not-found failure, distinct from transport errors, so
// pollers stop instead of retrying.
func (c *Client) Status(ctx context.Context, conversionID string) (*types.JobState, error) {
	endpoint := fmt.Sprintf("%s/status/%s", c.baseURL, url.PathEscape(conversionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, unreachable(err)
	}
	defer httputil.DrainAndClose(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, notFound(resp, msgJobNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, reportedFailure(resp)
	}

	var state types.JobState
	if err := httputil.DecodeJSON(resp, &state); err != nil {
		return nil, badResponse(resp.StatusCode)
	}
	if state.ConversionID == "" {
		state.ConversionID = conversionID
	}
	return &state, nil
}

// Artifact is an open download stream. The caller owns Body and must
// close it.
type Artifact struct {
	Body io.ReadCloser

	// ContentLength is the backend-reported size, or -1 when unknown.
	ContentLength int64

	// ContentType is the backend-reported type, informational only —
	// the gateway derives the client-facing type from the filename.
	ContentType string
}

// Download opens the artifact byte stream for a completed conversion.
// A backend 404 means the artifact expired or never existed; the body is
// never returned in that case, so callers cannot mistake an error payload
// for file content.
func (c *Client) Download(ctx context.Context, downloadID, filename string) (*Artifact, error) {
	endpoint := fmt.Sprintf("%s/download/%s/%s",
		c.baseURL, url.PathEscape(downloadID), url.PathEscape(filename))
	return c.fetch(ctx, endpoint)
}

// Fetch opens the artifact at a backend-provided download URL, as found
// in a completed status payload. The URL may be absolute or host-relative
// (e.g. "/api/download/abc123/out.jpg"); relative URLs resolve against
// the configured base.
func (c *Client) Fetch(ctx context.Context, downloadURL string) (*Artifact, error) {
	ref, err := url.Parse(downloadURL)
	if err != nil {
		return nil, fmt.Errorf("parsing download URL %q: %w", downloadURL, err)
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL %q: %w", c.baseURL, err)
	}
	return c.fetch(ctx, base.ResolveReference(ref).String())
}

func (c *Client) fetch(ctx context.Context, endpoint string) (*Artifact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, unreachable(err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		defer httputil.DrainAndClose(resp.Body)
		return nil, notFound(resp, msgFileNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		defer httputil.DrainAndClose(resp.Body)
		return nil, reportedFailure(resp)
	}

	return &Artifact{
		Body:          resp.Body,
		ContentLength: resp.ContentLength,
		ContentType:   resp.Header.Get("Content-Type"),
	}, nil
}

// unreachable classifies a round-trip error: the backend could not be
// reached at all, so the request is safe to retry later.
func unreachable(err error) *types.Failure {
	return &types.Failure{Kind: types.FailTransport, Message: msgUnavailable + ": " + err.Error()}
}

// badResponse covers 2xx responses whose body is not the expected shape.
// HTTPStatus distinguishes these from connection failures (status 0).
func badResponse(status int) *types.Failure {
	return &types.Failure{Kind: types.FailTransport, Message: msgBadResponse, HTTPStatus: status}
}

// notFound normalizes a backend 404, preferring the backend's message.
func notFound(resp *http.Response, fallback string) *types.Failure {
	msg := httputil.ErrorMessage(resp)
	if strings.HasPrefix(msg, "backend returned HTTP") {
		msg = fallback
	}
	return &types.Failure{Kind: types.FailNotFound, Message: msg, HTTPStatus: http.StatusNotFound}
}

// submitFailure maps a non-2xx submit response. A backend 503 means the
// requested conversion service is down, which is retryable; everything
// else is a rejection of this particular request.
func (c *Client) submitFailure(resp *http.Response) *types.Failure {
	msg := httputil.ErrorMessage(resp)
	if resp.StatusCode == http.StatusServiceUnavailable {
		if strings.HasPrefix(msg, "backend returned HTTP") {
			msg = msgUnavailable
		}
		return &types.Failure{Kind: types.FailTransport, Message: msg, HTTPStatus: resp.StatusCode}
	}
	if resp.StatusCode == http.StatusNotFound {
		return notFound(resp, msgUnavailable)
	}
	return &types.Failure{Kind: types.FailSubmission, Message: msg, HTTPStatus: resp.StatusCode}
}

// reportedFailure maps a non-2xx, non-404 status or download response.
func reportedFailure(resp *http.Response) *types.Failure {
	return &types.Failure{
		Kind:       types.FailSubmission,
		Message:    httputil.ErrorMessage(resp),
		HTTPStatus: resp.StatusCode,
	}
}
