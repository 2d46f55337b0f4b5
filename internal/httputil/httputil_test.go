// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func responseWith(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestNewClient(t *testing.T) {
	assert.Equal(t, 5*time.Second, NewClient(5*time.Second).Timeout)
	assert.Equal(t, DefaultTimeout, NewClient(0).Timeout)
	assert.Equal(t, DefaultTimeout, NewClient(-1).Timeout)
}

func TestErrorMessage_Envelope(t *testing.T) {
	resp := responseWith(http.StatusNotFound, `{"error":"Conversion not found"}`)
	defer resp.Body.Close()

	assert.Equal(t, "Conversion not found", ErrorMessage(resp))
}

func TestErrorMessage_MalformedBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"truncated json", `{"error":"half`},
		{"not json", `<html>502 Bad Gateway</html>`},
		{"empty body", ``},
		{"envelope without message", `{"status":"failed"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := responseWith(http.StatusBadGateway, tt.body)
			defer resp.Body.Close()

			assert.Equal(t, "backend returned HTTP 502", ErrorMessage(resp))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	resp := responseWith(http.StatusOK, `{"conversion_id":"abc123","status":"processing"}`)
	defer resp.Body.Close()

	var got struct {
		ConversionID string `json:"conversion_id"`
		Status       string `json:"status"`
	}
	require.NoError(t, DecodeJSON(resp, &got))
	assert.Equal(t, "abc123", got.ConversionID)
	assert.Equal(t, "processing", got.Status)
}

func TestDecodeJSON_Malformed(t *testing.T) {
	resp := responseWith(http.StatusOK, `{"conversion_id":`)
	defer resp.Body.Close()

	var got map[string]any
	err := DecodeJSON(resp, &got)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding response body")
}

func TestDrainAndClose(t *testing.T) {
	closed := false
	resp := &http.Response{
		Body: &trackingCloser{Reader: strings.NewReader("leftover bytes"), onClose: func() { closed = true }},
	}
	DrainAndClose(resp.Body)
	assert.True(t, closed)
}

type trackingCloser struct {
	io.Reader
	onClose func()
}

func (c *trackingCloser) Close() error {
	c.onClose()
	return nil
}
