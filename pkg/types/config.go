package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that call the
// conversion backend.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout applied to every backend call.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "convert-relay/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// BackendConfig identifies the conversion backend endpoint. One base URL
// and one timeout policy cover every backend call.
type BackendConfig struct {
	HTTPConfig `yaml:",inline"`

	// BaseURL is the backend API root, e.g. "http://127.0.0.1:8000/api".
	BaseURL string `json:"base_url" yaml:"base_url"`
}

// PollConfig holds the status-polling policy for the job tracker.
type PollConfig struct {
	// Interval is the delay between consecutive status polls (default 3s).
	Interval time.Duration `json:"interval" yaml:"interval"`

	// MaxAttempts bounds the number of polls before the tracker gives up
	// and reports a timeout (default 60).
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// BackoffFactor multiplies the interval after each poll. 1.0 (the
	// default) keeps the interval fixed.
	BackoffFactor float64 `json:"backoff_factor" yaml:"backoff_factor"`

	// MaxInterval caps the interval when backoff is enabled (default 30s).
	MaxInterval time.Duration `json:"max_interval" yaml:"max_interval"`

	// ProgressCap is the highest synthetic progress value reported while
	// the job is still running; progress reaches 100 only on completion
	// (default 90).
	ProgressCap int `json:"progress_cap" yaml:"progress_cap"`
}

// GatewayConfig holds settings for the proxy gateway service.
type GatewayConfig struct {
	// Listen is the address the gateway serves on (default ":8090").
	Listen string `json:"listen" yaml:"listen"`

	// Backend is the conversion backend the gateway forwards to.
	Backend BackendConfig `json:"backend" yaml:"backend"`
}

// ClientConfig holds settings for the conversion client (CLI sessions).
type ClientConfig struct {
	// Backend is the conversion API the client talks to — either a
	// convert-relay gateway or the backend directly; the wire shape is
	// identical.
	Backend BackendConfig `json:"backend" yaml:"backend"`

	// Poll is the status-polling policy.
	Poll PollConfig `json:"poll" yaml:"poll"`

	// OutputDir is where downloaded artifacts and receipts are written
	// (default "converted").
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// HistoryPath is the SQLite database recording conversion outcomes
	// (default "converted/history.db").
	HistoryPath string `json:"history_path" yaml:"history_path"`

	// Concurrency bounds how many files a batch conversion processes at
	// once (default 4).
	Concurrency int `json:"concurrency" yaml:"concurrency"`
}

// Config groups all component configurations.
type Config struct {
	Gateway GatewayConfig `json:"gateway" yaml:"gateway"`
	Client  ClientConfig  `json:"client" yaml:"client"`
}
