// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// JobStatus is the state of a conversion job as reported by the backend,
// plus the two client-local terminal states the backend never emits.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"

	// StatusTimedOut is reached locally when the poll budget is exhausted
	// while the backend still reports a non-terminal status.
	StatusTimedOut JobStatus = "timed_out"

	// StatusNotFound is reached locally when the backend no longer knows
	// the job or the artifact has expired.
	StatusNotFound JobStatus = "not_found"
)

// Terminal reports whether no further status transition can occur.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTimedOut, StatusNotFound:
		return true
	}
	return false
}

// SubmitAck is the acknowledgement for an accepted conversion request.
// The backend assigns the conversion id; clients never fabricate one.
type SubmitAck struct {
	// Success is true when the request was accepted for processing.
	Success bool `json:"success"`

	// ConversionID is the opaque job identifier assigned by the backend.
	ConversionID string `json:"conversion_id"`

	// Status is the initial job status, normally "processing".
	Status JobStatus `json:"status"`

	// Message is an optional human-readable acceptance note.
	Message string `json:"message,omitempty"`

	// StatusURL is an optional relative URL for polling this job.
	StatusURL string `json:"status_url,omitempty"`
}

// JobState is one observation of a conversion job, as returned by the
// status endpoint. Result fields are populated only once the job has
// completed; Error only once it has failed.
type JobState struct {
	// ConversionID is the opaque job identifier.
	ConversionID string `json:"conversion_id"`

	// Success is true once the conversion finished without error.
	Success bool `json:"success"`

	// Status is the job status at observation time.
	Status JobStatus `json:"status"`

	// Filename is the artifact filename, present when completed.
	Filename string `json:"filename,omitempty"`

	// DownloadURL is the artifact location, present when completed.
	DownloadURL string `json:"download_url,omitempty"`

	// Error is the backend failure message, present when failed.
	Error string `json:"error,omitempty"`

	// Metadata carries format-specific details (page counts, sheet
	// names, conversion method used). Passed through untouched.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// JobResult is the artifact reference captured from a completed JobState.
type JobResult struct {
	DownloadURL string         `json:"download_url" yaml:"download_url"`
	Filename    string         `json:"filename" yaml:"filename"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Result extracts the artifact reference from a completed observation.
// It returns nil unless Status is StatusCompleted.
func (s JobState) Result() *JobResult {
	if s.Status != StatusCompleted {
		return nil
	}
	return &JobResult{
		DownloadURL: s.DownloadURL,
		Filename:    s.Filename,
		Metadata:    s.Metadata,
	}
}

// Receipt records the outcome of one conversion run by the client. It is
// written as YAML next to the downloaded artifact and indexed in the
// local history database.
type Receipt struct {
	// ConversionID is the backend-assigned job identifier.
	ConversionID string `json:"conversion_id" yaml:"conversion_id"`

	// Kind is the conversion kind slug (e.g. "pdf-to-word").
	Kind string `json:"kind" yaml:"kind"`

	// InputFile is the local path of the submitted file.
	InputFile string `json:"input_file" yaml:"input_file"`

	// OutputFile is the local path of the downloaded artifact, if any.
	OutputFile string `json:"output_file,omitempty" yaml:"output_file,omitempty"`

	// Status is the terminal status the session observed.
	Status JobStatus `json:"status" yaml:"status"`

	// Error is the user-displayable failure message, if any.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	// Metadata carries the completed job's format-specific details.
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// SubmittedAt is when the file was submitted to the gateway.
	SubmittedAt time.Time `json:"submitted_at" yaml:"submitted_at"`

	// FinishedAt is when the session reached a terminal state.
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
}
