// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package session implements the per-upload conversion workflow: select
// a file, validate it locally, submit it, follow the job to a terminal
// state, and capture the result. The lifecycle is a small state machine
// whose transition rules are the pure function Next; the Session struct
// owns one upload's state and emits events only when their guards hold
// (a file that fails validation never produces a submit event).
package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/convert-relay/internal/backend"
	"github.com/pdiddy/convert-relay/internal/kind"
	"github.com/pdiddy/convert-relay/internal/track"
	"github.com/pdiddy/convert-relay/pkg/types"
)

// Phase is a session lifecycle state.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseFileSelected Phase = "fileSelected"
	PhaseSubmitting   Phase = "submitting"
	PhasePolling      Phase = "polling"
	PhaseSucceeded    Phase = "succeeded"
	PhaseFailed       Phase = "failed"
)

// Event drives phase transitions.
type Event string

const (
	// EventSelect: a file was chosen.
	EventSelect Event = "select"

	// EventSubmit: a validated file is being submitted.
	EventSubmit Event = "submit"

	// EventAccepted: the gateway acknowledged the submission with a job id.
	EventAccepted Event = "accepted"

	// EventRejected: the submission failed; the tracker is never started.
	EventRejected Event = "rejected"

	// EventCompleted: the tracker observed a completed job.
	EventCompleted Event = "completed"

	// EventFailed: the tracker observed failure, timeout, or loss of the job.
	EventFailed Event = "failed"

	// EventReset: return to idle from anywhere.
	EventReset Event = "reset"
)

// Next is the pure transition function (phase, event) -> phase. Events
// that do not apply to the current phase leave it unchanged, so stray
// events are harmless. Reset returns to idle from any phase.
func Next(p Phase, e Event) Phase {
	if e == EventReset {
		return PhaseIdle
	}
	switch p {
	case PhaseIdle:
		if e == EventSelect {
			return PhaseFileSelected
		}
	case PhaseFileSelected:
		switch e {
		case EventSelect:
			return PhaseFileSelected
		case EventSubmit:
			return PhaseSubmitting
		}
	case PhaseSubmitting:
		switch e {
		case EventAccepted:
			return PhasePolling
		case EventRejected:
			return PhaseFailed
		}
	case PhasePolling:
		switch e {
		case EventCompleted:
			return PhaseSucceeded
		case EventFailed:
			return PhaseFailed
		}
	}
	return p
}

// Converter is the conversion API surface the session drives.
// *backend.Client satisfies it, pointed either at a convert-relay
// gateway or at the backend directly.
type Converter interface {
	Submit(ctx context.Context, kind, filename string, file io.Reader, options map[string]string) (*types.SubmitAck, error)
	Status(ctx context.Context, conversionID string) (*types.JobState, error)
	Fetch(ctx context.Context, downloadURL string) (*backend.Artifact, error)
}

// Session owns one upload from selection to terminal result. It is
// single-goroutine: run concurrent conversions with one Session each.
type Session struct {
	client  Converter
	tracker *track.Tracker

	phase   Phase
	spec    *kind.Spec
	file    string
	options map[string]string

	conversionID string
	result       *types.JobResult
	failure      *types.Failure
	progress     int
	submittedAt  time.Time
	finishedAt   time.Time
}

// New returns an idle session driving the given conversion API.
func New(client Converter, tracker *track.Tracker) *Session {
	return &Session{client: client, tracker: tracker, phase: PhaseIdle}
}

// Phase returns the current lifecycle state.
func (s *Session) Phase() Phase { return s.phase }

// ConversionID returns the backend-assigned job id, empty before acceptance.
func (s *Session) ConversionID() string { return s.conversionID }

// Result returns the captured artifact reference once succeeded.
func (s *Session) Result() *types.JobResult { return s.result }

// Err returns the most recent failure: a validation error while still in
// fileSelected, or the terminal failure once failed.
func (s *Session) Err() *types.Failure { return s.failure }

// Progress returns the local 0-100 progress estimate. Not authoritative.
func (s *Session) Progress() int { return s.progress }

func (s *Session) apply(e Event) {
	s.phase = Next(s.phase, e)
}

// SelectFile chooses the input file and conversion kind, then validates
// locally: extension, size, content sniff, and option values. The session
// enters fileSelected even when validation fails; the failure is recorded
// and submission stays blocked until a valid file is selected. Selecting
// again replaces the previous choice. Once a submission is underway or
// finished, Reset is the way back to a fresh selection.
func (s *Session) SelectFile(filePath string, spec *kind.Spec, options map[string]string) error {
	if s.phase != PhaseIdle && s.phase != PhaseFileSelected {
		return fmt.Errorf("cannot select a file from phase %q; reset first", s.phase)
	}
	s.spec = spec
	s.file = filePath
	s.options = nil
	s.result = nil
	s.failure = nil
	s.conversionID = ""
	s.progress = 0
	s.apply(EventSelect)

	info, err := os.Stat(filePath)
	if err != nil {
		s.failure = types.NewFailure(types.FailValidation, "cannot read file: %v", err)
		return s.failure
	}

	if err := spec.ValidateFile(filepath.Base(filePath), info.Size()); err != nil {
		s.failure, _ = types.AsFailure(err)
		return err
	}

	head, err := readHead(filePath)
	if err != nil {
		s.failure = types.NewFailure(types.FailValidation, "cannot read file: %v", err)
		return s.failure
	}
	if err := spec.ValidateSniff(head); err != nil {
		s.failure, _ = types.AsFailure(err)
		return err
	}

	normalized, err := spec.ValidateOptions(options)
	if err != nil {
		s.failure, _ = types.AsFailure(err)
		return err
	}
	s.options = normalized
	return nil
}

// Submit sends the selected file for conversion. It refuses to run
// unless the session holds a validated file, so a submission is issued
// at most once per selection and never for an invalid file. On success
// the session is polling; on rejection it is failed and the tracker is
// never started.
func (s *Session) Submit(ctx context.Context) error {
	if s.phase != PhaseFileSelected {
		return fmt.Errorf("cannot submit from phase %q", s.phase)
	}
	if s.failure != nil {
		return s.failure
	}

	s.apply(EventSubmit)
	s.submittedAt = time.Now().UTC()

	f, err := os.Open(s.file)
	if err != nil {
		s.fail(types.NewFailure(types.FailValidation, "cannot read file: %v", err), EventRejected)
		return s.failure
	}
	defer f.Close()

	ack, err := s.client.Submit(ctx, string(s.spec.Kind), filepath.Base(s.file), f, s.options)
	if err != nil {
		s.fail(asFailure(err), EventRejected)
		return err
	}

	s.conversionID = ack.ConversionID
	s.apply(EventAccepted)
	return nil
}

// Poll follows the submitted job to a terminal state, recording progress
// along the way. onProgress, when non-nil, observes the estimate. On a
// completed job the session captures the download URL, filename, and
// metadata exactly as reported — it never re-derives them. A context
// cancellation stops polling and leaves the session in polling; reset is
// the way back from there.
func (s *Session) Poll(ctx context.Context, onProgress func(int)) error {
	if s.phase != PhasePolling {
		return fmt.Errorf("cannot poll from phase %q", s.phase)
	}

	outcome, err := s.tracker.Track(ctx, s.conversionID, func(p int) {
		s.progress = p
		if onProgress != nil {
			onProgress(p)
		}
	})
	if err != nil {
		return err
	}

	s.finishedAt = time.Now().UTC()
	if outcome.Status == types.StatusCompleted {
		s.result = outcome.State.Result()
		s.apply(EventCompleted)
		return nil
	}
	s.fail(outcome.Failure, EventFailed)
	return s.failure
}

// Convert is the full client workflow: submit, then poll to a terminal
// state. The returned error is the terminal failure, nil on success.
func (s *Session) Convert(ctx context.Context, onProgress func(int)) error {
	if err := s.Submit(ctx); err != nil {
		return err
	}
	return s.Poll(ctx, onProgress)
}

// SaveArtifact downloads the converted file into dir using the captured
// download URL and writes a YAML receipt next to it. It returns the
// artifact path.
func (s *Session) SaveArtifact(ctx context.Context, dir string) (string, error) {
	if s.phase != PhaseSucceeded || s.result == nil {
		return "", fmt.Errorf("no completed result to save in phase %q", s.phase)
	}

	filename := s.result.Filename
	if filename == "" {
		filename = path.Base(s.result.DownloadURL)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	destPath := filepath.Join(dir, filename)

	artifact, err := s.client.Fetch(ctx, s.result.DownloadURL)
	if err != nil {
		return "", err
	}
	defer artifact.Body.Close()

	if err := writeFile(destPath, artifact.Body); err != nil {
		return "", err
	}

	receipt := s.Receipt()
	receipt.OutputFile = destPath
	if err := writeReceipt(receipt, destPath+".yaml"); err != nil {
		return "", fmt.Errorf("writing receipt: %w", err)
	}
	return destPath, nil
}

// Receipt summarizes the session outcome for auditing and history.
func (s *Session) Receipt() *types.Receipt {
	r := &types.Receipt{
		ConversionID: s.conversionID,
		InputFile:    s.file,
		SubmittedAt:  s.submittedAt,
		FinishedAt:   s.finishedAt,
	}
	if s.spec != nil {
		r.Kind = string(s.spec.Kind)
	}
	switch s.phase {
	case PhaseSucceeded:
		r.Status = types.StatusCompleted
		if s.result != nil {
			r.Metadata = s.result.Metadata
		}
	case PhaseFailed:
		r.Status = failureStatus(s.failure)
		if s.failure != nil {
			r.Error = s.failure.Message
		}
	default:
		r.Status = types.StatusProcessing
	}
	return r
}

// Reset returns the session to idle, clearing the selected file, job
// reference, and all result/error state. Safe to call from any phase,
// any number of times.
func (s *Session) Reset() {
	s.spec = nil
	s.file = ""
	s.options = nil
	s.conversionID = ""
	s.result = nil
	s.failure = nil
	s.progress = 0
	s.submittedAt = time.Time{}
	s.finishedAt = time.Time{}
	s.apply(EventReset)
}

func (s *Session) fail(f *types.Failure, e Event) {
	s.failure = f
	if s.finishedAt.IsZero() {
		s.finishedAt = time.Now().UTC()
	}
	s.apply(e)
}

// failureStatus maps a terminal failure to the receipt status.
func failureStatus(f *types.Failure) types.JobStatus {
	if f == nil {
		return types.StatusFailed
	}
	switch f.Kind {
	case types.FailTimeout:
		return types.StatusTimedOut
	case types.FailNotFound:
		return types.StatusNotFound
	}
	return types.StatusFailed
}

func asFailure(err error) *types.Failure {
	if f, ok := types.AsFailure(err); ok {
		return f
	}
	return &types.Failure{Kind: types.FailSubmission, Message: err.Error()}
}

// readHead returns up to the first 512 bytes for content sniffing.
func readHead(filePath string) ([]byte, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return head[:n], nil
}

// writeFile streams body to destPath via a temp file, renaming on
// success so partial downloads never land under the final name.
func writeFile(destPath string, body io.Reader) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".convert-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, body)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing artifact: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func writeReceipt(r *types.Receipt, receiptPath string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling receipt: %w", err)
	}
	return os.WriteFile(receiptPath, data, 0o644)
}
