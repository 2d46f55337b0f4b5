// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package session

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/convert-relay/internal/backend"
	"github.com/pdiddy/convert-relay/internal/kind"
	"github.com/pdiddy/convert-relay/internal/track"
	"github.com/pdiddy/convert-relay/pkg/types"
)

type statusReply struct {
	state *types.JobState
	err   error
}

// fakeConverter scripts the conversion API without a network. It also
// serves as the tracker's poller, the way one backend client serves both
// in production.
type fakeConverter struct {
	ack       *types.SubmitAck
	submitErr error

	states    []statusReply
	statusIdx int

	artifact []byte

	submitCalls int
	statusCalls int
	fetchedURL  string

	gotKind     string
	gotFilename string
	gotOptions  map[string]string
	gotBody     []byte
}

func (f *fakeConverter) Submit(_ context.Context, kind, filename string, file io.Reader, options map[string]string) (*types.SubmitAck, error) {
	f.submitCalls++
	f.gotKind = kind
	f.gotFilename = filename
	f.gotOptions = options
	f.gotBody, _ = io.ReadAll(file)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.ack, nil
}

func (f *fakeConverter) Status(_ context.Context, conversionID string) (*types.JobState, error) {
	f.statusCalls++
	if len(f.states) == 0 {
		return &types.JobState{ConversionID: conversionID, Status: types.StatusProcessing}, nil
	}
	i := f.statusIdx
	if i >= len(f.states) {
		i = len(f.states) - 1
	}
	f.statusIdx++
	r := f.states[i]
	return r.state, r.err
}

func (f *fakeConverter) Fetch(_ context.Context, downloadURL string) (*backend.Artifact, error) {
	f.fetchedURL = downloadURL
	return &backend.Artifact{
		Body:          io.NopCloser(bytes.NewReader(f.artifact)),
		ContentLength: int64(len(f.artifact)),
		ContentType:   "application/octet-stream",
	}, nil
}

func newSession(f *fakeConverter) *Session {
	tr := track.New(f, types.PollConfig{Interval: time.Millisecond, MaxAttempts: 60})
	return New(f, tr)
}

func writeTempPDF(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4 test document body"), 0o644))
	return p
}

func pdfToJPG(t *testing.T) *kind.Spec {
	t.Helper()
	spec, ok := kind.Lookup("pdf-to-jpg")
	require.True(t, ok)
	return spec
}

func TestNext(t *testing.T) {
	tests := []struct {
		name string
		from Phase
		ev   Event
		want Phase
	}{
		{"select from idle", PhaseIdle, EventSelect, PhaseFileSelected},
		{"reselect keeps fileSelected", PhaseFileSelected, EventSelect, PhaseFileSelected},
		{"submit from fileSelected", PhaseFileSelected, EventSubmit, PhaseSubmitting},
		{"accept while submitting", PhaseSubmitting, EventAccepted, PhasePolling},
		{"reject while submitting", PhaseSubmitting, EventRejected, PhaseFailed},
		{"complete while polling", PhasePolling, EventCompleted, PhaseSucceeded},
		{"fail while polling", PhasePolling, EventFailed, PhaseFailed},
		{"submit from idle ignored", PhaseIdle, EventSubmit, PhaseIdle},
		{"accept outside submitting ignored", PhasePolling, EventAccepted, PhasePolling},
		{"complete after terminal ignored", PhaseSucceeded, EventCompleted, PhaseSucceeded},
		{"select after failure ignored", PhaseFailed, EventSelect, PhaseFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Next(tt.from, tt.ev); got != tt.want {
				t.Errorf("Next(%q, %q) = %q, want %q", tt.from, tt.ev, got, tt.want)
			}
		})
	}
}

func TestNext_ResetFromEveryPhase(t *testing.T) {
	phases := []Phase{PhaseIdle, PhaseFileSelected, PhaseSubmitting, PhasePolling, PhaseSucceeded, PhaseFailed}
	for _, p := range phases {
		if got := Next(p, EventReset); got != PhaseIdle {
			t.Errorf("Next(%q, reset) = %q, want %q", p, got, PhaseIdle)
		}
	}
}

func TestConvert_Succeeds(t *testing.T) {
	fake := &fakeConverter{
		ack: &types.SubmitAck{Success: true, ConversionID: "abc123", Status: types.StatusProcessing},
		states: []statusReply{
			{state: &types.JobState{ConversionID: "abc123", Status: types.StatusProcessing}},
			{state: &types.JobState{
				ConversionID: "abc123",
				Success:      true,
				Status:       types.StatusCompleted,
				Filename:     "out.jpg",
				DownloadURL:  "/api/download/abc123/out.jpg",
				Metadata:     map[string]any{"pages": 2},
			}},
		},
	}
	s := newSession(fake)

	require.NoError(t, s.SelectFile(writeTempPDF(t), pdfToJPG(t), map[string]string{"dpi": "150"}))
	assert.Equal(t, PhaseFileSelected, s.Phase())

	var seen []int
	require.NoError(t, s.Convert(context.Background(), func(p int) { seen = append(seen, p) }))

	assert.Equal(t, PhaseSucceeded, s.Phase())
	assert.Equal(t, "abc123", s.ConversionID())
	require.NotNil(t, s.Result())
	assert.Equal(t, "/api/download/abc123/out.jpg", s.Result().DownloadURL)
	assert.Equal(t, "out.jpg", s.Result().Filename)
	assert.Equal(t, map[string]any{"pages": 2}, s.Result().Metadata)
	assert.Equal(t, 100, s.Progress())

	assert.Equal(t, "pdf-to-jpg", fake.gotKind)
	assert.Equal(t, "report.pdf", fake.gotFilename)
	assert.Equal(t, map[string]string{"dpi": "150"}, fake.gotOptions)
	assert.Equal(t, "%PDF-1.4 test document body", string(fake.gotBody))
	require.NotEmpty(t, seen)
	assert.Equal(t, 100, seen[len(seen)-1])
}

func TestSelectFile_WrongExtension(t *testing.T) {
	txt := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("plain text"), 0o644))

	spec, ok := kind.Lookup("pdf-to-word")
	require.True(t, ok)

	fake := &fakeConverter{}
	s := newSession(fake)

	err := s.SelectFile(txt, spec, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a PDF")
	assert.True(t, types.FailureIs(err, types.FailValidation))
	assert.Equal(t, PhaseFileSelected, s.Phase())

	// Submission stays blocked; nothing reaches the network.
	err = s.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, PhaseFileSelected, s.Phase())
	assert.Zero(t, fake.submitCalls)
	assert.Zero(t, fake.statusCalls)

	// A valid replacement file clears the recorded failure.
	require.NoError(t, s.SelectFile(writeTempPDF(t), spec, nil))
	assert.Nil(t, s.Err())
}

func TestSelectFile_WrongContent(t *testing.T) {
	p := filepath.Join(t.TempDir(), "fake.pdf")
	require.NoError(t, os.WriteFile(p, []byte("<html><body>not a pdf</body></html>"), 0o644))

	s := newSession(&fakeConverter{})
	err := s.SelectFile(p, pdfToJPG(t), nil)
	require.Error(t, err)
	assert.True(t, types.FailureIs(err, types.FailValidation))
	assert.Contains(t, err.Error(), "does not look like a PDF")
}

func TestSelectFile_InvalidOption(t *testing.T) {
	s := newSession(&fakeConverter{})
	err := s.SelectFile(writeTempPDF(t), pdfToJPG(t), map[string]string{"dpi": "600"})
	require.Error(t, err)
	assert.True(t, types.FailureIs(err, types.FailValidation))
	assert.Contains(t, err.Error(), "invalid dpi")
}

func TestSubmit_RejectedNeverPolls(t *testing.T) {
	fake := &fakeConverter{
		submitErr: types.NewFailure(types.FailTransport,
			"conversion service is not available, please try again later"),
	}
	s := newSession(fake)
	require.NoError(t, s.SelectFile(writeTempPDF(t), pdfToJPG(t), nil))

	err := s.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, PhaseFailed, s.Phase())
	require.NotNil(t, s.Err())
	assert.Equal(t, types.FailTransport, s.Err().Kind)
	assert.Contains(t, s.Err().Message, "not available")
	assert.Equal(t, 1, fake.submitCalls)
	assert.Zero(t, fake.statusCalls)
}

func TestPoll_BackendReportsFailure(t *testing.T) {
	fake := &fakeConverter{
		ack: &types.SubmitAck{Success: true, ConversionID: "bad42", Status: types.StatusProcessing},
		states: []statusReply{
			{state: &types.JobState{ConversionID: "bad42", Status: types.StatusFailed, Error: "Corrupted PDF: cannot open file"}},
		},
	}
	s := newSession(fake)
	require.NoError(t, s.SelectFile(writeTempPDF(t), pdfToJPG(t), nil))

	err := s.Convert(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, PhaseFailed, s.Phase())
	assert.Equal(t, types.FailConversion, s.Err().Kind)
	assert.Equal(t, "Corrupted PDF: cannot open file", s.Err().Message)
	assert.Nil(t, s.Result())
}

func TestPoll_JobEvicted(t *testing.T) {
	fake := &fakeConverter{
		ack: &types.SubmitAck{Success: true, ConversionID: "gone1", Status: types.StatusProcessing},
		states: []statusReply{
			{err: types.NewFailure(types.FailNotFound, "Conversion not found")},
		},
	}
	s := newSession(fake)
	require.NoError(t, s.SelectFile(writeTempPDF(t), pdfToJPG(t), nil))

	err := s.Convert(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, PhaseFailed, s.Phase())
	assert.Equal(t, types.FailNotFound, s.Err().Kind)
	assert.Equal(t, 1, fake.statusCalls)
	assert.Equal(t, types.StatusNotFound, s.Receipt().Status)
}

func TestSelectFile_RequiresResetAfterTerminal(t *testing.T) {
	fake := &fakeConverter{
		submitErr: types.NewFailure(types.FailTransport, "connection refused"),
	}
	s := newSession(fake)
	require.NoError(t, s.SelectFile(writeTempPDF(t), pdfToJPG(t), nil))
	require.Error(t, s.Convert(context.Background(), nil))
	require.Equal(t, PhaseFailed, s.Phase())

	err := s.SelectFile(writeTempPDF(t), pdfToJPG(t), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reset first")
	assert.Equal(t, PhaseFailed, s.Phase())

	s.Reset()
	require.NoError(t, s.SelectFile(writeTempPDF(t), pdfToJPG(t), nil))
}

func TestReset_Idempotent(t *testing.T) {
	fake := &fakeConverter{
		ack: &types.SubmitAck{Success: true, ConversionID: "abc123", Status: types.StatusProcessing},
		states: []statusReply{
			{state: &types.JobState{
				ConversionID: "abc123",
				Success:      true,
				Status:       types.StatusCompleted,
				Filename:     "out.docx",
				DownloadURL:  "/api/download/abc123/out.docx",
			}},
		},
	}
	s := newSession(fake)
	spec, ok := kind.Lookup("pdf-to-word")
	require.True(t, ok)

	require.NoError(t, s.SelectFile(writeTempPDF(t), spec, nil))
	require.NoError(t, s.Convert(context.Background(), nil))
	require.Equal(t, PhaseSucceeded, s.Phase())

	s.Reset()
	assert.Equal(t, PhaseIdle, s.Phase())
	assert.Empty(t, s.ConversionID())
	assert.Nil(t, s.Result())
	assert.Nil(t, s.Err())
	assert.Zero(t, s.Progress())

	s.Reset()
	assert.Equal(t, PhaseIdle, s.Phase())

	// The session is reusable after a reset.
	fake.statusIdx = 0
	require.NoError(t, s.SelectFile(writeTempPDF(t), spec, nil))
	require.NoError(t, s.Convert(context.Background(), nil))
	assert.Equal(t, PhaseSucceeded, s.Phase())
}

func TestSaveArtifact(t *testing.T) {
	payload := []byte("jpeg bytes")
	fake := &fakeConverter{
		ack:      &types.SubmitAck{Success: true, ConversionID: "abc123", Status: types.StatusProcessing},
		artifact: payload,
		states: []statusReply{
			{state: &types.JobState{
				ConversionID: "abc123",
				Success:      true,
				Status:       types.StatusCompleted,
				Filename:     "out.jpg",
				DownloadURL:  "/api/download/abc123/out.jpg",
				Metadata:     map[string]any{"pages": 2},
			}},
		},
	}
	s := newSession(fake)
	require.NoError(t, s.SelectFile(writeTempPDF(t), pdfToJPG(t), nil))
	require.NoError(t, s.Convert(context.Background(), nil))

	outDir := filepath.Join(t.TempDir(), "converted")
	dest, err := s.SaveArtifact(context.Background(), outDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "out.jpg"), dest)

	// The capture of the download URL is authoritative; the session never
	// re-derives it.
	assert.Equal(t, "/api/download/abc123/out.jpg", fake.fetchedURL)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	raw, err := os.ReadFile(dest + ".yaml")
	require.NoError(t, err)
	var r types.Receipt
	require.NoError(t, yaml.Unmarshal(raw, &r))
	assert.Equal(t, "abc123", r.ConversionID)
	assert.Equal(t, "pdf-to-jpg", r.Kind)
	assert.Equal(t, dest, r.OutputFile)
	assert.Equal(t, types.StatusCompleted, r.Status)
	assert.False(t, r.SubmittedAt.IsZero())
	assert.False(t, r.FinishedAt.IsZero())
}

func TestSaveArtifact_RequiresSuccess(t *testing.T) {
	s := newSession(&fakeConverter{})
	_, err := s.SaveArtifact(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no completed result")
}
