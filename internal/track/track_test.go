// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package track

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/convert-relay/pkg/types"
)

// step is one scripted poll response.
type step struct {
	state *types.JobState
	err   error
}

// scriptedPoller replays a fixed sequence of status responses; the last
// step repeats if polled past the end.
type scriptedPoller struct {
	steps []step
	calls int
}

func (p *scriptedPoller) Status(_ context.Context, _ string) (*types.JobState, error) {
	i := p.calls
	if i >= len(p.steps) {
		i = len(p.steps) - 1
	}
	p.calls++
	s := p.steps[i]
	return s.state, s.err
}

func processing() *types.JobState {
	return &types.JobState{ConversionID: "abc123", Status: types.StatusProcessing}
}

func completed() *types.JobState {
	return &types.JobState{
		ConversionID: "abc123",
		Success:      true,
		Status:       types.StatusCompleted,
		Filename:     "out.jpg",
		DownloadURL:  "/api/download/abc123/out.jpg",
	}
}

// fastPolicy keeps test runs in the millisecond range.
func fastPolicy() types.PollConfig {
	return types.PollConfig{Interval: time.Millisecond, MaxAttempts: 60}
}

func TestTrack_CompletedOnSecondPoll(t *testing.T) {
	poller := &scriptedPoller{steps: []step{
		{state: processing()},
		{state: completed()},
	}}

	var progress []int
	outcome, err := New(poller, fastPolicy()).Track(context.Background(), "abc123", func(p int) {
		progress = append(progress, p)
	})
	require.NoError(t, err)

	assert.Equal(t, types.StatusCompleted, outcome.Status)
	assert.Nil(t, outcome.Failure)
	require.NotNil(t, outcome.State)
	assert.Equal(t, "/api/download/abc123/out.jpg", outcome.State.DownloadURL)
	assert.Equal(t, 2, poller.calls)

	require.NotEmpty(t, progress)
	assert.Equal(t, 100, progress[len(progress)-1], "progress snaps to 100 on completion")
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1], "progress never decreases")
	}
}

func TestTrack_BackendReportedFailure(t *testing.T) {
	poller := &scriptedPoller{steps: []step{
		{state: processing()},
		{state: &types.JobState{
			ConversionID: "abc123",
			Status:       types.StatusFailed,
			Error:        "Corrupted PDF: cannot open document",
		}},
	}}

	outcome, err := New(poller, fastPolicy()).Track(context.Background(), "abc123", nil)
	require.NoError(t, err)

	assert.Equal(t, types.StatusFailed, outcome.Status)
	require.NotNil(t, outcome.Failure)
	assert.Equal(t, types.FailConversion, outcome.Failure.Kind)
	assert.Contains(t, outcome.Failure.Message, "Corrupted PDF")
}

func TestTrack_NotFoundStopsImmediately(t *testing.T) {
	poller := &scriptedPoller{steps: []step{
		{err: types.NewFailure(types.FailNotFound, "conversion not found or expired")},
	}}

	outcome, err := New(poller, fastPolicy()).Track(context.Background(), "ghost", nil)
	require.NoError(t, err)

	assert.Equal(t, types.StatusNotFound, outcome.Status)
	require.NotNil(t, outcome.Failure)
	assert.Equal(t, types.FailNotFound, outcome.Failure.Kind)
	assert.Equal(t, 1, poller.calls, "a not-found poll must not be retried")
}

func TestTrack_TransientErrorsTolerated(t *testing.T) {
	poller := &scriptedPoller{steps: []step{
		{err: types.NewFailure(types.FailTransport, "conversion service is not available")},
		{err: types.NewFailure(types.FailTransport, "conversion service is not available")},
		{state: completed()},
	}}

	outcome, err := New(poller, fastPolicy()).Track(context.Background(), "abc123", nil)
	require.NoError(t, err)

	assert.Equal(t, types.StatusCompleted, outcome.Status)
	assert.Equal(t, 3, poller.calls, "transport errors ride the next tick")
}

func TestTrack_BudgetExhaustion(t *testing.T) {
	poller := &scriptedPoller{steps: []step{{state: processing()}}}

	cfg := types.PollConfig{Interval: time.Millisecond, MaxAttempts: 5}
	outcome, err := New(poller, cfg).Track(context.Background(), "abc123", nil)
	require.NoError(t, err)

	assert.Equal(t, types.StatusTimedOut, outcome.Status)
	assert.Equal(t, 5, poller.calls, "polling stops at the attempt budget")
	require.NotNil(t, outcome.Failure)
	assert.Equal(t, types.FailTimeout, outcome.Failure.Kind)
	assert.Contains(t, outcome.Failure.Message, "timed out")
	require.NotNil(t, outcome.State, "last observation is kept for reporting")
	assert.Equal(t, types.StatusProcessing, outcome.State.Status)
}

func TestTrack_ContextCancelledDuringWait(t *testing.T) {
	poller := &scriptedPoller{steps: []step{{state: processing()}}}

	cfg := types.PollConfig{Interval: time.Hour, MaxAttempts: 60}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := New(poller, cfg).Track(ctx, "abc123", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, poller.calls, "cancellation during the wait issues no poll")
}

func TestProgressEstimate(t *testing.T) {
	tr := New(&scriptedPoller{}, types.PollConfig{MaxAttempts: 60, ProgressCap: 90})

	assert.Equal(t, 1, tr.progress(1))
	assert.Equal(t, 45, tr.progress(30))
	assert.Equal(t, 90, tr.progress(60))
	assert.Equal(t, 90, tr.progress(600), "estimate never exceeds the cap")
}

func TestBackoffInterval(t *testing.T) {
	tr := New(&scriptedPoller{}, types.PollConfig{
		Interval:      10 * time.Millisecond,
		BackoffFactor: 2,
		MaxInterval:   40 * time.Millisecond,
	})

	next := tr.next(10 * time.Millisecond)
	assert.Equal(t, 20*time.Millisecond, next)
	next = tr.next(next)
	assert.Equal(t, 40*time.Millisecond, next)
	next = tr.next(next)
	assert.Equal(t, 40*time.Millisecond, next, "interval is capped")

	fixed := New(&scriptedPoller{}, fastPolicy())
	assert.Equal(t, time.Millisecond, fixed.next(time.Millisecond), "factor 1 keeps the interval fixed")
}

func TestNew_Defaults(t *testing.T) {
	tr := New(&scriptedPoller{}, types.PollConfig{})

	assert.Equal(t, DefaultInterval, tr.interval)
	assert.Equal(t, DefaultMaxAttempts, tr.maxAttempts)
	assert.Equal(t, 1.0, tr.backoff)
	assert.Equal(t, DefaultMaxInterval, tr.maxInterval)
	assert.Equal(t, DefaultProgressCap, tr.progressCap)
}
