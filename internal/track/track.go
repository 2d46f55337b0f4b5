// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package track implements the client-side polling loop that follows a
// conversion job from submission to a terminal state. There is no server
// push: the tracker re-queries the status endpoint at a bounded interval
// until the job completes, fails, disappears, or the attempt budget runs
// out. Polls are strictly sequential — the next one is scheduled only
// after the previous one resolves.
package track

import (
	"context"
	"time"

	"github.com/pdiddy/convert-relay/pkg/types"
)

// Defaults for the polling policy.
const (
	DefaultInterval    = 3 * time.Second
	DefaultMaxAttempts = 60
	DefaultMaxInterval = 30 * time.Second
	DefaultProgressCap = 90
)

// Poller is the status source the tracker queries. *backend.Client
// satisfies it.
type Poller interface {
	Status(ctx context.Context, conversionID string) (*types.JobState, error)
}

// Outcome is the terminal result of one tracking run.
type Outcome struct {
	// Status is the terminal status: completed, failed, timed_out, or
	// not_found. The last two are client-local decisions.
	Status types.JobStatus

	// State is the last successful observation, nil if every poll failed.
	// For a completed outcome it carries the download reference.
	State *types.JobState

	// Failure explains any non-completed outcome.
	Failure *types.Failure
}

// Tracker polls a job until it reaches a terminal state. A Tracker is
// stateless across runs and safe to share between sessions.
type Tracker struct {
	poller      Poller
	interval    time.Duration
	maxAttempts int
	backoff     float64
	maxInterval time.Duration
	progressCap int
}

// New builds a Tracker from the polling policy, applying defaults for
// unset fields. A BackoffFactor of 1.0 (or 0) keeps the interval fixed.
func New(p Poller, cfg types.PollConfig) *Tracker {
	t := &Tracker{
		poller:      p,
		interval:    cfg.Interval,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.BackoffFactor,
		maxInterval: cfg.MaxInterval,
		progressCap: cfg.ProgressCap,
	}
	if t.interval <= 0 {
		t.interval = DefaultInterval
	}
	if t.maxAttempts <= 0 {
		t.maxAttempts = DefaultMaxAttempts
	}
	if t.backoff < 1 {
		t.backoff = 1
	}
	if t.maxInterval <= 0 {
		t.maxInterval = DefaultMaxInterval
	}
	if t.progressCap <= 0 || t.progressCap > 100 {
		t.progressCap = DefaultProgressCap
	}
	return t
}

// Track polls the job until a terminal state is reached and returns the
// outcome. onProgress, when non-nil, receives the synthetic progress
// estimate after each attempt; it reaches 100 only on completion.
//
// The returned error is non-nil only when ctx ends the run; every
// protocol result, including timeout and not-found, is an Outcome.
// Cancelling is the only way to stop early — the backend has no cancel
// protocol, the orphaned job simply expires server-side.
func (t *Tracker) Track(ctx context.Context, conversionID string, onProgress func(percent int)) (*Outcome, error) {
	interval := t.interval
	var last *types.JobState

	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		// Wait, then re-enter. This single suspension point enforces
		// both cancellation and the attempt budget.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		state, err := t.poller.Status(ctx, conversionID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if types.FailureIs(err, types.FailNotFound) {
				f, _ := types.AsFailure(err)
				return &Outcome{Status: types.StatusNotFound, State: last, Failure: f}, nil
			}
			// Transient poll failures ride the next tick, bounded by
			// the same attempt budget.
			report(onProgress, t.progress(attempt))
			interval = t.next(interval)
			continue
		}

		last = state
		switch state.Status {
		case types.StatusCompleted:
			report(onProgress, 100)
			return &Outcome{Status: types.StatusCompleted, State: state}, nil
		case types.StatusFailed:
			msg := state.Error
			if msg == "" {
				msg = "conversion failed"
			}
			return &Outcome{
				Status:  types.StatusFailed,
				State:   state,
				Failure: &types.Failure{Kind: types.FailConversion, Message: msg},
			}, nil
		}

		report(onProgress, t.progress(attempt))
		interval = t.next(interval)
	}

	return &Outcome{
		Status: types.StatusTimedOut,
		State:  last,
		Failure: types.NewFailure(types.FailTimeout,
			"conversion timed out after %d status checks; the job may still finish later", t.maxAttempts),
	}, nil
}

// progress is the synthetic estimate min(cap, attempt/maxAttempts*cap).
// Cosmetic only: the backend reports discrete status, not fractions.
func (t *Tracker) progress(attempt int) int {
	p := attempt * t.progressCap / t.maxAttempts
	if p > t.progressCap {
		p = t.progressCap
	}
	return p
}

// next advances the poll interval when backoff is enabled.
func (t *Tracker) next(interval time.Duration) time.Duration {
	if t.backoff <= 1 {
		return interval
	}
	grown := time.Duration(float64(interval) * t.backoff)
	if grown > t.maxInterval {
		return t.maxInterval
	}
	return grown
}

func report(onProgress func(int), percent int) {
	if onProgress != nil {
		onProgress(percent)
	}
}
