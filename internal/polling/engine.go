package polling

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"mediaforge/internal/domain"
)

// State enumerates the engine's lifecycle. Pending is the initial state,
// Polling covers every armed tick, the remaining four are terminal.
type State string

const (
	StatePending   State = "pending"
	StatePolling   State = "polling"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateTimedOut  State = "timed_out"
	StateCanceled  State = "canceled"
)

// PollFunc performs one status read. It must not retry internally.
type PollFunc func(ctx context.Context) (*domain.ProviderJob, error)

// ProgressFunc receives the latest non-terminal status after each tick.
type ProgressFunc func(job *domain.ProviderJob, attempt int)

// SleepFunc suspends between ticks; it returns early with ctx.Err() on
// cancellation. Injectable so tests can run many ticks without wall-clock
// time.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Engine drives a PollFunc to a terminal state under a fixed inter-poll
// interval and a hard attempt ceiling. The ceiling is a dead-man's-switch: a
// provider job that never terminates cannot hang the orchestrator.
type Engine struct {
	Interval    time.Duration
	MaxAttempts int
	Sleep       SleepFunc
	Logger      zerolog.Logger
}

// Result carries the terminal state, the last observed job and how many
// attempts were spent.
type Result struct {
	State    State
	Job      *domain.ProviderJob
	Attempts int
}

// New builds an engine with the given interval and ceiling.
func New(interval time.Duration, maxAttempts int, logger zerolog.Logger) *Engine {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 90
	}
	return &Engine{Interval: interval, MaxAttempts: maxAttempts, Sleep: sleepContext, Logger: logger}
}

// Run polls until a terminal state, the attempt ceiling, or cancellation.
// The returned error is nil only for Succeeded; every other terminal state
// maps onto the failure taxonomy. After ctx is done no callback fires, so a
// tick that resolves post-abandonment is a no-op against stale callbacks.
func (e *Engine) Run(ctx context.Context, poll PollFunc, onProgress ProgressFunc) (*Result, error) {
	sleep := e.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	result := &Result{State: StatePending}
	for attempt := 1; attempt <= e.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			result.State = StateCanceled
			return result, domain.WrapError(domain.KindInternal, "polling abandoned", err)
		}
		result.State = StatePolling
		result.Attempts = attempt

		job, err := poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				result.State = StateCanceled
				return result, domain.WrapError(domain.KindInternal, "polling abandoned", ctx.Err())
			}
			// Transient unreachability is retried on the normal schedule;
			// everything else terminates the run.
			if domain.KindOf(err) == domain.KindProviderUnreachable {
				e.Logger.Warn().Err(err).Int("attempt", attempt).Msg("poll tick failed, re-arming")
				if serr := sleep(ctx, e.Interval); serr != nil {
					result.State = StateCanceled
					return result, domain.WrapError(domain.KindInternal, "polling abandoned", serr)
				}
				continue
			}
			result.State = StateFailed
			return result, err
		}

		result.Job = job
		switch job.Status {
		case domain.JobStatusSucceeded:
			result.State = StateSucceeded
			return result, nil
		case domain.JobStatusFailed:
			result.State = StateFailed
			detail := job.ErrorDetail
			if detail == "" {
				detail = "provider reported failure"
			}
			return result, domain.NewError(domain.KindProviderRejected, detail)
		case domain.JobStatusCanceled:
			result.State = StateCanceled
			return result, domain.NewError(domain.KindProviderRejected, "provider canceled the job")
		}

		if onProgress != nil && ctx.Err() == nil {
			onProgress(job, attempt)
		}
		if err := sleep(ctx, e.Interval); err != nil {
			result.State = StateCanceled
			return result, domain.WrapError(domain.KindInternal, "polling abandoned", err)
		}
	}

	result.State = StateTimedOut
	return result, domain.NewError(domain.KindPollingTimedOut, "provider job did not reach a terminal state in time")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
