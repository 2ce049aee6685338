package retry

import (
	"context"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/docgen/internal/errors"
	"git.home.luguber.info/inful/docgen/internal/models"
)

// Sleeper suspends execution for the backoff delay. Tests inject a fake.
type Sleeper func(ctx context.Context, d time.Duration)

func defaultSleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Runner executes a stage function with bounded retry of retryable errors.
// Non-retryable errors propagate on first occurrence; on the final attempt the
// error propagates regardless. Stage functions must be safe to re-invoke after
// a partial retryable failure; the runner provides no deduplication.
type Runner struct {
	policy Policy
	sleep  Sleeper

	// OnRecovered is invoked once when a stage succeeds after at least one
	// retry. Observability only; it has no behavioral effect.
	OnRecovered func(stage models.StageName, attempts int)

	// OnRetry is invoked before each backoff sleep. Observability only.
	OnRetry func(stage models.StageName, attempt int)
}

// NewRunner creates a retry runner for the given policy.
func NewRunner(policy Policy) *Runner {
	return &Runner{policy: policy, sleep: defaultSleep}
}

// WithSleeper replaces the backoff sleep; used by tests.
func (r *Runner) WithSleeper(s Sleeper) *Runner {
	if s != nil {
		r.sleep = s
	}
	return r
}

// Do runs fn up to the policy's attempt budget. Only errors for which
// errors.IsRetryable reports true are re-attempted.
func (r *Runner) Do(ctx context.Context, stage models.StageName, fn models.Stage, st *models.RunState) (*models.StageResult, error) {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		res, err := fn(ctx, st)
		if err == nil {
			if attempt > 1 {
				slog.Info("Stage recovered after retry",
					slog.String("stage", string(stage)),
					slog.Int("attempts", attempt))
				if r.OnRecovered != nil {
					r.OnRecovered(stage, attempt)
				}
			}
			return res, nil
		}
		lastErr = err
		if !errors.IsRetryable(err) {
			return res, err
		}
		if attempt == r.policy.MaxAttempts {
			break
		}
		if r.OnRetry != nil {
			r.OnRetry(stage, attempt)
		}
		delay := r.policy.Delay(attempt)
		slog.Warn("Retrying stage after transient failure",
			slog.String("stage", string(stage)),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.Any("error", err))
		r.sleep(ctx, delay)
	}
	return models.FailedStageResult(stage, lastErr), lastErr
}
