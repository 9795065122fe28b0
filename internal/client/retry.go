package client

import (
	"context"
	"fmt"
	"time"
)

// Stage names one step of the per-file upload pipeline.
type Stage string

const (
	StagePreparing Stage = "preparing"
	StageUploading Stage = "uploading"
	StageVerifying Stage = "verifying"
)

// BaseDelay is the backoff unit; attempt k waits BaseDelay × 2^(k−1).
const BaseDelay = 2000 * time.Millisecond

// Budget is the maximum attempt count per stage. Preparing is cheap to fail
// fast on; uploading and verifying tolerate more flakiness because the work
// behind them is worth saving.
func Budget(stage Stage) int {
	switch stage {
	case StagePreparing:
		return 3
	case StageUploading:
		return 5
	case StageVerifying:
		return 6
	default:
		return 1
	}
}

// Delay returns the backoff before retrying after failed attempt k (1-based).
func Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return BaseDelay << (attempt - 1)
}

// StageError is a stage's permanent failure after its budget ran out.
type StageError struct {
	Stage    Stage
	Attempts int
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Stage, e.Attempts, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// retrier runs a stage under its budget with exponential backoff. The sleep
// hook exists so tests run without waiting.
type retrier struct {
	sleep   func(ctx context.Context, d time.Duration) error
	onRetry func(stage Stage, attempt int, err error)
}

func newRetrier(onRetry func(stage Stage, attempt int, err error)) *retrier {
	return &retrier{
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
		onRetry: onRetry,
	}
}

// do runs fn until it succeeds or the stage's budget is exhausted, returning
// a StageError in the latter case. Gate failures are definitive and are never
// retried.
func (r *retrier) do(ctx context.Context, stage Stage, fn func(ctx context.Context) error) error {
	budget := Budget(stage)

	var lastErr error
	for attempt := 1; attempt <= budget; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if IsSessionError(lastErr) {
			return lastErr
		}
		if attempt == budget {
			break
		}
		if r.onRetry != nil {
			r.onRetry(stage, attempt, lastErr)
		}
		if err := r.sleep(ctx, Delay(attempt)); err != nil {
			return err
		}
	}
	return &StageError{Stage: stage, Attempts: budget, Err: lastErr}
}
