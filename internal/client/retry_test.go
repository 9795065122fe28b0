package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func instantSleep(ctx context.Context, d time.Duration) error { return nil }

func TestDelayDoublesPerAttempt(t *testing.T) {
	assert.Equal(t, 2*time.Second, Delay(1))
	assert.Equal(t, 4*time.Second, Delay(2))
	assert.Equal(t, 8*time.Second, Delay(3))
	assert.Equal(t, 16*time.Second, Delay(4))
	assert.Equal(t, 32*time.Second, Delay(5))
}

func TestBudgets(t *testing.T) {
	assert.Equal(t, 3, Budget(StagePreparing))
	assert.Equal(t, 5, Budget(StageUploading))
	assert.Equal(t, 6, Budget(StageVerifying))
}

func TestDoStopsAtBudgetAndReportsBackoffs(t *testing.T) {
	var delays []time.Duration
	r := newRetrier(nil)
	r.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	attempts := 0
	err := r.do(context.Background(), StageUploading, func(ctx context.Context) error {
		attempts++
		return errors.New("connection reset")
	})

	assert.Equal(t, 5, attempts)
	assert.Equal(t, []time.Duration{
		2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
	}, delays, "no backoff after the final attempt")

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageUploading, stageErr.Stage)
	assert.Equal(t, 5, stageErr.Attempts)
}

func TestDoSucceedsMidBudget(t *testing.T) {
	r := newRetrier(nil)
	r.sleep = instantSleep

	attempts := 0
	err := r.do(context.Background(), StageVerifying, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("timeout")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoNeverRetriesGateFailures(t *testing.T) {
	r := newRetrier(nil)
	r.sleep = instantSleep

	attempts := 0
	err := r.do(context.Background(), StageVerifying, func(ctx context.Context) error {
		attempts++
		return ErrInvalidSession
	})
	assert.ErrorIs(t, err, ErrInvalidSession)
	assert.Equal(t, 1, attempts)
}

func TestDoHonorsContextDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := newRetrier(nil)
	err := r.do(ctx, StagePreparing, func(ctx context.Context) error {
		return errors.New("flaky")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
