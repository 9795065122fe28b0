package client

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestHeartbeatSendsImmediatelyThenOnInterval(t *testing.T) {
	var beats atomic.Int32
	h := NewHeartbeater(func(ctx context.Context) error {
		beats.Add(1)
		return nil
	}, HeartbeatConfig{Interval: 10 * time.Millisecond})

	h.Start(context.Background())
	defer h.Stop()

	waitFor(t, func() bool { return beats.Load() >= 1 }, "no immediate beat")
	waitFor(t, func() bool { return beats.Load() >= 3 }, "no periodic beats")
}

func TestHeartbeatWarnsOncePerOutageAndRecovers(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	var beats, warnings atomic.Int32

	h := NewHeartbeater(func(ctx context.Context) error {
		beats.Add(1)
		if failing.Load() {
			return errors.New("connection refused")
		}
		return nil
	}, HeartbeatConfig{
		Interval:      5 * time.Millisecond,
		FailureRetry:  2 * time.Millisecond,
		UnstableAfter: 20 * time.Millisecond,
		OnUnstable:    func() { warnings.Add(1) },
	})

	h.Start(context.Background())
	defer h.Stop()

	waitFor(t, func() bool { return warnings.Load() == 1 }, "no unstable warning")

	// Warned, but never gave up.
	before := beats.Load()
	waitFor(t, func() bool { return beats.Load() > before }, "stopped retrying after warning")
	assert.Equal(t, int32(1), warnings.Load())

	// Recovery clears the outage; beating continues normally.
	failing.Store(false)
	waitFor(t, func() bool { return !failing.Load() && beats.Load() > before+2 }, "did not recover")
	assert.Equal(t, int32(1), warnings.Load())
}

func TestHeartbeatStopsOnSessionDeath(t *testing.T) {
	var beats atomic.Int32
	var dead atomic.Bool

	h := NewHeartbeater(func(ctx context.Context) error {
		beats.Add(1)
		return ErrInvalidSession
	}, HeartbeatConfig{
		Interval:     time.Millisecond,
		FailureRetry: time.Millisecond,
		OnDead:       func() { dead.Store(true) },
	})

	h.Start(context.Background())
	waitFor(t, func() bool { return dead.Load() }, "death callback never fired")

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), beats.Load(), "a definitive death is never retried")
}

func TestHeartbeatPausesWhenIdleAndResumesOnTouch(t *testing.T) {
	var beats atomic.Int32
	h := NewHeartbeater(func(ctx context.Context) error {
		beats.Add(1)
		return nil
	}, HeartbeatConfig{
		Interval:  5 * time.Millisecond,
		IdleAfter: 25 * time.Millisecond,
	})

	h.Start(context.Background())
	defer h.Stop()

	waitFor(t, func() bool { return beats.Load() >= 1 }, "no initial beat")

	// Let the idle window lapse, then confirm beating stopped.
	time.Sleep(60 * time.Millisecond)
	paused := beats.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, paused, beats.Load(), "beats must pause while idle")

	// An interaction resumes immediately.
	h.Touch()
	waitFor(t, func() bool { return beats.Load() > paused }, "Touch did not resume beats")
}

func TestHeartbeatStopIsIdempotent(t *testing.T) {
	h := NewHeartbeater(func(ctx context.Context) error { return nil },
		HeartbeatConfig{Interval: time.Millisecond})

	h.Start(context.Background())
	h.Stop()
	h.Stop()

	require.NotPanics(t, func() { h.Start(context.Background()); h.Stop() })
}
