package client

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// HeartbeatInterval is the cadence between successful beats.
	HeartbeatInterval = 30 * time.Second

	// HeartbeatFailureRetry is the shortened cadence while beats fail.
	HeartbeatFailureRetry = 10 * time.Second

	// HeartbeatUnstableAfter is how long a continuous outage runs before the
	// user is warned. Beats keep retrying past it.
	HeartbeatUnstableAfter = 120 * time.Second

	// HeartbeatIdleAfter pauses beats once the user has not interacted for
	// this long. The session then ages toward its liveness threshold on the
	// server; the next interaction resumes beats immediately.
	HeartbeatIdleAfter = 20 * time.Minute
)

// HeartbeatConfig tunes a Heartbeater. Zero values fall back to the
// defaults above.
type HeartbeatConfig struct {
	Interval      time.Duration
	FailureRetry  time.Duration
	UnstableAfter time.Duration
	IdleAfter     time.Duration

	// OnUnstable fires once per continuous outage that outlasts
	// UnstableAfter.
	OnUnstable func()

	// OnDead fires when the server declares the session invalid; the
	// heartbeater stops for good.
	OnDead func()
}

// Heartbeater keeps a session alive while the user is active: beat, wait,
// beat again, with shortened retries through outages and a hard stop on
// definitive session death.
type Heartbeater struct {
	send func(ctx context.Context) error
	cfg  HeartbeatConfig
	now  func() time.Time

	mu           sync.Mutex
	lastActivity time.Time
	running      bool

	activity chan struct{}
	stop     chan struct{}
	done     chan struct{}
}

// NewHeartbeater builds a heartbeater around send, typically
// (*Client).Heartbeat.
func NewHeartbeater(send func(ctx context.Context) error, cfg HeartbeatConfig) *Heartbeater {
	if cfg.Interval == 0 {
		cfg.Interval = HeartbeatInterval
	}
	if cfg.FailureRetry == 0 {
		cfg.FailureRetry = HeartbeatFailureRetry
	}
	if cfg.UnstableAfter == 0 {
		cfg.UnstableAfter = HeartbeatUnstableAfter
	}
	if cfg.IdleAfter == 0 {
		cfg.IdleAfter = HeartbeatIdleAfter
	}
	return &Heartbeater{
		send:     send,
		cfg:      cfg,
		now:      time.Now,
		activity: make(chan struct{}, 1),
	}
}

// Start begins beating immediately. Starting a running heartbeater is a
// no-op.
func (h *Heartbeater) Start(ctx context.Context) {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.lastActivity = h.now()
	h.stop = make(chan struct{})
	h.done = make(chan struct{})
	stop, done := h.stop, h.done
	h.mu.Unlock()

	go h.loop(ctx, stop, done)
}

// Stop halts beating and waits for the loop to exit.
func (h *Heartbeater) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	stop, done := h.stop, h.done
	h.mu.Unlock()

	close(stop)
	<-done
}

// Touch records user activity, resuming beats when they were paused for
// inactivity.
func (h *Heartbeater) Touch() {
	h.mu.Lock()
	h.lastActivity = h.now()
	h.mu.Unlock()
	select {
	case h.activity <- struct{}{}:
	default:
	}
}

func (h *Heartbeater) idle() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now().Sub(h.lastActivity) > h.cfg.IdleAfter
}

func (h *Heartbeater) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	var failingSince time.Time
	warned := false

	for {
		if h.idle() {
			// Paused. The next interaction beats immediately.
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-h.activity:
				continue
			}
		}

		err := h.send(ctx)
		var wait time.Duration
		switch {
		case err == nil:
			failingSince = time.Time{}
			warned = false
			wait = h.cfg.Interval

		case IsSessionError(err):
			log.Info().Msg("session declared invalid, stopping heartbeats")
			if h.cfg.OnDead != nil {
				h.cfg.OnDead()
			}
			h.mu.Lock()
			h.running = false
			h.mu.Unlock()
			return

		default:
			if failingSince.IsZero() {
				failingSince = h.now()
			}
			if !warned && h.now().Sub(failingSince) >= h.cfg.UnstableAfter {
				warned = true
				log.Warn().Err(err).Msg("heartbeats failing, network unstable")
				if h.cfg.OnUnstable != nil {
					h.cfg.OnUnstable()
				}
			}
			wait = h.cfg.FailureRetry
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
