package sweeper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"codedrop-go/internal/code"
	"codedrop-go/internal/models"
	"codedrop-go/internal/session"
	"codedrop-go/internal/storage"
)

// batchDeleteMin is the orphan count from which object deletion switches to
// a single batched call instead of one request per key.
const batchDeleteMin = 5

// sweepTimeout bounds a single sweep pass.
const sweepTimeout = time.Minute

// SessionStore is the slice of the session repository the sweeper uses.
type SessionStore interface {
	DeleteIdleSince(ctx context.Context, cutoff time.Time) (int64, error)
}

// CodeStore disables codes whose expiry has lapsed.
type CodeStore interface {
	DisableLapsed(ctx context.Context, now time.Time, reason string) (int64, error)
}

// FileStore enumerates and deletes files with no remaining code association.
type FileStore interface {
	ListOrphans(ctx context.Context) ([]*models.StoredFile, error)
	DeleteFiles(ctx context.Context, ids []uuid.UUID) error
}

// Status is a point-in-time snapshot of the sweeper's lifecycle and the
// cumulative totals since Start.
type Status struct {
	Running         bool      `json:"running"`
	Interval        string    `json:"interval"`
	LastRun         time.Time `json:"last_run"`
	LastError       string    `json:"last_error,omitempty"`
	RunsCompleted   int64     `json:"runs_completed"`
	SessionsDeleted int64     `json:"sessions_deleted"`
	CodesDisabled   int64     `json:"codes_disabled"`
	FilesReaped     int64     `json:"files_reaped"`
}

// Sweeper periodically deletes dead sessions, disables lapsed codes and reaps
// files no enabled code references anymore, together with their stored
// objects.
type Sweeper struct {
	sessions SessionStore
	codes    CodeStore
	files    FileStore
	objects  storage.Provider

	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
	status  Status
}

func New(sessions SessionStore, codes CodeStore, files FileStore, objects storage.Provider, interval time.Duration) *Sweeper {
	return &Sweeper{
		sessions: sessions,
		codes:    codes,
		files:    files,
		objects:  objects,
		interval: interval,
		now:      time.Now,
		status:   Status{Interval: interval.String()},
	}
}

// NewWithClock is New with an injected clock, for tests.
func NewWithClock(sessions SessionStore, codes CodeStore, files FileStore, objects storage.Provider, interval time.Duration, now func() time.Time) *Sweeper {
	s := New(sessions, codes, files, objects, interval)
	s.now = now
	return s
}

// Start runs one sweep immediately, then sweeps on the configured interval
// until Stop is called. Starting a running sweeper is an error.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("sweeper already running")
	}
	s.running = true
	s.status.Running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	log.Info().Dur("interval", s.interval).Msg("sweeper started")

	go func() {
		defer close(done)

		s.runOnce()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.runOnce()
			}
		}
	}()
	return nil
}

// Stop signals the loop and waits for any in-flight sweep to finish.
// Stopping a stopped sweeper is a no-op.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.status.Running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
	log.Info().Msg("sweeper stopped")
}

// Status reports the current lifecycle state and totals.
func (s *Sweeper) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Sweeper) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	sessions, codes, files, err := s.sweep(ctx)

	s.mu.Lock()
	s.status.LastRun = s.now()
	s.status.RunsCompleted++
	s.status.SessionsDeleted += sessions
	s.status.CodesDisabled += codes
	s.status.FilesReaped += files
	if err != nil {
		s.status.LastError = err.Error()
	} else {
		s.status.LastError = ""
	}
	s.mu.Unlock()
}

func (s *Sweeper) sweep(ctx context.Context) (sessions, codes, files int64, err error) {
	now := s.now()

	sessions, serr := s.sessions.DeleteIdleSince(ctx, now.Add(-session.LivenessThreshold))
	if serr != nil {
		log.Error().Err(serr).Msg("deleting idle sessions")
		err = errors.Join(err, serr)
	}

	codes, cerr := s.codes.DisableLapsed(ctx, now, code.DisableReasonExpired)
	if cerr != nil {
		log.Error().Err(cerr).Msg("disabling lapsed codes")
		err = errors.Join(err, cerr)
	}

	files, ferr := s.reapOrphans(ctx)
	if ferr != nil {
		log.Error().Err(ferr).Msg("reaping orphaned files")
		err = errors.Join(err, ferr)
	}

	if sessions > 0 || codes > 0 || files > 0 {
		log.Info().
			Int64("sessions_deleted", sessions).
			Int64("codes_disabled", codes).
			Int64("files_reaped", files).
			Msg("sweep finished")
	}
	return sessions, codes, files, err
}

// reapOrphans removes files no code references anymore. Object deletion is
// attempted first but a storage failure never blocks the row cleanup; the
// object store is retried implicitly because the key stays derivable until
// the rows are gone, and worst case leaves an unreferenced object behind.
func (s *Sweeper) reapOrphans(ctx context.Context) (int64, error) {
	orphans, err := s.files.ListOrphans(ctx)
	if err != nil {
		return 0, err
	}
	if len(orphans) == 0 {
		return 0, nil
	}

	ids := make([]uuid.UUID, 0, len(orphans))
	keys := make([]string, 0, len(orphans))
	for _, f := range orphans {
		ids = append(ids, f.ID)
		if !f.IsDirectory {
			keys = append(keys, f.StorageKey())
		}
	}

	s.deleteObjects(ctx, keys)

	if err := s.files.DeleteFiles(ctx, ids); err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

func (s *Sweeper) deleteObjects(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	if len(keys) >= batchDeleteMin {
		if err := s.objects.DeleteObjects(ctx, keys); err != nil {
			log.Error().Err(err).Int("count", len(keys)).Msg("batch deleting orphaned objects")
		}
		return
	}
	for _, key := range keys {
		if err := s.objects.DeleteObject(ctx, key); err != nil {
			log.Error().Err(err).Str("key", key).Msg("deleting orphaned object")
		}
	}
}
