package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"codedrop-go/internal/code"
	"codedrop-go/internal/models"
)

// Service is the server-side authority over what a session may currently do.
// Every transfer operation passes through Authorize.
type Service interface {
	// Verify resolves a code token and opens a fresh session bound to a new
	// fingerprint.
	Verify(ctx context.Context, token string) (*models.Session, *models.Code, error)

	// Authorize runs the full gate stack. A session past its liveness window
	// is deleted as a side effect of being observed dead. Empty status/kind
	// sets mean the operation is legal in any state / for any kind.
	Authorize(ctx context.Context, creds Credentials,
		statuses []models.SessionStatus, kinds []models.CodeKind) (*models.Session, *models.Code, error)

	// Heartbeat re-validates the gates with empty filters and refreshes the
	// liveness clock, debounced to at most one write per TouchDebounce.
	Heartbeat(ctx context.Context, creds Credentials) (*models.Session, error)

	// Destroy removes a session outright.
	Destroy(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo  Repository
	codes code.Service
	now   func() time.Time
}

func NewService(repo Repository, codes code.Service) Service {
	return &service{repo: repo, codes: codes, now: time.Now}
}

// NewServiceWithClock is used by tests to control the liveness clock.
func NewServiceWithClock(repo Repository, codes code.Service, now func() time.Time) Service {
	return &service{repo: repo, codes: codes, now: now}
}

func (s *service) Verify(ctx context.Context, token string) (*models.Session, *models.Code, error) {
	c, err := s.codes.Verify(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	fingerprint, err := NewFingerprint()
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	sess := &models.Session{
		ID:          uuid.New(),
		CodeID:      c.ID,
		Fingerprint: fingerprint,
		Status:      InitialStatus(c.Kind),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, nil, err
	}

	log.Info().
		Str("session_id", sess.ID.String()).
		Str("code", c.Code).
		Str("kind", string(c.Kind)).
		Str("status", string(sess.Status)).
		Msg("session opened")
	return sess, c, nil
}

func (s *service) Authorize(ctx context.Context, creds Credentials,
	statuses []models.SessionStatus, kinds []models.CodeKind) (*models.Session, *models.Code, error) {

	sess, err := s.repo.GetByID(ctx, creds.SessionID)
	if err != nil {
		return nil, nil, err
	}

	// Liveness is evaluated lazily, on lookup. A dead session is deleted the
	// moment it is observed and treated like a possession failure.
	if Dead(sess, s.now()) {
		if delErr := s.repo.Delete(ctx, sess.ID); delErr != nil {
			log.Error().Err(delErr).Str("session_id", sess.ID.String()).Msg("deleting dead session")
		} else {
			log.Debug().Str("session_id", sess.ID.String()).Msg("dead session reaped on lookup")
		}
		return nil, nil, ErrInvalidSession
	}

	c, err := s.codes.GetByID(ctx, sess.CodeID)
	if err != nil {
		return nil, nil, ErrInvalidSession
	}
	if !c.Enabled() {
		return nil, nil, ErrInvalidSession
	}

	if err := checkGates(sess, c, creds, statuses, kinds); err != nil {
		return nil, nil, err
	}

	return sess, c, nil
}

func (s *service) Heartbeat(ctx context.Context, creds Credentials) (*models.Session, error) {
	sess, _, err := s.Authorize(ctx, creds, nil, nil)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if now.Sub(sess.UpdatedAt) < TouchDebounce {
		// Touched recently; skip the write and just re-issue the cookie.
		return sess, nil
	}

	if err := s.repo.Touch(ctx, sess.ID, now); err != nil {
		return nil, err
	}
	sess.UpdatedAt = now
	return sess, nil
}

func (s *service) Destroy(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}
