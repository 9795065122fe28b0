package session

import (
	"time"

	"github.com/google/uuid"

	"codedrop-go/internal/models"
)

const (
	// LivenessThreshold is the inactivity window after which a session is
	// dead. Deliberately much longer than the 30s heartbeat cadence so a few
	// missed beats do not kill a live session.
	LivenessThreshold = 10 * time.Minute

	// TouchDebounce suppresses liveness writes when the session was already
	// touched recently.
	TouchDebounce = 60 * time.Second
)

// Credentials is what the request presents: the session id plus fingerprint
// extracted from the capability cookie.
type Credentials struct {
	SessionID   uuid.UUID
	Fingerprint string
}

// Dead reports whether the session's liveness window has lapsed at now.
func Dead(sess *models.Session, now time.Time) bool {
	return now.Sub(sess.UpdatedAt) > LivenessThreshold
}

// checkGates applies the three gates in order: possession, status, code kind.
// An empty allowedStatuses or allowedKinds set means "any".
func checkGates(sess *models.Session, c *models.Code, creds Credentials,
	allowedStatuses []models.SessionStatus, allowedKinds []models.CodeKind) error {

	// Possession gate: the cookie must name this session and carry its exact
	// fingerprint. Both failures look identical from outside.
	if creds.SessionID != sess.ID || creds.Fingerprint == "" || creds.Fingerprint != sess.Fingerprint {
		return ErrInvalidSession
	}

	if len(allowedStatuses) > 0 {
		ok := false
		for _, st := range allowedStatuses {
			if sess.Status == st {
				ok = true
				break
			}
		}
		if !ok {
			return ErrInvalidSession
		}
	}

	if len(allowedKinds) > 0 {
		ok := false
		for _, k := range allowedKinds {
			if c.Kind == k {
				ok = true
				break
			}
		}
		if !ok {
			return ErrInvalidTransferType
		}
	}

	return nil
}

// InitialStatus returns the state a fresh session starts in for a code kind.
func InitialStatus(kind models.CodeKind) models.SessionStatus {
	if kind == models.CodeKindDownload {
		return models.SessionDownloading
	}
	return models.SessionPicking
}
