package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"codedrop-go/internal/models"
)

// CookieName carries the session capability: "<sessionID>.<fingerprint>".
const CookieName = "cd_session"

// NewFingerprint returns an unguessable capability token.
func NewFingerprint() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating fingerprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// IssueCookie (re-)issues the capability cookie for sess.
func IssueCookie(w http.ResponseWriter, sess *models.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sess.ID.String() + "." + sess.Fingerprint,
		Path:     "/",
		MaxAge:   int(LivenessThreshold.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie removes the capability cookie.
func ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// CredentialsFromRequest extracts the session capability from the request
// cookie. A missing or malformed cookie yields ErrInvalidSession.
func CredentialsFromRequest(r *http.Request) (Credentials, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return Credentials{}, ErrInvalidSession
	}

	idStr, fingerprint, found := strings.Cut(cookie.Value, ".")
	if !found || fingerprint == "" {
		return Credentials{}, ErrInvalidSession
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return Credentials{}, ErrInvalidSession
	}

	return Credentials{SessionID: id, Fingerprint: fingerprint}, nil
}
