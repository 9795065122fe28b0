package session

import (
	"net/http"

	"codedrop-go/internal/api"
)

var (
	// ErrInvalidSession is the uniform failure for every gate violation:
	// unknown session, wrong fingerprint, dead session, wrong status. Callers
	// never learn which gate failed.
	ErrInvalidSession = api.NewError("InvalidSession", http.StatusUnauthorized, "invalid session")

	// ErrInvalidTransferType means the session's code kind cannot perform the
	// requested operation.
	ErrInvalidTransferType = api.NewError("InvalidTransferType", http.StatusForbidden, "invalid transfer type")
)
