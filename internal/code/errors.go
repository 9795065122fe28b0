package code

import (
	"errors"
	"net/http"

	"codedrop-go/internal/api"
)

var (
	// ErrNotFound means no code matches the given token.
	ErrNotFound = api.NewError("CodeNotFound", http.StatusNotFound, "code not found")

	// ErrDisabled means the code exists but has been disabled.
	ErrDisabled = api.NewError("CodeDisabled", http.StatusGone, "code disabled")

	// ErrExpired means the code's expiry has passed.
	ErrExpired = api.NewError("CodeExpired", http.StatusGone, "code expired")

	// ErrUsageExceeded means the code's usage limit has been reached.
	ErrUsageExceeded = api.NewError("UsageExceeded", http.StatusGone, "code usage limit exceeded")

	// ErrUnauthorized means the acting user does not own the code.
	ErrUnauthorized = api.NewError("Unauthorized", http.StatusForbidden, "not the code owner")

	// ErrInvalidKind means the request asked for a kind that cannot be
	// created directly.
	ErrInvalidKind = api.NewError("ValidationError", http.StatusBadRequest, "invalid code kind")

	// ErrInvalidLimit means a usage or speed limit was not positive.
	ErrInvalidLimit = api.NewError("ValidationError", http.StatusBadRequest, "limits must be positive")

	// ErrCollision means a generated code already exists. Internal to the
	// create-with-retry loop, never surfaced on the wire.
	ErrCollision = errors.New("code collision")
)
