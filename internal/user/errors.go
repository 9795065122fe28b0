package user

import (
	"net/http"

	"codedrop-go/internal/api"
)

var (
	// ErrNotFound means no such user exists.
	ErrNotFound = api.NewError("NotFound", http.StatusNotFound, "user not found")

	// ErrUsernameExists means the username is already registered.
	ErrUsernameExists = api.NewError("UsernameExists", http.StatusConflict, "username already exists")

	// ErrInvalidCredentials covers both a wrong password and an unknown
	// username on login, so the two are indistinguishable to a caller.
	ErrInvalidCredentials = api.NewError("InvalidCredentials", http.StatusUnauthorized, "invalid credentials")
)
