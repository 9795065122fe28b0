package transfer

import (
	"net/http"

	"codedrop-go/internal/api"
)

var (
	// ErrInvalidToken means the upload token does not exist or was already
	// consumed. Tokens are single use; a replayed token always lands here.
	ErrInvalidToken = api.NewError("InvalidToken", http.StatusBadRequest, "invalid upload token")

	// ErrNotStarted means the operation needs a minted download code but the
	// session never went through start-upload.
	ErrNotStarted = api.NewError("NotStarted", http.StatusConflict, "upload not started")

	// ErrFileNotFound means the requested file is not associated with the
	// session's code.
	ErrFileNotFound = api.NewError("NotFound", http.StatusNotFound, "file not found")

	// ErrFileTooLarge means the declared size exceeds the configured limit.
	ErrFileTooLarge = api.NewError("FileTooLarge", http.StatusRequestEntityTooLarge, "file too large")

	// ErrInvalidPath means the relative path escapes or is empty after
	// normalization.
	ErrInvalidPath = api.NewError("ValidationError", http.StatusBadRequest, "invalid relative path")
)
