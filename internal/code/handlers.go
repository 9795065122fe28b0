package code

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"codedrop-go/internal/api"
	appcontext "codedrop-go/internal/context"
)

type Handler struct {
	codes Service
}

func NewHandler(codes Service) *Handler {
	return &Handler{codes: codes}
}

// HandleCreate mints a new UPLOAD or COLLECTION code for the authenticated
// owner.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	owner := appcontext.GetUserFromContext(r.Context())
	if owner == nil {
		api.Fail(w, ErrUnauthorized)
		return
	}

	var req CreateCodeRequest
	if err := api.Decode(r, &req); err != nil {
		api.FailValidation(w, nil)
		return
	}

	c, err := h.codes.CreateCode(r.Context(), owner.ID, &req)
	if err != nil {
		api.Fail(w, err)
		return
	}
	api.Success(w, c)
}

// HandleList returns every code the owner has created.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	owner := appcontext.GetUserFromContext(r.Context())
	if owner == nil {
		api.Fail(w, ErrUnauthorized)
		return
	}

	codes, err := h.codes.ListCodes(r.Context(), owner.ID)
	if err != nil {
		api.Fail(w, err)
		return
	}
	api.Success(w, codes)
}

// HandleDisable turns off one of the owner's codes.
func (h *Handler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	owner := appcontext.GetUserFromContext(r.Context())
	if owner == nil {
		api.Fail(w, ErrUnauthorized)
		return
	}

	codeID, err := uuid.Parse(chi.URLParam(r, "codeID"))
	if err != nil {
		api.FailValidation(w, nil)
		return
	}

	if err := h.codes.DisableCode(r.Context(), owner.ID, codeID); err != nil {
		api.Fail(w, err)
		return
	}
	api.Success(w, nil)
}
