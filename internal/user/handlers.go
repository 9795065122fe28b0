package user

import (
	"net/http"

	"codedrop-go/internal/api"
	"codedrop-go/internal/auth"
	"codedrop-go/internal/validation"
)

type Handler struct {
	users Service
	auth  *auth.Service
}

func NewHandler(users Service, authService *auth.Service) *Handler {
	return &Handler{users: users, auth: authService}
}

// AuthResponse carries the freshly issued owner token.
type AuthResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// HandleRegister creates an owner account and logs it in immediately.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := api.Decode(r, &req); err != nil {
		api.FailValidation(w, nil)
		return
	}
	if err := validation.Validate(&req); err != nil {
		api.FailValidation(w, validation.FormatError(err))
		return
	}

	u, err := h.users.Register(r.Context(), &req)
	if err != nil {
		api.Fail(w, err)
		return
	}

	token, err := h.auth.GenerateToken(u)
	if err != nil {
		api.Fail(w, err)
		return
	}
	api.Success(w, &AuthResponse{Token: token, Username: u.Username})
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// HandleLogin exchanges credentials for an owner token.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := api.Decode(r, &req); err != nil {
		api.FailValidation(w, nil)
		return
	}
	if err := validation.Validate(&req); err != nil {
		api.FailValidation(w, validation.FormatError(err))
		return
	}

	u, err := h.users.ValidateCredentials(r.Context(), req.Username, req.Password)
	if err != nil {
		api.Fail(w, err)
		return
	}

	token, err := h.auth.GenerateToken(u)
	if err != nil {
		api.Fail(w, err)
		return
	}
	api.Success(w, &AuthResponse{Token: token, Username: u.Username})
}
