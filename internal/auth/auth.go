package auth

import (
	"time"

	"github.com/go-chi/jwtauth/v5"

	"codedrop-go/internal/models"
)

// TokenExpiry is the lifetime of an issued owner token.
const TokenExpiry = 24 * time.Hour

// Service issues and verifies the JWTs that identify code owners. Anonymous
// transfer traffic never touches it; only the code-management surface is
// authenticated.
type Service struct {
	tokenAuth *jwtauth.JWTAuth
}

func NewService(secret string) *Service {
	return &Service{tokenAuth: jwtauth.New("HS256", []byte(secret), nil)}
}

// GetAuth returns the JWTAuth instance for the verification middleware.
func (s *Service) GetAuth() *jwtauth.JWTAuth {
	return s.tokenAuth
}

// GenerateToken creates a signed JWT for a user.
func (s *Service) GenerateToken(u *models.User) (string, error) {
	claims := map[string]interface{}{
		"user_id":  u.ID.String(),
		"username": u.Username,
		"exp":      time.Now().Add(TokenExpiry).Unix(),
	}
	_, tokenString, err := s.tokenAuth.Encode(claims)
	return tokenString, err
}
