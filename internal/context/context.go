package context

import (
	"context"

	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
)

// UserInfo identifies the authenticated code owner behind a request.
type UserInfo struct {
	ID       uuid.UUID
	Username string
}

// GetUserFromContext extracts the owner from the verified JWT claims, or nil
// when the request is unauthenticated.
func GetUserFromContext(ctx context.Context) *UserInfo {
	_, claims, err := jwtauth.FromContext(ctx)
	if err != nil {
		return nil
	}
	return getUserFromClaims(claims)
}

func getUserFromClaims(claims map[string]interface{}) *UserInfo {
	userID, _ := claims["user_id"].(string)
	username, _ := claims["username"].(string)
	if userID == "" || username == "" {
		return nil
	}
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil
	}
	return &UserInfo{ID: id, Username: username}
}
