package user

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"codedrop-go/internal/models"
)

type fakeUserRepo struct {
	byID       map[uuid.UUID]*models.User
	byUsername map[string]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byID:       make(map[uuid.UUID]*models.User),
		byUsername: make(map[string]*models.User),
	}
}

func (r *fakeUserRepo) Create(ctx context.Context, u *models.User) error {
	if _, ok := r.byUsername[u.Username]; ok {
		return ErrUsernameExists
	}
	r.byID[u.ID] = u
	r.byUsername[u.Username] = u
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	u, ok := r.byUsername[username]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func TestRegisterHashesPassword(t *testing.T) {
	svc := NewService(newFakeUserRepo())
	ctx := context.Background()

	u, err := svc.Register(ctx, &RegisterRequest{Username: "alice", Password: "Sup3rSecret"})
	require.NoError(t, err)

	assert.Equal(t, "alice", u.Username)
	assert.NotEqual(t, "Sup3rSecret", u.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("Sup3rSecret")))
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc := NewService(newFakeUserRepo())
	ctx := context.Background()

	_, err := svc.Register(ctx, &RegisterRequest{Username: "alice", Password: "Sup3rSecret"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, &RegisterRequest{Username: "alice", Password: "An0therPass"})
	assert.ErrorIs(t, err, ErrUsernameExists)
}

func TestValidateCredentials(t *testing.T) {
	svc := NewService(newFakeUserRepo())
	ctx := context.Background()

	registered, err := svc.Register(ctx, &RegisterRequest{Username: "alice", Password: "Sup3rSecret"})
	require.NoError(t, err)

	t.Run("correct password", func(t *testing.T) {
		u, err := svc.ValidateCredentials(ctx, "alice", "Sup3rSecret")
		assert.NoError(t, err)
		assert.Equal(t, registered.ID, u.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.ValidateCredentials(ctx, "alice", "WrongPass1")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	// Unknown usernames are indistinguishable from wrong passwords.
	t.Run("unknown username", func(t *testing.T) {
		_, err := svc.ValidateCredentials(ctx, "nobody", "Sup3rSecret")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}
