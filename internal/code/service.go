package code

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"codedrop-go/internal/models"
)

// DisableReasonExpired marks codes the sweeper disabled after their expiry.
const DisableReasonExpired = "expired"

// maxGenerateAttempts bounds regenerate-on-collision retries. With a 32^6
// space collisions are rare; hitting the bound indicates a real problem.
const maxGenerateAttempts = 5

type Service interface {
	CreateCode(ctx context.Context, ownerID uuid.UUID, req *CreateCodeRequest) (*models.Code, error)
	ListCodes(ctx context.Context, ownerID uuid.UUID) ([]*models.Code, error)
	DisableCode(ctx context.Context, ownerID, codeID uuid.UUID) error

	// Verify resolves a user-entered token to a usable code, rejecting
	// disabled, expired and used-up codes.
	Verify(ctx context.Context, token string) (*models.Code, error)

	GetByID(ctx context.Context, id uuid.UUID) (*models.Code, error)

	// MintLinkedTx creates the DOWNLOAD code spawned by an upload, inside the
	// caller's transaction.
	MintLinkedTx(tx *sqlx.Tx, source *models.Code) (*models.Code, error)

	// IncrementUsageTx records a usage event inside the caller's transaction.
	IncrementUsageTx(tx *sqlx.Tx, id uuid.UUID) error

	// UpdateConfigTx applies owner-settable fields inside the caller's
	// transaction.
	UpdateConfigTx(tx *sqlx.Tx, id uuid.UUID, comment *string, expiresAt *time.Time, usageLimit, speedLimit *int) error
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// CreateCodeRequest carries the owner-settable fields of a new code.
type CreateCodeRequest struct {
	Kind       models.CodeKind `json:"kind" validate:"required"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty"`
	UsageLimit *int            `json:"usage_limit,omitempty" validate:"omitempty,gt=0"`
	SpeedLimit *int            `json:"speed_limit,omitempty" validate:"omitempty,gt=0"`
	Comment    *string         `json:"comment,omitempty"`
}

func (s *service) CreateCode(ctx context.Context, ownerID uuid.UUID, req *CreateCodeRequest) (*models.Code, error) {
	if !req.Kind.Valid() {
		return nil, ErrInvalidKind
	}
	if req.Kind == models.CodeKindDownload {
		// DOWNLOAD codes are only ever minted as the result of an upload.
		return nil, ErrInvalidKind
	}
	if req.UsageLimit != nil && *req.UsageLimit <= 0 {
		return nil, ErrInvalidLimit
	}
	if req.SpeedLimit != nil && *req.SpeedLimit <= 0 {
		return nil, ErrInvalidLimit
	}

	c := &models.Code{
		ID:         uuid.New(),
		Kind:       req.Kind,
		OwnerID:    &ownerID,
		ExpiresAt:  req.ExpiresAt,
		UsageLimit: req.UsageLimit,
		SpeedLimit: req.SpeedLimit,
		Comment:    req.Comment,
		CreatedAt:  time.Now(),
	}

	if err := s.createWithRetry(func(token string) error {
		c.Code = token
		return s.repo.Create(ctx, c)
	}); err != nil {
		return nil, err
	}

	log.Info().
		Str("code", c.Code).
		Str("kind", string(c.Kind)).
		Str("owner_id", ownerID.String()).
		Msg("code created")
	return c, nil
}

// createWithRetry runs insert with freshly generated tokens until it stops
// colliding or the attempt budget runs out.
func (s *service) createWithRetry(insert func(token string) error) error {
	for attempt := 1; attempt <= maxGenerateAttempts; attempt++ {
		token, err := Generate()
		if err != nil {
			return err
		}
		err = insert(token)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrCollision) {
			return err
		}
		log.Warn().Int("attempt", attempt).Msg("code collision, regenerating")
	}
	return fmt.Errorf("could not generate unique code after %d attempts", maxGenerateAttempts)
}

func (s *service) ListCodes(ctx context.Context, ownerID uuid.UUID) ([]*models.Code, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

func (s *service) DisableCode(ctx context.Context, ownerID, codeID uuid.UUID) error {
	c, err := s.repo.GetByID(ctx, codeID)
	if err != nil {
		return err
	}
	if c.OwnerID == nil || *c.OwnerID != ownerID {
		return ErrUnauthorized
	}
	return s.repo.Disable(ctx, codeID, "disabled by owner")
}

func (s *service) Verify(ctx context.Context, token string) (*models.Code, error) {
	c, err := s.repo.GetByCode(ctx, Normalize(token))
	if err != nil {
		return nil, err
	}

	if !c.Enabled() {
		return nil, ErrDisabled
	}
	if c.ExpiresAt != nil && time.Now().After(*c.ExpiresAt) {
		return nil, ErrExpired
	}
	if c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit {
		return nil, ErrUsageExceeded
	}

	return c, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.Code, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) IncrementUsageTx(tx *sqlx.Tx, id uuid.UUID) error {
	return s.repo.IncrementUsageTx(tx, id)
}

func (s *service) UpdateConfigTx(tx *sqlx.Tx, id uuid.UUID, comment *string, expiresAt *time.Time, usageLimit, speedLimit *int) error {
	return s.repo.UpdateConfigTx(tx, id, comment, expiresAt, usageLimit, speedLimit)
}

func (s *service) MintLinkedTx(tx *sqlx.Tx, source *models.Code) (*models.Code, error) {
	linked := &models.Code{
		ID:           uuid.New(),
		Kind:         models.CodeKindDownload,
		OwnerID:      source.OwnerID,
		SourceCodeID: &source.ID,
		CreatedAt:    time.Now(),
	}

	if err := s.createWithRetry(func(token string) error {
		linked.Code = token
		return s.repo.CreateTx(tx, linked)
	}); err != nil {
		return nil, err
	}
	return linked, nil
}
