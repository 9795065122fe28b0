package code

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"codedrop-go/internal/models"
)

type Repository interface {
	Create(ctx context.Context, c *models.Code) error
	CreateTx(tx *sqlx.Tx, c *models.Code) error
	GetByCode(ctx context.Context, code string) (*models.Code, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Code, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Code, error)
	Disable(ctx context.Context, id uuid.UUID, reason string) error
	UpdateConfigTx(tx *sqlx.Tx, id uuid.UUID, comment *string, expiresAt *time.Time, usageLimit, speedLimit *int) error
	IncrementUsageTx(tx *sqlx.Tx, id uuid.UUID) error
	DisableLapsed(ctx context.Context, now time.Time, reason string) (int64, error)

	// ClaimCompression atomically flips compress_status from IDLE or FAILED
	// to PROCESSING at 0%. Returns false when another request already holds
	// the job, or when it is COMPLETED.
	ClaimCompression(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateCompressProgress(ctx context.Context, id uuid.UUID, progress int) error
	SetCompressResult(ctx context.Context, id uuid.UUID, status models.CompressStatus, progress int) error
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

const insertCodeQuery = `
    INSERT INTO codes (id, code, kind, owner_id, source_code_id, expires_at, usage_limit, speed_limit, comment, created_at)
    VALUES (:id, :code, :kind, :owner_id, :source_code_id, :expires_at, :usage_limit, :speed_limit, :comment, :created_at)`

func (r *postgresRepository) Create(ctx context.Context, c *models.Code) error {
	_, err := r.db.NamedExecContext(ctx, insertCodeQuery, c)
	return wrapInsertError(err)
}

func (r *postgresRepository) CreateTx(tx *sqlx.Tx, c *models.Code) error {
	_, err := tx.NamedExec(insertCodeQuery, c)
	return wrapInsertError(err)
}

// wrapInsertError maps unique-constraint violations onto ErrCollision so the
// service can regenerate and retry.
func wrapInsertError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrCollision
	}
	return fmt.Errorf("inserting code: %w", err)
}

func (r *postgresRepository) GetByCode(ctx context.Context, code string) (*models.Code, error) {
	c := new(models.Code)
	err := r.db.GetContext(ctx, c, "SELECT * FROM codes WHERE code = $1", code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting code by token: %w", err)
	}
	return c, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Code, error) {
	c := new(models.Code)
	err := r.db.GetContext(ctx, c, "SELECT * FROM codes WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting code by id: %w", err)
	}
	return c, nil
}

func (r *postgresRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Code, error) {
	var codes []*models.Code
	err := r.db.SelectContext(ctx, &codes,
		"SELECT * FROM codes WHERE owner_id = $1 ORDER BY created_at DESC", ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing codes by owner: %w", err)
	}
	return codes, nil
}

func (r *postgresRepository) Disable(ctx context.Context, id uuid.UUID, reason string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE codes SET disable_reason = $1 WHERE id = $2 AND disable_reason IS NULL", reason, id)
	if err != nil {
		return fmt.Errorf("disabling code: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresRepository) UpdateConfigTx(tx *sqlx.Tx, id uuid.UUID, comment *string, expiresAt *time.Time, usageLimit, speedLimit *int) error {
	_, err := tx.Exec(`
        UPDATE codes
        SET comment = $1, expires_at = $2, usage_limit = $3, speed_limit = $4
        WHERE id = $5`,
		comment, expiresAt, usageLimit, speedLimit, id)
	if err != nil {
		return fmt.Errorf("updating code config: %w", err)
	}
	return nil
}

func (r *postgresRepository) IncrementUsageTx(tx *sqlx.Tx, id uuid.UUID) error {
	_, err := tx.Exec("UPDATE codes SET usage_count = usage_count + 1 WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("incrementing usage count: %w", err)
	}
	return nil
}

func (r *postgresRepository) DisableLapsed(ctx context.Context, now time.Time, reason string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
        UPDATE codes
        SET disable_reason = $1
        WHERE expires_at IS NOT NULL AND expires_at < $2 AND disable_reason IS NULL`,
		reason, now)
	if err != nil {
		return 0, fmt.Errorf("disabling lapsed codes: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return rows, nil
}

func (r *postgresRepository) ClaimCompression(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
        UPDATE codes
        SET compress_status = 'PROCESSING', compress_progress = 0
        WHERE id = $1 AND compress_status IN ('IDLE', 'FAILED')`, id)
	if err != nil {
		return false, fmt.Errorf("claiming compression job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *postgresRepository) UpdateCompressProgress(ctx context.Context, id uuid.UUID, progress int) error {
	// Progress only moves forward while the job is running.
	_, err := r.db.ExecContext(ctx, `
        UPDATE codes
        SET compress_progress = GREATEST(compress_progress, $1)
        WHERE id = $2 AND compress_status = 'PROCESSING'`, progress, id)
	if err != nil {
		return fmt.Errorf("updating compress progress: %w", err)
	}
	return nil
}

func (r *postgresRepository) SetCompressResult(ctx context.Context, id uuid.UUID, status models.CompressStatus, progress int) error {
	_, err := r.db.ExecContext(ctx, `
        UPDATE codes
        SET compress_status = $1, compress_progress = $2
        WHERE id = $3`, status, progress, id)
	if err != nil {
		return fmt.Errorf("setting compress result: %w", err)
	}
	return nil
}
