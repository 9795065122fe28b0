package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"codedrop-go/internal/models"
)

type Repository interface {
	Create(ctx context.Context, sess *models.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Touch(ctx context.Context, id uuid.UUID, now time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteIdleSince(ctx context.Context, cutoff time.Time) (int64, error)

	UpdateStatusTx(tx *sqlx.Tx, id uuid.UUID, status models.SessionStatus) error

	// ClaimLinkedCodeTx binds the linked code only when none is bound yet.
	// Returns false when a concurrent call won the claim first.
	ClaimLinkedCodeTx(tx *sqlx.Tx, id uuid.UUID, linkedCodeID uuid.UUID) (bool, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Create(ctx context.Context, sess *models.Session) error {
	_, err := r.db.NamedExecContext(ctx, `
        INSERT INTO sessions (id, code_id, fingerprint, status, created_at, updated_at)
        VALUES (:id, :code_id, :fingerprint, :status, :created_at, :updated_at)`, sess)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	sess := new(models.Session)
	err := r.db.GetContext(ctx, sess, "SELECT * FROM sessions WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	return sess, nil
}

func (r *postgresRepository) Touch(ctx context.Context, id uuid.UUID, now time.Time) error {
	_, err := r.db.ExecContext(ctx, "UPDATE sessions SET updated_at = $1 WHERE id = $2", now, id)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func (r *postgresRepository) DeleteIdleSince(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE updated_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting idle sessions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return rows, nil
}

func (r *postgresRepository) UpdateStatusTx(tx *sqlx.Tx, id uuid.UUID, status models.SessionStatus) error {
	_, err := tx.Exec("UPDATE sessions SET status = $1, updated_at = now() WHERE id = $2", status, id)
	if err != nil {
		return fmt.Errorf("updating session status: %w", err)
	}
	return nil
}

func (r *postgresRepository) ClaimLinkedCodeTx(tx *sqlx.Tx, id uuid.UUID, linkedCodeID uuid.UUID) (bool, error) {
	result, err := tx.Exec(
		"UPDATE sessions SET linked_code_id = $1 WHERE id = $2 AND linked_code_id IS NULL",
		linkedCodeID, id)
	if err != nil {
		return false, fmt.Errorf("claiming linked code: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return rows == 1, nil
}
