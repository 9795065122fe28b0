package transfer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"codedrop-go/internal/models"
)

// FileRepository persists stored files and their code associations.
type FileRepository interface {
	CreateTx(tx *sqlx.Tx, file *models.StoredFile, codeIDs []uuid.UUID) error
	ListByCode(ctx context.Context, codeID uuid.UUID) ([]*models.StoredFile, error)
	GetForCode(ctx context.Context, fileID, codeID uuid.UUID) (*models.StoredFile, error)

	// ListOrphans returns files with zero remaining code associations.
	ListOrphans(ctx context.Context) ([]*models.StoredFile, error)
	DeleteFiles(ctx context.Context, ids []uuid.UUID) error
}

// TokenRepository persists one-time upload tokens.
type TokenRepository interface {
	Create(ctx context.Context, token *models.UploadToken) error

	// Consume atomically claims and deletes the token. The second caller for
	// the same token gets ErrInvalidToken.
	Consume(ctx context.Context, tokenID uuid.UUID) (*models.UploadToken, error)

	DeleteBySession(ctx context.Context, sessionID uuid.UUID) error
}

type postgresFileRepository struct {
	db *sqlx.DB
}

func NewPostgresFileRepository(db *sqlx.DB) FileRepository {
	return &postgresFileRepository{db: db}
}

func (r *postgresFileRepository) CreateTx(tx *sqlx.Tx, file *models.StoredFile, codeIDs []uuid.UUID) error {
	_, err := tx.NamedExec(`
        INSERT INTO stored_files (id, name, relative_path, size_bytes, is_directory, storage_base_path, created_at)
        VALUES (:id, :name, :relative_path, :size_bytes, :is_directory, :storage_base_path, :created_at)`, file)
	if err != nil {
		return fmt.Errorf("inserting stored file: %w", err)
	}

	for _, codeID := range codeIDs {
		if _, err := tx.Exec(
			"INSERT INTO code_files (code_id, file_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			codeID, file.ID); err != nil {
			return fmt.Errorf("associating file with code: %w", err)
		}
	}
	return nil
}

func (r *postgresFileRepository) ListByCode(ctx context.Context, codeID uuid.UUID) ([]*models.StoredFile, error) {
	var files []*models.StoredFile
	err := r.db.SelectContext(ctx, &files, `
        SELECT f.* FROM stored_files f
        JOIN code_files cf ON cf.file_id = f.id
        WHERE cf.code_id = $1
        ORDER BY f.relative_path`, codeID)
	if err != nil {
		return nil, fmt.Errorf("listing files by code: %w", err)
	}
	return files, nil
}

func (r *postgresFileRepository) GetForCode(ctx context.Context, fileID, codeID uuid.UUID) (*models.StoredFile, error) {
	file := new(models.StoredFile)
	err := r.db.GetContext(ctx, file, `
        SELECT f.* FROM stored_files f
        JOIN code_files cf ON cf.file_id = f.id
        WHERE f.id = $1 AND cf.code_id = $2`, fileID, codeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting file for code: %w", err)
	}
	return file, nil
}

func (r *postgresFileRepository) ListOrphans(ctx context.Context) ([]*models.StoredFile, error) {
	var files []*models.StoredFile
	err := r.db.SelectContext(ctx, &files, `
        SELECT f.* FROM stored_files f
        WHERE NOT EXISTS (SELECT 1 FROM code_files cf WHERE cf.file_id = f.id)`)
	if err != nil {
		return nil, fmt.Errorf("listing orphaned files: %w", err)
	}
	return files, nil
}

func (r *postgresFileRepository) DeleteFiles(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In("DELETE FROM stored_files WHERE id IN (?)", ids)
	if err != nil {
		return fmt.Errorf("building delete query: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("deleting stored files: %w", err)
	}
	return nil
}

type postgresTokenRepository struct {
	db *sqlx.DB
}

func NewPostgresTokenRepository(db *sqlx.DB) TokenRepository {
	return &postgresTokenRepository{db: db}
}

func (r *postgresTokenRepository) Create(ctx context.Context, token *models.UploadToken) error {
	_, err := r.db.NamedExecContext(ctx, `
        INSERT INTO upload_tokens (token, session_id, storage_key, file_name, relative_path, size_bytes, created_at)
        VALUES (:token, :session_id, :storage_key, :file_name, :relative_path, :size_bytes, :created_at)`, token)
	if err != nil {
		return fmt.Errorf("inserting upload token: %w", err)
	}
	return nil
}

func (r *postgresTokenRepository) Consume(ctx context.Context, tokenID uuid.UUID) (*models.UploadToken, error) {
	token := new(models.UploadToken)
	err := r.db.GetContext(ctx, token,
		"DELETE FROM upload_tokens WHERE token = $1 RETURNING *", tokenID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("consuming upload token: %w", err)
	}
	return token, nil
}

func (r *postgresTokenRepository) DeleteBySession(ctx context.Context, sessionID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM upload_tokens WHERE session_id = $1", sessionID)
	if err != nil {
		return fmt.Errorf("deleting session tokens: %w", err)
	}
	return nil
}
