package transfer

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"codedrop-go/internal/code"
	"codedrop-go/internal/database"
	"codedrop-go/internal/models"
	"codedrop-go/internal/session"
	"codedrop-go/internal/storage"
)

// Service drives the server side of a transfer: the upload handshake, file
// registration and download URL issuance. Every operation re-validates the
// session gates before touching anything.
type Service interface {
	StartUpload(ctx context.Context, creds session.Credentials) (*StartUploadResult, error)
	GenerateUploadURL(ctx context.Context, creds session.Credentials, req *UploadURLRequest) (*UploadURLResult, error)
	CreateFileRecord(ctx context.Context, creds session.Credentials, tokenID uuid.UUID) (*models.StoredFile, error)
	CompleteUpload(ctx context.Context, creds session.Credentials) (*CompleteUploadResult, error)
	SubmitConfig(ctx context.Context, creds session.Credentials, req *ConfigRequest) error
	ListFiles(ctx context.Context, creds session.Credentials) ([]*models.StoredFile, error)
	GenerateDownloadURLs(ctx context.Context, creds session.Credentials, fileIDs []uuid.UUID) ([]DownloadURL, error)
}

type service struct {
	db          *database.DB
	sessions    session.Service
	sessionRepo session.Repository
	codes       code.Service
	files       FileRepository
	tokens      TokenRepository
	store       storage.Provider

	presignTTL time.Duration
	maxSize    int64
}

func NewService(db *database.DB, sessions session.Service, sessionRepo session.Repository,
	codes code.Service, files FileRepository, tokens TokenRepository,
	store storage.Provider, presignTTL time.Duration, maxSize int64) Service {
	return &service{
		db:          db,
		sessions:    sessions,
		sessionRepo: sessionRepo,
		codes:       codes,
		files:       files,
		tokens:      tokens,
		store:       store,
		presignTTL:  presignTTL,
		maxSize:     maxSize,
	}
}

var uploadKinds = []models.CodeKind{models.CodeKindUpload, models.CodeKindCollection}

// errLinkClaimLost signals that a concurrent start-upload bound the linked
// code first; the losing transaction rolls back its mint.
var errLinkClaimLost = errors.New("linked code claim lost")

// StartUploadResult reports the outcome of the PICKING→UPLOADING transition.
type StartUploadResult struct {
	AlreadyStarted bool   `json:"already_started"`
	DownloadCode   string `json:"download_code"`
}

// StartUpload is the one compound transition: gate check, mint the linked
// download code at most once, and flip to UPLOADING, all in one transaction.
// Re-entering after the transition already happened is answered with an
// already-started signal so a client retrying a dropped response stays safe.
func (s *service) StartUpload(ctx context.Context, creds session.Credentials) (*StartUploadResult, error) {
	// UPLOADING is allowed through the status gate so a redundant retry can
	// reach the idempotent answer instead of being rejected.
	sess, c, err := s.sessions.Authorize(ctx, creds,
		[]models.SessionStatus{models.SessionPicking, models.SessionUploading}, uploadKinds)
	if err != nil {
		return nil, err
	}

	if sess.LinkedCodeID != nil {
		linked, err := s.codes.GetByID(ctx, *sess.LinkedCodeID)
		if err != nil {
			return nil, err
		}
		return &StartUploadResult{AlreadyStarted: true, DownloadCode: linked.Code}, nil
	}

	var linked *models.Code
	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		minted, err := s.codes.MintLinkedTx(tx, c)
		if err != nil {
			return err
		}
		// Conditional claim: a concurrent call that minted first wins, and
		// the rollback discards this mint.
		claimed, err := s.sessionRepo.ClaimLinkedCodeTx(tx, sess.ID, minted.ID)
		if err != nil {
			return err
		}
		if !claimed {
			return errLinkClaimLost
		}
		if err := s.sessionRepo.UpdateStatusTx(tx, sess.ID, models.SessionUploading); err != nil {
			return err
		}
		linked = minted
		return nil
	})
	if errors.Is(err, errLinkClaimLost) {
		current, err := s.sessionRepo.GetByID(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		if current.LinkedCodeID == nil {
			return nil, ErrNotStarted
		}
		winner, err := s.codes.GetByID(ctx, *current.LinkedCodeID)
		if err != nil {
			return nil, err
		}
		return &StartUploadResult{AlreadyStarted: true, DownloadCode: winner.Code}, nil
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", sess.ID.String()).
		Str("download_code", linked.Code).
		Msg("upload started, download code minted")
	return &StartUploadResult{DownloadCode: linked.Code}, nil
}

// UploadURLRequest describes one file or folder about to be transferred.
type UploadURLRequest struct {
	Name         string `json:"name" validate:"required"`
	RelativePath string `json:"relative_path" validate:"required"`
	SizeBytes    int64  `json:"size_bytes" validate:"gte=0"`
	IsDirectory  bool   `json:"is_directory"`
	ContentType  string `json:"content_type"`
}

// UploadURLResult is either a folder acknowledgment (FileID set) or a
// pre-signed destination plus its one-time upload token.
type UploadURLResult struct {
	FileID      *uuid.UUID              `json:"file_id,omitempty"`
	UploadToken *uuid.UUID              `json:"upload_token,omitempty"`
	Destination *storage.PutDestination `json:"destination,omitempty"`
}

func (s *service) GenerateUploadURL(ctx context.Context, creds session.Credentials, req *UploadURLRequest) (*UploadURLResult, error) {
	sess, c, err := s.sessions.Authorize(ctx, creds,
		[]models.SessionStatus{models.SessionUploading}, uploadKinds)
	if err != nil {
		return nil, err
	}
	if sess.LinkedCodeID == nil {
		return nil, ErrNotStarted
	}

	relPath, err := cleanRelativePath(req.RelativePath)
	if err != nil {
		return nil, err
	}
	if !req.IsDirectory && s.maxSize > 0 && req.SizeBytes > s.maxSize {
		return nil, fmt.Errorf("%w: %s exceeds %s", ErrFileTooLarge,
			humanize.Bytes(uint64(req.SizeBytes)), humanize.Bytes(uint64(s.maxSize)))
	}

	basePath := "files/" + c.ID.String()

	// Folders carry no bytes: the marker record is created right away and the
	// client treats the task as done.
	if req.IsDirectory {
		file := &models.StoredFile{
			ID:              uuid.New(),
			Name:            req.Name,
			RelativePath:    relPath,
			IsDirectory:     true,
			StorageBasePath: basePath,
			CreatedAt:       time.Now(),
		}
		err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
			return s.files.CreateTx(tx, file, []uuid.UUID{c.ID, *sess.LinkedCodeID})
		})
		if err != nil {
			return nil, err
		}
		return &UploadURLResult{FileID: &file.ID}, nil
	}

	key := basePath + "/" + relPath
	dest, err := s.store.IssuePutDestination(ctx, key, req.ContentType, s.presignTTL)
	if err != nil {
		return nil, err
	}

	token := &models.UploadToken{
		Token:        uuid.New(),
		SessionID:    sess.ID,
		StorageKey:   key,
		FileName:     req.Name,
		RelativePath: relPath,
		SizeBytes:    req.SizeBytes,
		CreatedAt:    time.Now(),
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return nil, err
	}

	return &UploadURLResult{UploadToken: &token.Token, Destination: dest}, nil
}

// CreateFileRecord verifies an upload: it consumes the one-time token first
// (the token dies whether or not the rest succeeds, which is what makes a
// client retry after a lost response safe), then persists the file row and
// the usage event atomically.
func (s *service) CreateFileRecord(ctx context.Context, creds session.Credentials, tokenID uuid.UUID) (*models.StoredFile, error) {
	sess, c, err := s.sessions.Authorize(ctx, creds,
		[]models.SessionStatus{models.SessionUploading}, uploadKinds)
	if err != nil {
		return nil, err
	}
	if sess.LinkedCodeID == nil {
		return nil, ErrNotStarted
	}

	token, err := s.tokens.Consume(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if token.SessionID != sess.ID {
		// A token issued to another session is no better than a replay.
		return nil, ErrInvalidToken
	}

	file := &models.StoredFile{
		ID:              uuid.New(),
		Name:            token.FileName,
		RelativePath:    token.RelativePath,
		SizeBytes:       token.SizeBytes,
		StorageBasePath: strings.TrimSuffix(token.StorageKey, "/"+token.RelativePath),
		CreatedAt:       time.Now(),
	}

	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.files.CreateTx(tx, file, []uuid.UUID{c.ID, *sess.LinkedCodeID}); err != nil {
			return err
		}
		return s.codes.IncrementUsageTx(tx, c.ID)
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("session_id", sess.ID.String()).
		Str("file", file.RelativePath).
		Str("size", humanize.Bytes(uint64(file.SizeBytes))).
		Msg("file record created")
	return file, nil
}

// CompleteUploadResult surfaces the minted download code to the uploader.
type CompleteUploadResult struct {
	DownloadCode string `json:"download_code"`
}

func (s *service) CompleteUpload(ctx context.Context, creds session.Credentials) (*CompleteUploadResult, error) {
	sess, _, err := s.sessions.Authorize(ctx, creds,
		[]models.SessionStatus{models.SessionUploading}, uploadKinds)
	if err != nil {
		return nil, err
	}
	if sess.LinkedCodeID == nil {
		return nil, ErrNotStarted
	}

	linked, err := s.codes.GetByID(ctx, *sess.LinkedCodeID)
	if err != nil {
		return nil, err
	}

	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		return s.sessionRepo.UpdateStatusTx(tx, sess.ID, models.SessionConfiguring)
	})
	if err != nil {
		return nil, err
	}

	// Issued-but-never-consumed tokens are dead weight once the batch closes.
	if err := s.tokens.DeleteBySession(ctx, sess.ID); err != nil {
		log.Error().Err(err).Str("session_id", sess.ID.String()).Msg("clearing unused upload tokens")
	}

	return &CompleteUploadResult{DownloadCode: linked.Code}, nil
}

// ConfigRequest carries the settings the uploader applies to the minted
// download code.
type ConfigRequest struct {
	Comment    *string    `json:"comment,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	UsageLimit *int       `json:"usage_limit,omitempty" validate:"omitempty,gt=0"`
	SpeedLimit *int       `json:"speed_limit,omitempty" validate:"omitempty,gt=0"`
}

// SubmitConfig updates the download code's fields and completes the session,
// both halves in a single transaction.
func (s *service) SubmitConfig(ctx context.Context, creds session.Credentials, req *ConfigRequest) error {
	sess, _, err := s.sessions.Authorize(ctx, creds,
		[]models.SessionStatus{models.SessionConfiguring}, uploadKinds)
	if err != nil {
		return err
	}
	if sess.LinkedCodeID == nil {
		return ErrNotStarted
	}

	return s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.codes.UpdateConfigTx(tx, *sess.LinkedCodeID, req.Comment, req.ExpiresAt, req.UsageLimit, req.SpeedLimit); err != nil {
			return err
		}
		return s.sessionRepo.UpdateStatusTx(tx, sess.ID, models.SessionCompleted)
	})
}

func (s *service) ListFiles(ctx context.Context, creds session.Credentials) ([]*models.StoredFile, error) {
	_, c, err := s.sessions.Authorize(ctx, creds,
		[]models.SessionStatus{
			models.SessionUploading,
			models.SessionConfiguring,
			models.SessionDownloading,
			models.SessionCompleted,
		}, nil)
	if err != nil {
		return nil, err
	}
	return s.files.ListByCode(ctx, c.ID)
}

// DownloadURL pairs a file with its pre-signed retrieval URL.
type DownloadURL struct {
	FileID uuid.UUID `json:"file_id"`
	Name   string    `json:"name"`
	URL    string    `json:"url"`
}

func (s *service) GenerateDownloadURLs(ctx context.Context, creds session.Credentials, fileIDs []uuid.UUID) ([]DownloadURL, error) {
	_, c, err := s.sessions.Authorize(ctx, creds,
		[]models.SessionStatus{models.SessionDownloading},
		[]models.CodeKind{models.CodeKindDownload})
	if err != nil {
		return nil, err
	}

	urls := make([]DownloadURL, 0, len(fileIDs))
	for _, fileID := range fileIDs {
		file, err := s.files.GetForCode(ctx, fileID, c.ID)
		if err != nil {
			return nil, err
		}
		if file.IsDirectory {
			continue
		}
		u, err := s.store.IssueGetURL(ctx, file.StorageKey(), file.Name, s.presignTTL)
		if err != nil {
			return nil, err
		}
		urls = append(urls, DownloadURL{FileID: file.ID, Name: file.Name, URL: u})
	}
	return urls, nil
}

// cleanRelativePath normalizes a client-supplied path and rejects escapes.
func cleanRelativePath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	cleaned := path.Clean("/" + p)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return cleaned, nil
}
