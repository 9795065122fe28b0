package compress

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"codedrop-go/internal/models"
	"codedrop-go/internal/storage"
)

// optimisticThreshold is the progress at or past which a failed assembly is
// served as completed anyway instead of forcing a full re-run. Inherited
// behavior; see DESIGN.md for the trade-off.
const optimisticThreshold = 80

// JobStore is the slice of the code repository the job engine needs: the
// compare-and-swap claim plus progress/result writes.
type JobStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Code, error)
	ClaimCompression(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateCompressProgress(ctx context.Context, id uuid.UUID, progress int) error
	SetCompressResult(ctx context.Context, id uuid.UUID, status models.CompressStatus, progress int) error
}

// FileLister enumerates the files associated with a code.
type FileLister interface {
	ListByCode(ctx context.Context, codeID uuid.UUID) ([]*models.StoredFile, error)
}

// Result is what a poller sees: the job state plus either progress or, once
// completed, the archive's retrieval URL.
type Result struct {
	Status   models.CompressStatus `json:"status"`
	Progress int                   `json:"progress"`
	URL      string                `json:"url,omitempty"`
}

// Service owns the per-code archive assembly job.
type Service interface {
	// Request returns the job's current state, claiming and starting the
	// assembly when the job is IDLE or FAILED. The assembly runs detached;
	// the caller polls by calling Request again.
	Request(ctx context.Context, c *models.Code) (*Result, error)
}

type service struct {
	store      JobStore
	files      FileLister
	objects    storage.Provider
	presignTTL time.Duration
}

func NewService(store JobStore, files FileLister, objects storage.Provider, presignTTL time.Duration) Service {
	return &service{
		store:      store,
		files:      files,
		objects:    objects,
		presignTTL: presignTTL,
	}
}

// ArchiveKey is the fixed storage key a code's archive lives under.
func ArchiveKey(codeID uuid.UUID) string {
	return fmt.Sprintf("compress/%s/archive.zip", codeID)
}

func (s *service) Request(ctx context.Context, c *models.Code) (*Result, error) {
	switch c.CompressStatus {
	case models.CompressCompleted:
		url, err := s.objects.IssueGetURL(ctx, ArchiveKey(c.ID), "archive.zip", s.presignTTL)
		if err != nil {
			return nil, err
		}
		return &Result{Status: models.CompressCompleted, Progress: 100, URL: url}, nil

	case models.CompressProcessing:
		return &Result{Status: models.CompressProcessing, Progress: c.CompressProgress}, nil
	}

	// IDLE or FAILED: try to claim the job. Losing the compare-and-swap
	// means another request got there first; report its state instead of
	// starting a duplicate assembly.
	claimed, err := s.store.ClaimCompression(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		current, err := s.store.GetByID(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		return s.Request(ctx, current)
	}

	// Fire and forget: the HTTP caller never waits on the assembly.
	go s.runJob(context.Background(), c.ID)

	return &Result{Status: models.CompressProcessing, Progress: 0}, nil
}

// runJob assembles every non-directory file of the code into one streamed
// zip archive, reporting progress per file, then uploads the stream and
// records the terminal state.
func (s *service) runJob(ctx context.Context, codeID uuid.UUID) {
	var lastProgress atomic.Int64

	err := s.assemble(ctx, codeID, &lastProgress)
	if err == nil {
		if err := s.store.SetCompressResult(ctx, codeID, models.CompressCompleted, 100); err != nil {
			log.Error().Err(err).Str("code_id", codeID.String()).Msg("recording compression success")
		}
		log.Info().Str("code_id", codeID.String()).Msg("archive assembled")
		return
	}

	progress := int(lastProgress.Load())
	if progress >= optimisticThreshold {
		// Close enough to done that a full re-run costs more than the risk
		// of a truncated archive. Inherited trade-off.
		log.Warn().Err(err).
			Str("code_id", codeID.String()).
			Int("progress", progress).
			Msg("assembly failed past optimistic threshold, serving as completed")
		if err := s.store.SetCompressResult(ctx, codeID, models.CompressCompleted, 100); err != nil {
			log.Error().Err(err).Str("code_id", codeID.String()).Msg("recording optimistic completion")
		}
		return
	}

	log.Error().Err(err).Str("code_id", codeID.String()).Msg("archive assembly failed")
	if err := s.store.SetCompressResult(ctx, codeID, models.CompressFailed, 0); err != nil {
		log.Error().Err(err).Str("code_id", codeID.String()).Msg("recording compression failure")
	}
}

func (s *service) assemble(ctx context.Context, codeID uuid.UUID, lastProgress *atomic.Int64) error {
	all, err := s.files.ListByCode(ctx, codeID)
	if err != nil {
		return err
	}

	files := make([]*models.StoredFile, 0, len(all))
	for _, f := range all {
		if !f.IsDirectory {
			files = append(files, f)
		}
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(s.writeArchive(ctx, pw, codeID, files, lastProgress))
	}()

	if err := s.objects.PutObjectStream(ctx, ArchiveKey(codeID), pr, -1, "application/zip"); err != nil {
		// Make sure the writer goroutine is unblocked before returning.
		_ = pr.CloseWithError(err)
		return err
	}
	return nil
}

func (s *service) writeArchive(ctx context.Context, w io.Writer, codeID uuid.UUID,
	files []*models.StoredFile, lastProgress *atomic.Int64) error {

	zw := zip.NewWriter(w)

	for i, file := range files {
		if err := s.appendEntry(ctx, zw, file); err != nil {
			_ = zw.Close()
			return err
		}

		progress := int(math.Round(float64(i+1) / float64(len(files)) * 100))
		lastProgress.Store(int64(progress))
		if err := s.store.UpdateCompressProgress(ctx, codeID, progress); err != nil {
			log.Error().Err(err).Str("code_id", codeID.String()).Msg("updating compress progress")
		}
	}

	return zw.Close()
}

func (s *service) appendEntry(ctx context.Context, zw *zip.Writer, file *models.StoredFile) error {
	stream, err := s.objects.GetObjectStream(ctx, file.StorageKey())
	if err != nil {
		return fmt.Errorf("fetching %s: %w", file.RelativePath, err)
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			log.Error().Err(cerr).Str("key", file.StorageKey()).Msg("closing object stream")
		}
	}()

	// The relative path becomes the archive entry path; extraction rebuilds
	// the folder structure from it.
	entry, err := zw.CreateHeader(&zip.FileHeader{
		Name:     file.RelativePath,
		Method:   zip.Deflate,
		Modified: file.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("creating archive entry %s: %w", file.RelativePath, err)
	}

	if _, err := io.Copy(entry, stream); err != nil {
		return fmt.Errorf("writing archive entry %s: %w", file.RelativePath, err)
	}
	return nil
}
