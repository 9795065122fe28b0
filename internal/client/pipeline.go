package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"codedrop-go/internal/storage"
	"codedrop-go/internal/transfer"
)

// TransferAPI is the slice of the server surface the pipeline drives. The
// HTTP Client satisfies it; tests substitute a fake.
type TransferAPI interface {
	GenerateUploadURL(ctx context.Context, req *transfer.UploadURLRequest) (*transfer.UploadURLResult, error)
	UploadObject(ctx context.Context, dest *storage.PutDestination, r io.Reader, progress func(sent int64)) error
	CreateFileRecord(ctx context.Context, token uuid.UUID) error
}

// pipeline moves a single task through preparing, uploading and verifying,
// each stage under its own retry budget.
type pipeline struct {
	api   TransferAPI
	tree  *Tree
	retry *retrier
}

func newPipeline(api TransferAPI, tree *Tree) *pipeline {
	p := &pipeline{api: api, tree: tree}
	p.retry = newRetrier(nil)
	return p
}

// runStage drives one stage under its retry budget. The task carries the
// stage's status while an attempt runs and flips to retrying for the whole
// backoff window between attempts.
func (p *pipeline) runStage(ctx context.Context, id uuid.UUID, stage Stage, status TaskStatus, fn func(ctx context.Context) error) error {
	r := &retrier{
		sleep: p.retry.sleep,
		onRetry: func(stage Stage, attempt int, err error) {
			p.setStatus(id, TaskRetrying)
			log.Warn().
				Stringer("task", id).
				Str("stage", string(stage)).
				Int("attempt", attempt).
				Err(err).
				Msg("upload stage failed, backing off")
		},
	}
	return r.do(ctx, stage, func(ctx context.Context) error {
		p.setStatus(id, status)
		return fn(ctx)
	})
}

// run transfers one task to completion. A returned error is permanent: some
// stage exhausted its budget or the session died.
func (p *pipeline) run(ctx context.Context, id uuid.UUID) error {
	task, ok := p.tree.Get(id)
	if !ok {
		return fmt.Errorf("unknown task %s", id)
	}

	var issued *transfer.UploadURLResult
	err := p.runStage(ctx, id, StagePreparing, TaskPreparing, func(ctx context.Context) error {
		res, err := p.api.GenerateUploadURL(ctx, &transfer.UploadURLRequest{
			Name:         task.Name,
			RelativePath: task.RelativePath,
			SizeBytes:    task.SizeBytes,
			IsDirectory:  task.IsDirectory,
		})
		if err != nil {
			return err
		}
		issued = res
		return nil
	})
	if err != nil {
		return p.fail(id, StagePreparing, err)
	}

	// Folders only register their marker record; there are no bytes to move.
	if task.IsDirectory {
		p.complete(id)
		return nil
	}
	if issued.UploadToken == nil || issued.Destination == nil {
		return p.fail(id, StagePreparing, errors.New("server issued no upload destination"))
	}

	err = p.runStage(ctx, id, StageUploading, TaskUploading, func(ctx context.Context) error {
		src, err := task.Open()
		if err != nil {
			return err
		}
		defer src.Close()

		return p.api.UploadObject(ctx, issued.Destination, src, func(sent int64) {
			p.tree.Update(id, func(t *Task) {
				if t.SizeBytes > 0 {
					t.Progress = int(min64(sent, t.SizeBytes) * 100 / t.SizeBytes)
				}
			})
		})
	})
	if err != nil {
		return p.fail(id, StageUploading, err)
	}

	token := *issued.UploadToken
	err = p.runStage(ctx, id, StageVerifying, TaskVerifying, func(ctx context.Context) error {
		return p.api.CreateFileRecord(ctx, token)
	})
	if err != nil {
		return p.fail(id, StageVerifying, err)
	}

	p.complete(id)
	return nil
}

func (p *pipeline) setStatus(id uuid.UUID, status TaskStatus) {
	p.tree.Update(id, func(t *Task) { t.Status = status })
}

func (p *pipeline) complete(id uuid.UUID) {
	p.tree.Update(id, func(t *Task) {
		t.Status = TaskCompleted
		t.Progress = 100
	})
}

func (p *pipeline) fail(id uuid.UUID, stage Stage, err error) error {
	attempts := Budget(stage)
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		attempts = stageErr.Attempts
	}
	p.tree.Update(id, func(t *Task) {
		t.Status = TaskFailed
		t.FailedStage = stage
		t.Attempts = attempts
		t.Message = err.Error()
	})
	log.Error().
		Stringer("task", id).
		Str("stage", string(stage)).
		Err(err).
		Msg("upload task failed permanently")
	return err
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
