package client

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"codedrop-go/internal/transfer"
)

// MaxConcurrent caps the number of overlapping per-file pipelines.
const MaxConcurrent = 3

// BatchAPI extends TransferAPI with the calls that bracket a whole batch.
type BatchAPI interface {
	TransferAPI
	StartUpload(ctx context.Context) (*transfer.StartUploadResult, error)
	CompleteUpload(ctx context.Context) (*transfer.CompleteUploadResult, error)
}

// BatchResult is the outcome of a whole upload batch.
type BatchResult struct {
	// DownloadCode is set when every task completed and the upload was
	// finalized.
	DownloadCode string

	// Failed lists the ids of permanently failed tasks. Non-empty Failed
	// means DownloadCode is empty and the session was left in its uploading
	// state for the user to decide what to do.
	Failed []uuid.UUID
}

// Queue drains a task tree through bounded concurrent pipelines in FIFO
// pre-order. One permanent failure flags the batch and stops new launches;
// in-flight tasks still run to completion.
type Queue struct {
	api  BatchAPI
	tree *Tree
	pipe *pipeline

	mu      sync.Mutex
	halted  bool
	failed  []uuid.UUID
	started int
}

func NewQueue(api BatchAPI, tree *Tree) *Queue {
	return &Queue{
		api:  api,
		tree: tree,
		pipe: newPipeline(api, tree),
	}
}

// Run starts the upload, drains every task and, when no task failed
// permanently, finalizes the batch.
func (q *Queue) Run(ctx context.Context) (*BatchResult, error) {
	if _, err := q.api.StartUpload(ctx); err != nil {
		return nil, err
	}

	order := q.tree.Flatten()
	if len(order) > 0 {
		q.drain(ctx, order)
	}

	q.mu.Lock()
	failed := q.failed
	halted := q.halted
	q.mu.Unlock()

	if halted {
		log.Warn().Int("failed", len(failed)).Msg("upload batch halted")
		return &BatchResult{Failed: failed}, nil
	}

	done, err := q.api.CompleteUpload(ctx)
	if err != nil {
		return nil, err
	}
	return &BatchResult{DownloadCode: done.DownloadCode}, nil
}

func (q *Queue) drain(ctx context.Context, order []uuid.UUID) {
	var wg sync.WaitGroup

	var launchNext func()
	launchNext = func() {
		q.mu.Lock()
		if q.halted || q.started >= len(order) {
			q.mu.Unlock()
			return
		}
		id := order[q.started]
		q.started++
		q.mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := q.pipe.run(ctx, id); err != nil {
				q.mu.Lock()
				q.halted = true
				q.failed = append(q.failed, id)
				q.mu.Unlock()
			}
			// The settling task pulls the next queued one, keeping the
			// in-flight count at the cap until the queue empties or halts.
			launchNext()
		}()
	}

	for i := 0; i < MaxConcurrent && i < len(order); i++ {
		launchNext()
	}
	wg.Wait()
}
