package client

import (
	"io"
	"path"
	"sync"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle of one upload task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskPreparing TaskStatus = "preparing"
	TaskUploading TaskStatus = "uploading"
	TaskVerifying TaskStatus = "verifying"
	TaskRetrying  TaskStatus = "retrying"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Task is one node of the upload tree. Folder size, progress and status are
// derived from descendants on every mutation and never written directly.
type Task struct {
	ID           uuid.UUID
	ParentID     uuid.UUID
	Name         string
	RelativePath string
	IsDirectory  bool
	SizeBytes    int64

	Status   TaskStatus
	Progress int

	// Set when Status is TaskFailed.
	FailedStage Stage
	Attempts    int
	Message     string

	// Open yields the file's bytes for the uploading stage. Nil for folders.
	Open func() (io.ReadCloser, error) `json:"-"`
}

// Tree is an arena of tasks addressed by id, with an explicit parent index
// and ordered children. All mutations funnel through it so derived fields
// stay consistent, and Snapshot hands out deep copies so an observer never
// sees a node mid-update.
type Tree struct {
	mu       sync.Mutex
	nodes    map[uuid.UUID]*Task
	children map[uuid.UUID][]uuid.UUID
	roots    []uuid.UUID
}

func NewTree() *Tree {
	return &Tree{
		nodes:    make(map[uuid.UUID]*Task),
		children: make(map[uuid.UUID][]uuid.UUID),
	}
}

// AddFolder inserts a folder under parentID (uuid.Nil for the root level).
func (t *Tree) AddFolder(parentID uuid.UUID, name string) uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.add(&Task{
		ParentID:    parentID,
		Name:        name,
		IsDirectory: true,
		Status:      TaskPending,
	})
}

// AddFile inserts a file under parentID (uuid.Nil for the root level).
func (t *Tree) AddFile(parentID uuid.UUID, name string, size int64, open func() (io.ReadCloser, error)) uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.add(&Task{
		ParentID:  parentID,
		Name:      name,
		SizeBytes: size,
		Status:    TaskPending,
		Open:      open,
	})
}

func (t *Tree) add(task *Task) uuid.UUID {
	task.ID = uuid.New()
	task.RelativePath = task.Name
	if task.ParentID != uuid.Nil {
		if parent, ok := t.nodes[task.ParentID]; ok {
			task.RelativePath = path.Join(parent.RelativePath, task.Name)
		}
	}

	t.nodes[task.ID] = task
	if task.ParentID == uuid.Nil {
		t.roots = append(t.roots, task.ID)
	} else {
		t.children[task.ParentID] = append(t.children[task.ParentID], task.ID)
	}
	t.recompute()
	return task.ID
}

// Remove deletes a task and its whole subtree.
func (t *Tree) Remove(id uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, ok := t.nodes[id]
	if !ok {
		return
	}

	var drop func(id uuid.UUID)
	drop = func(id uuid.UUID) {
		for _, child := range t.children[id] {
			drop(child)
		}
		delete(t.children, id)
		delete(t.nodes, id)
	}
	drop(id)

	if task.ParentID == uuid.Nil {
		t.roots = removeID(t.roots, id)
	} else {
		t.children[task.ParentID] = removeID(t.children[task.ParentID], id)
	}
	t.recompute()
}

// Update applies fn to the task and recomputes derived state up the tree.
func (t *Tree) Update(id uuid.UUID, fn func(task *Task)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.nodes[id]
	if !ok {
		return
	}
	fn(task)
	t.recompute()
}

// Get returns a copy of one task.
func (t *Tree) Get(id uuid.UUID) (Task, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	task, ok := t.nodes[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// Flatten returns every task id in pre-order, the scheduling order of the
// queue: a folder precedes its contents.
func (t *Tree) Flatten() []uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []uuid.UUID
	var walk func(ids []uuid.UUID)
	walk = func(ids []uuid.UUID) {
		for _, id := range ids {
			out = append(out, id)
			walk(t.children[id])
		}
	}
	walk(t.roots)
	return out
}

// Snapshot returns deep copies of all tasks in pre-order.
func (t *Tree) Snapshot() []Task {
	ids := t.Flatten()
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Task, 0, len(ids))
	for _, id := range ids {
		out = append(out, *t.nodes[id])
	}
	return out
}

// recompute rebuilds every folder's derived size, progress and status in one
// bottom-up pass. Caller holds the lock.
func (t *Tree) recompute() {
	var visit func(id uuid.UUID) (size int64, weighted int64, status TaskStatus)
	visit = func(id uuid.UUID) (int64, int64, TaskStatus) {
		task := t.nodes[id]
		kids := t.children[id]

		if !task.IsDirectory {
			return task.SizeBytes, task.SizeBytes * int64(task.Progress), task.Status
		}

		var size, weighted int64
		status := task.Status
		if status != TaskCompleted && status != TaskFailed {
			status = TaskPending
		}
		for _, kid := range kids {
			ks, kw, kst := visit(kid)
			size += ks
			weighted += kw
			status = combineStatus(status, kst)
		}

		task.SizeBytes = size
		if size > 0 {
			task.Progress = int(weighted / size)
		} else if status == TaskCompleted {
			task.Progress = 100
		} else {
			task.Progress = 0
		}
		if len(kids) > 0 || task.Status == TaskCompleted || task.Status == TaskFailed {
			task.Status = status
		}
		return size, weighted, task.Status
	}

	for _, id := range t.roots {
		visit(id)
	}
}

// combineStatus folds a child's status into a folder's. A failure anywhere
// dominates; otherwise any active child keeps the folder active, and a
// folder is completed only when every child is.
func combineStatus(folder, child TaskStatus) TaskStatus {
	if folder == TaskFailed || child == TaskFailed {
		return TaskFailed
	}
	active := func(s TaskStatus) bool {
		switch s {
		case TaskPreparing, TaskUploading, TaskVerifying, TaskRetrying:
			return true
		}
		return false
	}
	if active(folder) || active(child) {
		return TaskUploading
	}
	if folder == TaskPending || child == TaskPending {
		return TaskPending
	}
	return TaskCompleted
}

func removeID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
