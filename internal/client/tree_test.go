package client

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFolderSizeIsSumOfDescendants(t *testing.T) {
	tree := NewTree()
	docs := tree.AddFolder(uuid.Nil, "docs")
	deep := tree.AddFolder(docs, "deep")
	tree.AddFile(docs, "notes.txt", 512, nil)
	readme := tree.AddFile(deep, "readme.md", 1024, nil)
	tree.AddFile(uuid.Nil, "report.pdf", 2048, nil)

	folder, ok := tree.Get(docs)
	require.True(t, ok)
	assert.Equal(t, int64(1536), folder.SizeBytes)

	inner, _ := tree.Get(deep)
	assert.Equal(t, int64(1024), inner.SizeBytes)

	// Removing a file shrinks every ancestor.
	tree.Remove(readme)
	folder, _ = tree.Get(docs)
	assert.Equal(t, int64(512), folder.SizeBytes)
	inner, _ = tree.Get(deep)
	assert.Zero(t, inner.SizeBytes)
}

func TestRelativePathsFollowNesting(t *testing.T) {
	tree := NewTree()
	docs := tree.AddFolder(uuid.Nil, "docs")
	deep := tree.AddFolder(docs, "deep")
	file := tree.AddFile(deep, "readme.md", 10, nil)

	task, _ := tree.Get(file)
	assert.Equal(t, "docs/deep/readme.md", task.RelativePath)
}

func TestFlattenIsPreOrder(t *testing.T) {
	tree := NewTree()
	report := tree.AddFile(uuid.Nil, "report.pdf", 1, nil)
	docs := tree.AddFolder(uuid.Nil, "docs")
	notes := tree.AddFile(docs, "notes.txt", 1, nil)

	assert.Equal(t, []uuid.UUID{report, docs, notes}, tree.Flatten())
}

func TestFolderProgressIsSizeWeighted(t *testing.T) {
	tree := NewTree()
	docs := tree.AddFolder(uuid.Nil, "docs")
	big := tree.AddFile(docs, "big.bin", 900, nil)
	small := tree.AddFile(docs, "small.txt", 100, nil)

	tree.Update(big, func(task *Task) {
		task.Status = TaskCompleted
		task.Progress = 100
	})
	tree.Update(small, func(task *Task) {
		task.Status = TaskUploading
		task.Progress = 0
	})

	folder, _ := tree.Get(docs)
	assert.Equal(t, 90, folder.Progress)
	assert.Equal(t, TaskUploading, folder.Status)
}

func TestFolderStatusAggregation(t *testing.T) {
	tree := NewTree()
	docs := tree.AddFolder(uuid.Nil, "docs")
	a := tree.AddFile(docs, "a.txt", 1, nil)
	b := tree.AddFile(docs, "b.txt", 1, nil)

	folder, _ := tree.Get(docs)
	assert.Equal(t, TaskPending, folder.Status)

	tree.Update(a, func(task *Task) { task.Status = TaskCompleted; task.Progress = 100 })
	folder, _ = tree.Get(docs)
	assert.Equal(t, TaskPending, folder.Status, "one pending child keeps the folder pending")

	tree.Update(b, func(task *Task) { task.Status = TaskCompleted; task.Progress = 100 })
	folder, _ = tree.Get(docs)
	assert.Equal(t, TaskCompleted, folder.Status)
	assert.Equal(t, 100, folder.Progress)

	tree.Update(b, func(task *Task) { task.Status = TaskFailed })
	folder, _ = tree.Get(docs)
	assert.Equal(t, TaskFailed, folder.Status)
}

func TestSnapshotIsDetached(t *testing.T) {
	tree := NewTree()
	id := tree.AddFile(uuid.Nil, "a.txt", 10, nil)

	snap := tree.Snapshot()
	require.Len(t, snap, 1)
	snap[0].Progress = 55

	task, _ := tree.Get(id)
	assert.Zero(t, task.Progress, "mutating a snapshot must not touch the tree")
}
