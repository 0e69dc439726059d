package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filedex/filedex/internal/catalog"
	"github.com/filedex/filedex/internal/describer"
	"github.com/filedex/filedex/internal/extractor"
	"github.com/filedex/filedex/pkg/types"
)

// stubDescriber records calls and answers from a canned function.
type stubDescriber struct {
	mu    sync.Mutex
	paths []string
	fn    func(req describer.Request) (*describer.Description, error)
}

func (s *stubDescriber) Describe(_ context.Context, req describer.Request) (*describer.Description, error) {
	s.mu.Lock()
	s.paths = append(s.paths, req.Path)
	s.mu.Unlock()
	if s.fn != nil {
		return s.fn(req)
	}
	return &describer.Description{
		Summary:   "Description of " + filepath.Base(req.Path),
		Embedding: []float32{1, 0, 0},
	}, nil
}

func (s *stubDescriber) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}
func (s *stubDescriber) SupportsEmbeddings() bool { return true }
func (s *stubDescriber) Provider() string         { return "stub" }
func (s *stubDescriber) Close() error             { return nil }

func (s *stubDescriber) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

func newTestBuilder(t *testing.T, d describer.Describer) (*Builder, catalog.Store) {
	t.Helper()
	store, err := catalog.NewSQLiteStore(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store, extractor.NewRegistry(), d, Options{}), store
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func runBuild(t *testing.T, b *Builder, root string) types.Progress {
	t.Helper()
	_, err := b.Start(context.Background(), root)
	require.NoError(t, err)
	b.Wait()
	p, err := b.Progress(context.Background())
	require.NoError(t, err)
	return p
}

func TestBuild_CompletesAndCatalogsAll(t *testing.T) {
	stub := &stubDescriber{}
	b, store := newTestBuilder(t, stub)
	root := writeTree(t, map[string]string{
		"recipe.txt":   "chocolate cake\n2 eggs",
		"notes/a.md":   "meeting notes",
		"code/main.go": "package main",
	})

	p := runBuild(t, b, root)
	assert.Equal(t, types.JobComplete, p.State)
	assert.Equal(t, 3, p.TotalFiles)
	assert.Equal(t, 3, p.ProcessedCount)
	assert.Equal(t, 100, p.Percent)
	assert.True(t, p.IsComplete)

	entry, err := store.GetEntry(context.Background(), filepath.Join(root, "recipe.txt"))
	require.NoError(t, err)
	assert.Equal(t, types.StatusProcessed, entry.Status)
	assert.Equal(t, "Description of recipe.txt", entry.Description)
	assert.NotEmpty(t, entry.Fingerprint)
	assert.Len(t, entry.Embedding, 3)
}

func TestBuild_Idempotent(t *testing.T) {
	stub := &stubDescriber{}
	b, store := newTestBuilder(t, stub)
	root := writeTree(t, map[string]string{
		"a.txt": "alpha",
		"b.txt": "beta",
	})

	runBuild(t, b, root)
	first := stub.calls()
	require.Len(t, first, 2)

	entryBefore, err := store.GetEntry(context.Background(), filepath.Join(root, "a.txt"))
	require.NoError(t, err)

	p := runBuild(t, b, root)
	assert.Equal(t, types.JobComplete, p.State)
	assert.Equal(t, 2, p.ProcessedCount, "unchanged files still count toward progress")
	assert.Len(t, stub.calls(), 2, "no provider calls on an unchanged corpus")

	entryAfter, err := store.GetEntry(context.Background(), filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, entryBefore.ProcessedAt.Unix(), entryAfter.ProcessedAt.Unix())
	assert.Equal(t, entryBefore.Description, entryAfter.Description)
}

func TestBuild_ChangeDetection(t *testing.T) {
	stub := &stubDescriber{}
	b, _ := newTestBuilder(t, stub)
	root := writeTree(t, map[string]string{
		"a.txt": "alpha",
		"b.txt": "beta",
	})

	runBuild(t, b, root)
	require.Len(t, stub.calls(), 2)

	// One byte changes, only that file is reprocessed.
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("betA"), 0o644))
	runBuild(t, b, root)

	calls := stub.calls()
	require.Len(t, calls, 3)
	assert.Equal(t, filepath.Join(root, "b.txt"), calls[2])
}

func TestBuild_FailureIsolation(t *testing.T) {
	stub := &stubDescriber{
		fn: func(req describer.Request) (*describer.Description, error) {
			if filepath.Base(req.Path) == "bad.txt" {
				return nil, fmt.Errorf("%w: retries exhausted", types.ErrRateLimited)
			}
			return &describer.Description{Summary: "ok"}, nil
		},
	}
	b, store := newTestBuilder(t, stub)
	root := writeTree(t, map[string]string{
		"aaa.txt": "first",
		"bad.txt": "poison",
		"zzz.txt": "last",
	})

	p := runBuild(t, b, root)
	assert.Equal(t, types.JobComplete, p.State)
	assert.Equal(t, 2, p.ProcessedCount)
	assert.Equal(t, 1, p.ErrorCount)
	assert.Equal(t, 100, p.Percent, "errors still advance the build to completion")

	entry, err := store.GetEntry(context.Background(), filepath.Join(root, "bad.txt"))
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, entry.Status)
	assert.Contains(t, entry.ErrorDetail, "retries exhausted")

	// The error entry is retried on the next pass.
	stub.fn = nil
	p = runBuild(t, b, root)
	assert.Equal(t, 3, p.ProcessedCount)
	assert.Equal(t, 0, p.ErrorCount)
	entry, err = store.GetEntry(context.Background(), filepath.Join(root, "bad.txt"))
	require.NoError(t, err)
	assert.Equal(t, types.StatusProcessed, entry.Status)
}

// checkpointFailStore lets a fixed number of job writes through, then fails
// the rest, the way a full disk appears partway into a build.
type checkpointFailStore struct {
	catalog.Store
	mu      sync.Mutex
	saves   int
	allowed int
}

func (c *checkpointFailStore) SaveJob(ctx context.Context, job *types.BuildJob) error {
	c.mu.Lock()
	c.saves++
	failing := c.saves > c.allowed
	c.mu.Unlock()
	if failing {
		return fmt.Errorf("%w: save job: disk I/O error", types.ErrStoreWrite)
	}
	return c.Store.SaveJob(ctx, job)
}

func TestBuild_CheckpointWriteFailureIsFatal(t *testing.T) {
	stub := &stubDescriber{}
	inner, err := catalog.NewSQLiteStore(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = inner.Close() })

	// The initial job record lands, the first checkpoint write does not.
	store := &checkpointFailStore{Store: inner, allowed: 1}
	b := New(store, extractor.NewRegistry(), stub, Options{})
	root := writeTree(t, map[string]string{"a.txt": "alpha", "b.txt": "beta"})

	_, err = b.Start(context.Background(), root)
	require.NoError(t, err)
	b.Wait()

	p, err := b.Progress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.JobError, p.State, "losing the checkpoint ends the job, it does not limp on")
	assert.Contains(t, p.ErrorDetail, "checkpoint")
	assert.Len(t, stub.calls(), 1, "the build stops at the failed checkpoint")
}

func TestBuild_PausesWhenProviderDown(t *testing.T) {
	stub := &stubDescriber{
		fn: func(describer.Request) (*describer.Description, error) {
			return nil, fmt.Errorf("%w: connection refused", types.ErrProviderUnavailable)
		},
	}
	b, _ := newTestBuilder(t, stub)
	root := writeTree(t, map[string]string{"a.txt": "alpha", "b.txt": "beta"})

	p := runBuild(t, b, root)
	assert.Equal(t, types.JobPaused, p.State)
	assert.Equal(t, 0, p.ProcessedCount)
	assert.False(t, p.IsComplete)
	assert.Len(t, stub.calls(), 1, "pause happens within one file cycle")
}

func TestBuild_ResumeFromCheckpoint(t *testing.T) {
	stub := &stubDescriber{}
	b, store := newTestBuilder(t, stub)
	root := writeTree(t, map[string]string{
		"a.txt": "alpha",
		"b.txt": "beta",
		"c.txt": "gamma",
	})

	// Simulate a crash after a.txt: persisted running job with a cursor.
	job := &types.BuildJob{
		ID:             "job-crashed",
		State:          types.JobRunning,
		RootPath:       root,
		TotalFiles:     3,
		ProcessedCount: 1,
		CurrentPath:    filepath.Join(root, "a.txt"),
		StartedAt:      time.Now(),
	}
	require.NoError(t, store.SaveJob(context.Background(), job))

	_, err := b.Resume(context.Background())
	require.NoError(t, err)
	b.Wait()

	p, err := b.Progress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.JobComplete, p.State)
	assert.Equal(t, 3, p.ProcessedCount)

	calls := stub.calls()
	require.Len(t, calls, 2, "resume continues after the cursor, not from scratch")
	assert.Equal(t, filepath.Join(root, "b.txt"), calls[0])
	assert.Equal(t, filepath.Join(root, "c.txt"), calls[1])
}

func TestBuild_ResumeNothingPersisted(t *testing.T) {
	b, _ := newTestBuilder(t, &stubDescriber{})
	_, err := b.Resume(context.Background())
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestBuild_RejectsConcurrentStart(t *testing.T) {
	block := make(chan struct{})
	stub := &stubDescriber{
		fn: func(describer.Request) (*describer.Description, error) {
			<-block
			return &describer.Description{Summary: "ok"}, nil
		},
	}
	b, _ := newTestBuilder(t, stub)
	root := writeTree(t, map[string]string{"a.txt": "alpha"})

	_, err := b.Start(context.Background(), root)
	require.NoError(t, err)

	_, err = b.Start(context.Background(), root)
	assert.ErrorIs(t, err, types.ErrAlreadyRunning)

	close(block)
	b.Wait()

	// Lock is released after completion.
	_, err = b.Start(context.Background(), root)
	require.NoError(t, err)
	b.Wait()
}

func TestBuild_InvalidRoot(t *testing.T) {
	b, _ := newTestBuilder(t, &stubDescriber{})

	_, err := b.Start(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, types.ErrInvalidRoot)
}

func TestBuild_PauseRequest(t *testing.T) {
	started := make(chan struct{})
	block := make(chan struct{})
	var once sync.Once
	stub := &stubDescriber{
		fn: func(describer.Request) (*describer.Description, error) {
			once.Do(func() { close(started) })
			<-block
			return &describer.Description{Summary: "ok"}, nil
		},
	}
	b, _ := newTestBuilder(t, stub)
	root := writeTree(t, map[string]string{"a.txt": "alpha", "b.txt": "beta"})

	_, err := b.Start(context.Background(), root)
	require.NoError(t, err)

	<-started
	b.Pause()
	close(block)
	b.Wait()

	p, err := b.Progress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.JobPaused, p.State)
}

func TestProgress_IdleWhenNothingRan(t *testing.T) {
	b, _ := newTestBuilder(t, &stubDescriber{})
	p, err := b.Progress(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.JobIdle, p.State)
	assert.False(t, p.IsComplete)
}

func TestShouldProcess(t *testing.T) {
	e := &types.CatalogEntry{Fingerprint: "f1", Status: types.StatusProcessed}

	assert.False(t, shouldProcess(e, "f1"))
	assert.True(t, shouldProcess(e, "f2"), "changed fingerprint reprocesses")

	e.Status = types.StatusError
	assert.True(t, shouldProcess(e, "f1"), "error entries retry every pass")

	e.Status = types.StatusSkippedUnsupported
	assert.False(t, shouldProcess(e, "f1"))
}
