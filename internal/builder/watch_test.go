package builder

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filedex/filedex/pkg/types"
)

func TestWatcher_TriggersAfterChangesSettle(t *testing.T) {
	root := t.TempDir()
	fired := make(chan struct{}, 1)

	w, err := NewWatcher(root, 50*time.Millisecond, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watch registration a moment before producing events.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "new.txt"), []byte("hello"), 0o644))

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never fired after a file change")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWatchAndRebuild_TriggersIncrementalBuild(t *testing.T) {
	stub := &stubDescriber{}
	b, _ := newTestBuilder(t, stub)
	root := writeTree(t, map[string]string{"a.txt": "alpha"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.WatchAndRebuild(ctx, root, 50*time.Millisecond) }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("beta"), 0o644))

	// The settled change starts a build that catalogs both files.
	deadline := time.After(5 * time.Second)
	for {
		p, err := b.Progress(ctx)
		require.NoError(t, err)
		if p.State == types.JobComplete && p.ProcessedCount == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("watch-triggered build never completed, state=%s processed=%d", p.State, p.ProcessedCount)
		case <-time.After(20 * time.Millisecond):
		}
	}
	assert.Len(t, stub.calls(), 2)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWatcher_IgnoresHiddenFiles(t *testing.T) {
	root := t.TempDir()
	fired := make(chan struct{}, 1)

	w, err := NewWatcher(root, 50*time.Millisecond, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden"), []byte("x"), 0o644))

	select {
	case <-fired:
		t.Fatal("hidden file changes must not trigger a rebuild")
	case <-time.After(300 * time.Millisecond):
	}
}
