package builder

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/filedex/filedex/pkg/types"
)

// defaultDebounce batches bursts of filesystem events (editors write
// temp-then-rename, downloads stream) into one rebuild trigger.
const defaultDebounce = 5 * time.Second

// Watcher observes a root directory and invokes a callback once changes
// settle, so the catalog can be incrementally rebuilt between explicit
// builds. Change detection makes the triggered pass cheap: untouched files
// are skipped by fingerprint.
type Watcher struct {
	root     string
	debounce time.Duration
	onChange func()
	logger   *log.Logger
	fsw      *fsnotify.Watcher
}

// NewWatcher creates a Watcher over root. onChange runs in the watch
// goroutine after events have settled.
func NewWatcher(root string, debounce time.Duration, onChange func(), logger *log.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[watch] ", log.LstdFlags)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:     filepath.Clean(root),
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		fsw:      fsw,
	}, nil
}

// Run watches until the context is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.fsw.Close() }()

	if err := w.addTree(w.root); err != nil {
		return err
	}

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.ignorable(ev.Name) {
				continue
			}
			// New directories need their own watch.
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = w.addTree(ev.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Printf("watch error: %v", err)
		case <-fire:
			timer = nil
			fire = nil
			w.onChange()
		}
	}
}

// WatchAndRebuild watches root and starts an incremental build each time
// changes settle, blocking until the context is canceled. Triggers that land
// while a build is already active are dropped; the next change fires again,
// and fingerprint change detection keeps the triggered pass cheap.
func (b *Builder) WatchAndRebuild(ctx context.Context, root string, debounce time.Duration) error {
	w, err := NewWatcher(root, debounce, func() {
		_, err := b.Start(ctx, root)
		if err != nil && !errors.Is(err, types.ErrAlreadyRunning) {
			b.opts.Logger.Printf("watch: rebuild failed: %v", err)
		}
	}, b.opts.Logger)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

// addTree registers dir and every non-excluded subdirectory.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != dir && (strings.HasPrefix(name, ".") || isSkipDir(name)) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) ignorable(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~")
}

func isSkipDir(name string) bool {
	switch name {
	case "node_modules", "__pycache__", ".git", ".svn", "venv", "env", "vendor":
		return true
	}
	return false
}
