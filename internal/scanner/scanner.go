// Package scanner enumerates candidate files under a root directory in a
// deterministic lexicographic depth-first order, so a build checkpoint can
// skip exactly the already-visited prefix on resume.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/filedex/filedex/pkg/types"
)

// Directories never descended into, regardless of location.
var skipDirs = map[string]struct{}{
	"node_modules": {},
	"__pycache__":  {},
	".git":         {},
	".svn":         {},
	"venv":         {},
	"env":          {},
	"vendor":       {},
}

// Scanner walks a root directory and yields candidate file paths.
type Scanner struct {
	root        string
	excludeDir  string // the application's own data directory
	maxSize     int64  // size ceiling in bytes, 0 means unlimited
	resumeAfter string // checkpoint cursor; paths at or before it are skipped
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithExcludeDir excludes a directory subtree, typically the data directory
// holding the catalog database itself.
func WithExcludeDir(dir string) Option {
	return func(s *Scanner) { s.excludeDir = filepath.Clean(dir) }
}

// WithMaxFileSize sets the candidate size ceiling in bytes.
func WithMaxFileSize(n int64) Option {
	return func(s *Scanner) { s.maxSize = n }
}

// WithResumeAfter sets the checkpoint cursor. All paths that sort at or
// before the cursor in walk order are skipped.
func WithResumeAfter(path string) Option {
	return func(s *Scanner) { s.resumeAfter = path }
}

// New creates a Scanner for the given root.
func New(root string, opts ...Option) *Scanner {
	s := &Scanner{root: filepath.Clean(root)}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ValidateRoot checks that the root exists and is a readable directory.
func (s *Scanner) ValidateRoot() error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", types.ErrInvalidRoot, s.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", types.ErrInvalidRoot, s.root)
	}
	return nil
}

// Count walks the tree and returns the number of candidate files.
func (s *Scanner) Count(ctx context.Context) (int, error) {
	n := 0
	err := s.walk(ctx, func(string) error {
		n++
		return nil
	})
	return n, err
}

// Stream walks the tree in a goroutine and sends candidate paths on the
// returned channel. The wait function reports the walk error, if any, once
// the channel is drained or the context is canceled.
func (s *Scanner) Stream(ctx context.Context) (<-chan string, func() error) {
	paths := make(chan string, 64)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(paths)
		return s.walk(gctx, func(path string) error {
			select {
			case paths <- path:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})
	return paths, g.Wait
}

// walk drives filepath.WalkDir with the exclusion rules applied. A failure
// at the root is job-fatal; unreadable subdirectories are skipped.
func (s *Scanner) walk(ctx context.Context, emit func(string) error) error {
	if err := s.ValidateRoot(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrEnumeration, err)
	}

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if path == s.root {
				return fmt.Errorf("%w: %v", types.ErrEnumeration, err)
			}
			// Unreadable subtree: skip it, keep walking.
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if path == s.root {
				return nil
			}
			if strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if _, junk := skipDirs[name]; junk {
				return filepath.SkipDir
			}
			if s.excludeDir != "" && path == s.excludeDir {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks are never followed; skipping them here also rules out
		// symlinked cycles.
		if d.Type()&fs.ModeSymlink != 0 || !d.Type().IsRegular() {
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if s.maxSize > 0 {
			info, ierr := d.Info()
			if ierr != nil || info.Size() > s.maxSize {
				return nil
			}
		}
		if s.resumeAfter != "" && walkCompare(path, s.resumeAfter) <= 0 {
			return nil
		}
		return emit(path)
	})
	if err != nil && ctx.Err() != nil {
		return err
	}
	if err != nil {
		// The root disappearing mid-walk surfaces here.
		if os.IsNotExist(err) || os.IsPermission(err) {
			return fmt.Errorf("%w: %v", types.ErrEnumeration, err)
		}
		return err
	}
	return nil
}

// walkCompare orders two paths the way WalkDir visits them: lexicographic on
// path components, not on raw strings ("a/b" is visited before "a.txt" even
// though the string "a.txt" sorts first).
func walkCompare(a, b string) int {
	as := strings.Split(filepath.ToSlash(a), "/")
	bs := strings.Split(filepath.ToSlash(b), "/")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] != bs[i] {
			if as[i] < bs[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	default:
		return 0
	}
}
