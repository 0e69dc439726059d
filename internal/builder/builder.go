// Package builder orchestrates the catalog build: enumerate candidate
// files, detect changes, extract content, obtain AI descriptions, and
// persist entries with a durable checkpoint after every file.
package builder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/filedex/filedex/internal/catalog"
	"github.com/filedex/filedex/internal/describer"
	"github.com/filedex/filedex/internal/extractor"
	"github.com/filedex/filedex/internal/scanner"
	"github.com/filedex/filedex/pkg/types"
)

// Options tunes a Builder.
type Options struct {
	MaxFileSize int64  // candidate size ceiling in bytes, 0 = unlimited
	ExcludeDir  string // the application's own data directory
	Logger      *log.Logger
}

// Builder drives the catalog build pipeline. One build runs at a time;
// concurrent start requests are rejected with types.ErrAlreadyRunning.
type Builder struct {
	store     catalog.Store
	registry  *extractor.Registry
	describer describer.Describer
	opts      Options

	lock jobLock

	mu     sync.Mutex
	job    *types.BuildJob
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Builder.
func New(store catalog.Store, registry *extractor.Registry, d describer.Describer, opts Options) *Builder {
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[builder] ", log.LstdFlags)
	}
	return &Builder{
		store:     store,
		registry:  registry,
		describer: d,
		opts:      opts,
	}
}

// Start begins a new build over rootPath. It returns once the job is
// durably recorded as running; processing continues in the background.
func (b *Builder) Start(ctx context.Context, rootPath string) (*types.BuildJob, error) {
	rootPath = filepath.Clean(rootPath)
	if err := scanner.New(rootPath).ValidateRoot(); err != nil {
		return nil, err
	}

	if !b.lock.TryAcquire() {
		return nil, types.ErrAlreadyRunning
	}

	job := &types.BuildJob{
		ID:        uuid.NewString(),
		State:     types.JobRunning,
		RootPath:  rootPath,
		StartedAt: time.Now(),
	}

	total, err := b.newScanner(rootPath, "").Count(ctx)
	if err != nil {
		b.lock.Release()
		return nil, err
	}
	job.TotalFiles = total

	if err := b.store.SaveJob(ctx, job); err != nil {
		b.lock.Release()
		return nil, err
	}

	b.launch(job, "")
	return b.snapshot(), nil
}

// Resume picks up a persisted running or paused job, continuing after its
// checkpoint cursor. Returns types.ErrNotFound when there is nothing to
// resume.
func (b *Builder) Resume(ctx context.Context) (*types.BuildJob, error) {
	job, err := b.store.LoadJob(ctx)
	if err != nil {
		return nil, err
	}
	if !job.Resumable() {
		return nil, fmt.Errorf("%w: job %s is %s, nothing to resume", types.ErrNotFound, job.ID, job.State)
	}

	if !b.lock.TryAcquire() {
		return nil, types.ErrAlreadyRunning
	}

	if err := scanner.New(job.RootPath).ValidateRoot(); err != nil {
		b.lock.Release()
		return nil, err
	}

	job.State = types.JobRunning
	job.ErrorDetail = ""
	if err := b.store.SaveJob(ctx, job); err != nil {
		b.lock.Release()
		return nil, err
	}

	b.launch(job, job.CurrentPath)
	return b.snapshot(), nil
}

// Pause requests a pause. It takes effect at the next file boundary.
func (b *Builder) Pause() {
	b.mu.Lock()
	cancel := b.cancel
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the active build goroutine exits. Used by tests and
// shutdown.
func (b *Builder) Wait() {
	b.mu.Lock()
	done := b.done
	b.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Progress returns a consistent snapshot of the current or most recent job
// without blocking the pipeline.
func (b *Builder) Progress(ctx context.Context) (types.Progress, error) {
	if j := b.snapshot(); j != nil {
		return types.ProgressFrom(j), nil
	}
	// No in-memory job: fall back to the persisted record.
	job, err := b.store.LoadJob(ctx)
	if errors.Is(err, types.ErrNotFound) {
		return types.Progress{State: types.JobIdle}, nil
	}
	if err != nil {
		return types.Progress{}, err
	}
	return types.ProgressFrom(job), nil
}

func (b *Builder) launch(job *types.BuildJob, resumeAfter string) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	b.mu.Lock()
	b.job = job
	b.cancel = cancel
	b.done = done
	b.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		defer b.lock.Release()
		b.run(ctx, resumeAfter)
	}()
}

// run is the build loop. It owns the job until it returns.
func (b *Builder) run(ctx context.Context, resumeAfter string) {
	job := b.snapshot()
	b.opts.Logger.Printf("build %s: starting over %s (%d files)", job.ID, job.RootPath, job.TotalFiles)

	paths, wait := b.newScanner(job.RootPath, resumeAfter).Stream(ctx)

	for path := range paths {
		// Pause and stop requests take effect at file boundaries only.
		if ctx.Err() != nil {
			b.finish(types.JobPaused, "")
			return
		}

		out, err := b.processFile(ctx, path)

		switch {
		case err == nil:
			if cerr := b.advance(path, out); cerr != nil {
				b.opts.Logger.Printf("build %s: fatal: %v", job.ID, cerr)
				b.finish(types.JobError, cerr.Error())
				return
			}
		case errors.Is(err, types.ErrProviderUnavailable):
			b.opts.Logger.Printf("build %s: provider unavailable at %s, pausing", job.ID, path)
			b.finish(types.JobPaused, "")
			return
		case errors.Is(err, context.Canceled):
			b.finish(types.JobPaused, "")
			return
		case types.JobFatal(err):
			b.opts.Logger.Printf("build %s: fatal: %v", job.ID, err)
			b.finish(types.JobError, err.Error())
			return
		default:
			// File-level failure: record it on the entry and keep going.
			b.recordError(ctx, path, err)
			if cerr := b.advance(path, outcomeError); cerr != nil {
				b.opts.Logger.Printf("build %s: fatal: %v", job.ID, cerr)
				b.finish(types.JobError, cerr.Error())
				return
			}
		}
	}

	if err := wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			b.finish(types.JobPaused, "")
			return
		}
		b.opts.Logger.Printf("build %s: enumeration failed: %v", job.ID, err)
		b.finish(types.JobError, err.Error())
		return
	}
	if ctx.Err() != nil {
		b.finish(types.JobPaused, "")
		return
	}

	b.finish(types.JobComplete, "")
	final := b.snapshot()
	b.opts.Logger.Printf("build %s: complete (%d processed, %d skipped, %d errors)",
		final.ID, final.ProcessedCount, final.SkippedCount, final.ErrorCount)
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
	outcomeError
)

// processFile runs one file through change-detect, extract, describe, and
// store. Job-level failures are returned; file-level extraction failures
// are recorded inline and reported as outcomeError with a nil error.
func (b *Builder) processFile(ctx context.Context, path string) (outcome, error) {
	info, err := os.Stat(path)
	if err != nil {
		// Deleted between enumeration and processing.
		return outcomeSkipped, nil
	}

	fp := fingerprint(path, info)

	existing, err := b.store.GetEntry(ctx, path)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return outcomeError, err
	}
	if existing != nil && !shouldProcess(existing, fp) {
		return outcomeProcessed, nil
	}

	kind, mime := extractor.Classify(path)
	entry := &types.CatalogEntry{
		Path:        path,
		Name:        filepath.Base(path),
		SizeBytes:   info.Size(),
		ModTime:     info.ModTime(),
		Kind:        kind,
		MimeType:    mime,
		Fingerprint: fp,
		Status:      types.StatusPending,
	}

	res, err := b.registry.Extract(path, kind)
	if err != nil {
		entry.Status = types.StatusError
		entry.ErrorDetail = err.Error()
		if serr := b.store.UpsertEntry(ctx, entry); serr != nil {
			return outcomeError, serr
		}
		return outcomeError, nil
	}
	entry.ExtractedText = res.Text
	entry.Metadata = res.Metadata

	if kind == types.KindOther && res.Text == "" {
		// Nothing to describe beyond a filename; keep the entry but do not
		// spend a provider call on it.
		entry.Status = types.StatusSkippedUnsupported
		if err := b.store.UpsertEntry(ctx, entry); err != nil {
			return outcomeError, err
		}
		return outcomeSkipped, nil
	}

	desc, err := b.describer.Describe(ctx, describer.Request{
		Path:     path,
		Kind:     kind,
		Content:  res.Text,
		Metadata: res.Metadata,
	})
	if err != nil {
		if errors.Is(err, types.ErrProviderUnavailable) || types.JobFatal(err) || errors.Is(err, context.Canceled) {
			return outcomeError, err
		}
		// Rate limit exhausted or other provider error: file-level.
		entry.Status = types.StatusError
		entry.ErrorDetail = err.Error()
		if serr := b.store.UpsertEntry(ctx, entry); serr != nil {
			return outcomeError, serr
		}
		return outcomeError, nil
	}

	entry.Description = desc.Summary
	entry.Embedding = desc.Embedding
	entry.Status = types.StatusProcessed
	entry.ErrorDetail = ""
	entry.ProcessedAt = time.Now()

	if err := b.store.UpsertEntry(ctx, entry); err != nil {
		return outcomeError, err
	}
	return outcomeProcessed, nil
}

// shouldProcess is the change-detection rule: skip only when the stored
// fingerprint matches and the last pass succeeded. Entries in error are
// retried every pass so transient provider failures self-heal.
func shouldProcess(existing *types.CatalogEntry, fp string) bool {
	if existing.Fingerprint != fp {
		return true
	}
	return existing.Status != types.StatusProcessed &&
		existing.Status != types.StatusSkippedUnsupported
}

// recordError marks the entry as failed when a file-level error escaped
// processFile before an entry write happened.
func (b *Builder) recordError(ctx context.Context, path string, err error) {
	entry := &types.CatalogEntry{
		Path:        path,
		Name:        filepath.Base(path),
		Kind:        types.KindOther,
		Fingerprint: "",
		Status:      types.StatusError,
		ErrorDetail: err.Error(),
	}
	if serr := b.store.UpsertEntry(ctx, entry); serr != nil {
		b.opts.Logger.Printf("failed to record error for %s: %v", path, serr)
	}
}

// advance moves the checkpoint cursor past path and persists the job. The
// entry write always precedes this, so the checkpoint never outpaces
// durable data. A checkpoint write failure is job-fatal: resumability can
// no longer be guaranteed.
func (b *Builder) advance(path string, o outcome) error {
	b.mu.Lock()
	switch o {
	case outcomeProcessed:
		b.job.ProcessedCount++
	case outcomeSkipped:
		b.job.SkippedCount++
	case outcomeError:
		b.job.ErrorCount++
	}
	b.job.CurrentPath = path
	job := *b.job
	b.mu.Unlock()

	if err := b.store.SaveJob(context.Background(), &job); err != nil {
		return fmt.Errorf("checkpoint at %s: %w", path, err)
	}
	return nil
}

func (b *Builder) finish(state types.JobState, detail string) {
	b.mu.Lock()
	b.job.State = state
	b.job.ErrorDetail = detail
	if state == types.JobComplete || state == types.JobError {
		b.job.CompletedAt = time.Now()
	}
	job := *b.job
	b.mu.Unlock()

	if err := b.store.SaveJob(context.Background(), &job); err != nil {
		b.opts.Logger.Printf("failed to persist final job state: %v", err)
	}
}

// snapshot returns a copy of the in-memory job, or nil.
func (b *Builder) snapshot() *types.BuildJob {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.job == nil {
		return nil
	}
	j := *b.job
	return &j
}

func (b *Builder) newScanner(root, resumeAfter string) *scanner.Scanner {
	opts := []scanner.Option{}
	if b.opts.MaxFileSize > 0 {
		opts = append(opts, scanner.WithMaxFileSize(b.opts.MaxFileSize))
	}
	if b.opts.ExcludeDir != "" {
		opts = append(opts, scanner.WithExcludeDir(b.opts.ExcludeDir))
	}
	if resumeAfter != "" {
		opts = append(opts, scanner.WithResumeAfter(resumeAfter))
	}
	return scanner.New(root, opts...)
}
