package types

import "errors"

// Error taxonomy for the build pipeline. Job-fatal errors stop the build,
// file-level errors are recorded on the entry and the build continues,
// ErrProviderUnavailable pauses the job for a later resume.
var (
	// ErrEnumeration indicates the root directory is unreadable or vanished
	// mid-walk. Job-fatal.
	ErrEnumeration = errors.New("enumeration failed")

	// ErrExtraction indicates a per-file parsing failure. File-level: the
	// entry is marked error and the build continues.
	ErrExtraction = errors.New("extraction failed")

	// ErrProviderUnavailable indicates the AI provider endpoint cannot be
	// reached. The job pauses rather than aborts so the user can start the
	// provider and resume.
	ErrProviderUnavailable = errors.New("ai provider unavailable")

	// ErrRateLimited indicates the provider returned HTTP 429. Retried with
	// backoff; converts to a file-level error once the retry ceiling is hit.
	ErrRateLimited = errors.New("ai provider rate limited")

	// ErrAuthFailed indicates the provider rejected the credentials
	// (HTTP 401/403). Job-fatal, never retried.
	ErrAuthFailed = errors.New("ai provider authentication failed")

	// ErrStoreWrite indicates the catalog store could not persist an entry or
	// checkpoint. Job-fatal: durability can no longer be guaranteed.
	ErrStoreWrite = errors.New("catalog store write failed")

	// ErrAlreadyRunning is returned when a build is requested while one is
	// active. The request is rejected, not queued.
	ErrAlreadyRunning = errors.New("a build is already running")

	// ErrInvalidRoot is returned when the requested root directory does not
	// exist or is not a directory.
	ErrInvalidRoot = errors.New("invalid root directory")

	// ErrNotFound is returned by the store when a requested record does not
	// exist.
	ErrNotFound = errors.New("not found")
)

// JobFatal reports whether an error must stop the whole build rather than a
// single file.
func JobFatal(err error) bool {
	return errors.Is(err, ErrEnumeration) ||
		errors.Is(err, ErrAuthFailed) ||
		errors.Is(err, ErrStoreWrite)
}
