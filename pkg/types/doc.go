// Package types defines the shared domain types for filedex: catalog
// entries, build jobs, search results, and the error taxonomy that decides
// whether a failure is file-level, job-pausing, or job-fatal.
package types
