package types

import "time"

// JobState describes the lifecycle of a build job.
type JobState string

const (
	JobIdle     JobState = "idle"
	JobRunning  JobState = "running"
	JobPaused   JobState = "paused"
	JobComplete JobState = "complete"
	JobError    JobState = "error"
)

// BuildJob is the singleton persisted state of the current or most recent
// catalog build. The checkpoint cursor (CurrentPath) together with the
// deterministic enumeration order allows a restarted process to resume
// rather than rescan from scratch.
type BuildJob struct {
	ID             string // UUID assigned when the build is requested
	State          JobState
	RootPath       string
	TotalFiles     int
	ProcessedCount int
	SkippedCount   int
	ErrorCount     int
	CurrentPath    string // Last attempted path, advisory resume cursor
	ErrorDetail    string // Set iff State == JobError
	StartedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    time.Time
}

// Terminal reports whether the job reached a terminal state.
func (j *BuildJob) Terminal() bool {
	return j.State == JobComplete || j.State == JobError
}

// Resumable reports whether a persisted job should be picked up after a
// process restart.
func (j *BuildJob) Resumable() bool {
	return j.State == JobRunning || j.State == JobPaused
}

// Progress is the externally visible, always-available snapshot of a build.
type Progress struct {
	State          JobState `json:"state"`
	ProcessedCount int      `json:"processedCount"`
	SkippedCount   int      `json:"skippedCount"`
	ErrorCount     int      `json:"errorCount"`
	TotalFiles     int      `json:"totalFiles"`
	CurrentPath    string   `json:"currentPath"`
	Percent        int      `json:"percent"`
	IsComplete     bool     `json:"isComplete"`
	ErrorDetail    string   `json:"errorDetail,omitempty"`
}

// ProgressFrom projects a job into its external snapshot.
func ProgressFrom(j *BuildJob) Progress {
	p := Progress{
		State:          j.State,
		ProcessedCount: j.ProcessedCount,
		SkippedCount:   j.SkippedCount,
		ErrorCount:     j.ErrorCount,
		TotalFiles:     j.TotalFiles,
		CurrentPath:    j.CurrentPath,
		IsComplete:     j.State == JobComplete,
		ErrorDetail:    j.ErrorDetail,
	}
	attempted := j.ProcessedCount + j.SkippedCount + j.ErrorCount
	if j.TotalFiles > 0 {
		p.Percent = attempted * 100 / j.TotalFiles
		if p.Percent > 100 {
			p.Percent = 100
		}
	}
	return p
}
