package models

import "time"

// RunRequest holds everything the orchestrator needs for one run.
type RunRequest struct {
	Targets    TargetConfig
	OutputPath string // output root; the run writes into a dated folder below it
	Password   string
	Quiet      bool
	Hooks      Hooks
	Progress   ProgressCallback // ignored when Quiet

	// OnOutputDir is called once the per-run folder exists.
	OnOutputDir func(dir string)
}

// TargetStatus is the outcome of a single target.
type TargetStatus string

// Target outcomes.
const (
	TargetSucceeded TargetStatus = "succeeded"
	TargetFailed    TargetStatus = "failed"
	TargetSkipped   TargetStatus = "skipped"
)

// TargetResult records what happened to one enabled target.
type TargetResult struct {
	ID          string
	Name        string
	Filename    string
	Status      TargetStatus
	BeforeBytes int64
	AfterBytes  int64
	Duration    time.Duration
	Error       error
}

// RunSummary is returned by the orchestrator after all targets ran.
type RunSummary struct {
	OutputPath  string
	StartTime   time.Time
	Duration    time.Duration
	Targets     []TargetResult
	Manifest    *RunManifest
	Encrypted   bool
	Existed     bool // output folder was already present
	OutputBytes int64
}

// Failed returns the results of targets that failed.
func (s *RunSummary) Failed() []TargetResult {
	var failed []TargetResult
	for _, r := range s.Targets {
		if r.Status == TargetFailed {
			failed = append(failed, r)
		}
	}
	return failed
}

// TotalBytes sums before and after sizes over successful targets.
func (s *RunSummary) TotalBytes() (before, after int64) {
	for _, r := range s.Targets {
		if r.Status == TargetSucceeded {
			before += r.BeforeBytes
			after += r.AfterBytes
		}
	}
	return before, after
}

