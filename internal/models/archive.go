package models

import (
	"path/filepath"
	"time"
)

// ArchiveJob describes one invocation of the compression engine.
type ArchiveJob struct {
	TargetID   string
	TargetName string
	InputPaths []string
	OutputDir  string
	Filename   string
	Password   string
	DictSize   string
	MxLevel    int
	FullPath   bool
	Split      bool // allow volume splitting
	SplitForce bool // split regardless of input size
	TarBefore  bool
}

// OutputPath returns the archive path inside the output directory.
func (j ArchiveJob) OutputPath() string {
	return filepath.Join(j.OutputDir, j.Filename)
}

// ArchiveResult holds the byte counts reported by the engine.
type ArchiveResult struct {
	OutputPath  string
	BeforeBytes int64
	AfterBytes  int64
	Split       bool
	Duration    time.Duration
}

// ProgressStage names the engine pass a progress update belongs to.
type ProgressStage string

// Progress stages.
const (
	StageCompress ProgressStage = "compress"
	StageTar      ProgressStage = "tar"
)

// Progress is a single progress update from the engine.
type Progress struct {
	Target  string
	Stage   ProgressStage
	Percent int
}

// ProgressCallback receives progress updates while the engine runs.
type ProgressCallback func(p Progress)
