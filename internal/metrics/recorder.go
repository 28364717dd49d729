// Package metrics records build observations. Components take a Recorder and
// default to NoopRecorder, so metrics only exist when a real recorder is
// injected (the dev server does this).
package metrics

import "time"

// FileKind labels what the builder did with a source file.
type FileKind string

const (
	FilePage   FileKind = "page"
	FileCopied FileKind = "copied"
)

// Outcome labels the final status of a build.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Recorder defines observability hooks for builds. Implementations must be
// safe for concurrent use.
type Recorder interface {
	ObserveBuildDuration(d time.Duration)
	IncBuildOutcome(outcome Outcome)
	IncFile(kind FileKind)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveBuildDuration(time.Duration) {}
func (NoopRecorder) IncBuildOutcome(Outcome)            {}
func (NoopRecorder) IncFile(FileKind)                   {}
