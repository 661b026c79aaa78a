// Package reporter fans per-image package reports out to a bounded pool of
// workers and aggregates the outcome of a run.
package reporter

import (
	"context"
	"fmt"
)

// ReportError is the recoverable failure of one stage of a single image's
// report. The orchestrator records it and moves on to the next image.
type ReportError struct {
	Ref   string
	Stage string
	Err   error
}

func (e *ReportError) Error() string {
	return fmt.Sprintf("%s failed for %s: %v", e.Stage, e.Ref, e.Err)
}

func (e *ReportError) Unwrap() error {
	return e.Err
}

// DiscoveryError wraps a failure in the catalog discovery pipeline
// (paging, filtering, sorting). Discovery failures abort the run before any
// report task is dispatched.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("catalog discovery failed: %v", e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// Reporter inspects one image and submits its package report. Any of the
// three action stages may fail with a *ReportError.
type Reporter interface {
	// IsSupported reports whether a report can be generated for the image
	// at all. Unsupported images are skipped, they are neither a success
	// nor a failure.
	IsSupported(ctx context.Context) bool
	// Generate produces the report on local disk.
	Generate(ctx context.Context) error
	// Submit uploads the generated report to the tracking service.
	Submit(ctx context.Context) error
	// Prune removes local artifacts pulled for the report.
	Prune(ctx context.Context) error
}

// Factory builds a Reporter for one fully-qualified image reference.
type Factory func(ref string) Reporter

// Summary is the aggregated outcome of a run.
type Summary struct {
	Succeeded []string
	Failed    []string
	Skipped   []string

	// unexpected is set when a task failed with something other than a
	// ReportError.
	unexpected bool
}

// OK reports whether every dispatched task succeeded or was skipped.
func (s *Summary) OK() bool {
	return len(s.Failed) == 0 && !s.unexpected
}

// ExitCode maps the summary onto the process exit status: 0 when all is
// well, 3 when report tasks failed, 1 when something failed in an
// unclassified way.
func (s *Summary) ExitCode() int {
	switch {
	case s.unexpected:
		return 1
	case len(s.Failed) > 0:
		return 3
	default:
		return 0
	}
}
