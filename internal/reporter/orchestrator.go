package reporter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/distribution/reference"

	"github.com/bnema/regreport/pkg/logger"
)

// Source produces the catalog the orchestrator dispatches over: image name
// to chronologically ordered (oldest first) tag list.
type Source interface {
	ImageTags(ctx context.Context, sorted bool) (map[string][]string, error)
}

// Orchestrator selects one tag per image, builds fully-qualified
// references and runs one report task per reference on a fixed pool of
// workers.
type Orchestrator struct {
	host    string
	source  Source
	factory Factory
	width   int
	prune   bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWidth sets the number of concurrent report workers. Values below one
// fall back to sequential execution.
func WithWidth(n int) Option {
	return func(o *Orchestrator) {
		if n >= 1 {
			o.width = n
		}
	}
}

// WithKeepImages disables the prune stage, leaving pulled images on disk.
func WithKeepImages() Option {
	return func(o *Orchestrator) {
		o.prune = false
	}
}

// New builds an orchestrator reporting on images of the given registry
// host. By default it runs sequentially and prunes pulled images.
func New(host string, source Source, factory Factory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		host:    host,
		source:  source,
		factory: factory,
		width:   1,
		prune:   true,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type taskStatus int

const (
	taskSucceeded taskStatus = iota
	taskFailed
	taskSkipped
	taskUnexpected
)

type taskResult struct {
	ref    string
	status taskStatus
}

// Run discovers the catalog and reports on the newest tag of every image.
// Discovery failures abort before any task is dispatched and come back as
// a *DiscoveryError; per-task failures are recorded in the summary and
// never abort the run. Once dispatched, a task runs to completion.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	imageTags, err := o.source.ImageTags(ctx, true)
	if err != nil {
		return nil, &DiscoveryError{Err: err}
	}
	refs := o.selectRefs(imageTags)

	tasks := make(chan string)
	results := make(chan taskResult)

	var wg sync.WaitGroup
	for i := 0; i < o.width; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ref := range tasks {
				results <- o.report(ctx, ref)
			}
		}()
	}
	go func() {
		for _, ref := range refs {
			tasks <- ref
		}
		close(tasks)
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	summary := &Summary{}
	for res := range results {
		switch res.status {
		case taskSucceeded:
			summary.Succeeded = append(summary.Succeeded, res.ref)
		case taskSkipped:
			summary.Skipped = append(summary.Skipped, res.ref)
		case taskUnexpected:
			summary.unexpected = true
			summary.Failed = append(summary.Failed, res.ref)
		default:
			summary.Failed = append(summary.Failed, res.ref)
		}
	}
	return summary, nil
}

// selectRefs picks the newest tag of each image and turns it into a
// fully-qualified reference. Only the newest tag is reported on, older
// versions are assumed to be unused by now.
func (o *Orchestrator) selectRefs(imageTags map[string][]string) []string {
	names := make([]string, 0, len(imageTags))
	for name := range imageTags {
		names = append(names, name)
	}
	sort.Strings(names)

	var refs []string
	for _, name := range names {
		tags := imageTags[name]
		if len(tags) == 0 {
			continue
		}
		ref := fmt.Sprintf("%s/%s:%s", o.host, name, tags[len(tags)-1])
		if _, err := reference.Parse(ref); err != nil {
			logger.Warn("Skipping unparsable image reference", "ref", ref, "error", err)
			continue
		}
		refs = append(refs, ref)
	}
	return refs
}

// report runs the check - generate - submit - prune sequence for one
// reference.
func (o *Orchestrator) report(ctx context.Context, ref string) taskResult {
	logger.Info("Building report", "image", ref)
	rep := o.factory(ref)

	if !rep.IsSupported(ctx) {
		logger.Warn("Unable to create a report, the image is not supported", "image", ref)
		return taskResult{ref: ref, status: taskSkipped}
	}

	stages := []func(context.Context) error{rep.Generate, rep.Submit}
	if o.prune {
		stages = append(stages, rep.Prune)
	}
	for _, stage := range stages {
		if err := stage(ctx); err != nil {
			var repErr *ReportError
			if !errors.As(err, &repErr) {
				logger.Error("Unexpected error during report", "image", ref, "error", err)
				return taskResult{ref: ref, status: taskUnexpected}
			}
			logger.Error("Report failed", "image", ref, "error", err)
			return taskResult{ref: ref, status: taskFailed}
		}
	}
	return taskResult{ref: ref, status: taskSucceeded}
}
