package aggregate

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/triage/internal/classify"
	"github.com/tinytelemetry/triage/internal/model"
	"github.com/tinytelemetry/triage/internal/normalize"
	"github.com/tinytelemetry/triage/internal/pattern"
)

// ErrAborted signals that processing was cancelled before completion.
// An aborted run has no usable state: callers must not report from it.
var ErrAborted = errors.New("aggregate: processing aborted")

// cancelCheckStride is how many entries a worker folds between
// cancellation checks.
const cancelCheckStride = 1024

// Config holds pipeline construction parameters.
type Config struct {
	Extractor          *pattern.Extractor
	Classifier         *classify.Classifier
	Workers            int
	CriticalSampleSize int
}

// Pipeline runs the batch through normalize → classify/extract → fold in
// parallel partitions, then merges partial states at a single barrier.
type Pipeline struct {
	normalizer  *normalize.Normalizer
	folder      *Folder
	workers     int
	sampleLimit int
}

// NewPipeline validates the configuration and builds a pipeline.
func NewPipeline(conf Config) (*Pipeline, error) {
	if conf.Extractor == nil {
		return nil, fmt.Errorf("aggregate: extractor is required")
	}
	if conf.Classifier == nil {
		return nil, fmt.Errorf("aggregate: classifier is required")
	}
	workers := conf.Workers
	if workers <= 0 {
		workers = model.DefaultWorkers
	}
	return &Pipeline{
		normalizer:  normalize.NewNormalizer(),
		folder:      NewFolder(conf.Extractor, conf.Classifier),
		workers:     workers,
		sampleLimit: conf.CriticalSampleSize,
	}, nil
}

// Run processes the whole batch and returns the merged final state.
//
// The batch is split into contiguous partitions, one partial state per
// worker, so there is no shared mutable state during the parallel phase.
// Partials merge in partition order, which preserves first-seen-in-input
// semantics for pattern examples and the critical sample. On cancellation
// the result is ErrAborted, never a partial state.
func (p *Pipeline) Run(ctx context.Context, records []model.RawRecord) (*State, error) {
	workers := p.workers
	if workers > len(records) {
		workers = len(records)
	}
	if workers <= 1 {
		return p.runSequential(ctx, records)
	}

	partials := make([]*State, workers)
	g, gctx := errgroup.WithContext(ctx)

	chunk := (len(records) + workers - 1) / workers
	for i := 0; i < workers; i++ {
		start := i * chunk
		end := start + chunk
		if end > len(records) {
			end = len(records)
		}
		i, part := i, records[start:end]
		g.Go(func() error {
			st := NewState(p.sampleLimit)
			if err := p.fold(gctx, st, part); err != nil {
				return err
			}
			partials[i] = st
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAborted, err)
	}

	final := NewState(p.sampleLimit)
	for _, st := range partials {
		Merge(final, st)
	}
	return final, nil
}

func (p *Pipeline) runSequential(ctx context.Context, records []model.RawRecord) (*State, error) {
	st := NewState(p.sampleLimit)
	if err := p.fold(ctx, st, records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAborted, err)
	}
	return st, nil
}

func (p *Pipeline) fold(ctx context.Context, st *State, records []model.RawRecord) error {
	for i, raw := range records {
		if i%cancelCheckStride == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		entry, ok := p.normalizer.Normalize(raw)
		if !ok {
			st.Rejected++
			continue
		}
		p.folder.Fold(st, entry)
	}
	return nil
}
