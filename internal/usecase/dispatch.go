package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"cineast/internal/domain"
	"cineast/internal/port"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 4

// Initializer supplies the fresh writer a module is bound to before a run.
type Initializer func(m port.Extractor) (port.Writer, error)

// FactoryInitializer hands every module a new writer from f.
func FactoryInitializer(f port.WriterFactory) Initializer {
	return func(port.Extractor) (port.Writer, error) {
		return f.NewWriter(), nil
	}
}

// ProgressFunc is called after each segment has been offered to every module.
type ProgressFunc func(done, total int)

type DispatcherOptions struct {
	Workers int
}

// ExtractResult summarizes one extraction run.
type ExtractResult struct {
	Segments int
	Written  int
	Failures []error
}

// Dispatcher runs a fixed set of extractors over segments on a bounded worker pool.
type Dispatcher struct {
	modules []*guarded
	init    Initializer
	workers int
	logger  *slog.Logger
}

// guarded serializes calls into one module.
type guarded struct {
	mu sync.Mutex
	port.Extractor
}

func NewDispatcher(modules []port.Extractor, init Initializer, opts DispatcherOptions, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	d := &Dispatcher{
		init:    init,
		workers: opts.Workers,
		logger:  logger.With("component", "dispatcher"),
	}
	for _, m := range modules {
		d.modules = append(d.modules, &guarded{Extractor: m})
	}
	return d
}

// Run offers every segment to every module exactly once, then finishes all modules.
// Per (module, segment) failures are collected in the result; a cancelled context
// stops feeding segments and is returned after the modules are finished.
func (d *Dispatcher) Run(ctx context.Context, segments []port.SegmentContainer, progress ProgressFunc) (*ExtractResult, error) {
	var written atomic.Int64
	for i, m := range d.modules {
		w, err := d.init(m)
		if err == nil {
			if err = m.Init(&countingWriter{Writer: w, n: &written}); err != nil {
				if cerr := w.Close(); cerr != nil {
					d.logger.Warn("closing unbound writer", "module", m.Name(), "error", cerr)
				}
			}
		}
		if err != nil {
			d.finish(d.modules[:i])
			return nil, fmt.Errorf("init %s: %w", m.Name(), err)
		}
	}

	result := &ExtractResult{}
	var (
		mu   sync.Mutex
		done int
	)
	record := func(err error) {
		mu.Lock()
		result.Failures = append(result.Failures, err)
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(d.workers)
	for _, seg := range segments {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			for _, m := range d.modules {
				if ctx.Err() != nil {
					break
				}
				if err := d.process(ctx, m, seg); err != nil {
					d.logger.Error("extraction failed", "module", m.Name(), "segment", seg.ID(), "error", err)
					record(err)
				}
			}
			if r, ok := seg.(interface{ Release() }); ok {
				r.Release()
			}
			mu.Lock()
			done++
			result.Segments = done
			if progress != nil {
				progress(done, len(segments))
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	finishErr := d.finish(d.modules)
	result.Written = int(written.Load())
	d.logger.Info("extraction finished",
		"segments", result.Segments,
		"written", result.Written,
		"failures", len(result.Failures))

	if err := ctx.Err(); err != nil {
		return result, err
	}
	if finishErr != nil {
		return result, finishErr
	}
	return result, nil
}

func (d *Dispatcher) process(ctx context.Context, m *guarded, seg port.SegmentContainer) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Debug("module panic", "module", m.Name(), "stack", string(debug.Stack()))
			err = &domain.ExtractionError{Module: m.Name(), SegmentID: seg.ID(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if err := m.Process(ctx, seg); err != nil {
		return &domain.ExtractionError{Module: m.Name(), SegmentID: seg.ID(), Err: err}
	}
	return nil
}

func (d *Dispatcher) finish(modules []*guarded) error {
	var errs []error
	for _, m := range modules {
		m.mu.Lock()
		if err := m.Finish(); err != nil {
			errs = append(errs, fmt.Errorf("finish %s: %w", m.Name(), err))
		}
		m.mu.Unlock()
	}
	return errors.Join(errs...)
}

// countingWriter counts persisted tuples across all modules of a run.
type countingWriter struct {
	port.Writer
	n *atomic.Int64
}

func (w *countingWriter) Persist(ctx context.Context, t domain.Tuple) error {
	if err := w.Writer.Persist(ctx, t); err != nil {
		return err
	}
	w.n.Add(1)
	return nil
}
