// Package engine provides the analysis facade: one requirements inference
// run per request over a shared library resolver.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	er "github.com/gofhir/elmrequirements"
	"github.com/gofhir/elmrequirements/elm"
	"github.com/gofhir/elmrequirements/inference"
	"github.com/gofhir/elmrequirements/library"
	"github.com/gofhir/elmrequirements/pkg/logger"
	"github.com/gofhir/elmrequirements/walker"
)

// Analyzer computes the data requirements of libraries.
// Each call to Analyze uses fresh inference state, so an Analyzer may be
// used from several goroutines as long as its resolver is safe for
// concurrent use.
type Analyzer struct {
	// Configuration
	options *er.Options

	// Services
	resolver library.Resolver
	walker   *walker.Walker

	// Metrics
	metrics *er.Metrics
}

// New creates an Analyzer resolving libraries through resolver.
func New(resolver library.Resolver, opts ...er.Option) (*Analyzer, error) {
	if resolver == nil {
		return nil, errors.New("engine: resolver is required")
	}
	options := er.Apply(opts...)

	metrics := options.Metrics
	if metrics == nil {
		metrics = er.NewMetrics()
		options.Metrics = metrics
	}

	return &Analyzer{
		options:  options,
		resolver: resolver,
		walker:   walker.New(),
		metrics:  metrics,
	}, nil
}

// NewFromSources creates an Analyzer over a library.Manager built from
// sources, sized and instrumented from opts.
func NewFromSources(sources []library.Source, opts ...er.Option) (*Analyzer, error) {
	options := er.Apply(opts...)
	if options.Metrics == nil {
		options.Metrics = er.NewMetrics()
		opts = append(opts, er.WithMetrics(options.Metrics))
	}
	mgr := library.NewManagerWithOptions(sources, []library.ManagerOption{
		library.WithCacheSize(options.LibraryCacheSize),
		library.WithMetrics(options.Metrics),
		library.WithLogger(options.Logger),
	})
	return New(mgr, opts...)
}

// Analyze computes the requirements of library id. With no expressions
// every declaration of the library is visited; otherwise only the named
// expression definitions and what they reference.
func (a *Analyzer) Analyze(ctx context.Context, id elm.VersionedIdentifier, expressions ...string) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := a.options.Logger.With("run", runID)

	res, err := a.analyze(ctx, runID, log, id, expressions)
	elapsed := time.Since(start)
	a.metrics.RecordRun(elapsed, err != nil)
	if err != nil {
		log.Error("analysis of %s failed: %v", id, err)
		return nil, err
	}

	res.Duration = elapsed
	log.Info("analyzed %s: %d definitions, %d requirements, %d issues in %s",
		res.Library, len(res.Definitions), res.Requirements.Len(), len(res.Issues), elapsed)
	return res, nil
}

func (a *Analyzer) analyze(ctx context.Context, runID string, log *logger.Logger, id elm.VersionedIdentifier, expressions []string) (*Result, error) {
	runOptions := *a.options
	runOptions.Logger = log
	rc, err := inference.NewContext(a.resolver, a.walker, func(o *er.Options) { *o = runOptions })
	if err != nil {
		return nil, err
	}

	// Pinned by the run: references back into the library see this tree.
	lib, err := rc.ResolveLibrary(ctx, id)
	if err != nil {
		return nil, err
	}

	var targets []elm.ExpressionDefinition
	if len(expressions) == 0 {
		if err := a.walker.VisitLibrary(ctx, lib.ELM(), rc); err != nil {
			return nil, err
		}
		targets = lib.Statements()
	} else {
		targets, err = a.visitExpressions(ctx, lib, expressions, rc)
		if err != nil {
			return nil, err
		}
	}

	return newResult(runID, lib, targets, rc), nil
}

func (a *Analyzer) visitExpressions(ctx context.Context, lib *library.Library, names []string, rc *inference.Context) ([]elm.ExpressionDefinition, error) {
	rc.EnterLibrary(lib.Identifier())
	defer rc.ExitLibrary()

	targets := make([]elm.ExpressionDefinition, 0, len(names))
	for _, name := range names {
		def, err := lib.ResolveExpression(name)
		if err != nil {
			return nil, err
		}
		if !rc.Visited(def) {
			if err := a.walker.VisitElement(ctx, def, rc); err != nil {
				return nil, err
			}
		}
		targets = append(targets, def)
	}
	return targets, nil
}

// Outcome pairs the result of one batch entry with its error.
type Outcome struct {
	Library elm.VersionedIdentifier
	Result  *Result
	Err     error
}

// AnalyzeBatch analyzes ids in parallel, at most Options().WorkerCount at a
// time. Outcomes are returned in the order of ids.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, ids []elm.VersionedIdentifier) []Outcome {
	outcomes := make([]Outcome, len(ids))

	workers := a.options.WorkerCount
	if workers <= 0 {
		workers = 1
	}
	slots := make(chan struct{}, workers)

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(idx int, id elm.VersionedIdentifier) {
			defer wg.Done()

			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
				outcomes[idx] = Outcome{Library: id, Err: ctx.Err()}
				return
			}
			defer func() { <-slots }()

			res, err := a.Analyze(ctx, id)
			outcomes[idx] = Outcome{Library: id, Result: res, Err: err}
		}(i, id)
	}

	wg.Wait()
	return outcomes
}

// Metrics returns the analyzer's metrics.
func (a *Analyzer) Metrics() *er.Metrics {
	return a.metrics
}

// Options returns the analyzer's options.
func (a *Analyzer) Options() *er.Options {
	return a.options
}

// Resolver returns the library resolver.
func (a *Analyzer) Resolver() library.Resolver {
	return a.resolver
}
