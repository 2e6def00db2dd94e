package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/portalkit/viewdata/internal/domain"
	"github.com/portalkit/viewdata/internal/store"
)

const defaultWorkerLimit = 4

// ViewDataAdapter wires the composer, special-case strategies, trimmer,
// executor and merger together for one page request at a time. It chooses the
// single-query path whenever the trimmer returns exactly one query and fans
// out to parallel sub-queries only when more than one authorization rule
// forces it.
type ViewDataAdapter struct {
	store      store.RecordStore
	metadata   MetadataResolver
	composer   *Composer
	strategies *StrategyRegistry
	trimmer    *Trimmer
	executor   *Executor
	merger     *Merger
	workers    int
	logger     zerolog.Logger
}

// Option customizes an adapter.
type Option func(*ViewDataAdapter)

// WithLogger attaches a structured logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *ViewDataAdapter) {
		a.logger = logger
	}
}

// WithWorkerLimit bounds the fan-out worker pool.
func WithWorkerLimit(limit int) Option {
	return func(a *ViewDataAdapter) {
		if limit > 0 {
			a.workers = limit
		}
	}
}

// WithCollation sets the locale used for culture-aware string comparison when
// merging fan-out results.
func WithCollation(tag language.Tag) Option {
	return func(a *ViewDataAdapter) {
		a.merger = NewMerger(tag)
	}
}

// WithMetadataResolver substitutes a caching resolver for direct store
// metadata lookups.
func WithMetadataResolver(resolver MetadataResolver) Option {
	return func(a *ViewDataAdapter) {
		a.metadata = resolver
	}
}

// WithTrimLayers installs additional trimming layers.
func WithTrimLayers(layers ...TrimLayer) Option {
	return func(a *ViewDataAdapter) {
		a.trimmer = NewTrimmer(layers...)
	}
}

// WithStrategies substitutes the special-case strategy registry.
func WithStrategies(registry *StrategyRegistry) Option {
	return func(a *ViewDataAdapter) {
		a.strategies = registry
	}
}

// NewViewDataAdapter builds an adapter over a record store.
func NewViewDataAdapter(recordStore store.RecordStore, opts ...Option) *ViewDataAdapter {
	adapter := &ViewDataAdapter{
		store:      recordStore,
		metadata:   recordStore,
		strategies: NewStrategyRegistry(),
		trimmer:    NewTrimmer(),
		merger:     NewMerger(language.Und),
		workers:    defaultWorkerLimit,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(adapter)
	}
	adapter.composer = NewComposer(adapter.metadata, adapter.logger)
	adapter.executor = NewExecutor(recordStore, adapter.logger)
	return adapter
}

// Fetch renders one page for the caller: compose, trim, execute (single query
// or parallel fan-out plus merge), and return the final result. Expressions
// are created fresh per request and discarded afterwards.
func (a *ViewDataAdapter) Fetch(ctx context.Context, view domain.ViewConfig, caller domain.CallerContext, req domain.ViewRequest) (*domain.FetchResult, error) {
	q := NewBaseQuery(view, req)

	if err := a.composer.Compose(ctx, q, view, caller, req); err != nil {
		return nil, err
	}

	deps := StrategyDependencies{Store: a.store, Caller: caller}
	if _, err := a.strategies.Apply(ctx, view, deps, req.CustomParameters, q); err != nil {
		return nil, err
	}

	var rules []domain.AuthorizationRule
	if view.EnableEntityPermissions {
		resolved, err := a.store.AuthorizationRules(ctx, caller, view.Collection, domain.RightRead)
		if err != nil {
			return nil, fmt.Errorf("resolve %s authorization rules: %w", view.Collection, err)
		}
		rules = resolved
	}

	mode := TrimSingle
	if countScopedRules(rules) > 1 {
		mode = TrimPerRule
	}

	trimmed, err := a.trimmer.Trim(ctx, q, view, caller, rules, mode)
	if err != nil {
		return nil, err
	}
	if trimmed.Denied {
		a.logger.Info().Str("collection", view.Collection).Stringer("user", caller.UserID).
			Msg("caller holds no authorization rule for view")
		return domain.DeniedResult(), nil
	}

	if len(trimmed.Queries) == 1 {
		return a.executor.Execute(ctx, trimmed.Queries[0])
	}
	return a.fanOut(ctx, trimmed.Queries, q.Orders, view, q.Page, q.PageSize)
}

func countScopedRules(rules []domain.AuthorizationRule) int {
	count := 0
	for _, rule := range rules {
		if rule.Global {
			// One global rule collapses the whole grant to a single query.
			return 1
		}
		if rule.Scope != nil {
			count++
		}
	}
	return count
}

// fanOut executes every per-rule query in parallel on a bounded worker pool,
// then merges the union client-side. Each sub-query fetches the whole prefix
// of the union needed to slice the requested page, because the store cannot
// page a disjunction with stable ordering across its branches.
func (a *ViewDataAdapter) fanOut(ctx context.Context, queries []*domain.QueryExpression, orders []domain.Order, view domain.ViewConfig, page, pageSize int) (*domain.FetchResult, error) {
	meta, err := a.metadata.EntityMetadata(ctx, view.Collection)
	if err != nil {
		return nil, fmt.Errorf("resolve %s metadata: %w", view.Collection, err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(a.workers)

	results := make([]*domain.FetchResult, len(queries))
	for i, sub := range queries {
		i, sub := i, sub
		sub.Page = 1
		sub.PageSize = page * pageSize

		group.Go(func() error {
			result, err := a.executor.Execute(groupCtx, sub)
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	merged := a.merger.Merge(results, orders, meta, page, pageSize)
	for _, result := range results {
		if result.MoreRecords {
			merged.MoreRecords = true
			break
		}
	}

	a.logger.Debug().Str("collection", view.Collection).Int("branches", len(queries)).
		Int("merged", merged.TotalCount).Msg("merged fan-out results")
	return merged, nil
}
