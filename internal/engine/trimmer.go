package engine

import (
	"context"
	"fmt"

	"github.com/portalkit/viewdata/internal/domain"
)

// TrimMode selects how the trimmer folds authorization rules into queries.
type TrimMode string

const (
	// TrimSingle merges every rule's scope into one Or group on one query,
	// keeping server-side pagination and total counts.
	TrimSingle TrimMode = "single"
	// TrimPerRule produces one independently pageable query per rule; results
	// are merged client-side. Only worth it when more than one rule is held.
	TrimPerRule TrimMode = "per-rule"
)

// TrimResult is the trimmer's verdict: either the caller is denied outright,
// or one or more queries scoped to what the caller may read.
type TrimResult struct {
	Denied  bool
	Queries []*domain.QueryExpression
}

// TrimLayer is an independent trimming concern (content access levels,
// product visibility) that contributes its own Or group of scope conditions
// under the query's top-level And.
type TrimLayer interface {
	Name() string
	Applies(view domain.ViewConfig) bool
	ScopeFilter(ctx context.Context, caller domain.CallerContext) (*domain.Filter, error)
}

// Trimmer narrows queries to the records the caller is authorized to read.
type Trimmer struct {
	layers []TrimLayer
}

// NewTrimmer builds a trimmer with the given additional trimming layers.
func NewTrimmer(layers ...TrimLayer) *Trimmer {
	return &Trimmer{layers: layers}
}

// Trim applies the caller's authorization rules to the composed query.
//
// When the view does not enable entity permissions the query passes through
// untouched. A caller holding zero rules and no global grant is denied before
// any store round-trip. Otherwise the rules fold into the query per the
// requested mode.
func (t *Trimmer) Trim(ctx context.Context, q *domain.QueryExpression, view domain.ViewConfig, caller domain.CallerContext, rules []domain.AuthorizationRule, mode TrimMode) (*TrimResult, error) {
	if !view.EnableEntityPermissions {
		return &TrimResult{Queries: []*domain.QueryExpression{q}}, nil
	}

	global := false
	scoped := make([]domain.AuthorizationRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Global {
			global = true
			continue
		}
		if rule.Scope != nil {
			scoped = append(scoped, rule)
		}
	}

	if !global && len(scoped) == 0 {
		return &TrimResult{Denied: true}, nil
	}

	// A global grant makes every scoped rule redundant.
	if global {
		if err := t.applyLayers(ctx, q, view, caller); err != nil {
			return nil, err
		}
		return &TrimResult{Queries: []*domain.QueryExpression{q}}, nil
	}

	if mode == TrimPerRule && len(scoped) > 1 {
		return t.trimPerRule(ctx, q, view, caller, scoped)
	}

	// Single mode: one Or group over every rule's scope conditions.
	scopeGroup := &domain.Filter{Kind: domain.FilterOr}
	for _, rule := range scoped {
		scopeGroup.Filters = append(scopeGroup.Filters, rule.Scope.Clone())
	}
	q.AddFilter(scopeGroup)

	if err := t.applyLayers(ctx, q, view, caller); err != nil {
		return nil, err
	}
	return &TrimResult{Queries: []*domain.QueryExpression{q}}, nil
}

// trimPerRule deep-copies the composed query once per rule so each branch can
// page independently; no nodes are shared between branches.
func (t *Trimmer) trimPerRule(ctx context.Context, q *domain.QueryExpression, view domain.ViewConfig, caller domain.CallerContext, scoped []domain.AuthorizationRule) (*TrimResult, error) {
	queries := make([]*domain.QueryExpression, 0, len(scoped))
	for _, rule := range scoped {
		branch := q.Clone()
		branch.AddFilter(rule.Scope.Clone())
		if err := t.applyLayers(ctx, branch, view, caller); err != nil {
			return nil, err
		}
		queries = append(queries, branch)
	}
	return &TrimResult{Queries: queries}, nil
}

func (t *Trimmer) applyLayers(ctx context.Context, q *domain.QueryExpression, view domain.ViewConfig, caller domain.CallerContext) error {
	for _, layer := range t.layers {
		if !layer.Applies(view) {
			continue
		}
		scope, err := layer.ScopeFilter(ctx, caller)
		if err != nil {
			return fmt.Errorf("apply %s trim layer: %w", layer.Name(), err)
		}
		if scope == nil {
			continue
		}
		q.AddFilter(scope)
	}
	return nil
}
