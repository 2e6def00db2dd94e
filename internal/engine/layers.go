package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/portalkit/viewdata/internal/domain"
)

// ContentAccessProvider resolves the content access levels granted to a
// caller. Typically backed by the identity collaborator.
type ContentAccessProvider interface {
	AccessLevels(ctx context.Context, caller domain.CallerContext) ([]string, error)
}

// ContentAccessLayer trims collections published under content access levels
// to the levels the caller holds.
type ContentAccessLayer struct {
	Collection string
	Attribute  string
	Provider   ContentAccessProvider
}

// Name identifies the layer in errors and logs.
func (l *ContentAccessLayer) Name() string { return "content-access" }

// Applies reports whether the view targets the access-controlled collection.
func (l *ContentAccessLayer) Applies(view domain.ViewConfig) bool {
	return view.Collection == l.Collection
}

// ScopeFilter builds the Or group of levels the caller may read. A caller
// with no levels gets a group that matches nothing rather than a denial; the
// base authorization rules decide denial.
func (l *ContentAccessLayer) ScopeFilter(ctx context.Context, caller domain.CallerContext) (*domain.Filter, error) {
	levels, err := l.Provider.AccessLevels(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("resolve content access levels: %w", err)
	}

	group := &domain.Filter{Kind: domain.FilterOr}
	for _, level := range levels {
		group.Conditions = append(group.Conditions, domain.Condition{
			Attribute: l.Attribute,
			Operator:  domain.OperatorEqual,
			Value:     level,
		})
	}
	if len(group.Conditions) == 0 {
		group.Conditions = append(group.Conditions, domain.Condition{
			Attribute: l.Attribute,
			Operator:  domain.OperatorNull,
		})
	}
	return group, nil
}

// ProductVisibilityLayer hides retired or not-yet-effective catalog records
// from product views.
type ProductVisibilityLayer struct {
	Collection       string
	StateAttribute   string
	ActiveState      int
	ValidToAttribute string
	Now              func() time.Time
}

// Name identifies the layer in errors and logs.
func (l *ProductVisibilityLayer) Name() string { return "product-visibility" }

// Applies reports whether the view targets the catalog collection.
func (l *ProductVisibilityLayer) Applies(view domain.ViewConfig) bool {
	return view.Collection == l.Collection
}

// ScopeFilter keeps records that are active and either open-ended or still
// within their validity window.
func (l *ProductVisibilityLayer) ScopeFilter(ctx context.Context, caller domain.CallerContext) (*domain.Filter, error) {
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}

	group := &domain.Filter{
		Kind: domain.FilterAnd,
		Conditions: []domain.Condition{
			{Attribute: l.StateAttribute, Operator: domain.OperatorEqual, Value: l.ActiveState},
		},
	}
	if l.ValidToAttribute != "" {
		group.Filters = append(group.Filters, &domain.Filter{
			Kind: domain.FilterOr,
			Conditions: []domain.Condition{
				{Attribute: l.ValidToAttribute, Operator: domain.OperatorNull},
				{Attribute: l.ValidToAttribute, Operator: domain.OperatorGreaterOrEqual, Value: now().UTC()},
			},
		})
	}
	return group, nil
}
