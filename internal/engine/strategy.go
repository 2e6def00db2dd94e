package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/portalkit/viewdata/internal/domain"
	"github.com/portalkit/viewdata/internal/store"
)

// StrategyDependencies hands a special-case strategy the collaborators it may
// need to resolve upstream records.
type StrategyDependencies struct {
	Store  store.RecordStore
	Caller domain.CallerContext
}

// SpecialCaseStrategy is a pluggable query rewrite for a collection with
// idiosyncratic eligibility rules. Apply returns false without error when the
// strategy's preconditions are not met; it errors only when an applicable
// precondition holds but a required upstream lookup fails.
type SpecialCaseStrategy interface {
	Applies(view domain.ViewConfig) bool
	Apply(ctx context.Context, deps StrategyDependencies, params map[string]string, q *domain.QueryExpression) (bool, error)
}

// StrategyRegistry maps target-collection names to their strategy. At most
// one strategy is registered per collection.
type StrategyRegistry struct {
	strategies map[string]SpecialCaseStrategy
}

// NewStrategyRegistry returns a registry pre-loaded with the well-known
// strategies.
func NewStrategyRegistry() *StrategyRegistry {
	registry := &StrategyRegistry{strategies: make(map[string]SpecialCaseStrategy)}
	registry.Register("product", &PriceListProductStrategy{
		ParentIDParameter:   "parentrecordid",
		ParentTypeParameter: "parentrecordtype",
		PriceListAttribute:  "pricelistid",
	})
	registry.Register("activitypointer", &TimelineRegardingStrategy{})
	return registry
}

// Register installs (or replaces) the strategy for a collection.
func (r *StrategyRegistry) Register(collection string, strategy SpecialCaseStrategy) {
	r.strategies[collection] = strategy
}

// Apply invokes the registered strategy for the view's collection, if any.
func (r *StrategyRegistry) Apply(ctx context.Context, view domain.ViewConfig, deps StrategyDependencies, params map[string]string, q *domain.QueryExpression) (bool, error) {
	strategy, ok := r.strategies[view.Collection]
	if !ok || !strategy.Applies(view) {
		return false, nil
	}
	applied, err := strategy.Apply(ctx, deps, params, q)
	if err != nil {
		return false, fmt.Errorf("apply %s strategy: %w", view.Collection, err)
	}
	return applied, nil
}

// PriceListProductStrategy restricts a product lookup's candidate set to
// products listed on the same price list as a parent record. The parent
// record is named through custom request parameters; resolving its price list
// association is a required upstream lookup and failure is fatal.
type PriceListProductStrategy struct {
	ParentIDParameter   string
	ParentTypeParameter string
	PriceListAttribute  string
}

// Applies reports whether the view targets the product collection.
func (s *PriceListProductStrategy) Applies(view domain.ViewConfig) bool {
	return view.Collection == "product"
}

// Apply injects a price-list-item join scoped to the parent record's price
// list. Missing parameters make the strategy a no-op, never an error.
func (s *PriceListProductStrategy) Apply(ctx context.Context, deps StrategyDependencies, params map[string]string, q *domain.QueryExpression) (bool, error) {
	parentID, hasID := params[s.ParentIDParameter]
	parentType, hasType := params[s.ParentTypeParameter]
	if !hasID || !hasType {
		return false, nil
	}

	id, err := uuid.Parse(parentID)
	if err != nil {
		return false, nil
	}

	priceList, err := s.resolveParentPriceList(ctx, deps, parentType, id)
	if err != nil {
		return false, err
	}

	q.AddJoin(&domain.Join{
		Name:          "pricelistitem",
		FromAttribute: "productid",
		ToAttribute:   "productid",
		Kind:          domain.JoinInner,
		Alias:         "eligibleprice",
		IntersectOnly: true,
		Filters: []*domain.Filter{{
			Kind: domain.FilterAnd,
			Conditions: []domain.Condition{{
				Attribute: "pricelevelid",
				Operator:  domain.OperatorEqual,
				Value:     priceList.ID,
			}},
		}},
	})
	return true, nil
}

func (s *PriceListProductStrategy) resolveParentPriceList(ctx context.Context, deps StrategyDependencies, parentType string, parentID uuid.UUID) (domain.Reference, error) {
	meta, err := deps.Store.EntityMetadata(ctx, parentType)
	if err != nil {
		return domain.Reference{}, fmt.Errorf("resolve %s metadata: %w", parentType, err)
	}

	lookup := domain.NewQueryExpression(parentType)
	lookup.AddAttribute(s.PriceListAttribute)
	lookup.AddCondition(domain.Condition{
		Attribute: meta.PrimaryIDAttribute,
		Operator:  domain.OperatorEqual,
		Value:     parentID,
	})
	lookup.PageSize = 1

	result, err := deps.Store.Execute(ctx, lookup)
	if err != nil {
		return domain.Reference{}, fmt.Errorf("resolve parent %s %s: %w", parentType, parentID, err)
	}
	if len(result.Records) == 0 {
		return domain.Reference{}, fmt.Errorf("parent %s %s not found", parentType, parentID)
	}

	value, ok := result.Records[0].Get(s.PriceListAttribute)
	if !ok || value.IsNull() {
		return domain.Reference{}, fmt.Errorf("parent %s %s has no price list association", parentType, parentID)
	}
	reference, ok := value.AsReference()
	if !ok {
		return domain.Reference{}, fmt.Errorf("parent %s attribute %s is not a reference", parentType, s.PriceListAttribute)
	}
	return reference, nil
}

// TimelineRegardingStrategy narrows activity views to the activities whose
// parties reference the regarding record named by the request parameters.
type TimelineRegardingStrategy struct{}

// Applies reports whether the view targets the activity collection.
func (s *TimelineRegardingStrategy) Applies(view domain.ViewConfig) bool {
	return view.Collection == "activitypointer"
}

// Apply injects the activity-party join for the regarding record. Without a
// regarding parameter the strategy is a no-op.
func (s *TimelineRegardingStrategy) Apply(ctx context.Context, deps StrategyDependencies, params map[string]string, q *domain.QueryExpression) (bool, error) {
	regardingID, ok := params["regardingid"]
	if !ok {
		return false, nil
	}
	id, err := uuid.Parse(regardingID)
	if err != nil {
		return false, nil
	}

	q.AddJoin(&domain.Join{
		Name:          "activityparty",
		FromAttribute: "activityid",
		ToAttribute:   "activityid",
		Kind:          domain.JoinInner,
		Alias:         "regardingparty",
		Filters: []*domain.Filter{{
			Kind: domain.FilterAnd,
			Conditions: []domain.Condition{{
				Attribute: "partyid",
				Operator:  domain.OperatorEqual,
				Value:     id,
			}},
		}},
	})
	return true, nil
}
