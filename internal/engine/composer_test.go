package engine

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/portalkit/viewdata/internal/domain"
)

type stubMetadata struct {
	meta *domain.EntityMetadata
}

func (s stubMetadata) EntityMetadata(ctx context.Context, collection string) (*domain.EntityMetadata, error) {
	if s.meta == nil || s.meta.Collection != collection {
		return nil, fmt.Errorf("collection %s is not defined", collection)
	}
	return s.meta, nil
}

func searchableMeta() *domain.EntityMetadata {
	return &domain.EntityMetadata{
		Collection:           "incident",
		PrimaryIDAttribute:   "incidentid",
		PrimaryNameAttribute: "title",
		Attributes: map[string]domain.AttributeType{
			"title":        domain.AttributeString,
			"statuscode":   domain.AttributeStatus,
			"customerid":   domain.AttributeCustomer,
			"ticketnumber": domain.AttributeInteger,
			"createdon":    domain.AttributeDateTime,
		},
		Relationships: []domain.Relationship{{
			SchemaName:            "account_incidents",
			ReferencedCollection:  "account",
			ReferencingCollection: "incident",
			ReferencingAttribute:  "customerid",
		}},
	}
}

func searchableView() domain.ViewConfig {
	return domain.ViewConfig{
		Collection: "incident",
		Columns: []domain.ViewColumn{
			{Attribute: "title"},
			{Attribute: "statuscode"},
			{Attribute: "ticketnumber"},
		},
		SearchEnabled:   true,
		DefaultPageSize: 10,
	}
}

func rootConditions(q *domain.QueryExpression) []domain.Condition {
	if q.Filter == nil {
		return nil
	}
	return q.Filter.Conditions
}

func TestSelectableFilterPrefersRequestedKey(t *testing.T) {
	view := searchableView()
	view.UserFilterAttribute = "customerid"
	view.AccountFilterAttribute = "accountid"
	caller := domain.CallerContext{UserID: uuid.New(), AccountID: uuid.New()}
	composer := NewComposer(stubMetadata{meta: searchableMeta()}, zerolog.Nop())

	q := NewBaseQuery(view, domain.ViewRequest{Filter: domain.SelectableFilterAccount})
	if err := composer.Compose(context.Background(), q, view, caller, domain.ViewRequest{Filter: domain.SelectableFilterAccount}); err != nil {
		t.Fatalf("compose: %v", err)
	}

	conditions := rootConditions(q)
	if len(conditions) != 1 {
		t.Fatalf("expected one selectable condition, got %+v", conditions)
	}
	if conditions[0].Attribute != "accountid" || conditions[0].Value != caller.AccountID {
		t.Fatalf("account filter not applied: %+v", conditions[0])
	}
}

func TestSelectableFilterFallsBackToUser(t *testing.T) {
	view := searchableView()
	view.UserFilterAttribute = "customerid"
	view.AccountFilterAttribute = "accountid"
	caller := domain.CallerContext{UserID: uuid.New(), AccountID: uuid.New()}
	composer := NewComposer(stubMetadata{meta: searchableMeta()}, zerolog.Nop())

	q := NewBaseQuery(view, domain.ViewRequest{})
	if err := composer.Compose(context.Background(), q, view, caller, domain.ViewRequest{}); err != nil {
		t.Fatalf("compose: %v", err)
	}

	conditions := rootConditions(q)
	if len(conditions) != 1 || conditions[0].Attribute != "customerid" || conditions[0].Value != caller.UserID {
		t.Fatalf("user fallback not applied: %+v", conditions)
	}
}

func TestSelectableFilterSingleConfiguredAppliesUnconditionally(t *testing.T) {
	view := searchableView()
	view.AccountFilterAttribute = "accountid"
	caller := domain.CallerContext{UserID: uuid.New(), AccountID: uuid.New()}
	composer := NewComposer(stubMetadata{meta: searchableMeta()}, zerolog.Nop())

	// The request asks for the user filter, but only the account filter is
	// configured.
	req := domain.ViewRequest{Filter: domain.SelectableFilterUser}
	q := NewBaseQuery(view, req)
	if err := composer.Compose(context.Background(), q, view, caller, req); err != nil {
		t.Fatalf("compose: %v", err)
	}

	conditions := rootConditions(q)
	if len(conditions) != 1 || conditions[0].Attribute != "accountid" {
		t.Fatalf("single configured filter should win: %+v", conditions)
	}
}

func TestWebsiteFilterSkippedWithoutWebsite(t *testing.T) {
	view := searchableView()
	view.WebsiteFilterAttribute = "websiteid"
	composer := NewComposer(stubMetadata{meta: searchableMeta()}, zerolog.Nop())

	q := NewBaseQuery(view, domain.ViewRequest{})
	if err := composer.Compose(context.Background(), q, view, domain.CallerContext{UserID: uuid.New()}, domain.ViewRequest{}); err != nil {
		t.Fatalf("compose: %v", err)
	}
	if len(rootConditions(q)) != 0 {
		t.Fatalf("nil website id should add no condition: %+v", rootConditions(q))
	}

	caller := domain.CallerContext{UserID: uuid.New(), WebsiteID: uuid.New()}
	q = NewBaseQuery(view, domain.ViewRequest{})
	if err := composer.Compose(context.Background(), q, view, caller, domain.ViewRequest{}); err != nil {
		t.Fatalf("compose: %v", err)
	}
	conditions := rootConditions(q)
	if len(conditions) != 1 || conditions[0].Attribute != "websiteid" || conditions[0].Value != caller.WebsiteID {
		t.Fatalf("website filter not applied: %+v", conditions)
	}
}

func TestSearchFilterBranchesByColumnType(t *testing.T) {
	view := searchableView()
	composer := NewComposer(stubMetadata{meta: searchableMeta()}, zerolog.Nop())

	req := domain.ViewRequest{Search: "Z"}
	q := NewBaseQuery(view, req)
	if err := composer.Compose(context.Background(), q, view, domain.CallerContext{UserID: uuid.New()}, req); err != nil {
		t.Fatalf("compose: %v", err)
	}

	if len(q.Filter.Filters) != 1 {
		t.Fatalf("expected one search group, got %+v", q.Filter.Filters)
	}
	group := q.Filter.Filters[0]
	if group.Kind != domain.FilterOr {
		t.Fatalf("search group must be a disjunction")
	}

	attributes := make(map[string]domain.Operator)
	for _, condition := range group.Conditions {
		attributes[condition.Attribute] = condition.Operator
	}
	if attributes["title"] != domain.OperatorBeginsWith {
		t.Fatalf("string column should use begins-with: %+v", attributes)
	}
	if attributes["statuscodename"] != domain.OperatorBeginsWith {
		t.Fatalf("choice column should search its display-name shadow: %+v", attributes)
	}
	if _, present := attributes["ticketnumber"]; present {
		t.Fatalf("non-numeric term must skip the integer column")
	}
}

func TestSearchFilterIncludesParsableTypedTerms(t *testing.T) {
	view := searchableView()
	composer := NewComposer(stubMetadata{meta: searchableMeta()}, zerolog.Nop())

	req := domain.ViewRequest{Search: "42"}
	q := NewBaseQuery(view, req)
	if err := composer.Compose(context.Background(), q, view, domain.CallerContext{UserID: uuid.New()}, req); err != nil {
		t.Fatalf("compose: %v", err)
	}

	group := q.Filter.Filters[0]
	found := false
	for _, condition := range group.Conditions {
		if condition.Attribute == "ticketnumber" {
			found = true
			if condition.Operator != domain.OperatorEqual || condition.Value != int64(42) {
				t.Fatalf("typed search condition wrong: %+v", condition)
			}
		}
	}
	if !found {
		t.Fatalf("numeric term should hit the integer column: %+v", group.Conditions)
	}
}

func TestRegardingFilterResolvesRelationship(t *testing.T) {
	view := searchableView()
	composer := NewComposer(stubMetadata{meta: searchableMeta()}, zerolog.Nop())

	regarding := &domain.Reference{ID: uuid.New(), Collection: "account"}
	req := domain.ViewRequest{Regarding: regarding}
	q := NewBaseQuery(view, req)
	if err := composer.Compose(context.Background(), q, view, domain.CallerContext{UserID: uuid.New()}, req); err != nil {
		t.Fatalf("compose: %v", err)
	}

	conditions := rootConditions(q)
	if len(conditions) != 1 || conditions[0].Attribute != "customerid" || conditions[0].Value != regarding.ID {
		t.Fatalf("regarding filter not derived from relationship: %+v", conditions)
	}
}

func TestRegardingFilterUnknownRelationshipFails(t *testing.T) {
	view := searchableView()
	composer := NewComposer(stubMetadata{meta: searchableMeta()}, zerolog.Nop())

	req := domain.ViewRequest{
		Regarding:        &domain.Reference{ID: uuid.New(), Collection: "contact"},
		RelationshipName: "does_not_exist",
	}
	q := NewBaseQuery(view, req)
	if err := composer.Compose(context.Background(), q, view, domain.CallerContext{UserID: uuid.New()}, req); err == nil {
		t.Fatalf("unresolvable relationship must fail the request")
	}
}

func TestFacetFilterCopiesOptionSubtrees(t *testing.T) {
	facetID := uuid.New()
	optionID := uuid.New()
	optionFilter := &domain.Filter{Kind: domain.FilterAnd, Conditions: []domain.Condition{
		{Attribute: "prioritycode", Operator: domain.OperatorEqual, Value: 1},
	}}
	view := searchableView()
	view.MetadataFilter = &domain.MetadataFilter{Facets: []domain.FacetDefinition{{
		ID:      facetID,
		Input:   domain.FacetInputOptions,
		Options: []domain.FacetOption{{ID: optionID, Filter: optionFilter}},
	}}}
	composer := NewComposer(stubMetadata{meta: searchableMeta()}, zerolog.Nop())

	req := domain.ViewRequest{MetaFilter: fmt.Sprintf("%s=%s", facetID, optionID)}
	q := NewBaseQuery(view, req)
	if err := composer.Compose(context.Background(), q, view, domain.CallerContext{UserID: uuid.New()}, req); err != nil {
		t.Fatalf("compose: %v", err)
	}

	if len(q.Filter.Filters) != 1 {
		t.Fatalf("expected facet group, got %+v", q.Filter.Filters)
	}
	group := q.Filter.Filters[0]
	if group.Kind != domain.FilterOr || len(group.Filters) != 1 {
		t.Fatalf("facet selection should be a disjunction of option subtrees: %+v", group)
	}

	// The copied subtree must not alias the view definition.
	group.Filters[0].Conditions[0].Value = 99
	if optionFilter.Conditions[0].Value != 1 {
		t.Fatalf("facet application mutated the view definition")
	}
}

func TestComposeIsDeterministic(t *testing.T) {
	view := searchableView()
	view.UserFilterAttribute = "customerid"
	caller := domain.CallerContext{UserID: uuid.New()}
	req := domain.ViewRequest{Search: "printer", Sort: "title DESC", Page: 3, PageSize: 25}
	composer := NewComposer(stubMetadata{meta: searchableMeta()}, zerolog.Nop())

	first := NewBaseQuery(view, req)
	second := NewBaseQuery(view, req)
	if err := composer.Compose(context.Background(), first, view, caller, req); err != nil {
		t.Fatalf("compose: %v", err)
	}
	if err := composer.Compose(context.Background(), second, view, caller, req); err != nil {
		t.Fatalf("compose: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("composing the same request twice produced different expressions")
	}
}
