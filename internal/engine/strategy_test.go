package engine

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/portalkit/viewdata/internal/domain"
	"github.com/portalkit/viewdata/internal/store/memory"
)

func TestPriceListStrategyNoOpWithoutParameters(t *testing.T) {
	recordStore := memory.NewStore(100)
	registry := NewStrategyRegistry()
	view := domain.ViewConfig{Collection: "product"}
	deps := StrategyDependencies{Store: recordStore}

	q := domain.NewQueryExpression("product")
	applied, err := registry.Apply(context.Background(), view, deps, nil, q)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if applied {
		t.Fatalf("missing parameters must be a no-op, not an application")
	}
	if len(q.Joins) != 0 {
		t.Fatalf("no-op must not inject joins: %+v", q.Joins)
	}
	if calls := recordStore.ExecuteCalls(); calls != 0 {
		t.Fatalf("no-op must not hit the store, got %d calls", calls)
	}
}

func TestPriceListStrategyInjectsEligibilityJoin(t *testing.T) {
	recordStore := memory.NewStore(100)
	recordStore.AddMetadata(&domain.EntityMetadata{
		Collection:         "salesorder",
		PrimaryIDAttribute: "salesorderid",
		Attributes: map[string]domain.AttributeType{
			"pricelistid": domain.AttributeLookup,
		},
	})
	priceList := domain.Reference{ID: uuid.New(), Collection: "pricelevel", Name: "Retail"}
	parent := domain.Record{Collection: "salesorder", ID: uuid.New()}
	parent.Set("pricelistid", domain.LookupValue(priceList))
	recordStore.AddRecords(parent)

	registry := NewStrategyRegistry()
	view := domain.ViewConfig{Collection: "product"}
	deps := StrategyDependencies{Store: recordStore}
	params := map[string]string{
		"parentrecordid":   parent.ID.String(),
		"parentrecordtype": "salesorder",
	}

	q := domain.NewQueryExpression("product")
	applied, err := registry.Apply(context.Background(), view, deps, params, q)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !applied {
		t.Fatalf("strategy should apply with a resolvable parent")
	}
	if calls := recordStore.ExecuteCalls(); calls != 1 {
		t.Fatalf("parent resolution should cost exactly one store call, got %d", calls)
	}

	if len(q.Joins) != 1 {
		t.Fatalf("expected the price-list-item join, got %+v", q.Joins)
	}
	join := q.Joins[0]
	if join.Name != "pricelistitem" || join.Kind != domain.JoinInner || !join.IntersectOnly {
		t.Fatalf("join shape wrong: %+v", join)
	}
	condition := join.Filters[0].Conditions[0]
	if condition.Attribute != "pricelevelid" || condition.Value != priceList.ID {
		t.Fatalf("join must scope to the parent's price list: %+v", condition)
	}
}

func TestPriceListStrategyMissingParentFails(t *testing.T) {
	recordStore := memory.NewStore(100)
	recordStore.AddMetadata(&domain.EntityMetadata{
		Collection:         "salesorder",
		PrimaryIDAttribute: "salesorderid",
	})

	registry := NewStrategyRegistry()
	view := domain.ViewConfig{Collection: "product"}
	params := map[string]string{
		"parentrecordid":   uuid.NewString(),
		"parentrecordtype": "salesorder",
	}

	q := domain.NewQueryExpression("product")
	_, err := registry.Apply(context.Background(), view, StrategyDependencies{Store: recordStore}, params, q)
	if err == nil {
		t.Fatalf("an applicable strategy with a failing upstream lookup must error")
	}
}

func TestTimelineStrategyInjectsPartyJoin(t *testing.T) {
	registry := NewStrategyRegistry()
	view := domain.ViewConfig{Collection: "activitypointer"}
	regardingID := uuid.New()
	params := map[string]string{"regardingid": regardingID.String()}

	q := domain.NewQueryExpression("activitypointer")
	applied, err := registry.Apply(context.Background(), view, StrategyDependencies{}, params, q)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !applied {
		t.Fatalf("timeline strategy should apply when a regarding id is present")
	}
	if len(q.Joins) != 1 || q.Joins[0].Name != "activityparty" {
		t.Fatalf("expected the activity-party join: %+v", q.Joins)
	}
	condition := q.Joins[0].Filters[0].Conditions[0]
	if condition.Attribute != "partyid" || condition.Value != regardingID {
		t.Fatalf("party join must target the regarding record: %+v", condition)
	}
}

func TestRegistryIgnoresUnrelatedCollections(t *testing.T) {
	registry := NewStrategyRegistry()
	view := domain.ViewConfig{Collection: "incident"}

	q := domain.NewQueryExpression("incident")
	applied, err := registry.Apply(context.Background(), view, StrategyDependencies{}, map[string]string{"regardingid": uuid.NewString()}, q)
	if err != nil || applied {
		t.Fatalf("no strategy is registered for incident: applied=%v err=%v", applied, err)
	}
}
