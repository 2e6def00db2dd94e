package query

import (
	"testing"

	"github.com/portalkit/viewdata/internal/domain"
)

func TestParseSortExpression(t *testing.T) {
	orders := ParseSortExpression("title ASC,createdon DESC")
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
	if orders[0].Attribute != "title" || orders[0].Direction != domain.SortAscending {
		t.Fatalf("unexpected first order: %+v", orders[0])
	}
	if orders[1].Attribute != "createdon" || !orders[1].Descending() {
		t.Fatalf("unexpected second order: %+v", orders[1])
	}
}

func TestParseSortExpressionDefaultsAscending(t *testing.T) {
	orders := ParseSortExpression("title")
	if len(orders) != 1 || orders[0].Direction != domain.SortAscending {
		t.Fatalf("bare attribute should sort ascending: %+v", orders)
	}
}

func TestParseSortExpressionSkipsMalformedComponents(t *testing.T) {
	orders := ParseSortExpression("title ASC, , createdon SIDEWAYS, owner desc")
	if len(orders) != 2 {
		t.Fatalf("expected malformed components skipped, got %+v", orders)
	}
	if orders[1].Attribute != "owner" || !orders[1].Descending() {
		t.Fatalf("case-insensitive direction not parsed: %+v", orders[1])
	}
}

func TestParseSortExpressionEmpty(t *testing.T) {
	if orders := ParseSortExpression(""); len(orders) != 0 {
		t.Fatalf("empty expression should produce no orders: %+v", orders)
	}
}
