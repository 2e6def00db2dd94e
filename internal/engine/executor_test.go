package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/portalkit/viewdata/internal/domain"
	"github.com/portalkit/viewdata/internal/store/memory"
)

func seedContacts(recordStore *memory.Store, count int) {
	for i := 0; i < count; i++ {
		record := domain.Record{Collection: "contact", ID: sequentialID(i)}
		record.Set("fullname", domain.StringValue(fmt.Sprintf("contact-%04d", i)))
		recordStore.AddRecords(record)
	}
}

func sequentialID(i int) uuid.UUID {
	var id uuid.UUID
	id[6] = 0x40 // version nibble keeps the value a plausible identifier
	id[8] = 0x80
	id[14] = byte(i >> 8)
	id[15] = byte(i)
	return id
}

func TestExecuteSingleTripWithinStoreLimit(t *testing.T) {
	recordStore := memory.NewStore(50)
	seedContacts(recordStore, 80)
	executor := NewExecutor(recordStore, zerolog.Nop())

	q := domain.NewQueryExpression("contact")
	q.Page = 1
	q.PageSize = 25
	q.AddOrder("fullname", domain.SortAscending)

	result, err := executor.Execute(context.Background(), q)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(result.Records) != 25 {
		t.Fatalf("got %d records, want 25", len(result.Records))
	}
	if calls := recordStore.ExecuteCalls(); calls != 1 {
		t.Fatalf("store calls = %d, want 1", calls)
	}
	if !result.MoreRecords {
		t.Fatalf("80 matching records should report more after 25")
	}
}

func TestExecuteReconcilesOversizedPage(t *testing.T) {
	recordStore := memory.NewStore(50)
	seedContacts(recordStore, 260)
	executor := NewExecutor(recordStore, zerolog.Nop())

	q := domain.NewQueryExpression("contact")
	q.Page = 1
	q.PageSize = 250
	q.AddOrder("fullname", domain.SortAscending)

	result, err := executor.Execute(context.Background(), q)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(result.Records) != 250 {
		t.Fatalf("got %d records, want 250", len(result.Records))
	}
	if calls := recordStore.ExecuteCalls(); calls != 5 {
		t.Fatalf("store calls = %d, want ceil(250/50)=5", calls)
	}
	if result.TotalCount != 260 {
		t.Fatalf("TotalCount = %d, want 260", result.TotalCount)
	}
	if !result.MoreRecords {
		t.Fatalf("expected more records beyond the reconciled page")
	}

	first := result.Records[0].Attributes["fullname"].Display()
	last := result.Records[249].Attributes["fullname"].Display()
	if first != "contact-0000" || last != "contact-0249" {
		t.Fatalf("page boundaries wrong: first=%s last=%s", first, last)
	}
}

func TestExecuteSecondLogicalPage(t *testing.T) {
	recordStore := memory.NewStore(50)
	seedContacts(recordStore, 260)
	executor := NewExecutor(recordStore, zerolog.Nop())

	q := domain.NewQueryExpression("contact")
	q.Page = 2
	q.PageSize = 250
	q.AddOrder("fullname", domain.SortAscending)

	result, err := executor.Execute(context.Background(), q)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(result.Records) != 10 {
		t.Fatalf("got %d records, want the 10 remaining", len(result.Records))
	}
	if result.Records[0].Attributes["fullname"].Display() != "contact-0250" {
		t.Fatalf("second logical page starts at %s", result.Records[0].Attributes["fullname"].Display())
	}
	if result.MoreRecords {
		t.Fatalf("final page should not report more records")
	}
}

func TestExecutePageSizeNotMultipleOfStoreLimit(t *testing.T) {
	// 80 records per logical page against a 50-record store limit: logical
	// page 2 starts mid-way through physical page 2, so the walk must skip
	// the in-page prefix instead of jumping to a physical boundary.
	recordStore := memory.NewStore(50)
	seedContacts(recordStore, 200)
	executor := NewExecutor(recordStore, zerolog.Nop())

	q := domain.NewQueryExpression("contact")
	q.Page = 2
	q.PageSize = 80
	q.AddOrder("fullname", domain.SortAscending)

	result, err := executor.Execute(context.Background(), q)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(result.Records) != 80 {
		t.Fatalf("got %d records, want 80", len(result.Records))
	}
	first := result.Records[0].Attributes["fullname"].Display()
	last := result.Records[79].Attributes["fullname"].Display()
	if first != "contact-0080" || last != "contact-0159" {
		t.Fatalf("page 2 window wrong: first=%s last=%s", first, last)
	}
	if !result.MoreRecords {
		t.Fatalf("40 records remain beyond page 2")
	}
}

func TestExecuteNonAlignedFinalPage(t *testing.T) {
	recordStore := memory.NewStore(50)
	seedContacts(recordStore, 200)
	executor := NewExecutor(recordStore, zerolog.Nop())

	q := domain.NewQueryExpression("contact")
	q.Page = 3
	q.PageSize = 80
	q.AddOrder("fullname", domain.SortAscending)

	result, err := executor.Execute(context.Background(), q)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(result.Records) != 40 {
		t.Fatalf("got %d records, want the 40 remaining", len(result.Records))
	}
	if first := result.Records[0].Attributes["fullname"].Display(); first != "contact-0160" {
		t.Fatalf("final page starts at %s, want contact-0160", first)
	}
	if calls := recordStore.ExecuteCalls(); calls != 1 {
		t.Fatalf("store calls = %d, want 1 (window fits one physical page)", calls)
	}
	if result.MoreRecords {
		t.Fatalf("final page should not report more records")
	}
}

func TestExecuteStopsEarlyWhenStoreRunsOut(t *testing.T) {
	recordStore := memory.NewStore(50)
	seedContacts(recordStore, 60)
	executor := NewExecutor(recordStore, zerolog.Nop())

	q := domain.NewQueryExpression("contact")
	q.Page = 1
	q.PageSize = 250
	q.AddOrder("fullname", domain.SortAscending)

	result, err := executor.Execute(context.Background(), q)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(result.Records) != 60 {
		t.Fatalf("got %d records, want all 60", len(result.Records))
	}
	if calls := recordStore.ExecuteCalls(); calls != 2 {
		t.Fatalf("store calls = %d, want 2 (stop at exhausted store)", calls)
	}
	if result.MoreRecords {
		t.Fatalf("exhausted result should not report more records")
	}
}
