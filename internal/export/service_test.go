package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/portalkit/viewdata/internal/domain"
)

type pagedFetcher struct {
	records []domain.Record
	denied  bool
	pages   int
}

func (f *pagedFetcher) Fetch(ctx context.Context, view domain.ViewConfig, caller domain.CallerContext, req domain.ViewRequest) (*domain.FetchResult, error) {
	f.pages++
	if f.denied {
		return domain.DeniedResult(), nil
	}

	start := (req.Page - 1) * req.PageSize
	if start > len(f.records) {
		start = len(f.records)
	}
	end := start + req.PageSize
	if end > len(f.records) {
		end = len(f.records)
	}
	return &domain.FetchResult{
		Records:     f.records[start:end],
		TotalCount:  len(f.records),
		MoreRecords: end < len(f.records),
	}, nil
}

func exportView() *domain.ViewConfig {
	return &domain.ViewConfig{
		Collection: "incident",
		Columns: []domain.ViewColumn{
			{Attribute: "title", Label: "Title"},
			{Attribute: "statuscode", Label: "Status"},
		},
	}
}

func exportRecords(count int) []domain.Record {
	records := make([]domain.Record, 0, count)
	for i := 0; i < count; i++ {
		record := domain.Record{Collection: "incident", ID: uuid.New()}
		record.Set("title", domain.StringValue(fmt.Sprintf("ticket-%02d", i)))
		record.Set("statuscode", domain.StatusValue(1, "Open"))
		records = append(records, record)
	}
	return records
}

func TestExportCSVPagesUntilExhausted(t *testing.T) {
	fetcher := &pagedFetcher{records: exportRecords(12)}
	service := NewService(fetcher, WithPageSize(5))

	var buffer bytes.Buffer
	rows, err := service.Export(context.Background(), &buffer, FormatCSV, exportView(), domain.CallerContext{UserID: uuid.New()}, domain.ViewRequest{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if rows != 12 {
		t.Fatalf("rows = %d, want 12", rows)
	}
	if fetcher.pages != 3 {
		t.Fatalf("engine round-trips = %d, want 3 pages of 5", fetcher.pages)
	}

	parsed, err := csv.NewReader(&buffer).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(parsed) != 13 {
		t.Fatalf("csv rows = %d, want header plus 12", len(parsed))
	}
	if parsed[0][0] != "Title" || parsed[0][1] != "Status" {
		t.Fatalf("header uses column labels, got %v", parsed[0])
	}
	if parsed[1][0] != "ticket-00" || parsed[1][1] != "Open" {
		t.Fatalf("first data row wrong: %v", parsed[1])
	}
}

func TestExportStopsAtRowLimit(t *testing.T) {
	fetcher := &pagedFetcher{records: exportRecords(12)}
	service := NewService(fetcher, WithPageSize(5), WithRowLimit(7))

	var buffer bytes.Buffer
	rows, err := service.Export(context.Background(), &buffer, FormatCSV, exportView(), domain.CallerContext{UserID: uuid.New()}, domain.ViewRequest{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if rows != 7 {
		t.Fatalf("rows = %d, want the configured cap", rows)
	}
}

func TestExportDeniedCaller(t *testing.T) {
	fetcher := &pagedFetcher{denied: true}
	service := NewService(fetcher)

	var buffer bytes.Buffer
	if _, err := service.Export(context.Background(), &buffer, FormatCSV, exportView(), domain.CallerContext{}, domain.ViewRequest{}); err == nil {
		t.Fatalf("denied caller must fail the export")
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	service := NewService(&pagedFetcher{})
	var buffer bytes.Buffer
	if _, err := service.Export(context.Background(), &buffer, Format("pdf"), exportView(), domain.CallerContext{}, domain.ViewRequest{}); err == nil {
		t.Fatalf("unsupported format must fail")
	}
}

func TestExportExcelWritesWorkbook(t *testing.T) {
	fetcher := &pagedFetcher{records: exportRecords(3)}
	service := NewService(fetcher)

	var buffer bytes.Buffer
	rows, err := service.Export(context.Background(), &buffer, FormatExcel, exportView(), domain.CallerContext{UserID: uuid.New()}, domain.ViewRequest{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if rows != 3 {
		t.Fatalf("rows = %d, want 3", rows)
	}
	if buffer.Len() == 0 {
		t.Fatalf("workbook output is empty")
	}
	// XLSX files are zip archives.
	if !bytes.HasPrefix(buffer.Bytes(), []byte("PK")) {
		t.Fatalf("output is not a zip container")
	}
}
