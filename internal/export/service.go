package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/portalkit/viewdata/internal/domain"
)

// Format selects the export file format.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatExcel Format = "xlsx"
)

// Fetcher is the view engine the exporter pages through. The engine applies
// the same composition and trimming as the grid, so an export can never leak
// rows the caller would not see on screen.
type Fetcher interface {
	Fetch(ctx context.Context, view domain.ViewConfig, caller domain.CallerContext, req domain.ViewRequest) (*domain.FetchResult, error)
}

// Service streams view pages into downloadable files.
type Service struct {
	fetcher  Fetcher
	pageSize int
	rowLimit int
	now      func() time.Time
}

type Option func(*Service)

// WithPageSize sets how many records each engine round-trip requests.
func WithPageSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// WithRowLimit caps the total rows written to one export file.
func WithRowLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.rowLimit = limit
		}
	}
}

func NewService(fetcher Fetcher, opts ...Option) *Service {
	service := &Service{
		fetcher:  fetcher,
		pageSize: 500,
		rowLimit: 50000,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// FileName derives the download file name for a view export.
func (s *Service) FileName(view *domain.ViewConfig, format Format) string {
	base := sanitizeFileComponent(view.Collection)
	if base == "" {
		base = "export"
	}
	return fmt.Sprintf("%s-%s.%s", base, s.now().Format("20060102-150405"), format)
}

// Export pages through the view and writes every visible row to w. The
// request's search, sort and filter state carry over, so the file matches what
// the caller's grid shows.
func (s *Service) Export(ctx context.Context, w io.Writer, format Format, view *domain.ViewConfig, caller domain.CallerContext, req domain.ViewRequest) (int, error) {
	switch format {
	case FormatCSV:
		return s.exportCSV(ctx, w, view, caller, req)
	case FormatExcel:
		return s.exportExcel(ctx, w, view, caller, req)
	default:
		return 0, fmt.Errorf("unsupported export format %q", format)
	}
}

func (s *Service) exportCSV(ctx context.Context, w io.Writer, view *domain.ViewConfig, caller domain.CallerContext, req domain.ViewRequest) (int, error) {
	writer := csv.NewWriter(w)

	if err := writer.Write(columnHeaders(view)); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	rows := 0
	err := s.eachRecord(ctx, view, caller, req, func(record domain.Record) error {
		row := make([]string, len(view.Columns))
		for i, column := range view.Columns {
			row[i] = cellValue(record, column.Attribute)
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
		rows++
		return nil
	})
	if err != nil {
		return rows, err
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return rows, fmt.Errorf("flush export: %w", err)
	}
	return rows, nil
}

func (s *Service) exportExcel(ctx context.Context, w io.Writer, view *domain.ViewConfig, caller domain.CallerContext, req domain.ViewRequest) (int, error) {
	workbook := excelize.NewFile()
	defer workbook.Close()

	sheet := workbook.GetSheetName(0)
	stream, err := workbook.NewStreamWriter(sheet)
	if err != nil {
		return 0, fmt.Errorf("open stream writer: %w", err)
	}

	headers := columnHeaders(view)
	headerRow := make([]any, len(headers))
	for i, header := range headers {
		headerRow[i] = excelize.Cell{Value: header, StyleID: 0}
	}
	if err := stream.SetRow("A1", headerRow); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	rows := 0
	err = s.eachRecord(ctx, view, caller, req, func(record domain.Record) error {
		row := make([]any, len(view.Columns))
		for i, column := range view.Columns {
			row[i] = cellValue(record, column.Attribute)
		}
		cell, addrErr := excelize.CoordinatesToCellName(1, rows+2)
		if addrErr != nil {
			return fmt.Errorf("address row %d: %w", rows+2, addrErr)
		}
		if err := stream.SetRow(cell, row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
		rows++
		return nil
	})
	if err != nil {
		return rows, err
	}

	if err := stream.Flush(); err != nil {
		return rows, fmt.Errorf("flush sheet: %w", err)
	}
	if err := workbook.Write(w); err != nil {
		return rows, fmt.Errorf("write workbook: %w", err)
	}
	return rows, nil
}

// eachRecord pages through the full result set, re-issuing the request with
// an advancing page number until the engine reports no more records.
func (s *Service) eachRecord(ctx context.Context, view *domain.ViewConfig, caller domain.CallerContext, req domain.ViewRequest, visit func(domain.Record) error) error {
	pageReq := req
	pageReq.Page = 1
	pageReq.PageSize = s.pageSize

	written := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := s.fetcher.Fetch(ctx, *view, caller, pageReq)
		if err != nil {
			return fmt.Errorf("fetch export page %d: %w", pageReq.Page, err)
		}
		if result.AuthorizationDenied {
			return errors.New("caller is not permitted to read this view")
		}

		for _, record := range result.Records {
			if written >= s.rowLimit {
				return nil
			}
			if err := visit(record); err != nil {
				return err
			}
			written++
		}

		if !result.MoreRecords || len(result.Records) == 0 {
			return nil
		}
		pageReq.Page++
	}
}

func columnHeaders(view *domain.ViewConfig) []string {
	headers := make([]string, len(view.Columns))
	for i, column := range view.Columns {
		if column.Label != "" {
			headers[i] = column.Label
		} else {
			headers[i] = column.Attribute
		}
	}
	return headers
}

func cellValue(record domain.Record, attribute string) string {
	if value, ok := record.Get(attribute); ok {
		return value.Display()
	}
	if attribute == "" {
		return record.ID.String()
	}
	return ""
}

func sanitizeFileComponent(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-' || r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	return strings.Trim(builder.String(), "-")
}
