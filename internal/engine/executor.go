package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/portalkit/viewdata/internal/domain"
	"github.com/portalkit/viewdata/internal/store"
)

// Executor runs one query expression against the record store and assembles
// one logical page, issuing follow-up round-trips when the requested page size
// exceeds the store's physical page limit.
type Executor struct {
	store  store.RecordStore
	logger zerolog.Logger
}

// NewExecutor wires an executor to a record store.
func NewExecutor(recordStore store.RecordStore, logger zerolog.Logger) *Executor {
	return &Executor{store: recordStore, logger: logger}
}

// Execute fetches the page described by the query. Store faults are not
// retried; they surface as fatal errors for the page request.
func (e *Executor) Execute(ctx context.Context, q *domain.QueryExpression) (*domain.FetchResult, error) {
	limit := e.store.PageLimit()
	requested := q.PageSize
	if requested <= 0 || requested <= limit {
		result, err := e.store.Execute(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("execute %s query: %w", q.Collection, err)
		}
		q.PagingCookie = result.PagingCookie
		return &domain.FetchResult{
			Records:     result.Records,
			TotalCount:  result.TotalRecordCount,
			MoreRecords: result.MoreRecords,
		}, nil
	}

	return e.executePaged(ctx, q, requested, limit)
}

// executePaged reconciles a requested page larger than the store's limit by
// walking physical pages with the continuation cookie. The logical page's
// record window starts at (page-1)*requested records, which rarely lands on a
// physical page boundary, so the walk may skip a prefix of its first physical
// page. It issues the minimum number of round-trips covering the window,
// ceil(requested/limit) or one more when the window straddles a boundary.
func (e *Executor) executePaged(ctx context.Context, q *domain.QueryExpression, requested, limit int) (*domain.FetchResult, error) {
	logicalPage := q.Page
	if logicalPage < 1 {
		logicalPage = 1
	}
	offset := (logicalPage - 1) * requested
	firstPhysical := offset/limit + 1
	skip := offset % limit
	trips := (skip + requested + limit - 1) / limit

	working := q.Clone()
	working.PageSize = limit
	working.PagingCookie = q.PagingCookie

	accumulated := make([]domain.Record, 0, requested)
	totalCount := 0
	moreRecords := false

	for trip := 0; trip < trips; trip++ {
		working.Page = firstPhysical + trip

		result, err := e.store.Execute(ctx, working)
		if err != nil {
			return nil, fmt.Errorf("execute %s query (page %d): %w", q.Collection, working.Page, err)
		}

		records := result.Records
		if trip == 0 && skip > 0 {
			if skip >= len(records) {
				records = nil
			} else {
				records = records[skip:]
			}
		}
		accumulated = append(accumulated, records...)
		working.PagingCookie = result.PagingCookie
		totalCount = result.TotalRecordCount
		moreRecords = result.MoreRecords

		if len(accumulated) >= requested || !result.MoreRecords {
			break
		}
	}

	if len(accumulated) > requested {
		moreRecords = true
		accumulated = accumulated[:requested]
	}

	q.PagingCookie = working.PagingCookie
	e.logger.Debug().
		Str("collection", q.Collection).
		Int("requested", requested).
		Int("fetched", len(accumulated)).
		Msg("reconciled oversized page")

	return &domain.FetchResult{
		Records:     accumulated,
		TotalCount:  totalCount,
		MoreRecords: moreRecords,
	}, nil
}
