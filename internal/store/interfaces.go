package store

import (
	"context"

	"github.com/portalkit/viewdata/internal/domain"
)

// ExecuteResult is one raw record-store round-trip: a batch of records plus
// the paging state needed to resume the result set.
type ExecuteResult struct {
	Records          []domain.Record
	PagingCookie     string
	TotalRecordCount int
	MoreRecords      bool
}

// RecordStore defines the record-store collaborator the engine composes
// queries for. Implementations must be safe for concurrent independent calls;
// the fan-out path executes sub-queries in parallel against one store.
type RecordStore interface {
	// Execute runs one query expression and returns a single physical page.
	Execute(ctx context.Context, q *domain.QueryExpression) (*ExecuteResult, error)

	// EntityMetadata resolves attribute types and relationship definitions
	// for a collection.
	EntityMetadata(ctx context.Context, collection string) (*domain.EntityMetadata, error)

	// AuthorizationRules resolves the caller's access grant over a collection
	// into its disjuncts. An empty result with no global rule means denied.
	AuthorizationRules(ctx context.Context, caller domain.CallerContext, collection string, right domain.Right) ([]domain.AuthorizationRule, error)

	// PageLimit returns the store's maximum physical page size.
	PageLimit() int
}
