package engine

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/portalkit/viewdata/internal/domain"
)

// Merger reconciles the results of fan-out sub-queries into one logical page:
// concatenate, deduplicate by record identity, re-sort with a type-aware
// comparator chain, then slice out the requested page.
type Merger struct {
	collator *collate.Collator
}

// NewMerger builds a merger whose string comparisons follow the given locale.
func NewMerger(tag language.Tag) *Merger {
	return &Merger{collator: collate.New(tag)}
}

// Merge combines sub-query results into the requested page. Attribute types
// for the order keys come from the collection's metadata; attributes with no
// declared type compare as display text.
func (m *Merger) Merge(results []*domain.FetchResult, orders []domain.Order, meta *domain.EntityMetadata, page, pageSize int) *domain.FetchResult {
	union := make([]domain.Record, 0)
	seen := make(map[string]struct{})
	for _, result := range results {
		if result == nil {
			continue
		}
		for _, record := range result.Records {
			identity := record.Identity()
			if _, dup := seen[identity]; dup {
				continue
			}
			seen[identity] = struct{}{}
			union = append(union, record)
		}
	}

	m.sortRecords(union, orders, meta)

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = len(union)
	}

	start := (page - 1) * pageSize
	if start > len(union) {
		start = len(union)
	}
	end := start + pageSize
	if end > len(union) {
		end = len(union)
	}

	return &domain.FetchResult{
		Records:     union[start:end],
		TotalCount:  len(union),
		MoreRecords: len(union) > page*pageSize,
	}
}

// sortRecords applies the declared order keys left to right, appending the
// store-identifier tie-break so equal records always land in a stable order.
func (m *Merger) sortRecords(records []domain.Record, orders []domain.Order, meta *domain.EntityMetadata) {
	type sortKey struct {
		attribute  string
		descending bool
		compare    compareFunc
	}

	keys := make([]sortKey, 0, len(orders))
	for _, order := range orders {
		attributeType := domain.AttributeString
		if declared, ok := meta.AttributeType(order.Attribute); ok {
			attributeType = declared
		}
		keys = append(keys, sortKey{
			attribute:  order.Attribute,
			descending: order.Descending(),
			compare:    comparatorFor(attributeType, m.collator),
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		left, right := records[i], records[j]
		for _, key := range keys {
			leftValue, _ := left.Get(key.attribute)
			rightValue, _ := right.Get(key.attribute)
			result := key.compare(leftValue, rightValue)
			if result == 0 {
				continue
			}
			if key.descending {
				return result > 0
			}
			return result < 0
		}
		return compareStoreIdentifiers(left.ID, right.ID) < 0
	})
}
