package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/portalkit/viewdata/internal/domain"
	"github.com/portalkit/viewdata/internal/store"
)

// Store is an in-memory record store used by tests and the demo server. It
// implements the same black-box contract as the production adapters: filter
// evaluation, naive ordering, limit/offset paging with an opaque cookie, and
// a round-trip counter tests can assert against.
type Store struct {
	mu        sync.RWMutex
	pageLimit int
	records   map[string][]domain.Record
	metadata  map[string]*domain.EntityMetadata
	rules     map[string][]domain.AuthorizationRule

	executeCalls atomic.Int64
}

// NewStore builds an empty store with the given physical page limit.
func NewStore(pageLimit int) *Store {
	if pageLimit < 1 {
		pageLimit = 500
	}
	return &Store{
		pageLimit: pageLimit,
		records:   make(map[string][]domain.Record),
		metadata:  make(map[string]*domain.EntityMetadata),
		rules:     make(map[string][]domain.AuthorizationRule),
	}
}

// AddMetadata registers collection metadata.
func (s *Store) AddMetadata(meta *domain.EntityMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[meta.Collection] = meta
}

// AddRecords seeds records into their collections.
func (s *Store) AddRecords(records ...domain.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range records {
		s.records[record.Collection] = append(s.records[record.Collection], record)
	}
}

// SetRules fixes the authorization rules returned for a collection.
func (s *Store) SetRules(collection string, rules []domain.AuthorizationRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[collection] = rules
}

// ExecuteCalls reports how many Execute round-trips the store has served.
func (s *Store) ExecuteCalls() int64 {
	return s.executeCalls.Load()
}

// PageLimit implements store.RecordStore.
func (s *Store) PageLimit() int {
	return s.pageLimit
}

// EntityMetadata implements store.RecordStore.
func (s *Store) EntityMetadata(ctx context.Context, collection string) (*domain.EntityMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.metadata[collection]
	if !ok {
		return nil, fmt.Errorf("collection %s is not defined", collection)
	}
	return meta, nil
}

// AuthorizationRules implements store.RecordStore.
func (s *Store) AuthorizationRules(ctx context.Context, caller domain.CallerContext, collection string, right domain.Right) ([]domain.AuthorizationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rules := s.rules[collection]
	copied := make([]domain.AuthorizationRule, len(rules))
	copy(copied, rules)
	return copied, nil
}

// Execute implements store.RecordStore.
func (s *Store) Execute(ctx context.Context, q *domain.QueryExpression) (*store.ExecuteResult, error) {
	s.executeCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.Record
	for _, record := range s.records[q.Collection] {
		if !s.matchesFilter(record, q.Filter) {
			continue
		}
		if !s.matchesJoins(record, q.Joins) {
			continue
		}
		matched = append(matched, record)
	}

	sortRecords(matched, q.Orders)

	pageSize := q.PageSize
	if pageSize < 1 {
		pageSize = len(matched)
	}
	if pageSize > s.pageLimit {
		pageSize = s.pageLimit
	}

	offset := 0
	if q.PagingCookie != "" {
		parsed, err := strconv.Atoi(q.PagingCookie)
		if err != nil {
			return nil, fmt.Errorf("malformed paging cookie %q", q.PagingCookie)
		}
		offset = parsed
	} else if q.Page > 1 {
		offset = (q.Page - 1) * pageSize
	}
	if offset > len(matched) {
		offset = len(matched)
	}

	end := offset + pageSize
	if end > len(matched) {
		end = len(matched)
	}

	page := make([]domain.Record, end-offset)
	copy(page, matched[offset:end])

	return &store.ExecuteResult{
		Records:          page,
		PagingCookie:     strconv.Itoa(end),
		TotalRecordCount: len(matched),
		MoreRecords:      end < len(matched),
	}, nil
}

func (s *Store) matchesFilter(record domain.Record, filter *domain.Filter) bool {
	if filter == nil {
		return true
	}

	if filter.Kind == domain.FilterOr {
		if len(filter.Conditions) == 0 && len(filter.Filters) == 0 {
			return true
		}
		for _, condition := range filter.Conditions {
			if s.matchesCondition(record, condition) {
				return true
			}
		}
		for _, child := range filter.Filters {
			if s.matchesFilter(record, child) {
				return true
			}
		}
		return false
	}

	for _, condition := range filter.Conditions {
		if !s.matchesCondition(record, condition) {
			return false
		}
	}
	for _, child := range filter.Filters {
		if !s.matchesFilter(record, child) {
			return false
		}
	}
	return true
}

func (s *Store) matchesCondition(record domain.Record, condition domain.Condition) bool {
	value := s.attributeValue(record, condition.Attribute)

	switch condition.Operator {
	case domain.OperatorNull:
		return value.IsNull()
	case domain.OperatorNotNull:
		return !value.IsNull()
	case domain.OperatorEqual:
		return equalValues(value, condition.Value)
	case domain.OperatorNotEqual:
		return !value.IsNull() && !equalValues(value, condition.Value)
	case domain.OperatorBeginsWith:
		return strings.HasPrefix(strings.ToLower(value.Display()), strings.ToLower(domain.DisplayAny(condition.Value)))
	case domain.OperatorIn:
		for _, candidate := range condition.Values {
			if equalValues(value, candidate) {
				return true
			}
		}
		return false
	case domain.OperatorGreater, domain.OperatorGreaterOrEqual, domain.OperatorLess, domain.OperatorLessOrEqual:
		return compareOrdered(value, condition)
	}
	return false
}

// matchesJoins evaluates inner joins as existence checks against the joined
// collection; left-outer joins never restrict the base record.
func (s *Store) matchesJoins(record domain.Record, joins []*domain.Join) bool {
	for _, join := range joins {
		if join.Kind == domain.JoinLeftOuter {
			continue
		}
		if !s.joinMatches(record, join) {
			return false
		}
	}
	return true
}

func (s *Store) joinMatches(record domain.Record, join *domain.Join) bool {
	fromValue := joinValue(record, join.FromAttribute)
	for _, candidate := range s.records[join.Name] {
		if joinValue(candidate, join.ToAttribute) != fromValue {
			continue
		}
		filtersOK := true
		for _, filter := range join.Filters {
			if !s.matchesFilter(candidate, filter) {
				filtersOK = false
				break
			}
		}
		if !filtersOK {
			continue
		}
		if s.matchesJoins(candidate, join.Joins) {
			return true
		}
	}
	return false
}

// attributeValue resolves a condition attribute, mapping the collection's
// primary id attribute onto the record identifier.
func (s *Store) attributeValue(record domain.Record, attribute string) domain.Value {
	if meta, ok := s.metadata[record.Collection]; ok && attribute == meta.PrimaryIDAttribute {
		return domain.IDValue(record.ID)
	}
	return resolveAttribute(record, attribute)
}

// resolveAttribute returns the named value, resolving display-name shadow
// attributes ("statuscodename") against their base attribute.
func resolveAttribute(record domain.Record, attribute string) domain.Value {
	if value, ok := record.Get(attribute); ok {
		return value
	}
	if base, found := strings.CutSuffix(attribute, "name"); found {
		if value, ok := record.Get(base); ok && !value.IsNull() {
			return domain.StringValue(value.Display())
		}
	}
	return domain.Value{}
}

// joinValue renders the value used for join matching: references join on the
// referenced id, everything else on its display form.
func joinValue(record domain.Record, attribute string) string {
	value, ok := record.Get(attribute)
	if !ok {
		// Joining on the collection's own key attribute.
		return record.ID.String()
	}
	if reference, ok := value.AsReference(); ok {
		return reference.ID.String()
	}
	return value.Display()
}

// equalValues mirrors the production store's comparison semantics: references
// match on their id (or resolved name), choices on their code (or label),
// everything else on display text.
func equalValues(value domain.Value, raw any) bool {
	if value.IsNull() {
		return false
	}
	target := domain.DisplayAny(raw)
	if reference, ok := value.AsReference(); ok {
		return strings.EqualFold(reference.ID.String(), target) || strings.EqualFold(reference.Name, target)
	}
	if option, ok := value.AsOption(); ok {
		return strconv.Itoa(option.Code) == target || strings.EqualFold(option.Label, target)
	}
	return strings.EqualFold(value.Display(), target)
}

func compareOrdered(value domain.Value, condition domain.Condition) bool {
	if value.IsNull() {
		return false
	}

	var result int
	if t, ok := value.AsTime(); ok {
		other, isTime := condition.Value.(time.Time)
		if !isTime {
			return false
		}
		switch {
		case t.Before(other):
			result = -1
		case t.After(other):
			result = 1
		}
	} else if left, err := strconv.ParseFloat(value.Display(), 64); err == nil {
		right, err := strconv.ParseFloat(domain.DisplayAny(condition.Value), 64)
		if err != nil {
			return false
		}
		switch {
		case left < right:
			result = -1
		case left > right:
			result = 1
		}
	} else {
		result = strings.Compare(value.Display(), domain.DisplayAny(condition.Value))
	}

	switch condition.Operator {
	case domain.OperatorGreater:
		return result > 0
	case domain.OperatorGreaterOrEqual:
		return result >= 0
	case domain.OperatorLess:
		return result < 0
	case domain.OperatorLessOrEqual:
		return result <= 0
	}
	return false
}

// sortRecords applies the store's own naive ordering: numeric when both sides
// parse, plain string otherwise. The engine's merger re-sorts fan-out unions
// with the type-aware comparators, so this ordering only matters for
// single-query pages.
func sortRecords(records []domain.Record, orders []domain.Order) {
	if len(orders) == 0 {
		return
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, order := range orders {
			left := resolveAttribute(records[i], order.Attribute).Display()
			right := resolveAttribute(records[j], order.Attribute).Display()

			result := 0
			leftNum, leftErr := strconv.ParseFloat(left, 64)
			rightNum, rightErr := strconv.ParseFloat(right, 64)
			if leftErr == nil && rightErr == nil {
				switch {
				case leftNum < rightNum:
					result = -1
				case leftNum > rightNum:
					result = 1
				}
			} else {
				result = strings.Compare(left, right)
			}

			if result == 0 {
				continue
			}
			if order.Descending() {
				return result > 0
			}
			return result < 0
		}
		return records[i].ID.String() < records[j].ID.String()
	})
}
