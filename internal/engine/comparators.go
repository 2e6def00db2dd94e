package engine

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/collate"

	"github.com/portalkit/viewdata/internal/domain"
)

// compareFunc orders two attribute values; negative means a sorts before b.
// Null values sort first under every comparator.
type compareFunc func(a, b domain.Value) int

// compareNulls handles the shared null cases. done is false when both values
// are present and the caller must compare payloads.
func compareNulls(a, b domain.Value) (int, bool) {
	switch {
	case a.IsNull() && b.IsNull():
		return 0, true
	case a.IsNull():
		return -1, true
	case b.IsNull():
		return 1, true
	}
	return 0, false
}

// comparatorFor selects the comparator matching an attribute's declared type.
// Unknown types fall back to display-text comparison.
func comparatorFor(t domain.AttributeType, collator *collate.Collator) compareFunc {
	switch t {
	case domain.AttributeString, domain.AttributeMemo:
		return func(a, b domain.Value) int {
			if result, done := compareNulls(a, b); done {
				return result
			}
			left, _ := a.AsString()
			right, _ := b.AsString()
			return collator.CompareString(left, right)
		}

	case domain.AttributeBoolean, domain.AttributePicklist, domain.AttributeState, domain.AttributeStatus:
		// Choice values order by localized label, not numeric code. The raw
		// code string stands in when no label resolves.
		return func(a, b domain.Value) int {
			if result, done := compareNulls(a, b); done {
				return result
			}
			return collator.CompareString(optionSortKey(a), optionSortKey(b))
		}

	case domain.AttributeLookup, domain.AttributeOwner, domain.AttributeCustomer:
		return func(a, b domain.Value) int {
			if result, done := compareNulls(a, b); done {
				return result
			}
			left, _ := a.AsReference()
			right, _ := b.AsReference()
			return collator.CompareString(left.Name, right.Name)
		}

	case domain.AttributeInteger, domain.AttributeBigInt:
		return func(a, b domain.Value) int {
			if result, done := compareNulls(a, b); done {
				return result
			}
			left, _ := a.AsInt()
			right, _ := b.AsInt()
			switch {
			case left < right:
				return -1
			case left > right:
				return 1
			}
			return 0
		}

	case domain.AttributeDouble:
		return func(a, b domain.Value) int {
			if result, done := compareNulls(a, b); done {
				return result
			}
			left, _ := a.AsFloat()
			right, _ := b.AsFloat()
			switch {
			case left < right:
				return -1
			case left > right:
				return 1
			}
			return 0
		}

	case domain.AttributeDecimal, domain.AttributeMoney:
		return func(a, b domain.Value) int {
			if result, done := compareNulls(a, b); done {
				return result
			}
			left, lok := a.AsDecimal()
			right, rok := b.AsDecimal()
			if !lok || !rok {
				return 0
			}
			return left.Cmp(right)
		}

	case domain.AttributeDateTime:
		return func(a, b domain.Value) int {
			if result, done := compareNulls(a, b); done {
				return result
			}
			left, _ := a.AsTime()
			right, _ := b.AsTime()
			switch {
			case left.Before(right):
				return -1
			case left.After(right):
				return 1
			}
			return 0
		}

	case domain.AttributeUniqueID:
		return func(a, b domain.Value) int {
			if result, done := compareNulls(a, b); done {
				return result
			}
			left, _ := a.AsID()
			right, _ := b.AsID()
			return compareStoreIdentifiers(left, right)
		}
	}

	return func(a, b domain.Value) int {
		if result, done := compareNulls(a, b); done {
			return result
		}
		return collator.CompareString(a.Display(), b.Display())
	}
}

func optionSortKey(v domain.Value) string {
	option, ok := v.AsOption()
	if !ok {
		return v.Display()
	}
	if option.Label != "" {
		return option.Label
	}
	return strconv.Itoa(option.Code)
}

// storeIdentifierByteOrder is the group order the record store's SQL engine
// uses to collate unique identifiers: the trailing six bytes first, then each
// shorter group, the leading four bytes last.
var storeIdentifierByteOrder = [16]int{10, 11, 12, 13, 14, 15, 8, 9, 6, 7, 4, 5, 0, 1, 2, 3}

// compareStoreIdentifiers matches the store's native identifier collation,
// which differs from plain byte or string order.
func compareStoreIdentifiers(a, b uuid.UUID) int {
	for _, i := range storeIdentifierByteOrder {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

// parse helpers shared by the search composer.

func parseIntTerm(term string) (int64, bool) {
	i, err := strconv.ParseInt(term, 10, 64)
	return i, err == nil
}

func parseFloatTerm(term string) (float64, bool) {
	f, err := strconv.ParseFloat(term, 64)
	return f, err == nil
}

func parseDecimalTerm(term string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(term)
	return d, err == nil
}

func parseTimeTerm(term string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, term); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
