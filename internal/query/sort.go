package query

import (
	"strings"

	"github.com/portalkit/viewdata/internal/domain"
)

// ParseSortExpression parses a "attr1 ASC,attr2 DESC" style sort expression
// into order keys. Malformed components are skipped so a bad sort parameter
// degrades the ordering instead of failing the page request.
func ParseSortExpression(expression string) []domain.Order {
	var orders []domain.Order
	for _, component := range strings.Split(expression, ",") {
		fields := strings.Fields(component)
		if len(fields) == 0 || len(fields) > 2 {
			continue
		}

		attribute := fields[0]
		direction := domain.SortAscending
		if len(fields) == 2 {
			switch strings.ToUpper(fields[1]) {
			case "ASC", "ASCENDING":
				direction = domain.SortAscending
			case "DESC", "DESCENDING":
				direction = domain.SortDescending
			default:
				continue
			}
		}

		orders = append(orders, domain.Order{Attribute: attribute, Direction: direction})
	}
	return orders
}
