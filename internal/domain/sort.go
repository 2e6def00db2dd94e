package domain

// SortDirection represents ordering direction for sortable attributes.
type SortDirection string

const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

// Order captures one key of a query's order-by list.
type Order struct {
	Attribute string        `json:"attribute"`
	Direction SortDirection `json:"direction"`
}

// Descending reports whether the key sorts in reverse.
func (o Order) Descending() bool {
	return o.Direction == SortDescending
}
