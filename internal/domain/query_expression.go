package domain

// FilterKind combines child filters and conditions with a logical operator.
type FilterKind string

const (
	FilterAnd FilterKind = "and"
	FilterOr  FilterKind = "or"
)

// Operator enumerates condition operators understood by the record store.
type Operator string

const (
	OperatorEqual          Operator = "eq"
	OperatorNotEqual       Operator = "ne"
	OperatorBeginsWith     Operator = "begins-with"
	OperatorIn             Operator = "in"
	OperatorNull           Operator = "null"
	OperatorNotNull        Operator = "not-null"
	OperatorGreater        Operator = "gt"
	OperatorGreaterOrEqual Operator = "ge"
	OperatorLess           Operator = "lt"
	OperatorLessOrEqual    Operator = "le"
)

// Condition is a single attribute comparison. EntityAlias scopes the
// condition to a joined collection instead of the query target.
type Condition struct {
	Attribute   string   `json:"attribute"`
	Operator    Operator `json:"operator"`
	Value       any      `json:"value,omitempty"`
	Values      []any    `json:"values,omitempty"`
	EntityAlias string   `json:"entityAlias,omitempty"`
}

// Filter is a tagged tree of conditions grouped by a logical combinator.
type Filter struct {
	Kind       FilterKind  `json:"kind"`
	Conditions []Condition `json:"conditions,omitempty"`
	Filters    []*Filter   `json:"filters,omitempty"`
}

// Clone returns a deep copy with no shared nodes.
func (f *Filter) Clone() *Filter {
	if f == nil {
		return nil
	}
	clone := &Filter{Kind: f.Kind}
	if len(f.Conditions) > 0 {
		clone.Conditions = make([]Condition, len(f.Conditions))
		for i, c := range f.Conditions {
			clone.Conditions[i] = c.Clone()
		}
	}
	if len(f.Filters) > 0 {
		clone.Filters = make([]*Filter, len(f.Filters))
		for i, child := range f.Filters {
			clone.Filters[i] = child.Clone()
		}
	}
	return clone
}

// Clone copies the condition, including any value list.
func (c Condition) Clone() Condition {
	clone := c
	if len(c.Values) > 0 {
		clone.Values = make([]any, len(c.Values))
		copy(clone.Values, c.Values)
	}
	return clone
}

// JoinKind selects the join semantics for a linked collection.
type JoinKind string

const (
	JoinInner     JoinKind = "inner"
	JoinLeftOuter JoinKind = "left-outer"
)

// Join links a related collection into a query expression.
type Join struct {
	Name          string    `json:"name"`
	FromAttribute string    `json:"fromAttribute"`
	ToAttribute   string    `json:"toAttribute"`
	Kind          JoinKind  `json:"kind"`
	Alias         string    `json:"alias,omitempty"`
	IntersectOnly bool      `json:"intersectOnly,omitempty"`
	Joins         []*Join   `json:"joins,omitempty"`
	Filters       []*Filter `json:"filters,omitempty"`
}

// Clone returns a deep copy of the join subtree.
func (j *Join) Clone() *Join {
	if j == nil {
		return nil
	}
	clone := &Join{
		Name:          j.Name,
		FromAttribute: j.FromAttribute,
		ToAttribute:   j.ToAttribute,
		Kind:          j.Kind,
		Alias:         j.Alias,
		IntersectOnly: j.IntersectOnly,
	}
	if len(j.Joins) > 0 {
		clone.Joins = make([]*Join, len(j.Joins))
		for i, nested := range j.Joins {
			clone.Joins[i] = nested.Clone()
		}
	}
	if len(j.Filters) > 0 {
		clone.Filters = make([]*Filter, len(j.Filters))
		for i, f := range j.Filters {
			clone.Filters[i] = f.Clone()
		}
	}
	return clone
}

// QueryExpression is the composable representation of one prospective
// record-store query. It is mutated in place by the composer and trimmer
// pipeline and must never be shared across concurrently executing branches;
// each parallel branch owns a Clone.
type QueryExpression struct {
	Collection       string   `json:"collection"`
	Attributes       []string `json:"attributes,omitempty"`
	AllAttributes    bool     `json:"allAttributes,omitempty"`
	Filter           *Filter  `json:"filter,omitempty"`
	Joins            []*Join  `json:"joins,omitempty"`
	Orders           []Order  `json:"orders,omitempty"`
	Page             int      `json:"page,omitempty"`
	PageSize         int      `json:"pageSize,omitempty"`
	PagingCookie     string   `json:"pagingCookie,omitempty"`
	Distinct         bool     `json:"distinct,omitempty"`
	ReturnTotalCount bool     `json:"returnTotalCount,omitempty"`
}

// NewQueryExpression builds an empty query against a collection with a
// top-level And group ready to receive conditions.
func NewQueryExpression(collection string) *QueryExpression {
	return &QueryExpression{
		Collection: collection,
		Filter:     &Filter{Kind: FilterAnd},
	}
}

// Clone returns a deep copy sharing no mutable nodes with the receiver.
func (q *QueryExpression) Clone() *QueryExpression {
	if q == nil {
		return nil
	}
	clone := &QueryExpression{
		Collection:       q.Collection,
		AllAttributes:    q.AllAttributes,
		Filter:           q.Filter.Clone(),
		Page:             q.Page,
		PageSize:         q.PageSize,
		PagingCookie:     q.PagingCookie,
		Distinct:         q.Distinct,
		ReturnTotalCount: q.ReturnTotalCount,
	}
	if len(q.Attributes) > 0 {
		clone.Attributes = make([]string, len(q.Attributes))
		copy(clone.Attributes, q.Attributes)
	}
	if len(q.Joins) > 0 {
		clone.Joins = make([]*Join, len(q.Joins))
		for i, j := range q.Joins {
			clone.Joins[i] = j.Clone()
		}
	}
	if len(q.Orders) > 0 {
		clone.Orders = make([]Order, len(q.Orders))
		copy(clone.Orders, q.Orders)
	}
	return clone
}

func (q *QueryExpression) rootFilter() *Filter {
	if q.Filter == nil {
		q.Filter = &Filter{Kind: FilterAnd}
	}
	if q.Filter.Kind != FilterAnd {
		// Wrap a non-And root so added conditions never leak into an
		// unrelated Or group.
		q.Filter = &Filter{Kind: FilterAnd, Filters: []*Filter{q.Filter}}
	}
	return q.Filter
}

// AddCondition attaches a condition under the top-level And group.
func (q *QueryExpression) AddCondition(c Condition) {
	root := q.rootFilter()
	root.Conditions = append(root.Conditions, c)
}

// AddFilter attaches a filter subtree under the top-level And group,
// preserving the subtree's internal grouping.
func (q *QueryExpression) AddFilter(f *Filter) {
	if f == nil {
		return
	}
	root := q.rootFilter()
	root.Filters = append(root.Filters, f)
}

// AddJoin appends a join to the expression's link tree.
func (q *QueryExpression) AddJoin(j *Join) {
	if j == nil {
		return
	}
	q.Joins = append(q.Joins, j)
}

// AddAttribute includes an attribute in the projection if not already present.
func (q *QueryExpression) AddAttribute(attribute string) {
	if attribute == "" || q.AllAttributes {
		return
	}
	for _, existing := range q.Attributes {
		if existing == attribute {
			return
		}
	}
	q.Attributes = append(q.Attributes, attribute)
}

// AddOrder appends an order key and keeps the invariant that every ordered
// attribute is part of the projection.
func (q *QueryExpression) AddOrder(attribute string, direction SortDirection) {
	if attribute == "" {
		return
	}
	q.Orders = append(q.Orders, Order{Attribute: attribute, Direction: direction})
	q.AddAttribute(attribute)
}

// HasOrder reports whether the attribute already participates in ordering.
func (q *QueryExpression) HasOrder(attribute string) bool {
	for _, o := range q.Orders {
		if o.Attribute == attribute {
			return true
		}
	}
	return false
}
