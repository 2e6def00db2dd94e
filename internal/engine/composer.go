package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/portalkit/viewdata/internal/domain"
	"github.com/portalkit/viewdata/internal/query"
)

// MetadataResolver resolves collection metadata. Satisfied by the record
// store directly and by the batching loader in internal/metadata.
type MetadataResolver interface {
	EntityMetadata(ctx context.Context, collection string) (*domain.EntityMetadata, error)
}

// Composer folds the request-driven filter sources into a base query: the
// selectable user/account filter, the website filter, free-text search, the
// metadata facet filter and the related-record filter. Every source adds its
// conditions under the query's single top-level And group, so no source needs
// to know about the others.
type Composer struct {
	metadata MetadataResolver
	logger   zerolog.Logger
}

// NewComposer wires a composer to a metadata resolver.
func NewComposer(metadata MetadataResolver, logger zerolog.Logger) *Composer {
	return &Composer{metadata: metadata, logger: logger}
}

// NewBaseQuery seeds a query expression from the view definition and the page
// request: projection from the view columns, ordering from the request's sort
// expression (falling back to the view default), paging from the request.
func NewBaseQuery(view domain.ViewConfig, req domain.ViewRequest) *domain.QueryExpression {
	q := domain.NewQueryExpression(view.Collection)
	for _, attribute := range view.ColumnAttributes() {
		q.AddAttribute(attribute)
	}
	if view.BaseFilter != nil {
		q.AddFilter(view.BaseFilter.Clone())
	}

	orders := query.ParseSortExpression(req.Sort)
	if len(orders) == 0 {
		orders = view.DefaultOrders
	}
	for _, order := range orders {
		q.AddOrder(order.Attribute, order.Direction)
	}

	q.Page = req.Page
	if q.Page < 1 {
		q.Page = 1
	}
	q.PageSize = req.PageSize
	if q.PageSize < 1 {
		q.PageSize = view.DefaultPageSize
	}
	if q.PageSize < 1 {
		q.PageSize = 10
	}
	q.ReturnTotalCount = true
	return q
}

// Compose mutates the query in place. It performs no I/O beyond the one
// metadata lookup needed by the search and related-record filters.
func (c *Composer) Compose(ctx context.Context, q *domain.QueryExpression, view domain.ViewConfig, caller domain.CallerContext, req domain.ViewRequest) error {
	c.applySelectableFilter(q, view, caller, req.Filter)
	c.applyWebsiteFilter(q, view, caller)

	var meta *domain.EntityMetadata
	if (view.SearchEnabled && req.Search != "") || req.Regarding != nil {
		resolved, err := c.metadata.EntityMetadata(ctx, view.Collection)
		if err != nil {
			return fmt.Errorf("resolve %s metadata: %w", view.Collection, err)
		}
		meta = resolved
	}

	if view.SearchEnabled && req.Search != "" {
		c.applySearchFilter(q, view, meta, req.Search)
	}

	c.applyFacetFilter(q, view, req.MetaFilter)

	if err := c.applyRegardingFilter(q, view, meta, req); err != nil {
		return err
	}
	return nil
}

// applySelectableFilter adds the configured current-user or parent-account
// equality condition. When both are configured the request's filter key picks
// one, falling back to the user filter; a single configured filter applies
// unconditionally.
func (c *Composer) applySelectableFilter(q *domain.QueryExpression, view domain.ViewConfig, caller domain.CallerContext, key string) {
	hasUser := view.UserFilterAttribute != ""
	hasAccount := view.AccountFilterAttribute != ""

	useAccount := false
	switch {
	case !hasUser && !hasAccount:
		return
	case hasUser && hasAccount:
		useAccount = key == domain.SelectableFilterAccount
	case hasAccount:
		useAccount = true
	}

	if useAccount {
		q.AddCondition(domain.Condition{
			Attribute: view.AccountFilterAttribute,
			Operator:  domain.OperatorEqual,
			Value:     caller.AccountID,
		})
		return
	}
	q.AddCondition(domain.Condition{
		Attribute: view.UserFilterAttribute,
		Operator:  domain.OperatorEqual,
		Value:     caller.UserID,
	})
}

func (c *Composer) applyWebsiteFilter(q *domain.QueryExpression, view domain.ViewConfig, caller domain.CallerContext) {
	if view.WebsiteFilterAttribute == "" || caller.WebsiteID == uuid.Nil {
		return
	}
	q.AddCondition(domain.Condition{
		Attribute: view.WebsiteFilterAttribute,
		Operator:  domain.OperatorEqual,
		Value:     caller.WebsiteID,
	})
}

// applySearchFilter builds an Or group of per-column starts-with conditions.
// String columns compare directly; choice and reference columns compare
// against their display-name shadow attribute; typed columns require the term
// to parse into the column type and are skipped otherwise.
func (c *Composer) applySearchFilter(q *domain.QueryExpression, view domain.ViewConfig, meta *domain.EntityMetadata, term string) {
	group := &domain.Filter{Kind: domain.FilterOr}

	for _, attribute := range view.ColumnAttributes() {
		attributeType, known := meta.AttributeType(attribute)
		if !known {
			continue
		}

		switch attributeType {
		case domain.AttributeString, domain.AttributeMemo:
			group.Conditions = append(group.Conditions, domain.Condition{
				Attribute: attribute,
				Operator:  domain.OperatorBeginsWith,
				Value:     term,
			})

		case domain.AttributeLookup, domain.AttributeOwner, domain.AttributeCustomer,
			domain.AttributeBoolean, domain.AttributePicklist, domain.AttributeState, domain.AttributeStatus:
			group.Conditions = append(group.Conditions, domain.Condition{
				Attribute: attribute + "name",
				Operator:  domain.OperatorBeginsWith,
				Value:     term,
			})

		case domain.AttributeInteger, domain.AttributeBigInt:
			if parsed, ok := parseIntTerm(term); ok {
				group.Conditions = append(group.Conditions, domain.Condition{
					Attribute: attribute,
					Operator:  domain.OperatorEqual,
					Value:     parsed,
				})
			}

		case domain.AttributeDouble:
			if parsed, ok := parseFloatTerm(term); ok {
				group.Conditions = append(group.Conditions, domain.Condition{
					Attribute: attribute,
					Operator:  domain.OperatorEqual,
					Value:     parsed,
				})
			}

		case domain.AttributeDecimal, domain.AttributeMoney:
			if parsed, ok := parseDecimalTerm(term); ok {
				group.Conditions = append(group.Conditions, domain.Condition{
					Attribute: attribute,
					Operator:  domain.OperatorEqual,
					Value:     parsed,
				})
			}

		case domain.AttributeDateTime:
			if parsed, ok := parseTimeTerm(term); ok {
				group.Conditions = append(group.Conditions, domain.Condition{
					Attribute: attribute,
					Operator:  domain.OperatorEqual,
					Value:     parsed,
				})
			}

		case domain.AttributeUniqueID:
			if parsed, err := uuid.Parse(term); err == nil {
				group.Conditions = append(group.Conditions, domain.Condition{
					Attribute: attribute,
					Operator:  domain.OperatorEqual,
					Value:     parsed,
				})
			}
		}
	}

	if len(group.Conditions) == 0 {
		c.logger.Debug().Str("collection", view.Collection).Str("term", term).
			Msg("search term matched no searchable columns")
		return
	}
	q.AddFilter(group)
}

// applyFacetFilter copies the selected facets' condition/filter/join subtrees
// into the working query. Values that do not match the facet's declared input
// kind are skipped per item.
func (c *Composer) applyFacetFilter(q *domain.QueryExpression, view domain.ViewConfig, metaFilter string) {
	selection := query.ParseFacetQuery(metaFilter)
	if selection == nil || view.MetadataFilter == nil {
		return
	}

	for _, facet := range view.MetadataFilter.Facets {
		values, selected := selection.Selected(facet)
		if !selected {
			continue
		}

		switch facet.Input {
		case domain.FacetInputOptions:
			group := &domain.Filter{Kind: domain.FilterOr}
			for _, raw := range values {
				optionID, err := uuid.Parse(raw)
				if err != nil {
					continue
				}
				option, ok := facet.OptionByID(optionID)
				if !ok {
					continue
				}
				if option.Filter != nil {
					group.Filters = append(group.Filters, option.Filter.Clone())
				}
				if option.Join != nil {
					q.AddJoin(option.Join.Clone())
				}
			}
			if len(group.Filters) > 0 {
				q.AddFilter(group)
			}

		case domain.FacetInputText:
			group := &domain.Filter{Kind: domain.FilterOr}
			for _, value := range values {
				group.Conditions = append(group.Conditions, domain.Condition{
					Attribute: facet.Attribute,
					Operator:  domain.OperatorBeginsWith,
					Value:     value,
				})
			}
			q.AddFilter(group)

		case domain.FacetInputDynamic:
			operator := facet.Operator
			if operator == "" {
				operator = domain.OperatorEqual
			}
			group := &domain.Filter{Kind: domain.FilterOr}
			for _, value := range values {
				group.Conditions = append(group.Conditions, domain.Condition{
					Attribute: facet.Attribute,
					Operator:  operator,
					Value:     value,
				})
			}
			q.AddFilter(group)
		}
	}
}

// applyRegardingFilter resolves the named relationship (or the only
// relationship connecting the regarding record's collection to the view's
// collection) to its referencing attribute and filters on the target id.
// An unresolvable relationship is a view misconfiguration and fatal.
func (c *Composer) applyRegardingFilter(q *domain.QueryExpression, view domain.ViewConfig, meta *domain.EntityMetadata, req domain.ViewRequest) error {
	if req.Regarding == nil {
		return nil
	}

	var (
		rel   domain.Relationship
		found bool
	)
	if req.RelationshipName != "" {
		rel, found = meta.RelationshipByName(req.RelationshipName)
	} else {
		for _, candidate := range meta.Relationships {
			if candidate.ReferencedCollection == req.Regarding.Collection &&
				candidate.ReferencingCollection == view.Collection {
				rel = candidate
				found = true
				break
			}
		}
	}
	if !found {
		return fmt.Errorf("no relationship resolves the regarding filter from %s to %s", view.Collection, req.Regarding.Collection)
	}
	if rel.ReferencingCollection != view.Collection {
		return fmt.Errorf("relationship %s does not reference %s", rel.SchemaName, view.Collection)
	}

	q.AddCondition(domain.Condition{
		Attribute: rel.ReferencingAttribute,
		Operator:  domain.OperatorEqual,
		Value:     req.Regarding.ID,
	})
	return nil
}
