package domain

import (
	"github.com/google/uuid"
)

// ViewColumn is one column of a view's result projection.
type ViewColumn struct {
	Attribute string `json:"attribute"`
	Label     string `json:"label,omitempty"`
	Width     int    `json:"width,omitempty"`
}

// FacetInput distinguishes how a facet's selected values are interpreted.
type FacetInput string

const (
	// FacetInputOptions selects from a fixed option set by facet option id.
	FacetInputOptions FacetInput = "options"
	// FacetInputText matches a free-text prefix against the facet attribute.
	FacetInputText FacetInput = "text"
	// FacetInputDynamic substitutes the raw request value into the facet
	// condition.
	FacetInputDynamic FacetInput = "dynamic"
)

// FacetOption is one selectable value of an options facet. The filter subtree
// is copied into the working query when the option is selected.
type FacetOption struct {
	ID     uuid.UUID `json:"id"`
	Filter *Filter   `json:"filter,omitempty"`
	Join   *Join     `json:"join,omitempty"`
}

// FacetDefinition is one named, independently toggleable filter fragment of a
// view's metadata filter.
type FacetDefinition struct {
	ID        uuid.UUID     `json:"id"`
	Input     FacetInput    `json:"input"`
	Attribute string        `json:"attribute,omitempty"`
	Operator  Operator      `json:"operator,omitempty"`
	Options   []FacetOption `json:"options,omitempty"`
}

// OptionByID resolves a facet option by id.
func (f FacetDefinition) OptionByID(id uuid.UUID) (FacetOption, bool) {
	for _, option := range f.Options {
		if option.ID == id {
			return option, true
		}
	}
	return FacetOption{}, false
}

// MetadataFilter is the facet template attached to a view definition.
type MetadataFilter struct {
	Facets []FacetDefinition `json:"facets,omitempty"`
}

// ViewConfig is the declarative view definition the engine renders pages for.
type ViewConfig struct {
	Collection              string          `json:"collection"`
	Columns                 []ViewColumn    `json:"columns"`
	BaseFilter              *Filter         `json:"baseFilter,omitempty"`
	DefaultOrders           []Order         `json:"defaultOrders,omitempty"`
	UserFilterAttribute     string          `json:"userFilterAttribute,omitempty"`
	AccountFilterAttribute  string          `json:"accountFilterAttribute,omitempty"`
	WebsiteFilterAttribute  string          `json:"websiteFilterAttribute,omitempty"`
	SearchEnabled           bool            `json:"searchEnabled,omitempty"`
	DefaultPageSize         int             `json:"defaultPageSize,omitempty"`
	MetadataFilter          *MetadataFilter `json:"metadataFilter,omitempty"`
	EnableEntityPermissions bool            `json:"enableEntityPermissions,omitempty"`
}

// ColumnAttributes returns the projection attribute names in column order.
func (v ViewConfig) ColumnAttributes() []string {
	attributes := make([]string, 0, len(v.Columns))
	for _, column := range v.Columns {
		attributes = append(attributes, column.Attribute)
	}
	return attributes
}

// SelectableFilter names which configured equality filter the caller asked for.
const (
	SelectableFilterUser    = "user"
	SelectableFilterAccount = "account"
)

// CallerContext identifies the caller a page is being rendered for. AccountID
// is the caller's parent account when the identity collaborator can resolve
// one.
type CallerContext struct {
	UserID    uuid.UUID `json:"userId"`
	AccountID uuid.UUID `json:"accountId,omitempty"`
	WebsiteID uuid.UUID `json:"websiteId,omitempty"`
	Roles     []string  `json:"roles,omitempty"`
}

// ViewRequest is the inbound page request from the web layer.
type ViewRequest struct {
	Page             int               `json:"page,omitempty"`
	PageSize         int               `json:"pageSize,omitempty"`
	Search           string            `json:"search,omitempty"`
	Sort             string            `json:"sort,omitempty"`
	Filter           string            `json:"filter,omitempty"`
	MetaFilter       string            `json:"metaFilter,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
	Regarding        *Reference        `json:"regarding,omitempty"`
	RelationshipName string            `json:"relationshipName,omitempty"`
}
