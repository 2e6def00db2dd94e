package query

import (
	"net/url"

	"github.com/google/uuid"

	"github.com/portalkit/viewdata/internal/domain"
)

// FacetSelection maps facet ids to the values selected for them.
type FacetSelection map[uuid.UUID][]string

// ParseFacetQuery parses the URL-encoded metadata-filter query string into a
// facet selection. Keys that are not facet ids and empty values are skipped;
// a partially valid selection still filters on its valid parts.
func ParseFacetQuery(metaFilter string) FacetSelection {
	if metaFilter == "" {
		return nil
	}
	values, err := url.ParseQuery(metaFilter)
	if err != nil {
		return nil
	}

	selection := make(FacetSelection)
	for key, selected := range values {
		facetID, err := uuid.Parse(key)
		if err != nil {
			continue
		}
		for _, value := range selected {
			if value == "" {
				continue
			}
			selection[facetID] = append(selection[facetID], value)
		}
	}
	if len(selection) == 0 {
		return nil
	}
	return selection
}

// Selected reports whether any value was selected for the facet.
func (s FacetSelection) Selected(facet domain.FacetDefinition) ([]string, bool) {
	if s == nil {
		return nil, false
	}
	values, ok := s[facet.ID]
	return values, ok && len(values) > 0
}
