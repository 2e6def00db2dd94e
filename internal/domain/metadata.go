package domain

// Relationship describes a one-to-many relationship between two collections.
type Relationship struct {
	SchemaName            string `json:"schemaName"`
	ReferencedCollection  string `json:"referencedCollection"`
	ReferencingCollection string `json:"referencingCollection"`
	ReferencingAttribute  string `json:"referencingAttribute"`
}

// EntityMetadata describes a collection: its attribute types, key attributes
// and relationship definitions. Resolved from the record store and cached per
// request.
type EntityMetadata struct {
	Collection           string                   `json:"collection"`
	PrimaryIDAttribute   string                   `json:"primaryIdAttribute"`
	PrimaryNameAttribute string                   `json:"primaryNameAttribute"`
	Attributes           map[string]AttributeType `json:"attributes"`
	Relationships        []Relationship           `json:"relationships,omitempty"`
}

// AttributeType returns the declared type of an attribute, if known.
func (m *EntityMetadata) AttributeType(attribute string) (AttributeType, bool) {
	if m == nil {
		return "", false
	}
	t, ok := m.Attributes[attribute]
	return t, ok
}

// RelationshipByName resolves a relationship by schema name.
func (m *EntityMetadata) RelationshipByName(name string) (Relationship, bool) {
	if m == nil {
		return Relationship{}, false
	}
	for _, rel := range m.Relationships {
		if rel.SchemaName == name {
			return rel, true
		}
	}
	return Relationship{}, false
}
