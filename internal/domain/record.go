package domain

import (
	"github.com/google/uuid"
)

// Record is an opaque attribute bag with a stable identity used for
// deduplication across fan-out sub-queries.
type Record struct {
	Collection string           `json:"collection"`
	ID         uuid.UUID        `json:"id"`
	Attributes map[string]Value `json:"attributes"`
}

// Identity returns the (collection, id) dedup key.
func (r Record) Identity() string {
	return r.Collection + ":" + r.ID.String()
}

// Get returns the named attribute value if the record carries it.
func (r Record) Get(attribute string) (Value, bool) {
	v, ok := r.Attributes[attribute]
	return v, ok
}

// Set stores an attribute value, allocating the bag on first use.
func (r *Record) Set(attribute string, v Value) {
	if r.Attributes == nil {
		r.Attributes = make(map[string]Value)
	}
	r.Attributes[attribute] = v
}
