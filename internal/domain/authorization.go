package domain

// Right names the access being checked when resolving authorization rules.
type Right string

const (
	RightRead   Right = "read"
	RightWrite  Right = "write"
	RightDelete Right = "delete"
	RightAppend Right = "append"
)

// AuthorizationRule is one disjunct of a caller's access grant over a
// collection. Scope carries the conditions limiting the rule to a subset of
// records; Global marks a rule that grants access to the whole collection.
type AuthorizationRule struct {
	Scope  *Filter `json:"scope,omitempty"`
	Global bool    `json:"global,omitempty"`
}
