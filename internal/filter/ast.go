// Package filter defines the LDAP search filter AST and its translation
// into a parameterised SQL WHERE fragment.
package filter

// Filter is the recursive sum type for an LDAP search filter, per RFC 4511
// section 4.5.1.7.
type Filter interface {
	isFilter()
}

// Present matches entries where Attr resolves to a non-null value.
type Present struct{ Attr string }

// Equality matches entries where Attr equals Value.
type Equality struct{ Attr, Value string }

// Substring matches entries where Attr contains the given substring
// pattern. Initial and Final are nil when the pattern has no anchored
// prefix/suffix (e.g. "(cn=*oe*)" has neither).
type Substring struct {
	Attr    string
	Initial *string
	Any     []string
	Final   *string
}

// GreaterOrEqual matches entries where Attr >= Value under the backend's
// ordering.
type GreaterOrEqual struct{ Attr, Value string }

// LessOrEqual matches entries where Attr <= Value under the backend's
// ordering.
type LessOrEqual struct{ Attr, Value string }

// Approx is LDAP's approximate-match filter, treated as plain Equality;
// no phonetic matching is attempted.
type Approx struct{ Attr, Value string }

// And matches entries where every sub-filter matches. An empty And matches
// everything.
type And struct{ Filters []Filter }

// Or matches entries where at least one sub-filter matches. An empty Or
// matches nothing.
type Or struct{ Filters []Filter }

// Not matches entries where the sub-filter does not match.
type Not struct{ Filter Filter }

// ExtensibleMatch is parsed but never translatable; Translate always
// rejects it with ErrProtocolError.
type ExtensibleMatch struct{}

func (Present) isFilter()         {}
func (Equality) isFilter()        {}
func (Substring) isFilter()       {}
func (GreaterOrEqual) isFilter()  {}
func (LessOrEqual) isFilter()     {}
func (Approx) isFilter()          {}
func (And) isFilter()             {}
func (Or) isFilter()              {}
func (Not) isFilter()             {}
func (ExtensibleMatch) isFilter() {}
