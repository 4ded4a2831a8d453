package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sql2ldap/sql2ldap/internal/mapping"
)

// ErrProtocolError is returned when a filter cannot be translated at all:
// an ExtensibleMatch or any filter type Translate does not recognise. The
// caller must fail the whole search with ProtocolError, not just the
// offending sub-filter.
var ErrProtocolError = errors.New("unsupported filter")

// placeholders assigns PostgreSQL "$1, $2, ..." parameter markers in a
// single left-to-right traversal, shared across the whole recursive
// translation so nested calls keep numbering consistent.
type placeholders struct {
	params []any
}

func (p *placeholders) bind(value any) string {
	p.params = append(p.params, value)
	return fmt.Sprintf("$%d", len(p.params))
}

// Translate converts an LDAP filter into a SQL boolean expression plus its
// bound parameter vector.
//
// An attribute absent from table is not an error: per LDAP semantics an
// undefined attribute matches nothing, so the offending sub-filter is
// replaced with a constant-false fragment and translation continues. Only
// ExtensibleMatch (or any filter type this function does not recognise)
// fails the whole search, via ErrProtocolError.
func Translate(f Filter, table *mapping.Table) (string, []any, error) {
	p := &placeholders{}
	frag, err := translate(f, table, p)
	if err != nil {
		return "", nil, err
	}
	return frag, p.params, nil
}

func translate(f Filter, table *mapping.Table, p *placeholders) (string, error) {
	switch v := f.(type) {
	case Present:
		return translateAttrFilter(v.Attr, table, func(expr string) string {
			return fmt.Sprintf("(%s) IS NOT NULL", expr)
		})

	case Equality:
		return translateAttrFilter(v.Attr, table, func(expr string) string {
			return fmt.Sprintf("(%s) = %s", expr, p.bind(v.Value))
		})

	case Approx:
		return translate(Equality{Attr: v.Attr, Value: v.Value}, table, p)

	case GreaterOrEqual:
		return translateAttrFilter(v.Attr, table, func(expr string) string {
			return fmt.Sprintf("(%s) >= %s", expr, p.bind(v.Value))
		})

	case LessOrEqual:
		return translateAttrFilter(v.Attr, table, func(expr string) string {
			return fmt.Sprintf("(%s) <= %s", expr, p.bind(v.Value))
		})

	case Substring:
		if v.Initial == nil && len(v.Any) == 0 && v.Final == nil {
			// "(a=*)" phrased as a substring with no parts: same as Present.
			return translate(Present{Attr: v.Attr}, table, p)
		}
		return translateAttrFilter(v.Attr, table, func(expr string) string {
			pattern := substringPattern(v)
			return fmt.Sprintf("(%s) LIKE %s ESCAPE '\\'", expr, p.bind(pattern))
		})

	case And:
		return translateConjunction(v.Filters, table, p, " AND ", "TRUE")

	case Or:
		return translateConjunction(v.Filters, table, p, " OR ", "FALSE")

	case Not:
		inner, err := translate(v.Filter, table, p)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("NOT (%s)", inner), nil

	default:
		return "", ErrProtocolError
	}
}

// translateAttrFilter resolves attr in table and, if found, emits the
// fragment built against the mapping expression; if not found, emits a
// constant-false fragment instead, so an unmapped attribute matches
// nothing without breaking the rest of the query.
func translateAttrFilter(attr string, table *mapping.Table, emit func(expr string) string) (string, error) {
	expr, ok := table.Resolve(attr)
	if !ok {
		return "FALSE", nil
	}
	return emit(expr), nil
}

func translateConjunction(filters []Filter, table *mapping.Table, p *placeholders, joiner, empty string) (string, error) {
	if len(filters) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(filters))
	for _, sub := range filters {
		frag, err := translate(sub, table, p)
		if err != nil {
			return "", err
		}
		parts = append(parts, frag)
	}
	return "(" + strings.Join(parts, joiner) + ")", nil
}

// substringPattern builds the SQL LIKE pattern for a Substring filter:
// each fragment has its %, _, \ escaped before being joined with bare %
// wildcards, so a value containing LIKE-special characters can never alter
// the shape of the pattern. A nil Initial/Final contributes an empty
// segment, which yields the leading/trailing "%" once the segments are
// joined.
func substringPattern(s Substring) string {
	segments := make([]string, 0, 2+len(s.Any))

	if s.Initial != nil {
		segments = append(segments, escapeLike(*s.Initial))
	} else {
		segments = append(segments, "")
	}
	for _, any := range s.Any {
		segments = append(segments, escapeLike(any))
	}
	if s.Final != nil {
		segments = append(segments, escapeLike(*s.Final))
	} else {
		segments = append(segments, "")
	}

	return strings.Join(segments, "%")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
