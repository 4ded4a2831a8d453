package ldapconn

import (
	"github.com/lor00x/goldap/message"

	"github.com/sql2ldap/sql2ldap/internal/filter"
)

// convertFilter walks a decoded goldap filter tree and builds the
// protocol-independent AST the translator works over, so nothing below
// this layer depends on goldap's types.
func convertFilter(f message.Filter) filter.Filter {
	switch v := f.(type) {
	case message.FilterPresent:
		return filter.Present{Attr: string(v)}

	case message.FilterEqualityMatch:
		return filter.Equality{Attr: string(v.AttributeDesc()), Value: string(v.AssertionValue())}

	case message.FilterGreaterOrEqual:
		return filter.GreaterOrEqual{Attr: string(v.AttributeDesc()), Value: string(v.AssertionValue())}

	case message.FilterLessOrEqual:
		return filter.LessOrEqual{Attr: string(v.AttributeDesc()), Value: string(v.AssertionValue())}

	case message.FilterApproxMatch:
		return filter.Approx{Attr: string(v.AttributeDesc()), Value: string(v.AssertionValue())}

	case message.FilterAnd:
		sub := make([]filter.Filter, 0, len(v))
		for _, s := range v {
			sub = append(sub, convertFilter(s))
		}
		return filter.And{Filters: sub}

	case message.FilterOr:
		sub := make([]filter.Filter, 0, len(v))
		for _, s := range v {
			sub = append(sub, convertFilter(s))
		}
		return filter.Or{Filters: sub}

	case message.FilterNot:
		return filter.Not{Filter: convertFilter(v.Filter)}

	case message.FilterSubstrings:
		return convertSubstrings(v)

	default:
		// ExtensibleMatch and any future filter choice goldap might add are
		// both unsupported; Translate rejects this with ProtocolError.
		return filter.ExtensibleMatch{}
	}
}

func convertSubstrings(v message.FilterSubstrings) filter.Filter {
	attr := string(v.Type_())

	var initial, final *string
	var any []string
	for _, sub := range v.Substrings() {
		switch s := sub.(type) {
		case message.SubstringInitial:
			str := string(s)
			initial = &str
		case message.SubstringAny:
			any = append(any, string(s))
		case message.SubstringFinal:
			str := string(s)
			final = &str
		}
	}

	return filter.Substring{Attr: attr, Initial: initial, Any: any, Final: final}
}
