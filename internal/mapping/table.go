// Package mapping holds the declarative LDAP-attribute-to-SQL-expression
// table built from the loaded configuration.
package mapping

import (
	"regexp"
	"strings"

	"github.com/sql2ldap/sql2ldap/pkg/config"
)

// literalExpr matches a single SQL string literal: 'text with ''escaped''
// quotes'. An expression of this shape never touches the database and can
// in principle be computed offline, though this implementation does not
// take that optimisation (see Table.IsLiteral).
var literalExpr = regexp.MustCompile(`^'(?:[^']|'')*'$`)

// Table is the immutable, case-insensitive mapping from LDAP attribute name
// to SQL expression. It is built once from config.Config and shared by
// reference across every connection.
type Table struct {
	byName map[string]string // lowercased name -> expression
	order  []config.Mapping  // declaration order, original-case names
}

// New builds a Table from the mapping list in a loaded configuration. The
// caller is expected to have already validated that "cn" and "objectClass"
// are present (config.Load enforces this).
func New(mappings []config.Mapping) *Table {
	t := &Table{
		byName: make(map[string]string, len(mappings)),
		order:  make([]config.Mapping, len(mappings)),
	}
	copy(t.order, mappings)
	for _, m := range mappings {
		t.byName[strings.ToLower(m.Name)] = m.Expr
	}
	return t
}

// Resolve looks up the SQL expression for an LDAP attribute name,
// case-insensitively.
func (t *Table) Resolve(attr string) (expr string, ok bool) {
	expr, ok = t.byName[strings.ToLower(attr)]
	return expr, ok
}

// IterDynamic returns every mapping except ones whose expression is a
// literal, in declaration order. The search executor does not use it: its
// projection list is built from All, literal expressions included.
func (t *Table) IterDynamic() []config.Mapping {
	dynamic := make([]config.Mapping, 0, len(t.order))
	for _, m := range t.order {
		if !t.IsLiteral(m.Expr) {
			dynamic = append(dynamic, m)
		}
	}
	return dynamic
}

// All returns every mapping in declaration order.
func (t *Table) All() []config.Mapping {
	return t.order
}

// CNExpr returns the SQL expression mapped to "cn". Callers may assume this
// always succeeds for a Table built from a validated Config.
func (t *Table) CNExpr() string {
	expr, _ := t.Resolve("cn")
	return expr
}

// ObjectClassExpr returns the SQL expression mapped to "objectClass".
func (t *Table) ObjectClassExpr() string {
	expr, _ := t.Resolve("objectClass")
	return expr
}

// IsLiteral reports whether expr is a single quoted SQL string literal
// ('...' with '' as the internal escape).
func (t *Table) IsLiteral(expr string) bool {
	return literalExpr.MatchString(strings.TrimSpace(expr))
}
