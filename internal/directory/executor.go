package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sql2ldap/sql2ldap/internal/filter"
	"github.com/sql2ldap/sql2ldap/internal/ldapresult"
	"github.com/sql2ldap/sql2ldap/internal/mapping"
	"github.com/sql2ldap/sql2ldap/internal/sqlbackend"
)

// Scope is an LDAP search scope, using the same numeric values as the wire
// protocol (RFC 4511 section 4.5.1.2).
type Scope int

const (
	ScopeBaseObject   Scope = 0
	ScopeSingleLevel  Scope = 1
	ScopeWholeSubtree Scope = 2
)

// SearchRequest is a validated, already-parsed LDAP search request.
type SearchRequest struct {
	BaseDN     string
	Scope      Scope
	SizeLimit  int           // 0 = unlimited
	TimeLimit  time.Duration // 0 = unlimited
	Attributes []string      // empty or ["*"] = all user attrs, ["1.1"] = none
	Filter     filter.Filter
}

// Outcome is the terminal event of a search: the result code to report via
// SearchResultDone.
type Outcome struct {
	Code            ldapresult.Code
	CloseConnection bool // set when the connection must be torn down (ProtocolError)
	Err             error
}

// Item is one element of a search's result stream: either an Entry or,
// exactly once as the final item (never sent at all if the search was
// cancelled), an Outcome.
type Item struct {
	Entry   *Entry
	Outcome *Outcome
}

// Executor assembles and runs the SQL query for one search request and
// projects each returned row into an Entry.
type Executor struct {
	driver sqlbackend.Driver
	table  *mapping.Table
	suffix string
	sqlTbl string
}

// NewExecutor builds an Executor over an already-open SQL driver.
func NewExecutor(driver sqlbackend.Driver, table *mapping.Table, suffix, sqlTable string) *Executor {
	return &Executor{driver: driver, table: table, suffix: suffix, sqlTbl: sqlTable}
}

type projectedAttr struct {
	Name string
	Expr string
}

// Search runs req and streams its results on the returned channel. The
// channel is closed after its final Item; that final Item is an Outcome
// unless the search was cancelled via ctx (abandoned, or the client
// disconnected), in which case nothing further is ever sent: an abandoned
// search gets no SearchResultDone.
func (ex *Executor) Search(ctx context.Context, req SearchRequest) <-chan Item {
	ch := make(chan Item, 16)
	go ex.run(ctx, req, ch)
	return ch
}

func (ex *Executor) run(ctx context.Context, req SearchRequest, ch chan<- Item) {
	defer close(ch)

	// Step 1: base DN / scope handling. All synthesised entries are leaves
	// directly under the suffix, so only a request based exactly at the
	// suffix with scope singleLevel or wholeSubtree can ever yield rows.
	if !SameDN(req.BaseDN, ex.suffix) {
		ch <- Item{Outcome: &Outcome{Code: ldapresult.Success}}
		return
	}
	if req.Scope != ScopeSingleLevel && req.Scope != ScopeWholeSubtree {
		ch <- Item{Outcome: &Outcome{Code: ldapresult.Success}}
		return
	}

	// Step 3: translate the filter.
	whereFrag, params, err := filter.Translate(req.Filter, ex.table)
	if err != nil {
		ch <- Item{Outcome: &Outcome{Code: ldapresult.ProtocolError, CloseConnection: true, Err: err}}
		return
	}

	// Step 2: projection.
	projection, visibleCN := ex.buildProjection(req.Attributes)

	// Step 4: assemble the statement.
	query := ex.buildQuery(projection, whereFrag)

	queryCtx := ctx
	if req.TimeLimit > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, req.TimeLimit)
		defer cancel()
	}

	// Step 5: stream rows.
	stream, err := ex.driver.PrepareAndStream(queryCtx, query, params)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		ch <- Item{Outcome: &Outcome{Code: ldapresult.OperationsError, Err: err}}
		return
	}
	defer stream.Close()

	count := 0
	for {
		row, ok, err := stream.Next(queryCtx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if req.TimeLimit > 0 && queryCtx.Err() != nil {
				ch <- Item{Outcome: &Outcome{Code: ldapresult.TimeLimitExceeded}}
				return
			}
			ch <- Item{Outcome: &Outcome{Code: ldapresult.OperationsError, Err: err}}
			return
		}
		if !ok {
			break
		}

		// Step 6: project the row into an entry.
		entry, valid := ex.projectRow(projection, visibleCN, row)
		if !valid {
			continue
		}

		select {
		case ch <- Item{Entry: entry}:
		case <-ctx.Done():
			return
		}

		// Step 7: size limit.
		count++
		if req.SizeLimit > 0 && count >= req.SizeLimit {
			ch <- Item{Outcome: &Outcome{Code: ldapresult.SizeLimitExceeded}}
			return
		}
	}

	ch <- Item{Outcome: &Outcome{Code: ldapresult.Success}}
}

// buildProjection resolves the requested-attributes list into the ordered
// list of SQL expressions to select. cn and objectClass are always the
// first two columns, regardless of the request, since cn is needed to
// build the DN and objectClass is always present on every entry.
func (ex *Executor) buildProjection(requested []string) (projection []projectedAttr, visibleCN bool) {
	projection = append(projection, projectedAttr{Name: "cn", Expr: ex.table.CNExpr()})
	projection = append(projection, projectedAttr{Name: "objectClass", Expr: ex.table.ObjectClassExpr()})

	allUser := len(requested) == 0
	noAttrs := false
	explicit := make(map[string]bool, len(requested))
	for _, a := range requested {
		switch a {
		case "*":
			allUser = true
		case "1.1":
			noAttrs = true
		default:
			explicit[strings.ToLower(a)] = true
		}
	}
	visibleCN = allUser || explicit["cn"]

	if noAttrs && !allUser {
		return projection, visibleCN
	}

	if allUser {
		for _, m := range ex.table.All() {
			if isCNOrObjectClass(m.Name) {
				continue
			}
			projection = append(projection, projectedAttr{Name: m.Name, Expr: m.Expr})
		}
		return projection, visibleCN
	}

	for _, m := range ex.table.All() {
		if isCNOrObjectClass(m.Name) {
			continue
		}
		if explicit[strings.ToLower(m.Name)] {
			projection = append(projection, projectedAttr{Name: m.Name, Expr: m.Expr})
		}
	}
	return projection, visibleCN
}

func isCNOrObjectClass(name string) bool {
	lower := strings.ToLower(name)
	return lower == "cn" || lower == "objectclass"
}

func (ex *Executor) buildQuery(projection []projectedAttr, whereFrag string) string {
	cols := make([]string, len(projection))
	for i, p := range projection {
		cols[i] = fmt.Sprintf("(%s)", p.Expr)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), ex.sqlTbl)
	if whereFrag != "" && whereFrag != "TRUE" {
		query += " WHERE " + whereFrag
	}
	return query
}

// projectRow builds an Entry from one result row. projection[0] is always
// cn, projection[1] is always objectClass.
func (ex *Executor) projectRow(projection []projectedAttr, visibleCN bool, row []any) (*Entry, bool) {
	cnValue := stringify(row[0])
	if cnValue == "" {
		// cn is the RDN; a row whose cn expression came back null would
		// synthesise a broken DN, so it is dropped instead.
		return nil, false
	}

	entry := &Entry{DN: BuildDN(cnValue, ex.suffix)}
	if visibleCN {
		entry.AddAttribute("cn", cnValue)
	}

	if ocValue := stringify(row[1]); ocValue != "" {
		entry.AddAttribute("objectClass", ocValue)
	}

	for i := 2; i < len(projection); i++ {
		if v := stringify(row[i]); v != "" {
			entry.AddAttribute(projection[i].Name, v)
		}
	}

	return entry, true
}

// stringify renders a driver value as LDAP attribute text. A nil value
// (SQL NULL) renders as "", which callers treat as "omit this attribute".
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
