package sqlbackend

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	"github.com/sql2ldap/sql2ldap/pkg/config"
)

// postgresDriver implements Driver over database/sql using lib/pq.
type postgresDriver struct {
	db *sql.DB
}

func openPostgres(ctx context.Context, cfg config.SqlConfig) (Driver, error) {
	db, err := sql.Open("postgres", postgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return &postgresDriver{db: db}, nil
}

// postgresDSN builds a libpq key=value connection string. A host of the
// form "unix:/path/to/socket" is rewritten to a bare socket directory path,
// which lib/pq (like libpq itself) treats as a request to dial a unix
// socket instead of TCP.
func postgresDSN(cfg config.SqlConfig) string {
	host := cfg.Host
	host = strings.TrimPrefix(host, "unix:")

	parts := []string{kv("host", host)}
	if cfg.Port != nil {
		parts = append(parts, kv("port", strconv.Itoa(int(*cfg.Port))))
	}
	if cfg.User != "" {
		parts = append(parts, kv("user", cfg.User))
	}
	if cfg.Pass != "" {
		parts = append(parts, kv("password", cfg.Pass))
	}
	if cfg.Database != "" {
		parts = append(parts, kv("dbname", cfg.Database))
	}
	parts = append(parts, kv("sslmode", "prefer"))

	return strings.Join(parts, " ")
}

func kv(key, value string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(value)
	return fmt.Sprintf("%s='%s'", key, escaped)
}

func (d *postgresDriver) PrepareAndStream(ctx context.Context, query string, params []any) (RowStream, error) {
	rows, err := d.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("columns: %w", err)
	}
	return &postgresRowStream{rows: rows, cols: cols}, nil
}

func (d *postgresDriver) Close() error {
	return d.db.Close()
}

// postgresRowStream adapts *sql.Rows to RowStream. database/sql cancels the
// underlying server-side query when ctx is done (it propagates ctx into the
// driver via QueryContext), so Abandon/time-limit cancellation reaches
// PostgreSQL without any extra plumbing here.
type postgresRowStream struct {
	rows *sql.Rows
	cols []string
}

func (s *postgresRowStream) Columns() []string { return s.cols }

func (s *postgresRowStream) Next(ctx context.Context) ([]any, bool, error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	default:
	}

	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	values := make([]any, len(s.cols))
	scanDests := make([]any, len(s.cols))
	for i := range values {
		scanDests[i] = &values[i]
	}
	if err := s.rows.Scan(scanDests...); err != nil {
		return nil, false, fmt.Errorf("scan row: %w", err)
	}
	return values, true, nil
}

func (s *postgresRowStream) Close() error {
	return s.rows.Close()
}
