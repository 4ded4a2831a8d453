// Package sqlbackend abstracts the concrete SQL client behind a minimal
// prepare-and-stream interface, so the query translator and search
// executor never depend on a specific driver.
package sqlbackend

import (
	"context"
	"fmt"
	"strings"

	"github.com/sql2ldap/sql2ldap/pkg/config"
)

// Driver executes a parameterised query and streams its result rows.
// Implementations must propagate ctx cancellation into the underlying
// query so a disconnected client or an expired time limit aborts the
// server-side work rather than merely detaching from it.
type Driver interface {
	PrepareAndStream(ctx context.Context, query string, params []any) (RowStream, error)
	Close() error
}

// RowStream yields result rows one at a time.
type RowStream interface {
	// Next advances to the next row. ok is false once the stream is
	// exhausted; err is non-nil if advancing failed.
	Next(ctx context.Context) (row []any, ok bool, err error)
	Columns() []string
	Close() error
}

// Open builds the concrete Driver for cfg.Sql.Backend. Only "PostgreSQL" is
// currently supported; config.Load already rejects any other value, so
// reaching the default case here means a config was constructed by hand
// rather than through Load.
func Open(ctx context.Context, cfg config.SqlConfig) (Driver, error) {
	switch strings.ToLower(cfg.Backend) {
	case "postgresql":
		return openPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("sqlbackend: unsupported backend %q", cfg.Backend)
	}
}
