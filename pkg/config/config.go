// Package config loads and validates the sql2ldap TOML configuration file.
package config

import (
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config is the validated, immutable-after-load configuration for one
// sql2ldap process. It is constructed once at startup and shared by
// reference across every connection goroutine; nothing in it is mutated
// after Load returns.
type Config struct {
	Server   ServerConfig  `toml:"server"`
	Sql      SqlConfig     `toml:"sql"`
	Ldap     LdapConfig    `toml:"ldap"`
	Mappings MappingConfig `toml:"mappings"`
}

// ServerConfig controls the TCP listener and worker concurrency.
type ServerConfig struct {
	IP      string `toml:"ip"`
	Port    uint16 `toml:"port"`
	Threads uint32 `toml:"threads"`
	Seccomp bool   `toml:"seccomp"`
	Debug   bool   `toml:"debug"`
}

// SqlConfig describes the backend database the directory is projected from.
type SqlConfig struct {
	Backend  string  `toml:"backend"`
	Host     string  `toml:"host"`
	Port     *uint16 `toml:"port"`
	User     string  `toml:"user"`
	Pass     string  `toml:"pass"`
	Database string  `toml:"database"`
	Table    string  `toml:"table"`
}

// LdapConfig carries the single fixed suffix DN under which every
// synthesised entry lives.
type LdapConfig struct {
	Suffix string `toml:"suffix"`
}

// Mapping associates one LDAP attribute name with a SQL expression
// evaluated against a row of Sql.Table.
type Mapping struct {
	Name string
	Expr string
}

// MappingConfig is the [mappings] table: attribute name to SQL expression.
// TOML tables decode as maps, which have no source order, so List imposes
// a stable one instead.
type MappingConfig map[string]string

// List returns the mappings with cn and objectClass hoisted first (callers
// most commonly special-case them) and the rest sorted by name, so the
// projection order of a search is deterministic across restarts.
func (m MappingConfig) List() []Mapping {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	orderKey := func(n string) int {
		switch strings.ToLower(n) {
		case "cn":
			return 0
		case "objectclass":
			return 1
		default:
			return 2
		}
	}
	sort.Slice(names, func(i, j int) bool {
		ki, kj := orderKey(names[i]), orderKey(names[j])
		if ki != kj {
			return ki < kj
		}
		return names[i] < names[j]
	})

	list := make([]Mapping, 0, len(names))
	for _, name := range names {
		list = append(list, Mapping{Name: name, Expr: m[name]})
	}
	return list
}

// Load reads, parses and validates a TOML configuration document.
func Load(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 389
	}
	if cfg.Server.Threads == 0 {
		cfg.Server.Threads = uint32(runtime.NumCPU())
	}
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Server.IP) == "" {
		return fmt.Errorf("server.ip is required")
	}
	if !strings.EqualFold(cfg.Sql.Backend, "PostgreSQL") {
		return fmt.Errorf("sql.backend: only \"PostgreSQL\" is supported, got %q", cfg.Sql.Backend)
	}
	if strings.TrimSpace(cfg.Sql.Host) == "" {
		return fmt.Errorf("sql.host is required")
	}
	if strings.TrimSpace(cfg.Sql.Table) == "" {
		return fmt.Errorf("sql.table is required")
	}
	if strings.TrimSpace(cfg.Ldap.Suffix) == "" {
		return fmt.Errorf("ldap.suffix is required")
	}

	var haveCN, haveObjectClass bool
	seen := map[string]bool{}
	for _, m := range cfg.Mappings.List() {
		lower := strings.ToLower(m.Name)
		if seen[lower] {
			return fmt.Errorf("mappings.%s: duplicate attribute mapping", m.Name)
		}
		seen[lower] = true
		if lower == "cn" {
			haveCN = true
		}
		if lower == "objectclass" {
			haveObjectClass = true
		}
	}
	if !haveCN {
		return fmt.Errorf("mappings: a \"cn\" mapping is required")
	}
	if !haveObjectClass {
		return fmt.Errorf("mappings: an \"objectClass\" mapping is required")
	}

	return nil
}

// Print logs the loaded configuration with the SQL password redacted.
func (c *Config) Print(logger *slog.Logger) {
	logger.Info("configuration loaded",
		"bind_address", fmt.Sprintf("%s:%d", c.Server.IP, c.Server.Port),
		"threads", c.Server.Threads,
		"seccomp", c.Server.Seccomp,
		"sql_backend", c.Sql.Backend,
		"sql_host", c.Sql.Host,
		"sql_database", c.Sql.Database,
		"sql_table", c.Sql.Table,
		"ldap_suffix", c.Ldap.Suffix,
		"mapping_count", len(c.Mappings.List()),
	)
}
