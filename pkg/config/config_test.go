package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDoc = `
[server]
ip = "0.0.0.0"

[sql]
backend = "PostgreSQL"
host = "db.internal"
database = "directory"
table = "people"

[ldap]
suffix = "dc=example,dc=com"

[mappings]
cn = "CAST(id AS TEXT)"
objectClass = "'inetOrgPerson'"
sn = "surname"
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load([]byte(validDoc))
	require.NoError(t, err)

	assert.Equal(t, uint16(389), cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.IP)
	assert.Equal(t, "dc=example,dc=com", cfg.Ldap.Suffix)
	assert.Equal(t, "PostgreSQL", cfg.Sql.Backend)
	assert.NotZero(t, cfg.Server.Threads)
}

func TestLoadCustomPort(t *testing.T) {
	cfg, err := Load([]byte(`
[server]
ip = "127.0.0.1"
port = 10389

[sql]
backend = "PostgreSQL"
host = "db.internal"
table = "people"

[ldap]
suffix = "dc=test,dc=com"

[mappings]
cn = "id"
objectClass = "'top'"
`))
	require.NoError(t, err)
	assert.Equal(t, uint16(10389), cfg.Server.Port)
}

func TestLoadRejectsUnsupportedBackend(t *testing.T) {
	_, err := Load([]byte(`
[server]
ip = "0.0.0.0"

[sql]
backend = "MySQL"
host = "db.internal"
table = "people"

[ldap]
suffix = "dc=test,dc=com"

[mappings]
cn = "id"
objectClass = "'top'"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PostgreSQL")
}

func TestLoadRequiresCNMapping(t *testing.T) {
	_, err := Load([]byte(`
[server]
ip = "0.0.0.0"

[sql]
backend = "PostgreSQL"
host = "db.internal"
table = "people"

[ldap]
suffix = "dc=test,dc=com"

[mappings]
objectClass = "'top'"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cn")
}

func TestLoadRequiresObjectClassMapping(t *testing.T) {
	_, err := Load([]byte(`
[server]
ip = "0.0.0.0"

[sql]
backend = "PostgreSQL"
host = "db.internal"
table = "people"

[ldap]
suffix = "dc=test,dc=com"

[mappings]
cn = "id"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "objectClass")
}

func TestLoadRequiresSuffix(t *testing.T) {
	_, err := Load([]byte(`
[server]
ip = "0.0.0.0"

[sql]
backend = "PostgreSQL"
host = "db.internal"
table = "people"

[mappings]
cn = "id"
objectClass = "'top'"
`))
	require.Error(t, err)
}

func TestMappingsPreserveCNAndObjectClassFirst(t *testing.T) {
	cfg, err := Load([]byte(validDoc))
	require.NoError(t, err)

	list := cfg.Mappings.List()
	require.Len(t, list, 3)
	assert.Equal(t, "cn", list[0].Name)
	assert.Equal(t, "objectClass", list[1].Name)
}

func TestConfigPrintDoesNotPanic(t *testing.T) {
	cfg, err := Load([]byte(validDoc))
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		cfg.Print(slog.Default())
	})
}
