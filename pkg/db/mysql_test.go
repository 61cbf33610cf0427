package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	assert.Equal(t,
		"audit:pw@tcp(db:3307)/portmap_ai?charset=utf8mb4&parseTime=True&loc=Local",
		BuildDSN("audit", "pw", "db", "3307", "portmap_ai"))
}

func TestGetenv(t *testing.T) {
	t.Setenv("MYSQL_DB", "custom")
	assert.Equal(t, "custom", getenv("MYSQL_DB", "portmap_ai"))
	assert.Equal(t, "fallback", getenv("PORTMAP_UNSET_FOR_TEST", "fallback"))
}

func TestDSNFromEnv(t *testing.T) {
	t.Setenv("MYSQL_DSN", "")
	t.Setenv("MYSQL_USER", "audit")
	t.Setenv("MYSQL_HOST", "db")
	assert.Equal(t, BuildDSN("audit", "", "db", "3306", "portmap_ai"), dsnFromEnv())

	t.Setenv("MYSQL_DSN", "u:p@tcp(h:1)/x")
	assert.Equal(t, "u:p@tcp(h:1)/x", dsnFromEnv())
}

func TestServerDSN(t *testing.T) {
	server, name, err := serverDSN(BuildDSN("audit", "pw", "db", "3307", "portmap_ai"))
	require.NoError(t, err)
	assert.Equal(t, "portmap_ai", name)
	assert.NotContains(t, server, "portmap_ai")
	assert.Contains(t, server, "tcp(db:3307)")

	_, _, err = serverDSN("audit:pw@tcp(db:3307)/")
	assert.Error(t, err)
}
