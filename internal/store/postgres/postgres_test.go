package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitadpal/voran/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/voran?sslmode=disable",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Database: "voran"}))
	assert.Equal(t, "postgres://u:p@db:6543/voran?sslmode=require",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Port: 6543, Database: "voran", SSLMode: "require"}))
	assert.Equal(t, "postgres://explicit", DSN(ClientConfig{DSN: "postgres://explicit", Host: "ignored"}))
}

func TestListQuery(t *testing.T) {
	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(time.Hour)

	q, args := listQuery("SELECT * FROM resolutions WHERE market_id = $1", []any{"m1"},
		domain.ListOpts{Since: &since, Until: &until, Limit: 10, Offset: 20})
	assert.Equal(t,
		"SELECT * FROM resolutions WHERE market_id = $1 AND created_at >= $2 AND created_at <= $3 ORDER BY created_at DESC LIMIT $4 OFFSET $5",
		q)
	assert.Equal(t, []any{"m1", since, until, 10, 20}, args)

	q, args = listQuery("SELECT * FROM audit_log WHERE 1=1", nil, domain.ListOpts{})
	assert.Equal(t, "SELECT * FROM audit_log WHERE 1=1 ORDER BY created_at DESC", q)
	assert.Empty(t, args)
}

func TestMigrationNamesSorted(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_resolutions.sql", "002_audit_log.sql"}, names)
}
