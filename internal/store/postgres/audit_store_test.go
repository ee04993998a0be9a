package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

func TestBuildListQuery(t *testing.T) {
	q, args := buildListQuery(domain.ListOpts{})
	assert.Equal(t, "SELECT id, event, user_id, asset, detail, created_at FROM audit_log ORDER BY created_at DESC, id DESC", q)
	assert.Empty(t, args)

	since := time.Unix(1_700_000_000, 0)
	q, args = buildListQuery(domain.ListOpts{
		Since:  &since,
		UserID: 42,
		Asset:  "btc",
		Event:  domain.AuditHedgeExecuted,
		Limit:  10,
		Offset: 20,
	})
	assert.Equal(t, "SELECT id, event, user_id, asset, detail, created_at FROM audit_log"+
		" WHERE created_at >= $1 AND user_id = $2 AND asset = $3 AND event = $4"+
		" ORDER BY created_at DESC, id DESC LIMIT $5 OFFSET $6", q)
	assert.Equal(t, []any{since, int64(42), "BTC", domain.AuditHedgeExecuted, 10, 20}, args)
}

func TestAuditSubject(t *testing.T) {
	uid, asset := auditSubject(map[string]any{"user_id": int64(7), "asset": "eth"})
	require.NotNil(t, uid)
	require.NotNil(t, asset)
	assert.Equal(t, int64(7), *uid)
	assert.Equal(t, "ETH", *asset)

	uid, asset = auditSubject(map[string]any{"user_id": "12"})
	require.NotNil(t, uid)
	assert.Equal(t, int64(12), *uid)
	assert.Nil(t, asset)

	uid, asset = auditSubject(nil)
	assert.Nil(t, uid)
	assert.Nil(t, asset)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/hedge?sslmode=disable",
		DSN(ClientConfig{Host: "db", User: "u", Password: "p", Database: "hedge"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}

func TestMigrationFiles(t *testing.T) {
	names, err := MigrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_audit_log.sql", names[0])
}
