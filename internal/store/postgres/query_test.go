package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/polytrader/internal/domain"
)

func TestListQueryNoOpts(t *testing.T) {
	q, args := listQuery("SELECT 1 FROM t WHERE 1=1", "ts", "DESC", domain.ListOpts{})
	assert.Equal(t, "SELECT 1 FROM t WHERE 1=1 ORDER BY ts DESC", q)
	assert.Empty(t, args)
}

func TestListQueryNumbersAfterBoundArgs(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(time.Hour)
	q, args := listQuery("SELECT 1 FROM t WHERE run_id = $1", "ts", "ASC",
		domain.ListOpts{Since: &since, Until: &until, Limit: 10, Offset: 20}, "run-1")

	assert.Equal(t,
		"SELECT 1 FROM t WHERE run_id = $1 AND ts >= $2 AND ts <= $3 ORDER BY ts ASC LIMIT $4 OFFSET $5", q)
	assert.Equal(t, []any{"run-1", since, until, 10, 20}, args)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/pt?sslmode=disable",
		DSN(ClientConfig{Host: "db", Database: "pt", User: "u", Password: "p"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}
