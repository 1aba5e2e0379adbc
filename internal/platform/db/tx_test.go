package db

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestRetryable(t *testing.T) {
	require.True(t, Retryable(fmt.Errorf("post: %w", &pgconn.PgError{Code: "40001"})))
	require.True(t, Retryable(&pgconn.PgError{Code: "40P01"}))
	require.False(t, Retryable(&pgconn.PgError{Code: "23505"}))
	require.False(t, Retryable(errors.New("boom")))
}

func TestIsUniqueViolation(t *testing.T) {
	require.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.False(t, IsUniqueViolation(nil))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := migrationFiles.ReadDir("migrations")
	require.NoError(t, err)
	up, down := 0, 0
	for _, entry := range entries {
		switch {
		case strings.HasSuffix(entry.Name(), ".up.sql"):
			up++
		case strings.HasSuffix(entry.Name(), ".down.sql"):
			down++
		}
	}
	require.NotZero(t, up)
	require.Equal(t, up, down)

	schema, err := migrationFiles.ReadFile("migrations/000001_ledger_core.up.sql")
	require.NoError(t, err)
	for _, table := range []string{"journal_entries", "journal_entry_lines", "fiscal_periods", "exchange_rates", "sequences", "recurring_patterns"} {
		require.Contains(t, string(schema), "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
}

func TestMigrateRejectsUnknownDirection(t *testing.T) {
	_, err := Migrate("postgres://localhost/ledger", "sideways")
	require.ErrorContains(t, err, "unknown migration direction")
}
