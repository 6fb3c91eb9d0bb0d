package database

import (
	"errors"
	"fmt"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListMigrations_SortedSQLOnly(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_cart.sql":    {Data: []byte("SELECT 2")},
		"migrations/001_catalog.sql": {Data: []byte("SELECT 1")},
		"migrations/README.md":       {Data: []byte("notes")},
		"migrations/old/003_x.sql":   {Data: []byte("SELECT 3")},
	}

	files, err := listMigrations(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_catalog.sql", "002_cart.sql"}, files)
}

func TestEmbeddedMigrations(t *testing.T) {
	files, err := listMigrations(migrationFiles)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_catalog.sql", "002_cart.sql"}, files)
}

func TestHasCode(t *testing.T) {
	pgErr := &pgconn.PgError{Code: uniqueViolation}

	assert.True(t, hasCode(pgErr, uniqueViolation))
	assert.True(t, hasCode(fmt.Errorf("insert: %w", pgErr), uniqueViolation))
	assert.False(t, hasCode(pgErr, checkViolation))
	assert.False(t, hasCode(errors.New("boom"), uniqueViolation))
	assert.False(t, hasCode(nil, uniqueViolation))
}
