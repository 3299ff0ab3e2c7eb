package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_Embedded(t *testing.T) {
	files, err := fs.Glob(Migrations, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, name := range files {
		body, err := fs.ReadFile(Migrations, name)
		require.NoError(t, err)
		assert.Contains(t, string(body), "-- +goose Up", name)
		assert.Contains(t, string(body), "-- +goose Down", name)
	}
}

func TestMigrations_PreKeyConstraints(t *testing.T) {
	body, err := fs.ReadFile(Migrations, "00001_keys.sql")
	require.NoError(t, err)
	sql := string(body)

	assert.True(t, strings.Contains(sql, "UNIQUE (user_id, key_id)"))
	assert.True(t, strings.Contains(sql, "DEFAULT clock_timestamp()"))
}
