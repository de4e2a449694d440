// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package database_test

import (
	"testing"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_InMemory(t *testing.T) {
	db, err := database.Open(":memory:")

	require.NoError(t, err)
	require.NotNil(t, db)

	err = db.Close()
	require.NoError(t, err)
}

func TestOpen_MigrationsApplied(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()

	for _, table := range []string{"users", "roles"} {
		var count int64
		err = db.Get(&count, "SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?", table)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count, table)
	}
}

func TestOpen_RolesSeeded(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()

	var names []string
	err = db.Select(&names, "SELECT name FROM roles ORDER BY id")
	require.NoError(t, err)
	assert.Equal(t, []string{"User", "Moderator", "Administrator"}, names)

	var defaults int64
	err = db.Get(&defaults, "SELECT count(*) FROM roles WHERE is_default = 1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), defaults)
}

func TestOpen_ForeignKeysEnabled(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()

	var enabled int
	err = db.Get(&enabled, "PRAGMA foreign_keys")
	require.NoError(t, err)
	assert.Equal(t, 1, enabled)
}

func TestOpen_FileDatabase(t *testing.T) {
	dbPath := t.TempDir() + "/subdir/test.db"

	db, err := database.Open(dbPath)
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()

	var count int64
	err = db.Get(&count, "SELECT count(*) FROM sqlite_master WHERE type='table' AND name='users'")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestOpen_ModeMemory(t *testing.T) {
	db, err := database.Open("file::memory:?mode=memory")

	require.NoError(t, err)
	require.NotNil(t, db)

	_ = db.Close()
}

func TestMigrateReset(t *testing.T) {
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	defer func() {
		_ = db.Close()
	}()

	version, err := database.Version(db.DB)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	require.NoError(t, database.MigrateDown(db.DB))
	version, err = database.Version(db.DB)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	require.NoError(t, database.MigrateReset(db.DB))

	var count int64
	err = db.Get(&count, "SELECT count(*) FROM sqlite_master WHERE type='table' AND name='users'")
	require.NoError(t, err)
	assert.Zero(t, count)
}
