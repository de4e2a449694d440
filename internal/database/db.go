// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vinovest/sqlx"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Open creates a new database connection, applies SQLite settings and runs migrations.
func Open(dsn string) (*sqlx.DB, error) {
	if dsn == "" {
		dsn = "./data/app.db"
	}

	memory := isMemory(dsn)

	// Create directory for file-based databases
	if !memory {
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, err
		}
	}

	dsn = addDefaultParams(dsn)

	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Every connection to :memory: is a separate database, so in-memory
	// databases are pinned to one connection that is never recycled.
	if memory {
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
		conn.SetConnMaxLifetime(0)
	} else {
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(time.Hour)
	}

	ctx := context.Background()
	if err := configureSQLite(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := RunMigrations(conn.DB); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return conn, nil
}

func isMemory(dsn string) bool {
	return strings.HasPrefix(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// addDefaultParams adds per-connection SQLite parameters if not already present.
func addDefaultParams(dsn string) string {
	defaults := []struct{ key, param string }{
		{"_txlock", "_txlock=immediate"},
		{"busy_timeout", "_pragma=busy_timeout(5000)"},
		{"foreign_keys", "_pragma=foreign_keys(1)"},
	}

	for _, d := range defaults {
		if strings.Contains(dsn, d.key) {
			continue
		}
		separator := "?"
		if strings.Contains(dsn, "?") {
			separator = "&"
		}
		dsn += separator + d.param
	}

	return dsn
}

// configureSQLite sets database-wide PRAGMAs.
func configureSQLite(ctx context.Context, db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return err
		}
	}

	return nil
}
