// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/vinovest/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateEmail is returned when the email is already registered
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrDuplicateUsername is returned when the username is already taken
	ErrDuplicateUsername = errors.New("username already in use")
)

// queryer is implemented by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Repository struct {
	db *sqlx.DB // nil inside a transaction
	q  queryer
}

func New(db *sqlx.DB) *Repository {
	return &Repository{db: db, q: db}
}

// WithTx runs fn inside a transaction. fn must use only the repository it is
// handed; the transaction commits when fn returns nil and rolls back otherwise.
// Calling WithTx on a transactional repository reuses the open transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(tx *Repository) error) error {
	if r.db == nil {
		return fn(r)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&Repository{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// wrapError converts driver errors to repository errors
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		msg := sqliteErr.Error()
		switch {
		case strings.Contains(msg, "users.email"):
			return ErrDuplicateEmail
		case strings.Contains(msg, "users.username"):
			return ErrDuplicateUsername
		}
	}
	return err
}
