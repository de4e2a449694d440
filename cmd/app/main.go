// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"codeberg.org/oliverandrich/go-webapp-auth/internal/config"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/database"
	"codeberg.org/oliverandrich/go-webapp-auth/internal/server"
	"github.com/urfave/cli/v3"
)

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:   "app",
		Usage:  "Account registration, confirmation and login web application",
		Flags:  config.Flags(),
		Action: server.Run,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the web server (default)",
				Action: server.Run,
			},
			{
				Name:  "db",
				Usage: "Database maintenance",
				Commands: []*cli.Command{
					{
						Name:   "version",
						Usage:  "Print the current schema version",
						Action: dbAction(printVersion),
					},
					{
						Name:   "down",
						Usage:  "Roll back the most recent migration",
						Action: dbAction(andPrintVersion(database.MigrateDown)),
					},
					{
						Name:   "reset",
						Usage:  "Roll back all migrations; the next start applies them again",
						Action: dbAction(andPrintVersion(database.MigrateReset)),
					},
				},
			},
		},
	}
}

// dbAction opens the configured database, which applies pending
// migrations, and runs fn on it.
func dbAction(fn func(io.Writer, *sql.DB) error) cli.ActionFunc {
	return func(_ context.Context, cmd *cli.Command) error {
		cfg := config.NewFromCLI(cmd)

		db, err := database.Open(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				slog.Error("failed to close database", "error", closeErr)
			}
		}()

		w := cmd.Root().Writer
		if w == nil {
			w = os.Stdout
		}
		return fn(w, db.DB)
	}
}

// andPrintVersion runs a migration step and reports the version it left behind.
func andPrintVersion(step func(*sql.DB) error) func(io.Writer, *sql.DB) error {
	return func(w io.Writer, db *sql.DB) error {
		if err := step(db); err != nil {
			return err
		}
		return printVersion(w, db)
	}
}

func printVersion(w io.Writer, db *sql.DB) error {
	version, err := database.Version(db)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "schema version: %d\n", version)
	return err
}
