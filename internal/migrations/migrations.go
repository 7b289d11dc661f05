// Package migrations applies the embedded goose migrations for the configured dialect.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"

	"spis/m/internal/database"
	"spis/m/internal/logger"
)

//go:embed sql/postgres/*.sql sql/sqlite/*.sql
var files embed.FS

// goose keeps its dialect, filesystem and logger in package globals.
var mu sync.Mutex

func gooseDialect(d database.Dialect) (string, string, error) {
	switch d {
	case database.DialectPostgres:
		return "postgres", "sql/postgres", nil
	case database.DialectSQLite:
		return "sqlite3", "sql/sqlite", nil
	}
	return "", "", fmt.Errorf("no migrations for dialect %q", d)
}

// Up applies every pending migration.
func Up(ctx context.Context, db *sql.DB, dialect database.Dialect, logg *logger.Logger) error {
	return Run(ctx, db, dialect, "up", logg)
}

// Run executes a goose command (up, down, redo, status, version, reset, up-to, down-to).
func Run(ctx context.Context, db *sql.DB, dialect database.Dialect, command string, logg *logger.Logger, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	name, dir, err := gooseDialect(dialect)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	goose.SetBaseFS(files)
	goose.SetLogger(gooseLogger{ctx: ctx, logg: logg})
	if err := goose.SetDialect(name); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// gooseLogger routes goose output through the structured logger; nil discards it.
type gooseLogger struct {
	ctx  context.Context
	logg *logger.Logger
}

func (g gooseLogger) Printf(format string, v ...any) {
	if g.logg == nil {
		return
	}
	g.logg.Info(g.ctx, strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	msg := strings.TrimSpace(fmt.Sprintf(format, v...))
	if g.logg != nil {
		g.logg.Error(g.ctx, "migration.fatal", fmt.Errorf("%s", msg))
	}
	panic(msg)
}

// Files exposes the embedded migration sources.
func Files() fs.FS {
	return files
}
