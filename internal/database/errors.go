package database

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"spis/m/internal/apperr"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

func pgCode(err error) (string, string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName, true
	}
	return "", "", false
}

func sqliteCode(err error) (int, string, bool) {
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.Code(), sqlErr.Error(), true
	}
	return 0, "", false
}

// IsUniqueViolation reports whether err is a unique/primary key violation.
func IsUniqueViolation(err error) bool {
	if code, _, ok := pgCode(err); ok {
		return code == pgUniqueViolation
	}
	if code, msg, ok := sqliteCode(err); ok {
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
			strings.Contains(msg, "UNIQUE constraint failed")
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsUniqueViolationOn narrows IsUniqueViolation to a column or constraint name fragment.
func IsUniqueViolationOn(err error, fragment string) bool {
	if !IsUniqueViolation(err) {
		return false
	}
	if _, constraint, ok := pgCode(err); ok {
		return strings.Contains(constraint, fragment)
	}
	return strings.Contains(err.Error(), fragment)
}

func IsForeignKeyViolation(err error) bool {
	if code, _, ok := pgCode(err); ok {
		return code == pgForeignKeyViolation
	}
	if code, msg, ok := sqliteCode(err); ok {
		return code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY || strings.Contains(msg, "FOREIGN KEY constraint failed")
	}
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func IsCheckViolation(err error) bool {
	if code, _, ok := pgCode(err); ok {
		return code == pgCheckViolation
	}
	if code, msg, ok := sqliteCode(err); ok {
		return code == sqlite3.SQLITE_CONSTRAINT_CHECK || strings.Contains(msg, "CHECK constraint failed")
	}
	return err != nil && strings.Contains(err.Error(), "CHECK constraint failed")
}

// Classify maps constraint violations to typed errors and leaves everything else as internal.
// entity names the record in the public message, e.g. "supplier".
func Classify(err error, entity string) error {
	switch {
	case err == nil:
		return nil
	case apperr.As(err) != nil:
		return err
	case errors.Is(err, sql.ErrNoRows):
		return apperr.NotFound(entity)
	case IsUniqueViolation(err):
		return apperr.Wrap(apperr.CodeConflict, err, entity+" already exists")
	case IsForeignKeyViolation(err):
		return apperr.Wrap(apperr.CodeConflict, err, entity+" is referenced by other records")
	case IsCheckViolation(err):
		return apperr.Wrap(apperr.CodeValidation, err, entity+" violates a data constraint")
	}
	return apperr.Wrap(apperr.CodeInternal, err, entity+" query failed")
}
