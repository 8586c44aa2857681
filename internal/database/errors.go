// Package database classifies errors raised by the SQLite driver behind the
// artifact registry, so registry failures carry an operation and a category
// instead of a bare driver message.
package database

import (
	"errors"
	"fmt"
	"strings"
)

// Error categories for registry database operations
const (
	CategoryBusy       = "busy"
	CategoryConstraint = "constraint"
	CategoryIO         = "io"
	CategoryQuery      = "query"
	CategoryTimeout    = "timeout"
	CategoryUnknown    = "unknown"
)

// DatabaseError represents a categorized database error with context.
//
//nolint:revive // DatabaseError is a clear, descriptive name that doesn't stutter in practice
type DatabaseError struct {
	Category    string // Error category (busy, constraint, io, ...)
	Operation   string // Operation that failed (reserve, commit, resolve, ...)
	Message     string // User-friendly error message
	OriginalErr error  // The underlying driver error
}

func (e *DatabaseError) Error() string {
	msg := fmt.Sprintf("registry %s error in %s: %s", e.Category, e.Operation, e.Message)
	if e.OriginalErr != nil {
		msg += fmt.Sprintf(" (original: %v)", e.OriginalErr)
	}
	return msg
}

func (e *DatabaseError) Unwrap() error {
	return e.OriginalErr
}

// NewDatabaseError creates a new database error with the given details.
func NewDatabaseError(category, operation, message string, originalErr error) *DatabaseError {
	return &DatabaseError{
		Category:    category,
		Operation:   operation,
		Message:     message,
		OriginalErr: originalErr,
	}
}

// Classify wraps a raw driver error in a DatabaseError. nil stays nil, and an
// error that already is a DatabaseError is returned unchanged.
func Classify(err error, operation string) error {
	if err == nil {
		return nil
	}
	if IsDatabaseError(err) {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case isTimeoutError(msg):
		return NewDatabaseError(CategoryTimeout, operation, "operation timed out", err)
	case isBusyError(msg):
		return NewDatabaseError(CategoryBusy, operation, "registry is locked by another writer", err)
	case isConstraintError(msg):
		return NewDatabaseError(CategoryConstraint, operation, extractConstraintMessage(msg), err)
	case isIOError(msg):
		return NewDatabaseError(CategoryIO, operation, "registry file could not be read or written", err)
	case isSyntaxError(msg):
		return NewDatabaseError(CategoryQuery, operation, "SQL syntax error", err)
	default:
		return NewDatabaseError(CategoryUnknown, operation, err.Error(), err)
	}
}

func containsAny(msg string, indicators ...string) bool {
	for _, indicator := range indicators {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}

// isTimeoutError checks if the error is a timeout error.
func isTimeoutError(msg string) bool {
	return containsAny(msg, "timeout", "timed out", "deadline exceeded", "context deadline")
}

// isBusyError checks for SQLite lock contention.
func isBusyError(msg string) bool {
	return containsAny(msg, "database is locked", "sqlite_busy", "database table is locked", "sqlite_locked")
}

// isConstraintError checks if the error is a constraint violation.
func isConstraintError(msg string) bool {
	return containsAny(msg,
		"unique constraint",
		"foreign key constraint",
		"not null constraint",
		"check constraint",
		"constraint failed",
		"sqlite_constraint",
	)
}

// isIOError checks for errors opening or writing the database file.
func isIOError(msg string) bool {
	return containsAny(msg,
		"disk i/o error",
		"unable to open database file",
		"database disk image is malformed",
		"file is not a database",
		"readonly database",
		"database or disk is full",
	)
}

// isSyntaxError checks if the error is a SQL syntax error.
func isSyntaxError(msg string) bool {
	return containsAny(msg, "syntax error", "no such table", "no such column", "near \"")
}

// extractConstraintMessage extracts a user-friendly message from a constraint error.
func extractConstraintMessage(msg string) string {
	switch {
	case strings.Contains(msg, "unique"):
		return "unique constraint violation: duplicate value exists"
	case strings.Contains(msg, "foreign key"):
		return "foreign key constraint violation: referenced record not found"
	case strings.Contains(msg, "not null"):
		return "not-null constraint violation: required field is null"
	case strings.Contains(msg, "check"):
		return "check constraint violation: value does not meet requirements"
	default:
		return "constraint violation"
	}
}

// IsDatabaseError checks if the error is a DatabaseError.
func IsDatabaseError(err error) bool {
	var dbErr *DatabaseError
	return errors.As(err, &dbErr)
}

// GetDatabaseError extracts the DatabaseError from an error chain.
func GetDatabaseError(err error) *DatabaseError {
	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		return dbErr
	}
	return nil
}

// IsCategory reports whether err carries a DatabaseError of the given category.
func IsCategory(err error, category string) bool {
	dbErr := GetDatabaseError(err)
	return dbErr != nil && dbErr.Category == category
}
