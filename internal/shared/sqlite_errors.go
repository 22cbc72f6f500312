// Package shared provides common utilities used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import "strings"

// modernc.org/sqlite reports result codes only in the error text.
func sqliteErrorContains(err error, fragments ...string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, f := range fragments {
		if strings.Contains(msg, f) {
			return true
		}
	}
	return false
}

// IsSQLiteConflictError reports whether err is a busy or locked database
// error that is safe to retry.
func IsSQLiteConflictError(err error) bool {
	return sqliteErrorContains(err, "SQLITE_BUSY", "database is locked")
}

// IsSQLiteConstraintError reports whether err is a uniqueness or primary key
// violation, e.g. creating a chat session with an id already in use.
func IsSQLiteConstraintError(err error) bool {
	return sqliteErrorContains(err, "UNIQUE constraint failed", "SQLITE_CONSTRAINT")
}
