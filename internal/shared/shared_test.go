package shared

import (
	"context"
	"errors"
	"testing"
)

func TestIsSQLiteConflictError(t *testing.T) {
	if !IsSQLiteConflictError(errors.New("exec: database is locked")) {
		t.Fatal("expected locked error to be a conflict")
	}
	if !IsSQLiteConflictError(errors.New("SQLITE_BUSY: try again")) {
		t.Fatal("expected busy error to be a conflict")
	}
	if IsSQLiteConflictError(errors.New("no such table")) || IsSQLiteConflictError(nil) {
		t.Fatal("unexpected conflict classification")
	}
}

func TestRetryOnConflictRetriesBusy(t *testing.T) {
	attempts := 0
	err := RetryOnConflict(context.Background(), "save", func() error {
		attempts++
		if attempts < 2 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil || attempts != 2 {
		t.Fatalf("expected success on attempt 2, got err=%v attempts=%d", err, attempts)
	}
}

func TestRetryOnConflictStopsOnOtherErrors(t *testing.T) {
	attempts := 0
	sentinel := errors.New("constraint failed")
	err := RetryOnConflict(context.Background(), "save", func() error {
		attempts++
		return sentinel
	})
	if !errors.Is(err, sentinel) || attempts != 1 {
		t.Fatalf("expected single attempt wrapping sentinel, got err=%v attempts=%d", err, attempts)
	}
}

func TestIsSQLiteConstraintError(t *testing.T) {
	err := errors.New("constraint failed: UNIQUE constraint failed: chat_sessions.session_id (1555)")
	if !IsSQLiteConstraintError(err) {
		t.Fatal("expected unique violation to be a constraint error")
	}
	if IsSQLiteConstraintError(errors.New("database is locked")) || IsSQLiteConstraintError(nil) {
		t.Fatal("unexpected constraint classification")
	}
}
