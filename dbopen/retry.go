package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const maxRetries = 3

// IsBusy reports whether err indicates an SQLite BUSY condition.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// RunTx executes fn inside a transaction, retrying on SQLITE_BUSY with
// linear backoff (100/200/300 ms). Any other error returns immediately.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if err = runOnce(ctx, db, fn); err == nil {
			return nil
		}
		if !IsBusy(err) {
			return err
		}
		if werr := waitRetry(ctx, attempt); werr != nil {
			return werr
		}
	}
	return fmt.Errorf("dbopen: RunTx: %w after %d attempts", err, maxRetries)
}

func runOnce(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbopen: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: commit: %w", err)
	}
	return nil
}

// Exec executes a single statement with the same BUSY retry policy as RunTx.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		var result sql.Result
		if result, err = db.ExecContext(ctx, query, args...); err == nil {
			return result, nil
		}
		if !IsBusy(err) {
			return nil, err
		}
		if werr := waitRetry(ctx, attempt); werr != nil {
			return nil, werr
		}
	}
	return nil, fmt.Errorf("dbopen: Exec: %w after %d attempts", err, maxRetries)
}

func waitRetry(ctx context.Context, attempt int) error {
	t := time.NewTimer(time.Duration(100*attempt) * time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("dbopen: context cancelled during retry: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
