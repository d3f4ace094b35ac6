package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/siteledger/internal/shared"
)

// SQLSTATE codes that signal the transaction lost a race and may be retried by the caller.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// Classify maps errors crossing the store boundary onto the shared taxonomy.
// Errors already classified, context errors and pgx.ErrNoRows are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if isClassified(err) || errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return &shared.StoreError{Kind: shared.ErrConcurrencyConflict, Code: pgErr.Code, Err: err}
		}
		return &shared.StoreError{Kind: shared.ErrPersistence, Code: pgErr.Code, Err: err}
	}
	return &shared.StoreError{Kind: shared.ErrPersistence, Err: err}
}

func isClassified(err error) bool {
	for _, target := range []error{
		shared.ErrValidation,
		shared.ErrNotFound,
		shared.ErrInvalidState,
		shared.ErrConcurrencyConflict,
		shared.ErrPersistence,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
