package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// WrapTx runs f inside a transaction, committing when f succeeds and
// rolling back otherwise.
func WrapTx(ctx context.Context, db *sqlx.DB, f func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := f(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			dbLogger.Errorf("Rollback failed: %v\n", rbErr)
		}
		return err
	}

	return tx.Commit()
}
