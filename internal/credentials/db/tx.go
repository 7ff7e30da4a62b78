package db

import (
	"context"
	"database/sql"
	"errors"
)

// WithTx runs fn inside a transaction, it commits when fn returns nil and
// rolls back otherwise.
func WithTx(ctx context.Context, database *sql.DB, fn func(tx *Queries) error) error {
	sqltx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	err = fn(New(sqltx))
	if err != nil {
		return errors.Join(err, sqltx.Rollback())
	}
	return sqltx.Commit()
}
