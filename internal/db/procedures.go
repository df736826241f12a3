package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

func ProcedureExists(ctx context.Context, dbConn *sqlx.DB, dialect Dialect, name string) (bool, error) {
	if dbConn == nil {
		return false, errors.New("db connection is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !ValidProcedureName(name) {
		return false, fmt.Errorf("invalid procedure name %q", name)
	}

	var found int
	if err := dbConn.QueryRowxContext(ctx, dialect.procedureExistsQuery(), name).Scan(&found); err != nil {
		return false, err
	}
	return found > 0, nil
}

// EnsureProcedures reports the first missing procedure among names.
func EnsureProcedures(ctx context.Context, dbConn *sqlx.DB, dialect Dialect, names ...string) error {
	for _, name := range names {
		ok, err := ProcedureExists(ctx, dbConn, dialect, name)
		if err != nil {
			return fmt.Errorf("check procedure %s: %w", name, err)
		}
		if !ok {
			return fmt.Errorf("procedure %s not found", name)
		}
	}
	return nil
}
