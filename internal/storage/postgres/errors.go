package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrConnection = errors.New("database connection error")

// mapPostgresError adds context to PostgreSQL errors. Connection failures wrap
// ErrConnection; anything that is not a *pgconn.PgError is returned as is.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return fmt.Errorf("unique constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.NotNullViolation:
		return fmt.Errorf("missing required column %s: %w", pgErr.ColumnName, err)

	case pgerrcode.UndefinedTable:
		return fmt.Errorf("table missing, schema not initialised: %w", err)

	case pgerrcode.InsufficientPrivilege:
		return fmt.Errorf("permission denied: %w", err)

	case pgerrcode.InvalidPassword, pgerrcode.InvalidAuthorizationSpecification:
		return fmt.Errorf("%w: authentication failed: %w", ErrConnection, err)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection,
		pgerrcode.TooManyConnections:
		return fmt.Errorf("%w: %w", ErrConnection, err)

	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return fmt.Errorf("transaction conflict (retryable): %w", err)

	case pgerrcode.QueryCanceled:
		return fmt.Errorf("query canceled: %w", err)

	default:
		return fmt.Errorf("postgres error [%s]: %s (detail: %s, hint: %s): %w",
			pgErr.Code, pgErr.Message, pgErr.Detail, pgErr.Hint, err)
	}
}
