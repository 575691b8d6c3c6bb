package repo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"fleet-tracking/internal/domain"
)

// wrapErr classifies storage failures on their way out of the repo layer.
// Connection loss, serialization failures and deadlocks are retryable, so
// they surface as ErrTransient (503 at the HTTP boundary) instead of a
// generic server fault.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && transientCode(pgErr.Code) {
		return fmt.Errorf("%w: %s", domain.ErrTransient, err)
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %s", domain.ErrTransient, err)
	}
	return err
}

func transientCode(code string) bool {
	switch code {
	case "40001", // serialization_failure
		"40P01", // deadlock_detected
		"53300", // too_many_connections
		"57P03": // cannot_connect_now
		return true
	}
	// Class 08: connection exceptions.
	return strings.HasPrefix(code, "08")
}
