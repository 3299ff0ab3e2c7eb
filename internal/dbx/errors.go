package dbx

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/dmitrijs2005/keyrelay/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
)

// transient postgres SQLSTATE codes; class 08 (connection exception) is
// matched by prefix.
var unavailableCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
	"57P01": {}, // admin_shutdown
	"57P03": {}, // cannot_connect_now
	"53300": {}, // too_many_connections
}

// Classify wraps err with common.ErrStoreUnavailable when it reports a
// transient store condition: lost connection, lock timeout, deadlock or
// serialization failure. Other errors, including sql.ErrNoRows and context
// cancellation, are returned unchanged.
func Classify(err error) error {
	if err == nil || errors.Is(err, common.ErrStoreUnavailable) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if isUnavailable(err) {
		return fmt.Errorf("%w: %w", common.ErrStoreUnavailable, err)
	}
	return err
}

func isUnavailable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "08") {
			return true
		}
		_, ok := unavailableCodes[pgErr.Code]
		return ok
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsUnavailable reports whether err was classified as a transient store failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, common.ErrStoreUnavailable)
}
