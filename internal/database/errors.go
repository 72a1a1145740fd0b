package database

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"

	"github.com/runclub/clubsync/internal/models"
)

// classify marks errors that mean the database as a whole is unreachable or refusing
// work with models.ErrStoreUnavailable. Anything else concerns the statement at hand.
func classify(err error) error {
	if err == nil || !unavailable(err) {
		return err
	}
	return fmt.Errorf("%w: %w", models.ErrStoreUnavailable, err)
}

func unavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", // connection exception
			"53": // insufficient resources
			return true
		}
		// admin_shutdown, crash_shutdown, cannot_connect_now
		return strings.HasPrefix(string(pqErr.Code), "57P")
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
