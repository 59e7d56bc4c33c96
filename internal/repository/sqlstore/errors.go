package sqlstore

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

var errTooManyConflicts = errors.New("too many concurrent modifications")

// isRetryable reports errors caused by lock contention rather than a broken store
func isRetryable(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDeadlock || myErr.Number == mysqlLockWaitTimeout
	}
	return isSQLiteConflict(err)
}
