package db

import (
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/teranos/clpipe/errors"
)

// ErrDatabaseClosed is returned when the run log is used after Close.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed matches ErrDatabaseClosed and the raw database/sql message,
// which is not a typed error.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrDatabaseClosed) || strings.Contains(err.Error(), "database is closed")
}

// IsBusy reports a write that gave up waiting for another clpipe process
// holding the run log (SQLITE_BUSY or SQLITE_LOCKED after the busy timeout).
func IsBusy(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}
