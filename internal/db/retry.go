package db

import (
	"strings"
	"time"
)

const (
	busyMaxAttempts  = 5
	busyInitialDelay = 10 * time.Millisecond
)

// isSQLiteBusy reports whether err is a SQLITE_BUSY / locked-database
// error. The driver surfaces these as strings, not typed errors.
func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// retryOnBusy runs op, retrying with exponential backoff while it fails
// with a busy error. Any other error is returned immediately. After
// busyMaxAttempts the last busy error is returned.
func retryOnBusy(op func() error) error {
	delay := busyInitialDelay
	var err error
	for attempt := 0; attempt < busyMaxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(delay)
			delay *= 2
		}
		err = op()
		if err == nil || !isSQLiteBusy(err) {
			return err
		}
	}
	return err
}
