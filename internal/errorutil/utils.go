package errorutil

import (
	"context"
	"errors"
)

// IsTimeoutErr returns true if the error is a timeout error.
func IsTimeoutErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var e interface{ Timeout() bool }
	return errors.As(err, &e) && e.Timeout()
}
