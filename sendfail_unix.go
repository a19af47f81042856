//go:build unix

package multivu

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// isConnectionLost reports whether err means the socket can no longer carry
// data: broken pipe, reset, aborted or refused.
func isConnectionLost(err error) bool {
	for _, errno := range []error{unix.EPIPE, unix.ECONNRESET, unix.ECONNABORTED, unix.ECONNREFUSED} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}
