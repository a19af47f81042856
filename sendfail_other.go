//go:build !unix

package multivu

import (
	"net"

	"github.com/pkg/errors"
)

// isConnectionLost treats any non-timeout socket operation error as a lost
// connection where errno values are not portable.
func isConnectionLost(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && !opErr.Timeout()
}
