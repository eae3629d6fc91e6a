package connector

import (
	"context"
	"errors"
	"net"
	"syscall"

	"github.com/kubev2v/esxi-migration-agent/internal/models"
	srvErrors "github.com/kubev2v/esxi-migration-agent/pkg/errors"
)

// Classify maps transport level failures to a ConnectionError. Errors that are
// already classified pass through unchanged; anything unrecognised is a protocol error.
func Classify(err error, platform models.Platform, host string) error {
	if err == nil {
		return nil
	}
	if srvErrors.IsConnectionError(err) {
		return err
	}

	kind := srvErrors.ProtocolError

	var netErr net.Error
	var opErr *net.OpError
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = srvErrors.Timeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = srvErrors.Timeout
	case errors.As(err, &dnsErr),
		errors.As(err, &opErr),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, syscall.ECONNRESET):
		kind = srvErrors.Unreachable
	}

	return srvErrors.NewConnectionError(kind, string(platform), host, err)
}
