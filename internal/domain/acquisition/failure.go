package acquisition

import (
	"context"
	"database/sql/driver"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/cockroachdb/errors"
)

// Failure classes surfaced by a cycle. Use errors.Is against these to
// find out how a cycle failed; the original cause stays in the chain.
var (
	ErrTransport  = errors.New("transport failure")
	ErrTimeout    = errors.New("timeout failure")
	ErrUnexpected = errors.New("unexpected failure")
)

// FailureKind is the classification of a cycle failure.
type FailureKind int

const (
	KindNone FailureKind = iota
	KindTransport
	KindTimeout
	KindUnexpected
)

func (k FailureKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransport:
		return "transport"
	case KindTimeout:
		return "timeout"
	case KindUnexpected:
		return "unexpected"
	default:
		return "unknown"
	}
}

// Classify marks err with its failure class.
//
// Transport and timeout failures keep their message and cause untouched so
// callers see the same error they would have seen from the collaborator.
// Anything else is wrapped as an unexpected error carrying the original
// message. Errors that already carry a class are returned as they are.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.IsAny(err, ErrTransport, ErrTimeout, ErrUnexpected):
		return err
	case isTimeout(err):
		return errors.Mark(err, ErrTimeout)
	case isTransport(err):
		return errors.Mark(err, ErrTransport)
	default:
		return errors.Mark(errors.Wrap(err, "an unexpected error occurred"), ErrUnexpected)
	}
}

// KindOf reports the failure class of err, classifying it first if needed.
func KindOf(err error) FailureKind {
	if err == nil {
		return KindNone
	}
	err = Classify(err)
	switch {
	case errors.Is(err, ErrTransport):
		return KindTransport
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	default:
		return KindUnexpected
	}
}

func isTimeout(err error) bool {
	if errors.IsAny(err, context.DeadlineExceeded, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isTransport(err error) bool {
	if errors.IsAny(err,
		io.ErrUnexpectedEOF,
		driver.ErrBadConn,
		syscall.ECONNREFUSED,
		syscall.ECONNRESET,
		syscall.ECONNABORTED,
		syscall.EPIPE,
	) {
		return true
	}

	// Only network-layer error types; a bare syscall.Errno also satisfies net.Error.
	// *url.Error is not one of them: the client also uses it for local faults
	// such as an unsupported scheme.
	var (
		opErr  *net.OpError
		dnsErr *net.DNSError
	)
	return errors.As(err, &opErr) || errors.As(err, &dnsErr)
}
