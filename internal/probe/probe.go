package probe

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/vibhukrishnas/sams-core/internal/domain/target"
)

// ErrorKind classifies a failed probe. Probe errors never cross the
// scheduler boundary as Go errors; they travel inside Results.
type ErrorKind string

const (
	ErrNone       ErrorKind = ""
	ErrTimeout    ErrorKind = "timeout"
	ErrRefused    ErrorKind = "connection_refused"
	ErrDNSFailure ErrorKind = "dns_failure"
	ErrAuth       ErrorKind = "auth_failure"
	ErrUnknown    ErrorKind = "unknown"
)

// Result is the uniform outcome of a single probe invocation. Immutable;
// consumed by the target state machine and discarded.
type Result struct {
	TargetID  string
	Method    string
	Success   bool
	Latency   time.Duration
	ErrorKind ErrorKind
	Message   string
	Timestamp time.Time
}

// Prober is a pluggable health check driver. Implementations must honor ctx
// cancellation and return a classified failure instead of panicking.
type Prober interface {
	// Probe runs one check against the target. A nil error with ok=false is
	// not allowed: failures are reported through the Result's ErrorKind.
	Probe(ctx context.Context, t *target.Target) Result
}

// ForTarget selects the driver for a target's configured method.
func ForTarget(t *target.Target) Prober {
	switch t.Probe.Method {
	case target.MethodTCP:
		return &TCPProber{}
	case target.MethodHTTP:
		return &HTTPProber{}
	case target.MethodSSH:
		return &SSHProber{}
	default:
		return &PingProber{}
	}
}

// Classify maps a transport error to an ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrNone
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrDNSFailure
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrRefused
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return ErrUnknown
}

func failure(t *target.Target, started time.Time, kind ErrorKind, msg string) Result {
	return Result{
		TargetID:  t.ID,
		Method:    t.Probe.Method,
		Success:   false,
		Latency:   time.Since(started),
		ErrorKind: kind,
		Message:   msg,
		Timestamp: time.Now(),
	}
}

func success(t *target.Target, started time.Time) Result {
	return Result{
		TargetID:  t.ID,
		Method:    t.Probe.Method,
		Success:   true,
		Latency:   time.Since(started),
		Timestamp: time.Now(),
	}
}
