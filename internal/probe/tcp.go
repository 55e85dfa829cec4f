package probe

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/vibhukrishnas/sams-core/internal/domain/target"
)

// TCPProber checks that a TCP connect to the configured port succeeds.
type TCPProber struct{}

// Probe dials the target and closes the connection immediately.
func (p *TCPProber) Probe(ctx context.Context, t *target.Target) Result {
	started := time.Now()

	addr := net.JoinHostPort(t.Address, strconv.Itoa(t.Probe.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return failure(t, started, Classify(err), err.Error())
	}
	_ = conn.Close()
	return success(t, started)
}
