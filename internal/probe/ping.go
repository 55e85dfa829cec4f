package probe

import (
	"context"
	"os/exec"
	"runtime"
	"strconv"
	"time"

	"github.com/vibhukrishnas/sams-core/internal/domain/target"
)

// PingProber checks basic reachability with the system ping binary. Raw ICMP
// sockets need elevated privileges, so shelling out keeps the daemon
// unprivileged.
type PingProber struct{}

// Probe sends a single echo request and waits for the reply.
func (p *PingProber) Probe(ctx context.Context, t *target.Target) Result {
	started := time.Now()

	deadline, ok := ctx.Deadline()
	waitSecs := 5
	if ok {
		if s := int(time.Until(deadline).Seconds()); s >= 1 {
			waitSecs = s
		} else {
			waitSecs = 1
		}
	}

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "ping", "-n", "1", "-w", strconv.Itoa(waitSecs*1000), t.Address)
	} else {
		cmd = exec.CommandContext(ctx, "ping", "-c", "1", "-W", strconv.Itoa(waitSecs), t.Address)
	}

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return failure(t, started, ErrTimeout, "ping deadline exceeded")
		}
		// Non-zero exit means no reply; ping resolves names itself so a
		// resolution failure also surfaces as a failed run.
		return failure(t, started, ErrUnknown, "host did not respond to ping")
	}
	return success(t, started)
}
