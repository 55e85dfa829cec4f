package probe

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/vibhukrishnas/sams-core/internal/domain/target"
)

// SSHProber performs an authenticated SSH handshake to verify the target
// accepts the configured credentials. The session is closed right after the
// handshake; no commands run.
type SSHProber struct{}

// Probe dials and authenticates. Rejected credentials map to auth_failure.
func (p *SSHProber) Probe(ctx context.Context, t *target.Target) Result {
	started := time.Now()

	port := t.Probe.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(t.Address, strconv.Itoa(port))

	var auth []ssh.AuthMethod
	if t.Probe.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(t.Probe.PrivateKey))
		if err != nil {
			return failure(t, started, ErrAuth, "invalid private key")
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if t.Probe.Password != "" {
		auth = append(auth, ssh.Password(t.Probe.Password))
	}
	if len(auth) == 0 {
		return failure(t, started, ErrAuth, "no ssh credentials configured")
	}

	timeout := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	cfg := &ssh.ClientConfig{
		User:            t.Probe.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // reachability check, not a trust decision
		Timeout:         timeout,
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return failure(t, started, Classify(err), err.Error())
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		_ = conn.Close()
		kind := Classify(err)
		if strings.Contains(err.Error(), "unable to authenticate") ||
			strings.Contains(err.Error(), "handshake failed") {
			kind = ErrAuth
		}
		return failure(t, started, kind, err.Error())
	}
	client := ssh.NewClient(c, chans, reqs)
	_ = client.Close()

	return success(t, started)
}
