package probe

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vibhukrishnas/sams-core/internal/domain/target"
)

// Responses are read only far enough to match the expected body.
const maxBodyBytes = 1 << 20

// HTTPProber issues a GET against the target and optionally matches the
// response status and a body substring.
type HTTPProber struct {
	// Client is overridable for tests; nil uses a default client without
	// redirects disabled.
	Client *http.Client
}

// Probe performs the request. A transport error is classified; an
// unexpected status or missing body substring is an ErrUnknown failure.
func (p *HTTPProber) Probe(ctx context.Context, t *target.Target) Result {
	started := time.Now()

	scheme := "http"
	if t.Probe.TLS {
		scheme = "https"
	}
	port := t.Probe.Port
	if port == 0 {
		if t.Probe.TLS {
			port = 443
		} else {
			port = 80
		}
	}
	path := t.Probe.Path
	if path == "" {
		path = "/"
	}
	url := fmt.Sprintf("%s://%s%s", scheme, net.JoinHostPort(t.Address, strconv.Itoa(port)), path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return failure(t, started, ErrUnknown, err.Error())
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return failure(t, started, Classify(err), err.Error())
	}
	defer resp.Body.Close()

	wantStatus := t.Probe.ExpectedStatus
	if wantStatus == 0 {
		wantStatus = http.StatusOK
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		if wantStatus != resp.StatusCode {
			return failure(t, started, ErrAuth, fmt.Sprintf("unexpected status %d", resp.StatusCode))
		}
	}
	if resp.StatusCode != wantStatus {
		return failure(t, started, ErrUnknown, fmt.Sprintf("expected status %d, got %d", wantStatus, resp.StatusCode))
	}

	if t.Probe.ExpectedBody != "" {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return failure(t, started, Classify(err), err.Error())
		}
		if !strings.Contains(string(body), t.Probe.ExpectedBody) {
			return failure(t, started, ErrUnknown, "response body did not contain expected content")
		}
	}

	return success(t, started)
}
