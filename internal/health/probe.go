package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Probe checks whether a backend endpoint is alive. A nil error means alive.
type Probe interface {
	Check(ctx context.Context) error
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc func(ctx context.Context) error

// Check calls f.
func (f ProbeFunc) Check(ctx context.Context) error {
	return f(ctx)
}

// VersionPath is the liveness endpoint of the local runtime.
const VersionPath = "/api/version"

// HTTPProbe probes GET {BaseURL}/api/version and treats any 2xx as alive.
type HTTPProbe struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewHTTPProbe creates a probe for the local runtime at baseURL.
func NewHTTPProbe(baseURL string, client *http.Client) *HTTPProbe {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPProbe{BaseURL: strings.TrimRight(baseURL, "/"), HTTPClient: client}
}

// Check implements Probe. The caller bounds it with a context deadline.
func (p *HTTPProbe) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+VersionPath, nil)
	if err != nil {
		return fmt.Errorf("failed to create probe request: %w", err)
	}

	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("local runtime unreachable: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("local runtime returned status %d", resp.StatusCode)
	}
	return nil
}
