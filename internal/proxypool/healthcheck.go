package proxypool

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/renlocalizer/renlocalizer/internal/model"
)

// healthCheckURL is requested through the candidate proxy to confirm it is
// alive and forwards traffic before it is ever handed to an adapter.
const healthCheckURL = "https://www.google.com/generate_204"

// HealthCheck issues a single request for healthCheckURL through proxy and
// reports the round-trip time on success. Callers that already hold a
// preferred probe target can ignore the constant above by wrapping this
// with their own client; RenLocalizer always uses the default.
func HealthCheck(ctx context.Context, proxy model.ProxyInfo, timeout time.Duration) (time.Duration, bool) {
	proxyURL, err := url.Parse(fmt.Sprintf("%s://%s:%d", proxy.Protocol, proxy.Host, proxy.Port))
	if err != nil {
		return 0, false
	}

	client := &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthCheckURL, nil)
	if err != nil {
		return 0, false
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return 0, false
	}
	return time.Since(start), true
}
