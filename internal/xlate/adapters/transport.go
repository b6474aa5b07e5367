// Package adapters holds the four translation backends spec.md §4.4 calls
// for: web-scraping, API-key, local-LLM, and hosted-LLM. None of them cache,
// retry, or limit their own concurrency — that is xlate.Manager's job; an
// adapter's only responsibility is to turn one (or, for MultiQueryAdapter,
// several) model.TranslationRequest into translated text.
package adapters

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	utls "github.com/refraction-networking/utls"

	"github.com/renlocalizer/renlocalizer/internal/model"
)

// fingerprintedClient builds an *http.Client whose TLS ClientHello matches a
// real browser (Chrome's, via utls.HelloChrome_Auto) rather than Go's
// default fingerprint, for backends that are a scraped web UI rather than a
// documented API and so may rate-limit or block on handshake fingerprint
// alone. When proxy is non-zero, requests route through it on a plain
// http.Transport: through-proxy connections skip the custom dial, so they
// carry Go's default TLS fingerprint, not the browser one.
func fingerprintedClient(proxy model.ProxyInfo, timeout time.Duration) *http.Client {
	if proxy.Host != "" {
		proxyURL := &url.URL{Scheme: proxy.Protocol, Host: net.JoinHostPort(proxy.Host, fmt.Sprintf("%d", proxy.Port))}
		return &http.Client{
			Timeout:   timeout,
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}
	}

	dialer := &net.Dialer{Timeout: timeout}
	transport := &http.Transport{
		DialContext: dialer.DialContext,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			rawConn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				host = addr
			}
			uConn := utls.UClient(rawConn, &utls.Config{ServerName: host}, utls.HelloChrome_Auto)
			if err := uConn.HandshakeContext(ctx); err != nil {
				_ = rawConn.Close()
				return nil, err
			}
			return uConn, nil
		},
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}
