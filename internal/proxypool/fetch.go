package proxypool

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/renlocalizer/renlocalizer/internal/model"
)

// FreeProxySource discovers candidate proxies from some external list.
// Split out as an interface so the pool's rotation logic can be tested
// without network access.
type FreeProxySource interface {
	Fetch(ctx context.Context) ([]model.ProxyInfo, error)
}

// HTTPFreeProxySource scrapes one or more configured free-proxy-list pages.
// Each page is expected to render a <table> with host/port/country cells,
// the common shape these listings use; rows that don't parse are skipped
// rather than aborting the whole fetch.
type HTTPFreeProxySource struct {
	urls   []string
	client *http.Client
}

// NewHTTPFreeProxySource builds a source over urls. An empty list makes
// Fetch a no-op returning (nil, nil), which is the expected shape when the
// operator hasn't opted into free-proxy auto-discovery.
func NewHTTPFreeProxySource(urls []string) *HTTPFreeProxySource {
	return &HTTPFreeProxySource{
		urls:   urls,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *HTTPFreeProxySource) Fetch(ctx context.Context) ([]model.ProxyInfo, error) {
	if len(s.urls) == 0 {
		return nil, nil
	}

	var out []model.ProxyInfo
	for _, u := range s.urls {
		infos, err := s.fetchOne(ctx, u)
		if err != nil {
			continue
		}
		out = append(out, infos...)
	}
	return out, nil
}

func (s *HTTPFreeProxySource) fetchOne(ctx context.Context, listURL string) ([]model.ProxyInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	var out []model.ProxyInfo
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		host := strings.TrimSpace(cells.Eq(0).Text())
		portText := strings.TrimSpace(cells.Eq(1).Text())
		port, err := strconv.Atoi(portText)
		if host == "" || err != nil {
			return
		}
		country := ""
		if cells.Length() > 2 {
			country = strings.TrimSpace(cells.Eq(2).Text())
		}
		out = append(out, model.ProxyInfo{
			Host:     host,
			Port:     port,
			Protocol: "http",
			Country:  country,
		})
	})
	return out, nil
}
