// Package proxypool manages the shared free/personal proxy pool used by
// translation adapters: health-tested rotation, personal-proxy precedence
// (spec.md §4.4), and success-rate tracking for the candidates it offers.
package proxypool

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/renlocalizer/renlocalizer/internal/config"
	"github.com/renlocalizer/renlocalizer/internal/model"
)

// ErrNoProxyAvailable is returned by Next when every candidate is either
// absent or currently cooling down after repeated failures.
var ErrNoProxyAvailable = errors.New("proxypool: no proxy available")

// candidate wraps the public model.ProxyInfo with the health bookkeeping
// Next needs but that callers have no business mutating directly.
type candidate struct {
	info          model.ProxyInfo
	cooldownUntil time.Time
}

func (c *candidate) key() string { return c.info.Protocol + "://" + c.info.Host + ":" + strconv.Itoa(c.info.Port) }

func (c *candidate) blocked(now time.Time) bool {
	return !c.info.IsWorking || now.Before(c.cooldownUntil)
}

// Pool is the process-wide singleton described by spec.md §5 ("the proxy
// pool is a singleton shared across adapters; its list is mutated under an
// internal mutex"). The zero value is not usable; construct with New.
type Pool struct {
	cfg config.ProxyConfig

	mu      sync.Mutex
	cursor  int
	proxies []*candidate
	// personal is set once, at construction, when PersonalProxyURL or
	// ManualProxies are configured. Its presence disables auto-fetch
	// entirely, per spec.md §4.4's personal proxy precedence rule.
	personal *candidate

	rotateMu sync.Mutex
	running  bool
	cancel   context.CancelFunc

	source FreeProxySource
}

// New builds a Pool from the proxy config section. When a personal proxy or
// manual proxy list is configured, the pool serves those exclusively and
// StartAutoRotate becomes a no-op; otherwise it is empty until the first
// Refresh (manual or via StartAutoRotate).
func New(cfg config.ProxyConfig) (*Pool, error) {
	p := &Pool{cfg: cfg, source: NewHTTPFreeProxySource(cfg.SourceURLs)}

	if strings.TrimSpace(cfg.PersonalProxyURL) != "" {
		c, err := parseProxyURL(cfg.PersonalProxyURL, true)
		if err != nil {
			return nil, fmt.Errorf("proxypool: personal_proxy_url: %w", err)
		}
		p.personal = c
		return p, nil
	}

	if len(cfg.ManualProxies) > 0 {
		for _, raw := range cfg.ManualProxies {
			c, err := parseProxyURL(raw, false)
			if err != nil {
				log.Warnf("proxypool: skipping manual proxy %q: %v", raw, err)
				continue
			}
			p.proxies = append(p.proxies, c)
		}
		// Manual proxies also preempt auto-fetch: the user named the pool
		// explicitly, so nothing is added behind their back.
		if len(p.proxies) > 0 {
			p.personal = p.proxies[0]
		}
	}

	return p, nil
}

func parseProxyURL(raw string, personal bool) (*candidate, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("missing host in %q", raw)
	}
	port, _ := strconv.Atoi(u.Port())
	protocol := u.Scheme
	if protocol == "" {
		protocol = "http"
	}
	return &candidate{info: model.ProxyInfo{
		Host:       u.Hostname(),
		Port:       port,
		Protocol:   protocol,
		IsWorking:  true,
		IsPersonal: personal,
	}}, nil
}

// HasPersonalOverride reports whether a personal or manual proxy was
// configured, per spec.md §4.4: when true, adapters must route through
// Next's single result exclusively and never trigger auto-fetch.
func (p *Pool) HasPersonalOverride() bool {
	return p.personal != nil
}

// Next returns the next proxy to use, round-robin among the currently
// healthy candidates, deterministically ordered like the teacher's
// RoundRobinSelector.Pick so repeated runs with the same pool state behave
// the same way. When a personal/manual proxy is configured it is always
// returned, bypassing rotation.
func (p *Pool) Next() (model.ProxyInfo, error) {
	if p.personal != nil {
		return p.personal.info, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	available := make([]*candidate, 0, len(p.proxies))
	for _, c := range p.proxies {
		if !c.blocked(now) {
			available = append(available, c)
		}
	}
	if len(available) == 0 {
		return model.ProxyInfo{}, ErrNoProxyAvailable
	}
	sort.Slice(available, func(i, j int) bool { return available[i].key() < available[j].key() })

	if p.cursor >= len(available) || p.cursor < 0 {
		p.cursor = 0
	}
	chosen := available[p.cursor%len(available)]
	p.cursor++
	return chosen.info, nil
}

// MarkSuccess records a successful use of proxy, updating its rolling
// uptime and response-time stats.
func (p *Pool) MarkSuccess(proxy model.ProxyInfo, responseTime time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.find(proxy)
	if c == nil {
		return
	}
	c.info.SuccessCount++
	c.info.ResponseTime = responseTime.Seconds()
	c.info.IsWorking = true
	c.info.Uptime = c.info.SuccessRate()
}

// MarkFailure records a failed use of proxy. Once its failure count exceeds
// its success count by max_failures (5 when unset), the proxy is put into
// cooldown for update_interval and excluded from Next until it passes a
// health check again.
func (p *Pool) MarkFailure(proxy model.ProxyInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.find(proxy)
	if c == nil {
		return
	}
	c.info.FailureCount++
	c.info.Uptime = c.info.SuccessRate()
	maxFailures := p.cfg.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if c.info.FailureCount-c.info.SuccessCount >= maxFailures {
		c.info.IsWorking = false
		cooldown := p.cfg.UpdateInterval
		if cooldown <= 0 {
			cooldown = 10 * time.Minute
		}
		c.cooldownUntil = time.Now().Add(cooldown)
		log.Warnf("proxypool: %s exceeded %d failures, cooling down until %s",
			c.key(), maxFailures, c.cooldownUntil.Format(time.RFC3339))
	}
}

func (p *Pool) find(proxy model.ProxyInfo) *candidate {
	for _, c := range p.proxies {
		if c.info.Host == proxy.Host && c.info.Port == proxy.Port && c.info.Protocol == proxy.Protocol {
			return c
		}
	}
	if p.personal != nil && p.personal.info.Host == proxy.Host && p.personal.info.Port == proxy.Port {
		return p.personal
	}
	return nil
}

// Snapshot returns the current known proxies' public info, for diagnostics
// and the optional status API.
func (p *Pool) Snapshot() []model.ProxyInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.ProxyInfo, 0, len(p.proxies)+1)
	if p.personal != nil {
		out = append(out, p.personal.info)
	}
	for _, c := range p.proxies {
		out = append(out, c.info)
	}
	return out
}

// Refresh fetches free proxies (when no personal override is set and a
// source is configured), health-tests each candidate, and merges the
// working ones into the pool. It is always safe to call even when the pool
// is personal-only; it then returns immediately.
func (p *Pool) Refresh(ctx context.Context) error {
	if p.personal != nil {
		return nil
	}
	if p.source == nil {
		return nil
	}
	fetched, err := p.source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("proxypool: fetch: %w", err)
	}

	tested := make([]*candidate, 0, len(fetched))
	for _, info := range fetched {
		elapsed, ok := HealthCheck(ctx, info, 5*time.Second)
		if !ok {
			continue
		}
		info.IsWorking = true
		info.ResponseTime = elapsed.Seconds()
		tested = append(tested, &candidate{info: info})
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	existing := make(map[string]*candidate, len(p.proxies))
	for _, c := range p.proxies {
		existing[c.key()] = c
	}
	for _, c := range tested {
		if old, ok := existing[c.key()]; ok {
			old.info.ResponseTime = c.info.ResponseTime
			old.info.IsWorking = true
			continue
		}
		p.proxies = append(p.proxies, c)
	}
	log.Infof("proxypool: refreshed, %d candidates healthy out of %d fetched", len(tested), len(fetched))
	return nil
}

// StartAutoRotate launches the periodic Refresh loop described by
// auto_rotate/update_interval, in the teacher's background-poller shape
// (internal/updates.Poller.Start/Stop). A no-op when a personal override is
// configured or auto_rotate is false. Safe to call once; a second call
// before Stop is a no-op.
func (p *Pool) StartAutoRotate() {
	if p.personal != nil || !p.cfg.AutoRotate {
		return
	}
	p.rotateMu.Lock()
	if p.running {
		p.rotateMu.Unlock()
		return
	}
	p.running = true
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.rotateMu.Unlock()

	go p.rotateLoop(ctx)
}

// Stop halts the auto-rotate loop started by StartAutoRotate.
func (p *Pool) Stop() {
	p.rotateMu.Lock()
	defer p.rotateMu.Unlock()
	if !p.running {
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.running = false
}

func (p *Pool) rotateLoop(ctx context.Context) {
	interval := p.cfg.UpdateInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	if err := p.Refresh(ctx); err != nil {
		log.Warnf("proxypool: initial refresh failed: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("proxypool: auto-rotate stopped")
			return
		case <-ticker.C:
			if err := p.Refresh(ctx); err != nil {
				log.Warnf("proxypool: refresh failed: %v", err)
			}
		}
	}
}
