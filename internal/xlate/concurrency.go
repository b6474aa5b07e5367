package xlate

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const windowCapacity = 500

// outcome is one request's contribution to the adaptive controller's
// sliding window.
type outcome struct {
	latency time.Duration
	success bool
}

var (
	metricConcurrency = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "renlocalizer_xlate_concurrency",
		Help: "Current adaptive concurrency limit for the translation manager.",
	})
	metricAvgLatency = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "renlocalizer_xlate_window_avg_latency_seconds",
		Help: "Average latency over the adaptive controller's sliding window.",
	})
	metricFailureRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "renlocalizer_xlate_window_failure_rate",
		Help: "Failure rate over the adaptive controller's sliding window.",
	})
	concurrencyMetricsOnce sync.Once
)

func registerConcurrencyMetrics() {
	concurrencyMetricsOnce.Do(func() {
		prometheus.MustRegister(metricConcurrency, metricAvgLatency, metricFailureRate)
	})
}

// adaptiveController implements spec.md §4.4's adaptive concurrency rules:
// a bounded sliding window of the last ~500 outcomes, shrinking or growing
// a weighted semaphore within [floor, cap]. The window is re-evaluated only
// from Record, once ≥20 samples are present and at least adapt_interval has
// passed since the last evaluation; no timer re-evaluates it between
// Records.
type adaptiveController struct {
	mu     sync.Mutex
	window []outcome
	head   int
	filled int

	floor   int64
	cap     int64
	current int64
	sem     *semaphore.Weighted

	lastAdapt time.Time
	interval  time.Duration
}

func newAdaptiveController(floor, cap int, interval time.Duration) *adaptiveController {
	if floor <= 0 {
		floor = 4
	}
	if cap < floor {
		cap = floor
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	registerConcurrencyMetrics()
	c := &adaptiveController{
		window:    make([]outcome, windowCapacity),
		floor:     int64(floor),
		cap:       int64(cap),
		current:   int64(floor),
		sem:       semaphore.NewWeighted(int64(floor)),
		lastAdapt: time.Time{},
		interval:  interval,
	}
	metricConcurrency.Set(float64(floor))
	return c
}

// Semaphore returns the live weighted semaphore. Its capacity changes over
// time as adapt() resizes it, so callers must re-read it per acquire.
func (c *adaptiveController) Semaphore() *semaphore.Weighted {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sem
}

// Record appends one request's outcome to the sliding window and, if
// adapt_interval has elapsed and the window has enough samples, adapts the
// concurrency limit.
func (c *adaptiveController) Record(latency time.Duration, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.window[c.head] = outcome{latency: latency, success: success}
	c.head = (c.head + 1) % len(c.window)
	if c.filled < len(c.window) {
		c.filled++
	}

	now := time.Now()
	if c.filled < 20 {
		return
	}
	if !c.lastAdapt.IsZero() && now.Sub(c.lastAdapt) < c.interval {
		return
	}
	c.lastAdapt = now
	c.adaptLocked()
}

func (c *adaptiveController) adaptLocked() {
	var totalLatency time.Duration
	var failures int
	for i := 0; i < c.filled; i++ {
		o := c.window[i]
		totalLatency += o.latency
		if !o.success {
			failures++
		}
	}
	avgLatency := totalLatency / time.Duration(c.filled)
	failureRate := float64(failures) / float64(c.filled)
	metricAvgLatency.Set(avgLatency.Seconds())
	metricFailureRate.Set(failureRate)

	prev := c.current
	switch {
	case failureRate > 0.20 || avgLatency > 1500*time.Millisecond:
		next := int64(float64(c.current) * 0.8)
		if next < c.floor {
			next = c.floor
		}
		c.current = next
	case failureRate < 0.05 && avgLatency < 500*time.Millisecond:
		next := c.current + 1
		if grown := int64(float64(c.current) * 1.1); grown > next {
			next = grown
		}
		if next > c.cap {
			next = c.cap
		}
		c.current = next
	}

	if c.current != prev {
		log.Infof("xlate: adaptive concurrency %d -> %d (avg_latency=%s failure_rate=%.2f%%)",
			prev, c.current, avgLatency, failureRate*100)
		c.sem = semaphore.NewWeighted(c.current)
		metricConcurrency.Set(float64(c.current))
	}
}
