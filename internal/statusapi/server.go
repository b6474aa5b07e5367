// Package statusapi exposes the pipeline orchestrator's event stream and
// diagnostics over a small optional HTTP surface (SPEC_FULL.md §10): a
// health/metrics endpoint always mounted the way the teacher's API server
// always mounts one, a diagnostics lookup, and a websocket feed of live
// pipeline events for an external tool (e.g. a future GUI) to drive off of.
// It is never started unless the embedding CLI asks for it.
package statusapi

import (
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/renlocalizer/renlocalizer/internal/apperrors"
	"github.com/renlocalizer/renlocalizer/internal/diagnostics"
	"github.com/renlocalizer/renlocalizer/internal/pipeline"
)

var (
	metricsOnce sync.Once

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renlocalizer_http_requests_total",
			Help: "Total number of status API requests processed",
		},
		[]string{"method", "path", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "renlocalizer_http_request_duration_seconds",
			Help:    "Duration of status API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func registerMetrics() {
	metricsOnce.Do(func() {
		prometheus.MustRegister(httpRequestsTotal, httpRequestDurationSeconds)
	})
}

// Server is the optional status/event HTTP surface. It is stateless beyond
// what it needs to look up diagnostics and subscribe to one orchestrator's
// events; it never drives the pipeline itself.
type Server struct {
	engine  *gin.Engine
	http    *http.Server
	history *diagnostics.History
	gameDir string
}

// New builds a Server. history may be nil (diagnostics history disabled).
func New(orch *pipeline.Orchestrator, history *diagnostics.History, gameDir string) *Server {
	registerMetrics()
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(requestMetricsMiddleware(), gin.Recovery())

	s := &Server{engine: engine, history: history, gameDir: gameDir}

	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/diagnostics/:lang", s.handleDiagnostics)
	engine.GET("/events", s.handleEvents(orch))

	return s
}

// ListenAndServe blocks serving on addr until the server errors or Shutdown
// is called from another goroutine.
func (s *Server) ListenAndServe(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.engine}
	return s.http.ListenAndServe()
}

func requestMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDurationSeconds.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleDiagnostics(c *gin.Context) {
	lang := c.Param("lang")
	if lang == "" {
		e := apperrors.BadRequest("lang path parameter is required", nil)
		c.JSON(e.HTTPStatusCode, e)
		return
	}

	path := diagnostics.ReportPath(s.gameDir, lang)
	if _, err := os.Stat(path); err != nil {
		e := apperrors.NotFound("no diagnostic report for this language", err)
		c.JSON(e.HTTPStatusCode, e)
		return
	}
	c.File(path)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleEvents upgrades the connection and relays every Event the
// orchestrator emits as JSON, one message per event, until the channel
// closes (the pipeline run finished) or the client disconnects.
func (s *Server) handleEvents(orch *pipeline.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.WithError(err).Warn("statusapi: websocket upgrade failed")
			return
		}
		defer func() { _ = conn.Close() }()

		connID := uuid.NewString()
		log.WithField("conn_id", connID).Info("statusapi: event stream client connected")

		for e := range orch.Events() {
			if err := conn.WriteJSON(e); err != nil {
				log.WithField("conn_id", connID).WithError(err).Warn("statusapi: event stream write failed")
				return
			}
		}
	}
}
