// Package httpserver exposes the finished analysis over a small JSON API:
// the ranked report itself, the optional LLM summary, and live aggregates
// from the entry store.
package httpserver

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tinytelemetry/triage/internal/model"
)

// Server provides an HTTP API over a finished analysis run.
type Server struct {
	addr      string
	store     model.StoreQuerier
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time

	mu      sync.RWMutex
	report  *model.RankedReport
	summary string
}

// NewServer creates a new HTTP API server. store may be nil when no entry
// store is configured; store-backed endpoints then answer 503.
func NewServer(addr string, store model.StoreQuerier) *Server {
	if addr == "" {
		addr = "0.0.0.0:3000"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:   addr,
		store:  store,
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetReport publishes the ranked report served by /api/report.
func (s *Server) SetReport(report *model.RankedReport) {
	s.mu.Lock()
	s.report = report
	s.mu.Unlock()
}

// SetSummary publishes the LLM summary served by /api/summary.
func (s *Server) SetSummary(summary string) {
	s.mu.Lock()
	s.summary = summary
	s.mu.Unlock()
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	s.register(r)

	s.server = &http.Server{
		Handler:           r,
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.startTime = time.Now()

	go s.server.Serve(listener)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) register(r *gin.Engine) {
	r.GET("/api/health", s.handleHealth)
	r.GET("/api/report", s.handleReport)
	r.GET("/api/summary", s.handleSummary)
	r.GET("/api/services", s.handleServices)
	r.GET("/api/severity", s.handleSeverity)
	r.GET("/api/namespaces", s.handleNamespaces)
	r.GET("/api/critical", s.handleCritical)
}

func (s *Server) handleHealth(c *gin.Context) {
	payload := gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	}
	if s.store != nil {
		count, err := s.store.TotalEntryCount()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
			return
		}
		payload["entry_count"] = count
	}
	c.JSON(http.StatusOK, payload)
}

func (s *Server) handleReport(c *gin.Context) {
	s.mu.RLock()
	report := s.report
	s.mu.RUnlock()

	if report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no report available yet"})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleSummary(c *gin.Context) {
	s.mu.RLock()
	summary := s.summary
	s.mu.RUnlock()

	if summary == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no summary available"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

func (s *Server) handleServices(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "entry store not configured"})
		return
	}
	limit := model.DefaultTopServices
	services, err := s.store.TopServices(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read service counts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"services": services})
}

func (s *Server) handleSeverity(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "entry store not configured"})
		return
	}
	counts, err := s.store.SeverityCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read severity counts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"severity": counts})
}

func (s *Server) handleCritical(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "entry store not configured"})
		return
	}
	counts, err := s.store.CriticalServiceCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read critical counts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"critical": counts})
}

func (s *Server) handleNamespaces(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "entry store not configured"})
		return
	}
	counts, err := s.store.NamespaceCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read namespace counts"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"namespaces": counts})
}
