package api

import (
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/cant-stop-odds/internal/engine"
	"github.com/MJE43/cant-stop-odds/internal/store"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResponse represents a comprehensive health check response
type HealthCheckResponse struct {
	Status        HealthStatus           `json:"status"`
	Timestamp     string                 `json:"timestamp"`
	EngineVersion string                 `json:"engine_version"`
	GitCommit     string                 `json:"git_commit,omitempty"`
	BuildTime     string                 `json:"build_time,omitempty"`
	Uptime        string                 `json:"uptime"`
	Checks        map[string]HealthCheck `json:"checks"`
	System        SystemInfo             `json:"system"`
	RequestID     string                 `json:"request_id,omitempty"`
}

// HealthCheck represents an individual health check
type HealthCheck struct {
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	LastChecked string       `json:"last_checked"`
	Duration    string       `json:"duration,omitempty"`
}

// SystemInfo contains system information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	NumCPU        int    `json:"num_cpu"`
	GOMAXPROCS    int    `json:"gomaxprocs"`
	MemoryAlloc   uint64 `json:"memory_alloc_bytes"`
	MemoryTotal   uint64 `json:"memory_total_bytes"`
	MemorySys     uint64 `json:"memory_sys_bytes"`
	GCCycles      uint32 `json:"gc_cycles"`
}

// MetricsResponse represents basic performance metrics
type MetricsResponse struct {
	Timestamp     string               `json:"timestamp"`
	EngineVersion string               `json:"engine_version"`
	Uptime        string               `json:"uptime"`
	System        SystemInfo           `json:"system"`
	Cache         engine.CacheStats    `json:"cache"`
	Operations    map[string]OpMetrics `json:"operations"`
	RequestID     string               `json:"request_id,omitempty"`
}

// OpMetrics represents operation-specific metrics
type OpMetrics struct {
	TotalRequests   uint64  `json:"total_requests"`
	SuccessRequests uint64  `json:"success_requests"`
	ErrorRequests   uint64  `json:"error_requests"`
	AvgDurationMs   float64 `json:"avg_duration_ms"`
	LastRequest     string  `json:"last_request,omitempty"`

	totalDuration time.Duration
}

// opRecorder accumulates per-operation counters for /metrics.
type opRecorder struct {
	mu  sync.Mutex
	ops map[string]*OpMetrics
}

func newOpRecorder() *opRecorder {
	return &opRecorder{ops: make(map[string]*OpMetrics)}
}

func (o *opRecorder) record(op string, d time.Duration, success bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	m, ok := o.ops[op]
	if !ok {
		m = &OpMetrics{}
		o.ops[op] = m
	}
	m.TotalRequests++
	if success {
		m.SuccessRequests++
	} else {
		m.ErrorRequests++
	}
	m.totalDuration += d
	m.AvgDurationMs = float64(m.totalDuration) / float64(m.TotalRequests) / float64(time.Millisecond)
	m.LastRequest = time.Now().UTC().Format(time.RFC3339)
}

func (o *opRecorder) snapshot() map[string]OpMetrics {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make(map[string]OpMetrics, len(o.ops))
	for k, v := range o.ops {
		out[k] = *v
	}
	return out
}

// handleHealthCheck provides comprehensive health check endpoint
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())

	checks := map[string]HealthCheck{
		"engine":   s.checkEngineHealth(),
		"database": s.checkDatabaseHealth(),
		"rules":    s.checkRulesHealth(),
	}

	overallStatus := HealthStatusHealthy
	for name, check := range checks {
		switch {
		case check.Status == HealthStatusUnhealthy && name != "rules":
			overallStatus = HealthStatusUnhealthy
		case check.Status != HealthStatusHealthy && overallStatus == HealthStatusHealthy:
			overallStatus = HealthStatusDegraded
		}
	}

	response := HealthCheckResponse{
		Status:        overallStatus,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		EngineVersion: EngineVersion,
		GitCommit:     GitCommit,
		BuildTime:     BuildTime,
		Uptime:        time.Since(s.startTime).String(),
		Checks:        checks,
		System:        getSystemInfo(),
		RequestID:     requestID,
	}

	statusCode := http.StatusOK
	if overallStatus == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	s.writeJSON(w, statusCode, response)
}

// handleMetrics reports cache and per-operation counters
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	response := MetricsResponse{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		EngineVersion: EngineVersion,
		Uptime:        time.Since(s.startTime).String(),
		System:        getSystemInfo(),
		Operations:    s.ops.snapshot(),
		RequestID:     middleware.GetReqID(r.Context()),
	}
	if s.analyzer != nil {
		response.Cache = s.analyzer.CacheStats()
	}
	s.writeJSON(w, http.StatusOK, response)
}

// handleReadiness provides readiness probe endpoint
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())

	ready := true
	message := "Ready"
	switch {
	case s.analyzer == nil:
		ready, message = false, "Analyzer not initialized"
	case s.scanner == nil:
		ready, message = false, "Scanner not initialized"
	case s.db == nil:
		ready, message = false, "Database not initialized"
	}

	response := map[string]interface{}{
		"ready":          ready,
		"message":        message,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"engine_version": EngineVersion,
		"request_id":     requestID,
	}

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}
	s.writeJSON(w, statusCode, response)
}

// handleLiveness provides liveness probe endpoint
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"alive":          true,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"engine_version": EngineVersion,
		"uptime":         time.Since(s.startTime).String(),
		"request_id":     middleware.GetReqID(r.Context()),
	}
	s.writeJSON(w, http.StatusOK, response)
}

// checkEngineHealth sweeps the opening position and checks the known count.
func (s *Server) checkEngineHealth() HealthCheck {
	start := time.Now()
	status := HealthStatusHealthy
	message := "Engine healthy"

	if s.analyzer == nil {
		status, message = HealthStatusUnhealthy, "Analyzer not initialized"
	} else if st, err := s.analyzer.Stats(engine.Position{}); err != nil {
		status, message = HealthStatusUnhealthy, err.Error()
	} else if st.BustCount != 0 || st.SafeCount != engine.OutcomeCount {
		status = HealthStatusUnhealthy
		message = fmt.Sprintf("opening sweep returned %d/%d safe", st.SafeCount, engine.OutcomeCount)
	}

	return HealthCheck{
		Status:      status,
		Message:     message,
		LastChecked: time.Now().UTC().Format(time.RFC3339),
		Duration:    time.Since(start).String(),
	}
}

// checkDatabaseHealth checks database connectivity
func (s *Server) checkDatabaseHealth() HealthCheck {
	start := time.Now()
	status := HealthStatusHealthy
	message := "Database connection healthy"

	if s.db == nil {
		status, message = HealthStatusUnhealthy, "Database not initialized"
	} else if _, err := s.db.ListAnalyses(store.AnalysesQuery{PerPage: 1}); err != nil {
		status, message = HealthStatusUnhealthy, err.Error()
	}

	return HealthCheck{
		Status:      status,
		Message:     message,
		LastChecked: time.Now().UTC().Format(time.RFC3339),
		Duration:    time.Since(start).String(),
	}
}

// checkRulesHealth reports whether game lookups are available. It never
// contacts the rules server.
func (s *Server) checkRulesHealth() HealthCheck {
	status := HealthStatusHealthy
	message := "Rules server configured"
	if s.rules == nil {
		status, message = HealthStatusDegraded, "No rules server configured"
	}
	return HealthCheck{
		Status:      status,
		Message:     message,
		LastChecked: time.Now().UTC().Format(time.RFC3339),
	}
}

// getSystemInfo collects system information
func getSystemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemInfo{
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		GOMAXPROCS:    runtime.GOMAXPROCS(0),
		MemoryAlloc:   m.Alloc,
		MemoryTotal:   m.TotalAlloc,
		MemorySys:     m.Sys,
		GCCycles:      m.NumGC,
	}
}
