// Package api serves the odds engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/cant-stop-odds/internal/board"
	"github.com/MJE43/cant-stop-odds/internal/engine"
	"github.com/MJE43/cant-stop-odds/internal/report"
	"github.com/MJE43/cant-stop-odds/internal/scan"
	"github.com/MJE43/cant-stop-odds/internal/store"
)

// GameSource fetches live snapshots. *rules.Client satisfies it.
type GameSource interface {
	State(ctx context.Context, gameID string) (*board.GameState, error)
}

// Alerter runs user alert rules over a report. *scripting.VM satisfies it.
type Alerter interface {
	Alert(r report.Report) ([]string, error)
}

// Options configures optional collaborators and limits.
type Options struct {
	Rules          GameSource
	Alerts         Alerter
	RequestTimeout time.Duration
	SweepTimeout   time.Duration
	Logger         *log.Logger
	Audit          *AuditLogger
}

const (
	defaultRequestTimeout = 30 * time.Second
	defaultSweepTimeout   = 10 * time.Second
	maxBodyBytes          = 1 << 20
)

// Server handles HTTP requests
type Server struct {
	db           store.DB
	analyzer     *engine.Analyzer
	scanner      *scan.Scanner
	rules        GameSource
	alerts       Alerter
	errorHandler *ErrorHandler
	logger       *log.Logger
	audit        *AuditLogger
	ops          *opRecorder
	startTime    time.Time

	requestTimeout time.Duration
	sweepTimeout   time.Duration
}

// NewServer creates a new API server
func NewServer(db store.DB, analyzer *engine.Analyzer, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[API] ", log.LstdFlags|log.Lshortfile)
	}
	audit := opts.Audit
	if audit == nil {
		audit = NewAuditLogger()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.SweepTimeout <= 0 {
		opts.SweepTimeout = defaultSweepTimeout
	}
	if analyzer == nil {
		// lru.New only fails for a non-positive size.
		analyzer, _ = engine.NewAnalyzer(engine.DefaultCacheSize)
	}

	server := &Server{
		db:             db,
		analyzer:       analyzer,
		scanner:        scan.NewScanner(analyzer, EngineVersion),
		rules:          opts.Rules,
		alerts:         opts.Alerts,
		errorHandler:   NewErrorHandler(logger, audit),
		logger:         logger,
		audit:          audit,
		ops:            newOpRecorder(),
		startTime:      time.Now(),
		requestTimeout: opts.RequestTimeout,
		sweepTimeout:   opts.SweepTimeout,
	}

	audit.LogStartup(map[string]interface{}{
		"database_enabled": db != nil,
		"rules_enabled":    opts.Rules != nil,
		"alerts_enabled":   opts.Alerts != nil,
		"sweep_timeout":    opts.SweepTimeout.String(),
	})

	return server
}

// Routes sets up the HTTP routes with proper middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.LoggingMiddleware)
	r.Use(s.errorHandler.RecoveryHandler)
	r.Use(middleware.Timeout(s.requestTimeout))
	r.Use(s.CORSMiddleware)

	r.Get("/health", s.handleHealthCheck)
	r.Get("/health/ready", s.handleReadiness)
	r.Get("/health/live", s.handleLiveness)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/evaluate", s.handleEvaluate)
		r.Post("/sweep", s.handleSweep)
		r.Get("/analyses", s.handleListAnalyses)
		r.Get("/analyses/{id}", s.handleGetAnalysis)
		r.Post("/games/{gameID}/analyze", s.handleAnalyzeGame)
		r.Get("/version", s.handleVersion)
	})

	return r
}

// writeJSON writes a JSON response with proper headers
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("response_encode_failed status=%d err=%v", status, err)
	}
}

// decodeJSON reads a bounded JSON body into v.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, GetVersionInfo())
}
