package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/MJE43/cant-stop-odds/internal/api"
	"github.com/MJE43/cant-stop-odds/internal/config"
	"github.com/MJE43/cant-stop-odds/internal/engine"
	"github.com/MJE43/cant-stop-odds/internal/rules"
	"github.com/MJE43/cant-stop-odds/internal/scripting"
	"github.com/MJE43/cant-stop-odds/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := log.New(os.Stdout, "[ODDSD] ", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatalf("oddsd: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	db, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Printf("analysis store ready at %s", cfg.DBPath)

	opts := api.Options{
		RequestTimeout: cfg.RequestTimeout,
		SweepTimeout:   cfg.SweepTimeout,
		Audit:          api.NewAuditLogger(),
	}
	if cfg.RulesURL != "" {
		opts.Rules = rules.NewClient(rules.Config{BaseURL: cfg.RulesURL, UserAgent: "oddsd/" + api.EngineVersion})
		logger.Printf("rules server: %s", cfg.RulesURL)
	}
	if cfg.AlertScript != "" {
		vm, err := scripting.LoadFile(cfg.AlertScript)
		if err != nil {
			return err
		}
		opts.Alerts = vm
		logger.Printf("alert script loaded from %s", cfg.AlertScript)
	}

	analyzer, err := engine.NewAnalyzer(cfg.CacheSize)
	if err != nil {
		return err
	}
	srv := api.NewServer(db, analyzer, opts)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	logger.Printf("listening on http://%s", ln.Addr())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Printf("shutting down")
	opts.Audit.LogEvent("", "shutdown", "oddsd", "success", map[string]interface{}{
		"addr": cfg.Addr,
	})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// openStore opens the analysis database, creating its directory as needed.
func openStore(path string) (*store.SQLiteDB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := store.NewSQLiteDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
