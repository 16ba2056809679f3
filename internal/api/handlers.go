package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/cant-stop-odds/internal/board"
	"github.com/MJE43/cant-stop-odds/internal/engine"
	"github.com/MJE43/cant-stop-odds/internal/report"
	"github.com/MJE43/cant-stop-odds/internal/scan"
	"github.com/MJE43/cant-stop-odds/internal/store"
)

// handleAnalyze analyzes a snapshot posted by the client.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req AnalyzeRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if req.State == nil {
		s.errorHandler.HandleValidationError(w, r, "state", "state is required")
		return
	}

	resp, err := s.analyzeSnapshot(r.Context(), req.GameID, req.State, req.Persist)
	s.ops.record("analyze", time.Since(start), err == nil)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleAnalyzeGame fetches a game from the rules server and analyzes it.
func (s *Server) handleAnalyzeGame(w http.ResponseWriter, r *http.Request) {
	if s.rules == nil {
		s.errorHandler.HandleUnavailable(w, r, "rules server")
		return
	}
	start := time.Now()
	gameID := chi.URLParam(r, "gameID")
	persist := r.URL.Query().Get("persist") == "true"

	state, err := s.rules.State(r.Context(), gameID)
	if err == nil {
		var resp *AnalyzeResponse
		resp, err = s.analyzeSnapshot(r.Context(), gameID, state, persist)
		if err == nil {
			s.ops.record("analyze_game", time.Since(start), true)
			s.writeJSON(w, http.StatusOK, resp)
			return
		}
	}
	s.ops.record("analyze_game", time.Since(start), false)
	s.errorHandler.HandleError(w, r, err)
}

func (s *Server) analyzeSnapshot(ctx context.Context, gameID string, gs *board.GameState, persist bool) (*AnalyzeResponse, error) {
	if err := gs.Validate(); err != nil {
		return nil, err
	}
	st, err := gs.State()
	if err != nil {
		return nil, err
	}
	candidates, err := gs.Candidates()
	if err != nil {
		return nil, err
	}
	a, err := s.analyzer.Analyze(st, candidates)
	if err != nil {
		return nil, err
	}

	resp := &AnalyzeResponse{
		GameID:        gameID,
		Phase:         gs.Phase(),
		Report:        report.Build(a),
		EngineVersion: EngineVersion,
	}

	if s.alerts != nil {
		alerts, err := s.alerts.Alert(resp.Report)
		if err != nil {
			s.logger.Printf("alert_failed request_id=%s err=%v", middleware.GetReqID(ctx), err)
			resp.AlertError = err.Error()
		}
		resp.Alerts = alerts
	}

	if persist {
		id, err := s.persist(ctx, gameID, st, resp.Report)
		if err != nil {
			return nil, err
		}
		resp.ID = id
	}
	return resp, nil
}

func (s *Server) persist(ctx context.Context, gameID string, st engine.State, rep report.Report) (string, error) {
	if s.db == nil {
		return "", errNoStore
	}
	rec, err := NewAnalysisRecord(gameID, st, rep)
	if err != nil {
		return "", err
	}
	if err := s.db.SaveAnalysis(rec); err != nil {
		return "", err
	}
	s.audit.LogEvent(middleware.GetReqID(ctx), "analysis_stored", rec.ID, "success", map[string]interface{}{
		"game_id":   gameID,
		"state_key": rec.StateKey,
	})
	return rec.ID, nil
}

// NewAnalysisRecord flattens a report into the row stored for it.
func NewAnalysisRecord(gameID string, st engine.State, rep report.Report) (*store.Analysis, error) {
	body, err := json.Marshal(rep)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return &store.Analysis{
		GameID:        gameID,
		StateKey:      stateKey(st),
		Active:        st.Active.String(),
		Completed:     st.Completed.String(),
		BustPercent:   rep.BustPercent.InexactFloat64(),
		EV:            rep.EV.EV.InexactFloat64(),
		U:             rep.EV.U,
		Advice:        string(rep.EV.Advice),
		BestChoice:    rep.BestChoice,
		ReportJSON:    string(body),
		EngineVersion: EngineVersion,
	}, nil
}

// stateKey identifies a snapshot by everything the analysis depends on.
func stateKey(st engine.State) string {
	return st.Active.String() + "|" + st.Completed.String() + "|" + st.Temp.Key() + "|" + st.Remaining.Key()
}

// handleEvaluate returns the roll-again metric for a bare position.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req EvaluateRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	ev, err := s.analyzer.Evaluate(req.Active, req.Temp, req.Completed)
	s.ops.record("evaluate", time.Since(start), err == nil)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	s.writeJSON(w, http.StatusOK, EvaluateResponse{
		Evaluation:    ev,
		Summary:       report.Summarize(ev),
		BustRisk:      engine.BustRiskSeries(ev.PBust, engine.RiskHorizon),
		EngineVersion: EngineVersion,
	})
}

// handleSweep runs a runner-set sweep bounded by the sweep timeout.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req scan.SweepRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	maxMs := int(s.sweepTimeout / time.Millisecond)
	if req.TimeoutMs <= 0 || req.TimeoutMs > maxMs {
		req.TimeoutMs = maxMs
	}

	result, err := s.scanner.Sweep(r.Context(), req)
	s.ops.record("sweep", time.Since(start), err == nil)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	requestID := middleware.GetReqID(r.Context())
	s.audit.LogEvent(requestID, "sweep_run", result.ID, "success", map[string]interface{}{
		"metric":    req.Metric,
		"target_op": req.TargetOp,
		"hits":      result.Summary.HitsFound,
		"timed_out": result.Summary.TimedOut,
	})
	s.audit.LogPerformance(requestID, "sweep", time.Since(start), result.Summary.TotalEvaluated, !result.Summary.TimedOut)
	s.writeJSON(w, http.StatusOK, result)
}

// handleListAnalyses pages through stored analyses.
func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.errorHandler.HandleUnavailable(w, r, "analysis store")
		return
	}
	q := store.AnalysesQuery{GameID: r.URL.Query().Get("game_id")}
	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &q.Page}, {"perPage", &q.PerPage}} {
		raw := r.URL.Query().Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.errorHandler.HandleValidationError(w, r, p.name, "must be a non-negative integer")
			return
		}
		*p.dst = n
	}

	list, err := s.db.ListAnalyses(q)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

// handleGetAnalysis returns one stored analysis with its full report.
func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.errorHandler.HandleUnavailable(w, r, "analysis store")
		return
	}
	a, err := s.db.GetAnalysis(chi.URLParam(r, "id"))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	if a == nil {
		s.errorHandler.HandleError(w, r, store.ErrNotFound)
		return
	}

	raw := json.RawMessage(a.ReportJSON)
	if !json.Valid(raw) {
		s.errorHandler.HandleError(w, r, errors.New("stored report is not valid JSON"))
		return
	}
	s.writeJSON(w, http.StatusOK, AnalysisResponse{
		ID:            a.ID,
		GameID:        a.GameID,
		StateKey:      a.StateKey,
		BustPercent:   a.BustPercent,
		EV:            a.EV,
		U:             a.U,
		Advice:        a.Advice,
		BestChoice:    a.BestChoice,
		Report:        raw,
		EngineVersion: a.EngineVersion,
		CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
	})
}
