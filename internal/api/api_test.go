package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/MJE43/cant-stop-odds/internal/board"
	"github.com/MJE43/cant-stop-odds/internal/engine"
	"github.com/MJE43/cant-stop-odds/internal/report"
	"github.com/MJE43/cant-stop-odds/internal/rules"
	"github.com/MJE43/cant-stop-odds/internal/scan"
	"github.com/MJE43/cant-stop-odds/internal/store"
)

// mockDB is a simple in-memory implementation of store.DB for testing
type mockDB struct {
	mu    sync.Mutex
	saved []*store.Analysis
}

func (m *mockDB) Close() error   { return nil }
func (m *mockDB) Migrate() error { return nil }

func (m *mockDB) SaveAnalysis(a *store.Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = "analysis-" + string(rune('a'+len(m.saved)))
	}
	m.saved = append(m.saved, a)
	return nil
}

func (m *mockDB) GetAnalysis(id string) (*store.Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.saved {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockDB) ListAnalyses(q store.AnalysesQuery) (*store.AnalysesList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []store.Analysis{}
	for _, a := range m.saved {
		if q.GameID == "" || a.GameID == q.GameID {
			out = append(out, *a)
		}
	}
	return &store.AnalysesList{Analyses: out, TotalCount: len(out), Page: 1, PerPage: store.DefaultPerPage, TotalPages: 1}, nil
}

type fakeRules struct {
	states map[string]*board.GameState
}

func (f *fakeRules) State(ctx context.Context, gameID string) (*board.GameState, error) {
	if gs, ok := f.states[gameID]; ok {
		return gs, nil
	}
	return nil, &rules.APIError{StatusCode: http.StatusNotFound, Detail: "Game not found"}
}

type fakeAlerter struct{}

func (fakeAlerter) Alert(r report.Report) ([]string, error) {
	return []string{"u=" + strconv.Itoa(r.EV.U)}, nil
}

// saturatedState has three runners on 6, 7 and 8 with one step each.
func saturatedState() *board.GameState {
	return &board.GameState{
		CurrentPlayer: 1,
		ActiveRunners: []int{6, 7, 8},
		TempProgress:  engine.Progress{6: 1, 7: 1, 8: 1},
	}
}

func newTestServer(db store.DB, opts Options) *Server {
	opts.Logger = log.New(io.Discard, "", 0)
	opts.Audit = NewAuditLoggerTo(io.Discard)
	analyzer, _ := engine.NewAnalyzer(engine.DefaultCacheSize)
	return NewServer(db, analyzer, opts)
}

func doRequest(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(&mockDB{}, Options{})

	w := doRequest(t, server.Routes(), "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response HealthCheckResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Checks["engine"].Status != HealthStatusHealthy {
		t.Errorf("Expected healthy engine, got %+v", response.Checks["engine"])
	}
	if response.Status != HealthStatusDegraded {
		t.Errorf("Expected degraded without a rules server, got %s", response.Status)
	}
	if w.Header().Get("X-Engine-Version") != EngineVersion {
		t.Errorf("Expected X-Engine-Version header %q", EngineVersion)
	}
}

func TestProbeEndpoints(t *testing.T) {
	server := newTestServer(&mockDB{}, Options{})
	for _, path := range []string{"/health/live", "/health/ready", "/api/v1/version"} {
		t.Run(path, func(t *testing.T) {
			w := doRequest(t, server.Routes(), "GET", path, nil)
			if w.Code != http.StatusOK {
				t.Errorf("Expected status 200, got %d", w.Code)
			}
		})
	}

	noDB := newTestServer(nil, Options{})
	w := doRequest(t, noDB.Routes(), "GET", "/health/ready", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without a database, got %d", w.Code)
	}
}

func TestAnalyzeEndpoint(t *testing.T) {
	db := &mockDB{}
	server := newTestServer(db, Options{Alerts: fakeAlerter{}})

	w := doRequest(t, server.Routes(), "POST", "/api/v1/analyze", AnalyzeRequest{
		GameID:  "g-1",
		State:   saturatedState(),
		Persist: true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var response AnalyzeResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !response.Report.BustPercent.Equal(decimal.RequireFromString("8.0")) {
		t.Errorf("Expected bust 8.0, got %s", response.Report.BustPercent)
	}
	if response.Report.EV.U != 3 {
		t.Errorf("Expected U 3, got %d", response.Report.EV.U)
	}
	if response.Phase != board.PhaseAwaitingRoll {
		t.Errorf("Expected phase %s, got %s", board.PhaseAwaitingRoll, response.Phase)
	}
	if len(response.Alerts) != 1 || response.Alerts[0] != "u=3" {
		t.Errorf("Expected alert [u=3], got %v", response.Alerts)
	}
	if response.ID == "" {
		t.Fatal("Expected a stored analysis id")
	}

	stored, err := db.GetAnalysis(response.ID)
	if err != nil {
		t.Fatalf("Expected analysis to be stored: %v", err)
	}
	if stored.GameID != "g-1" || !strings.HasPrefix(stored.StateKey, "{6,7,8}|{}|6:1,7:1,8:1|2:3,") {
		t.Errorf("Unexpected stored analysis %+v", stored)
	}
	if stored.BustPercent != 8.0 || stored.U != 3 {
		t.Errorf("Expected headline bust 8.0 and U 3, got %v and %d", stored.BustPercent, stored.U)
	}
}

func TestAnalyzeWithoutPersist(t *testing.T) {
	db := &mockDB{}
	server := newTestServer(db, Options{})

	w := doRequest(t, server.Routes(), "POST", "/api/v1/analyze", AnalyzeRequest{State: saturatedState()})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if len(db.saved) != 0 {
		t.Errorf("Expected nothing stored, got %d", len(db.saved))
	}
}

func TestAnalyzeValidation(t *testing.T) {
	server := newTestServer(&mockDB{}, Options{})

	tooMany := saturatedState()
	tooMany.ActiveRunners = []int{5, 6, 7, 8}

	tests := []struct {
		name     string
		body     interface{}
		wantCode int
		wantType string
	}{
		{"malformed json", `{"state":`, http.StatusBadRequest, ErrTypeValidation},
		{"missing state", `{"game_id":"g"}`, http.StatusBadRequest, ErrTypeValidation},
		{"four runners", AnalyzeRequest{State: tooMany}, http.StatusBadRequest, ErrTypeInvalidState},
		{"bad player", AnalyzeRequest{State: &board.GameState{CurrentPlayer: 3}}, http.StatusBadRequest, ErrTypeInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, server.Routes(), "POST", "/api/v1/analyze", tt.body)
			if w.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			if got := w.Header().Get("X-Error-Type"); got != tt.wantType {
				t.Errorf("Expected error type %s, got %s", tt.wantType, got)
			}

			var engineErr EngineError
			if err := json.NewDecoder(w.Body).Decode(&engineErr); err != nil {
				t.Fatalf("Failed to decode error: %v", err)
			}
			if engineErr.RequestID == "" {
				t.Error("Expected request id in error body")
			}
		})
	}
}

func TestEvaluateEndpoint(t *testing.T) {
	server := newTestServer(&mockDB{}, Options{})

	w := doRequest(t, server.Routes(), "POST", "/api/v1/evaluate",
		`{"active":[6,7,8],"completed":[],"temp":{"6":1,"7":1,"8":1}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var response EvaluateResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.Evaluation.U != 3 {
		t.Errorf("Expected U 3, got %d", response.Evaluation.U)
	}
	if response.Evaluation.PBust != 104.0/1296.0 {
		t.Errorf("Expected bust %f, got %f", 104.0/1296.0, response.Evaluation.PBust)
	}
	if len(response.BustRisk) != engine.RiskHorizon {
		t.Errorf("Expected %d risk rows, got %d", engine.RiskHorizon, len(response.BustRisk))
	}
	if response.Summary.Advice != report.AdviceRoll {
		t.Errorf("Expected advice roll, got %s", response.Summary.Advice)
	}

	w = doRequest(t, server.Routes(), "POST", "/api/v1/evaluate", `{"active":[6,7,8],"completed":[7]}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a runner on a completed column, got %d", w.Code)
	}
}

func TestSweepEndpoint(t *testing.T) {
	server := newTestServer(&mockDB{}, Options{})

	w := doRequest(t, server.Routes(), "POST", "/api/v1/sweep", scan.SweepRequest{
		MinRunners: 3,
		Metric:     scan.MetricBust,
		TargetOp:   scan.OpGreaterEqual,
		TargetVal:  0.5,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var result scan.SweepResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result.Summary.HitsFound != 2 {
		t.Errorf("Expected 2 hits, got %d", result.Summary.HitsFound)
	}
	if result.Echo.TimeoutMs != int(defaultSweepTimeout.Milliseconds()) {
		t.Errorf("Expected timeout capped to %d, got %d", defaultSweepTimeout.Milliseconds(), result.Echo.TimeoutMs)
	}

	w = doRequest(t, server.Routes(), "POST", "/api/v1/sweep", `{"metric":"luck","target_op":"eq"}`)
	if w.Code != http.StatusBadRequest || w.Header().Get("X-Error-Type") != ErrTypeInvalidSweep {
		t.Errorf("Expected 400 %s, got %d %s", ErrTypeInvalidSweep, w.Code, w.Header().Get("X-Error-Type"))
	}
}

func TestAnalysesEndpoints(t *testing.T) {
	db := &mockDB{}
	server := newTestServer(db, Options{})
	db.SaveAnalysis(&store.Analysis{ID: "a1", GameID: "g-1", ReportJSON: `{"bust_percent":"8"}`})
	db.SaveAnalysis(&store.Analysis{ID: "a2", GameID: "g-2", ReportJSON: `{}`})

	w := doRequest(t, server.Routes(), "GET", "/api/v1/analyses?game_id=g-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var list store.AnalysesList
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if list.TotalCount != 1 || list.Analyses[0].ID != "a1" {
		t.Errorf("Expected only a1, got %+v", list)
	}

	w = doRequest(t, server.Routes(), "GET", "/api/v1/analyses?page=x", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a bad page, got %d", w.Code)
	}

	w = doRequest(t, server.Routes(), "GET", "/api/v1/analyses/a1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var got AnalysisResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if string(got.Report) != `{"bust_percent":"8"}` {
		t.Errorf("Expected raw report, got %s", got.Report)
	}

	w = doRequest(t, server.Routes(), "GET", "/api/v1/analyses/missing", nil)
	if w.Code != http.StatusNotFound || w.Header().Get("X-Error-Type") != ErrTypeNotFound {
		t.Errorf("Expected 404 %s, got %d %s", ErrTypeNotFound, w.Code, w.Header().Get("X-Error-Type"))
	}
}

func TestAnalyzeGameEndpoint(t *testing.T) {
	withoutRules := newTestServer(&mockDB{}, Options{})
	w := doRequest(t, withoutRules.Routes(), "POST", "/api/v1/games/g-1/analyze", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without a rules server, got %d", w.Code)
	}

	db := &mockDB{}
	server := newTestServer(db, Options{
		Rules: &fakeRules{states: map[string]*board.GameState{"g-1": saturatedState()}},
	})

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantType string
	}{
		{"known game", "/api/v1/games/g-1/analyze?persist=true", http.StatusOK, ""},
		{"unknown game", "/api/v1/games/nope/analyze", http.StatusNotFound, ErrTypeGameNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, server.Routes(), "POST", tt.path, nil)
			if w.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			if got := w.Header().Get("X-Error-Type"); got != tt.wantType {
				t.Errorf("Expected error type %q, got %q", tt.wantType, got)
			}
		})
	}
	if len(db.saved) != 1 || db.saved[0].GameID != "g-1" {
		t.Errorf("Expected one stored analysis for g-1, got %d", len(db.saved))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(&mockDB{}, Options{})
	h := server.Routes()

	for i := 0; i < 2; i++ {
		doRequest(t, h, "POST", "/api/v1/evaluate", `{"active":[2,12]}`)
	}

	w := doRequest(t, h, "GET", "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var response MetricsResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if op := response.Operations["evaluate"]; op.TotalRequests != 2 || op.SuccessRequests != 2 {
		t.Errorf("Expected 2 successful evaluations, got %+v", op)
	}
	if response.Cache.Hits < 1 {
		t.Errorf("Expected the repeated position to hit the cache, got %+v", response.Cache)
	}
}

func TestCORSPreflight(t *testing.T) {
	server := newTestServer(&mockDB{}, Options{})
	w := doRequest(t, server.Routes(), "OPTIONS", "/api/v1/analyze", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header")
	}
}
