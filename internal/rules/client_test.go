package rules

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testClient(server *httptest.Server) *Client {
	return NewClient(Config{
		BaseURL:        server.URL + "/api",
		HTTPClient:     server.Client(),
		BaseRetryDelay: time.Millisecond,
		MaxRetryDelay:  5 * time.Millisecond,
	})
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Config{BaseURL: "localhost:8000/api"})
	if c.config.MaxRetries != 3 {
		t.Errorf("expected 3 retries, got %d", c.config.MaxRetries)
	}
	if got := c.endpoint("/games"); got != "http://localhost:8000/api/games" {
		t.Errorf("unexpected endpoint %s", got)
	}
	if c.retryDelay(1) != 500*time.Millisecond || c.retryDelay(2) != time.Second {
		t.Errorf("unexpected backoff %v %v", c.retryDelay(1), c.retryDelay(2))
	}
	if c.retryDelay(10) != 5*time.Second {
		t.Errorf("backoff not capped: %v", c.retryDelay(10))
	}
}

func TestCreateGame(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/games" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("missing Content-Type header")
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["player1_name"] != "Ada" || body["player2_name"] != "Grace" {
			t.Errorf("unexpected body %v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"game_id": "g-1",
			"state": map[string]any{
				"current_player": 1,
				"player1_name":   "Ada",
				"active_runners": []int{},
				"temp_progress":  map[string]int{},
			},
		})
	}))
	defer server.Close()

	g, err := testClient(server).CreateGame(context.Background(), "Ada", "Grace")
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	if g.ID != "g-1" {
		t.Errorf("expected game g-1, got %s", g.ID)
	}
	if g.State.CurrentPlayer != 1 || g.State.Player1Name != "Ada" {
		t.Errorf("unexpected state %+v", g.State)
	}
}

func TestStateActions(t *testing.T) {
	tests := []struct {
		name string
		call func(*Client) error
		path string
	}{
		{"roll", func(c *Client) error { _, err := c.Roll(context.Background(), "g-1"); return err }, "/api/games/g-1/roll"},
		{"stop", func(c *Client) error { _, err := c.Stop(context.Background(), "g-1"); return err }, "/api/games/g-1/stop"},
		{"continue", func(c *Client) error { _, err := c.Continue(context.Background(), "g-1"); return err }, "/api/games/g-1/continue"},
		{"undo", func(c *Client) error { _, err := c.Undo(context.Background(), "g-1"); return err }, "/api/games/g-1/undo"},
		{"redo", func(c *Client) error { _, err := c.Redo(context.Background(), "g-1"); return err }, "/api/games/g-1/redo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotPath string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				w.Write([]byte(`{"state": {"current_player": 2, "current_dice": [1, 2, 3, 4]}}`))
			}))
			defer server.Close()

			if err := tt.call(testClient(server)); err != nil {
				t.Fatalf("call failed: %v", err)
			}
			if gotPath != tt.path {
				t.Errorf("expected path %s, got %s", tt.path, gotPath)
			}
		})
	}
}

func TestChooseSendsPickedSum(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["pairing_index"] != float64(1) || req["chosen_number"] != float64(8) {
			t.Errorf("unexpected choose body %v", req)
		}
		w.Write([]byte(`{"state": {"current_player": 1, "active_runners": [8], "temp_progress": {"8": 1}}}`))
	}))
	defer server.Close()

	eight := 8
	gs, err := testClient(server).Choose(context.Background(), "g-1", ChooseRequest{PairingIndex: 1, ChosenNumber: &eight})
	if err != nil {
		t.Fatalf("Choose failed: %v", err)
	}
	if gs.TempProgress[8] != 1 {
		t.Errorf("expected temp 8:1, got %v", gs.TempProgress)
	}
}

func TestStateFromSave(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/games/g-9/save" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"filename": "cant_stop_g-9.json", "data": {"current_player": 2, "player1_completed": [7]}}`))
	}))
	defer server.Close()

	gs, err := testClient(server).State(context.Background(), "g-9")
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if gs.CurrentPlayer != 2 || len(gs.Player1Completed) != 1 {
		t.Errorf("unexpected state %+v", gs)
	}
}

func TestLoadUploadsMultipart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("expected multipart upload, got %s", r.Header.Get("Content-Type"))
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file: %v", err)
		}
		data, _ := io.ReadAll(f)
		if hdr.Filename != "save.json" || string(data) != `{"current_player":1}` {
			t.Errorf("unexpected upload %s %s", hdr.Filename, data)
		}
		w.Write([]byte(`{"game_id": "g-2", "state": {"current_player": 1}}`))
	}))
	defer server.Close()

	g, err := testClient(server).Load(context.Background(), "save.json", []byte(`{"current_player":1}`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if g.ID != "g-2" {
		t.Errorf("expected g-2, got %s", g.ID)
	}
}

func TestRetryOnServerError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 2 {
			w.WriteHeader(503)
			w.Write([]byte("warming up"))
			return
		}
		w.Write([]byte(`{"filename": "x.json", "data": {}}`))
	}))
	defer server.Close()

	if _, err := testClient(server).Save(context.Background(), "g-1"); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestMovesAreNotRetried(t *testing.T) {
	tests := []struct {
		name string
		call func(c *Client) error
	}{
		{"roll", func(c *Client) error {
			_, err := c.Roll(context.Background(), "g-1")
			return err
		}},
		{"stop", func(c *Client) error {
			_, err := c.Stop(context.Background(), "g-1")
			return err
		}},
		{"create game", func(c *Client) error {
			_, err := c.CreateGame(context.Background(), "Ada", "Grace")
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts++
				w.WriteHeader(500)
			}))
			defer server.Close()

			err := tt.call(testClient(server))
			var httpErr *HTTPError
			if !errors.As(err, &httpErr) || httpErr.StatusCode != 500 {
				t.Fatalf("expected HTTPError 500, got %v", err)
			}
			if attempts != 1 {
				t.Errorf("expected 1 attempt, got %d", attempts)
			}
		})
	}
}

func TestMaxRetriesExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(429)
	}))
	defer server.Close()

	_, err := testClient(server).Save(context.Background(), "g-1")
	if err == nil || !strings.Contains(err.Error(), "max retries exceeded") {
		t.Fatalf("expected max retries error, got %v", err)
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || !httpErr.IsRateLimited() {
		t.Errorf("expected wrapped rate limit error, got %v", err)
	}
}

func TestAPIErrorDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
		w.Write([]byte(`{"detail": "Game not found"}`))
	}))
	defer server.Close()

	_, err := testClient(server).Stop(context.Background(), "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if !apiErr.IsNotFound() || apiErr.Detail != "Game not found" {
		t.Errorf("unexpected error %+v", apiErr)
	}
}

func TestEmptyGameID(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	if _, err := c.Roll(context.Background(), ""); !errors.Is(err, ErrNoGameID) {
		t.Errorf("expected ErrNoGameID, got %v", err)
	}
	if _, err := c.State(context.Background(), ""); !errors.Is(err, ErrNoGameID) {
		t.Errorf("expected ErrNoGameID, got %v", err)
	}
}
