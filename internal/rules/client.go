// Package rules is a client for the authoritative Can't Stop rules server.
//
// The server owns the game: it rolls dice, validates moves and keeps undo
// history. This client only drives it and returns the resulting snapshot.
//
// # Usage
//
//	client := rules.NewClient(rules.Config{BaseURL: "http://localhost:8000/api"})
//	game, err := client.CreateGame(ctx, "Ada", "Grace")
//	state, err := client.Roll(ctx, game.ID)
package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MJE43/cant-stop-odds/internal/board"
)

// Config holds configuration for the rules client.
type Config struct {
	// BaseURL is the API root, e.g. "http://localhost:8000/api".
	BaseURL string

	// MaxRetries is the maximum number of retry attempts for retryable errors.
	// Defaults to 3 if zero.
	MaxRetries int

	// BaseRetryDelay is the initial delay before the first retry.
	// Defaults to 500ms if zero.
	BaseRetryDelay time.Duration

	// MaxRetryDelay caps the exponential backoff delay.
	// Defaults to 5 seconds if zero.
	MaxRetryDelay time.Duration

	// HTTPClient allows injecting a custom HTTP client (useful for testing).
	// Defaults to a client with 15s timeout.
	HTTPClient *http.Client

	// UserAgent overrides the User-Agent header. Optional.
	UserAgent string
}

// Client talks to one rules server.
type Client struct {
	config Config
	http   *http.Client
}

// NewClient creates a rules client with the given configuration.
func NewClient(cfg Config) *Client {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseRetryDelay == 0 {
		cfg.BaseRetryDelay = 500 * time.Millisecond
	}
	if cfg.MaxRetryDelay == 0 {
		cfg.MaxRetryDelay = 5 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Client{
		config: cfg,
		http:   httpClient,
	}
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Game is a game id with its current snapshot.
type Game struct {
	ID    string          `json:"game_id"`
	State board.GameState `json:"state"`
}

// SavedGame is the downloadable save file for a game.
type SavedGame struct {
	Filename string          `json:"filename"`
	Data     json.RawMessage `json:"data"`
}

type stateEnvelope struct {
	State board.GameState `json:"state"`
}

// ChooseRequest selects a pairing from available_pairings. ChosenNumber is
// set only when the pairing needs the player to pick one sum.
type ChooseRequest struct {
	PairingIndex int  `json:"pairing_index"`
	ChosenNumber *int `json:"chosen_number"`
}

// --- Game operations ---

// CreateGame starts a new game between two named players.
func (c *Client) CreateGame(ctx context.Context, player1, player2 string) (*Game, error) {
	body := map[string]string{"player1_name": player1, "player2_name": player2}
	var g Game
	// A retried create could leave a second game behind on the server.
	if err := c.doJSON(ctx, http.MethodPost, "games", body, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// State fetches the current snapshot of a game through its save endpoint.
func (c *Client) State(ctx context.Context, gameID string) (*board.GameState, error) {
	saved, err := c.Save(ctx, gameID)
	if err != nil {
		return nil, err
	}
	var gs board.GameState
	if err := json.Unmarshal(saved.Data, &gs); err != nil {
		return nil, fmt.Errorf("rules: decode saved state: %w", err)
	}
	return &gs, nil
}

// Save downloads the save file for a game.
func (c *Client) Save(ctx context.Context, gameID string) (*SavedGame, error) {
	if gameID == "" {
		return nil, ErrNoGameID
	}
	var saved SavedGame
	if err := c.doJSONWithRetry(ctx, http.MethodGet, "games/"+url.PathEscape(gameID)+"/save", nil, &saved); err != nil {
		return nil, err
	}
	return &saved, nil
}

// Load uploads a save file and returns the restored game.
func (c *Client) Load(ctx context.Context, filename string, data []byte) (*Game, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("rules: create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("rules: write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("rules: close form: %w", err)
	}

	var g Game
	err = c.withRetry(ctx, func() error {
		return c.do(ctx, http.MethodPost, "games/load", mw.FormDataContentType(), bytes.NewReader(buf.Bytes()), &g)
	})
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// Roll rolls the dice for the current player.
func (c *Client) Roll(ctx context.Context, gameID string) (*board.GameState, error) {
	return c.stateAction(ctx, gameID, "roll", nil)
}

// Choose applies a pairing to the current roll.
func (c *Client) Choose(ctx context.Context, gameID string, req ChooseRequest) (*board.GameState, error) {
	return c.stateAction(ctx, gameID, "choose", req)
}

// Stop banks the turn's progress and passes play.
func (c *Client) Stop(ctx context.Context, gameID string) (*board.GameState, error) {
	return c.stateAction(ctx, gameID, "stop", nil)
}

// Continue acknowledges a bust and passes play.
func (c *Client) Continue(ctx context.Context, gameID string) (*board.GameState, error) {
	return c.stateAction(ctx, gameID, "continue", nil)
}

// Undo reverts the last action.
func (c *Client) Undo(ctx context.Context, gameID string) (*board.GameState, error) {
	return c.stateAction(ctx, gameID, "undo", nil)
}

// Redo reapplies the last undone action.
func (c *Client) Redo(ctx context.Context, gameID string) (*board.GameState, error) {
	return c.stateAction(ctx, gameID, "redo", nil)
}

func (c *Client) stateAction(ctx context.Context, gameID, action string, body any) (*board.GameState, error) {
	if gameID == "" {
		return nil, ErrNoGameID
	}
	var env stateEnvelope
	path := "games/" + url.PathEscape(gameID) + "/" + action
	// Moves are not idempotent and are sent exactly once.
	if err := c.doJSON(ctx, http.MethodPost, path, body, &env); err != nil {
		return nil, err
	}
	return &env.State, nil
}

// --- Core request methods ---

func (c *Client) endpoint(path string) string {
	base := c.config.BaseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return fmt.Sprintf("%s/%s", strings.TrimRight(base, "/"), strings.TrimPrefix(path, "/"))
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("rules: marshal request: %w", err)
		}
		r = bytes.NewReader(jsonBody)
	}
	return c.do(ctx, method, path, "application/json", r, out)
}

func (c *Client) doJSONWithRetry(ctx context.Context, method, path string, body, out any) error {
	return c.withRetry(ctx, func() error {
		return c.doJSON(ctx, method, path, body, out)
	})
}

// do sends a single request and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return fmt.Errorf("rules: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("rules: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("rules: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode < 500 && resp.StatusCode != 429 {
			apiErr := &APIError{StatusCode: resp.StatusCode}
			if json.Unmarshal(respBody, apiErr) == nil && apiErr.Detail != "" {
				return apiErr
			}
		}
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("rules: invalid response JSON: %w", err)
	}
	return nil
}

// withRetry runs fn with automatic retry on retryable errors.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay(attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.IsRetryable() {
			continue
		}
		return err
	}

	return fmt.Errorf("rules: max retries exceeded: %w", lastErr)
}

// retryDelay calculates the backoff delay for a given attempt number.
func (c *Client) retryDelay(attempt int) time.Duration {
	delay := c.config.BaseRetryDelay * time.Duration(math.Pow(2, float64(attempt-1)))
	if delay > c.config.MaxRetryDelay {
		delay = c.config.MaxRetryDelay
	}
	return delay
}
