package api

import (
	"encoding/json"

	"github.com/MJE43/cant-stop-odds/internal/board"
	"github.com/MJE43/cant-stop-odds/internal/engine"
	"github.com/MJE43/cant-stop-odds/internal/report"
)

// EngineError represents a structured error response with context
type EngineError struct {
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp string                 `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e EngineError) Error() string {
	return e.Message
}

// Error types with proper categorization
const (
	// Input validation errors
	ErrTypeValidation   = "validation_error"
	ErrTypeInvalidState = "invalid_state"
	ErrTypeInvalidSweep = "invalid_sweep"

	// Lookup errors
	ErrTypeNotFound = "not_found"

	// Engine errors
	ErrTypeEngine = "engine_error"

	// Rules server errors
	ErrTypeUpstream     = "upstream_error"
	ErrTypeGameNotFound = "game_not_found"

	// System errors
	ErrTypeTimeout            = "timeout"
	ErrTypeInternal           = "internal_error"
	ErrTypeServiceUnavailable = "service_unavailable"
)

// ErrorCategory represents error categories for monitoring
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryEngine     ErrorCategory = "engine"
	CategoryUpstream   ErrorCategory = "upstream"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

// GetErrorCategory returns the category for an error type
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeValidation, ErrTypeInvalidState, ErrTypeInvalidSweep, ErrTypeNotFound:
		return CategoryValidation
	case ErrTypeEngine:
		return CategoryEngine
	case ErrTypeUpstream, ErrTypeGameNotFound:
		return CategoryUpstream
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

// VersionInfo contains engine version information
type VersionInfo struct {
	EngineVersion string `json:"engine_version"`
	GitCommit     string `json:"git_commit,omitempty"`
	BuildTime     string `json:"build_time,omitempty"`
}

// AnalyzeRequest carries one rules-server snapshot.
type AnalyzeRequest struct {
	GameID  string           `json:"game_id,omitempty"`
	State   *board.GameState `json:"state"`
	Persist bool             `json:"persist,omitempty"`
}

// AnalyzeResponse is the report for a snapshot plus any alert messages.
type AnalyzeResponse struct {
	ID            string        `json:"id,omitempty"`
	GameID        string        `json:"game_id,omitempty"`
	Phase         board.Phase   `json:"phase"`
	Report        report.Report `json:"report"`
	Alerts        []string      `json:"alerts,omitempty"`
	AlertError    string        `json:"alert_error,omitempty"`
	EngineVersion string        `json:"engine_version"`
}

// EvaluateRequest asks for the roll-again metric of a bare position.
type EvaluateRequest struct {
	Active    engine.ColumnSet `json:"active"`
	Completed engine.ColumnSet `json:"completed"`
	Temp      engine.Progress  `json:"temp"`
}

// EvaluateResponse is the evaluation with the rounded summary beside it.
type EvaluateResponse struct {
	Evaluation    engine.Evaluation `json:"evaluation"`
	Summary       report.EVSummary  `json:"summary"`
	BustRisk      []float64         `json:"bust_risk"`
	EngineVersion string            `json:"engine_version"`
}

// AnalysisResponse is a stored analysis with its report decoded.
type AnalysisResponse struct {
	ID            string          `json:"id"`
	GameID        string          `json:"game_id,omitempty"`
	StateKey      string          `json:"state_key"`
	BustPercent   float64         `json:"bust_percent"`
	EV            float64         `json:"ev"`
	U             int             `json:"u"`
	Advice        string          `json:"advice"`
	BestChoice    string          `json:"best_choice,omitempty"`
	Report        json.RawMessage `json:"report"`
	EngineVersion string          `json:"engine_version"`
	CreatedAt     string          `json:"created_at"`
}
