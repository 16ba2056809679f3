// Package store keeps a history of analysed snapshots.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when an analysis id is unknown.
var ErrNotFound = errors.New("analysis not found")

// DB represents the database interface
type DB interface {
	Close() error
	Migrate() error
	SaveAnalysis(a *Analysis) error
	GetAnalysis(id string) (*Analysis, error)
	ListAnalyses(query AnalysesQuery) (*AnalysesList, error)
}

// AnalysesQuery represents query parameters for listing analyses
type AnalysesQuery struct {
	GameID  string `json:"game_id,omitempty"`
	Page    int    `json:"page"`
	PerPage int    `json:"perPage"`
}

// AnalysesList represents a paginated analyses response
type AnalysesList struct {
	Analyses   []Analysis `json:"analyses"`
	TotalCount int        `json:"totalCount"`
	Page       int        `json:"page"`
	PerPage    int        `json:"perPage"`
	TotalPages int        `json:"totalPages"`
}

// Analysis is one stored snapshot analysis. The headline figures are
// duplicated out of ReportJSON so listings do not decode every report.
type Analysis struct {
	ID       string `json:"id" db:"id"`
	GameID   string `json:"game_id,omitempty" db:"game_id"`
	StateKey string `json:"state_key" db:"state_key"`

	Active    string `json:"active" db:"active"`
	Completed string `json:"completed" db:"completed"`

	BustPercent float64 `json:"bust_percent" db:"bust_percent"`
	EV          float64 `json:"ev" db:"ev"`
	U           int     `json:"u" db:"u"`
	Advice      string  `json:"advice" db:"advice"`
	BestChoice  string  `json:"best_choice,omitempty" db:"best_choice"`

	ReportJSON    string    `json:"-" db:"report_json"`
	EngineVersion string    `json:"engine_version" db:"engine_version"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
