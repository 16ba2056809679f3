package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultPerPage is the listing page size when a query leaves it unset.
const DefaultPerPage = 50

// SQLiteDB implements the DB interface using SQLite
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB opens or creates the database at path. ":memory:" gives a
// private in-memory database.
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite is not concurrent for writes

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// Migrate applies pending schema migrations. It is safe to run on every
// start.
func (s *SQLiteDB) Migrate() error {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration files: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, fsys)
	if err != nil {
		return fmt.Errorf("migration setup failed: %w", err)
	}
	if _, err := provider.Up(context.Background()); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// SaveAnalysis stores a, assigning an id and creation time when unset.
func (s *SQLiteDB) SaveAnalysis(a *Analysis) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.ReportJSON == "" {
		a.ReportJSON = "{}"
	}

	query := `INSERT INTO analyses (
		id, game_id, state_key, active, completed, bust_percent, ev, u,
		advice, best_choice, report_json, engine_version, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.Exec(query,
		a.ID, a.GameID, a.StateKey, a.Active, a.Completed, a.BustPercent, a.EV, a.U,
		a.Advice, a.BestChoice, a.ReportJSON, a.EngineVersion, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	return nil
}

const selectAnalysis = `SELECT
	id, game_id, state_key, active, completed, bust_percent, ev, u,
	advice, best_choice, report_json, engine_version, created_at
	FROM analyses`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAnalysis(row rowScanner) (Analysis, error) {
	var a Analysis
	err := row.Scan(
		&a.ID, &a.GameID, &a.StateKey, &a.Active, &a.Completed, &a.BustPercent, &a.EV, &a.U,
		&a.Advice, &a.BestChoice, &a.ReportJSON, &a.EngineVersion, &a.CreatedAt,
	)
	return a, err
}

// GetAnalysis retrieves an analysis by ID
func (s *SQLiteDB) GetAnalysis(id string) (*Analysis, error) {
	a, err := scanAnalysis(s.db.QueryRow(selectAnalysis+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return &a, nil
}

// ListAnalyses retrieves analyses newest first, with pagination and an
// optional game filter.
func (s *SQLiteDB) ListAnalyses(query AnalysesQuery) (*AnalysesList, error) {
	whereClause := ""
	args := []interface{}{}

	if query.GameID != "" {
		whereClause = " WHERE game_id = ?"
		args = append(args, query.GameID)
	}

	var totalCount int
	err := s.db.QueryRow("SELECT COUNT(*) FROM analyses"+whereClause, args...).Scan(&totalCount)
	if err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	if query.PerPage <= 0 {
		query.PerPage = DefaultPerPage
	}
	if query.Page <= 0 {
		query.Page = 1
	}

	totalPages := (totalCount + query.PerPage - 1) / query.PerPage
	offset := (query.Page - 1) * query.PerPage

	mainQuery := selectAnalysis + whereClause + `
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?`
	args = append(args, query.PerPage, offset)

	rows, err := s.db.Query(mainQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	analyses := []Analysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		analyses = append(analyses, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analyses: %w", err)
	}

	return &AnalysesList{
		Analyses:   analyses,
		TotalCount: totalCount,
		Page:       query.Page,
		PerPage:    query.PerPage,
		TotalPages: totalPages,
	}, nil
}
