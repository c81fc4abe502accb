// Package persistence provides SQLite-based checkpoint storage for
// generation runs. Intermediate section texts and verification attempts are
// written as the pipeline progresses so a run can be inspected or salvaged
// afterwards. One Store belongs to one run of the program; there is no
// shared global connection.
package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"scriptsmith/pkg/logx"
	"scriptsmith/pkg/script"
)

// Run statuses stored in the runs table.
const (
	RunStatusRunning   = "running"
	RunStatusComplete  = "complete"
	RunStatusCancelled = "cancelled"
)

// Store is a per-process checkpoint database.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (creating if necessary) the checkpoint database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{db: db, logger: logx.NewLogger("persistence")}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func createSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	model         TEXT NOT NULL,
	section_count INTEGER NOT NULL,
	status        TEXT NOT NULL DEFAULT 'running',
	final_text    TEXT,
	created_at    TIMESTAMP NOT NULL,
	finished_at   TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sections (
	run_id           TEXT NOT NULL REFERENCES runs(id),
	section_id       TEXT NOT NULL,
	number           TEXT NOT NULL,
	title            TEXT NOT NULL,
	duration_minutes REAL NOT NULL,
	text             TEXT NOT NULL,
	valid            INTEGER NOT NULL,
	attempts         INTEGER NOT NULL,
	updated_at       TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, section_id)
);

CREATE TABLE IF NOT EXISTS attempts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	section_id TEXT NOT NULL,
	attempt    INTEGER NOT NULL,
	valid      INTEGER NOT NULL,
	source     TEXT NOT NULL,
	issues     TEXT NOT NULL,
	word_count INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attempts_run_section ON attempts(run_id, section_id);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// CreateRun records the start of a generation run.
func (s *Store) CreateRun(runID, model string, sectionCount int) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (id, model, section_count, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		runID, model, sectionCount, RunStatusRunning, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create run %s: %w", runID, err)
	}
	return nil
}

// SaveSection upserts the current text of one section.
func (s *Store) SaveSection(runID string, section *script.Section, text string, valid bool, attempts int) error {
	_, err := s.db.Exec(`
INSERT INTO sections (run_id, section_id, number, title, duration_minutes, text, valid, attempts, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (run_id, section_id) DO UPDATE SET
	text = excluded.text, valid = excluded.valid,
	attempts = excluded.attempts, updated_at = excluded.updated_at`,
		runID, section.ID, section.Number, section.Title, section.DurationMinutes,
		text, valid, attempts, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save section %s: %w", section.ID, err)
	}
	return nil
}

// SaveAttempt records one verification attempt, issues serialized as JSON.
func (s *Store) SaveAttempt(runID, sectionID string, attempt int, result *script.VerificationResult, wordCount int) error {
	issues, err := json.Marshal(result.Issues)
	if err != nil {
		return fmt.Errorf("failed to encode issues for %s: %w", sectionID, err)
	}
	_, err = s.db.Exec(`
INSERT INTO attempts (run_id, section_id, attempt, valid, source, issues, word_count, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, sectionID, attempt, result.IsValid, string(result.Source),
		string(issues), wordCount, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save attempt %d for %s: %w", attempt, sectionID, err)
	}
	return nil
}

// FinishRun marks a run terminal and stores the final text.
func (s *Store) FinishRun(runID, status, finalText string) error {
	_, err := s.db.Exec(
		`UPDATE runs SET status = ?, final_text = ?, finished_at = ? WHERE id = ?`,
		status, finalText, time.Now().UTC(), runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	return nil
}

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID           string
	Model        string
	SectionCount int
	Status       string
	FinalText    string
}

// GetRun loads one run for inspection.
func (s *Store) GetRun(runID string) (*RunRecord, error) {
	var rec RunRecord
	var finalText sql.NullString
	err := s.db.QueryRow(
		`SELECT id, model, section_count, status, final_text FROM runs WHERE id = ?`,
		runID,
	).Scan(&rec.ID, &rec.Model, &rec.SectionCount, &rec.Status, &finalText)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	rec.FinalText = finalText.String
	return &rec, nil
}

// SectionRecord is one row of the sections table.
type SectionRecord struct {
	SectionID string
	Number    string
	Title     string
	Text      string
	Valid     bool
	Attempts  int
}

// ListSections returns a run's section checkpoints in outline order.
func (s *Store) ListSections(runID string) ([]SectionRecord, error) {
	rows, err := s.db.Query(`
SELECT section_id, number, title, text, valid, attempts
FROM sections WHERE run_id = ? ORDER BY rowid`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sections for %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []SectionRecord
	for rows.Next() {
		var rec SectionRecord
		if err := rows.Scan(&rec.SectionID, &rec.Number, &rec.Title, &rec.Text, &rec.Valid, &rec.Attempts); err != nil {
			return nil, fmt.Errorf("failed to scan section row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read section rows: %w", err)
	}
	return out, nil
}
