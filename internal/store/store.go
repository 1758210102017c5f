// Package store is the optional Postgres sink for run and finding results.
// File artifacts from the recorder remain the source of truth; this table
// layout exists so an external browser can query outcomes without walking the
// results tree.
package store

import (
	"context"
	"fmt"
	"time"

	"vulnhalla.app/triage/core/db"
)

type Store struct {
	db *db.DB
}

func New(database *db.DB) *Store {
	return &Store{db: database}
}

// Run is one batch invocation over a databases root.
type Run struct {
	ID            int64
	Language      string
	DatabasesRoot string
	StartedAt     time.Time
}

// FindingResult is the recorded outcome of one triaged finding.
type FindingResult struct {
	ID           int64
	RunID        int64
	Rule         string
	DatabasePath string
	File         string
	StartLine    int
	Status       string
	LikelyBenign bool
	Rationale    string
}

// EnsureSchema creates the result tables if they do not exist. The schema is
// small enough that migrations would be ceremony.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Pool().Exec(ctx, `
		CREATE TABLE IF NOT EXISTS triage_runs (
			id             BIGINT PRIMARY KEY,
			language       TEXT NOT NULL,
			databases_root TEXT NOT NULL,
			started_at     TIMESTAMPTZ NOT NULL,
			finished_at    TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS triage_findings (
			id            BIGINT PRIMARY KEY,
			run_id        BIGINT NOT NULL REFERENCES triage_runs(id),
			rule          TEXT NOT NULL,
			database_path TEXT NOT NULL,
			file          TEXT NOT NULL,
			start_line    INT NOT NULL,
			status        TEXT NOT NULL,
			likely_benign BOOLEAN NOT NULL DEFAULT FALSE,
			rationale     TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS triage_findings_run_idx ON triage_findings(run_id);
		CREATE INDEX IF NOT EXISTS triage_findings_rule_idx ON triage_findings(rule);
	`)
	if err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}

// CreateRun records the start of a batch run.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	_, err := s.db.Pool().Exec(ctx, `
		INSERT INTO triage_runs (id, language, databases_root, started_at)
		VALUES ($1, $2, $3, $4)
	`, run.ID, run.Language, run.DatabasesRoot, run.StartedAt)
	if err != nil {
		return fmt.Errorf("creating run %d: %w", run.ID, err)
	}
	return nil
}

// FinishRun stamps the run's completion time.
func (s *Store) FinishRun(ctx context.Context, runID int64) error {
	_, err := s.db.Pool().Exec(ctx, `
		UPDATE triage_runs SET finished_at = now() WHERE id = $1
	`, runID)
	if err != nil {
		return fmt.Errorf("finishing run %d: %w", runID, err)
	}
	return nil
}

// RecordFinding persists one finding's verdict.
func (s *Store) RecordFinding(ctx context.Context, rec FindingResult) error {
	_, err := s.db.Pool().Exec(ctx, `
		INSERT INTO triage_findings
			(id, run_id, rule, database_path, file, start_line, status, likely_benign, rationale)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.ID, rec.RunID, rec.Rule, rec.DatabasePath, rec.File, rec.StartLine,
		rec.Status, rec.LikelyBenign, rec.Rationale)
	if err != nil {
		return fmt.Errorf("recording finding %d: %w", rec.ID, err)
	}
	return nil
}
