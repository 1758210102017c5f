// Package runner orchestrates a batch run: discover databases, collect and
// group findings by rule, triage each finding through the engine, and hand
// results to the recorder and the optional store. One finding failing never
// stops the batch.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vulnhalla.app/triage/common/id"
	"vulnhalla.app/triage/common/logger"
	"vulnhalla.app/triage/core/config"
	"vulnhalla.app/triage/internal/assembler"
	"vulnhalla.app/triage/internal/codeql"
	"vulnhalla.app/triage/internal/recorder"
	"vulnhalla.app/triage/internal/store"
	"vulnhalla.app/triage/internal/triage"
)

type Runner struct {
	cfg       config.AnalysisConfig
	engine    *triage.Engine
	recorder  *recorder.Recorder
	store     *store.Store // nil when no results database is configured
	templates *assembler.Templates
}

func New(cfg config.AnalysisConfig, engine *triage.Engine, rec *recorder.Recorder, st *store.Store) *Runner {
	return &Runner{
		cfg:       cfg,
		engine:    engine,
		recorder:  rec,
		store:     st,
		templates: assembler.NewTemplates(cfg.Language, cfg.TemplatesDir),
	}
}

// ruleSummary tallies outcomes for one rule across workers.
type ruleSummary struct {
	mu           sync.Mutex
	confirmed    int
	rejected     int
	insufficient int
	skipped      int
	failed       int
}

func (s *ruleSummary) record(status triage.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch status {
	case triage.StatusConfirmed:
		s.confirmed++
	case triage.StatusRejected:
		s.rejected++
	default:
		s.insufficient++
	}
}

// Run executes one batch over the configured databases root.
func (r *Runner) Run(ctx context.Context) error {
	runID := id.New()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RunID:     logger.Ptr(runID),
		Component: "triage.runner",
	})

	if r.store != nil {
		if err := r.store.EnsureSchema(ctx); err != nil {
			return err
		}
		err := r.store.CreateRun(ctx, store.Run{
			ID:            runID,
			Language:      r.cfg.Language,
			DatabasesRoot: r.cfg.DatabasesRoot,
			StartedAt:     time.Now(),
		})
		if err != nil {
			return err
		}
	}

	root := filepath.Join(r.cfg.DatabasesRoot, r.cfg.Language)
	dirs, err := codeql.Discover(root)
	if err != nil {
		return err
	}

	databases := make(map[string]*codeql.Database, len(dirs))
	defer func() {
		for _, database := range databases {
			database.Close()
		}
	}()

	byRule := make(map[string][]codeql.Finding)
	total := 0
	for _, dir := range dirs {
		slog.InfoContext(ctx, "processing database", "dir", dir)

		if !hasIndexFiles(dir) {
			slog.ErrorContext(ctx, "database is missing index files, run the index queries first", "dir", dir)
			continue
		}

		database, err := codeql.OpenDatabase(dir)
		if err != nil {
			slog.ErrorContext(ctx, "failed to open database", "dir", dir, "error", err)
			continue
		}
		databases[dir] = database

		findings, err := codeql.ParseFindings(dir)
		if err != nil {
			slog.ErrorContext(ctx, "failed to parse findings", "dir", dir, "error", err)
			continue
		}
		for _, finding := range findings {
			byRule[finding.RuleName] = append(byRule[finding.RuleName], finding)
			total++
		}
	}

	slog.InfoContext(ctx, "findings collected", "total", total, "rules", len(byRule))

	for rule, findings := range byRule {
		r.processRule(ctx, runID, rule, findings, databases)
	}

	if r.store != nil {
		if err := r.store.FinishRun(ctx, runID); err != nil {
			return err
		}
	}
	return nil
}

// processRule triages all findings of one rule with bounded concurrency.
func (r *Runner) processRule(ctx context.Context, runID int64, rule string, findings []codeql.Finding, databases map[string]*codeql.Database) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Rule: logger.Ptr(rule)})
	slog.InfoContext(ctx, "processing rule", "findings", len(findings))

	summary := &ruleSummary{}
	sem := make(chan struct{}, r.cfg.Workers)
	var wg sync.WaitGroup

	for _, finding := range findings {
		wg.Add(1)
		go func(finding codeql.Finding) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			r.processFinding(ctx, runID, rule, finding, databases[finding.DatabasePath], summary)
		}(finding)
	}
	wg.Wait()

	slog.InfoContext(ctx, "rule completed",
		"total", len(findings),
		"confirmed", summary.confirmed,
		"rejected", summary.rejected,
		"insufficient_data", summary.insufficient,
		"skipped", summary.skipped,
		"failed", summary.failed)
}

func (r *Runner) processFinding(ctx context.Context, runID int64, rule string, finding codeql.Finding, database *codeql.Database, summary *ruleSummary) {
	findingID := id.New()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		FindingID: logger.Ptr(findingID),
		Database:  logger.Ptr(finding.DatabasePath),
	})

	sc := logger.StartSpan(ctx, "triage.analyze_finding")
	defer sc.End()
	ctx = sc.Context()

	if database == nil {
		summary.mu.Lock()
		summary.skipped++
		summary.mu.Unlock()
		return
	}

	pc, err := assembler.New(database, r.templates).Assemble(finding)
	if err != nil {
		if errors.Is(err, assembler.ErrNoEnclosingFunction) {
			slog.WarnContext(ctx, "can't find the enclosing function, skipping finding",
				"file", finding.File, "line", finding.StartLine)
			summary.mu.Lock()
			summary.skipped++
			summary.mu.Unlock()
			return
		}
		sc.RecordError(err)
		slog.ErrorContext(ctx, "failed to assemble prompt", "error", err)
		summary.mu.Lock()
		summary.failed++
		summary.mu.Unlock()
		return
	}

	err = r.recorder.SaveRawInput(rule, findingID, recorder.RawInput{
		Finding:      finding,
		Function:     pc.Function,
		DatabasePath: finding.DatabasePath,
		SourceRoot:   database.SourceRoot,
		Prompt:       pc.Prompt,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to save raw input", "error", err)
	}

	result, err := r.engine.Triage(ctx, database, pc)
	if err != nil {
		sc.RecordError(err)
		slog.ErrorContext(ctx, "triage failed", "error", err)
		summary.mu.Lock()
		summary.failed++
		summary.mu.Unlock()
		return
	}

	if err := r.recorder.SaveResult(rule, findingID, result); err != nil {
		slog.ErrorContext(ctx, "failed to save result", "error", err)
	}

	if r.store != nil {
		err := r.store.RecordFinding(ctx, store.FindingResult{
			ID:           findingID,
			RunID:        runID,
			Rule:         rule,
			DatabasePath: finding.DatabasePath,
			File:         finding.File,
			StartLine:    finding.StartLine,
			Status:       string(result.Verdict.Status),
			LikelyBenign: result.Verdict.LikelyBenign,
			Rationale:    result.Verdict.Rationale,
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to record finding in store", "error", err)
		}
	}

	summary.record(result.Verdict.Status)
	slog.InfoContext(ctx, "finding triaged", "status", string(result.Verdict.Status))
}

// hasIndexFiles reports whether a database directory carries both the
// function tree and the findings file the triage needs.
func hasIndexFiles(dir string) bool {
	for _, name := range []string{"FunctionTree.csv", "issues.csv"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}
