// Package diagnostics writes the always-on per-run JSON diagnostic report
// (spec.md §6) and, optionally, an append-only SQLite history of past runs
// so a caller can chart translation progress over time (SPEC_FULL.md §11).
package diagnostics

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/renlocalizer/renlocalizer/internal/encoding"
	"github.com/renlocalizer/renlocalizer/internal/model"
)

// ReportPath returns the path of the per-run diagnostic file spec.md §6
// names diagnostic_<lang>.json, rooted under gameDir.
func ReportPath(gameDir, lang string) string {
	return filepath.Join(gameDir, fmt.Sprintf("diagnostic_%s.json", lang))
}

// WriteReport serializes report as JSON and atomically writes it to
// ReportPath(gameDir, lang). This is the primary, always-on diagnostics
// output; it never depends on the optional history store below.
func WriteReport(gameDir, lang string, report model.DiagnosticReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("diagnostics: marshal report: %w", err)
	}
	return encoding.WriteFileAtomic(ReportPath(gameDir, lang), data, 0o644)
}

// History is an optional, longitudinal store of past runs' diagnostic
// reports, backed by a local SQLite file. A nil *History is always safe to
// use: every method no-ops so a pipeline run never depends on it succeeding.
type History struct {
	db *sql.DB
}

// OpenHistory opens (creating if necessary) the SQLite history database at
// path. Pass "" to disable history entirely — OpenHistory then returns a nil
// *History and a nil error.
func OpenHistory(path string) (*History, error) {
	if path == "" {
		return nil, nil
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("diagnostics: open history db: %w", err)
	}
	if _, err := db.Exec(createHistoryTableSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("diagnostics: create history table: %w", err)
	}
	return &History{db: db}, nil
}

const createHistoryTableSQL = `
CREATE TABLE IF NOT EXISTS run_history (
	run_id      TEXT PRIMARY KEY,
	lang        TEXT NOT NULL,
	generated_at TEXT NOT NULL,
	total_files INTEGER NOT NULL,
	total_extracted INTEGER NOT NULL,
	total_translated INTEGER NOT NULL,
	report_json TEXT NOT NULL
)`

// Record appends one run's report to the history store. A nil *History
// (history disabled) is a no-op.
func (h *History) Record(lang string, report model.DiagnosticReport) (string, error) {
	if h == nil {
		return "", nil
	}
	runID := uuid.NewString()

	var totalExtracted, totalTranslated int
	for _, f := range report.Files {
		totalExtracted += f.Extracted
		totalTranslated += f.Translated
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("diagnostics: marshal report for history: %w", err)
	}

	_, err = h.db.Exec(
		`INSERT INTO run_history(run_id, lang, generated_at, total_files, total_extracted, total_translated, report_json) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, lang, report.GeneratedAt.Format(time.RFC3339), len(report.Files), totalExtracted, totalTranslated, string(reportJSON),
	)
	if err != nil {
		return "", fmt.Errorf("diagnostics: insert history row: %w", err)
	}
	return runID, nil
}

// RunSummary is one row of Recent's result: enough to chart progress across
// runs without re-parsing each report's full JSON body.
type RunSummary struct {
	RunID           string
	Lang            string
	GeneratedAt     time.Time
	TotalFiles      int
	TotalExtracted  int
	TotalTranslated int
}

// Recent returns the most recent n runs for lang, newest first. A nil
// *History always returns an empty slice.
func (h *History) Recent(lang string, n int) ([]RunSummary, error) {
	if h == nil {
		return nil, nil
	}
	rows, err := h.db.Query(
		`SELECT run_id, lang, generated_at, total_files, total_extracted, total_translated FROM run_history WHERE lang = ? ORDER BY generated_at DESC LIMIT ?`,
		lang, n,
	)
	if err != nil {
		return nil, fmt.Errorf("diagnostics: query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		var generatedAt string
		if err := rows.Scan(&s.RunID, &s.Lang, &generatedAt, &s.TotalFiles, &s.TotalExtracted, &s.TotalTranslated); err != nil {
			return nil, fmt.Errorf("diagnostics: scan history row: %w", err)
		}
		s.GeneratedAt, _ = time.Parse(time.RFC3339, generatedAt)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle. A nil *History is a no-op.
func (h *History) Close() error {
	if h == nil {
		return nil
	}
	return h.db.Close()
}
