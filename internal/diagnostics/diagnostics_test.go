package diagnostics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renlocalizer/renlocalizer/internal/model"
)

func sampleReport() model.DiagnosticReport {
	return model.DiagnosticReport{
		GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Files: []model.FileDiagnostic{
			{Path: "game/script.rpy", Extracted: 10, Translated: 9, Written: 9,
				Skipped: []model.SkipReason{{Text: "42", Reason: "pure numeric"}}},
		},
	}
}

func TestWriteReportProducesReadableJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteReport(dir, "turkish", sampleReport()))

	data, err := os.ReadFile(ReportPath(dir, "turkish"))
	require.NoError(t, err)

	var decoded model.DiagnosticReport
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded.Files, 1)
	assert.Equal(t, 9, decoded.Files[0].Translated)
}

func TestReportPathNamesFileByLang(t *testing.T) {
	assert.Equal(t, filepath.Join("game", "diagnostic_turkish.json"), ReportPath("game", "turkish"))
}

func TestOpenHistoryWithEmptyPathDisables(t *testing.T) {
	h, err := OpenHistory("")
	require.NoError(t, err)
	assert.Nil(t, h)

	id, err := h.Record("turkish", sampleReport())
	require.NoError(t, err)
	assert.Empty(t, id)

	runs, err := h.Recent("turkish", 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, h.Close())
}

func TestHistoryRecordAndRecent(t *testing.T) {
	dir := t.TempDir()
	h, err := OpenHistory(filepath.Join(dir, "history.sqlite3"))
	require.NoError(t, err)
	defer func() { _ = h.Close() }()

	id, err := h.Record("turkish", sampleReport())
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	runs, err := h.Recent("turkish", 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].RunID)
	assert.Equal(t, 10, runs[0].TotalExtracted)
	assert.Equal(t, 9, runs[0].TotalTranslated)
}
