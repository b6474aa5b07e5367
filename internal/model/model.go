// Package model holds the data types that flow between extraction, the
// syntax guard, the translation manager, and the pipeline orchestrator:
// requests, results, TL entries, and the small value types attached to them.
package model

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/renlocalizer/renlocalizer/internal/apperrors"
	"github.com/renlocalizer/renlocalizer/internal/config"
	"github.com/renlocalizer/renlocalizer/internal/guard"
)

// Metadata carries everything the pipeline needs to route a result back to
// its originating TL entry and to restore any protected placeholders.
type Metadata struct {
	FilePath       string
	LineNumber     int
	Character      string
	OriginalText   string
	PlaceholderMap *guard.PlaceholderMap
	ContextPath    []string
	TranslationID  string
}

// TranslationRequest is an immutable unit of work submitted to the
// translation manager.
type TranslationRequest struct {
	Text       string
	SourceLang string
	TargetLang string
	Engine     config.Engine
	Metadata   Metadata
}

// TranslationResult is what the manager (or an adapter) hands back for a
// single request. When Success is true, TranslatedText is always non-empty.
type TranslationResult struct {
	OriginalText   string
	TranslatedText string
	SourceLang     string
	TargetLang     string
	Engine         config.Engine
	Success        bool
	Error          *apperrors.TranslationError
	Confidence     float64
	Metadata       Metadata
	QuotaExceeded  bool
}

// TranslationEntry is one row of a parsed TL file.
type TranslationEntry struct {
	OriginalText   string
	TranslatedText string
	FilePath       string
	LineNumber     int
	EntryType      config.EntryType
	Character      string
	BlockID        string
	ContextPath    []string
	TranslationID  string
}

// DeriveTranslationID computes a stable id from the fields that identify an
// entry's position and content, so re-running the pipeline on an unchanged
// source tree reproduces the same ids.
func DeriveTranslationID(filePath string, lineNumber int, originalText string, contextPath []string) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s\x00%d\x00%s", filePath, lineNumber, originalText)
	for _, c := range contextPath {
		fmt.Fprintf(h, "\x00%s", c)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// TranslationFile is a parsed .rpy TL file: its entries, plus the raw line
// buffer needed to write edits back without disturbing surrounding content.
type TranslationFile struct {
	Path    string
	Lines   []string
	Entries []TranslationEntry
}

// ProxyInfo describes one HTTP proxy candidate tracked by the proxy pool.
type ProxyInfo struct {
	Host           string
	Port           int
	Protocol       string
	Country        string
	ResponseTime   float64
	SuccessCount   int
	FailureCount   int
	IsWorking      bool
	IsPersonal     bool
	Uptime         float64
}

// SuccessRate returns successes / (successes+failures), or 0 when there is
// no history yet.
func (p ProxyInfo) SuccessRate() float64 {
	total := p.SuccessCount + p.FailureCount
	if total == 0 {
		return 0
	}
	return float64(p.SuccessCount) / float64(total)
}

// Stage names the pipeline orchestrator's state machine positions.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageValidating  Stage = "validating"
	StageUnrpa       Stage = "unrpa"
	StageGenerating  Stage = "generating"
	StageParsing     Stage = "parsing"
	StageTranslating Stage = "translating"
	StageSaving      Stage = "saving"
	StageCompleted   Stage = "completed"
	StageError       Stage = "error"
)

// PipelineStats summarizes how many entries were seen and translated.
type PipelineStats struct {
	Total        int
	Translated   int
	Untranslated int
}

// PipelineResult is the single terminal value the orchestrator ever returns;
// failures are reported through it, never through a panic or bare error.
type PipelineResult struct {
	Success    bool
	Message    string
	Stage      Stage
	Stats      *PipelineStats
	OutputPath string
	Error      error
}

// DiagnosticReport is the structured per-file summary serialized as JSON
// alongside the output TL directory.
type DiagnosticReport struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Files       []FileDiagnostic `json:"files"`
}

// FileDiagnostic summarizes one source file's extraction/translation outcome.
type FileDiagnostic struct {
	Path       string `json:"path"`
	Extracted  int    `json:"extracted"`
	Translated int    `json:"translated"`
	Written    int    `json:"written"`
	Skipped    []SkipReason `json:"skipped,omitempty"`
}

// SkipReason records why one entry was dropped during extraction or
// translation, for diagnostics purposes only.
type SkipReason struct {
	Text   string `json:"text"`
	Reason string `json:"reason"`
}
