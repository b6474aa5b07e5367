package pipeline

import (
	"fmt"

	"github.com/renlocalizer/renlocalizer/internal/guard"
	"github.com/renlocalizer/renlocalizer/internal/model"
)

// translate implements the TRANSLATING stage contract: every untranslated
// entry across every parsed file is protected, batched into one submission
// to the translation manager, and restored onto the in-memory entries ready
// for SAVING to splice back into their TL files.
func (r *run) translate() error {
	type target struct {
		fileIdx  int
		entryIdx int
	}

	var reqs []model.TranslationRequest
	var targets []target

	for fi, f := range r.files {
		for ei, e := range f.Entries {
			if !r.o.cfg.Translation.TypeEnabled(e.EntryType) {
				continue
			}
			if e.OriginalText == "" || e.TranslatedText != "" && e.TranslatedText != e.OriginalText {
				// already holds a real (non-stub) translation; leave it alone.
				continue
			}
			protected, pm := guard.Protect(e.OriginalText)
			reqs = append(reqs, model.TranslationRequest{
				Text:       protected,
				SourceLang: r.o.cfg.Translation.SourceLang,
				TargetLang: r.lang,
				Engine:     r.o.cfg.Translation.Engine,
				Metadata: model.Metadata{
					FilePath:       e.FilePath,
					LineNumber:     e.LineNumber,
					Character:      e.Character,
					OriginalText:   e.OriginalText,
					PlaceholderMap: pm,
					ContextPath:    e.ContextPath,
					TranslationID:  e.TranslationID,
				},
			})
			targets = append(targets, target{fileIdx: fi, entryIdx: ei})
		}
	}

	r.stage(model.StageTranslating, fmt.Sprintf("translating %d string(s)", len(reqs)))
	if len(reqs) == 0 {
		return nil
	}

	if r.cancelled() {
		return nil
	}
	results := r.o.manager.TranslateBatch(r.ctx, reqs)
	if len(results) != len(targets) {
		return fmt.Errorf("translation manager returned %d results for %d requests", len(results), len(targets))
	}

	for i, res := range results {
		t := targets[i]
		entry := &r.files[t.fileIdx].Entries[t.entryIdx]

		if !res.Success {
			r.stats.Untranslated++
			r.recordSkip(t.fileIdx, entry.OriginalText, skipReasonFor(res))
			r.warn("translation failed", fmt.Sprintf("%s:%d %v", entry.FilePath, entry.LineNumber, res.Error))
			continue
		}

		restored, report := guard.Restore(res.TranslatedText, res.Metadata.PlaceholderMap)
		if len(report.Unresolved) > 0 {
			r.logMessage("warn", fmt.Sprintf("%s:%d: %d placeholder(s) unresolved after restore", entry.FilePath, entry.LineNumber, len(report.Unresolved)))
		}
		entry.TranslatedText = restored
		r.stats.Translated++
		r.progress(r.stats.Translated+r.stats.Untranslated, len(reqs), entry.FilePath)
	}
	return nil
}

func skipReasonFor(res model.TranslationResult) string {
	if res.QuotaExceeded {
		return "quota exceeded"
	}
	if res.Error != nil {
		return res.Error.Error()
	}
	return "translation failed"
}

// recordSkip appends a diagnostics-only skip note for the file currently
// being translated; it never affects the translated TL output itself.
func (r *run) recordSkip(fileIdx int, text, reason string) {
	path := r.files[fileIdx].Path
	for i := range r.diag {
		if r.diag[i].Path == path {
			r.diag[i].Skipped = append(r.diag[i].Skipped, model.SkipReason{Text: text, Reason: reason})
			return
		}
	}
	r.diag = append(r.diag, model.FileDiagnostic{
		Path:    path,
		Skipped: []model.SkipReason{{Text: text, Reason: reason}},
	})
}
