package pipeline

import (
	"encoding/json"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/renlocalizer/renlocalizer/internal/config"
	"github.com/renlocalizer/renlocalizer/internal/diagnostics"
	"github.com/renlocalizer/renlocalizer/internal/encoding"
	"github.com/renlocalizer/renlocalizer/internal/model"
	"github.com/renlocalizer/renlocalizer/internal/obfuscate"
	"github.com/renlocalizer/renlocalizer/internal/runtimehook"
	"github.com/renlocalizer/renlocalizer/internal/tlfile"
)

// save implements the SAVING stage contract: splice every translated entry
// back into its TL file, write the aggregated strings.json, emit the
// diagnostic report, and (when enabled) install the runtime hook.
func (r *run) save() error {
	r.stage(model.StageSaving, "saving translation files")

	for i, tf := range r.files {
		written := 0
		for _, e := range tf.Entries {
			if e.TranslatedText == "" || e.TranslatedText == e.OriginalText {
				continue
			}
			tlfile.ApplyTranslation(&r.files[i], e, e.TranslatedText)
			r.recordString(e.OriginalText, e.TranslatedText)
			written++
		}

		if err := r.writeTranslationFile(r.files[i]); err != nil {
			r.warn("cannot write translation file", err.Error())
			continue
		}
		r.recordDiagnostic(tf.Path, len(tf.Entries), written)
	}

	if r.o.cfg.Translation.ObfuscationMode == config.ObfuscationAES {
		if err := r.writeEncryptedStrings(); err != nil {
			r.warn("cannot write encrypted strings", err.Error())
		}
	} else if err := r.writeStringsJSON(); err != nil {
		r.warn("cannot write strings.json", err.Error())
	}

	report := model.DiagnosticReport{GeneratedAt: r.runTime(), Files: r.diag}
	if err := diagnostics.WriteReport(r.gameDir, r.lang, report); err != nil {
		r.warn("cannot write diagnostic report", err.Error())
	}
	if r.o.history != nil {
		if _, err := r.o.history.Record(r.lang, report); err != nil {
			r.warn("cannot record run history", err.Error())
		}
	}

	if r.o.cfg.Translation.AutoGenerateHook {
		if err := runtimehook.Write(r.gameDir, runtimehook.Options{Language: r.lang}); err != nil {
			r.warn("cannot install runtime hook", err.Error())
		}
	}
	return nil
}

func (r *run) writeTranslationFile(tf model.TranslationFile) error {
	rendered := tlfile.Render(tf)
	if r.o.cfg.Translation.ObfuscationMode == config.ObfuscationBase64 {
		rendered = obfuscate.Base64RPY(rendered)
	}
	body := encoding.Normalize(rendered)
	return encoding.WriteFileAtomic(tf.Path, body, 0o644)
}

// recordString applies the sanitize-and-dedupe rule spec.md §4.5 requires
// for strings.json: drop entries that still carry a leaked guard token or
// raw HTML tag, and let the first write win on a conflicting duplicate key.
func (r *run) recordString(original, translated string) {
	if strings.Contains(translated, "XRPYX") {
		return
	}
	if stripped := html.UnescapeString(translated); strings.Contains(stripped, "<") && strings.Contains(stripped, ">") {
		return
	}
	if _, exists := r.strings[original]; exists {
		return
	}
	r.strings[original] = translated
}

func (r *run) writeStringsJSON() error {
	body, err := json.MarshalIndent(r.strings, "", "  ")
	if err != nil {
		return err
	}
	return encoding.WriteFileAtomic(filepath.Join(r.gameDir, "strings.json"), body, 0o644)
}

// writeEncryptedStrings replaces the plaintext strings.json export with an
// AES-256-GCM-encrypted .rlenc blob plus a Ren'Py loader script, so the
// aggregated translation pairs aren't sitting in the clear next to the game
// (SPEC_FULL.md §12, grounded on translation_crypto.py's AES mode).
func (r *run) writeEncryptedStrings() error {
	const encFileName = "strings.rlenc"
	blob, loader, err := obfuscate.EncryptTranslations(r.strings, r.o.cfg.Translation.ObfuscationPassphrase, encFileName)
	if err != nil {
		return fmt.Errorf("encrypting strings: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.gameDir, encFileName), blob, 0o644); err != nil {
		return err
	}
	return encoding.WriteFileAtomic(filepath.Join(r.gameDir, "strings_loader.rpy"), encoding.Normalize(loader), 0o644)
}

func (r *run) recordDiagnostic(path string, extracted, written int) {
	for i := range r.diag {
		if r.diag[i].Path == path {
			r.diag[i].Extracted = extracted
			r.diag[i].Translated = written
			r.diag[i].Written = written
			return
		}
	}
	r.diag = append(r.diag, model.FileDiagnostic{Path: path, Extracted: extracted, Translated: written, Written: written})
}

// runTime returns the report timestamp. Pipeline code otherwise never calls
// time.Now() outside logging/throttling so a run's observable output stays
// reproducible apart from this single stamp.
func (r *run) runTime() time.Time {
	return time.Now().UTC()
}
