package pipeline

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/renlocalizer/renlocalizer/internal/config"
	"github.com/renlocalizer/renlocalizer/internal/encoding"
	"github.com/renlocalizer/renlocalizer/internal/model"
	"github.com/renlocalizer/renlocalizer/internal/rpy"
	"github.com/renlocalizer/renlocalizer/internal/rpyc"
	"github.com/renlocalizer/renlocalizer/internal/tlfile"
)

// generate implements the GENERATING stage contract: ensure game/tl/<lang>/
// exists with stub TL files for every source file, skipping any stub that
// is already present rather than regenerating it.
func (r *run) generate() error {
	r.tlDir = filepath.Join(r.gameDir, "tl", r.lang)
	if err := os.MkdirAll(r.tlDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", r.tlDir, err)
	}

	r.stage(model.StageGenerating, "generating stub translation files")

	if r.hasRPY {
		return r.generateFromSource()
	}
	if r.hasRPYC && r.o.cfg.Translation.EnableRPYCReader {
		return r.generateFromRPYC()
	}
	return fmt.Errorf("no .rpy source and .rpyc reader mode is disabled")
}

func (r *run) generateFromSource() error {
	var sourcePaths []string
	if err := filepath.WalkDir(r.gameDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.ToLower(filepath.Ext(path)) != ".rpy" || underTLDir(r.gameDir, path) {
			return nil
		}
		sourcePaths = append(sourcePaths, path)
		return nil
	}); err != nil {
		return fmt.Errorf("walking %s: %w", r.gameDir, err)
	}

	for i, path := range sourcePaths {
		if r.cancelled() {
			return nil
		}
		rel, err := filepath.Rel(r.gameDir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		stubPath := filepath.Join(r.tlDir, rel)
		if _, err := os.Stat(stubPath); err == nil {
			r.progress(i+1, len(sourcePaths), rel)
			continue
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			r.warn("cannot read source file", err.Error())
			continue
		}
		content, err := encoding.Decode(raw)
		if err != nil {
			r.warn("cannot decode source file", fmt.Sprintf("%s: %v", path, err))
			continue
		}

		entries := rpy.ParseFile(path, content, r.o.rules)
		if err := r.writeStub(stubPath, entries); err != nil {
			r.warn("cannot write stub file", err.Error())
		}
		r.progress(i+1, len(sourcePaths), rel)
	}
	return nil
}

// generateFromRPYC covers the compiled-only fallback of spec.md §8's
// "Compiled-only project" scenario: no .rpy survives extraction, but the
// .rpyc reader is enabled, so stubs are built from the decompiled AST.
func (r *run) generateFromRPYC() error {
	var rpycPaths []string
	if err := filepath.WalkDir(r.gameDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if (ext != ".rpyc" && ext != ".rpymc") || underTLDir(r.gameDir, path) {
			return nil
		}
		rpycPaths = append(rpycPaths, path)
		return nil
	}); err != nil {
		return fmt.Errorf("walking %s: %w", r.gameDir, err)
	}

	for i, path := range rpycPaths {
		if r.cancelled() {
			return nil
		}
		rel, err := filepath.Rel(r.gameDir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		stubRel := strings.TrimSuffix(strings.TrimSuffix(rel, ".rpyc"), ".rpymc") + ".rpy"
		stubPath := filepath.Join(r.tlDir, stubRel)
		if _, err := os.Stat(stubPath); err == nil {
			r.progress(i+1, len(rpycPaths), rel)
			continue
		}

		entries, err := rpyc.ReadFile(path)
		if err != nil {
			r.warn("cannot decode compiled script", fmt.Sprintf("%s: %v", path, err))
			continue
		}
		if err := r.writeStub(stubPath, filterByType(entries, r.o.rules, &r.o.cfg.Translation)); err != nil {
			r.warn("cannot write stub file", err.Error())
		}
		r.progress(i+1, len(rpycPaths), rel)
	}
	return nil
}

// filterByType applies the translate_dialogue|menu|ui|... config gates plus
// never-translate rules to entries harvested outside rpy.ParseFile (which
// already applies them internally).
func filterByType(entries []model.TranslationEntry, rules *rpy.NeverTranslateRules, cfg *config.TranslationConfig) []model.TranslationEntry {
	out := entries[:0:0]
	for _, e := range entries {
		if !cfg.TypeEnabled(e.EntryType) {
			continue
		}
		if rules != nil && rules.Matches(e.OriginalText) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// writeStub renders one stub TL file from a source file's entries: one
// `translate <lang> <id>:` block per dialogue entry, and a single
// aggregated `translate <lang> strings:` block for everything else.
func (r *run) writeStub(stubPath string, entries []model.TranslationEntry) error {
	if len(entries) == 0 {
		return nil
	}

	var lines []string
	pairs := make(map[string]string)
	for _, e := range entries {
		if !r.o.cfg.Translation.TypeEnabled(e.EntryType) {
			continue
		}
		if e.EntryType == config.EntryDialogue {
			blockID := "t_" + e.TranslationID
			lines = append(lines, tlfile.NewBlock(r.lang, blockID, e, e.OriginalText)...)
			lines = append(lines, "")
		} else {
			if _, exists := pairs[e.OriginalText]; !exists {
				pairs[e.OriginalText] = e.OriginalText
			}
		}
	}
	if len(pairs) > 0 {
		lines = append(lines, tlfile.NewStringsBlock(r.lang, pairs)...)
	}
	if len(lines) == 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(stubPath), 0o755); err != nil {
		return err
	}
	body := encoding.Normalize(strings.Join(lines, "\n"))
	return encoding.WriteFileAtomic(stubPath, body, 0o644)
}

func underTLDir(gameDir, path string) bool {
	rel, err := filepath.Rel(gameDir, path)
	if err != nil {
		return false
	}
	parts := strings.Split(rel, string(filepath.Separator))
	return len(parts) > 0 && parts[0] == "tl"
}
