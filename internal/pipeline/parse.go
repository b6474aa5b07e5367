package pipeline

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/renlocalizer/renlocalizer/internal/dataextract"
	"github.com/renlocalizer/renlocalizer/internal/encoding"
	"github.com/renlocalizer/renlocalizer/internal/model"
	"github.com/renlocalizer/renlocalizer/internal/rpy"
	"github.com/renlocalizer/renlocalizer/internal/tlfile"
)

// parse implements the PARSING stage contract: walk tl/<lang>/ and parse
// every .rpy into a TranslationFile, then (when enabled) deep-scan the
// original source tree and auxiliary data files for strings the stub
// generator missed, appending them as a synthetic file.
func (r *run) parse() error {
	r.stage(model.StageParsing, "parsing translation files")

	var tlPaths []string
	if err := filepath.WalkDir(r.tlDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.ToLower(filepath.Ext(path)) == ".rpy" {
			tlPaths = append(tlPaths, path)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("walking %s: %w", r.tlDir, err)
	}

	seen := make(map[string]bool)
	for i, path := range tlPaths {
		if r.cancelled() {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			r.warn("cannot read TL file", err.Error())
			continue
		}
		content, err := encoding.Decode(raw)
		if err != nil {
			r.warn("cannot decode TL file", fmt.Sprintf("%s: %v", path, err))
			continue
		}
		tf := tlfile.ParseFile(path, content)
		for _, e := range tf.Entries {
			seen[e.TranslationID] = true
			if e.TranslationID == "" {
				seen[model.DeriveTranslationID(e.FilePath, e.LineNumber, e.OriginalText, e.ContextPath)] = true
			}
		}
		r.files = append(r.files, tf)
		r.stats.Total += len(tf.Entries)
		r.progress(i+1, len(tlPaths), path)
	}

	if r.o.cfg.Translation.EnableDeepScan {
		if err := r.deepScan(seen); err != nil {
			r.warn("deep scan failed", err.Error())
		}
	}
	return nil
}

// deepScan re-parses the original source tree (and any auxiliary .json/
// .yaml data files) and appends entries the stub generator's per-file pass
// missed — e.g. strings added to game/ after stubs were first generated.
func (r *run) deepScan(seen map[string]bool) error {
	var extra []model.TranslationEntry

	if err := filepath.WalkDir(r.gameDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || underTLDir(r.gameDir, path) {
			return nil
		}
		if r.cancelled() {
			return filepath.SkipAll
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".rpy":
			raw, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			content, err := encoding.Decode(raw)
			if err != nil {
				return nil
			}
			for _, e := range rpy.ParseFile(path, content, r.o.rules) {
				if !seen[e.TranslationID] {
					extra = append(extra, e)
				}
			}
		case ".json":
			raw, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			for _, e := range dataextract.ExtractJSON(path, raw) {
				if !seen[e.TranslationID] {
					extra = append(extra, e)
				}
			}
		case ".yaml", ".yml":
			raw, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			es, err := dataextract.ExtractYAML(path, raw)
			if err != nil {
				return nil
			}
			for _, e := range es {
				if !seen[e.TranslationID] {
					extra = append(extra, e)
				}
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if len(extra) == 0 {
		return nil
	}

	synthetic := model.TranslationFile{Path: filepath.Join(r.tlDir, "_deepscan.rpy")}
	pairs := make(map[string]string, len(extra))
	for _, e := range extra {
		if !r.o.cfg.Translation.TypeEnabled(e.EntryType) {
			continue
		}
		pairs[e.OriginalText] = e.OriginalText
		synthetic.Entries = append(synthetic.Entries, model.TranslationEntry{
			OriginalText:  e.OriginalText,
			TranslatedText: e.OriginalText,
			FilePath:      e.FilePath,
			EntryType:     e.EntryType,
			BlockID:       "strings",
			ContextPath:   e.ContextPath,
			TranslationID: e.TranslationID,
		})
	}
	if len(pairs) == 0 {
		return nil
	}
	synthetic.Lines = tlfile.NewStringsBlock(r.lang, pairs)
	// LineNumber for each entry is its "new" line's position within the
	// generated block: header line, then (old, new) pairs in map order. Map
	// iteration order is not the order Entries were appended in, so rebuild
	// LineNumber by locating each entry's original text in the rendered
	// lines instead of assuming a fixed stride.
	for i := range synthetic.Entries {
		synthetic.Entries[i].LineNumber = findNewLine(synthetic.Lines, synthetic.Entries[i].OriginalText)
	}

	r.files = append(r.files, synthetic)
	r.stats.Total += len(synthetic.Entries)
	r.logMessage("info", fmt.Sprintf("deep scan found %d additional string(s)", len(synthetic.Entries)))
	return nil
}

func findNewLine(lines []string, original string) int {
	escaped := strings.ReplaceAll(original, `"`, `\"`)
	target := `old "` + escaped + `"`
	for i, l := range lines {
		if strings.TrimSpace(l) == target && i+1 < len(lines) {
			return i + 2 // 1-indexed "new" line directly below "old"
		}
	}
	return 0
}
