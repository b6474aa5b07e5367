package pipeline

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/renlocalizer/renlocalizer/internal/model"
	"github.com/renlocalizer/renlocalizer/internal/rpa"
)

// unrpa implements the UNRPA stage contract: extract every archive found
// during VALIDATING when auto-extraction is enabled; if extraction fails
// and no source .rpy survives, fall back to .rpyc reader mode if enabled,
// otherwise abort.
func (r *run) unrpa() error {
	if len(r.rpaPaths) == 0 {
		return nil
	}
	if !r.o.cfg.Translation.AutoExtractRPA {
		r.logMessage("info", "archives present but auto_extract_rpa is disabled, leaving them untouched")
		return nil
	}

	r.stage(model.StageUnrpa, fmt.Sprintf("extracting %d archive(s)", len(r.rpaPaths)))

	var extractErr error
	for i, archivePath := range r.rpaPaths {
		if r.cancelled() {
			return nil
		}
		entries, err := rpa.Read(archivePath)
		if err != nil {
			if fallbackErr := r.unrpaExternalFallback(archivePath); fallbackErr == nil {
				r.progress(i+1, len(r.rpaPaths), archivePath)
				continue
			}
			extractErr = fmt.Errorf("extracting %s: %w", archivePath, err)
			r.warn("archive extraction failed", extractErr.Error())
			continue
		}
		for _, e := range entries {
			dest := filepath.Join(r.gameDir, e.ArchivePath)
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				extractErr = fmt.Errorf("creating directory for %s: %w", e.ArchivePath, err)
				continue
			}
			if err := os.WriteFile(dest, e.Data, 0o644); err != nil {
				extractErr = fmt.Errorf("writing %s: %w", e.ArchivePath, err)
				continue
			}
			switch filepath.Ext(e.ArchivePath) {
			case ".rpy":
				r.hasRPY = true
			case ".rpyc", ".rpymc":
				r.hasRPYC = true
			}
		}
		r.progress(i+1, len(r.rpaPaths), archivePath)
	}

	if extractErr != nil && !r.hasRPY {
		if r.o.cfg.Translation.EnableRPYCReader && r.hasRPYC {
			r.logMessage("warn", "archive extraction failed, falling back to .rpyc reader mode")
			return nil
		}
		return fmt.Errorf("archive extraction failed and no .rpy source is available: %w", extractErr)
	}
	return nil
}

// unrpaExternalFallback shells out to an external unrpa-compatible CLI when
// the built-in RPA-3.0 reader can't parse an archive, mirroring
// unrpa_adapter.py's role as UnRen's extraction fallback (SPEC_FULL.md §12).
// It is a no-op (returning rpa.ErrExternalToolUnavailable) unless
// unrpa_fallback_binary is configured.
func (r *run) unrpaExternalFallback(archivePath string) error {
	binary := r.o.cfg.Translation.UnrpaFallbackBinary
	outputDir := filepath.Dir(archivePath)
	if err := rpa.ExtractWithExternalTool(r.ctx, binary, archivePath, outputDir); err != nil {
		return err
	}

	if walkErr := filepath.WalkDir(outputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".rpy":
			r.hasRPY = true
		case ".rpyc", ".rpymc":
			r.hasRPYC = true
		}
		return nil
	}); walkErr != nil {
		r.warn("scanning externally extracted archive", walkErr.Error())
	}

	if err := rpa.RenameExtracted(archivePath); err != nil {
		r.warn("renaming externally extracted archive", err.Error())
	}
	r.logMessage("info", fmt.Sprintf("extracted %s with external tool %q", archivePath, binary))
	return nil
}
