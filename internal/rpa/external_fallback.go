package rpa

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// ErrExternalToolUnavailable is returned by ExtractWithExternalTool when no
// fallback binary is configured.
var ErrExternalToolUnavailable = errors.New("rpa: no external extraction binary configured")

// externalToolTimeout bounds one archive's extraction, mirroring
// unrpa_adapter.py's 300-second subprocess timeout.
const externalToolTimeout = 5 * time.Minute

// ExtractWithExternalTool shells out to an external `unrpa`-compatible CLI
// (invoked as `<binary> --path <outputDir> <archivePath>`) when the
// built-in RPA-3.0 reader can't parse an archive — an index/header variant
// the native reader doesn't recognize, for instance. This is the Go
// counterpart of src/utils/unrpa_adapter.py's subprocess-based extraction,
// used as a fallback rather than the primary path: the native Read above
// handles the documented RPA-3.0 format without needing a subprocess or any
// extra installed tool.
//
// binary may be empty, in which case ErrExternalToolUnavailable is returned
// and the caller should treat extraction as having failed outright.
func ExtractWithExternalTool(ctx context.Context, binary, archivePath, outputDir string) error {
	if binary == "" {
		return ErrExternalToolUnavailable
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("rpa: preparing output dir %s: %w", outputDir, err)
	}

	ctx, cancel := context.WithTimeout(ctx, externalToolTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, "--path", outputDir, archivePath)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("rpa: external tool %q failed on %s: %w: %s", binary, archivePath, err, output)
	}
	return nil
}

// RenameExtracted moves an archive the external tool just unpacked out of
// the way so Ren'Py's own loader won't also mount it alongside the files it
// contains, the same ".rpa.bak" convention unrpa_adapter.py's extract_game
// applies after a successful extraction.
func RenameExtracted(archivePath string) error {
	bak := archivePath + ".bak"
	if _, err := os.Stat(bak); err == nil {
		if err := os.Remove(bak); err != nil {
			return err
		}
	}
	return os.Rename(archivePath, bak)
}
