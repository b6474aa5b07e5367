package pipeline

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/renlocalizer/renlocalizer/internal/model"
)

// validate implements the VALIDATING stage contract: the input path must
// exist, the project's game/ directory must be locatable (normalizing a
// selection of game/ itself or an EXE inside it), and the tree is scanned
// once for which input formats are present.
func (r *run) validate(inputPath string) (string, error) {
	r.stage(model.StageValidating, "validating input path")

	info, err := os.Stat(inputPath)
	if err != nil {
		return "", fmt.Errorf("input path %q does not exist", inputPath)
	}

	gameDir, err := locateGameDir(inputPath, info)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(gameDir); err != nil {
		return "", fmt.Errorf("could not locate a game/ directory under %q", inputPath)
	}

	if err := filepath.WalkDir(gameDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".rpy":
			r.hasRPY = true
		case ".rpyc", ".rpymc":
			r.hasRPYC = true
		case ".rpa":
			r.rpaPaths = append(r.rpaPaths, path)
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("scanning %q: %w", gameDir, err)
	}

	r.logMessage("info", fmt.Sprintf("found game dir %s (rpy=%v rpyc=%v rpa=%d)", gameDir, r.hasRPY, r.hasRPYC, len(r.rpaPaths)))
	return gameDir, nil
}

// locateGameDir normalizes the three ways a user points RenLocalizer at a
// project: the game/ directory itself, the project root containing game/,
// or an EXE sitting next to game/.
func locateGameDir(inputPath string, info os.FileInfo) (string, error) {
	if !info.IsDir() {
		if strings.EqualFold(filepath.Ext(inputPath), ".exe") {
			return filepath.Join(filepath.Dir(inputPath), "game"), nil
		}
		return "", fmt.Errorf("input path %q is neither a directory nor an executable", inputPath)
	}
	if filepath.Base(inputPath) == "game" {
		return inputPath, nil
	}
	return filepath.Join(inputPath, "game"), nil
}
