package rpyc

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/renlocalizer/renlocalizer/internal/model"
)

// ReadFile opens, decompresses, and unpickles a single .rpyc/.rpymc file and
// walks the resulting tree into TranslationEntry values. Any error decoding
// this one file is returned to the caller, which (per spec.md §4.3) should
// log it via diagnostics and continue with the remaining files rather than
// aborting the whole extraction.
func ReadFile(path string) ([]model.TranslationEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rpyc: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	pickleStream, err := OpenContainer(f)
	if err != nil {
		return nil, fmt.Errorf("rpyc: container %s: %w", path, err)
	}

	root, err := NewUnpickler(pickleStream, RenpyASTWhitelist()).Load()
	if err != nil {
		return nil, fmt.Errorf("rpyc: unpickle %s: %w", path, err)
	}

	return Walk(root, path), nil
}

// ReadFiles reads every path, skipping (and logging) any file that fails to
// decode instead of aborting the batch.
func ReadFiles(paths []string) []model.TranslationEntry {
	var all []model.TranslationEntry
	for _, p := range paths {
		entries, err := ReadFile(p)
		if err != nil {
			log.Warnf("rpyc: skipping %s: %v", p, err)
			continue
		}
		all = append(all, entries...)
	}
	return all
}
