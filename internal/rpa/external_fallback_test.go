package rpa

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUnrpaBinary writes a tiny shell script standing in for an installed
// `unrpa` CLI: it drops a marker file into the --path directory it was given,
// so tests can assert ExtractWithExternalTool actually invoked it correctly.
func fakeUnrpaBinary(t *testing.T, exitCode int) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binary is a POSIX shell script")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "fake-unrpa")
	script := fmt.Sprintf(`#!/bin/sh
while [ "$1" != "--path" ]; do shift; done
shift
outdir="$1"
shift
archive="$1"
echo "extracted $archive" > "$outdir/extracted.rpy"
exit %d
`, exitCode)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestExtractWithExternalToolRunsBinaryAndWritesOutput(t *testing.T) {
	binary := fakeUnrpaBinary(t, 0)
	outDir := t.TempDir()
	archivePath := filepath.Join(t.TempDir(), "game.rpa")
	require.NoError(t, os.WriteFile(archivePath, []byte("not a real archive"), 0o644))

	err := ExtractWithExternalTool(context.Background(), binary, archivePath, outDir)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(outDir, "extracted.rpy"))
	require.NoError(t, err)
	assert.Contains(t, string(data), archivePath)
}

func TestExtractWithExternalToolReturnsErrorWhenBinaryFails(t *testing.T) {
	binary := fakeUnrpaBinary(t, 1)
	outDir := t.TempDir()
	archivePath := filepath.Join(t.TempDir(), "game.rpa")
	require.NoError(t, os.WriteFile(archivePath, []byte("x"), 0o644))

	err := ExtractWithExternalTool(context.Background(), binary, archivePath, outDir)
	assert.Error(t, err)
}

func TestExtractWithExternalToolRequiresBinary(t *testing.T) {
	err := ExtractWithExternalTool(context.Background(), "", "archive.rpa", t.TempDir())
	assert.ErrorIs(t, err, ErrExternalToolUnavailable)
}

func TestRenameExtractedMovesArchiveToBak(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "game.rpa")
	require.NoError(t, os.WriteFile(archivePath, []byte("x"), 0o644))

	require.NoError(t, RenameExtracted(archivePath))

	_, err := os.Stat(archivePath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(archivePath + ".bak")
	assert.NoError(t, err)
}

func TestRenameExtractedOverwritesStaleBak(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "game.rpa")
	require.NoError(t, os.WriteFile(archivePath, []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(archivePath+".bak", []byte("stale"), 0o644))

	require.NoError(t, RenameExtracted(archivePath))

	data, err := os.ReadFile(archivePath + ".bak")
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}
