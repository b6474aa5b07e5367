package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renlocalizer/renlocalizer/internal/model"
)

// fakeUnrpaBinary stands in for an external `unrpa`-compatible CLI: it drops
// a real .rpy file into the --path directory so the UNRPA stage's fallback
// path can observe a successful extraction without a real RPA archive.
func fakeUnrpaBinary(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake binary is a POSIX shell script")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "fake-unrpa")
	script := `#!/bin/sh
while [ "$1" != "--path" ]; do shift; done
shift
outdir="$1"
printf 'label start:\n    e "Recovered line."\n' > "$outdir/recovered.rpy"
exit 0
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestUnrpaFallsBackToExternalToolWhenNativeReaderFails(t *testing.T) {
	gameDir := newFixtureProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(gameDir, "bad.rpa"), []byte("not a real archive"), 0o644))

	cfg := testConfig()
	cfg.Translation.AutoExtractRPA = true
	cfg.Translation.UnrpaFallbackBinary = fakeUnrpaBinary(t)

	translator := &upperTranslator{}
	orch := New(cfg, translator, nil, nil)
	result := orch.Run(context.Background(), gameDir)

	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, model.StageCompleted, result.Stage)

	_, err := os.Stat(filepath.Join(gameDir, "bad.rpa.bak"))
	assert.NoError(t, err, "the archive extracted by the external tool should be renamed out of the way")
	_, err = os.Stat(filepath.Join(gameDir, "bad.rpa"))
	assert.True(t, os.IsNotExist(err))
}

func TestUnrpaFailsWithoutFallbackBinaryConfiguredWhenNativeReaderFails(t *testing.T) {
	gameDir := t.TempDir()
	game := filepath.Join(gameDir, "game")
	require.NoError(t, os.MkdirAll(game, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(game, "bad.rpa"), []byte("not a real archive"), 0o644))

	cfg := testConfig()
	cfg.Translation.AutoExtractRPA = true

	orch := New(cfg, &upperTranslator{}, nil, nil)
	result := orch.Run(context.Background(), game)

	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, model.StageError, result.Stage)
}
