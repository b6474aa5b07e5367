package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renlocalizer/renlocalizer/internal/config"
	"github.com/renlocalizer/renlocalizer/internal/model"
)

// upperTranslator fakes the translation manager by upper-casing every
// request, so tests can assert on predictable output without a real engine.
type upperTranslator struct {
	calls int
}

func (u *upperTranslator) TranslateBatch(_ context.Context, reqs []model.TranslationRequest) []model.TranslationResult {
	u.calls++
	out := make([]model.TranslationResult, len(reqs))
	for i, req := range reqs {
		out[i] = model.TranslationResult{
			OriginalText:   req.Metadata.OriginalText,
			TranslatedText: strings.ToUpper(req.Text),
			Success:        true,
			Metadata:       req.Metadata,
		}
	}
	return out
}

func newFixtureProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	gameDir := filepath.Join(root, "game")
	require.NoError(t, os.MkdirAll(gameDir, 0o755))
	script := "label start:\n    e \"Hello, world.\"\n    \"Untagged line.\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(gameDir, "script.rpy"), []byte(script), 0o644))
	return gameDir
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Translation.TargetLang = "turkish"
	cfg.Translation.SourceLang = "english"
	return cfg
}

func TestRunCompletesBaselineDialogueExtraction(t *testing.T) {
	gameDir := newFixtureProject(t)
	translator := &upperTranslator{}
	orch := New(testConfig(), translator, nil, nil)

	result := orch.Run(context.Background(), gameDir)

	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, model.StageCompleted, result.Stage)
	assert.Equal(t, 1, translator.calls)
	assert.Greater(t, result.Stats.Translated, 0)

	stubPath := filepath.Join(gameDir, "tl", "turkish", "script.rpy")
	body, err := os.ReadFile(stubPath)
	require.NoError(t, err)
	assert.Contains(t, string(body), "translate turkish")
	assert.Contains(t, string(body), "HELLO, WORLD.")

	stringsJSON, err := os.ReadFile(filepath.Join(gameDir, "strings.json"))
	require.NoError(t, err)
	assert.Contains(t, string(stringsJSON), "Hello, world.")

	hook, err := os.ReadFile(filepath.Join(gameDir, "zzz_renlocalizer_runtime.rpy"))
	require.NoError(t, err)
	assert.Contains(t, string(hook), `config.language = "turkish"`)

	diag, err := os.ReadFile(filepath.Join(gameDir, "diagnostic_turkish.json"))
	require.NoError(t, err)
	assert.Contains(t, string(diag), "generated_at")
}

func TestRunSkipsRegenerationWhenStubExists(t *testing.T) {
	gameDir := newFixtureProject(t)
	tlDir := filepath.Join(gameDir, "tl", "turkish")
	require.NoError(t, os.MkdirAll(tlDir, 0o755))
	existing := "translate turkish strings:\n    old \"Hello, world.\"\n    new \"Already translated.\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(tlDir, "script.rpy"), []byte(existing), 0o644))

	translator := &upperTranslator{}
	orch := New(testConfig(), translator, nil, nil)
	result := orch.Run(context.Background(), gameDir)

	require.NotNil(t, result)
	assert.True(t, result.Success)

	body, err := os.ReadFile(filepath.Join(tlDir, "script.rpy"))
	require.NoError(t, err)
	assert.Contains(t, string(body), "Already translated.")
}

func TestRunFailsValidationOnMissingPath(t *testing.T) {
	orch := New(testConfig(), &upperTranslator{}, nil, nil)
	result := orch.Run(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"))

	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, model.StageError, result.Stage)
}

func TestRunHaltsWhenContextAlreadyCancelled(t *testing.T) {
	gameDir := newFixtureProject(t)
	orch := New(testConfig(), &upperTranslator{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := orch.Run(ctx, gameDir)

	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, model.StageIdle, result.Stage)
}

// TestStopResetsAtNextRun documents that Stop's effect is scoped to the Run
// it was called during: a fresh Run always starts with the flag cleared, so
// a prior Stop never blocks a later, unrelated run.
func TestStopResetsAtNextRun(t *testing.T) {
	gameDir := newFixtureProject(t)
	orch := New(testConfig(), &upperTranslator{}, nil, nil)
	orch.Stop()

	result := orch.Run(context.Background(), gameDir)

	require.NotNil(t, result)
	assert.True(t, result.Success)
}

func TestRunEmitsStageChangedEventsInOrder(t *testing.T) {
	gameDir := newFixtureProject(t)
	orch := New(testConfig(), &upperTranslator{}, nil, nil)

	started := make(chan <-chan Event, 1)
	done := make(chan *model.PipelineResult, 1)
	go func() {
		done <- orch.RunWithStartSignal(context.Background(), gameDir, started)
	}()

	events := <-started
	var stages []model.Stage
	for e := range events {
		if e.Kind == EventStageChanged {
			stages = append(stages, e.Stage)
		}
	}
	<-done

	require.NotEmpty(t, stages)
	assert.Equal(t, model.StageValidating, stages[0])
	assert.Equal(t, model.StageCompleted, stages[len(stages)-1])
}

func TestRunWithoutDialogueConfigDisabledSkipsTranslation(t *testing.T) {
	gameDir := newFixtureProject(t)
	cfg := testConfig()
	cfg.Translation.TranslateDialogue = false
	cfg.Translation.TranslateUI = false

	translator := &upperTranslator{}
	orch := New(cfg, translator, nil, nil)
	result := orch.Run(context.Background(), gameDir)

	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, 0, translator.calls)
}
