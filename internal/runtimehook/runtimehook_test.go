package runtimehook

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderRequiresLanguage(t *testing.T) {
	_, err := Render(Options{})
	assert.Error(t, err)
}

func TestRenderSetsConfigLanguageAndFilters(t *testing.T) {
	out, err := Render(Options{Language: "turkish"})
	require.NoError(t, err)

	body := string(out[3:]) // strip BOM
	assert.Contains(t, body, `config.language = "turkish"`)
	assert.Contains(t, body, "config.say_menu_text_filter")
	assert.Contains(t, body, "config.replace_text")
	assert.Contains(t, body, "renpy.translate_string")
	assert.Contains(t, body, "shift_L")
	assert.True(t, strings.HasPrefix(body, "init -100 python:"))
}

func TestRenderHonorsCustomSwitchKey(t *testing.T) {
	out, err := Render(Options{Language: "french", SwitchKey: "k_F5"})
	require.NoError(t, err)
	assert.Contains(t, string(out), "k_F5")
}

func TestWriteProducesFileNamedForLateLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(dir, Options{Language: "turkish"}))

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(FileName, "zzz_"))
	assert.Contains(t, string(data), "turkish")
}

func TestWriteOverwritesPriorVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(dir, Options{Language: "turkish"}))
	require.NoError(t, Write(dir, Options{Language: "german"}))

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "german")
	assert.NotContains(t, string(data), `"turkish"`)
}
