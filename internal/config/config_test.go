package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
translation:
  source_lang: english
  target_lang: turkish
  engine: web
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "turkish", cfg.Translation.TargetLang)
	assert.Equal(t, 4, cfg.Translation.MaxConcurrentThreads)
	assert.Equal(t, 3, cfg.Translation.MaxRetries)
	assert.Equal(t, 4, cfg.Translation.ConcurrencyFloor)
	assert.Equal(t, 512, cfg.Translation.ConcurrencyCap)
}

func TestValidateRejectsSameLanguages(t *testing.T) {
	cfg := Default()
	cfg.Translation.SourceLang = "english"
	cfg.Translation.TargetLang = "English"
	err := cfg.Validate()
	assert.ErrorContains(t, err, "must differ")
}

func TestValidateRequiresAPIKeyForAPIKeyEngine(t *testing.T) {
	cfg := Default()
	cfg.Translation.TargetLang = "turkish"
	cfg.Translation.Engine = EngineAPIKey
	err := cfg.Validate()
	assert.ErrorContains(t, err, "api_keys.api_key")

	cfg.APIKeys.APIKey = "secret"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRequiresPassphraseForAESObfuscation(t *testing.T) {
	cfg := Default()
	cfg.Translation.TargetLang = "turkish"
	cfg.Translation.ObfuscationMode = ObfuscationAES
	err := cfg.Validate()
	assert.ErrorContains(t, err, "obfuscation_passphrase")

	cfg.Translation.ObfuscationPassphrase = "correct horse battery staple"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownObfuscationMode(t *testing.T) {
	cfg := Default()
	cfg.Translation.TargetLang = "turkish"
	cfg.Translation.ObfuscationMode = "rot13"
	err := cfg.Validate()
	assert.ErrorContains(t, err, "unknown obfuscation_mode")
}

func TestTypeEnabled(t *testing.T) {
	cfg := Default()
	cfg.Translation.TranslateGUI = false
	assert.True(t, cfg.Translation.TypeEnabled(EntryDialogue))
	assert.False(t, cfg.Translation.TypeEnabled(EntryGUI))
}
