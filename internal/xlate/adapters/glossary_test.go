package adapters

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadGlossaryMissingPathIsEmpty(t *testing.T) {
	g, err := LoadGlossary("")
	require.NoError(t, err)
	assert.Empty(t, g)
}

func TestLoadGlossaryParsesTOMLPairs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "glossary.toml")
	require.NoError(t, os.WriteFile(path, []byte(`hero = "héros"`+"\n"+`sword = "épée"`+"\n"), 0o644))

	g, err := LoadGlossary(path)
	require.NoError(t, err)
	assert.Equal(t, "héros", g["hero"])
	assert.Equal(t, "épée", g["sword"])
}

func TestGlossaryPromptRendersEmptyForNoEntries(t *testing.T) {
	g := Glossary{}
	assert.Empty(t, g.Prompt())
}

func TestGlossaryPromptRendersPairs(t *testing.T) {
	g := Glossary{"hero": "héros"}
	assert.Contains(t, g.Prompt(), "hero -> héros")
}
