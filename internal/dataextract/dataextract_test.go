package dataextract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONFindsTranslatableKeys(t *testing.T) {
	doc := []byte(`{
		"id": "quest_001",
		"title": "The Lost Sword",
		"metadata": {"icon_path": "gui/icon.png", "description": "A quest about a sword."}
	}`)
	entries := ExtractJSON("quests.json", doc)
	require.Len(t, entries, 2)

	texts := map[string]bool{}
	for _, e := range entries {
		texts[e.OriginalText] = true
	}
	assert.True(t, texts["The Lost Sword"])
	assert.True(t, texts["A quest about a sword."])
}

func TestExtractYAMLFindsTranslatableKeys(t *testing.T) {
	doc := []byte(`
id: quest_001
title: The Lost Sword
metadata:
  icon_path: gui/icon.png
  description: A quest about a sword.
`)
	entries, err := ExtractYAML("quests.yaml", doc)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestInvalidJSONYieldsNoEntries(t *testing.T) {
	entries := ExtractJSON("broken.json", []byte(`{not valid`))
	assert.Empty(t, entries)
}
