package rpy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renlocalizer/renlocalizer/internal/config"
)

func TestDialogueLineProducesOneEntryWithCharacter(t *testing.T) {
	entries := ParseFile("script.rpy", `e "Hello, world."`, nil)
	require.Len(t, entries, 1)
	assert.Equal(t, config.EntryDialogue, entries[0].EntryType)
	assert.Equal(t, "e", entries[0].Character)
	assert.Equal(t, "Hello, world.", entries[0].OriginalText)
}

func TestPureNumberDroppedVersionLikeRetained(t *testing.T) {
	assert.False(t, IsMeaningful("42"))
	assert.True(t, IsMeaningful("1.0.2"))
}

func TestMenuChoiceWithConditionProducesMenuEntry(t *testing.T) {
	source := "menu:\n" + `    "choice" if cond:` + "\n        jump somewhere\n"
	entries := ParseFile("script.rpy", source, nil)
	require.Len(t, entries, 1)
	assert.Equal(t, config.EntryMenu, entries[0].EntryType)
	assert.Equal(t, "choice", entries[0].OriginalText)
}

func TestNeverTranslateRulesExcludeMatches(t *testing.T) {
	rules := &NeverTranslateRules{Exact: map[string]bool{"Hello, world.": true}}
	entries := ParseFile("script.rpy", `e "Hello, world."`, rules)
	assert.Empty(t, entries)
}

func TestConfigAssignmentOnlyWhitelistedNames(t *testing.T) {
	entries := ParseFile("options.rpy", `config.name = "My Visual Novel"`, nil)
	require.Len(t, entries, 1)
	assert.Equal(t, config.EntryConfig, entries[0].EntryType)

	entries = ParseFile("options.rpy", `config.some_random_flag = "ignored"`, nil)
	assert.Empty(t, entries)
}

func TestTranslationIDStableAcrossRuns(t *testing.T) {
	a := ParseFile("script.rpy", `e "Hello, world."`, nil)
	b := ParseFile("script.rpy", `e "Hello, world."`, nil)
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].TranslationID, b[0].TranslationID)
}
