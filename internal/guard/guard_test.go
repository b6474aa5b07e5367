package guard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityTranslate(protected string) string { return protected }

func TestProtectRestoreRoundTrip(t *testing.T) {
	cases := []string{
		`Hi [player_name]! You have %(count)d items.`,
		`{b}Bold{/b} and {i}italic{/i} text.`,
		`Welcome, [player.name]! Score: {0}`,
		`%s said "%s" to %s.`,
		`Plain text with no placeholders at all.`,
		`{color=#ff0000}Warning{/color}: [hp_remaining] HP left.`,
	}

	for _, s := range cases {
		protected, pm := Protect(s)
		translated := identityTranslate(protected)
		restored, report := Restore(translated, pm)
		assert.Equal(t, s, restored, "round trip mismatch for %q", s)
		assert.Empty(t, report.Unresolved)
	}
}

func TestEachFragmentHasExactlyOneTokenOccurrence(t *testing.T) {
	s := `Hi [player_name]! You have %(count)d items, [player_name] again.`
	protected, pm := Protect(s)

	for _, e := range pm.entries {
		count := strings.Count(protected, e.Token)
		assert.Equal(t, 1, count, "token %s should occur exactly once", e.Token)
	}
}

func TestNoResidualTokensAfterRestore(t *testing.T) {
	s := `Hi [player_name]! You have %(count)d items.`
	protected, pm := Protect(s)
	restored, _ := Restore(protected, pm)
	assert.NotContains(t, restored, tokenDelim)
}

func TestCorruptionHealingLowercasedAndSpaced(t *testing.T) {
	s := `Hello [player_name], welcome!`
	_, pm := Protect(s)

	mangled := `Hello xrpyx var 0 xrpyx, welcome!`
	restored, report := Restore(mangled, pm)
	assert.Equal(t, 1, report.Restored)
	assert.Contains(t, restored, "[player_name]")
}

func TestValidateIntegrityReportsMissingFragment(t *testing.T) {
	s := `Hi [player_name]! You have %(count)d items.`
	protected, pm := Protect(s)
	// Simulate a translation engine that dropped one placeholder entirely.
	damaged := strings.Replace(protected, pm.entries[0].Token, "", 1)

	missing := ValidateIntegrity(damaged, pm)
	require.Len(t, missing, 1)
	assert.Equal(t, pm.entries[0].Token, missing[0])
}

func TestBracketHealingCollapsesDuplicates(t *testing.T) {
	s := `Welcome, [player_name]!`
	protected, pm := Protect(s)
	doubled := strings.Replace(protected, pm.entries[0].Token, "["+pm.entries[0].Token+"]", 1)

	restored, _ := Restore(doubled, pm)
	assert.Equal(t, s, restored)
}

func TestOuterTagWrapperStrippedAndReapplied(t *testing.T) {
	s := `{i}Hello, world.{/i}`
	protected, pm := Protect(s)
	assert.False(t, strings.HasPrefix(protected, "{i}"))
	assert.False(t, strings.HasSuffix(protected, "{/i}"))

	restored, _ := Restore(protected, pm)
	assert.Equal(t, s, restored)
}
