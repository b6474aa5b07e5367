package tlfile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renlocalizer/renlocalizer/internal/model"
)

const sampleBlock = `translate turkish hello_001:
    # e "Hello, world."
    e "Hello, world."
`

func TestParseDialogueBlock(t *testing.T) {
	tf := ParseFile("script.rpy", sampleBlock)
	require.Len(t, tf.Entries, 1)
	assert.Equal(t, "Hello, world.", tf.Entries[0].OriginalText)
	assert.Equal(t, "e", tf.Entries[0].Character)
	assert.Equal(t, "hello_001", tf.Entries[0].BlockID)
}

func TestApplyTranslationPreservesSurroundingLines(t *testing.T) {
	tf := ParseFile("script.rpy", sampleBlock)
	ApplyTranslation(&tf, tf.Entries[0], "Merhaba, dünya.")

	out := Render(tf)
	assert.Contains(t, out, `e "Merhaba, dünya."`)
	assert.Contains(t, out, `# e "Hello, world."`) // comment line untouched
	assert.True(t, strings.HasPrefix(out, "translate turkish hello_001:"))
}

func TestParseStringsBlock(t *testing.T) {
	raw := "translate turkish strings:\n" +
		`    old "OK"` + "\n" +
		`    new "OK"` + "\n"
	tf := ParseFile("common.rpy", raw)
	require.Len(t, tf.Entries, 1)
	assert.Equal(t, "OK", tf.Entries[0].OriginalText)
	assert.Equal(t, "strings", tf.Entries[0].BlockID)
}

func TestNewBlockShape(t *testing.T) {
	entry := model.TranslationEntry{OriginalText: "Hello, world.", Character: "e"}
	lines := NewBlock("turkish", "hello_001", entry, "Merhaba, dünya.")
	require.Len(t, lines, 3)
	assert.Equal(t, "translate turkish hello_001:", lines[0])
	assert.Contains(t, lines[1], `# e "Hello, world."`)
	assert.Contains(t, lines[2], `e "Merhaba, dünya."`)
}
