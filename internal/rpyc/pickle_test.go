package rpyc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPickle hand-assembles a minimal protocol-2 pickle stream: a GLOBAL
// referencing an unwhitelisted class, a tuple of one string argument, a
// REDUCE, then STOP. This exercises the restricted resolver without
// depending on a real Python pickle dump.
func buildPickle(module, name, arg string) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(opGlobal))
	buf.WriteString(module)
	buf.WriteByte('\n')
	buf.WriteString(name)
	buf.WriteByte('\n')

	buf.WriteByte(byte(opShortBinUnicode))
	buf.WriteByte(byte(len(arg)))
	buf.WriteString(arg)

	buf.WriteByte(byte(opTuple1))
	buf.WriteByte(byte(opReduce))
	buf.WriteByte(byte(opStop))
	return buf.Bytes()
}

func TestUnwhitelistedClassBecomesOpaqueNode(t *testing.T) {
	data := buildPickle("some.evil.module", "Dangerous", "hello")
	u := NewUnpickler(bytes.NewReader(data), RenpyASTWhitelist())
	result, err := u.Load()
	require.NoError(t, err)

	fo, ok := result.(*FakeObject)
	require.True(t, ok)
	assert.Equal(t, "__opaque__", fo.Module)
	assert.Equal(t, "OpaqueNode", fo.Name)
	assert.Equal(t, "hello", fo.Args[0])
}

func TestWhitelistedClassPassesThrough(t *testing.T) {
	data := buildPickle("renpy.ast", "Say", "Hello, world.")
	u := NewUnpickler(bytes.NewReader(data), RenpyASTWhitelist())
	result, err := u.Load()
	require.NoError(t, err)

	fo, ok := result.(*FakeObject)
	require.True(t, ok)
	assert.Equal(t, "renpy.ast", fo.Module)
	assert.Equal(t, "Say", fo.Name)
}

func TestUnsupportedOpcodeIsRejected(t *testing.T) {
	u := NewUnpickler(bytes.NewReader([]byte{0xfe, byte(opStop)}), nil)
	_, err := u.Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedOpcode)
}

func TestWalkHarvestsSayDialogue(t *testing.T) {
	data := buildPickle("renpy.ast", "Say", "Hello, world.")
	u := NewUnpickler(bytes.NewReader(data), RenpyASTWhitelist())
	root, err := u.Load()
	require.NoError(t, err)

	entries := Walk(root, "script.rpyc")
	require.Len(t, entries, 1)
	assert.Equal(t, "Hello, world.", entries[0].OriginalText)
}

func TestLooksHarvestableFiltersVariableNames(t *testing.T) {
	assert.False(t, looksHarvestable("game_menu"))
	assert.True(t, looksHarvestable("Back"))
	assert.True(t, looksHarvestable("back")) // UI whitelist
	assert.True(t, looksHarvestable("Hello there"))
}
