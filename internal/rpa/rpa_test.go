package rpa

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackThenUnpackRoundTrip(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "game.rpa")

	entries := []Entry{
		{ArchivePath: "script.rpyc", Data: []byte("hello world payload")},
		{ArchivePath: "images/bg.png", Data: []byte{0x89, 'P', 'N', 'G', 0, 1, 2, 3, 4, 5}},
		{ArchivePath: "empty.txt", Data: []byte{}},
	}

	require.NoError(t, Write(archivePath, entries))

	read, err := Read(archivePath)
	require.NoError(t, err)
	require.Len(t, read, len(entries))

	byPath := make(map[string][]byte, len(read))
	for _, e := range read {
		byPath[e.ArchivePath] = e.Data
	}

	for _, want := range entries {
		got, ok := byPath[want.ArchivePath]
		require.True(t, ok, "missing archive path %q", want.ArchivePath)
		assert.Equal(t, want.Data, got, "payload mismatch for %q", want.ArchivePath)
	}
}

func TestHeaderLineRoundTrip(t *testing.T) {
	line := headerLine(123456, 0xdeadbeef)
	offset, key, err := parseHeader(line[:len(line)-1])
	require.NoError(t, err)
	assert.EqualValues(t, 123456, offset)
	assert.EqualValues(t, 0xdeadbeef, key)
}

func TestReadRejectsArchiveWithUnreadableIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "huge.rpa")
	require.NoError(t, os.WriteFile(path, []byte(headerLine(0, 1)), 0o644))

	// The file is only a header whose index offset (0) points back at the
	// header itself, which is not a zlib stream, so Read must fail.
	_, err := Read(path)
	assert.Error(t, err) // malformed index for an empty placeholder file
}
