package encoding

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"
)

func TestSniffDetectsBOMs(t *testing.T) {
	assert.Equal(t, UTF8BOM, Sniff(append(utf8BOM, "hi"...)))
	assert.Equal(t, UTF16LE, Sniff(append(utf16LEBOM, 'h', 0, 'i', 0)))
	assert.Equal(t, UTF16BE, Sniff(append(utf16BEBOM, 0, 'h', 0, 'i')))
	assert.Equal(t, UTF8, Sniff([]byte("plain")))
}

func TestDecodeStripsUTF8BOM(t *testing.T) {
	raw := append(append([]byte{}, utf8BOM...), []byte("hello")...)
	out, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestDecodeUTF16RoundTrips(t *testing.T) {
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewEncoder()
	raw, err := encoder.Bytes([]byte("héros"))
	require.NoError(t, err)

	out, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "héros", out)
}

func TestNormalizeAddsBOMAndConvertsCRLF(t *testing.T) {
	out := Normalize("line one  \r\nline two\t\r\nlast line")
	assert.True(t, len(out) > len(utf8BOM))
	assert.Equal(t, utf8BOM, out[:3])

	body := string(out[3:])
	assert.Equal(t, "line one\nline two\nlast line", body)
}

func TestWriteFileAtomicProducesReadableFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.rpy")

	require.NoError(t, WriteFileAtomic(path, []byte("content"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no leftover temp file")
}

func TestNormalizeFileRewritesInPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "script.rpy")
	require.NoError(t, os.WriteFile(path, []byte("e \"hi\"\r\n"), 0o644))

	require.NoError(t, NormalizeFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, utf8BOM, data[:3])
	assert.Equal(t, "e \"hi\"\n", string(data[3:]))
}
