// Package encoding implements C1: detecting the encoding of arbitrary text
// files Ren'Py projects ship with (UTF-8, UTF-8-BOM, UTF-16) and normalizing
// RenLocalizer's own output to UTF-8-with-BOM, LF line endings, per spec.md
// §6's output-format rule.
package encoding

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	utf16LEBOM = []byte{0xFF, 0xFE}
	utf16BEBOM = []byte{0xFE, 0xFF}
)

// Detected names the encoding Sniff found.
type Detected string

const (
	UTF8        Detected = "utf-8"
	UTF8BOM     Detected = "utf-8-bom"
	UTF16LE     Detected = "utf-16le"
	UTF16BE     Detected = "utf-16be"
)

// Sniff identifies raw's encoding by BOM, falling back to plain UTF-8 when
// no BOM is present — spec.md §6 calls this "auto-detected via byte sniff"
// for the no-BOM case.
func Sniff(raw []byte) Detected {
	switch {
	case bytes.HasPrefix(raw, utf8BOM):
		return UTF8BOM
	case bytes.HasPrefix(raw, utf16LEBOM):
		return UTF16LE
	case bytes.HasPrefix(raw, utf16BEBOM):
		return UTF16BE
	default:
		return UTF8
	}
}

// Decode returns raw as a UTF-8 string regardless of its detected source
// encoding, stripping any BOM.
func Decode(raw []byte) (string, error) {
	switch Sniff(raw) {
	case UTF8BOM:
		return string(raw[len(utf8BOM):]), nil
	case UTF16LE:
		return decodeUTF16(raw, unicode.LittleEndian)
	case UTF16BE:
		return decodeUTF16(raw, unicode.BigEndian)
	default:
		return string(raw), nil
	}
}

func decodeUTF16(raw []byte, endian unicode.Endianness) (string, error) {
	decoder := unicode.UTF16(endian, unicode.ExpectBOM).NewDecoder()
	out, _, err := transform.Bytes(decoder, raw)
	if err != nil {
		return "", fmt.Errorf("encoding: utf-16 decode: %w", err)
	}
	return string(out), nil
}

// Normalize renders text as the bytes Ren'Py's translate tool expects: a
// UTF-8 BOM, LF line endings, and no trailing whitespace on any line.
func Normalize(text string) []byte {
	text = crlfToLF(text)
	lines := splitLines(text)
	for i, l := range lines {
		lines[i] = trimTrailingSpace(l)
	}

	var buf bytes.Buffer
	buf.Write(utf8BOM)
	for i, l := range lines {
		buf.WriteString(l)
		if i != len(lines)-1 {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}

func crlfToLF(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

func splitLines(s string) []string {
	return strings.Split(s, "\n")
}

func trimTrailingSpace(s string) string {
	return strings.TrimRight(s, " \t")
}

// WriteFileAtomic writes data to path by writing to a sibling temp file,
// fsync'ing it, then renaming it over path — the atomic-write property
// spec.md §9 requires the encoding normalizer to depend on.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".renlocalizer-tmp-*")
	if err != nil {
		return fmt.Errorf("encoding: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encoding: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encoding: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("encoding: close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("encoding: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("encoding: rename temp file: %w", err)
	}
	return nil
}

// NormalizeFile reads path, decodes whatever encoding it is in, and
// rewrites it atomically as UTF-8-BOM with LF endings.
func NormalizeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("encoding: read %s: %w", path, err)
	}
	text, err := Decode(raw)
	if err != nil {
		return fmt.Errorf("encoding: decode %s: %w", path, err)
	}
	return WriteFileAtomic(path, Normalize(text), 0o644)
}
