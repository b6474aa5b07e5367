// Package rpa reads and writes Ren'Py's RPA-3.0 archive format: an ASCII
// header line, a run of raw file payloads, and an XOR-obfuscated,
// zlib-compressed pickled index mapping archive path to payload location.
package rpa

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"

	"github.com/renlocalizer/renlocalizer/internal/rpyc"
)

const headerMagic = "RPA-3.0"

// Guard limits reject implausible or hostile archives before they are
// fully materialized in memory.
const (
	MaxIndexEntries  = 200_000
	MaxArchiveSize   = 8 << 30 // 8 GiB
	MaxEntryListSize = 16
)

// indexEntry is one (xor_offset, xor_length, prefix) tuple for a path; RPA
// allows more than one when a file's payload is split, though Ren'Py itself
// only ever writes one.
type indexEntry struct {
	XOROffset int64
	XORLength int64
	Prefix    []byte
}

// Entry is one archive member as seen by callers of Read/Write.
type Entry struct {
	ArchivePath string
	Data        []byte
}

// ErrGuardExceeded is returned when an archive exceeds the size/count
// guards meant to reject hostile or corrupt input.
var ErrGuardExceeded = errors.New("rpa: archive exceeds safety guard")

// Read opens path and returns every member's archive path and raw bytes.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() > MaxArchiveSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrGuardExceeded, info.Size())
	}

	headerLine, err := readHeaderLine(f)
	if err != nil {
		return nil, err
	}
	offset, key, err := parseHeader(headerLine)
	if err != nil {
		return nil, err
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	zr, err := zlib.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("rpa: index zlib: %w", err)
	}
	var indexBuf bytes.Buffer
	if _, err := io.Copy(&indexBuf, zr); err != nil {
		return nil, fmt.Errorf("rpa: index decompress: %w", err)
	}
	_ = zr.Close()

	index, err := decodeIndex(indexBuf.Bytes())
	if err != nil {
		return nil, err
	}
	if len(index) > MaxIndexEntries {
		return nil, fmt.Errorf("%w: %d entries", ErrGuardExceeded, len(index))
	}

	entries := make([]Entry, 0, len(index))
	for path, tuples := range index {
		if len(tuples) == 0 || len(tuples) > MaxEntryListSize {
			return nil, fmt.Errorf("%w: %q has %d index tuples", ErrGuardExceeded, path, len(tuples))
		}
		t := tuples[0]
		realOffset := t.XOROffset ^ key
		realLength := t.XORLength ^ key
		if realOffset < 0 || realLength < 0 || realOffset+realLength > info.Size() {
			return nil, fmt.Errorf("rpa: %q: out-of-bounds payload", path)
		}
		payload := make([]byte, realLength)
		if _, err := f.ReadAt(payload, realOffset); err != nil && err != io.EOF {
			return nil, fmt.Errorf("rpa: reading %q: %w", path, err)
		}
		data := append(append([]byte(nil), t.Prefix...), payload...)
		entries = append(entries, Entry{ArchivePath: path, Data: data})
	}
	return entries, nil
}

func readHeaderLine(r io.Reader) (string, error) {
	var buf bytes.Buffer
	b := make([]byte, 1)
	for {
		n, err := r.Read(b)
		if n == 0 || err != nil {
			if err != nil {
				return "", err
			}
			break
		}
		if b[0] == '\n' {
			break
		}
		buf.WriteByte(b[0])
	}
	return buf.String(), nil
}

func parseHeader(line string) (offset int64, key int64, err error) {
	fields := strings.Fields(line)
	if len(fields) < 3 || fields[0] != headerMagic {
		return 0, 0, fmt.Errorf("rpa: unrecognized header %q", line)
	}
	offset, err = strconv.ParseInt(fields[1], 16, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("rpa: bad offset field: %w", err)
	}
	key, err = strconv.ParseInt(fields[2], 16, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("rpa: bad key field: %w", err)
	}
	return offset, key, nil
}

func decodeIndex(raw []byte) (map[string][]indexEntry, error) {
	root, err := rpyc.NewUnpickler(bytes.NewReader(raw), passthroughResolver{}).Load()
	if err != nil {
		return nil, fmt.Errorf("rpa: index unpickle: %w", err)
	}
	m, ok := root.(map[any]any)
	if !ok {
		return nil, errors.New("rpa: index root is not a dict")
	}
	index := make(map[string][]indexEntry, len(m))
	for k, v := range m {
		path, ok := k.(string)
		if !ok {
			continue
		}
		list, ok := v.([]any)
		if !ok {
			continue
		}
		var tuples []indexEntry
		for _, item := range list {
			tup, ok := item.([]any)
			if !ok || len(tup) != 3 {
				continue
			}
			offset, _ := toInt64(tup[0])
			length, _ := toInt64(tup[1])
			prefix, _ := tup[2].(string)
			tuples = append(tuples, indexEntry{XOROffset: offset, XORLength: length, Prefix: []byte(prefix)})
		}
		index[path] = tuples
	}
	return index, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

// passthroughResolver is used for the RPA index, which never contains
// arbitrary application classes — only built-in dict/list/tuple/str/int
// values — so every GLOBAL reference it might still carry is routed to the
// same opaque stand-in as everywhere else.
type passthroughResolver struct{}

func (passthroughResolver) Resolve(_, _ string) (string, string) { return "__opaque__", "OpaqueNode" }

// Write packs entries into an RPA-3.0 archive at path. The key is generated
// with a cryptographic RNG, per spec.md §4.6.
func Write(path string, entries []Entry) error {
	key, err := randomKey()
	if err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	placeholder := headerLine(0, key)
	if _, err := f.WriteString(placeholder); err != nil {
		return err
	}

	index := make(map[string][]indexEntry, len(entries))
	var cursor int64 = int64(len(placeholder))
	for _, e := range entries {
		n, err := f.Write(e.Data)
		if err != nil {
			return err
		}
		index[e.ArchivePath] = []indexEntry{{
			XOROffset: cursor ^ key,
			XORLength: int64(n) ^ key,
			Prefix:    nil,
		}}
		cursor += int64(n)
	}

	indexOffset := cursor
	pickled := writeIndex(index)
	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(pickled); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	if _, err := f.Write(compressed.Bytes()); err != nil {
		return err
	}

	if err := f.Close(); err != nil {
		return err
	}

	// Rewind and rewrite the header now that the real offset is known.
	f, err = os.OpenFile(tmpPath, os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	finalHeader := headerLine(indexOffset, key)
	if len(finalHeader) != len(placeholder) {
		_ = f.Close()
		return errors.New("rpa: header length changed between passes")
	}
	if _, err := f.WriteAt([]byte(finalHeader), 0); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, path)
}

func headerLine(offset, key int64) string {
	return fmt.Sprintf("%s %016x %08x\n", headerMagic, offset, key)
}

func randomKey() (int64, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint32(buf[:])), nil
}
