package rpa

import (
	"bytes"
	"encoding/binary"
)

// pickleWriter emits a small, self-consistent subset of the pickle protocol
// 2 opcode set — just enough to encode the RPA index structure (a dict of
// string -> list of (int, int, bytes) tuples) in a form internal/rpyc's
// restricted Unpickler can read back byte-for-byte.
type pickleWriter struct {
	buf bytes.Buffer
}

func newPickleWriter() *pickleWriter {
	w := &pickleWriter{}
	w.buf.WriteByte(0x80) // PROTO
	w.buf.WriteByte(2)
	return w
}

func (w *pickleWriter) bytesOut() []byte { return w.buf.Bytes() }

func (w *pickleWriter) mark()      { w.buf.WriteByte('(') }
func (w *pickleWriter) emptyDict() { w.buf.WriteByte('}') }
func (w *pickleWriter) setItems()  { w.buf.WriteByte('u') }
func (w *pickleWriter) appends()   { w.buf.WriteByte('e') }
func (w *pickleWriter) append1()   { w.buf.WriteByte('a') }
func (w *pickleWriter) emptyList() { w.buf.WriteByte(']') }
func (w *pickleWriter) tuple()     { w.buf.WriteByte('t') }
func (w *pickleWriter) stop()      { w.buf.WriteByte('.') }

func (w *pickleWriter) str(s string) {
	if len(s) < 256 {
		w.buf.WriteByte(0x8c) // SHORT_BINUNICODE
		w.buf.WriteByte(byte(len(s)))
		w.buf.WriteString(s)
		return
	}
	w.buf.WriteByte('X') // BINUNICODE
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(s)))
	w.buf.Write(lenBuf)
	w.buf.WriteString(s)
}

func (w *pickleWriter) int64(v int64) {
	if v >= 0 && v <= 0xff {
		w.buf.WriteByte('K') // BININT1
		w.buf.WriteByte(byte(v))
		return
	}
	if v >= 0 && v <= 0xffff {
		w.buf.WriteByte('M') // BININT2
		lenBuf := make([]byte, 2)
		binary.LittleEndian.PutUint16(lenBuf, uint16(v))
		w.buf.Write(lenBuf)
		return
	}
	w.buf.WriteByte('J') // BININT (signed 32-bit)
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(int32(v)))
	w.buf.Write(lenBuf)
}

// writeIndex encodes the RPA index {path: [(xorOffset, xorLength, prefix)]}
// as a pickled dict of lists of 3-tuples, readable back by
// internal/rpyc.Unpickler.
func writeIndex(index map[string][]indexEntry) []byte {
	w := newPickleWriter()
	w.emptyDict()
	w.mark()
	for path, entries := range index {
		w.str(path)
		w.emptyList()
		if len(entries) == 1 {
			w.writeTuple(entries[0])
			w.append1()
		} else {
			w.mark()
			for _, e := range entries {
				w.writeTuple(e)
			}
			w.appends()
		}
	}
	w.setItems()
	w.stop()
	return w.bytesOut()
}

func (w *pickleWriter) writeTuple(e indexEntry) {
	w.mark()
	w.int64(e.XOROffset)
	w.int64(e.XORLength)
	w.str(string(e.Prefix))
	w.tuple()
}
