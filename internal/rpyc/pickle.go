// Package rpyc reads compiled Ren'Py .rpyc/.rpymc files: a zlib-compressed
// pickle stream wrapped in a framed "RENPY RPC2" container. The unpickler
// never imports or executes the classes the stream references — every
// class lookup is routed through a restricted resolver that returns an
// inert, recording stand-in object instead.
package rpyc

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"

	"github.com/klauspost/compress/zlib"
)

// opcode is one byte of the pickle protocol 2-4 instruction set this reader
// understands. Anything outside this set is rejected rather than silently
// skipped, since an unrecognized opcode means the stack machine's state is
// no longer trustworthy.
type opcode byte

const (
	opMark           opcode = '('
	opStop           opcode = '.'
	opPop            opcode = '0'
	opPopMark        opcode = '1'
	opDup            opcode = '2'
	opNone           opcode = 'N'
	opReduce         opcode = 'R'
	opBuild          opcode = 'b'
	opGlobal         opcode = 'c'
	opDict           opcode = 'd'
	opEmptyDict      opcode = '}'
	opAppend         opcode = 'a'
	opAppends        opcode = 'e'
	opGet            opcode = 'g'
	opBinGet         opcode = 'h'
	opLongBinGet     opcode = 'j'
	opPut            opcode = 'p'
	opBinPut         opcode = 'q'
	opLongBinPut     opcode = 'r'
	opSetItem        opcode = 's'
	opSetItems       opcode = 'u'
	opEmptyList      opcode = ']'
	opList           opcode = 'l'
	opEmptyTuple     opcode = ')'
	opTuple          opcode = 't'
	opTuple1         opcode = '\x85'
	opTuple2         opcode = '\x86'
	opTuple3         opcode = '\x87'
	opNewTrue        opcode = '\x88'
	opNewFalse       opcode = '\x89'
	opLong1          opcode = '\x8a'
	opLong4          opcode = '\x8b'
	opBinInt         opcode = 'J'
	opBinInt1        opcode = 'K'
	opBinInt2        opcode = 'M'
	opBinFloat       opcode = 'G'
	opShortBinString opcode = 'U'
	opBinString      opcode = 'T'
	opBinUnicode     opcode = 'X'
	opShortBinUnicode opcode = '\x8c'
	opBinUnicode8    opcode = '\x8d'
	opBinBytes8      opcode = '\x8e'
	opShortBinBytes  opcode = 'C'
	opBinBytes       opcode = 'B'
	opProto          opcode = '\x80'
	opFrame          opcode = '\x95'
	opStackGlobal    opcode = '\x93'
	opNewObj         opcode = '\x81'
	opNewObjEx       opcode = '\x92'
	opEmptySet       opcode = '\x8f'
	opAdditems       opcode = '\x90'
	opMemoize        opcode = '\x94'
)

// markObj is a sentinel pushed for opMark and popped by mark-delimited ops.
type markObj struct{}

// FakeObject stands in for any class referenced by the pickle stream. It
// never runs the real class's code; it only records what it was constructed
// or built with, which is enough for the AST walker to harvest strings.
type FakeObject struct {
	Module string
	Name   string
	Args   []any
	State  any // set by BUILD (__setstate__ argument)
}

func (f *FakeObject) String() string {
	return fmt.Sprintf("<%s.%s>", f.Module, f.Name)
}

// ClassResolver decides what FakeObject a (module, name) pair resolves to.
// Every class lookup in the stream is routed through this; there is no
// fallback to a real import.
type ClassResolver interface {
	Resolve(module, name string) (module2, name2 string)
}

// Whitelist is a ClassResolver that passes through whitelisted (module,
// name) pairs unchanged and maps everything else to a generic opaque node
// so unrecognized classes still unpickle instead of aborting the read.
type Whitelist struct {
	Allowed map[string]map[string]bool
}

// NewWhitelist builds a Whitelist from a module -> []name map.
func NewWhitelist(classes map[string][]string) *Whitelist {
	w := &Whitelist{Allowed: make(map[string]map[string]bool, len(classes))}
	for mod, names := range classes {
		set := make(map[string]bool, len(names))
		for _, n := range names {
			set[n] = true
		}
		w.Allowed[mod] = set
	}
	return w
}

func (w *Whitelist) Resolve(module, name string) (string, string) {
	if names, ok := w.Allowed[module]; ok && names[name] {
		return module, name
	}
	return "__opaque__", "OpaqueNode"
}

// RenpyASTWhitelist is the set of (module, name) pairs the AST walker
// recognizes. Everything else becomes an opaque node.
func RenpyASTWhitelist() *Whitelist {
	return NewWhitelist(map[string][]string{
		"renpy.ast": {
			"Say", "Menu", "MenuItem", "Label", "Init", "Translate",
			"TranslateString", "TranslateBlock", "UserStatement", "PyCode",
			"ATLTransformBase", "Python", "Scene", "Show", "Hide", "Jump",
			"Call", "Return", "If", "While",
		},
		"renpy.python": {"PyExpr"},
		"renpy.sl2.slast": {
			"SLScreen", "SLDisplayable", "SLIf", "SLFor", "SLBlock", "SLUse",
		},
		"collections": {"OrderedDict", "deque"},
		"__builtin__": {"set", "frozenset"},
		"builtins":    {"set", "frozenset"},
	})
}

// Unpickler runs the restricted stack machine over a pickle byte stream.
type Unpickler struct {
	r        *bufio.Reader
	stack    []any
	memo     map[int]any
	resolver ClassResolver
}

// NewUnpickler wraps r with the given class resolver. A nil resolver uses
// RenpyASTWhitelist.
func NewUnpickler(r io.Reader, resolver ClassResolver) *Unpickler {
	if resolver == nil {
		resolver = RenpyASTWhitelist()
	}
	return &Unpickler{r: bufio.NewReader(r), memo: make(map[int]any), resolver: resolver}
}

// ErrUnsupportedOpcode is returned when the stream uses an opcode this
// restricted reader does not implement.
var ErrUnsupportedOpcode = errors.New("rpyc: unsupported pickle opcode")

// Load runs the machine to completion and returns the final stack top.
func (u *Unpickler) Load() (any, error) {
	for {
		b, err := u.r.ReadByte()
		if err != nil {
			return nil, err
		}
		op := opcode(b)
		if op == opStop {
			break
		}
		if err := u.step(op); err != nil {
			return nil, err
		}
	}
	if len(u.stack) == 0 {
		return nil, errors.New("rpyc: empty stack at STOP")
	}
	return u.stack[len(u.stack)-1], nil
}

func (u *Unpickler) push(v any) { u.stack = append(u.stack, v) }

func (u *Unpickler) pop() (any, error) {
	if len(u.stack) == 0 {
		return nil, errors.New("rpyc: pop on empty stack")
	}
	v := u.stack[len(u.stack)-1]
	u.stack = u.stack[:len(u.stack)-1]
	return v, nil
}

func (u *Unpickler) popToMark() ([]any, error) {
	var items []any
	for {
		if len(u.stack) == 0 {
			return nil, errors.New("rpyc: mark not found")
		}
		v := u.stack[len(u.stack)-1]
		u.stack = u.stack[:len(u.stack)-1]
		if _, ok := v.(markObj); ok {
			reverse(items)
			return items, nil
		}
		items = append(items, v)
	}
}

func reverse(s []any) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func (u *Unpickler) readLine() (string, error) {
	line, err := u.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return string(bytes.TrimRight([]byte(line), "\r\n")), nil
}

func (u *Unpickler) step(op opcode) error {
	switch op {
	case opProto:
		_, err := u.r.ReadByte()
		return err
	case opFrame:
		buf := make([]byte, 8)
		_, err := io.ReadFull(u.r, buf)
		return err
	case opMemoize:
		if len(u.stack) == 0 {
			return errors.New("rpyc: memoize on empty stack")
		}
		u.memo[len(u.memo)] = u.stack[len(u.stack)-1]
		return nil
	case opMark:
		u.push(markObj{})
		return nil
	case opNone:
		u.push(nil)
		return nil
	case opNewTrue:
		u.push(true)
		return nil
	case opNewFalse:
		u.push(false)
		return nil
	case opPop:
		_, err := u.pop()
		return err
	case opPopMark:
		_, err := u.popToMark()
		return err
	case opDup:
		if len(u.stack) == 0 {
			return errors.New("rpyc: dup on empty stack")
		}
		u.push(u.stack[len(u.stack)-1])
		return nil
	case opBinInt1:
		b, err := u.r.ReadByte()
		if err != nil {
			return err
		}
		u.push(int64(b))
		return nil
	case opBinInt2:
		buf := make([]byte, 2)
		if _, err := io.ReadFull(u.r, buf); err != nil {
			return err
		}
		u.push(int64(binary.LittleEndian.Uint16(buf)))
		return nil
	case opBinInt:
		buf := make([]byte, 4)
		if _, err := io.ReadFull(u.r, buf); err != nil {
			return err
		}
		u.push(int64(int32(binary.LittleEndian.Uint32(buf))))
		return nil
	case opLong1:
		n, err := u.r.ReadByte()
		if err != nil {
			return err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(u.r, buf); err != nil {
			return err
		}
		u.push(decodeLong(buf))
		return nil
	case opLong4:
		lenBuf := make([]byte, 4)
		if _, err := io.ReadFull(u.r, lenBuf); err != nil {
			return err
		}
		n := binary.LittleEndian.Uint32(lenBuf)
		buf := make([]byte, n)
		if _, err := io.ReadFull(u.r, buf); err != nil {
			return err
		}
		u.push(decodeLong(buf))
		return nil
	case opBinFloat:
		buf := make([]byte, 8)
		if _, err := io.ReadFull(u.r, buf); err != nil {
			return err
		}
		bits := binary.BigEndian.Uint64(buf)
		u.push(math.Float64frombits(bits))
		return nil
	case opShortBinString:
		n, err := u.r.ReadByte()
		if err != nil {
			return err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(u.r, buf); err != nil {
			return err
		}
		u.push(string(buf))
		return nil
	case opBinString, opBinBytes:
		lenBuf := make([]byte, 4)
		if _, err := io.ReadFull(u.r, lenBuf); err != nil {
			return err
		}
		n := binary.LittleEndian.Uint32(lenBuf)
		buf := make([]byte, n)
		if _, err := io.ReadFull(u.r, buf); err != nil {
			return err
		}
		u.push(string(buf))
		return nil
	case opShortBinBytes:
		n, err := u.r.ReadByte()
		if err != nil {
			return err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(u.r, buf); err != nil {
			return err
		}
		u.push(string(buf))
		return nil
	case opShortBinUnicode:
		n, err := u.r.ReadByte()
		if err != nil {
			return err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(u.r, buf); err != nil {
			return err
		}
		u.push(string(buf))
		return nil
	case opBinUnicode:
		lenBuf := make([]byte, 4)
		if _, err := io.ReadFull(u.r, lenBuf); err != nil {
			return err
		}
		n := binary.LittleEndian.Uint32(lenBuf)
		buf := make([]byte, n)
		if _, err := io.ReadFull(u.r, buf); err != nil {
			return err
		}
		u.push(string(buf))
		return nil
	case opBinUnicode8, opBinBytes8:
		lenBuf := make([]byte, 8)
		if _, err := io.ReadFull(u.r, lenBuf); err != nil {
			return err
		}
		n := binary.LittleEndian.Uint64(lenBuf)
		buf := make([]byte, n)
		if _, err := io.ReadFull(u.r, buf); err != nil {
			return err
		}
		u.push(string(buf))
		return nil
	case opEmptyDict:
		u.push(map[any]any{})
		return nil
	case opEmptyList:
		u.push([]any{})
		return nil
	case opEmptyTuple:
		u.push([]any{})
		return nil
	case opEmptySet:
		u.push([]any{})
		return nil
	case opList:
		items, err := u.popToMark()
		if err != nil {
			return err
		}
		u.push(items)
		return nil
	case opTuple:
		items, err := u.popToMark()
		if err != nil {
			return err
		}
		u.push(items)
		return nil
	case opTuple1:
		a, err := u.pop()
		if err != nil {
			return err
		}
		u.push([]any{a})
		return nil
	case opTuple2:
		b, err := u.pop()
		if err != nil {
			return err
		}
		a, err := u.pop()
		if err != nil {
			return err
		}
		u.push([]any{a, b})
		return nil
	case opTuple3:
		c, err := u.pop()
		if err != nil {
			return err
		}
		b, err := u.pop()
		if err != nil {
			return err
		}
		a, err := u.pop()
		if err != nil {
			return err
		}
		u.push([]any{a, b, c})
		return nil
	case opDict:
		items, err := u.popToMark()
		if err != nil {
			return err
		}
		m := make(map[any]any, len(items)/2)
		for i := 0; i+1 < len(items); i += 2 {
			m[items[i]] = items[i+1]
		}
		u.push(m)
		return nil
	case opAppend:
		v, err := u.pop()
		if err != nil {
			return err
		}
		return u.appendTop(v)
	case opAppends:
		items, err := u.popToMark()
		if err != nil {
			return err
		}
		for _, v := range items {
			if err := u.appendTop(v); err != nil {
				return err
			}
		}
		return nil
	case opAdditems:
		items, err := u.popToMark()
		if err != nil {
			return err
		}
		for _, v := range items {
			if err := u.appendTop(v); err != nil {
				return err
			}
		}
		return nil
	case opSetItem:
		v, err := u.pop()
		if err != nil {
			return err
		}
		k, err := u.pop()
		if err != nil {
			return err
		}
		return u.setItemTop(k, v)
	case opSetItems:
		items, err := u.popToMark()
		if err != nil {
			return err
		}
		for i := 0; i+1 < len(items); i += 2 {
			if err := u.setItemTop(items[i], items[i+1]); err != nil {
				return err
			}
		}
		return nil
	case opGet:
		line, err := u.readLine()
		if err != nil {
			return err
		}
		idx, err := parseIndex(line)
		if err != nil {
			return err
		}
		v, ok := u.memo[idx]
		if !ok {
			return fmt.Errorf("rpyc: GET references unknown memo slot %d", idx)
		}
		u.push(v)
		return nil
	case opBinGet:
		b, err := u.r.ReadByte()
		if err != nil {
			return err
		}
		v, ok := u.memo[int(b)]
		if !ok {
			return fmt.Errorf("rpyc: BINGET references unknown memo slot %d", b)
		}
		u.push(v)
		return nil
	case opLongBinGet:
		buf := make([]byte, 4)
		if _, err := io.ReadFull(u.r, buf); err != nil {
			return err
		}
		idx := int(binary.LittleEndian.Uint32(buf))
		v, ok := u.memo[idx]
		if !ok {
			return fmt.Errorf("rpyc: LONG_BINGET references unknown memo slot %d", idx)
		}
		u.push(v)
		return nil
	case opPut:
		line, err := u.readLine()
		if err != nil {
			return err
		}
		idx, err := parseIndex(line)
		if err != nil {
			return err
		}
		if len(u.stack) == 0 {
			return errors.New("rpyc: PUT on empty stack")
		}
		u.memo[idx] = u.stack[len(u.stack)-1]
		return nil
	case opBinPut:
		b, err := u.r.ReadByte()
		if err != nil {
			return err
		}
		if len(u.stack) == 0 {
			return errors.New("rpyc: BINPUT on empty stack")
		}
		u.memo[int(b)] = u.stack[len(u.stack)-1]
		return nil
	case opLongBinPut:
		buf := make([]byte, 4)
		if _, err := io.ReadFull(u.r, buf); err != nil {
			return err
		}
		idx := int(binary.LittleEndian.Uint32(buf))
		if len(u.stack) == 0 {
			return errors.New("rpyc: LONG_BINPUT on empty stack")
		}
		u.memo[idx] = u.stack[len(u.stack)-1]
		return nil
	case opGlobal:
		module, err := u.readLine()
		if err != nil {
			return err
		}
		name, err := u.readLine()
		if err != nil {
			return err
		}
		rmod, rname := u.resolver.Resolve(module, name)
		u.push(&FakeObject{Module: rmod, Name: rname})
		return nil
	case opStackGlobal:
		name, err := u.pop()
		if err != nil {
			return err
		}
		module, err := u.pop()
		if err != nil {
			return err
		}
		ms, _ := module.(string)
		ns, _ := name.(string)
		rmod, rname := u.resolver.Resolve(ms, ns)
		u.push(&FakeObject{Module: rmod, Name: rname})
		return nil
	case opReduce:
		args, err := u.pop()
		if err != nil {
			return err
		}
		class, err := u.pop()
		if err != nil {
			return err
		}
		fo, ok := class.(*FakeObject)
		if !ok {
			fo = &FakeObject{Module: "__opaque__", Name: "OpaqueNode"}
		}
		if argList, ok := args.([]any); ok {
			fo.Args = argList
		}
		u.push(fo)
		return nil
	case opNewObj:
		args, err := u.pop()
		if err != nil {
			return err
		}
		class, err := u.pop()
		if err != nil {
			return err
		}
		fo, ok := class.(*FakeObject)
		if !ok {
			fo = &FakeObject{Module: "__opaque__", Name: "OpaqueNode"}
		}
		if argList, ok := args.([]any); ok {
			fo.Args = argList
		}
		u.push(fo)
		return nil
	case opNewObjEx:
		_, err := u.pop() // kwargs
		if err != nil {
			return err
		}
		args, err := u.pop()
		if err != nil {
			return err
		}
		class, err := u.pop()
		if err != nil {
			return err
		}
		fo, ok := class.(*FakeObject)
		if !ok {
			fo = &FakeObject{Module: "__opaque__", Name: "OpaqueNode"}
		}
		if argList, ok := args.([]any); ok {
			fo.Args = argList
		}
		u.push(fo)
		return nil
	case opBuild:
		state, err := u.pop()
		if err != nil {
			return err
		}
		if len(u.stack) == 0 {
			return errors.New("rpyc: BUILD on empty stack")
		}
		if fo, ok := u.stack[len(u.stack)-1].(*FakeObject); ok {
			fo.State = state
		}
		return nil
	default:
		return fmt.Errorf("%w: 0x%02x", ErrUnsupportedOpcode, byte(op))
	}
}

func (u *Unpickler) appendTop(v any) error {
	if len(u.stack) == 0 {
		return errors.New("rpyc: append on empty stack")
	}
	top := u.stack[len(u.stack)-1]
	lst, ok := top.([]any)
	if !ok {
		return errors.New("rpyc: append target is not a list")
	}
	u.stack[len(u.stack)-1] = append(lst, v)
	return nil
}

func (u *Unpickler) setItemTop(k, v any) error {
	if len(u.stack) == 0 {
		return errors.New("rpyc: setitem on empty stack")
	}
	top := u.stack[len(u.stack)-1]
	m, ok := top.(map[any]any)
	if !ok {
		return errors.New("rpyc: setitem target is not a dict")
	}
	m[k] = v
	return nil
}

func decodeLong(buf []byte) int64 {
	if len(buf) == 0 {
		return 0
	}
	le := make([]byte, len(buf))
	for i, b := range buf {
		le[len(buf)-1-i] = b
	}
	bi := new(big.Int).SetBytes(le)
	if len(buf) > 0 && buf[len(buf)-1]&0x80 != 0 {
		full := new(big.Int).Lsh(big.NewInt(1), uint(len(buf)*8))
		bi.Sub(bi, full)
	}
	return bi.Int64()
}

func parseIndex(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

// OpenContainer decompresses the zlib payload inside a RENPY RPC2 framed
// .rpyc/.rpymc file and returns a reader positioned at the start of the
// pickle stream.
const containerMagic = "RENPY RPC2"

func OpenContainer(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	magic := make([]byte, len(containerMagic))
	n, err := io.ReadFull(br, magic)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	if n == len(containerMagic) && string(magic) == containerMagic {
		return decompress(br)
	}
	// Not a framed container; assume the whole stream is zlib-compressed
	// pickle data starting right at the beginning (older RPYC variants).
	combined := io.MultiReader(bytes.NewReader(magic[:n]), br)
	return decompress(combined)
}

func decompress(r io.Reader) (io.Reader, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("rpyc: zlib: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, zr); err != nil {
		return nil, fmt.Errorf("rpyc: zlib decompress: %w", err)
	}
	_ = zr.Close()
	return &buf, nil
}
