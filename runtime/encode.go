package runtime

import (
	"bytes"
	"encoding/binary"

	"github.com/tetratelabs/wazero/api"
)

// Core module binary constants used by the proxy encoder.
const (
	wasmMagic   uint32 = 0x6D736100
	wasmVersion uint32 = 0x01

	sectionType     byte = 1
	sectionImport   byte = 2
	sectionFunction byte = 3
	sectionMemory   byte = 5
	sectionExport   byte = 7
	sectionCode     byte = 10

	kindFunc   byte = 0
	kindMemory byte = 2

	funcTypeByte byte = 0x60

	opLocalGet byte = 0x20
	opCall     byte = 0x10
	opEnd      byte = 0x0B
)

// writer buffers a module binary.
type writer struct {
	buf bytes.Buffer
}

func (w *writer) Byte(b byte)            { w.buf.WriteByte(b) }
func (w *writer) WriteBytes(data []byte) { w.buf.Write(data) }
func (w *writer) Bytes() []byte          { return w.buf.Bytes() }

// WriteU32 writes an unsigned LEB128 encoded uint32.
func (w *writer) WriteU32(v uint32) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		w.buf.WriteByte(b)
		if v == 0 {
			break
		}
	}
}

func (w *writer) WriteU32LE(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) WriteName(s string) {
	w.WriteU32(uint32(len(s)))
	w.buf.WriteString(s)
}

func writeSection(w *writer, id byte, sec *writer) {
	w.Byte(id)
	w.WriteU32(uint32(sec.buf.Len()))
	w.WriteBytes(sec.Bytes())
}

func writeValTypes(w *writer, types []api.ValueType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.Byte(t)
	}
}

// proxyImport is one host function re-exported by a proxy module.
type proxyImport struct {
	module  string
	name    string
	params  []api.ValueType
	results []api.ValueType
}

// exportName is the name a proxy module exports an import under.
func exportName(module, name string) string {
	return module + "#" + name
}

// encodeProxy builds a core module that imports every fn and exports a
// forwarding function for each, plus one page of memory named "memory".
func encodeProxy(fns []proxyImport) []byte {
	n := uint32(len(fns))
	w := &writer{}
	w.WriteU32LE(wasmMagic)
	w.WriteU32LE(wasmVersion)

	sec := &writer{}
	sec.WriteU32(n)
	for _, fn := range fns {
		sec.Byte(funcTypeByte)
		writeValTypes(sec, fn.params)
		writeValTypes(sec, fn.results)
	}
	writeSection(w, sectionType, sec)

	sec = &writer{}
	sec.WriteU32(n)
	for i, fn := range fns {
		sec.WriteName(fn.module)
		sec.WriteName(fn.name)
		sec.Byte(kindFunc)
		sec.WriteU32(uint32(i))
	}
	writeSection(w, sectionImport, sec)

	sec = &writer{}
	sec.WriteU32(n)
	for i := range fns {
		sec.WriteU32(uint32(i))
	}
	writeSection(w, sectionFunction, sec)

	sec = &writer{}
	sec.WriteU32(1)
	sec.Byte(0x00) // min only
	sec.WriteU32(1)
	writeSection(w, sectionMemory, sec)

	sec = &writer{}
	sec.WriteU32(n + 1)
	sec.WriteName("memory")
	sec.Byte(kindMemory)
	sec.WriteU32(0)
	for i, fn := range fns {
		sec.WriteName(exportName(fn.module, fn.name))
		sec.Byte(kindFunc)
		sec.WriteU32(n + uint32(i))
	}
	writeSection(w, sectionExport, sec)

	sec = &writer{}
	sec.WriteU32(n)
	for i, fn := range fns {
		body := &writer{}
		body.WriteU32(0) // no locals
		for p := range fn.params {
			body.Byte(opLocalGet)
			body.WriteU32(uint32(p))
		}
		body.Byte(opCall)
		body.WriteU32(uint32(i))
		body.Byte(opEnd)

		sec.WriteU32(uint32(body.buf.Len()))
		sec.WriteBytes(body.Bytes())
	}
	writeSection(w, sectionCode, sec)

	return w.Bytes()
}
