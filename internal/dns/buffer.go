package dns

import "encoding/binary"

// Cursor is the minimal positioning capability of a wire buffer.
type Cursor interface {
	// Pos returns the current cursor position.
	Pos() int

	// Seek moves the cursor to p. It fails, leaving the cursor unchanged,
	// when p is outside [0, Len()].
	Seek(p int) bool

	// Advance moves the cursor forward by n bytes (Seek(Pos()+n)).
	Advance(n int) bool

	// Reset moves the cursor back to the start of the buffer.
	Reset()
}

// Reader decodes big-endian values at the cursor.
//
// Multi-byte reads are all-or-nothing: when fewer bytes remain than the value
// needs, they report false and do not move the cursor, so callers can fall
// back to smaller reads.
type Reader interface {
	Cursor

	Len() int
	Remaining() int
	PeekU8() (byte, bool)
	NextU8() (byte, bool)
	NextU16() (uint16, bool)
	NextU32() (uint32, bool)

	// NextBytes consumes up to n bytes. It stops early when the buffer runs
	// out, so the result may be shorter than n.
	NextBytes(n int) []byte
}

// Writer encodes big-endian values at the cursor.
//
// Writes are validated against the remaining capacity before any byte is
// touched; a failed write leaves both the contents and the cursor unchanged.
type Writer interface {
	Reader

	WriteU8(b byte) bool
	WriteU16(v uint16) bool
	WriteU32(v uint32) bool
	WriteBytes(p []byte) bool
}

// Buffer is a position-tracked cursor over a fixed-length byte slice.
// The invariant 0 <= pos <= len(buf) holds after every operation.
//
// Buffer never grows: writing past the end fails instead of reallocating,
// which keeps decode and encode paths over untrusted data free of panics.
type Buffer struct {
	buf []byte
	pos int
}

var _ Writer = (*Buffer)(nil)

// NewBuffer returns a Buffer over b positioned at 0. The slice is used in
// place, so writes are visible to the caller.
func NewBuffer(b []byte) *Buffer {
	return &Buffer{buf: b}
}

// NewWriteBuffer returns a zeroed Buffer with room for exactly n bytes.
func NewWriteBuffer(n int) *Buffer {
	if n < 0 {
		n = 0
	}
	return &Buffer{buf: make([]byte, n)}
}

// Pos returns the cursor position.
func (b *Buffer) Pos() int { return b.pos }

// Seek moves the cursor to p if 0 <= p <= Len().
func (b *Buffer) Seek(p int) bool {
	if p < 0 || p > len(b.buf) {
		return false
	}
	b.pos = p
	return true
}

// Advance moves the cursor forward by n bytes.
func (b *Buffer) Advance(n int) bool {
	return b.Seek(b.pos + n)
}

// Reset moves the cursor to the start.
func (b *Buffer) Reset() {
	b.Seek(0)
}

// Len returns the total buffer length.
func (b *Buffer) Len() int { return len(b.buf) }

// Remaining returns the number of bytes between the cursor and the end.
func (b *Buffer) Remaining() int { return len(b.buf) - b.pos }

// Bytes returns the whole underlying slice.
func (b *Buffer) Bytes() []byte { return b.buf }

// Written returns the bytes before the cursor, i.e. what an encoder produced.
func (b *Buffer) Written() []byte { return b.buf[:b.pos] }

// PeekU8 returns the byte at the cursor without consuming it.
func (b *Buffer) PeekU8() (byte, bool) {
	if b.pos >= len(b.buf) {
		return 0, false
	}
	return b.buf[b.pos], true
}

// NextU8 consumes one byte.
func (b *Buffer) NextU8() (byte, bool) {
	v, ok := b.PeekU8()
	if !ok {
		return 0, false
	}
	b.pos++
	return v, true
}

// NextU16 consumes a big-endian uint16 if two bytes remain.
func (b *Buffer) NextU16() (uint16, bool) {
	if b.Remaining() < 2 {
		return 0, false
	}
	v := binary.BigEndian.Uint16(b.buf[b.pos:])
	b.pos += 2
	return v, true
}

// NextU32 consumes a big-endian uint32 if four bytes remain.
func (b *Buffer) NextU32() (uint32, bool) {
	if b.Remaining() < 4 {
		return 0, false
	}
	v := binary.BigEndian.Uint32(b.buf[b.pos:])
	b.pos += 4
	return v, true
}

// NextBytes consumes up to n bytes and returns a copy of them.
func (b *Buffer) NextBytes(n int) []byte {
	if n <= 0 {
		return []byte{}
	}
	n = min(n, b.Remaining())
	out := make([]byte, n)
	copy(out, b.buf[b.pos:b.pos+n])
	b.pos += n
	return out
}

// WriteU8 writes one byte at the cursor.
func (b *Buffer) WriteU8(v byte) bool {
	if b.pos >= len(b.buf) {
		return false
	}
	b.buf[b.pos] = v
	b.pos++
	return true
}

// WriteU16 writes v big-endian if two bytes of room remain.
func (b *Buffer) WriteU16(v uint16) bool {
	if b.Remaining() < 2 {
		return false
	}
	binary.BigEndian.PutUint16(b.buf[b.pos:], v)
	b.pos += 2
	return true
}

// WriteU32 writes v big-endian if four bytes of room remain.
func (b *Buffer) WriteU32(v uint32) bool {
	if b.Remaining() < 4 {
		return false
	}
	binary.BigEndian.PutUint32(b.buf[b.pos:], v)
	b.pos += 4
	return true
}

// WriteBytes writes p if the whole slice fits.
func (b *Buffer) WriteBytes(p []byte) bool {
	if b.Remaining() < len(p) {
		return false
	}
	for _, v := range p {
		// capacity was checked above
		b.WriteU8(v)
	}
	return true
}
