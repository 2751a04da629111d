package dns

import "fmt"

// Header represents a DNS message header (RFC 1035 Section 4.1.1).
//
// The header is always 12 bytes and contains:
//   - ID: 16-bit identifier for matching requests to responses
//   - Flags: 16-bit field containing QR, Opcode, AA, TC, RD, RA, Z, RCODE
//   - QDCount: Number of questions
//   - ANCount: Number of answer resource records
//   - NSCount: Number of authority resource records
//   - ARCount: Number of additional resource records
type Header struct {
	ID      uint16 // Transaction ID
	Flags   uint16 // See enums.go for flag definitions
	QDCount uint16 // Question count
	ANCount uint16 // Answer count
	NSCount uint16 // Authority (nameserver) count
	ARCount uint16 // Additional records count
}

// HeaderSize is the fixed size of a DNS header in bytes.
const HeaderSize = 12

// Marshal serializes the header to wire format (big-endian, 12 bytes).
func (h Header) Marshal() ([]byte, error) {
	b := NewWriteBuffer(HeaderSize)
	if err := h.Write(b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Write encodes the header at the cursor of w.
func (h Header) Write(w Writer) error {
	if w.Remaining() < HeaderSize {
		return fmt.Errorf("%w: no room for DNS header", ErrDNSError)
	}
	for _, v := range [...]uint16{h.ID, h.Flags, h.QDCount, h.ANCount, h.NSCount, h.ARCount} {
		w.WriteU16(v)
	}
	return nil
}

// ParseHeader parses a DNS header at the cursor of b.
// It advances the cursor by 12 bytes on success and leaves it unchanged otherwise.
func ParseHeader(b *Buffer) (Header, error) {
	if b.Remaining() < HeaderSize {
		return Header{}, fmt.Errorf("%w: unexpected EOF while reading DNS header", ErrDNSError)
	}
	var f [6]uint16
	for i := range f {
		f[i], _ = b.NextU16()
	}
	return Header{ID: f[0], Flags: f[1], QDCount: f[2], ANCount: f[3], NSCount: f[4], ARCount: f[5]}, nil
}

// RCode returns the response code carried in the flags.
func (h Header) RCode() RCode {
	return RCodeFromFlags(h.Flags)
}

// RecursionDesired returns true if the RD (Recursion Desired) flag is set.
func (h Header) RecursionDesired() bool {
	return h.Flags&RDFlag != 0
}

// RecursionAvailable returns true if the RA (Recursion Available) flag is set.
func (h Header) RecursionAvailable() bool {
	return h.Flags&RAFlag != 0
}

// Authoritative returns true if the AA (Authoritative Answer) flag is set.
func (h Header) Authoritative() bool {
	return h.Flags&AAFlag != 0
}

// Truncated returns true if the TC (Truncated) flag is set.
func (h Header) Truncated() bool {
	return h.Flags&TCFlag != 0
}

// IsQuery returns true if this is a query (QR=0), false if it's a response (QR=1).
func (h Header) IsQuery() bool {
	return h.Flags&QRFlag == 0
}

// IsResponse returns true if this is a response (QR=1), false if it's a query (QR=0).
func (h Header) IsResponse() bool {
	return h.Flags&QRFlag != 0
}
