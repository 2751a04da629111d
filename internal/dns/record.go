package dns

import (
	"fmt"
	"net/netip"
)

// Record is a DNS resource record with opaque RDATA.
//
// A forwarding cache never needs to interpret RDATA, so records are carried
// as (name, type, class, ttl, rdata). Names embedded inside RDATA (CNAME, NS,
// MX...) are decompressed on parse so the record can be re-encoded standalone.
type Record struct {
	Name  string
	Type  uint16
	Class uint16
	TTL   uint32
	Data  []byte
}

// fixedRRLen is TYPE + CLASS + TTL + RDLENGTH.
const fixedRRLen = 10

// ParseRecord parses a resource record at the cursor of b.
// The cursor is left unchanged on failure.
func ParseRecord(b *Buffer) (Record, error) {
	start := b.Pos()
	r, err := parseRecord(b)
	if err != nil {
		b.Seek(start)
		return Record{}, err
	}
	return r, nil
}

func parseRecord(b *Buffer) (Record, error) {
	name, err := DecodeName(b)
	if err != nil {
		return Record{}, err
	}
	if b.Remaining() < fixedRRLen {
		return Record{}, fmt.Errorf("%w: unexpected EOF while reading DNS record", ErrDNSError)
	}
	rrType, _ := b.NextU16()
	rrClass, _ := b.NextU16()
	ttl, _ := b.NextU32()
	rdlen, _ := b.NextU16()
	if b.Remaining() < int(rdlen) {
		return Record{}, fmt.Errorf("%w: unexpected EOF while reading DNS record rdata", ErrDNSError)
	}

	data, err := parseRData(RecordType(rrType), b, int(rdlen))
	if err != nil {
		return Record{}, err
	}
	return Record{Name: name, Type: rrType, Class: rrClass, TTL: ttl, Data: data}, nil
}

// rdataLayout describes RDATA that embeds domain names: a fixed-size prefix,
// then names, then an opaque tail (RFC 1035 3.3, RFC 2782, RFC 1183).
type rdataLayout struct {
	prefix int
	names  int
}

// soaTailLen is SERIAL, REFRESH, RETRY, EXPIRE and MINIMUM.
const soaTailLen = 20

var compressedRData = map[RecordType]rdataLayout{
	TypeNS:    {0, 1},
	TypeMD:    {0, 1},
	TypeMF:    {0, 1},
	TypeCNAME: {0, 1},
	TypeSOA:   {0, 2},
	TypeMB:    {0, 1},
	TypeMG:    {0, 1},
	TypeMR:    {0, 1},
	TypePTR:   {0, 1},
	TypeMINFO: {0, 2},
	TypeMX:    {2, 1},
	TypeRP:    {0, 2},
	TypeAFSDB: {2, 1},
	TypeRT:    {2, 1},
	TypePX:    {2, 2},
	TypeSRV:   {6, 1},
	TypeKX:    {2, 1},
	TypeDNAME: {0, 1},
}

// parseRData copies RDATA, expanding compression pointers in embedded names
// so the result no longer refers to offsets in the source message.
func parseRData(rt RecordType, b *Buffer, rdlen int) ([]byte, error) {
	layout, ok := compressedRData[rt]
	if !ok {
		return b.NextBytes(rdlen), nil
	}
	end := b.Pos() + rdlen
	if layout.prefix > rdlen {
		return nil, fmt.Errorf("%w: %s RDATA too short", ErrDNSError, rt)
	}
	out := make([]byte, 0, rdlen+16)
	out = append(out, b.NextBytes(layout.prefix)...)
	for range layout.names {
		name, err := DecodeName(b)
		if err != nil {
			return nil, err
		}
		if b.Pos() > end {
			return nil, fmt.Errorf("%w: %s RDATA length mismatch", ErrDNSError, rt)
		}
		enc, err := EncodeName(nameOrRoot(name))
		if err != nil {
			return nil, err
		}
		out = append(out, enc...)
	}
	tail := end - b.Pos()
	if rt == TypeSOA && tail != soaTailLen {
		return nil, fmt.Errorf("%w: SOA RDATA length mismatch", ErrDNSError)
	}
	return append(out, b.NextBytes(tail)...), nil
}

// Write encodes the record at the cursor of w. Nothing is written on failure.
func (r Record) Write(w Writer) error {
	if len(r.Data) > 0xFFFF {
		return fmt.Errorf("%w: rdata too large: %d bytes (max 65535)", ErrDNSError, len(r.Data))
	}
	start := w.Pos()
	nameWire := []byte{0}
	if RecordType(r.Type) != TypeOPT {
		enc, err := EncodeName(nameOrRoot(r.Name))
		if err != nil {
			return err
		}
		nameWire = enc
	}
	if w.Remaining() < len(nameWire)+fixedRRLen+len(r.Data) {
		return fmt.Errorf("%w: no room for DNS record %q", ErrDNSError, r.Name)
	}
	ok := w.WriteBytes(nameWire) &&
		w.WriteU16(r.Type) &&
		w.WriteU16(r.Class) &&
		w.WriteU32(r.TTL) &&
		w.WriteU16(uint16(len(r.Data))) &&
		w.WriteBytes(r.Data)
	if !ok {
		w.Seek(start)
		return fmt.Errorf("%w: short write for DNS record %q", ErrDNSError, r.Name)
	}
	return nil
}

// WireLen returns the uncompressed encoded size of the record.
func (r Record) WireLen() int {
	return nameWireLen(r.Name) + fixedRRLen + len(r.Data)
}

// Addr returns the address carried by an A or AAAA record.
func (r Record) Addr() (netip.Addr, bool) {
	switch RecordType(r.Type) {
	case TypeA, TypeAAAA:
		return netip.AddrFromSlice(r.Data)
	default:
		return netip.Addr{}, false
	}
}

// nameWireLen is the uncompressed encoded size of name; the root is one byte.
func nameWireLen(name string) int {
	if n := len(trimDot(name)); n > 0 {
		return n + 2
	}
	return 1
}

func nameOrRoot(name string) string {
	if name == "" {
		return "."
	}
	return name
}
