package dns

import (
	"fmt"
	"strings"
)

// Name limits from RFC 1035 Section 2.3.4.
const (
	maxLabelLen         = 63
	maxNameLen          = 255
	maxCompressionDepth = 20
)

// NormalizeName returns a lowercase DNS name without trailing dots.
// DNS names are case-insensitive (RFC 4343), so cache keys use this form.
func NormalizeName(name string) string {
	return strings.ToLower(trimDot(name))
}

// EncodeName encodes a domain name to uncompressed wire format.
//
// Example: "example.com" → [7]"example"[3]"com"[0]
//
// Labels are limited to 63 bytes and the encoded name to 255 bytes.
// Only ASCII names are accepted; IDN must be punycoded by the caller.
func EncodeName(domain string) ([]byte, error) {
	if domain == "" {
		return nil, fmt.Errorf("%w: domain_name must be non-empty", ErrDNSError)
	}
	domain = trimDot(domain)
	if domain == "" {
		return []byte{0}, nil // Root domain
	}

	out := make([]byte, 0, len(domain)+2)
	for label := range strings.SplitSeq(domain, ".") {
		if label == "" {
			return nil, fmt.Errorf("%w: invalid domain name (empty label): %q", ErrDNSError, domain)
		}
		if len(label) > maxLabelLen {
			return nil, fmt.Errorf("%w: DNS label too long (%d > %d): %q", ErrDNSError, len(label), maxLabelLen, label)
		}
		for i := range len(label) {
			if label[i] > 0x7F {
				return nil, fmt.Errorf("%w: domain_name must be ASCII", ErrDNSError)
			}
		}
		out = append(out, byte(len(label)))
		out = append(out, label...)
	}
	out = append(out, 0)

	if len(out) > maxNameLen {
		return nil, fmt.Errorf("%w: encoded domain name too long (%d > %d)", ErrDNSError, len(out), maxNameLen)
	}
	return out, nil
}

// WriteName encodes name at the cursor of w. Nothing is written on failure.
func WriteName(w Writer, name string) error {
	enc, err := EncodeName(name)
	if err != nil {
		return err
	}
	if !w.WriteBytes(enc) {
		return fmt.Errorf("%w: no room for name %q", ErrDNSError, name)
	}
	return nil
}

// DecodeName decodes a possibly-compressed name at the cursor of b.
//
// A compression pointer has the two high bits of the length byte set and
// carries a 14-bit offset from the start of the message (RFC 1035 4.1.4):
//
//	+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//	| 1  1|                OFFSET                   |
//	+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+--+
//
// On success the cursor sits just past the name as it appears in place (after
// the first pointer, if any). On failure the cursor is left where it started.
// The result is ASCII, dot-separated and has no trailing dot.
func DecodeName(b *Buffer) (string, error) {
	start := b.Pos()
	name, err := decodeName(b)
	if err != nil {
		b.Seek(start)
		return "", err
	}
	return name, nil
}

func decodeName(b *Buffer) (string, error) {
	labels := make([]string, 0, 6)
	resume := -1 // position after the first pointer
	visited := map[int]struct{}{}
	total := 0

	for depth := 0; ; {
		labelLen, ok := b.NextU8()
		if !ok {
			return "", fmt.Errorf("%w: unexpected EOF while decoding DNS name", ErrDNSError)
		}

		if labelLen == 0 {
			break
		}

		if isCompressionPointer(labelLen) {
			lo, ok := b.NextU8()
			if !ok {
				return "", fmt.Errorf("%w: unexpected EOF while decoding compression pointer", ErrDNSError)
			}
			depth++
			if depth > maxCompressionDepth {
				return "", fmt.Errorf("%w: too many DNS compression pointer indirections", ErrDNSError)
			}
			ptr := int(labelLen&0x3F)<<8 | int(lo)
			if _, seen := visited[ptr]; seen {
				return "", fmt.Errorf("%w: DNS compression pointer loop detected", ErrDNSError)
			}
			visited[ptr] = struct{}{}
			if resume < 0 {
				resume = b.Pos()
			}
			if ptr >= b.Len() || !b.Seek(ptr) {
				return "", fmt.Errorf("%w: DNS compression pointer out of bounds", ErrDNSError)
			}
			continue
		}

		// 01xxxxxx and 10xxxxxx are reserved label types.
		if labelLen&0xC0 != 0 {
			return "", fmt.Errorf("%w: invalid DNS label length (reserved high bits set)", ErrDNSError)
		}

		if b.Remaining() < int(labelLen) {
			return "", fmt.Errorf("%w: unexpected EOF while reading DNS label", ErrDNSError)
		}
		label := b.NextBytes(int(labelLen))
		for _, c := range label {
			if c > 0x7F {
				return "", fmt.Errorf("%w: decoded DNS name was not ASCII", ErrDNSError)
			}
		}
		total += len(label) + 1
		if total > maxNameLen {
			return "", fmt.Errorf("%w: decoded DNS name too long", ErrDNSError)
		}
		labels = append(labels, string(label))
	}

	if resume >= 0 {
		b.Seek(resume)
	}
	return strings.Join(labels, "."), nil
}

// isCompressionPointer reports whether a length byte is a pointer (11xxxxxx).
func isCompressionPointer(b byte) bool {
	return b&0xC0 == 0xC0
}

// trimDot removes all trailing dots from a string.
func trimDot(s string) string {
	for len(s) > 0 && s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	return s
}
