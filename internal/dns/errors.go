// Package dns implements the subset of the DNS wire protocol (RFC 1035)
// that a caching forwarder needs.
//
// Everything is built on Buffer, a bounds-checked big-endian cursor. Buffer
// reports failure as a value (false or a short slice) and never panics or
// writes past the end, so decoding hostile datagrams is safe. The codec on
// top of it turns those failures into errors wrapping ErrDNSError.
//
// Records are kept opaque: name, type, class, TTL and raw RDATA. There is no
// record-type catalog, no EDNS option handling and no DNSSEC validation.
package dns

import "errors"

// ErrDNSError is the sentinel for malformed or truncated wire data.
// Wrap it with fmt.Errorf("context: %w", ErrDNSError) to add context.
var ErrDNSError = errors.New("dns wire error")
