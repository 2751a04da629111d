package dns

import (
	"errors"
	"fmt"
)

// Limits for incoming DNS messages to prevent resource exhaustion attacks.
const (
	MaxIncomingDNSMessageSize = 4096 // Maximum size of incoming DNS message
	MaxQuestions              = 4    // Maximum questions per query (RFC allows 1 typically)
	MaxRRPerSection           = 100  // Maximum resource records per section
	MaxTotalRR                = 200  // Maximum total resource records
)

// ParseQuery parses a client query with security bounds checking.
// It validates that the message is a standard query (not a response),
// uses opcode 0 (QUERY), and doesn't exceed resource limits.
//
// Returns an error if:
//   - Message exceeds MaxIncomingDNSMessageSize
//   - QR flag is set (packet is a response, not a query)
//   - Opcode is not 0 (only standard queries are supported)
//   - Question or RR counts exceed limits
func ParseQuery(msg []byte) (Message, error) {
	if len(msg) > MaxIncomingDNSMessageSize {
		return Message{}, errors.New("dns message too large")
	}
	b := NewBuffer(msg)
	h, err := ParseHeader(b)
	if err != nil {
		return Message{}, err
	}
	if h.IsResponse() {
		return Message{}, errors.New("invalid packet: QR flag set (response packet received)")
	}
	if opcode := extractOpcode(h.Flags); opcode != 0 {
		return Message{}, fmt.Errorf("unsupported OpCode: %d", opcode)
	}
	if err := validateSectionCounts(h); err != nil {
		return Message{}, err
	}
	return ParseMessage(msg)
}

// extractOpcode extracts the 4-bit opcode from the flags field.
func extractOpcode(flags uint16) uint16 {
	return (flags & OpcodeMask) >> 11
}

// validateSectionCounts checks that section counts don't exceed limits.
func validateSectionCounts(h Header) error {
	qd := int(h.QDCount)
	an := int(h.ANCount)
	ns := int(h.NSCount)
	ar := int(h.ARCount)

	if qd > MaxQuestions {
		return errors.New("too many questions")
	}
	if qd != 1 {
		return errors.New("unsupported question count")
	}
	if an > MaxRRPerSection || ns > MaxRRPerSection || ar > MaxRRPerSection {
		return errors.New("too many resource records")
	}
	if (an + ns + ar) > MaxTotalRR {
		return errors.New("too many total resource records")
	}
	return nil
}

// BuildErrorResponse constructs a DNS error response.
// It keeps the transaction ID, the RD flag and the question section of req,
// sets QR and applies rcode. No records are included.
func BuildErrorResponse(req Message, rcode RCode) Message {
	return Message{
		Header:    Header{ID: req.Header.ID, Flags: responseFlags(req.Header.Flags, rcode)},
		Questions: req.Questions,
	}
}

// BuildAnswer constructs a response to req carrying answers.
// RA is set since the proxy offers recursion through its upstream.
func BuildAnswer(req Message, answers []Record) Message {
	return Message{
		Header:    Header{ID: req.Header.ID, Flags: responseFlags(req.Header.Flags, RCodeNoError) | RAFlag},
		Questions: req.Questions,
		Answers:   answers,
	}
}

// responseFlags sets QR, preserves RD from the request and applies rcode.
func responseFlags(reqFlags uint16, rcode RCode) uint16 {
	flags := QRFlag | (reqFlags & RDFlag)
	return (flags &^ RCodeMask) | (uint16(rcode) & RCodeMask)
}

// ErrorFromRaw builds an error response from a request that failed to parse.
// It returns nil when not even the header is readable.
func ErrorFromRaw(reqBytes []byte, rcode RCode) []byte {
	b := NewBuffer(reqBytes)
	h, err := ParseHeader(b)
	if err != nil {
		return nil
	}
	req := Message{Header: h}
	if h.QDCount > 0 {
		if q, err := ParseQuestion(b); err == nil {
			req.Questions = []Question{q}
		}
	}
	out, err := BuildErrorResponse(req, rcode).Marshal()
	if err != nil {
		return nil
	}
	return out
}
