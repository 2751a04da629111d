package dns

import "fmt"

// Question represents a DNS question section entry (RFC 1035 Section 4.1.2).
//
// Each question specifies what the client is asking for:
//   - Name: The domain name being queried
//   - Type: The record type requested (A, AAAA, MX, etc.)
//   - Class: Usually ClassIN (Internet)
type Question struct {
	Name  string
	Type  uint16
	Class uint16
}

// Marshal serializes the question to DNS wire format.
func (q Question) Marshal() ([]byte, error) {
	name, err := EncodeName(nameOrRoot(q.Name))
	if err != nil {
		return nil, err
	}
	b := NewWriteBuffer(len(name) + 4)
	b.WriteBytes(name)
	b.WriteU16(q.Type)
	b.WriteU16(q.Class)
	return b.Bytes(), nil
}

// Write encodes the question at the cursor of w.
func (q Question) Write(w Writer) error {
	start := w.Pos()
	if err := WriteName(w, nameOrRoot(q.Name)); err != nil {
		return err
	}
	if w.Remaining() < 4 {
		w.Seek(start)
		return fmt.Errorf("%w: no room for DNS question", ErrDNSError)
	}
	w.WriteU16(q.Type)
	w.WriteU16(q.Class)
	return nil
}

// ParseQuestion parses a question at the cursor of b.
// The cursor is left unchanged on failure.
func ParseQuestion(b *Buffer) (Question, error) {
	start := b.Pos()
	name, err := DecodeName(b)
	if err != nil {
		return Question{}, err
	}
	qtype, ok1 := b.NextU16()
	qclass, ok2 := b.NextU16()
	if !ok1 || !ok2 {
		b.Seek(start)
		return Question{}, fmt.Errorf("%w: unexpected EOF while reading DNS question", ErrDNSError)
	}
	return Question{Name: name, Type: qtype, Class: qclass}, nil
}
