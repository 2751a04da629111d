package dns

import (
	"github.com/jroosing/hydraproxy/internal/helpers"
)

// Message represents a complete DNS message (RFC 1035 Section 4.1).
//
// DNS messages are composed of five sections:
//   - Header: Transaction ID, flags, section counts
//   - Questions: What is being asked (normally exactly one)
//   - Answers: Resource records answering the question
//   - Authorities: Name servers authoritative for the domain
//   - Additionals: Extra records (OPT, glue)
type Message struct {
	Header      Header
	Questions   []Question
	Answers     []Record
	Authorities []Record
	Additionals []Record
}

// FirstAnswer returns the first record of the answer section.
func (m Message) FirstAnswer() (Record, bool) {
	if len(m.Answers) == 0 {
		return Record{}, false
	}
	return m.Answers[0], true
}

// Question returns the first question, which is the one a proxy keys on.
func (m Message) Question() (Question, bool) {
	if len(m.Questions) == 0 {
		return Question{}, false
	}
	return m.Questions[0], true
}

// Marshal serializes the message to wire format without name compression.
// Section counts are derived from the slices, not from m.Header.
func (m Message) Marshal() ([]byte, error) {
	h := m.Header
	h.QDCount = helpers.ClampIntToUint16(len(m.Questions))
	h.ANCount = helpers.ClampIntToUint16(len(m.Answers))
	h.NSCount = helpers.ClampIntToUint16(len(m.Authorities))
	h.ARCount = helpers.ClampIntToUint16(len(m.Additionals))

	size := HeaderSize
	for _, q := range m.Questions {
		size += nameWireLen(q.Name) + 4
	}
	for _, section := range [][]Record{m.Answers, m.Authorities, m.Additionals} {
		for _, r := range section {
			size += r.WireLen()
		}
	}

	b := NewWriteBuffer(size)
	if err := h.Write(b); err != nil {
		return nil, err
	}
	for _, q := range m.Questions {
		if err := q.Write(b); err != nil {
			return nil, err
		}
	}
	for _, section := range [][]Record{m.Answers, m.Authorities, m.Additionals} {
		for _, r := range section {
			if err := r.Write(b); err != nil {
				return nil, err
			}
		}
	}
	return b.Written(), nil
}

// ParseMessage decodes a complete DNS message.
func ParseMessage(msg []byte) (Message, error) {
	b := NewBuffer(msg)
	h, err := ParseHeader(b)
	if err != nil {
		return Message{}, err
	}

	m := Message{Header: h}

	// Cap initial allocation so a large count in a tiny packet can't
	// force a big allocation.
	m.Questions = make([]Question, 0, min(int(h.QDCount), MaxQuestions))
	for range h.QDCount {
		q, err := ParseQuestion(b)
		if err != nil {
			return Message{}, err
		}
		m.Questions = append(m.Questions, q)
	}
	if m.Answers, err = parseSection(b, h.ANCount); err != nil {
		return Message{}, err
	}
	if m.Authorities, err = parseSection(b, h.NSCount); err != nil {
		return Message{}, err
	}
	if m.Additionals, err = parseSection(b, h.ARCount); err != nil {
		return Message{}, err
	}
	return m, nil
}

func parseSection(b *Buffer, count uint16) ([]Record, error) {
	out := make([]Record, 0, min(int(count), MaxRRPerSection))
	for range count {
		r, err := ParseRecord(b)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// PatchID returns msg with its transaction ID replaced.
// The input is copied unless it already carries id.
func PatchID(msg []byte, id uint16) []byte {
	if len(msg) < 2 {
		return msg
	}
	if msg[0] == byte(id>>8) && msg[1] == byte(id) {
		return msg
	}
	out := make([]byte, len(msg))
	copy(out, msg)
	NewBuffer(out).WriteU16(id)
	return out
}
