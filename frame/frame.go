// Package frame implements the length-prefixed wire framing protocol that
// sits between raw transport bytes and the message model:
//
//	| total_len | mtype | id_len | id_bytes | body_bytes |
//
// All integers are big-endian 32-bit. total_len counts everything after
// itself: 4 (mtype) + 4 (id_len) + id_len + len(body_bytes).
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/nexusrpc/corerpc/message"
)

const headerLen = 4 // the total_len prefix itself

// ErrShortFrame means a frame's declared length prefix is inconsistent
// with its own internal id_len field - the frame is malformed but the
// buffer parses far enough to know that.
var ErrShortFrame = errors.New("frame: short or malformed frame")

// ErrParseFailed wraps a body JSON decode failure.
var ErrParseFailed = errors.New("frame: body parse failed")

// Framer encodes messages to frames and decodes frames to messages. It is
// stateless and safe for concurrent use; all state (the partially read
// buffer) lives with the caller.
type Framer struct{}

// New returns a Framer.
func New() *Framer { return &Framer{} }

// CanDecode reports whether buf holds at least one complete frame: the
// 4-byte length prefix must be present, and its value must not exceed the
// bytes available beyond the prefix.
func (f *Framer) CanDecode(buf []byte) bool {
	if len(buf) < headerLen {
		return false
	}
	total := binary.BigEndian.Uint32(buf[:headerLen])
	return int(total) <= len(buf)-headerLen
}

// Decode consumes exactly one frame from the front of buf. It returns the
// decoded message, the number of bytes consumed (including the length
// prefix), and an error if the frame is malformed or carries an unknown
// mtype or unparsable body. Callers must only call Decode when CanDecode
// is true.
func (f *Framer) Decode(buf []byte) (message.Message, int, error) {
	if !f.CanDecode(buf) {
		return nil, 0, fmt.Errorf("%w: CanDecode was false", ErrShortFrame)
	}
	total := int(binary.BigEndian.Uint32(buf[:headerLen]))
	frameEnd := headerLen + total
	body := buf[headerLen:frameEnd]

	if len(body) < 8 {
		return nil, frameEnd, fmt.Errorf("%w: frame too short for mtype+id_len", ErrShortFrame)
	}
	mtype := message.MType(binary.BigEndian.Uint32(body[0:4]))
	idLen := int(binary.BigEndian.Uint32(body[4:8]))
	if 8+idLen > len(body) {
		return nil, frameEnd, fmt.Errorf("%w: id_len %d exceeds frame", ErrShortFrame, idLen)
	}
	id := string(body[8 : 8+idLen])
	payload := body[8+idLen:]

	msg, err := message.NewDefault(mtype)
	if err != nil {
		return nil, frameEnd, fmt.Errorf("frame: %w", err)
	}
	if len(payload) > 0 {
		if err := msg.Deserialize(payload); err != nil {
			return nil, frameEnd, fmt.Errorf("%w: %v", ErrParseFailed, err)
		}
	}
	msg.SetID(id)
	return msg, frameEnd, nil
}

// Encode serializes msg into a single self-delimited frame.
func (f *Framer) Encode(msg message.Message) ([]byte, error) {
	body, err := msg.Serialize()
	if err != nil {
		return nil, fmt.Errorf("frame: serialize body: %w", err)
	}
	id := []byte(msg.ID())
	total := 4 + 4 + len(id) + len(body)

	buf := make([]byte, headerLen+total)
	binary.BigEndian.PutUint32(buf[0:4], uint32(total))
	binary.BigEndian.PutUint32(buf[4:8], uint32(msg.Type()))
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(id)))
	copy(buf[12:12+len(id)], id)
	copy(buf[12+len(id):], body)
	return buf, nil
}

// Drain decodes every complete frame currently available at the front of
// buf, in order, stopping at the first incomplete frame. It returns the
// decoded messages and the total number of bytes consumed; callers should
// slide buf by that amount. A decode error aborts the drain and is
// returned alongside whatever frames decoded successfully before it.
func (f *Framer) Drain(buf []byte) ([]message.Message, int, error) {
	var msgs []message.Message
	consumed := 0
	for f.CanDecode(buf[consumed:]) {
		msg, n, err := f.Decode(buf[consumed:])
		if err != nil {
			return msgs, consumed, err
		}
		msgs = append(msgs, msg)
		consumed += n
	}
	return msgs, consumed, nil
}
