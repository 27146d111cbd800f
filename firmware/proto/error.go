package proto

import "encoding/binary"

// ErrorPayload encodes a generic error response payload.
//
// Layout (little-endian):
//   - u16: code
//   - u16: ref kind (the request kind that failed)
//   - bytes: optional detail
func ErrorPayload(code ErrCode, ref Kind, detail []byte) []byte {
	buf := make([]byte, 4+len(detail))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(code))
	binary.LittleEndian.PutUint16(buf[2:4], uint16(ref))
	copy(buf[4:], detail)
	return buf
}

// DecodeErrorPayload decodes an ErrorPayload.
func DecodeErrorPayload(payload []byte) (code ErrCode, ref Kind, detail []byte, ok bool) {
	if len(payload) < 4 {
		return 0, 0, nil, false
	}
	code = ErrCode(binary.LittleEndian.Uint16(payload[0:2]))
	ref = Kind(binary.LittleEndian.Uint16(payload[2:4]))
	return code, ref, payload[4:], true
}

// Message is one decoded frame body.
type Message struct {
	Kind    Kind
	Payload []byte
}

// Encode prefixes payload with its kind.
func Encode(kind Kind, payload []byte) []byte {
	buf := make([]byte, 2+len(payload))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(kind))
	copy(buf[2:], payload)
	return buf
}

// Decode splits a frame body into kind and payload.
func Decode(b []byte) (Message, bool) {
	if len(b) < 2 {
		return Message{}, false
	}
	return Message{Kind: Kind(binary.LittleEndian.Uint16(b[0:2])), Payload: b[2:]}, true
}
