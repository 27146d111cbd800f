package proto

import "encoding/binary"

// FlashPutPayload encodes MsgFlashPut.
//
// Layout (little-endian):
//   - u32: request id
//   - u32: key
//   - bytes: tagged value
func FlashPutPayload(requestID, key uint32, value []byte) []byte {
	buf := make([]byte, 8+len(value))
	binary.LittleEndian.PutUint32(buf[0:4], requestID)
	binary.LittleEndian.PutUint32(buf[4:8], key)
	copy(buf[8:], value)
	return buf
}

func DecodeFlashPutPayload(b []byte) (requestID, key uint32, value []byte, ok bool) {
	if len(b) < 9 {
		return 0, 0, nil, false
	}
	return binary.LittleEndian.Uint32(b[0:4]), binary.LittleEndian.Uint32(b[4:8]), b[8:], true
}

// FlashKeyPayload encodes MsgFlashDelete.
//
// Layout (little-endian):
//   - u32: request id
//   - u32: key
func FlashKeyPayload(requestID, key uint32) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], requestID)
	binary.LittleEndian.PutUint32(buf[4:8], key)
	return buf
}

func DecodeFlashKeyPayload(b []byte) (requestID, key uint32, ok bool) {
	if len(b) != 8 {
		return 0, 0, false
	}
	return binary.LittleEndian.Uint32(b[0:4]), binary.LittleEndian.Uint32(b[4:8]), true
}

// FlashRequestPayload encodes MsgFlashClearLayout and MsgFlashEraseAll.
//
// Layout (little-endian):
//   - u32: request id
func FlashRequestPayload(requestID uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, requestID)
}

func DecodeFlashRequestPayload(b []byte) (requestID uint32, ok bool) {
	if len(b) != 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

// FlashRespPayload encodes MsgFlashResp.
//
// Layout (little-endian):
//   - u32: request id
//   - u16: error code (ErrNone on success)
func FlashRespPayload(requestID uint32, code ErrCode) []byte {
	buf := make([]byte, 6)
	binary.LittleEndian.PutUint32(buf[0:4], requestID)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(code))
	return buf
}

func DecodeFlashRespPayload(b []byte) (requestID uint32, code ErrCode, ok bool) {
	if len(b) != 6 {
		return 0, 0, false
	}
	return binary.LittleEndian.Uint32(b[0:4]), ErrCode(binary.LittleEndian.Uint16(b[4:6])), true
}
