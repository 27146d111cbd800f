package proto

import "encoding/binary"

// HelloPayload encodes MsgSplitHello and MsgSplitHelloAck.
//
// Layout:
//   - u8: peer id (0 for the central)
//   - [6]u8: link address
//   - u8: rows
//   - u8: cols
func HelloPayload(peer uint8, addr [6]byte, rows, cols uint8) []byte {
	buf := make([]byte, 9)
	buf[0] = peer
	copy(buf[1:7], addr[:])
	buf[7] = rows
	buf[8] = cols
	return buf
}

func DecodeHelloPayload(b []byte) (peer uint8, addr [6]byte, rows, cols uint8, ok bool) {
	if len(b) != 9 {
		return 0, addr, 0, 0, false
	}
	copy(addr[:], b[1:7])
	return b[0], addr, b[7], b[8], true
}

// KeyPayload encodes MsgSplitKey in peripheral-local coordinates.
//
// Layout:
//   - u8: row
//   - u8: col
//   - u8: pressed (0/1)
func KeyPayload(row, col uint8, pressed bool) []byte {
	buf := []byte{row, col, 0}
	if pressed {
		buf[2] = 1
	}
	return buf
}

func DecodeKeyPayload(b []byte) (row, col uint8, pressed bool, ok bool) {
	if len(b) != 3 || b[2] > 1 {
		return 0, 0, false, false
	}
	return b[0], b[1], b[2] == 1, true
}

// EncoderPayload encodes MsgSplitEncoder: one detent.
//
// Layout:
//   - u8: encoder id
//   - u8: direction (0 clockwise, 1 counter-clockwise)
func EncoderPayload(id, dir uint8) []byte { return []byte{id, dir} }

func DecodeEncoderPayload(b []byte) (id, dir uint8, ok bool) {
	if len(b) != 2 || b[1] > 1 {
		return 0, 0, false
	}
	return b[0], b[1], true
}

// AxisPayload encodes MsgSplitAxis.
//
// Layout (little-endian):
//   - u8: device id
//   - u8: axis
//   - i16: value
func AxisPayload(id, axis uint8, v int16) []byte {
	buf := make([]byte, 4)
	buf[0] = id
	buf[1] = axis
	binary.LittleEndian.PutUint16(buf[2:4], uint16(v))
	return buf
}

func DecodeAxisPayload(b []byte) (id, axis uint8, v int16, ok bool) {
	if len(b) != 4 {
		return 0, 0, 0, false
	}
	return b[0], b[1], int16(binary.LittleEndian.Uint16(b[2:4])), true
}

// LayerStatePayload encodes MsgSplitLayerState.
//
// Layout (little-endian):
//   - u8: highest active layer
//   - u32: active layer mask
func LayerStatePayload(layer uint8, mask uint32) []byte {
	buf := make([]byte, 5)
	buf[0] = layer
	binary.LittleEndian.PutUint32(buf[1:5], mask)
	return buf
}

func DecodeLayerStatePayload(b []byte) (layer uint8, mask uint32, ok bool) {
	if len(b) != 5 {
		return 0, 0, false
	}
	return b[0], binary.LittleEndian.Uint32(b[1:5]), true
}

// ConnStatePayload encodes MsgSplitConnState.
//
// Layout:
//   - u8: connection type (0 USB, 1 BLE)
//   - u8: host connected (0/1)
func ConnStatePayload(conn uint8, connected bool) []byte {
	buf := []byte{conn, 0}
	if connected {
		buf[1] = 1
	}
	return buf
}

func DecodeConnStatePayload(b []byte) (conn uint8, connected bool, ok bool) {
	if len(b) != 2 {
		return 0, false, false
	}
	return b[0], b[1] != 0, true
}
