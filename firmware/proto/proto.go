// Package proto holds the little-endian message payloads exchanged between
// the halves of a split keyboard and between tasks and the storage service.
package proto

// Kind identifies the message type at the head of every frame.
type Kind uint16

const (
	MsgError Kind = iota + 1
	MsgSplitHello
	MsgSplitHelloAck
	MsgSplitKey
	MsgSplitEncoder
	MsgSplitAxis
	MsgSplitLayerState
	MsgSplitConnState
	MsgFlashPut
	MsgFlashDelete
	MsgFlashClearLayout
	MsgFlashEraseAll
	MsgFlashResp
)

// ErrCode is a generic error category for MsgError and MsgFlashResp.
type ErrCode uint16

const (
	ErrNone ErrCode = iota
	ErrUnknown
	ErrBadMessage
	ErrNotFound
	ErrBusy
	ErrFull
	ErrTooLarge
	ErrCorrupt
	ErrInternal
)

func (c ErrCode) String() string {
	switch c {
	case ErrNone:
		return "none"
	case ErrUnknown:
		return "unknown"
	case ErrBadMessage:
		return "bad_message"
	case ErrNotFound:
		return "not_found"
	case ErrBusy:
		return "busy"
	case ErrFull:
		return "full"
	case ErrTooLarge:
		return "too_large"
	case ErrCorrupt:
		return "corrupt"
	case ErrInternal:
		return "internal"
	default:
		return "unknown"
	}
}

func (k Kind) String() string {
	switch k {
	case MsgError:
		return "error"
	case MsgSplitHello:
		return "split_hello"
	case MsgSplitHelloAck:
		return "split_hello_ack"
	case MsgSplitKey:
		return "split_key"
	case MsgSplitEncoder:
		return "split_encoder"
	case MsgSplitAxis:
		return "split_axis"
	case MsgSplitLayerState:
		return "split_layer_state"
	case MsgSplitConnState:
		return "split_conn_state"
	case MsgFlashPut:
		return "flash_put"
	case MsgFlashDelete:
		return "flash_delete"
	case MsgFlashClearLayout:
		return "flash_clear_layout"
	case MsgFlashEraseAll:
		return "flash_erase_all"
	case MsgFlashResp:
		return "flash_resp"
	default:
		return "unknown"
	}
}
