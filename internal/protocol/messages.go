// Package protocol implements the length-prefixed binary wire codec (C1):
// a 5-byte header followed by one of the fixed-layout message bodies of
// spec §6. All integers are little-endian; there is no padding.
//
// The header/body split and the "header byte 2 carries the type, fixed
// per-type body size is validated on decode" shape generalizes the
// teacher's internal/ws/protocol/binary.go, extended from that file's
// single-purpose price/order/heartbeat frames to the full schema table.
package protocol

import "github.com/quantedge/matchcore/pkg/errors"

// Message type tags (ASCII, one byte on the wire).
const (
	MsgLogin      byte = 'L'
	MsgLoginResp  byte = 'R'
	MsgNewOrder   byte = 'N'
	MsgCancel     byte = 'C'
	MsgMDQuery    byte = 'M'
	MsgSubscribe  byte = 'Q'
	MsgExecReport byte = 'E'
	MsgSnapshot   byte = 'S'
	MsgTicker     byte = 'T'
)

// Side values.
const (
	SideBuy  byte = 0
	SideSell byte = 1
)

// Order type values.
const (
	OrderTypeMarket byte = 0
	OrderTypeLimit  byte = 1
)

// Execution/order status codes.
const (
	StatusNew       byte = 0
	StatusPartial   byte = 1
	StatusFilled    byte = 2
	StatusCancelled byte = 3
	StatusRejected  byte = 4
)

const (
	symbolWidth   = 10
	loginStrWidth = 20
	loginMsgWidth = 50

	// HeaderSize is the fixed 5-byte frame header: seq_num(u16) + type(u8) + total_len(u16).
	HeaderSize = 5

	bodyLogin      = loginStrWidth * 2
	bodyLoginResp  = 1 + loginMsgWidth
	bodyNewOrder   = 8 + symbolWidth + 1 + 1 + 8 + 8
	bodyCancel     = 8 + symbolWidth + 1
	bodyMDQuery    = symbolWidth
	bodySubscribe  = symbolWidth + 1
	bodyExecReport = 8 + 8 + symbolWidth + 1 + 8 + 8 + 8 + 1
	bookDepth      = 5
	levelWidth     = 8 + 8 // price f64 + qty u64
	bodySnapshot   = symbolWidth + 4 + 4 + bookDepth*levelWidth*2
	bodyTicker     = symbolWidth + 8 + 8 + 8 + 1

	// MaxBodySize bounds the largest body any valid msg_type can carry.
	MaxBodySize = bodySnapshot
)

// Header is the 5-byte frame header common to every message.
type Header struct {
	SeqNum   uint16
	MsgType  byte
	TotalLen uint16
}

// Message is implemented by every decoded/encodable frame body.
type Message interface {
	Type() byte
}

// Login — C→S. Any non-empty user/password is accepted by the default
// Authenticator (internal/auth); the fields are fixed-width, NUL-padded.
type Login struct {
	User     [loginStrWidth]byte
	Password [loginStrWidth]byte
}

func (Login) Type() byte { return MsgLogin }

// LoginResp — S→C.
type LoginResp struct {
	Status  byte // 1 = ok, 0 = fail
	Message [loginMsgWidth]byte
}

func (LoginResp) Type() byte { return MsgLoginResp }

// NewOrder — C→S.
type NewOrder struct {
	ClientOrderID uint64
	Symbol        [symbolWidth]byte
	Side          byte
	OrderType     byte
	Price         float64
	Quantity      uint64
}

func (NewOrder) Type() byte { return MsgNewOrder }

// Cancel — C→S.
type Cancel struct {
	EngineOrderID uint64
	Symbol        [symbolWidth]byte
	Side          byte
}

func (Cancel) Type() byte { return MsgCancel }

// MDQuery — C→S: a one-shot pull of the current snapshot.
type MDQuery struct {
	Symbol [symbolWidth]byte
}

func (MDQuery) Type() byte { return MsgMDQuery }

// Subscribe — C→S: mutate the subscriber set for Symbol.
type Subscribe struct {
	Symbol [symbolWidth]byte
	Flag   byte // 1 = subscribe, 0 = unsubscribe
}

func (Subscribe) Type() byte { return MsgSubscribe }

// ExecReport — S→C.
type ExecReport struct {
	ClientOrderID uint64
	ExecutionID   uint64
	Symbol        [symbolWidth]byte
	Side          byte
	Price         float64
	Quantity      uint64
	FilledQty     uint64
	Status        byte
}

func (ExecReport) Type() byte { return MsgExecReport }

// Level is one (price, aggregate quantity) entry of a Snapshot.
type Level struct {
	Price float64
	Qty   uint64
}

// Snapshot — S→C: top-5 bids and asks.
type Snapshot struct {
	Symbol [symbolWidth]byte
	NBids  uint32
	NAsks  uint32
	Bids   [bookDepth]Level
	Asks   [bookDepth]Level
}

func (Snapshot) Type() byte { return MsgSnapshot }

// Ticker — S→C: one per-trade print to symbol subscribers.
type Ticker struct {
	Symbol        [symbolWidth]byte
	Price         float64
	Quantity      uint64
	TimestampNS   uint64
	AggressorSide byte
}

func (Ticker) Type() byte { return MsgTicker }

// SymbolBytes right-pads s with NUL to the 10-byte wire width. Returns a
// protocol error if s does not fit.
func SymbolBytes(s string) ([symbolWidth]byte, error) {
	var out [symbolWidth]byte
	if len(s) > symbolWidth {
		return out, errors.Newf(errors.ErrSymbolTooLong, "symbol %q exceeds %d bytes", s, symbolWidth)
	}
	copy(out[:], s)
	return out, nil
}

// SymbolString trims trailing NUL padding from a fixed-width symbol field.
func SymbolString(b [symbolWidth]byte) string {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return string(b[:n])
}

