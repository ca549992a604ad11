package protocol

import (
	"encoding/binary"
	"math"

	"github.com/quantedge/matchcore/pkg/errors"
)

// ErrNeedMore is returned by DecodeOne when buf does not yet hold a whole
// frame; the caller should read more bytes and retry without discarding buf.
// It is not a protocol violation — callers distinguish it with IsNeedMore.
var ErrNeedMore = errors.New(errors.ErrValidationFailed, "need more bytes")

// IsNeedMore reports whether err is the ErrNeedMore sentinel.
func IsNeedMore(err error) bool {
	return err == ErrNeedMore
}

func putF64(dst []byte, v float64) {
	binary.LittleEndian.PutUint64(dst, math.Float64bits(v))
}

func getF64(src []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(src))
}

// Encode serializes msg into a complete frame (header + body) with the
// given sequence number.
func Encode(seqNum uint16, msg Message) []byte {
	body := encodeBody(msg)
	total := HeaderSize + len(body)
	buf := make([]byte, total)
	binary.LittleEndian.PutUint16(buf[0:2], seqNum)
	buf[2] = msg.Type()
	binary.LittleEndian.PutUint16(buf[3:5], uint16(total))
	copy(buf[HeaderSize:], body)
	return buf
}

func encodeBody(msg Message) []byte {
	switch m := msg.(type) {
	case Login:
		b := make([]byte, bodyLogin)
		copy(b[0:loginStrWidth], m.User[:])
		copy(b[loginStrWidth:], m.Password[:])
		return b
	case LoginResp:
		b := make([]byte, bodyLoginResp)
		b[0] = m.Status
		copy(b[1:], m.Message[:])
		return b
	case NewOrder:
		b := make([]byte, bodyNewOrder)
		binary.LittleEndian.PutUint64(b[0:8], m.ClientOrderID)
		copy(b[8:8+symbolWidth], m.Symbol[:])
		off := 8 + symbolWidth
		b[off] = m.Side
		b[off+1] = m.OrderType
		putF64(b[off+2:off+10], m.Price)
		binary.LittleEndian.PutUint64(b[off+10:off+18], m.Quantity)
		return b
	case Cancel:
		b := make([]byte, bodyCancel)
		binary.LittleEndian.PutUint64(b[0:8], m.EngineOrderID)
		copy(b[8:8+symbolWidth], m.Symbol[:])
		b[8+symbolWidth] = m.Side
		return b
	case MDQuery:
		b := make([]byte, bodyMDQuery)
		copy(b, m.Symbol[:])
		return b
	case Subscribe:
		b := make([]byte, bodySubscribe)
		copy(b[0:symbolWidth], m.Symbol[:])
		b[symbolWidth] = m.Flag
		return b
	case ExecReport:
		b := make([]byte, bodyExecReport)
		binary.LittleEndian.PutUint64(b[0:8], m.ClientOrderID)
		binary.LittleEndian.PutUint64(b[8:16], m.ExecutionID)
		copy(b[16:16+symbolWidth], m.Symbol[:])
		off := 16 + symbolWidth
		b[off] = m.Side
		putF64(b[off+1:off+9], m.Price)
		binary.LittleEndian.PutUint64(b[off+9:off+17], m.Quantity)
		binary.LittleEndian.PutUint64(b[off+17:off+25], m.FilledQty)
		b[off+25] = m.Status
		return b
	case Snapshot:
		b := make([]byte, bodySnapshot)
		copy(b[0:symbolWidth], m.Symbol[:])
		off := symbolWidth
		binary.LittleEndian.PutUint32(b[off:off+4], m.NBids)
		binary.LittleEndian.PutUint32(b[off+4:off+8], m.NAsks)
		off += 8
		for _, lvl := range m.Bids {
			putF64(b[off:off+8], lvl.Price)
			binary.LittleEndian.PutUint64(b[off+8:off+16], lvl.Qty)
			off += levelWidth
		}
		for _, lvl := range m.Asks {
			putF64(b[off:off+8], lvl.Price)
			binary.LittleEndian.PutUint64(b[off+8:off+16], lvl.Qty)
			off += levelWidth
		}
		return b
	case Ticker:
		b := make([]byte, bodyTicker)
		copy(b[0:symbolWidth], m.Symbol[:])
		off := symbolWidth
		putF64(b[off:off+8], m.Price)
		binary.LittleEndian.PutUint64(b[off+8:off+16], m.Quantity)
		binary.LittleEndian.PutUint64(b[off+16:off+24], m.TimestampNS)
		b[off+24] = m.AggressorSide
		return b
	default:
		panic("protocol: unknown message type for encode")
	}
}

// expectedBodyLen returns the fixed body length for a given wire msgType,
// and whether msgType is recognized at all.
func expectedBodyLen(msgType byte) (int, bool) {
	switch msgType {
	case MsgLogin:
		return bodyLogin, true
	case MsgLoginResp:
		return bodyLoginResp, true
	case MsgNewOrder:
		return bodyNewOrder, true
	case MsgCancel:
		return bodyCancel, true
	case MsgMDQuery:
		return bodyMDQuery, true
	case MsgSubscribe:
		return bodySubscribe, true
	case MsgExecReport:
		return bodyExecReport, true
	case MsgSnapshot:
		return bodySnapshot, true
	case MsgTicker:
		return bodyTicker, true
	default:
		return 0, false
	}
}

// DecodeOne decodes exactly one frame from the front of buf. On success it
// returns the message, the number of bytes consumed (always == total_len),
// and a nil error — the caller slides buf forward by the returned count.
// If buf does not yet contain a whole frame it returns (nil, 0, ErrNeedMore).
// Any other error is a protocol violation: the caller must close the
// session.
func DecodeOne(buf []byte) (Message, int, error) {
	if len(buf) < HeaderSize {
		return nil, 0, ErrNeedMore
	}

	msgType := buf[2]
	totalLen := binary.LittleEndian.Uint16(buf[3:5])

	if totalLen < HeaderSize {
		return nil, 0, errors.Newf(errors.ErrProtocolViolation, "total_len %d below header size", totalLen)
	}

	if len(buf) < int(totalLen) {
		return nil, 0, ErrNeedMore
	}

	wantBody, known := expectedBodyLen(msgType)
	if !known {
		return nil, 0, errors.Newf(errors.ErrUnknownMessage, "unknown msg_type %q", msgType)
	}

	body := buf[HeaderSize:totalLen]
	if len(body) != wantBody {
		return nil, 0, errors.Newf(errors.ErrProtocolViolation,
			"msg_type %q: body length %d does not match schema (want %d)", msgType, len(body), wantBody)
	}

	msg, err := decodeBody(msgType, body)
	if err != nil {
		return nil, 0, err
	}
	return msg, int(totalLen), nil
}

func decodeBody(msgType byte, b []byte) (Message, error) {
	switch msgType {
	case MsgLogin:
		var m Login
		copy(m.User[:], b[0:loginStrWidth])
		copy(m.Password[:], b[loginStrWidth:])
		return m, nil
	case MsgLoginResp:
		var m LoginResp
		m.Status = b[0]
		copy(m.Message[:], b[1:])
		return m, nil
	case MsgNewOrder:
		var m NewOrder
		m.ClientOrderID = binary.LittleEndian.Uint64(b[0:8])
		copy(m.Symbol[:], b[8:8+symbolWidth])
		off := 8 + symbolWidth
		m.Side = b[off]
		m.OrderType = b[off+1]
		m.Price = getF64(b[off+2 : off+10])
		m.Quantity = binary.LittleEndian.Uint64(b[off+10 : off+18])
		return m, nil
	case MsgCancel:
		var m Cancel
		m.EngineOrderID = binary.LittleEndian.Uint64(b[0:8])
		copy(m.Symbol[:], b[8:8+symbolWidth])
		m.Side = b[8+symbolWidth]
		return m, nil
	case MsgMDQuery:
		var m MDQuery
		copy(m.Symbol[:], b)
		return m, nil
	case MsgSubscribe:
		var m Subscribe
		copy(m.Symbol[:], b[0:symbolWidth])
		m.Flag = b[symbolWidth]
		return m, nil
	case MsgExecReport:
		var m ExecReport
		m.ClientOrderID = binary.LittleEndian.Uint64(b[0:8])
		m.ExecutionID = binary.LittleEndian.Uint64(b[8:16])
		copy(m.Symbol[:], b[16:16+symbolWidth])
		off := 16 + symbolWidth
		m.Side = b[off]
		m.Price = getF64(b[off+1 : off+9])
		m.Quantity = binary.LittleEndian.Uint64(b[off+9 : off+17])
		m.FilledQty = binary.LittleEndian.Uint64(b[off+17 : off+25])
		m.Status = b[off+25]
		return m, nil
	case MsgSnapshot:
		var m Snapshot
		copy(m.Symbol[:], b[0:symbolWidth])
		off := symbolWidth
		m.NBids = binary.LittleEndian.Uint32(b[off : off+4])
		m.NAsks = binary.LittleEndian.Uint32(b[off+4 : off+8])
		off += 8
		for i := 0; i < bookDepth; i++ {
			m.Bids[i] = Level{Price: getF64(b[off : off+8]), Qty: binary.LittleEndian.Uint64(b[off+8 : off+16])}
			off += levelWidth
		}
		for i := 0; i < bookDepth; i++ {
			m.Asks[i] = Level{Price: getF64(b[off : off+8]), Qty: binary.LittleEndian.Uint64(b[off+8 : off+16])}
			off += levelWidth
		}
		return m, nil
	case MsgTicker:
		var m Ticker
		copy(m.Symbol[:], b[0:symbolWidth])
		off := symbolWidth
		m.Price = getF64(b[off : off+8])
		m.Quantity = binary.LittleEndian.Uint64(b[off+8 : off+16])
		m.TimestampNS = binary.LittleEndian.Uint64(b[off+16 : off+24])
		m.AggressorSide = b[off+24]
		return m, nil
	default:
		return nil, errors.Newf(errors.ErrUnknownMessage, "unknown msg_type %q", msgType)
	}
}
