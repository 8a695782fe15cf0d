package exchange

import (
	"encoding/binary"
	"math"

	"fieldnet/internal/model"
)

// Envelope wraps one device's export for delivery to a neighbour.
//
// Wire format:
//
//	[sender: u32le][sendTime: f64le][len: u32le][payload: len bytes]
//
// where payload is a sequence of [trace: u64le][tag: u8][value bytes]
// entries. Real-mode frames append one trailing delay byte, handled by
// AppendDelay/SplitDelay.
type Envelope struct {
	From     model.DeviceID
	SendTime model.Time
	At       model.Time // reception time, set on delivery
	Export   *Export
}

const envelopeHeaderLen = 4 + 8 + 4

// EncodeEnvelope serialises a sealed export for broadcast.
func EncodeEnvelope(from model.DeviceID, sendTime model.Time, e *Export) []byte {
	payload := appendPayload(nil, e)
	out := make([]byte, 0, envelopeHeaderLen+len(payload))
	out = binary.LittleEndian.AppendUint32(out, uint32(from))
	out = binary.LittleEndian.AppendUint64(out, math.Float64bits(sendTime))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(payload)))
	return append(out, payload...)
}

func appendPayload(dst []byte, e *Export) []byte {
	for _, tr := range e.Traces() {
		p, _ := e.Get(tr)
		dst = binary.LittleEndian.AppendUint64(dst, uint64(tr))
		dst = append(dst, p.Tag)
		dst = append(dst, p.Data...)
	}
	return dst
}

// DecodeEnvelope parses a received frame. Any malformation is a
// protocol error: the frame is dropped and counted, never fatal.
func DecodeEnvelope(data []byte) (Envelope, error) {
	if len(data) < envelopeHeaderLen {
		return Envelope{}, model.Protocolf("envelope header truncated: %d bytes", len(data))
	}
	from := model.DeviceID(binary.LittleEndian.Uint32(data))
	sendTime := math.Float64frombits(binary.LittleEndian.Uint64(data[4:]))
	n := binary.LittleEndian.Uint32(data[12:])
	body := data[envelopeHeaderLen:]
	if uint32(len(body)) != n {
		return Envelope{}, model.Protocolf("envelope declares %d payload bytes, carries %d", n, len(body))
	}
	export := NewExport()
	for len(body) > 0 {
		if len(body) < 9 {
			return Envelope{}, model.Protocolf("payload entry truncated: %d bytes", len(body))
		}
		tr := model.Trace(binary.LittleEndian.Uint64(body))
		tag := body[8]
		body = body[9:]
		size, err := valueSize(tag, body)
		if err != nil {
			return Envelope{}, err
		}
		if len(body) < size {
			return Envelope{}, model.Protocolf("value at trace %d truncated: want %d bytes, have %d", tr, size, len(body))
		}
		export.Set(tr, tag, append([]byte(nil), body[:size]...))
		body = body[size:]
	}
	export.Seal()
	return Envelope{From: from, SendTime: sendTime, Export: export}, nil
}

// AppendDelay appends the one-byte relative timestamp used by the
// real-mode radio: hundred-twenty-eighths of a time unit, clamped to
// 255 (so precision is lost above two seconds; the clamp is inherited
// from the radio frame layout).
func AppendDelay(frame []byte, dt model.Time) []byte {
	v := dt * 128
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	return append(frame, byte(v))
}

// SplitDelay strips the trailing delay byte from a real-mode frame and
// returns the carried delay in time units.
func SplitDelay(frame []byte) ([]byte, model.Time, error) {
	if len(frame) == 0 {
		return nil, 0, model.Protocolf("empty radio frame")
	}
	last := frame[len(frame)-1]
	return frame[:len(frame)-1], model.Time(last) / 128, nil
}
