// Package exchange implements the data plane between devices: exports
// (outbound per-round messages keyed by trace), contexts (a device's
// view of its neighbours' exports), the value codecs, and the envelope
// wire format.
package exchange

import (
	"encoding/binary"
	"math"

	"fieldnet/internal/model"
)

// Type tags for type-erased payload values. A decode under the wrong
// tag is a protocol error.
const (
	TagBool   byte = 1
	TagInt64  byte = 2
	TagFloat  byte = 3
	TagDevice byte = 4
	TagString byte = 5
	TagBytes  byte = 6
	TagRanked byte = 7
)

// Codec encodes and decodes one payload value type. Scalar encodings
// are fixed width; variable-size values carry a u32 length prefix so
// payloads can be scanned without knowing their types.
type Codec[T any] interface {
	Tag() byte
	Append(dst []byte, v T) []byte
	Decode(src []byte) (T, error)
}

// Ranked pairs a sort key with a device id. Reductions over Ranked
// values resolve equal keys toward the smaller id, which is what
// unique-parent selections rely on.
type Ranked struct {
	Key float64
	ID  model.DeviceID
}

func (a Ranked) Less(b Ranked) bool {
	if a.Key != b.Key {
		return a.Key < b.Key
	}
	return a.ID < b.ID
}

// Codecs for the in-core value types.
var (
	Bool    Codec[bool]           = boolCodec{}
	Int64   Codec[int64]          = int64Codec{}
	Float   Codec[float64]        = floatCodec{}
	Device  Codec[model.DeviceID] = deviceCodec{}
	String  Codec[string]         = stringCodec{}
	Bytes   Codec[[]byte]         = bytesCodec{}
	RankedC Codec[Ranked]         = rankedCodec{}
)

type boolCodec struct{}

func (boolCodec) Tag() byte { return TagBool }

func (boolCodec) Append(dst []byte, v bool) []byte {
	if v {
		return append(dst, 1)
	}
	return append(dst, 0)
}

func (boolCodec) Decode(src []byte) (bool, error) {
	if len(src) != 1 {
		return false, model.Protocolf("bool payload has %d bytes", len(src))
	}
	return src[0] != 0, nil
}

type int64Codec struct{}

func (int64Codec) Tag() byte { return TagInt64 }

func (int64Codec) Append(dst []byte, v int64) []byte {
	return binary.LittleEndian.AppendUint64(dst, uint64(v))
}

func (int64Codec) Decode(src []byte) (int64, error) {
	if len(src) != 8 {
		return 0, model.Protocolf("int64 payload has %d bytes", len(src))
	}
	return int64(binary.LittleEndian.Uint64(src)), nil
}

type floatCodec struct{}

func (floatCodec) Tag() byte { return TagFloat }

func (floatCodec) Append(dst []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(dst, math.Float64bits(v))
}

func (floatCodec) Decode(src []byte) (float64, error) {
	if len(src) != 8 {
		return 0, model.Protocolf("float payload has %d bytes", len(src))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(src)), nil
}

type deviceCodec struct{}

func (deviceCodec) Tag() byte { return TagDevice }

func (deviceCodec) Append(dst []byte, v model.DeviceID) []byte {
	return binary.LittleEndian.AppendUint32(dst, uint32(v))
}

func (deviceCodec) Decode(src []byte) (model.DeviceID, error) {
	if len(src) != 4 {
		return 0, model.Protocolf("device payload has %d bytes", len(src))
	}
	return model.DeviceID(binary.LittleEndian.Uint32(src)), nil
}

type stringCodec struct{}

func (stringCodec) Tag() byte { return TagString }

func (stringCodec) Append(dst []byte, v string) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(v)))
	return append(dst, v...)
}

func (stringCodec) Decode(src []byte) (string, error) {
	b, err := decodePrefixed(src)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type bytesCodec struct{}

func (bytesCodec) Tag() byte { return TagBytes }

func (bytesCodec) Append(dst []byte, v []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(v)))
	return append(dst, v...)
}

func (bytesCodec) Decode(src []byte) ([]byte, error) {
	b, err := decodePrefixed(src)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

type rankedCodec struct{}

func (rankedCodec) Tag() byte { return TagRanked }

func (rankedCodec) Append(dst []byte, v Ranked) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(v.Key))
	return binary.LittleEndian.AppendUint32(dst, uint32(v.ID))
}

func (rankedCodec) Decode(src []byte) (Ranked, error) {
	if len(src) != 12 {
		return Ranked{}, model.Protocolf("ranked payload has %d bytes", len(src))
	}
	return Ranked{
		Key: math.Float64frombits(binary.LittleEndian.Uint64(src)),
		ID:  model.DeviceID(binary.LittleEndian.Uint32(src[8:])),
	}, nil
}

func decodePrefixed(src []byte) ([]byte, error) {
	if len(src) < 4 {
		return nil, model.Protocolf("length prefix truncated: %d bytes", len(src))
	}
	n := binary.LittleEndian.Uint32(src)
	if uint32(len(src)-4) != n {
		return nil, model.Protocolf("length prefix %d does not match %d value bytes", n, len(src)-4)
	}
	return src[4:], nil
}

// valueSize returns how many bytes the value under tag occupies at the
// head of src, without decoding it.
func valueSize(tag byte, src []byte) (int, error) {
	switch tag {
	case TagBool:
		return 1, nil
	case TagInt64, TagFloat:
		return 8, nil
	case TagDevice:
		return 4, nil
	case TagRanked:
		return 12, nil
	case TagString, TagBytes:
		if len(src) < 4 {
			return 0, model.Protocolf("length prefix truncated: %d bytes", len(src))
		}
		return 4 + int(binary.LittleEndian.Uint32(src)), nil
	default:
		return 0, model.Protocolf("unknown type tag %d", tag)
	}
}
