// Package codec turns envelopes into frame payloads and back.
//
// The wire format is always UTF-8 JSON; codecs differ only in the JSON implementation
// behind them, so a client using one can talk to a service using the other.
package codec

import "fmt"

type CodecType byte

const (
	CodecTypeJSON     CodecType = 0
	CodecTypeJSONIter CodecType = 1
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeJSONIter {
		return &JSONIterCodec{}
	}

	return &JSONCodec{}
}

// ParseType maps a config name ("json", "jsoniter") to a CodecType.
func ParseType(name string) (CodecType, error) {
	switch name {
	case "", "json":
		return CodecTypeJSON, nil
	case "jsoniter":
		return CodecTypeJSONIter, nil
	default:
		return 0, fmt.Errorf("codec: unknown codec %q", name)
	}
}

func (t CodecType) String() string {
	switch t {
	case CodecTypeJSON:
		return "json"
	case CodecTypeJSONIter:
		return "jsoniter"
	default:
		return fmt.Sprintf("codec(%d)", byte(t))
	}
}
