package codec

import (
	jsoniter "github.com/json-iterator/go"
)

// stdCompatible honours json.Marshaler / json.RawMessage and sorts map keys exactly like
// encoding/json, so both codecs emit identical bytes for the same envelope.
var stdCompatible = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONIterCodec uses json-iterator, a reflection-cached drop-in for encoding/json.
// Pros: faster decode of large catalog records. Cons: one more dependency.
type JSONIterCodec struct{}

func (c *JSONIterCodec) Encode(v any) ([]byte, error) {
	return stdCompatible.Marshal(v)
}

func (c *JSONIterCodec) Decode(data []byte, v any) error {
	if len(data) == 0 {
		return ErrEmptyPayload
	}
	return stdCompatible.Unmarshal(data, v)
}

func (c *JSONIterCodec) Type() CodecType {
	return CodecTypeJSONIter
}
