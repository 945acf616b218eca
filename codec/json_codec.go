package codec

import (
	"encoding/json"
	"errors"
)

// ErrEmptyPayload is returned by Decode for a zero-length frame body. A frame may
// legally carry no bytes, but no envelope is empty.
var ErrEmptyPayload = errors.New("codec: empty payload")

// JSONCodec uses Go's standard library encoding/json for serialization.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	if len(data) == 0 {
		return ErrEmptyPayload
	}
	return json.Unmarshal(data, v)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
