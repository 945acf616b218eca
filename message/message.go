// Package message defines the JSON-RPC 2.0 envelopes exchanged between client and service.
//
// An envelope is the JSON object carried inside one protocol frame. It is independent of
// the framing: the protocol package only ever sees opaque payload bytes.
//
//   - Request:  {"jsonrpc":"2.0","id":7,"method":"getChemicalJson","params":{...}}
//     A request without "id" is a notification and gets no reply.
//   - Response: {"jsonrpc":"2.0","id":7,"result":...} or {"jsonrpc":"2.0","id":7,"error":{...}}
//     Exactly one of result / error is present.
package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Version is the only accepted value of the "jsonrpc" member.
const Version = "2.0"

// ID is a request correlation id. JSON-RPC allows numbers and strings; both round-trip
// in their original JSON type.
type ID struct {
	num   int64
	str   string
	isStr bool
}

// IntID returns a numeric correlation id.
func IntID(n int64) ID { return ID{num: n} }

// StringID returns a string correlation id.
func StringID(s string) ID { return ID{str: s, isStr: true} }

// IsString reports whether the id was sent as a JSON string.
func (id ID) IsString() bool { return id.isStr }

func (id ID) String() string {
	if id.isStr {
		return strconv.Quote(id.str)
	}
	return strconv.FormatInt(id.num, 10)
}

func (id ID) MarshalJSON() ([]byte, error) {
	if id.isStr {
		return json.Marshal(id.str)
	}
	return []byte(strconv.FormatInt(id.num, 10)), nil
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("message: id must be a number or string: %w", err)
	}
	v, err := n.Int64()
	if err != nil {
		return fmt.Errorf("message: id must be an integer: %w", err)
	}
	*id = IntID(v)
	return nil
}

// Request is the client → service envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// NewRequest builds a request envelope. A nil id makes it a notification.
// params must marshal to a JSON object; nil becomes {}.
func NewRequest(id *ID, method string, params any) (*Request, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Request{JSONRPC: Version, ID: id, Method: method, Params: raw}, nil
}

// IsNotification reports whether no reply is expected.
func (r *Request) IsNotification() bool { return r.ID == nil }

// Validate checks the members every request must carry.
func (r *Request) Validate() error {
	if r.JSONRPC != Version {
		return fmt.Errorf("message: unsupported jsonrpc version %q", r.JSONRPC)
	}
	if r.Method == "" {
		return errors.New("message: request missing required field: method")
	}
	if len(r.Params) > 0 {
		p := bytes.TrimSpace(r.Params)
		if !bytes.Equal(p, []byte("null")) && (len(p) == 0 || p[0] != '{') {
			return errors.New("message: params must be a JSON object")
		}
	}
	return nil
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return json.RawMessage("{}"), nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("message: marshal params: %w", err)
	}
	if bytes.Equal(b, []byte("null")) {
		return json.RawMessage("{}"), nil
	}
	if len(b) == 0 || b[0] != '{' {
		return nil, fmt.Errorf("message: params must marshal to a JSON object, got %s", b)
	}
	return b, nil
}

// Response is the service → client envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// NewResult builds a success response for id.
func NewResult(id *ID, result any) (*Response, error) {
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("message: marshal result: %w", err)
	}
	return &Response{JSONRPC: Version, ID: id, Result: b}, nil
}

// NewErrorResponse builds a failure response for id.
func NewErrorResponse(id *ID, rpcErr *Error) *Response {
	return &Response{JSONRPC: Version, ID: id, Error: rpcErr}
}

// Validate enforces the envelope invariants: version 2.0 and exactly one of result/error.
// A literal JSON null result counts as present.
func (r *Response) Validate() error {
	if r.JSONRPC != Version {
		return fmt.Errorf("message: unsupported jsonrpc version %q", r.JSONRPC)
	}
	hasResult := len(r.Result) > 0
	hasError := r.Error != nil
	switch {
	case hasResult && hasError:
		return errors.New("message: response carries both result and error")
	case !hasResult && !hasError:
		return errors.New("message: response missing result and error")
	}
	return nil
}
