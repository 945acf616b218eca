package message

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// CodeInvalidIdentifier is returned by the chemistry service when a molecule lookup misses.
const CodeInvalidIdentifier = -1

// Error is the "error" member of a response. It is also the error value a client call
// fails with when the service rejects a request (an application-level rejection, as
// opposed to a transport or framing failure).
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// UnmarshalJSON requires both code and message to be present; an error object
// without them is a malformed envelope, not a rejection with code 0.
func (e *Error) UnmarshalJSON(data []byte) error {
	var raw struct {
		Code    *int            `json:"code"`
		Message *string         `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Code == nil:
		return errors.New("message: error object missing code")
	case raw.Message == nil:
		return errors.New("message: error object missing message")
	}
	e.Code = *raw.Code
	e.Message = *raw.Message
	e.Data = raw.Data
	return nil
}

// NewError builds an Error without data.
func NewError(code int, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// WithData returns a copy of e carrying data marshaled as JSON. Marshal failures drop the data.
func (e *Error) WithData(data any) *Error {
	cp := *e
	if b, err := json.Marshal(data); err == nil {
		cp.Data = b
	}
	return &cp
}

func ErrParse(detail string) *Error { return NewError(CodeParseError, "Parse error: "+detail) }

func ErrInvalidRequest(detail string) *Error {
	return NewError(CodeInvalidRequest, "Invalid Request: "+detail)
}

func ErrMethodNotFound() *Error { return NewError(CodeMethodNotFound, "Method not found") }

func ErrInvalidParams(detail string) *Error {
	return NewError(CodeInvalidParams, "Invalid params: "+detail)
}

func ErrInternal(detail string) *Error { return NewError(CodeInternalError, "Internal error: "+detail) }

func ErrInvalidIdentifier() *Error {
	return NewError(CodeInvalidIdentifier, "Invalid Molecule Identifier")
}
