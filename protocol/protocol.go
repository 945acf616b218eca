// Package protocol implements the length-prefixed frame format spoken on a chemrpc socket.
//
// Every message is a single frame: a 4-byte big-endian unsigned length followed by exactly
// that many bytes of UTF-8 JSON. There is no magic, version or checksum. The receiver reads
// the header first to learn the payload length, then accumulates exactly that many bytes.
// A stream socket may hand back a frame in arbitrary pieces, so one Read is never assumed
// to return a whole frame.
//
// Frame format:
//
//	0         4
//	┌─────────┬──────────────────────┐
//	│ length  │  payload ...         │
//	│ uint32  │  length bytes (JSON) │
//	└─────────┴──────────────────────┘
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the size of the length prefix in bytes.
const HeaderSize = 4

// DefaultMaxPayloadBytes bounds a single frame unless the caller picks another limit.
const DefaultMaxPayloadBytes = 16 * 1024 * 1024

var (
	ErrShortHeader     = errors.New("protocol: short frame header")
	ErrTruncatedFrame  = errors.New("protocol: truncated frame")
	ErrPayloadTooLarge = errors.New("protocol: payload too large")
)

// FramingError reports a malformed or truncated frame. A connection that produced
// one is no longer in a known position in the byte stream and must be closed.
type FramingError struct {
	Op       string // "decode header", "read payload", "write frame"
	Declared uint32 // Declared payload length, when known
	Got      int    // Bytes actually accumulated before the failure
	Err      error  // One of the sentinels above, possibly wrapping an io error
}

func (e *FramingError) Error() string {
	switch {
	case errors.Is(e.Err, ErrTruncatedFrame):
		return fmt.Sprintf("%s: %v (got %d of %d bytes)", e.Op, e.Err, e.Got, e.Declared)
	case errors.Is(e.Err, ErrPayloadTooLarge):
		return fmt.Sprintf("%s: %v (%d bytes)", e.Op, e.Err, e.Declared)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *FramingError) Unwrap() error { return e.Err }

// IsFramingError reports whether err is, or wraps, a *FramingError.
func IsFramingError(err error) bool {
	var fe *FramingError
	return errors.As(err, &fe)
}

// Limits constrains how much memory a single decoded frame may claim.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: DefaultMaxPayloadBytes}
}

// Encode returns the wire form of payload: the 4-byte big-endian length followed by
// the payload itself. No padding, no compression.
func Encode(payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[:HeaderSize], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf
}

// DecodeHeader parses the first 4 bytes of b as a big-endian payload length.
func DecodeHeader(b []byte) (uint32, error) {
	if len(b) < HeaderSize {
		return 0, &FramingError{Op: "decode header", Got: len(b), Err: ErrShortHeader}
	}
	return binary.BigEndian.Uint32(b[:HeaderSize]), nil
}

// ReadPayload reads exactly length bytes from r. It keeps reading across short reads and
// only gives up when the source is closed, in which case it fails with a truncated-frame
// FramingError rather than handing back a partial payload.
func ReadPayload(r io.Reader, length uint32) ([]byte, error) {
	payload := make([]byte, length)
	n, err := io.ReadFull(r, payload)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &FramingError{Op: "read payload", Declared: length, Got: n, Err: ErrTruncatedFrame}
		}
		// Socket-level failures (deadline, reset) are not framing problems; let the
		// transport classify them.
		return nil, err
	}
	return payload, nil
}

// ReadFrame reads one complete frame from r using the default limits.
func ReadFrame(r io.Reader) ([]byte, error) {
	return ReadFrameLimit(r, DefaultLimits())
}

// ReadFrameLimit reads one complete frame (header, then exactly length payload bytes).
//
// A clean io.EOF before the first header byte means the peer closed the stream between
// frames and is returned as-is. EOF in the middle of the header or payload is a
// FramingError.
func ReadFrameLimit(r io.Reader, limits Limits) ([]byte, error) {
	// Step 1: Read the fixed 4-byte header
	var header [HeaderSize]byte
	n, err := io.ReadFull(r, header[:])
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &FramingError{Op: "decode header", Got: n, Err: ErrShortHeader}
		}
		return nil, err
	}

	// Step 2: Parse and bound the declared length
	length, err := DecodeHeader(header[:])
	if err != nil {
		return nil, err
	}
	if limits.MaxPayloadBytes > 0 && length > limits.MaxPayloadBytes {
		return nil, &FramingError{Op: "decode header", Declared: length, Err: ErrPayloadTooLarge}
	}

	// Step 3: Accumulate exactly length bytes
	return ReadPayload(r, length)
}

// WriteFrame writes header and payload to w in a single Write call so that concurrent
// writers holding a lock per frame never interleave partial frames.
func WriteFrame(w io.Writer, payload []byte) error {
	return WriteFrameLimit(w, payload, DefaultLimits())
}

// WriteFrameLimit is WriteFrame with an explicit payload limit.
func WriteFrameLimit(w io.Writer, payload []byte, limits Limits) error {
	if uint64(len(payload)) > uint64(^uint32(0)) ||
		(limits.MaxPayloadBytes > 0 && uint64(len(payload)) > uint64(limits.MaxPayloadBytes)) {
		return &FramingError{Op: "write frame", Declared: uint32(min(uint64(len(payload)), uint64(^uint32(0)))), Err: ErrPayloadTooLarge}
	}
	_, err := w.Write(Encode(payload))
	return err
}
