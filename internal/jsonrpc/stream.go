package jsonrpc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"

	"github.com/cockroachdb/errors"
)

// DefaultMaxMessageBytes bounds a single inbound line.
const DefaultMaxMessageBytes = 4 * 1024 * 1024

// ErrMessageTooLarge is returned when a line exceeds the configured limit.
// The stream cannot be resynchronized after it.
var ErrMessageTooLarge = errors.New("jsonrpc: message exceeds maximum size")

// ErrMarshal marks Encode failures that happened before anything was written.
var ErrMarshal = errors.New("jsonrpc: marshal failed")

// Decoder reads newline-delimited messages.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder creates a decoder over r. maxBytes <= 0 selects DefaultMaxMessageBytes.
func NewDecoder(r io.Reader, maxBytes int) *Decoder {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMessageBytes
	}
	// The scanner limit is the larger of maxBytes and the initial capacity.
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(64*1024, maxBytes)), maxBytes)
	return &Decoder{scanner: scanner}
}

// Next returns the next non-blank line. It returns io.EOF at end of input.
// The returned slice is owned by the caller.
func (d *Decoder) Next() ([]byte, error) {
	for d.scanner.Scan() {
		line := bytes.TrimSpace(d.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		return bytes.Clone(line), nil
	}
	if err := d.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, ErrMessageTooLarge
		}
		return nil, errors.Wrap(err, "jsonrpc: read")
	}
	return nil, io.EOF
}

// Encoder writes newline-delimited messages.
type Encoder struct {
	w io.Writer
}

// NewEncoder creates an encoder over w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes v as one line with a single Write call.
// A message that fails to marshal writes nothing.
func (e *Encoder) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "jsonrpc: marshal"), ErrMarshal)
	}
	data = append(data, '\n')
	if _, err := e.w.Write(data); err != nil {
		return errors.Wrap(err, "jsonrpc: write")
	}
	return nil
}
