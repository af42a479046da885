// Package wire implements the self-delimiting tagged binary encoding used
// on the wire between the daemon and its clients, and the RPC framing built
// on top of it (request/response/notification tuples).
//
// The tagged encoding itself is CBOR (RFC 8949): it already is a
// self-delimiting binary format supporting nil, bool, signed/unsigned
// integers, floats, strings, byte strings, arrays and maps — the exact
// primitive set the wire format needs — so this package is a thin,
// purpose-built layer over github.com/fxamacker/cbor/v2 rather than a
// bespoke encoder.
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// MessageSizeMax is the largest encoded frame Encode will produce: encoding
// a value that would exceed it is an error. Decode does not check frames
// against this bound.
const MessageSizeMax = 16 * 1024 * 1024

// ErrTooLarge is returned by Encode when the encoded value would exceed
// MessageSizeMax.
var ErrTooLarge = errors.New("wire: encoded message exceeds size limit")

// ErrNeedMoreInput indicates the supplied bytes are a valid but incomplete
// prefix of a frame. The caller must supply more bytes and retry; no state
// has been consumed.
var ErrNeedMoreInput = errors.New("wire: need more input")

// ErrInvalidFormat indicates the supplied bytes can never be completed into
// a valid frame.
var ErrInvalidFormat = errors.New("wire: invalid format")

var encMode = buildEncMode()
var decMode = buildDecMode()

func buildEncMode() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: bad encoder options: %v", err))
	}
	return mode
}

func buildDecMode() cbor.DecMode {
	opts := cbor.DecOptions{
		MaxArrayElements: 1 << 20,
		MaxMapPairs:      1 << 20,
		DefaultMapType:   reflect.TypeOf(map[string]any{}),
	}
	mode, err := opts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("wire: bad decoder options: %v", err))
	}
	return mode
}

// Encode serializes v into its tagged binary representation. Encoding is
// deterministic: equal input values always produce identical bytes
// (CanonicalEncOptions sorts map keys and picks the shortest-form numeric
// encodings).
func Encode(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: encode: %w", err)
	}
	if len(b) > MessageSizeMax {
		return nil, ErrTooLarge
	}
	return b, nil
}

// Decode reads one top-level value from the front of data. On success it
// returns the decoded value and the number of bytes consumed (always > 0).
// If data is a valid-so-far but incomplete prefix of an encoded value, it
// returns ErrNeedMoreInput and consumed == 0; the caller must not advance
// its read cursor. Any other malformed input returns ErrInvalidFormat.
func Decode(data []byte) (value any, consumed int, err error) {
	if len(data) == 0 {
		return nil, 0, ErrNeedMoreInput
	}
	r := bytes.NewReader(data)
	dec := decMode.NewDecoder(r)
	var v any
	if decErr := dec.Decode(&v); decErr != nil {
		if errors.Is(decErr, io.EOF) || errors.Is(decErr, io.ErrUnexpectedEOF) {
			return nil, 0, ErrNeedMoreInput
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidFormat, decErr)
	}
	// The decoder reads ahead of the value it returns, so the reader's
	// remaining length understates what is left; count the decoded bytes.
	n := dec.NumBytesRead()
	if n <= 0 {
		return nil, 0, ErrInvalidFormat
	}
	return v, n, nil
}
