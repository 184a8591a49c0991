// Copyright 2026 The Clstr Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode encodes with Core Deterministic Encoding (RFC 8949 §4.2):
// sorted map keys, smallest integer widths, no indefinite-length
// items.
var encMode cbor.EncMode

// decMode accepts standard CBOR. Unknown fields are ignored so old
// clients survive new response fields.
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// ref.UserID, ref.MessageID, ref.Domain and friends carry their
	// value in an unexported field and expose it via MarshalText.
	// Without this setting they would encode as empty CBOR maps.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	// Timestamps keep nanosecond precision on the wire. The default
	// integer epoch encoding truncates to whole seconds, which would
	// corrupt history pagination: the next_cursor a client hands back
	// must compare equal to the stored created_at it came from.
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// The protocol only ever uses string map keys. When decoding
		// into an any-typed target the decoder must pick a concrete
		// map type; the CBOR default map[any]any breaks encoding/json
		// interop in the CLI, so force map[string]any. Struct targets
		// are unaffected.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		// Mirror of TextMarshaler above: ref types decode from CBOR
		// text strings through UnmarshalText.
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to deterministic CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encoder is a CBOR stream encoder. Type alias so consumers import
// only lib/codec, not the CBOR library directly.
type Encoder = cbor.Encoder

// Decoder is a CBOR stream decoder.
type Decoder = cbor.Decoder

// RawMessage is a raw encoded CBOR value, used to defer decoding of
// action-specific request fields and to forward stored payloads
// without a re-encode.
type RawMessage = cbor.RawMessage

// NewEncoder returns a CBOR encoder writing to w with the standard
// deterministic configuration.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a CBOR decoder reading from r with the standard
// decoding configuration.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}
