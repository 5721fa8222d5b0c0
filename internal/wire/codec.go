// Package wire holds the on-the-wire plumbing shared by the gateway and its
// clients: the CBOR gRPC codec, hand-written service descriptors for the
// kritor event and reverse services, and connection metadata helpers.
package wire

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype the gateway speaks
// ("application/grpc+cbor").
const CodecName = "cbor"

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	// keep sub-second precision for stored expiry times
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("wire: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("wire: CBOR decoder initialization failed: " + err.Error())
	}

	encoding.RegisterCodec(Codec{})
}

// Marshal encodes v using deterministic CBOR. Command payloads (the Buf field
// of command envelopes) are encoded with it.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v. Unknown fields are ignored.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Codec implements encoding.Codec for gRPC.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error)      { return Marshal(v) }
func (Codec) Unmarshal(data []byte, v any) error { return Unmarshal(data, v) }
func (Codec) Name() string                       { return CodecName }
