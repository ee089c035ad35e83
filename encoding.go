package dircache

import "fmt"

// Encoding identifies a transform applied to a generation's bytes before
// they're written to disk. Generation 0 is always [Plain]; only aged-out
// generations (index ≥ 1) may carry another encoding.
type Encoding uint8

const (
	// Plain is the identity encoding: stored bytes equal the original
	// bytes. Always available, tag "0".
	Plain Encoding = 0

	// Lz4 frames the bytes with LZ4, tag "1". Only usable when the module
	// is built with the "lz4" build tag (see encoding_lz4.go); encoders are
	// registered at compile time, not through a runtime plugin mechanism.
	Lz4 Encoding = 1
)

// encoder transforms bytes for storage. Registered encoders must be pure
// and side-effect free; decode is intentionally not part of the contract,
// since only generation 0 is ever returned to callers and it is always
// Plain.
type encoder func(data []byte) ([]byte, error)

// encoderRegistry holds the compile-time-registered encoders. The base
// build only registers Plain; encoding_lz4.go's init (behind the "lz4"
// build tag) adds Lz4.
var encoderRegistry = map[Encoding]encoder{
	Plain: func(data []byte) ([]byte, error) { return data, nil },
}

// registerEncoder adds enc to the compile-time registry. Called only from
// init functions in build-tag-gated files; panics on a duplicate
// registration since that indicates two encoder files were compiled
// together by mistake.
func registerEncoder(tag Encoding, enc encoder) {
	if _, exists := encoderRegistry[tag]; exists {
		panic(fmt.Sprintf("dircache: encoding %d already registered", tag))
	}

	encoderRegistry[tag] = enc
}

// Serialize returns the manifest's short ASCII tag for e ("0" for Plain,
// "1" for Lz4, ...).
func (e Encoding) Serialize() string {
	return fmt.Sprintf("%d", uint8(e))
}

// deserializeEncoding parses a manifest's encoding_tag field back into an
// Encoding. Any non-numeric or unregistered tag is a [KindParseMetadata]
// error.
func deserializeEncoding(tag string) (Encoding, error) {
	if len(tag) != 1 || tag[0] < '0' || tag[0] > '9' {
		return 0, newErr(KindParseMetadata, fmt.Errorf("%w: invalid encoding tag %q", ErrParseMetadata, tag))
	}

	enc := Encoding(tag[0] - '0')

	if _, ok := encoderRegistry[enc]; !ok {
		return 0, newErr(KindParseMetadata, fmt.Errorf("%w: unregistered encoding tag %q", ErrParseMetadata, tag))
	}

	return enc, nil
}

// Encode transforms data per e's registered encoder. Plain is always
// identity; an unregistered encoding (e.g. Lz4 built without the "lz4"
// build tag) returns a [KindEncodingError].
func (e Encoding) Encode(data []byte) ([]byte, error) {
	enc, ok := encoderRegistry[e]
	if !ok {
		return nil, newErr(KindEncodingError, fmt.Errorf("%w: encoding %d not registered in this build", ErrEncodingError, e))
	}

	out, err := enc(data)
	if err != nil {
		return nil, newErr(KindEncodingError, fmt.Errorf("%w: %w", ErrEncodingError, err))
	}

	return out, nil
}
