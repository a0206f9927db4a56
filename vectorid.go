package hybridann

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// VectorID is an opaque 32-byte content hash identifying a vector.
// Equality and hashing are over the full 32 bytes; the display form only
// ever shows the first 8 hex characters to keep logs readable.
type VectorID [32]byte

// NewVectorID constructs a VectorID from an entropy source (a random v4
// UUID), matching the teacher's reliance on github.com/google/uuid for
// identifier generation.
func NewVectorID() VectorID {
	return VectorIDFromString(uuid.NewString())
}

// VectorIDFromString derives a stable VectorID from a caller-supplied
// string via SHA-256, so the same input always yields the same id.
func VectorIDFromString(s string) VectorID {
	return VectorID(sha256.Sum256([]byte(s)))
}

// String returns the display form "vec_<first 8 hex chars>".
func (v VectorID) String() string {
	return "vec_" + hex.EncodeToString(v[:4])
}

// Hex returns the full 64-character hex encoding of the id.
func (v VectorID) Hex() string {
	return hex.EncodeToString(v[:])
}

// IsZero reports whether v is the zero value (never a valid assigned id).
func (v VectorID) IsZero() bool {
	return v == VectorID{}
}

// MarshalBinary encodes the id as its raw 32 bytes.
func (v VectorID) MarshalBinary() ([]byte, error) {
	out := make([]byte, 32)
	copy(out, v[:])
	return out, nil
}

// UnmarshalBinary decodes the id from its raw 32 bytes.
func (v *VectorID) UnmarshalBinary(data []byte) error {
	if len(data) != 32 {
		return WrapError("vectorid_unmarshal", ErrCorruption)
	}
	copy(v[:], data)
	return nil
}

// MarshalText implements encoding.TextMarshaler using the hex form, so
// VectorID can be used directly as a JSON object key or value.
func (v VectorID) MarshalText() ([]byte, error) {
	return []byte(v.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler from the hex form.
func (v *VectorID) UnmarshalText(text []byte) error {
	decoded, err := hex.DecodeString(string(text))
	if err != nil {
		return WrapError("vectorid_unmarshal_text", ErrCorruption)
	}
	return v.UnmarshalBinary(decoded)
}
