/*
Package hashid implements the fixed-width content identifiers ROSS uses
throughout the object graph and commit history: a 16-byte random ID for
objects, branches and repositories, and a 20-byte SHA-1 digest for commits.

Both types are raw byte arrays with a lexicographic total order, so a
slice of them sorts the same way their hex or binary encodings do, which
is what lets the storage layer (pkg/storage) use them as key prefixes for
range scans.
*/
package hashid

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Hash16 is a 16-byte identifier: object, branch and repository identity.
type Hash16 [16]byte

// Hash20 is a 20-byte identifier: a SHA-1 digest, used for commit IDs.
type Hash20 [20]byte

// MinHash16 and MaxHash16 bound the lexicographic order of Hash16 values.
var (
	MinHash16 = Hash16{}
	MaxHash16 = Hash16{
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	}
)

// MinHash20 and MaxHash20 bound the lexicographic order of Hash20 values.
var (
	MinHash20 = Hash20{}
	MaxHash20 = Hash20{
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	}
)

// NewRandomHash16 generates a fresh random 16-byte identifier. It uses
// google/uuid's RNG (crypto/rand; the package's random pool is not
// enabled) rather than calling crypto/rand directly, matching how the
// rest of the ecosystem mints random identifiers.
func NewRandomHash16() Hash16 {
	return Hash16(uuid.New())
}

// ParseHash16 parses a lowercase 32-character hex string into a Hash16.
func ParseHash16(s string) (Hash16, error) {
	var h Hash16
	if len(s) != len(h)*2 {
		return h, fmt.Errorf("hashid: Hash16 hex must be %d chars, got %d", len(h)*2, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("hashid: invalid Hash16 hex %q: %w", s, err)
	}
	copy(h[:], b)
	return h, nil
}

// ParseHash20 parses a lowercase 40-character hex string into a Hash20.
func ParseHash20(s string) (Hash20, error) {
	var h Hash20
	if len(s) != len(h)*2 {
		return h, fmt.Errorf("hashid: Hash20 hex must be %d chars, got %d", len(h)*2, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("hashid: invalid Hash20 hex %q: %w", s, err)
	}
	copy(h[:], b)
	return h, nil
}

// String returns the lowercase hex encoding.
func (h Hash16) String() string { return hex.EncodeToString(h[:]) }

// String returns the lowercase hex encoding.
func (h Hash20) String() string { return hex.EncodeToString(h[:]) }

// Bytes returns the raw binary form. The receiver is a value, so the
// slice aliases a copy of h: mutating it does not change h.
func (h Hash16) Bytes() []byte { return h[:] }

// Bytes returns the raw binary form.
func (h Hash20) Bytes() []byte { return h[:] }

// Compare returns -1, 0 or 1 comparing the lexicographic byte order of a
// and b, which is also their hex and binary sort order.
func (h Hash16) Compare(other Hash16) int {
	for i := range h {
		if h[i] != other[i] {
			if h[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Compare returns -1, 0 or 1 comparing the lexicographic byte order.
func (h Hash20) Compare(other Hash20) int {
	for i := range h {
		if h[i] != other[i] {
			if h[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Less reports whether h sorts before other; convenient for sort.Slice and
// tree key comparators (pkg/dropmap's google/btree index, for instance).
func (h Hash16) Less(other Hash16) bool { return h.Compare(other) < 0 }

// Less reports whether h sorts before other.
func (h Hash20) Less(other Hash20) bool { return h.Compare(other) < 0 }

// IsZero reports whether h is the all-zero identifier.
func (h Hash16) IsZero() bool { return h == Hash16{} }

// IsZero reports whether h is the all-zero identifier.
func (h Hash20) IsZero() bool { return h == Hash20{} }

// MarshalText implements encoding.TextMarshaler so Hash16 round-trips
// through JSON as a plain hex string.
func (h Hash16) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash16) UnmarshalText(b []byte) error {
	parsed, err := ParseHash16(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash20) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash20) UnmarshalText(b []byte) error {
	parsed, err := ParseHash20(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
