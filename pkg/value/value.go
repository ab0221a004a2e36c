/*
Package value implements PrimitiveValue, the tagged scalar stored in every
field of every ROSS object: null, true, false, an unsigned 32-bit integer,
a 64-bit float, a 16-byte hash, or a string.

The type exposes two encodings from the same value:

  - a human-readable, untagged form used by the session protocol and any
    JSON-speaking client, where a client just sees null / a bool / a number /
    a string;
  - a tagged binary form used by the storage layer, where a leading
    variant byte disambiguates without a schema.

Equality treats U32(n) and F64(n) as equal for the same numeric value,
and NaN can never be constructed: F64(math.NaN()) collapses to Null.
*/
package value

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/rossdb/ross/pkg/hashid"
)

// Kind tags a Value's active variant.
type Kind byte

const (
	KindNull Kind = iota
	KindTrue
	KindFalse
	KindU32
	KindF64
	KindHash16
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindTrue:
		return "true"
	case KindFalse:
		return "false"
	case KindU32:
		return "u32"
	case KindF64:
		return "f64"
	case KindHash16:
		return "hash16"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("Kind(%d)", byte(k))
	}
}

// Value is a PrimitiveValue: exactly one of the seven variants above is
// active, selected by Kind.
type Value struct {
	kind Kind
	u32  uint32
	f64  float64
	hash hashid.Hash16
	str  string
}

// Null is the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool constructs True or False.
func Bool(b bool) Value {
	if b {
		return Value{kind: KindTrue}
	}
	return Value{kind: KindFalse}
}

// U32 constructs a U32 value.
func U32(n uint32) Value { return Value{kind: KindU32, u32: n} }

// F64 constructs an F64 value. A non-finite input (NaN or +/-Inf)
// collapses to Null, so NaN can never enter a state.
func F64(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Null()
	}
	return Value{kind: KindF64, f64: f}
}

// Hash16 constructs a Hash16-valued scalar.
func Hash16(h hashid.Hash16) Value { return Value{kind: KindHash16, hash: h} }

// String constructs a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Kind reports the active variant.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is Null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean value and true if v is True or False.
func (v Value) AsBool() (bool, bool) {
	switch v.kind {
	case KindTrue:
		return true, true
	case KindFalse:
		return false, true
	default:
		return false, false
	}
}

// AsU32 returns the stored integer and true if v is U32.
func (v Value) AsU32() (uint32, bool) {
	if v.kind == KindU32 {
		return v.u32, true
	}
	return 0, false
}

// AsF64 returns the stored float and true if v is F64.
func (v Value) AsF64() (float64, bool) {
	if v.kind == KindF64 {
		return v.f64, true
	}
	return 0, false
}

// AsHash16 returns the stored hash and true if v is Hash16.
func (v Value) AsHash16() (hashid.Hash16, bool) {
	if v.kind == KindHash16 {
		return v.hash, true
	}
	return hashid.Hash16{}, false
}

// AsString returns the stored string and true if v is String.
func (v Value) AsString() (string, bool) {
	if v.kind == KindString {
		return v.str, true
	}
	return "", false
}

// numeric returns (value, true) if v is U32 or F64, normalized to float64
// for the purposes of the U32/F64 coercion rule in Equal.
func (v Value) numeric() (float64, bool) {
	switch v.kind {
	case KindU32:
		return float64(v.u32), true
	case KindF64:
		return v.f64, true
	default:
		return 0, false
	}
}

// Equal is structural equality for like kinds, plus
// U32(n) == F64(n as f64) in both directions. NaN can never
// participate because F64 rejects it at construction.
func (v Value) Equal(other Value) bool {
	if vn, ok := v.numeric(); ok {
		if on, ok := other.numeric(); ok {
			return vn == on
		}
		return false
	}
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull, KindTrue, KindFalse:
		return true
	case KindHash16:
		return v.hash == other.hash
	case KindString:
		return v.str == other.str
	default:
		return false
	}
}

// --- human-readable (untagged) JSON encoding ---

// MarshalJSON implements the untagged form: a client sees null, a bool, a
// number, or a string (hash16 values round-trip as their hex string).
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindTrue:
		return []byte("true"), nil
	case KindFalse:
		return []byte("false"), nil
	case KindU32:
		return []byte(strconv.FormatUint(uint64(v.u32), 10)), nil
	case KindF64:
		return json.Marshal(v.f64)
	case KindHash16:
		return json.Marshal(v.hash.String())
	case KindString:
		return json.Marshal(v.str)
	default:
		return nil, fmt.Errorf("value: unknown kind %v", v.kind)
	}
}

// UnmarshalJSON decodes the untagged form. A 32-character string that
// parses as hex becomes a Hash16; any other string stays a String. A bare
// JSON number becomes U32 if it is a non-negative integer that fits in 32
// bits, else F64. These collapses make the untagged form lossy for
// ambiguous inputs, which is why only the session protocol uses it;
// persistence goes through the tagged binary form.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("value: decode: %w", err)
	}
	switch t := raw.(type) {
	case nil:
		*v = Null()
	case bool:
		*v = Bool(t)
	case json.Number:
		if n, err := strconv.ParseUint(t.String(), 10, 32); err == nil {
			*v = U32(uint32(n))
			return nil
		}
		f, err := t.Float64()
		if err != nil {
			return fmt.Errorf("value: number %q: %w", t.String(), err)
		}
		*v = F64(f)
	case string:
		if h, err := hashid.ParseHash16(t); err == nil {
			*v = Hash16(h)
			return nil
		}
		*v = String(t)
	default:
		return fmt.Errorf("value: unsupported JSON shape %T", raw)
	}
	return nil
}

// --- tagged binary encoding ---

// MarshalBinary implements the tagged form used by the storage layer: a
// leading variant byte in Kind declaration order, followed by a fixed
// or length-prefixed payload.
func (v Value) MarshalBinary() ([]byte, error) {
	switch v.kind {
	case KindNull, KindTrue, KindFalse:
		return []byte{byte(v.kind)}, nil
	case KindU32:
		buf := make([]byte, 5)
		buf[0] = byte(v.kind)
		binary.LittleEndian.PutUint32(buf[1:], v.u32)
		return buf, nil
	case KindF64:
		buf := make([]byte, 9)
		buf[0] = byte(v.kind)
		binary.LittleEndian.PutUint64(buf[1:], math.Float64bits(v.f64))
		return buf, nil
	case KindHash16:
		buf := make([]byte, 1+len(v.hash))
		buf[0] = byte(v.kind)
		copy(buf[1:], v.hash[:])
		return buf, nil
	case KindString:
		strBytes := []byte(v.str)
		head := make([]byte, 1+binary.MaxVarintLen64)
		head[0] = byte(v.kind)
		n := binary.PutUvarint(head[1:], uint64(len(strBytes)))
		buf := make([]byte, 1+n+len(strBytes))
		copy(buf, head[:1+n])
		copy(buf[1+n:], strBytes)
		return buf, nil
	default:
		return nil, fmt.Errorf("value: unknown kind %v", v.kind)
	}
}

// UnmarshalBinaryPrefix decodes a single Value from the start of data and
// returns the number of bytes consumed, so a caller can decode a packed
// sequence of values without a re-slicing round trip per item.
// UnmarshalBinary is built on it.
func UnmarshalBinaryPrefix(data []byte) (Value, int, error) {
	if len(data) == 0 {
		return Value{}, 0, fmt.Errorf("value: empty buffer")
	}
	kind := Kind(data[0])
	switch kind {
	case KindNull:
		return Null(), 1, nil
	case KindTrue:
		return Bool(true), 1, nil
	case KindFalse:
		return Bool(false), 1, nil
	case KindU32:
		if len(data) < 5 {
			return Value{}, 0, fmt.Errorf("value: truncated u32")
		}
		return U32(binary.LittleEndian.Uint32(data[1:5])), 5, nil
	case KindF64:
		if len(data) < 9 {
			return Value{}, 0, fmt.Errorf("value: truncated f64")
		}
		bits := binary.LittleEndian.Uint64(data[1:9])
		return F64(math.Float64frombits(bits)), 9, nil
	case KindHash16:
		if len(data) < 1+16 {
			return Value{}, 0, fmt.Errorf("value: truncated hash16")
		}
		var h hashid.Hash16
		copy(h[:], data[1:17])
		return Hash16(h), 17, nil
	case KindString:
		strLen, n := binary.Uvarint(data[1:])
		if n <= 0 {
			return Value{}, 0, fmt.Errorf("value: bad string length varint")
		}
		start := 1 + n
		end := start + int(strLen)
		if end > len(data) {
			return Value{}, 0, fmt.Errorf("value: truncated string")
		}
		return String(string(data[start:end])), end, nil
	default:
		return Value{}, 0, fmt.Errorf("value: unknown binary tag %d", kind)
	}
}

// UnmarshalBinary decodes a Value that occupies the entire buffer.
func (v *Value) UnmarshalBinary(data []byte) error {
	decoded, n, err := UnmarshalBinaryPrefix(data)
	if err != nil {
		return err
	}
	if n != len(data) {
		return fmt.Errorf("value: %d trailing bytes after value", len(data)-n)
	}
	*v = decoded
	return nil
}
