package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Key identifies one cached unit of data. It is an ordered sequence of
// primitive parts, e.g. K("agent", 7) or K("agents"). Equality is structural:
// two keys are equal when their canonical part encodings match, regardless of
// how the key values were constructed.
//
// Parts should be simple scalars (strings, integers, booleans). String parts
// must not contain the ':' separator, otherwise distinct keys may collide.
type Key []any

// K builds a Key from the given parts.
//
// Example:
//
//	K("agents")      // the aggregate list
//	K("agent", 7)    // a single item
func K(parts ...any) Key {
	return Key(parts)
}

// String returns the canonical string form of the key, with parts joined by
// ':'. The encoding is deterministic, so it is safe to use as a map index.
//
// Example: K("agent", 7).String() == "agent:7"
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, p := range k {
		parts[i] = formatPart(p)
	}
	return strings.Join(parts, ":")
}

// Equal reports whether two keys are structurally equal.
func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if formatPart(k[i]) != formatPart(other[i]) {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix matches the leading parts of k.
// Every key is a prefix of itself. Matching is part-wise, so K("agent")
// matches K("agent", 7) but not K("agents").
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if formatPart(prefix[i]) != formatPart(k[i]) {
			return false
		}
	}
	return true
}

// formatPart encodes a single key part canonically. Integer widths collapse to
// a single representation so K("agent", int32(7)) and K("agent", int64(7))
// name the same entry.
func formatPart(p any) string {
	switch v := p.(type) {
	case string:
		return v
	case int:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
