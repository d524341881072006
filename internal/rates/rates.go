package rates

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Key identifies a metal/purity category.
type Key string

const (
	Gold24 Key = "24KT"
	Gold22 Key = "22KT"
	Gold18 Key = "18KT"
	Silver Key = "Silver"
)

// DisplayOrder is the order in which categories are reported.
var DisplayOrder = []Key{Gold24, Gold22, Gold18, Silver}

// ParseKey maps a raw token such as "24", "22kt" or "silver" to a Key.
func ParseKey(raw string) (Key, bool) {
	token := strings.ToUpper(strings.Join(strings.Fields(raw), ""))
	token = strings.TrimSuffix(token, "ARAT")
	token = strings.TrimSuffix(token, "KT")
	token = strings.TrimSuffix(token, "K")

	switch token {
	case "24":
		return Gold24, true
	case "22":
		return Gold22, true
	case "18":
		return Gold18, true
	case "SILVER":
		return Silver, true
	}
	return "", false
}

// ValidValue reports whether v is a positive price made of digits only.
func ValidValue(v string) bool {
	if v == "" {
		return false
	}
	nonZero := false
	for _, r := range v {
		if r < '0' || r > '9' {
			return false
		}
		if r != '0' {
			nonZero = true
		}
	}
	return nonZero
}

// Snapshot is an immutable set of rate observations from one fetch.
type Snapshot struct {
	values map[Key]string
}

// Len returns the number of recognised categories.
func (s Snapshot) Len() int { return len(s.values) }

// IsEmpty reports whether no category was recognised.
func (s Snapshot) IsEmpty() bool { return len(s.values) == 0 }

// Get returns the value recorded for key.
func (s Snapshot) Get(key Key) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Keys lists the present categories in display order.
func (s Snapshot) Keys() []Key {
	keys := make([]Key, 0, len(s.values))
	for _, k := range DisplayOrder {
		if _, ok := s.values[k]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// Map returns a copy of the underlying mapping.
func (s Snapshot) Map() map[Key]string {
	out := make(map[Key]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Equal compares two snapshots key by key. A missing key on either side is a difference.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s.values) != len(other.values) {
		return false
	}
	for k, v := range s.values {
		if ov, ok := other.values[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// String renders the snapshot as "24KT=11250 22KT=10310".
func (s Snapshot) String() string {
	parts := make([]string, 0, len(s.values))
	for _, k := range s.Keys() {
		parts = append(parts, fmt.Sprintf("%s=%s", k, s.values[k]))
	}
	return strings.Join(parts, " ")
}

// MarshalJSON encodes the snapshot as a plain object.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	if s.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.values)
}

// UnmarshalJSON decodes a plain object, rejecting unknown categories and non-numeric values.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	b := NewBuilder()
	for k, v := range raw {
		key, ok := ParseKey(k)
		if !ok {
			return fmt.Errorf("unknown rate category %q", k)
		}
		if !b.Add(key, v) {
			return fmt.Errorf("invalid value %q for %s", v, key)
		}
	}
	*s = b.Snapshot()
	return nil
}

// Builder accumulates observations; the first value seen for a key wins.
type Builder struct {
	values map[Key]string
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{values: make(map[Key]string)}
}

// Add records value for key unless the key is already present or the value is invalid.
// It reports whether the value was accepted.
func (b *Builder) Add(key Key, value string) bool {
	if _, seen := b.values[key]; seen {
		return false
	}
	if !ValidValue(value) {
		return false
	}
	b.values[key] = value
	return true
}

// Snapshot returns an immutable copy of the accumulated values.
func (b *Builder) Snapshot() Snapshot {
	values := make(map[Key]string, len(b.values))
	for k, v := range b.values {
		values[k] = v
	}
	return Snapshot{values: values}
}

// FromMap builds a snapshot from a plain mapping, dropping invalid entries.
func FromMap(m map[Key]string) Snapshot {
	b := NewBuilder()
	for _, k := range DisplayOrder {
		if v, ok := m[k]; ok {
			b.Add(k, v)
		}
	}
	return b.Snapshot()
}
