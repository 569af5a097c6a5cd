package hunt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"hunter/pkg/model"
)

// Kind enumerates the value types a match record may hold
type Kind int

const (
	KindFloat Kind = iota
	KindInt
	KindBool
	KindDate
	KindString
)

// Value is one scalar entry of a match record
type Value struct {
	kind Kind
	f    float64
	i    int64
	b    bool
	t    time.Time
	s    string
}

func Float(v float64) Value { return Value{kind: KindFloat, f: v} }
func Int(v int64) Value { return Value{kind: KindInt, i: v} }
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }
func Date(v time.Time) Value { return Value{kind: KindDate, t: v} }
func String(v string) Value { return Value{kind: KindString, s: v} }
func (v Value) Kind() Kind { return v.kind }

// String formats the value for tables and logs
func (v Value) String() string {
	switch v.kind {
	case KindFloat:
		if math.IsInf(v.f, 1) {
			return "inf"
		}
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindDate:
		return v.t.Format(model.DateLayout)
	default:
		return v.s
	}
}

// MarshalJSON encodes the value as its natural JSON scalar. Infinite floats
// have no JSON form and are written as the string "inf".
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindFloat:
		if math.IsInf(v.f, 0) || math.IsNaN(v.f) {
			return json.Marshal(v.String())
		}
		return json.Marshal(v.f)
	case KindInt:
		return json.Marshal(v.i)
	case KindBool:
		return json.Marshal(v.b)
	case KindDate:
		return json.Marshal(v.t.Format(model.DateLayout))
	default:
		return json.Marshal(v.s)
	}
}

// Match is an analyzer's record of why a pattern fired. Keys keep their
// insertion order for display. A nil *Match means no match.
type Match struct {
	keys   []string
	values map[string]Value
}

// NewMatch creates an empty record
func NewMatch() *Match {
	return &Match{values: make(map[string]Value)}
}

// Set stores a value, keeping the key's first position if it already exists
func (m *Match) Set(key string, v Value) *Match {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
	return m
}

func (m *Match) SetFloat(key string, v float64) *Match { return m.Set(key, Float(v)) }
func (m *Match) SetInt(key string, v int) *Match { return m.Set(key, Int(int64(v))) }
func (m *Match) SetBool(key string, v bool) *Match { return m.Set(key, Bool(v)) }
func (m *Match) SetDate(key string, v time.Time) *Match { return m.Set(key, Date(v)) }
func (m *Match) SetString(key string, v string) *Match { return m.Set(key, String(v)) }

// Get returns the value stored under key
func (m *Match) Get(key string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Float returns a float entry; int entries are widened
func (m *Match) Float(key string) (float64, bool) {
	v, ok := m.Get(key)
	switch {
	case !ok:
		return 0, false
	case v.kind == KindFloat:
		return v.f, true
	case v.kind == KindInt:
		return float64(v.i), true
	}
	return 0, false
}

// Int returns an int entry
func (m *Match) Int(key string) (int64, bool) {
	v, ok := m.Get(key)
	if !ok || v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// Bool returns a bool entry
func (m *Match) Bool(key string) (bool, bool) {
	v, ok := m.Get(key)
	if !ok || v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Date returns a date entry
func (m *Match) Date(key string) (time.Time, bool) {
	v, ok := m.Get(key)
	if !ok || v.kind != KindDate {
		return time.Time{}, false
	}
	return v.t, true
}

// Str returns a string entry
func (m *Match) Str(key string) (string, bool) {
	v, ok := m.Get(key)
	if !ok || v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// Keys returns the keys in insertion order
func (m *Match) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Len returns the number of entries
func (m *Match) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Empty reports whether the record carries no entries
func (m *Match) Empty() bool { return m.Len() == 0 }

// String renders "key=value" pairs in order
func (m *Match) String() string {
	var buf bytes.Buffer
	for i, k := range m.Keys() {
		if i > 0 {
			buf.WriteByte(' ')
		}
		fmt.Fprintf(&buf, "%s=%s", k, m.values[k])
	}
	return buf.String()
}

// MarshalJSON writes an object with keys in insertion order
func (m *Match) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(k)
		buf.Write(key)
		buf.WriteByte(':')
		val, err := m.values[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
