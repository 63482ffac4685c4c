package profile

import (
	"encoding/json"
	"slices"
	"strconv"
	"strings"
)

// Kind is the type tag of a Value. A field's declared kind is never KindNull.
type Kind int

const (
	KindNull Kind = iota
	KindNumber
	KindText
	KindEnum
	KindSet
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindEnum:
		return "enum"
	case KindSet:
		return "set"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a typed field value. The zero Value is Null (unknown).
type Value struct {
	kind  Kind
	num   float64
	text  string
	items []string
}

// Null is the unknown value.
var Null Value

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Text returns a free-text value. Blank text is Null.
func Text(s string) Value {
	s = strings.TrimSpace(s)
	if s == "" {
		return Null
	}
	return Value{kind: KindText, text: s}
}

// Enum returns a categorical value in normalized form. Blank input is Null.
func Enum(s string) Value {
	s = Normalize(s)
	if s == "" {
		return Null
	}
	return Value{kind: KindEnum, text: s}
}

// Set returns a set value. Members are normalized, de-duplicated and sorted;
// an empty set is Null.
func Set(items ...string) Value {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = Normalize(it); it != "" {
			out = append(out, it)
		}
	}
	if len(out) == 0 {
		return Null
	}
	slices.Sort(out)
	return Value{kind: KindSet, items: slices.Compact(out)}
}

// Normalize lower-cases s, trims it and joins words with underscores so that
// "Heart disease" and "heart_disease" compare equal.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.ReplaceAll(s, "_", " "))), "_")
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Num returns the numeric payload.
func (v Value) Num() (float64, bool) { return v.num, v.kind == KindNumber }

// Str returns the payload of a text or enum value.
func (v Value) Str() (string, bool) {
	return v.text, v.kind == KindText || v.kind == KindEnum
}

// Items returns a copy of the members of a set value.
func (v Value) Items() []string {
	if v.kind != KindSet {
		return nil
	}
	return slices.Clone(v.items)
}

// Contains reports whether a set value holds item.
func (v Value) Contains(item string) bool {
	_, found := slices.BinarySearch(v.items, Normalize(item))
	return v.kind == KindSet && found
}

// Equal is scalar equality for numbers, text and enums and set equality for
// sets. Text compares case-insensitively.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindNumber:
		return v.num == o.num
	case KindText:
		return strings.EqualFold(v.text, o.text)
	case KindEnum:
		return v.text == o.text
	case KindSet:
		return slices.Equal(v.items, o.items)
	}
	return false
}

// Union merges two set values. For any other kind it returns v.
func (v Value) Union(o Value) Value {
	if v.kind != KindSet || o.kind != KindSet {
		return v
	}
	return Set(append(slices.Clone(v.items), o.items...)...)
}

// Jaccard returns |a∩b| / |a∪b| for two set values. Two nulls score 1, and
// a null against a non-empty set scores 0.
func Jaccard(a, b Value) float64 {
	if a.IsNull() && b.IsNull() {
		return 1
	}
	if a.kind != KindSet || b.kind != KindSet {
		if a.Equal(b) {
			return 1
		}
		return 0
	}
	inter := 0
	for _, it := range a.items {
		if _, ok := slices.BinarySearch(b.items, it); ok {
			inter++
		}
	}
	union := len(a.items) + len(b.items) - inter
	return float64(inter) / float64(union)
}

// String renders the value for humans: sets joined with ", ", enums with
// spaces instead of underscores.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindText:
		return v.text
	case KindEnum:
		return strings.ReplaceAll(v.text, "_", " ")
	case KindSet:
		words := make([]string, len(v.items))
		for i, it := range v.items {
			words[i] = strings.ReplaceAll(it, "_", " ")
		}
		return strings.Join(words, ", ")
	default:
		return "null"
	}
}

// MarshalJSON encodes null, a number, a string or an array of strings.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindText, KindEnum:
		return json.Marshal(v.text)
	case KindSet:
		return json.Marshal(v.items)
	default:
		return []byte("null"), nil
	}
}
