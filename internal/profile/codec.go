package profile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/kalambet/profilesim/internal/faults"
)

// SchemaError is the error returned for profiles that violate the schema.
type SchemaError = faults.SchemaError

func schemaErr(d Dimension, field, reason string) *SchemaError {
	return &SchemaError{Dimension: string(d), Field: field, Reason: reason}
}

// ParseValue coerces a decoded JSON or YAML scalar into a Value of the
// field's kind. nil and empty inputs are Null.
func ParseValue(spec FieldSpec, raw any) (Value, error) {
	if raw == nil {
		return Null, nil
	}
	switch spec.Kind {
	case KindNumber:
		n, err := toNumber(raw)
		if err != nil {
			return Null, err
		}
		return Number(n), nil
	case KindText:
		s, ok := raw.(string)
		if !ok {
			return Null, fmt.Errorf("expected text, got %T", raw)
		}
		return Text(s), nil
	case KindEnum:
		s, ok := raw.(string)
		if !ok {
			return Null, fmt.Errorf("expected enum string, got %T", raw)
		}
		v := Enum(s)
		if e, _ := v.Str(); !v.IsNull() && !slices.Contains(spec.Options, e) {
			return Null, fmt.Errorf("%q is not one of %v", e, spec.Options)
		}
		return v, nil
	case KindSet:
		switch items := raw.(type) {
		case []string:
			return Set(items...), nil
		case []any:
			strs := make([]string, 0, len(items))
			for _, it := range items {
				s, ok := it.(string)
				if !ok {
					return Null, fmt.Errorf("set member %v is %T, not a string", it, it)
				}
				strs = append(strs, s)
			}
			return Set(strs...), nil
		case string:
			// A single member written without brackets.
			return Set(strings.Split(items, ",")...), nil
		default:
			return Null, fmt.Errorf("expected a list, got %T", raw)
		}
	}
	return Null, fmt.Errorf("unsupported kind %s", spec.Kind)
}

func toNumber(raw any) (float64, error) {
	switch n := raw.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("expected a number, got %q", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", raw)
	}
}

type wireField struct {
	Value      json.RawMessage `json:"value"`
	Confidence float64         `json:"confidence"`
}

// UnmarshalJSON decodes a profile strictly: unknown pairs and ill-typed
// values are SchemaErrors, and the result must validate.
func (p *Profile) UnmarshalJSON(data []byte) error {
	var wire map[string]map[string]wireField
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	out := Init()
	for dim, fields := range wire {
		d := Dimension(dim)
		if !KnownDimension(d) {
			return schemaErr(d, "", "unknown dimension")
		}
		for name, wf := range fields {
			spec, ok := Lookup(Key{Dimension: d, Field: name})
			if !ok {
				return schemaErr(d, name, "unknown field")
			}
			var raw any
			if len(wf.Value) > 0 {
				dec := json.NewDecoder(bytes.NewReader(wf.Value))
				dec.UseNumber()
				if err := dec.Decode(&raw); err != nil {
					return schemaErr(d, name, err.Error())
				}
			}
			v, err := ParseValue(spec, raw)
			if err != nil {
				return schemaErr(d, name, err.Error())
			}
			if math.IsNaN(wf.Confidence) {
				return schemaErr(d, name, "confidence is NaN")
			}
			out[d][name] = Field{Value: v, Confidence: wf.Confidence}
		}
	}
	if err := Validate(out); err != nil {
		return err
	}
	*p = out
	return nil
}
