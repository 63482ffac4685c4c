package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/kalambet/profilesim/internal/profile"
)

// bareValueConfidence is assigned to fields the model returned without a
// {value, confidence} wrapper.
const bareValueConfidence = 0.5

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// Dropped is a field from a model reply that could not be used.
type Dropped struct {
	Key    profile.Key
	Reason string
}

// Decode parses a model reply into a validated partial profile. Pairs outside
// the schema and values that do not fit their field are returned as Dropped
// rather than failing the whole reply.
func Decode(raw string) (profile.Profile, []Dropped, error) {
	obj, err := extractObject(raw)
	if err != nil {
		return nil, nil, err
	}

	p := profile.Init()
	var dropped []Dropped
	dims := make([]string, 0, len(obj))
	for d := range obj {
		dims = append(dims, d)
	}
	sort.Strings(dims)

	for _, dim := range dims {
		d := profile.Dimension(dim)
		fields, ok := obj[dim].(map[string]any)
		if !ok || !profile.KnownDimension(d) {
			dropped = append(dropped, Dropped{Key: profile.Key{Dimension: d}, Reason: "unknown dimension"})
			continue
		}
		names := make([]string, 0, len(fields))
		for n := range fields {
			names = append(names, n)
		}
		sort.Strings(names)

		for _, name := range names {
			k := profile.Key{Dimension: d, Field: name}
			f, reason := decodeField(k, fields[name])
			if reason != "" {
				dropped = append(dropped, Dropped{Key: k, Reason: reason})
				continue
			}
			if f.Known() {
				p[d][name] = f
			}
		}
	}

	if err := profile.Validate(p); err != nil {
		return nil, dropped, err
	}
	return p, dropped, nil
}

func decodeField(k profile.Key, raw any) (profile.Field, string) {
	spec, ok := profile.Lookup(k)
	if !ok {
		return profile.Field{}, "unknown field"
	}

	value, conf := raw, bareValueConfidence
	if m, ok := raw.(map[string]any); ok {
		value = m["value"]
		c, present := m["confidence"]
		switch n := c.(type) {
		case float64:
			conf = n
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return profile.Field{}, fmt.Sprintf("confidence %q is not a number", n)
			}
			conf = f
		case nil:
			if present {
				conf = 0
			}
		default:
			return profile.Field{}, fmt.Sprintf("confidence has type %T", c)
		}
	}

	v, err := profile.ParseValue(spec, value)
	if err != nil {
		return profile.Field{}, err.Error()
	}
	if v.IsNull() {
		return profile.Field{}, ""
	}
	if math.IsNaN(conf) {
		return profile.Field{}, "confidence is NaN"
	}
	return profile.Field{Value: v, Confidence: math.Min(1, math.Max(0, conf))}, ""
}

// extractObject finds the JSON object in a model reply: the whole reply,
// then a fenced code block, then the outermost {...} span. Each candidate is
// tried verbatim first and repaired only if none decode.
func extractObject(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty response")
	}

	candidates := []string{raw}
	if m := fencedBlock.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if i, j := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); i >= 0 && j > i {
		candidates = append(candidates, raw[i:j+1])
	}

	var lastErr error
	for _, c := range candidates {
		obj, err := decodeObject(c)
		if err == nil {
			return obj, nil
		}
		lastErr = err
	}
	for _, c := range candidates {
		if obj, err := repairObject(c); err == nil {
			return obj, nil
		}
	}
	return nil, lastErr
}

// repairObject retries a candidate that failed to decode after running it
// through jsonrepair.
func repairObject(data string) (map[string]any, error) {
	fixed, err := jsonrepair.JSONRepair(data)
	if err != nil {
		return nil, err
	}
	return decodeObject(fixed)
}

func decodeObject(data string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("response is not a JSON object")
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON object at offset %d", dec.InputOffset())
	}
	return obj, nil
}
