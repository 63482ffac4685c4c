// Package profile defines the closed, typed person-profile schema and the
// immutable Profile value that the fusion, disclosure and evaluation
// packages operate on.
package profile

import (
	"fmt"
	"math"
	"slices"
)

// Field is a value paired with the confidence it is believed with. A null
// value carries confidence 0 by convention.
type Field struct {
	Value      Value   `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Known reports whether the field holds a non-null value.
func (f Field) Known() bool { return !f.Value.IsNull() }

// Profile maps every schema dimension to its fields. Operations never mutate
// a Profile they receive; updates return a fresh copy.
type Profile map[Dimension]map[string]Field

// Init returns a profile with every schema pair present, null and at
// confidence 0.
func Init() Profile {
	p := make(Profile, len(schema))
	for _, d := range schema {
		fields := make(map[string]Field, len(d.Fields))
		for _, f := range d.Fields {
			fields[f.Name] = Field{}
		}
		p[d.Name] = fields
	}
	return p
}

// Validate checks that p holds all and only the schema pairs, every
// confidence lies in [0,1] and every non-null value fits its field.
func Validate(p Profile) error {
	if p == nil {
		return &SchemaError{Reason: "nil profile"}
	}
	for d := range p {
		if !KnownDimension(d) {
			return schemaErr(d, "", "unknown dimension")
		}
	}
	for _, d := range schema {
		fields, ok := p[d.Name]
		if !ok {
			return schemaErr(d.Name, "", "missing dimension")
		}
		if len(fields) != len(d.Fields) {
			for name := range fields {
				if _, known := fieldIndex[Key{Dimension: d.Name, Field: name}]; !known {
					return schemaErr(d.Name, name, "unknown field")
				}
			}
		}
		for _, spec := range d.Fields {
			f, ok := fields[spec.Name]
			if !ok {
				return schemaErr(d.Name, spec.Name, "missing field")
			}
			if math.IsNaN(f.Confidence) || f.Confidence < 0 || f.Confidence > 1 {
				return schemaErr(d.Name, spec.Name, fmt.Sprintf("confidence %v outside [0,1]", f.Confidence))
			}
			if err := checkValue(spec, f.Value); err != nil {
				return schemaErr(d.Name, spec.Name, err.Error())
			}
		}
	}
	return nil
}

func checkValue(spec FieldSpec, v Value) error {
	if v.IsNull() {
		return nil
	}
	if v.Kind() != spec.Kind {
		return fmt.Errorf("%s value for %s field", v.Kind(), spec.Kind)
	}
	switch spec.Kind {
	case KindNumber:
		n, _ := v.Num()
		if math.IsNaN(n) || n < spec.Min || n > spec.Max {
			return fmt.Errorf("%v outside [%v,%v]", n, spec.Min, spec.Max)
		}
	case KindEnum:
		s, _ := v.Str()
		if !slices.Contains(spec.Options, s) {
			return fmt.Errorf("%q is not one of %v", s, spec.Options)
		}
	}
	return nil
}

// Get returns the field at k. Unknown pairs read as null.
func (p Profile) Get(k Key) Field {
	return p[k.Dimension][k.Field]
}

// With returns a copy of p with k set to f.
func (p Profile) With(k Key, f Field) Profile {
	cp := p.Clone()
	if cp[k.Dimension] == nil {
		cp[k.Dimension] = map[string]Field{}
	}
	cp[k.Dimension][k.Field] = f
	return cp
}

// Clone returns a deep copy of p. Values are immutable so copying the maps
// is enough.
func (p Profile) Clone() Profile {
	if p == nil {
		return nil
	}
	cp := make(Profile, len(p))
	for d, fields := range p {
		m := make(map[string]Field, len(fields))
		for name, f := range fields {
			m[name] = f
		}
		cp[d] = m
	}
	return cp
}

// Equal reports whether p and o hold equal values and confidences at every
// schema pair.
func (p Profile) Equal(o Profile) bool {
	for _, k := range keyOrder {
		a, b := p.Get(k), o.Get(k)
		if a.Confidence != b.Confidence || !a.Value.Equal(b.Value) {
			return false
		}
	}
	return true
}

// KnownCount returns the number of non-null schema pairs.
func (p Profile) KnownCount() int {
	n := 0
	for _, k := range keyOrder {
		if p.Get(k).Known() {
			n++
		}
	}
	return n
}

// FromRaw builds a validated profile from plain decoded values (as produced
// by encoding/json or yaml). Every non-null value is stored at confidence.
func FromRaw(raw map[string]map[string]any, confidence float64) (Profile, error) {
	p := Init()
	for dim, fields := range raw {
		d := Dimension(dim)
		if !KnownDimension(d) {
			return nil, schemaErr(d, "", "unknown dimension")
		}
		for name, rv := range fields {
			k := Key{Dimension: d, Field: name}
			spec, ok := Lookup(k)
			if !ok {
				return nil, schemaErr(d, name, "unknown field")
			}
			v, err := ParseValue(spec, rv)
			if err != nil {
				return nil, schemaErr(d, name, err.Error())
			}
			if v.IsNull() {
				continue
			}
			p[d][name] = Field{Value: v, Confidence: confidence}
		}
	}
	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}
