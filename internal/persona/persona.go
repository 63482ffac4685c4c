// Package persona loads the ground-truth profiles that simulated sessions
// disclose. A set of built-in personas is embedded in the binary; more can
// be loaded from YAML files.
package persona

import (
	"embed"
	"fmt"
	"os"
	"path"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kalambet/profilesim/internal/profile"
)

//go:embed personas/*.yaml
var builtinFS embed.FS

// Persona is a named ground-truth profile.
type Persona struct {
	Name        string
	Title       string
	Description string
	Profile     profile.Profile
}

type document struct {
	Name        string                    `yaml:"name"`
	Title       string                    `yaml:"title"`
	Description string                    `yaml:"description"`
	Profile     map[string]map[string]any `yaml:"profile"`
}

// Parse decodes one persona document. Every listed value becomes a known
// field at confidence 1; unknown pairs and ill-typed values are
// SchemaErrors.
func Parse(data []byte) (Persona, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Persona{}, fmt.Errorf("parsing persona: %w", err)
	}
	if doc.Name == "" {
		return Persona{}, fmt.Errorf("parsing persona: missing name")
	}
	p, err := profile.FromRaw(doc.Profile, 1.0)
	if err != nil {
		return Persona{}, fmt.Errorf("persona %s: %w", doc.Name, err)
	}
	return Persona{
		Name:        doc.Name,
		Title:       doc.Title,
		Description: strings.TrimSpace(doc.Description),
		Profile:     p,
	}, nil
}

func (p Persona) clone() Persona {
	p.Profile = p.Profile.Clone()
	return p
}

// LoadFile reads a persona from a YAML file.
func LoadFile(filename string) (Persona, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Persona{}, fmt.Errorf("reading persona: %w", err)
	}
	return Parse(data)
}

var loadBuiltins = sync.OnceValues(func() ([]Persona, error) {
	entries, err := builtinFS.ReadDir("personas")
	if err != nil {
		return nil, err
	}
	var out []Persona
	for _, e := range entries {
		data, err := builtinFS.ReadFile(path.Join("personas", e.Name()))
		if err != nil {
			return nil, err
		}
		p, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Persona) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
})

// All returns the built-in personas sorted by name.
func All() ([]Persona, error) {
	ps, err := loadBuiltins()
	if err != nil {
		return nil, err
	}
	out := make([]Persona, len(ps))
	for i, p := range ps {
		out[i] = p.clone()
	}
	return out, nil
}

// ByName returns the built-in persona with the given name.
func ByName(name string) (Persona, error) {
	ps, err := loadBuiltins()
	if err != nil {
		return Persona{}, err
	}
	for _, p := range ps {
		if p.Name == name {
			return p.clone(), nil
		}
	}
	return Persona{}, fmt.Errorf("unknown persona %q", name)
}

// Resolve returns the persona from file when it is set, otherwise the
// built-in persona called name.
func Resolve(name, file string) (Persona, error) {
	if file != "" {
		return LoadFile(file)
	}
	return ByName(name)
}
