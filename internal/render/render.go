// Package render turns a disclosure plan into what the simulated person
// says: one sentence per fact, with unrelated chatter before off-topic facts.
package render

import (
	"regexp"
	"strings"

	"github.com/kalambet/profilesim/internal/disclosure"
	"github.com/kalambet/profilesim/internal/noise"
	"github.com/kalambet/profilesim/internal/profile"
)

// DefaultFillers are the off-topic remarks used for topic hopping. None of
// them match the statement grammar.
var DefaultFillers = []string{
	"By the way, the weather has been lovely this week.",
	"Oh, did you hear about the new park near the river?",
	"Speaking of which, the market was very busy this morning.",
	"Anyway, the neighbours' dog kept barking all night.",
	"That reminds me, the bus fares went up again.",
}

// Renderer renders plans. The zero value uses DefaultFillers.
type Renderer struct {
	Fillers []string
}

// Render returns the plan as text, one line per sentence. An empty plan
// renders as an empty string.
func (r *Renderer) Render(plan disclosure.Plan) string {
	fillers := r.Fillers
	if len(fillers) == 0 {
		fillers = DefaultFillers
	}
	var lines []string
	for i, f := range plan.Facts {
		if f.TopicHop {
			lines = append(lines, fillers[(plan.Turn+i)%len(fillers)])
		}
		lines = append(lines, Sentence(f))
	}
	return strings.Join(lines, "\n")
}

// Sentence renders one disclosed fact, e.g. "I think my mobility is limited."
func Sentence(f noise.Disclosed) string {
	spec, ok := profile.Lookup(f.Key)
	phrase := f.Key.Field
	if ok {
		phrase = spec.Phrase
	}
	verb := "is"
	if f.Value.Kind() == profile.KindSet {
		verb = "are"
	}

	body := "my " + phrase + " " + verb + " " + spokenValue(f.Value) + "."
	if f.Hedge == "" {
		return "M" + body[1:]
	}
	return f.Hedge + " " + body
}

func spokenValue(v profile.Value) string {
	if v.Kind() != profile.KindSet {
		return v.String()
	}
	items := v.Items()
	for i, it := range items {
		items[i] = strings.ReplaceAll(it, "_", " ")
	}
	if len(items) == 1 {
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}

// Statement is a sentence recognised as a self-disclosure.
type Statement struct {
	Key profile.Key
	// Value is the spoken value; set members are already split.
	Value  []string
	Hedged bool
}

var statementRe = regexp.MustCompile(`(?i)^(.*?)\bmy (.+?) (?:is|are) (.+?)\.?$`)

var phraseIndex = func() map[string]profile.Key {
	out := map[string]profile.Key{}
	for _, d := range profile.Schema() {
		for _, f := range d.Fields {
			out[strings.ToLower(f.Phrase)] = profile.Key{Dimension: d.Name, Field: f.Name}
		}
	}
	return out
}()

// ParseLine recognises a sentence produced by Sentence. It returns false for
// anything else, including filler remarks.
func ParseLine(line string) (Statement, bool) {
	m := statementRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return Statement{}, false
	}
	k, ok := phraseIndex[strings.ToLower(strings.TrimSpace(m[2]))]
	if !ok {
		return Statement{}, false
	}
	st := Statement{Key: k, Hedged: strings.TrimSpace(m[1]) != ""}

	spec, _ := profile.Lookup(k)
	if spec.Kind == profile.KindSet {
		for _, part := range strings.Split(strings.ReplaceAll(m[3], " and ", ", "), ",") {
			if part = strings.TrimSpace(part); part != "" {
				st.Value = append(st.Value, part)
			}
		}
	} else {
		st.Value = []string{strings.TrimSpace(m[3])}
	}
	return st, true
}
