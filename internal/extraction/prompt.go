package extraction

import (
	"fmt"
	"strings"

	"github.com/kalambet/profilesim/internal/engine"
	"github.com/kalambet/profilesim/internal/profile"
)

const systemPromptTemplate = `You are a profile extraction engine for conversations with older adults. Read what the person said and fill in the profile fields it gives evidence for. Your output must be ONLY a single valid JSON object. Do not include any other text, prose, or markdown.

Output shape:
{"<dimension>": {"<field>": {"value": <value>, "confidence": <number>}}}

Rules:
- Only include fields the text gives evidence for. Omit everything else.
- Explicitly stated facts ("I am 72") get confidence 0.8-1.0.
- Hedged or inferred facts ("I think", "maybe", tone of voice) get confidence 0.5-0.7.
- Enum fields must use one of the listed options exactly.
- Set fields are JSON arrays of short lower-case items.
- Numbers are JSON numbers, not strings.

Fields:
%s`

// BuildPrompt constructs the chat messages for one extraction call.
func BuildPrompt(text string) []engine.Message {
	return []engine.Message{
		engine.System(fmt.Sprintf(systemPromptTemplate, schemaListing())),
		engine.User(text),
	}
}

func schemaListing() string {
	var sb strings.Builder
	for _, d := range profile.Schema() {
		fmt.Fprintf(&sb, "%s (%s):\n", d.Name, d.Description)
		for _, f := range d.Fields {
			fmt.Fprintf(&sb, "  - %s: %s\n", f.Name, fieldHint(f))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func fieldHint(f profile.FieldSpec) string {
	var hint string
	switch f.Kind {
	case profile.KindNumber:
		hint = fmt.Sprintf("number between %v and %v", f.Min, f.Max)
	case profile.KindText:
		hint = "text"
	case profile.KindEnum:
		hint = "one of " + strings.Join(f.Options, ", ")
	case profile.KindSet:
		hint = "array, e.g. " + strings.Join(f.Options[:min(3, len(f.Options))], ", ")
	}
	if f.Description != "" {
		hint += "; " + f.Description
	}
	return hint
}
