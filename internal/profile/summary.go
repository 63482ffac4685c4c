package profile

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxSummaryChars caps the summary to stay under ~500 tokens (4 chars/token).
const maxSummaryChars = 2000

// Summary renders the known fields of p as one short line per dimension,
// e.g. "Health safety: health conditions hypertension, diabetes; mobility limited."
func Summary(p Profile) string {
	var parts []string
	for _, d := range schema {
		var facts []string
		for _, spec := range d.Fields {
			f := p[d.Name][spec.Name]
			if !f.Known() {
				continue
			}
			facts = append(facts, fmt.Sprintf("%s %s", spec.Phrase, f.Value))
		}
		if len(facts) == 0 {
			continue
		}
		title := strings.ReplaceAll(string(d.Name), "_", " ")
		title = strings.ToUpper(title[:1]) + title[1:]
		parts = append(parts, fmt.Sprintf("%s: %s.", title, strings.Join(facts, "; ")))
	}

	if len(parts) == 0 {
		return "Profile: nothing known yet."
	}

	summary := strings.Join(parts, " ")
	if len(summary) > maxSummaryChars {
		// Ensure we don't split a multi-byte UTF-8 character.
		end := maxSummaryChars
		for end > 0 && !utf8.RuneStart(summary[end]) {
			end--
		}
		if idx := strings.LastIndex(summary[:end], " "); idx > 0 {
			summary = summary[:idx]
		} else {
			summary = summary[:end]
		}
	}
	return summary
}
