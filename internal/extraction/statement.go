package extraction

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kalambet/profilesim/internal/faults"
	"github.com/kalambet/profilesim/internal/profile"
	"github.com/kalambet/profilesim/internal/render"
)

// StatementExtractor reads the simulator's own sentences back into a
// profile without a model. It gives the harness a deterministic, offline
// extraction baseline.
type StatementExtractor struct {
	// PlainConfidence is assigned to unhedged statements.
	PlainConfidence float64
	// HedgedConfidence is assigned to statements with a qualifier.
	HedgedConfidence float64
}

// NewStatementExtractor returns an extractor using the same confidence bands
// the LLM prompt asks for.
func NewStatementExtractor() *StatementExtractor {
	return &StatementExtractor{PlainConfidence: 0.9, HedgedConfidence: 0.6}
}

func (s *StatementExtractor) Extract(ctx context.Context, text string) (profile.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, faults.External("extract", err)
	}

	p := profile.Init()
	for _, line := range strings.Split(text, "\n") {
		st, ok := render.ParseLine(line)
		if !ok {
			continue
		}
		spec, _ := profile.Lookup(st.Key)

		var raw any = st.Value
		if spec.Kind != profile.KindSet {
			raw = st.Value[0]
		}
		v, err := profile.ParseValue(spec, raw)
		if err != nil || v.IsNull() {
			slog.Debug("skipping unparseable statement", "line", line, "error", err)
			continue
		}

		conf := s.PlainConfidence
		if st.Hedged {
			conf = s.HedgedConfidence
		}
		p[st.Key.Dimension][st.Key.Field] = profile.Field{Value: v, Confidence: conf}
	}
	return p, nil
}
