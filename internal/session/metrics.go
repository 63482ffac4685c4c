package session

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kalambet/profilesim/internal/disclosure"
	"github.com/kalambet/profilesim/internal/fusion"
)

// Metrics holds the Prometheus collectors updated by a Runner. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Turns              prometheus.Counter
	Disclosed          *prometheus.CounterVec
	TopicHops          prometheus.Counter
	Forgotten          prometheus.Counter
	ExtractionFailures prometheus.Counter
	ExtractionLatency  prometheus.Histogram
	Conflicts          *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Turns: f.NewCounter(prometheus.CounterOpts{
			Name: "profilesim_turns_total",
			Help: "Total number of simulated conversation turns",
		}),

		// kind: plain, vague or misleading.
		Disclosed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "profilesim_disclosed_facts_total",
			Help: "Facts disclosed by the simulated person, by noise kind",
		}, []string{"kind"}),

		TopicHops: f.NewCounter(prometheus.CounterOpts{
			Name: "profilesim_topic_hops_total",
			Help: "Disclosed facts preceded by an unrelated remark",
		}),

		Forgotten: f.NewCounter(prometheus.CounterOpts{
			Name: "profilesim_forgotten_facts_total",
			Help: "Candidate facts dropped by forgetfulness",
		}),

		ExtractionFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "profilesim_extraction_failures_total",
			Help: "Extraction calls that failed or returned an invalid profile",
		}),

		ExtractionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "profilesim_extraction_duration_seconds",
			Help:    "Extraction call latency in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),

		Conflicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "profilesim_merge_conflicts_total",
			Help: "Fusion conflicts by decision",
		}, []string{"decision"}),
	}
}

func (m *Metrics) observePlan(plan disclosure.Plan) {
	if m == nil {
		return
	}
	m.Turns.Inc()
	m.Forgotten.Add(float64(plan.Forgotten))
	for _, f := range plan.Facts {
		kind := "plain"
		switch {
		case f.Misleading:
			kind = "misleading"
		case f.Vague:
			kind = "vague"
		}
		m.Disclosed.WithLabelValues(kind).Inc()
		if f.TopicHop {
			m.TopicHops.Inc()
		}
	}
}

func (m *Metrics) observeExtraction(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ExtractionLatency.Observe(d.Seconds())
	if err != nil {
		m.ExtractionFailures.Inc()
	}
}

func (m *Metrics) observeConflicts(conflicts []fusion.Conflict) {
	if m == nil {
		return
	}
	for _, c := range conflicts {
		m.Conflicts.WithLabelValues(string(c.Decision)).Inc()
	}
}
