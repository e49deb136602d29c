package cv

import (
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
)

// Collectors counts fold and candidate outcomes of cross-validation runs.
// They are registered on their own registry so several runs in one
// process do not collide with the default registerer.
type Collectors struct {
	Registry *prometheus.Registry

	Folds        *prometheus.CounterVec
	Candidates   *prometheus.CounterVec
	FoldDuration prometheus.Histogram
}

// NewCollectors creates and registers the run collectors.
func NewCollectors() *Collectors {
	c := &Collectors{
		Registry: prometheus.NewRegistry(),
		Folds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eivecv",
			Name:      "folds_total",
			Help:      "Folds processed, by outcome.",
		}, []string{"axis", "status"}),
		Candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eivecv",
			Name:      "candidate_fits_total",
			Help:      "Candidate fits, by candidate and outcome.",
		}, []string{"axis", "candidate", "status"}),
		FoldDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "eivecv",
			Name:      "fold_duration_seconds",
			Help:      "Wall time of one fold.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
	c.Registry.MustRegister(c.Folds, c.Candidates, c.FoldDuration)
	return c
}

// Snapshot gathers the registry into flat "name{k=v,...}" keys. Counters
// report their value and histograms their sample count.
func (c *Collectors) Snapshot() (map[string]float64, error) {
	families, err := c.Registry.Gather()
	if err != nil {
		return nil, errors.Wrap(err, "gather collectors")
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			sort.Strings(labels)
			key := mf.GetName()
			if len(labels) > 0 {
				key += "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				out[key] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}
