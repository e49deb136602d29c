package composite

import (
	"github.com/jaredquekjz/plantguide-sub007/dataset"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
	"github.com/jaredquekjz/plantguide-sub007/pkg/log"
)

// FoldSet holds composites fit on one training partition. It is the only
// composite type the cross-validation loop accepts.
type FoldSet struct {
	composites []*Composite
}

// ReportingSet holds composites fit on the full table. Its loadings have
// seen every row and are for interpretation only.
type ReportingSet struct {
	composites []*Composite
}

// ReportingOnly marks the set as unusable for performance estimates.
func (ReportingSet) ReportingOnly() bool { return true }

// Builder fits a fixed list of composites.
type Builder struct {
	specs  []Spec
	logger log.Logger
}

// NewBuilder validates specs. Composite names must be unique.
func NewBuilder(specs []Spec) (*Builder, error) {
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if seen[s.Name] {
			return nil, errors.NewValidationError("composites.name", "duplicate composite", s.Name)
		}
		seen[s.Name] = true
	}
	return &Builder{specs: specs, logger: log.GetLoggerWithName("composite")}, nil
}

// Specs returns the configured composites.
func (b *Builder) Specs() []Spec {
	out := make([]Spec, len(b.specs))
	copy(out, b.specs)
	return out
}

// FitForFold fits every composite on train. The result must be applied to
// the paired test partition with FoldSet.Apply.
func (b *Builder) FitForFold(train *dataset.Table) (*FoldSet, error) {
	cs, err := b.fitAll(train)
	if err != nil {
		return nil, err
	}
	return &FoldSet{composites: cs}, nil
}

// FitForReporting fits every composite on the full table for loadings
// tables and plots.
func (b *Builder) FitForReporting(full *dataset.Table) (*ReportingSet, error) {
	cs, err := b.fitAll(full)
	if err != nil {
		return nil, err
	}
	b.logger.Info("composites fit on full data for reporting", log.SamplesKey, full.Len(), log.PhaseKey, log.PhaseReporting)
	return &ReportingSet{composites: cs}, nil
}

func (b *Builder) fitAll(t *dataset.Table) ([]*Composite, error) {
	out := make([]*Composite, 0, len(b.specs))
	for _, s := range b.specs {
		c, err := fit(s, t)
		if err != nil {
			return nil, errors.Wrapf(err, "composite %s", s.Name)
		}
		out = append(out, c)
	}
	return out, nil
}

// Composites returns the fitted composites.
func (f *FoldSet) Composites() []*Composite { return f.composites }

// Apply returns a copy of t with one score column per composite, named
// after the composite.
func (f *FoldSet) Apply(t *dataset.Table) (*dataset.Table, error) {
	return applyAll(f.composites, t)
}

// Composites returns the fitted composites.
func (r *ReportingSet) Composites() []*Composite { return r.composites }

// Apply adds score columns computed with the full-data loadings.
func (r *ReportingSet) Apply(t *dataset.Table) (*dataset.Table, error) {
	return applyAll(r.composites, t)
}

func applyAll(cs []*Composite, t *dataset.Table) (*dataset.Table, error) {
	out := t.Clone()
	for _, c := range cs {
		scores, err := c.Score(t)
		if err != nil {
			return nil, err
		}
		if err := out.SetNumeric(c.Spec.Name, scores); err != nil {
			return nil, err
		}
	}
	return out, nil
}
