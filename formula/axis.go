package formula

import (
	"sort"

	"github.com/jaredquekjz/plantguide-sub007/composite"
	"github.com/jaredquekjz/plantguide-sub007/dataset"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
	"github.com/jaredquekjz/plantguide-sub007/pkg/log"
)

// Interaction is a two-way interaction between predictor columns or
// composites.
type Interaction struct {
	A string `yaml:"a" json:"a"`
	B string `yaml:"b" json:"b"`
}

// AxisSpec lists the terms available for one EIVE axis.
type AxisSpec struct {
	Axis   string `yaml:"axis" json:"axis"`
	Target string `yaml:"target" json:"target"`

	// Core terms: composite names or raw columns, smoothed in the
	// additive candidates.
	Core []string `yaml:"core" json:"core"`
	// Extra raw columns, always linear.
	Extra []string `yaml:"extra,omitempty" json:"extra,omitempty"`
	// Env are the axis environment summaries.
	Env          []string      `yaml:"env,omitempty" json:"env,omitempty"`
	Interactions []Interaction `yaml:"interactions,omitempty" json:"interactions,omitempty"`

	NonlinearEnv       bool `yaml:"nonlinear_env" json:"nonlinear_env"`
	SmoothInteractions bool `yaml:"smooth_interactions" json:"smooth_interactions"`

	// Phylo is an optional phylogenetic predictor column.
	Phylo string `yaml:"phylo,omitempty" json:"phylo,omitempty"`
	// RandomEffect is an optional group label column.
	RandomEffect string `yaml:"random_effect,omitempty" json:"random_effect,omitempty"`

	SmoothK int `yaml:"smooth_k,omitempty" json:"smooth_k,omitempty"`
	TensorK int `yaml:"tensor_k,omitempty" json:"tensor_k,omitempty"`
}

// Default basis sizes.
const (
	DefaultSmoothK = 5
	DefaultTensorK = 4
)

// Axes is the list of EIVE axes in canonical order.
var Axes = []string{"L", "T", "M", "R", "N"}

// TargetColumn returns the conventional target column of an axis.
func TargetColumn(axis string) string { return "EIVEres-" + axis }

// DefaultAxis returns the preset for an EIVE axis. Trait columns follow the
// trait table conventions (LA, SSD, ...); LES and SIZE are the default
// composites. Climate summaries are the per-species WorldClim niche
// metrics.
func DefaultAxis(axis string) (AxisSpec, error) {
	spec := AxisSpec{
		Axis:               axis,
		Target:             TargetColumn(axis),
		Core:               []string{"LES", "SIZE", "SSD"},
		Extra:              []string{"LA"},
		SmoothInteractions: true,
		SmoothK:            DefaultSmoothK,
		TensorK:            DefaultTensorK,
	}
	switch axis {
	case "L":
		spec.Env = []string{"precip_mean", "temp_seasonality"}
		spec.Interactions = []Interaction{{"LES", "SIZE"}, {"LA", "SIZE"}}
	case "T":
		spec.Env = []string{"mat_mean", "temp_seasonality", "tmin_q05", "precip_mean"}
		spec.Interactions = []Interaction{{"SIZE", "mat_mean"}, {"LES", "temp_seasonality"}, {"SSD", "tmin_q05"}}
		spec.NonlinearEnv = true
	case "M":
		spec.Env = []string{"precip_mean", "precip_cv", "mat_mean"}
		spec.Interactions = []Interaction{{"SIZE", "precip_mean"}, {"LES", "precip_cv"}}
		spec.NonlinearEnv = true
	case "R":
		spec.Env = []string{"phh2o_0_5cm_mean", "precip_mean"}
		spec.Interactions = []Interaction{{"SSD", "phh2o_0_5cm_mean"}}
	case "N":
		spec.Env = []string{"precip_mean", "mat_mean", "phh2o_0_5cm_mean"}
		spec.Interactions = []Interaction{{"LES", "SIZE"}, {"LA", "LES"}}
	default:
		return AxisSpec{}, errors.NewValidationError("target_axis", "must be one of L, T, M, R, N", axis)
	}
	return spec, nil
}

// WithoutEnv returns a copy of s without the environment columns in drop
// and without every interaction that uses one of them. Core, extra and
// phylo terms are never removed. The second result lists the removed
// environment columns in their original order.
func (s AxisSpec) WithoutEnv(drop map[string]bool) (AxisSpec, []string) {
	var env, removed []string
	for _, c := range s.Env {
		if drop[c] {
			removed = append(removed, c)
			continue
		}
		env = append(env, c)
	}
	if len(removed) == 0 {
		return s, nil
	}
	gone := make(map[string]bool, len(removed))
	for _, c := range removed {
		gone[c] = true
	}
	var inter []Interaction
	for _, it := range s.Interactions {
		if gone[it.A] || gone[it.B] {
			continue
		}
		inter = append(inter, it)
	}
	out := s
	out.Env = env
	out.Interactions = inter
	return out, removed
}

// Fallback records a composite replaced by its raw inputs for an axis.
type Fallback struct {
	Composite   string   `yaml:"composite" json:"composite"`
	Missing     string   `yaml:"missing" json:"missing"`
	Replacement []string `yaml:"replacement" json:"replacement"`
}

// Plan is the fixed candidate set for one axis together with everything
// the per-fold pipeline needs to know about it.
type Plan struct {
	Axis       string
	Target     string
	Candidates []Candidate
	// Composites are the composites that are available for this axis.
	Composites []composite.Spec
	Fallbacks  []Fallback
	// NumericColumns are the raw predictor columns read by any candidate
	// or composite, excluding the target.
	NumericColumns []string
	LabelColumns   []string
}

// RequiredColumns returns the columns a row needs to be usable: the target,
// every predictor and every label.
func (p *Plan) RequiredColumns() []string {
	out := []string{p.Target}
	out = append(out, p.NumericColumns...)
	return append(out, p.LabelColumns...)
}

// Candidate looks up a candidate by name.
func (p *Plan) Candidate(name string) (Candidate, bool) {
	for _, c := range p.Candidates {
		if c.Name == name {
			return c, true
		}
	}
	return Candidate{}, false
}

// Builder turns an AxisSpec into a Plan.
type Builder struct {
	composites []composite.Spec
	logger     log.Logger
}

// NewBuilder returns a Builder that knows the configured composites.
func NewBuilder(composites []composite.Spec) *Builder {
	return &Builder{composites: composites, logger: log.GetLoggerWithName("formula")}
}

// Build checks column availability on the rows where the target is finite
// and returns the candidate ladder:
//
//	linear        core + extra + env + phylo, all linear
//	linear_int    linear + product interactions
//	gam_smooth    core smoothed, env smoothed when nonlinear_env
//	gam_tensor    gam_smooth + tensor (or product) interactions
//	gam_tensor_re gam_tensor + group random effect
//
// Rungs identical to the previous one are dropped.
func (b *Builder) Build(spec AxisSpec, t *dataset.Table) (*Plan, error) {
	if spec.Target == "" {
		spec.Target = TargetColumn(spec.Axis)
	}
	if spec.SmoothK == 0 {
		spec.SmoothK = DefaultSmoothK
	}
	if spec.TensorK == 0 {
		spec.TensorK = DefaultTensorK
	}
	if !t.HasColumn(spec.Target) {
		return nil, errors.NewDataError("formula.Build", spec.Target, "target column not found")
	}
	targetRows, err := t.CompleteCases(spec.Target)
	if err != nil {
		return nil, err
	}
	if len(targetRows) == 0 {
		return nil, errors.NewDataError("formula.Build", spec.Target, "no finite target values")
	}

	plan := &Plan{Axis: spec.Axis, Target: spec.Target}
	logger := b.logger.With(log.TargetKey, spec.Axis)

	// resolve composites; an unavailable composite expands into its
	// available inputs
	expand := make(map[string][]string)
	for _, cs := range b.composites {
		ok, missing := composite.Availability(cs, t, targetRows)
		if ok {
			plan.Composites = append(plan.Composites, cs)
			continue
		}
		var repl []string
		for _, col := range cs.Columns() {
			if usable(t, col, targetRows) {
				repl = append(repl, col)
			}
		}
		expand[cs.Name] = repl
		plan.Fallbacks = append(plan.Fallbacks, Fallback{Composite: cs.Name, Missing: missing, Replacement: repl})
		logger.Warn("composite unavailable, using raw inputs",
			"composite", cs.Name,
			log.ColumnKey, missing,
			"replacement", repl,
		)
	}
	isComposite := make(map[string]bool, len(plan.Composites))
	for _, cs := range plan.Composites {
		isComposite[cs.Name] = true
	}

	resolve := func(names []string) ([]string, error) {
		var out []string
		for _, n := range names {
			if repl, ok := expand[n]; ok {
				out = append(out, repl...)
				continue
			}
			if isComposite[n] {
				out = append(out, n)
				continue
			}
			if !usable(t, n, targetRows) {
				return nil, errors.NewDataError("formula.Build", n, "missing or entirely non-finite for target "+spec.Target)
			}
			out = append(out, n)
		}
		return out, nil
	}

	core, err := resolve(spec.Core)
	if err != nil {
		return nil, err
	}
	extra, err := resolve(spec.Extra)
	if err != nil {
		return nil, err
	}
	env, err := resolve(spec.Env)
	if err != nil {
		return nil, err
	}
	var phylo []string
	if spec.Phylo != "" {
		if phylo, err = resolve([]string{spec.Phylo}); err != nil {
			return nil, err
		}
	}

	var inter []Interaction
	for _, it := range spec.Interactions {
		a, errA := resolve([]string{it.A})
		bb, errB := resolve([]string{it.B})
		if errA != nil || errB != nil || len(a) != 1 || len(bb) != 1 {
			logger.Warn("interaction dropped", "a", it.A, "b", it.B)
			continue
		}
		inter = append(inter, Interaction{A: a[0], B: bb[0]})
	}

	if spec.RandomEffect != "" {
		if _, ok := t.Label(spec.RandomEffect); !ok {
			return nil, errors.NewDataError("formula.Build", spec.RandomEffect, "group label column not found")
		}
	}

	linearTerms := func(cols ...[]string) []Term {
		var out []Term
		for _, group := range cols {
			for _, c := range group {
				out = append(out, Linear(c))
			}
		}
		return out
	}

	base := linearTerms(core, extra, env, phylo)
	add := func(name string, terms []Term) {
		if n := len(plan.Candidates); n > 0 && sameTerms(plan.Candidates[n-1].Terms, terms) {
			return
		}
		plan.Candidates = append(plan.Candidates, Candidate{Name: name, Terms: terms})
	}
	add("linear", base)

	withProducts := append(append([]Term(nil), base...), products(inter)...)
	add("linear_int", withProducts)

	var smooth []Term
	for _, c := range core {
		smooth = append(smooth, Smooth(c, spec.SmoothK))
	}
	smooth = append(smooth, linearTerms(extra)...)
	for _, c := range env {
		if spec.NonlinearEnv {
			smooth = append(smooth, Smooth(c, spec.SmoothK))
		} else {
			smooth = append(smooth, Linear(c))
		}
	}
	smooth = append(smooth, linearTerms(phylo)...)
	add("gam_smooth", smooth)

	tensor := append([]Term(nil), smooth...)
	for _, it := range inter {
		if spec.SmoothInteractions {
			tensor = append(tensor, Tensor(it.A, it.B, spec.TensorK))
		} else {
			tensor = append(tensor, Product(it.A, it.B))
		}
	}
	add("gam_tensor", tensor)

	if spec.RandomEffect != "" {
		withRE := append(append([]Term(nil), tensor...), RandomEffect(spec.RandomEffect))
		plan.Candidates = append(plan.Candidates, Candidate{Name: "gam_tensor_re", Terms: withRE})
	}

	plan.NumericColumns, plan.LabelColumns = b.columns(plan)
	logger.Info("candidate plan built",
		"candidates", len(plan.Candidates),
		"fallbacks", len(plan.Fallbacks),
		log.FeaturesKey, len(plan.NumericColumns),
	)
	return plan, nil
}

// columns collects raw columns: composite names are replaced by their
// inputs since composites are derived inside each fold.
func (b *Builder) columns(plan *Plan) ([]string, []string) {
	inputs := make(map[string][]string, len(plan.Composites))
	for _, cs := range plan.Composites {
		inputs[cs.Name] = cs.Columns()
	}
	num := make(map[string]bool)
	lbl := make(map[string]bool)
	for _, c := range plan.Candidates {
		for _, col := range c.NumericColumns() {
			if in, ok := inputs[col]; ok {
				for _, x := range in {
					num[x] = true
				}
				continue
			}
			num[col] = true
		}
		for _, col := range c.LabelColumns() {
			lbl[col] = true
		}
	}
	delete(num, plan.Target)
	return sortedKeys(num), sortedKeys(lbl)
}

func products(inter []Interaction) []Term {
	out := make([]Term, len(inter))
	for i, it := range inter {
		out[i] = Product(it.A, it.B)
	}
	return out
}

func usable(t *dataset.Table, col string, rows []int) bool {
	v, ok := t.Numeric(col)
	if !ok {
		return false
	}
	for _, r := range rows {
		if dataset.IsFinite(v[r]) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
