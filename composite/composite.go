// Package composite builds latent composite predictors: the first
// principal component of a small group of already scaled trait columns.
//
// Loadings are learned on a training partition and applied, never refit,
// to any other partition. Full-data fits exist only for interpretation and
// use a distinct type so they cannot be handed to the cross-validation
// loop.
package composite

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/jaredquekjz/plantguide-sub007/dataset"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
)

// Input is one column of a composite. Negate flips its sign before the
// decomposition, e.g. LMA enters the leaf economics composite negated.
type Input struct {
	Column string `yaml:"column" json:"column"`
	Negate bool   `yaml:"negate,omitempty" json:"negate,omitempty"`
}

// Spec declares a composite.
type Spec struct {
	Name   string  `yaml:"name" json:"name"`
	Inputs []Input `yaml:"inputs" json:"inputs"`
	// Reference is the input column whose loading is forced non-negative.
	// Empty means the first input.
	Reference string `yaml:"reference,omitempty" json:"reference,omitempty"`
}

// Columns returns the input column names in order.
func (s Spec) Columns() []string {
	out := make([]string, len(s.Inputs))
	for i, in := range s.Inputs {
		out[i] = in.Column
	}
	return out
}

// ReferenceIndex returns the position of the reference input.
func (s Spec) ReferenceIndex() int {
	if s.Reference == "" {
		return 0
	}
	for i, in := range s.Inputs {
		if in.Column == s.Reference {
			return i
		}
	}
	return -1
}

// Validate checks the declaration.
func (s Spec) Validate() error {
	if s.Name == "" {
		return errors.NewValidationError("composites.name", "must not be empty", s.Name)
	}
	if len(s.Inputs) < 2 {
		return errors.NewValidationError("composites."+s.Name+".inputs", "need at least two inputs", len(s.Inputs))
	}
	seen := make(map[string]bool, len(s.Inputs))
	for _, in := range s.Inputs {
		if in.Column == "" || seen[in.Column] {
			return errors.NewValidationError("composites."+s.Name+".inputs", "input columns must be unique and non-empty", in.Column)
		}
		seen[in.Column] = true
	}
	if s.ReferenceIndex() < 0 {
		return errors.NewValidationError("composites."+s.Name+".reference", "not one of the inputs", s.Reference)
	}
	return nil
}

// Availability reports whether every input has at least one finite value
// on rows. When it does not, the offending column is returned so callers
// can record the fallback to raw columns.
func Availability(s Spec, t *dataset.Table, rows []int) (bool, string) {
	for _, col := range s.Columns() {
		v, ok := t.Numeric(col)
		if !ok {
			return false, col
		}
		finite := false
		for _, r := range rows {
			if dataset.IsFinite(v[r]) {
				finite = true
				break
			}
		}
		if !finite {
			return false, col
		}
	}
	return true, ""
}

// Composite is a fitted loading vector.
type Composite struct {
	Spec Spec
	// Loadings has unit norm and one entry per input, sign-oriented so
	// the reference input is non-negative.
	Loadings []float64
	// NTrain is the number of complete rows the loadings were fit on.
	NTrain int
	// Explained is the share of the uncentred sum of squares captured by
	// the first component.
	Explained float64
}

// Score projects each row of t onto the loadings. Rows with a missing
// input score NaN.
func (c *Composite) Score(t *dataset.Table) ([]float64, error) {
	cols := make([][]float64, len(c.Spec.Inputs))
	for j, in := range c.Spec.Inputs {
		v, ok := t.Numeric(in.Column)
		if !ok {
			return nil, errors.NewDataError("Composite.Score", in.Column, "numeric column not found")
		}
		cols[j] = v
	}
	out := make([]float64, t.Len())
	for i := range out {
		s := 0.0
		for j, in := range c.Spec.Inputs {
			x := cols[j][i]
			if in.Negate {
				x = -x
			}
			s += x * c.Loadings[j]
		}
		out[i] = s
	}
	return out, nil
}

// fit computes the first right singular vector of the uncentred input
// matrix over complete rows of t.
func fit(s Spec, t *dataset.Table) (*Composite, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	rows, err := t.CompleteCases(s.Columns()...)
	if err != nil {
		return nil, err
	}
	p := len(s.Inputs)
	if len(rows) < p {
		return nil, errors.NewModelError("composite.fit", "too few complete rows for "+s.Name, errors.ErrEmptyData)
	}

	X := mat.NewDense(len(rows), p, nil)
	for j, in := range s.Inputs {
		v, _ := t.Numeric(in.Column)
		for i, r := range rows {
			x := v[r]
			if in.Negate {
				x = -x
			}
			X.Set(i, j, x)
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(X, mat.SVDThin); !ok {
		return nil, errors.NewModelError("composite.fit", "SVD failed for "+s.Name, errors.ErrSingularMatrix)
	}
	var v mat.Dense
	svd.VTo(&v)
	values := svd.Values(nil)

	loadings := make([]float64, p)
	mat.Col(loadings, 0, &v)
	if norm := floats.Norm(loadings, 2); norm > 0 {
		floats.Scale(1/norm, loadings)
	}
	orient(loadings, s.ReferenceIndex())

	total := floats.Dot(values, values)
	explained := math.NaN()
	if total > 0 {
		explained = values[0] * values[0] / total
	}

	return &Composite{
		Spec:      s,
		Loadings:  loadings,
		NTrain:    len(rows),
		Explained: explained,
	}, nil
}

// orient flips the vector so loadings[ref] >= 0. When the reference
// loading is exactly zero the first non-zero loading decides.
func orient(loadings []float64, ref int) {
	pivot := loadings[ref]
	if pivot == 0 {
		for _, l := range loadings {
			if l != 0 {
				pivot = l
				break
			}
		}
	}
	if pivot < 0 {
		floats.Scale(-1, loadings)
	}
	for i, l := range loadings {
		if l == 0 {
			loadings[i] = 0 // normalise -0
		}
	}
}
