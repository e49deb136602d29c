// Package formula describes candidate models as typed term lists and turns
// them into design matrices. Candidates are built once per response axis;
// only the learned design state (knots, levels) and the coefficients change
// from fold to fold.
package formula

import (
	"fmt"
	"strings"
)

// TermKind tags a Term.
type TermKind int

const (
	KindLinear TermKind = iota
	KindProduct
	KindSmooth
	KindTensor
	KindRandomEffect
)

func (k TermKind) String() string {
	switch k {
	case KindLinear:
		return "linear"
	case KindProduct:
		return "product"
	case KindSmooth:
		return "smooth"
	case KindTensor:
		return "tensor"
	case KindRandomEffect:
		return "random_effect"
	default:
		return "unknown"
	}
}

// Term is one model term. Construct it with Linear, Product, Smooth,
// Tensor or RandomEffect.
type Term struct {
	Kind TermKind
	Cols []string
	// K is the basis dimension (number of knots) of smooth and tensor
	// terms.
	K int
}

// Linear is a single numeric column entering linearly.
func Linear(col string) Term { return Term{Kind: KindLinear, Cols: []string{col}} }

// Product is the elementwise product a·b entering linearly.
func Product(a, b string) Term { return Term{Kind: KindProduct, Cols: []string{a, b}} }

// Smooth is a penalized natural cubic spline of col with k knots.
func Smooth(col string, k int) Term { return Term{Kind: KindSmooth, Cols: []string{col}, K: k} }

// Tensor is a penalized tensor-product interaction of a and b. Main
// effects are not included; pair it with terms for a and b.
func Tensor(a, b string, k int) Term { return Term{Kind: KindTensor, Cols: []string{a, b}, K: k} }

// RandomEffect is a penalized intercept per level of a label column.
func RandomEffect(group string) Term {
	return Term{Kind: KindRandomEffect, Cols: []string{group}}
}

// String renders the term in R-like notation.
func (t Term) String() string {
	switch t.Kind {
	case KindLinear:
		return t.Cols[0]
	case KindProduct:
		return t.Cols[0] + ":" + t.Cols[1]
	case KindSmooth:
		return fmt.Sprintf("s(%s,k=%d)", t.Cols[0], t.K)
	case KindTensor:
		return fmt.Sprintf("ti(%s,%s,k=%d)", t.Cols[0], t.Cols[1], t.K)
	case KindRandomEffect:
		return fmt.Sprintf("(1|%s)", t.Cols[0])
	default:
		return "?"
	}
}

// IsLinear reports whether the term needs no penalized engine.
func (t Term) IsLinear() bool {
	return t.Kind == KindLinear || t.Kind == KindProduct
}

// Engine is the regression engine a candidate needs.
type Engine int

const (
	EngineLinear Engine = iota
	EngineAdditive
)

func (e Engine) String() string {
	if e == EngineAdditive {
		return "additive"
	}
	return "linear"
}

// Candidate is a named, ordered list of terms.
type Candidate struct {
	Name  string
	Terms []Term
}

// Engine is linear when every term is linear or a product.
func (c Candidate) Engine() Engine {
	for _, t := range c.Terms {
		if !t.IsLinear() {
			return EngineAdditive
		}
	}
	return EngineLinear
}

// Formula renders "target ~ term + term ...".
func (c Candidate) Formula(target string) string {
	parts := make([]string, len(c.Terms))
	for i, t := range c.Terms {
		parts[i] = t.String()
	}
	if len(parts) == 0 {
		return target + " ~ 1"
	}
	return target + " ~ " + strings.Join(parts, " + ")
}

// NumericColumns returns the distinct numeric columns the terms read.
func (c Candidate) NumericColumns() []string {
	var out []string
	seen := make(map[string]bool)
	for _, t := range c.Terms {
		if t.Kind == KindRandomEffect {
			continue
		}
		for _, col := range t.Cols {
			if !seen[col] {
				seen[col] = true
				out = append(out, col)
			}
		}
	}
	return out
}

// LabelColumns returns the label columns used by random effects.
func (c Candidate) LabelColumns() []string {
	var out []string
	for _, t := range c.Terms {
		if t.Kind == KindRandomEffect {
			out = append(out, t.Cols[0])
		}
	}
	return out
}

func sameTerms(a, b []Term) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].String() != b[i].String() || a[i].Kind != b[i].Kind {
			return false
		}
	}
	return true
}
