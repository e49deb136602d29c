package formula

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/jaredquekjz/plantguide-sub007/dataset"
	"github.com/jaredquekjz/plantguide-sub007/gam"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
)

// Layout is the design state of a candidate learned on one training
// partition: spline knots and random effect levels. Applying it to a test
// partition never changes it.
type Layout struct {
	Candidate Candidate

	parts  []part
	names  []string
	blocks []gam.Block
}

type part struct {
	term   Term
	offset int
	width  int

	spline *gam.NaturalSpline
	// tensor marginals
	sa, sb *gam.NaturalSpline
	levels map[string]int
}

// Learn fits the design state of c on train. Smooth terms whose column has
// fewer than three distinct values degrade to linear terms.
func Learn(c Candidate, train *dataset.Table) (*Layout, error) {
	l := &Layout{Candidate: c}
	offset := 0
	for _, term := range c.Terms {
		p := part{term: term, offset: offset}
		switch term.Kind {
		case KindLinear, KindProduct:
			p.width = 1
			l.names = append(l.names, term.String())

		case KindSmooth:
			x, err := numeric(train, term.Cols[0])
			if err != nil {
				return nil, err
			}
			ns, err := gam.NewNaturalSpline(x, term.K)
			if err != nil {
				p.term = Linear(term.Cols[0])
				p.width = 1
				l.names = append(l.names, term.Cols[0])
				break
			}
			p.spline = ns
			p.width = ns.Dim()
			for j := 0; j < p.width; j++ {
				l.names = append(l.names, fmt.Sprintf("s(%s).%d", term.Cols[0], j+1))
			}
			l.blocks = append(l.blocks, gam.Block{Name: term.String(), Cols: shift(ns.Penalized(), offset)})

		case KindTensor:
			xa, err := numeric(train, term.Cols[0])
			if err != nil {
				return nil, err
			}
			xb, err := numeric(train, term.Cols[1])
			if err != nil {
				return nil, err
			}
			sa, errA := gam.NewNaturalSpline(xa, term.K)
			sb, errB := gam.NewNaturalSpline(xb, term.K)
			if errA != nil || errB != nil {
				p.term = Product(term.Cols[0], term.Cols[1])
				p.width = 1
				l.names = append(l.names, p.term.String())
				break
			}
			p.sa, p.sb = sa, sb
			p.width = sa.Dim() * sb.Dim()
			var pen []int
			for i := 0; i < sa.Dim(); i++ {
				for j := 0; j < sb.Dim(); j++ {
					l.names = append(l.names, fmt.Sprintf("ti(%s,%s).%d.%d", term.Cols[0], term.Cols[1], i+1, j+1))
					if i > 0 || j > 0 {
						pen = append(pen, offset+i*sb.Dim()+j)
					}
				}
			}
			l.blocks = append(l.blocks, gam.Block{Name: term.String(), Cols: pen})

		case KindRandomEffect:
			levels := train.Levels(term.Cols[0])
			if len(levels) == 0 {
				return nil, errors.NewDataError("formula.Learn", term.Cols[0], "group label column has no levels")
			}
			p.levels = make(map[string]int, len(levels))
			cols := make([]int, len(levels))
			for i, lv := range levels {
				p.levels[lv] = i
				cols[i] = offset + i
				l.names = append(l.names, term.Cols[0]+"["+lv+"]")
			}
			p.width = len(levels)
			l.blocks = append(l.blocks, gam.Block{Name: term.String(), Cols: cols})
		}
		offset += p.width
		l.parts = append(l.parts, p)
	}
	return l, nil
}

// NumColumns is the width of the design matrix, intercept excluded.
func (l *Layout) NumColumns() int { return len(l.names) }

// ColumnNames returns one name per design column.
func (l *Layout) ColumnNames() []string { return append([]string(nil), l.names...) }

// Blocks returns the penalty blocks for the additive engine.
func (l *Layout) Blocks() []gam.Block { return l.blocks }

// Matrix builds the design matrix for t. The intercept is not included.
// Rows with a missing numeric input contain NaN; unseen or missing random
// effect levels get an all-zero indicator row.
func (l *Layout) Matrix(t *dataset.Table) (*mat.Dense, error) {
	n := t.Len()
	if n == 0 || len(l.names) == 0 {
		return nil, errors.NewModelError("formula.Layout.Matrix", "empty design", errors.ErrEmptyData)
	}
	X := mat.NewDense(n, len(l.names), nil)
	for _, p := range l.parts {
		switch p.term.Kind {
		case KindLinear:
			x, err := numeric(t, p.term.Cols[0])
			if err != nil {
				return nil, err
			}
			for i := 0; i < n; i++ {
				X.Set(i, p.offset, x[i])
			}

		case KindProduct:
			a, err := numeric(t, p.term.Cols[0])
			if err != nil {
				return nil, err
			}
			b, err := numeric(t, p.term.Cols[1])
			if err != nil {
				return nil, err
			}
			for i := 0; i < n; i++ {
				X.Set(i, p.offset, a[i]*b[i])
			}

		case KindSmooth:
			x, err := numeric(t, p.term.Cols[0])
			if err != nil {
				return nil, err
			}
			row := make([]float64, p.width)
			for i := 0; i < n; i++ {
				p.spline.Eval(x[i], row)
				for j, v := range row {
					X.Set(i, p.offset+j, v)
				}
			}

		case KindTensor:
			a, err := numeric(t, p.term.Cols[0])
			if err != nil {
				return nil, err
			}
			b, err := numeric(t, p.term.Cols[1])
			if err != nil {
				return nil, err
			}
			ra := make([]float64, p.sa.Dim())
			rb := make([]float64, p.sb.Dim())
			for i := 0; i < n; i++ {
				p.sa.Eval(a[i], ra)
				p.sb.Eval(b[i], rb)
				for u, va := range ra {
					for v, vb := range rb {
						X.Set(i, p.offset+u*len(rb)+v, va*vb)
					}
				}
			}

		case KindRandomEffect:
			g, ok := t.Label(p.term.Cols[0])
			if !ok {
				return nil, errors.NewDataError("formula.Layout.Matrix", p.term.Cols[0], "label column not found")
			}
			for i := 0; i < n; i++ {
				if j, ok := p.levels[g[i]]; ok {
					X.Set(i, p.offset+j, 1)
				}
			}
		}
	}
	return X, nil
}

func numeric(t *dataset.Table, col string) ([]float64, error) {
	v, ok := t.Numeric(col)
	if !ok {
		return nil, errors.NewDataError("formula.Layout", col, "numeric column not found")
	}
	return v, nil
}

func shift(idx []int, offset int) []int {
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = j + offset
	}
	return out
}
