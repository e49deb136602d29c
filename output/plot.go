package output

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/jaredquekjz/plantguide-sub007/cv"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
)

// WriteScatterPlot saves an observed-versus-predicted scatter with the
// identity line. The image format follows the extension of path (.png,
// .svg, .pdf).
func WriteScatterPlot(path, title string, recs []cv.PredictionRecord) error {
	if len(recs) == 0 {
		return errors.NewValueError("output.WriteScatterPlot", "no predictions to plot")
	}
	pts := make(plotter.XYs, 0, len(recs))
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, r := range recs {
		if math.IsNaN(r.True) || math.IsNaN(r.Predicted) {
			continue
		}
		pts = append(pts, plotter.XY{X: r.True, Y: r.Predicted})
		lo = math.Min(lo, math.Min(r.True, r.Predicted))
		hi = math.Max(hi, math.Max(r.True, r.Predicted))
	}
	if len(pts) == 0 {
		return errors.NewValueError("output.WriteScatterPlot", "no finite predictions to plot")
	}
	pad := 0.05 * (hi - lo)
	if pad == 0 {
		pad = 0.5
	}
	lo, hi = lo-pad, hi+pad

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "observed"
	p.Y.Label.Text = "predicted"

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return errors.Wrap(err, "scatter")
	}
	sc.GlyphStyle.Color = color.RGBA{R: 20, G: 80, B: 200, A: 160}
	sc.GlyphStyle.Radius = vg.Points(1.8)

	line, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		return errors.Wrap(err, "identity line")
	}
	line.Color = color.RGBA{R: 120, G: 120, B: 120, A: 255}
	line.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}

	p.Add(plotter.NewGrid(), line, sc)
	p.Legend.Add(fmt.Sprintf("n = %d", len(pts)), sc)
	p.X.Min, p.X.Max = lo, hi
	p.Y.Min, p.Y.Max = lo, hi

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}
	if err := p.Save(6*vg.Inch, 6*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "save %s", path)
	}
	return nil
}
