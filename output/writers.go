// Package output writes the artifacts of a cross-validation run: the
// prediction table, the per-fold model ranking, the importance table, a
// run summary and an observed-versus-predicted plot.
package output

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/gzip"
	"gopkg.in/yaml.v3"

	"github.com/jaredquekjz/plantguide-sub007/cv"
	"github.com/jaredquekjz/plantguide-sub007/importance"
	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
)

// Create opens path for writing, creating parent directories. A ".gz"
// suffix gzip-compresses the stream.
func Create(path string) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create output directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", path)
	}
	if !strings.HasSuffix(strings.ToLower(path), ".gz") {
		return f, nil
	}
	return &gzipFile{Writer: gzip.NewWriter(f), f: f}, nil
}

type gzipFile struct {
	*gzip.Writer
	f *os.File
}

func (g *gzipFile) Close() error {
	if err := g.Writer.Close(); err != nil {
		g.f.Close()
		return err
	}
	return g.f.Close()
}

func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "NA"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeAll(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return errors.Wrap(err, "write csv")
	}
	return nil
}

// PredictionRows renders prediction records as CSV rows with a header.
func PredictionRows(recs []cv.PredictionRecord) [][]string {
	rows := make([][]string, 0, len(recs)+1)
	rows = append(rows, []string{"id", "repeat", "fold", "y_true", "y_pred", "model"})
	for _, r := range recs {
		rows = append(rows, []string{
			r.ID,
			strconv.Itoa(r.Repeat),
			strconv.Itoa(r.Fold),
			formatFloat(r.True),
			formatFloat(r.Predicted),
			r.Model,
		})
	}
	return rows
}

// WritePredictions writes one row per out-of-sample prediction.
func WritePredictions(w io.Writer, recs []cv.PredictionRecord) error {
	return writeAll(w, PredictionRows(recs))
}

// Digest is the xxhash of the rendered prediction table. Two runs with the
// same digest produced identical predictions.
func Digest(recs []cv.PredictionRecord) uint64 {
	h := xxhash.New()
	_ = WritePredictions(h, recs)
	return h.Sum64()
}

// WriteRanking writes one row per (repeat, fold, candidate), with the
// selected candidate flagged. Failed candidates carry their error.
func WriteRanking(w io.Writer, folds []cv.FoldResult) error {
	rows := [][]string{{"repeat", "fold", "status", "candidate", "aic", "aicc", "edf", "r2_train", "weight", "selected", "error"}}
	for _, f := range folds {
		if len(f.Ranking) == 0 {
			rows = append(rows, []string{
				strconv.Itoa(f.Repeat), strconv.Itoa(f.Fold), f.Status,
				"", "", "", "", "", "", "", f.Error,
			})
			continue
		}
		for _, c := range f.Ranking {
			rows = append(rows, []string{
				strconv.Itoa(f.Repeat),
				strconv.Itoa(f.Fold),
				f.Status,
				c.Candidate,
				formatOptional(c.AIC, c.Error),
				formatOptional(c.AICc, c.Error),
				formatOptional(c.EDF, c.Error),
				formatOptional(c.R2, c.Error),
				formatOptional(c.Weight, c.Error),
				strconv.FormatBool(c.Candidate == f.Selected),
				c.Error,
			})
		}
	}
	return writeAll(w, rows)
}

func formatOptional(v float64, failure string) string {
	if failure != "" {
		return ""
	}
	return formatFloat(v)
}

// WriteImportance writes the ranked importance table as CSV.
func WriteImportance(w io.Writer, res *importance.Result) error {
	rows := [][]string{{"target", "feature", "forest", "boosted", "score", "cluster", "kept"}}
	for _, r := range res.Rows {
		rows = append(rows, []string{
			res.Target,
			r.Feature,
			formatFloat(r.Forest),
			formatFloat(r.Boosted),
			formatFloat(r.Score),
			strconv.Itoa(r.Cluster),
			strconv.FormatBool(r.Kept),
		})
	}
	return writeAll(w, rows)
}

// WriteImportanceJSON writes the importance table as indented JSON.
func WriteImportanceJSON(w io.Writer, res *importance.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return errors.Wrap(err, "encode importance")
	}
	return nil
}

// Summary is the run-level metrics document.
type Summary struct {
	cv.Result         `yaml:",inline"`
	PredictionsDigest string `yaml:"predictions_digest"`
	Config            any    `yaml:"config,omitempty"`
}

// WriteSummary writes the run summary as YAML. Undefined metrics are
// rendered as .nan.
func WriteSummary(w io.Writer, res *cv.Result, cfg any) error {
	doc := Summary{
		Result:            *res,
		PredictionsDigest: strconv.FormatUint(Digest(res.Records), 16),
		Config:            cfg,
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "encode summary")
	}
	return errors.Wrap(enc.Close(), "close summary encoder")
}
