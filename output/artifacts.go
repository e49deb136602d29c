package output

import (
	"io"
	"path/filepath"

	"github.com/jaredquekjz/plantguide-sub007/cv"
	"github.com/jaredquekjz/plantguide-sub007/importance"
	"github.com/jaredquekjz/plantguide-sub007/pkg/log"
)

// Artifacts lists the files written for one run.
type Artifacts struct {
	Dir         string
	Predictions string
	Ranking     string
	Summary     string
	Plot        string
}

// RunArtifacts returns the file names for an axis under dir. Compress
// switches the prediction table to gzip.
func RunArtifacts(dir, axis string, compress bool) Artifacts {
	pred := "eive_" + axis + "_predictions.csv"
	if compress {
		pred += ".gz"
	}
	return Artifacts{
		Dir:         dir,
		Predictions: filepath.Join(dir, pred),
		Ranking:     filepath.Join(dir, "eive_"+axis+"_ranking.csv"),
		Summary:     filepath.Join(dir, "eive_"+axis+"_summary.yaml"),
		Plot:        filepath.Join(dir, "eive_"+axis+"_observed_predicted.png"),
	}
}

// WriteRun writes every artifact of res. The plot is skipped when the run
// produced no predictions.
func WriteRun(a Artifacts, res *cv.Result, cfg any) error {
	if err := writeFile(a.Predictions, func(w io.Writer) error { return WritePredictions(w, res.Records) }); err != nil {
		return err
	}
	if err := writeFile(a.Ranking, func(w io.Writer) error { return WriteRanking(w, res.Folds) }); err != nil {
		return err
	}
	if err := writeFile(a.Summary, func(w io.Writer) error { return WriteSummary(w, res, cfg) }); err != nil {
		return err
	}
	logger := log.GetLoggerWithName("output").With(log.TargetKey, res.Axis, log.RunIDKey, res.RunID)
	if len(res.Records) > 0 && a.Plot != "" {
		if err := WriteScatterPlot(a.Plot, "EIVE "+res.Axis+" cross-validated predictions", res.Records); err != nil {
			return err
		}
	}
	logger.Info("artifacts written", "dir", a.Dir)
	return nil
}

// WriteImportanceFiles writes the importance table as CSV and JSON.
func WriteImportanceFiles(dir string, res *importance.Result) error {
	base := filepath.Join(dir, "importance_"+res.Target)
	if err := writeFile(base+".csv", func(w io.Writer) error { return WriteImportance(w, res) }); err != nil {
		return err
	}
	return writeFile(base+".json", func(w io.Writer) error { return WriteImportanceJSON(w, res) })
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return write(f)
}
