package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/xuri/excelize/v2"

	"github.com/jaredquekjz/plantguide-sub007/pkg/errors"
	"github.com/jaredquekjz/plantguide-sub007/pkg/log"
)

// LoadOptions controls how raw cells become typed columns.
type LoadOptions struct {
	// IDColumn names the row id column. When empty, ids are the 1-based
	// row numbers.
	IDColumn string
	// LabelColumns are always read as strings, even when every value
	// parses as a number.
	LabelColumns []string
	// Sheet selects the worksheet for .xlsx input. Empty means the first.
	Sheet string
}

// Load reads a table from path. The format follows the extension: .csv,
// .csv.gz, .csv.zst or .xlsx.
func Load(path string, opts LoadOptions) (*Table, error) {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".xlsx") {
		return LoadXLSX(path, opts)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	var r io.Reader = f
	switch {
	case strings.HasSuffix(lower, ".gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "gzip %s", path)
		}
		defer gz.Close()
		r = gz
	case strings.HasSuffix(lower, ".zst"):
		dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, errors.Wrapf(err, "zstd %s", path)
		}
		defer dec.Close()
		r = dec
	case filepath.Ext(lower) != ".csv":
		return nil, errors.NewValueError("dataset.Load", "unsupported file type: "+filepath.Ext(path))
	}

	t, err := ReadCSV(r, opts)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	log.GetLoggerWithName("dataset").Info("table loaded",
		"path", path,
		log.SamplesKey, t.Len(),
		log.FeaturesKey, len(t.numOrder),
	)
	return t, nil
}

// ReadCSV parses comma-separated input with a header row.
func ReadCSV(r io.Reader, opts LoadOptions) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "parse csv")
	}
	return FromRows(rows, opts)
}

// LoadXLSX reads the first (or named) worksheet of an Excel workbook.
func LoadXLSX(path string, opts LoadOptions) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open workbook %s", path)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.NewValueError("dataset.LoadXLSX", "workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrapf(err, "read sheet %s", sheet)
	}
	return FromRows(rows, opts)
}

// FromRows builds a table from a header row followed by data rows. A column
// is numeric when every non-missing cell parses as a float (an all-missing
// column is numeric and entirely NaN); otherwise it is a string column. Short rows are padded with missing values.
func FromRows(rows [][]string, opts LoadOptions) (*Table, error) {
	if len(rows) < 2 {
		return nil, errors.NewValueError("dataset.FromRows", "need a header row and at least one data row")
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	body := rows[1:]

	idCol := -1
	if opts.IDColumn != "" {
		for j, h := range header {
			if h == opts.IDColumn {
				idCol = j
				break
			}
		}
		if idCol < 0 {
			return nil, errors.NewDataError("dataset.FromRows", opts.IDColumn, "id column not found")
		}
	}

	ids := make([]string, len(body))
	for i, row := range body {
		if idCol >= 0 {
			ids[i] = cell(row, idCol)
		} else {
			ids[i] = strconv.Itoa(i + 1)
		}
	}
	t := NewTable(ids)

	forceLabel := make(map[string]bool, len(opts.LabelColumns))
	for _, c := range opts.LabelColumns {
		forceLabel[c] = true
	}

	for j, name := range header {
		if j == idCol || name == "" {
			continue
		}
		raw := make([]string, len(body))
		for i, row := range body {
			raw[i] = cell(row, j)
		}
		if !forceLabel[name] {
			if values, ok := parseNumeric(raw); ok {
				if err := t.SetNumeric(name, values); err != nil {
					return nil, err
				}
				continue
			}
		}
		if err := t.SetLabel(name, normaliseLabels(raw)); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func cell(row []string, j int) string {
	if j < len(row) {
		return strings.TrimSpace(row[j])
	}
	return ""
}

func isMissing(s string) bool {
	switch strings.ToLower(s) {
	case "", "na", "nan", "null", "none", "-":
		return true
	}
	return false
}

func parseNumeric(raw []string) ([]float64, bool) {
	out := make([]float64, len(raw))
	for i, s := range raw {
		if isMissing(s) {
			out[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func normaliseLabels(raw []string) []string {
	out := make([]string, len(raw))
	for i, s := range raw {
		if !isMissing(s) {
			out[i] = s
		}
	}
	return out
}
