package dataset

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const sampleCSV = `wfo_taxon_id,Family,logLA,EIVEres-M,lat
wfo-1,Poaceae,1.5,4.2,51.2
wfo-2,Rosaceae,NA,6.1,
wfo-3,Poaceae,2.25,,48.9
`

func TestReadCSV(t *testing.T) {
	tbl, err := ReadCSV(strings.NewReader(sampleCSV), LoadOptions{IDColumn: "wfo_taxon_id"})
	require.NoError(t, err)

	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, []string{"wfo-1", "wfo-2", "wfo-3"}, tbl.IDs())
	assert.Equal(t, []string{"logLA", "EIVEres-M", "lat"}, tbl.NumericNames())
	assert.Equal(t, []string{"Family"}, tbl.LabelNames())

	la, ok := tbl.Numeric("logLA")
	require.True(t, ok)
	assert.True(t, math.IsNaN(la[1]))
	assert.Equal(t, 2.25, la[2])
}

func TestReadCSVOptions(t *testing.T) {
	tests := []struct {
		name    string
		opts    LoadOptions
		wantErr bool
		check   func(t *testing.T, tbl *Table)
	}{
		{
			name: "row numbers as ids",
			opts: LoadOptions{},
			check: func(t *testing.T, tbl *Table) {
				assert.Equal(t, "1", tbl.ID(0))
				assert.Contains(t, tbl.LabelNames(), "wfo_taxon_id")
			},
		},
		{
			name: "forced label column",
			opts: LoadOptions{IDColumn: "wfo_taxon_id", LabelColumns: []string{"lat"}},
			check: func(t *testing.T, tbl *Table) {
				lat, ok := tbl.Label("lat")
				require.True(t, ok)
				assert.Equal(t, "", lat[1])
			},
		},
		{
			name:    "unknown id column",
			opts:    LoadOptions{IDColumn: "species"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := ReadCSV(strings.NewReader(sampleCSV), tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, tbl)
		})
	}
}

func TestLoadCompressed(t *testing.T) {
	dir := t.TempDir()

	gzPath := filepath.Join(dir, "traits.csv.gz")
	f, err := os.Create(gzPath)
	require.NoError(t, err)
	gw := gzip.NewWriter(f)
	_, err = gw.Write([]byte(sampleCSV))
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	require.NoError(t, f.Close())

	zstPath := filepath.Join(dir, "traits.csv.zst")
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(zstPath, enc.EncodeAll([]byte(sampleCSV), nil), 0o644))
	require.NoError(t, enc.Close())

	for _, p := range []string{gzPath, zstPath} {
		tbl, err := Load(p, LoadOptions{IDColumn: "wfo_taxon_id"})
		require.NoError(t, err, p)
		assert.Equal(t, 3, tbl.Len())
	}

	_, err = Load(filepath.Join(dir, "traits.parquet"), LoadOptions{})
	assert.Error(t, err)
}

func TestLoadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traits.xlsx")
	wb := excelize.NewFile()
	rows := [][]interface{}{
		{"id", "Family", "logSSD"},
		{"s1", "Fabaceae", -0.3},
		{"s2", "Pinaceae", -0.6},
	}
	for i, row := range rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, wb.SetSheetRow("Sheet1", cellName, &row))
	}
	require.NoError(t, wb.SaveAs(path))
	require.NoError(t, wb.Close())

	tbl, err := Load(path, LoadOptions{IDColumn: "id"})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, tbl.IDs())
	ssd, ok := tbl.Numeric("logSSD")
	require.True(t, ok)
	assert.InDelta(t, -0.6, ssd[1], 1e-12)
}
