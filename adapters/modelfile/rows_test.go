package modelfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/mijafro/fork-lca-algebraic/domain/params"
	apperrors "github.com/mijafro/fork-lca-algebraic/internal/errors"
)

func rowsRegistry() *params.Registry {
	return params.MustRegistry(
		params.MustFloat("mass", params.FloatSpec{Distribution: params.Uniform, Default: 2, Min: 1, Max: 3}),
		params.MustChoice("tech", params.ChoiceSpec{Choices: []string{"coal", "solar"}}),
	)
}

func TestReadRows(t *testing.T) {
	doc := "label,tech,mass\nbase,coal,2\ngreen,solar,2.5\n,1,3\n"
	tbl, err := ReadRows(strings.NewReader(doc), rowsRegistry())
	require.NoError(t, err)

	assert.Equal(t, []string{"tech", "mass"}, tbl.Columns)
	assert.Equal(t, [][]float64{{0, 2}, {1, 2.5}, {1, 3}}, tbl.Values)
	assert.Equal(t, "green", tbl.Label(1))
	assert.Equal(t, "3", tbl.Label(2))
}

func TestReadRows_Errors(t *testing.T) {
	for name, doc := range map[string]string{
		"empty":          "",
		"unknown column": "mass,speed\n1,2\n",
		"bad number":     "mass\nheavy\n",
		"bad choice":     "tech\nwind\n",
		"choice index":   "tech\n5\n",
		"ragged":         "mass,tech\n1\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadRows(strings.NewReader(doc), rowsRegistry())
			assert.Error(t, err)
		})
	}
}

func TestLoadRows_Workbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"mass", "tech", "label"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{1.5, "solar", "light"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]interface{}{3, "coal"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	tbl, err := LoadRows(path, rowsRegistry())
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1.5, 1}, {3, 0}}, tbl.Values)
	assert.Equal(t, "light", tbl.Label(0))
	assert.Equal(t, "2", tbl.Label(1))
}

func TestLoadRows_CSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.csv")
	require.NoError(t, os.WriteFile(path, []byte("mass\n2\n"), 0o644))

	tbl, err := LoadRows(path, rowsRegistry())
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{2}}, tbl.Values)

	_, err = LoadRows(filepath.Join(t.TempDir(), "missing.csv"), rowsRegistry())
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))
}
