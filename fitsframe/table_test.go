package fitsframe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testColumn struct {
	name   string
	format string
	values []float64
}

// writeTables writes a primary HDU carrying cards followed by one binary
// table per entry of tables.
func writeTables(t *testing.T, path string, cards []fitsio.Card, tables ...[]testColumn) {
	t.Helper()

	w, err := os.Create(path)
	require.NoError(t, err)
	defer w.Close()

	f, err := fitsio.Create(w)
	require.NoError(t, err)

	phdu, err := fitsio.NewPrimaryHDU(nil)
	require.NoError(t, err)
	require.NoError(t, phdu.Header().Append(cards...))
	require.NoError(t, f.Write(phdu))

	for i, cols := range tables {
		defs := make([]fitsio.Column, len(cols))
		for j, c := range cols {
			defs[j] = fitsio.Column{Name: c.name, Format: c.format}
		}
		tbl, err := fitsio.NewTable(filepath.Base(path)+string(rune('A'+i)), defs, fitsio.BINARY_TBL)
		require.NoError(t, err)

		for row := 0; row < len(cols[0].values); row++ {
			args := make([]interface{}, len(cols))
			for j, c := range cols {
				v := c.values[row]
				switch c.format {
				case "E":
					f32 := float32(v)
					args[j] = &f32
				case "J":
					i32 := int32(v)
					args[j] = &i32
				default:
					f64 := v
					args[j] = &f64
				}
			}
			require.NoError(t, tbl.Write(args...))
		}
		require.NoError(t, f.Write(tbl))
		require.NoError(t, tbl.Close())
	}
	require.NoError(t, f.Close())
}

func TestTableColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lines.fits")
	writeTables(t, path,
		[]fitsio.Card{{Name: "OBJECT", Value: "ARC"}},
		[]testColumn{
			{name: "wavelength", format: "D", values: []float64{4000.5, 5000.25, 6000}},
			{name: "flux", format: "E", values: []float64{1.5, 2.5, -3}},
			{name: "fit_used", format: "J", values: []float64{1, 0, 1}},
		},
	)

	tf, err := OpenTable(path)
	require.NoError(t, err)
	defer tf.Close()

	assert.Equal(t, path, tf.Path())
	assert.Equal(t, 2, tf.NumHDU())

	names, err := tf.ColumnNames(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"wavelength", "flux", "fit_used"}, names)

	n, err := tf.NumRows(1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	wave, err := tf.Column(1, "wavelength")
	require.NoError(t, err)
	assert.Equal(t, []float64{4000.5, 5000.25, 6000}, wave)

	flux, err := tf.Column(1, "flux")
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2.5, -3}, flux)

	used, err := tf.Column(1, "fit_used")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 1}, used)

	h, err := tf.Header(0)
	require.NoError(t, err)
	obj, err := h.String("OBJECT")
	require.NoError(t, err)
	assert.Equal(t, "ARC", obj)
}

func TestTableErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resid.fits")
	writeTables(t, path, nil,
		[]testColumn{{name: "wavelength", format: "D", values: []float64{1, 2}}},
	)

	tf, err := OpenTable(path)
	require.NoError(t, err)

	_, err = tf.Column(1, "r10")
	assert.ErrorIs(t, err, ErrColumnNotFound)

	_, err = tf.Column(0, "wavelength")
	assert.Error(t, err, "primary HDU is not a table")

	_, err = tf.Column(2, "wavelength")
	assert.Error(t, err)

	_, err = tf.Image(1)
	assert.Error(t, err)

	require.NoError(t, tf.Close())
	assert.NoError(t, tf.Close(), "second close is a no-op")
}

func TestCheckFormat(t *testing.T) {
	tests := []struct {
		format string
		ok     bool
	}{
		{"D", true},
		{"1E", true},
		{"J", true},
		{"K", true},
		{"I", true},
		{"L", true},
		{" B ", true},
		{"3D", false},
		{"20A", false},
		{"A", false},
		{"", false},
	}
	for _, tt := range tests {
		err := checkFormat(tt.format)
		if tt.ok {
			assert.NoError(t, err, tt.format)
		} else {
			assert.Error(t, err, tt.format)
		}
	}
}

func TestCellValue(t *testing.T) {
	for _, cell := range []interface{}{float64(2), float32(2), int64(2), int32(2), int16(2), int8(2), uint8(2)} {
		v, ok := cellValue(cell)
		assert.True(t, ok, "%T", cell)
		assert.Equal(t, 2.0, v, "%T", cell)
	}
	v, ok := cellValue(true)
	assert.True(t, ok)
	assert.Equal(t, 1.0, v)

	_, ok = cellValue("2")
	assert.False(t, ok)
}
