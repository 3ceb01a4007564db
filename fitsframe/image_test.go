package fitsframe

import (
	"encoding/binary"
	"image"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/astrogo/fitsio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeImage(t *testing.T, path string, cards []fitsio.Card, axes []int, data []float32) {
	t.Helper()

	w, err := os.Create(path)
	require.NoError(t, err)
	defer w.Close()

	f, err := fitsio.Create(w)
	require.NoError(t, err)

	im := fitsio.NewImage(-32, axes)
	defer im.Close()
	require.NoError(t, im.Header().Append(cards...))
	require.NoError(t, im.Write(data))
	require.NoError(t, f.Write(im))
	require.NoError(t, f.Close())
}

func TestReadImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arc.fits")
	writeImage(t, path,
		[]fitsio.Card{{Name: "CRVAL1", Value: 3700.0}, {Name: "OBJECT", Value: "ARC"}},
		[]int{3, 2},
		[]float32{1, 2, 3, 4, 5, 6},
	)

	im, err := ReadImage(path, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, im.Width())
	assert.Equal(t, 2, im.Height())
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, im.Data)
	assert.Equal(t, 6.0, im.At(2, 1))
	assert.Equal(t, []float64{4, 5, 6}, im.Row(1))

	obj, err := im.Header.String("OBJECT")
	require.NoError(t, err)
	assert.Equal(t, "ARC", obj)

	_, err = ReadImage(path, 3)
	assert.Error(t, err)
}

func TestCopyWithKeywords(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "cube.fits")
	dst := filepath.Join(dir, "out", "cube_wcs.fits")
	writeImage(t, src,
		[]fitsio.Card{
			{Name: "CRVAL1", Value: 1.0, Comment: "ra"},
			{Name: "OBJECT", Value: "NGC6652"},
		},
		[]int{2, 2, 2},
		[]float32{1, 2, 3, 4, 5, 6, 7, 8},
	)

	err := CopyWithKeywords(src, dst, []fitsio.Card{
		{Name: "CRVAL1", Value: 278.94},
		{Name: "CRVAL2", Value: -32.99},
	})
	require.NoError(t, err)

	cards, err := Cards(dst, 0)
	require.NoError(t, err)
	h := HeaderFromCards(cards)

	ra, err := h.Float("CRVAL1")
	require.NoError(t, err)
	assert.InDelta(t, 278.94, ra, 1e-9)
	dec, err := h.Float("CRVAL2")
	require.NoError(t, err)
	assert.InDelta(t, -32.99, dec, 1e-9)
	obj, err := h.String("OBJECT")
	require.NoError(t, err)
	assert.Equal(t, "NGC6652", obj)

	for _, c := range cards {
		if c.Name == "CRVAL1" {
			assert.Equal(t, "ra", c.Comment)
		}
	}

	im, err := ReadImage(dst, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 2}, im.Axes)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8}, im.Data)

	orig, err := ReadHeader(src, 0)
	require.NoError(t, err)
	assert.False(t, orig.Has("CRVAL2"))
}

func TestSetPointingWCSNeedsPointing(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "cube.fits")
	writeImage(t, src, []fitsio.Card{{Name: "OBJECT", Value: "X"}}, []int{1, 1}, []float32{0})

	err := SetPointingWCS(src, filepath.Join(dir, "new.fits"))
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.NoFileExists(t, filepath.Join(dir, "new.fits"))
}

func TestListFits(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"VIMOS.2.fits", "VIMOS.1.fits", "notes.txt", "master_bias.fits"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "q1.fits"), 0o755))

	all, err := ListFits(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "VIMOS.1.fits"),
		filepath.Join(dir, "VIMOS.2.fits"),
		filepath.Join(dir, "master_bias.fits"),
	}, all)

	raw, err := ListFits(dir, "VIMOS*.fits")
	require.NoError(t, err)
	assert.Len(t, raw, 2)

	_, err = ListFits(dir, "[")
	assert.Error(t, err)
}

func TestProductsSkipsFramesWithoutCategory(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.fits", "b.fits", "c.fits"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	headers := map[string]Header{
		"a.fits": {"ESO PRO CATG": "IFU_IDS"},
		"b.fits": {"ESO DPR TYPE": "BIAS"},
	}
	read := func(path string) (Header, error) {
		h, ok := headers[filepath.Base(path)]
		if !ok {
			return nil, os.ErrInvalid
		}
		return h, nil
	}

	products, err := Products(dir, read)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "IFU_IDS", products[0].Category)
	assert.Equal(t, filepath.Join(dir, "a.fits"), products[0].Path)
}

func TestAutoLimits(t *testing.T) {
	lo, hi, err := AutoLimits([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, math.NaN()})
	require.NoError(t, err)
	assert.Equal(t, 1.0, lo)
	assert.Equal(t, 10.0, hi)

	sky := make([]float64, 100)
	for i := range sky {
		sky[i] = 10
	}
	lo, hi, err = AutoLimits(append(sky, 1000))
	require.NoError(t, err)
	assert.Equal(t, 10.0, lo)
	assert.Less(t, hi, 1000.0)
	assert.Greater(t, hi, 10.0)

	_, _, err = AutoLimits([]float64{math.NaN(), math.Inf(1)})
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestPreviewFlipsRows(t *testing.T) {
	im := &Image{Axes: []int{2, 2}, Data: []float64{1, 2, 3, 4}}
	g := Preview(im, 1, 4)

	assert.Equal(t, image.Rect(0, 0, 2, 2), g.Rect)
	assert.Equal(t, float32(1), g.Min)
	assert.Equal(t, float32(4), g.Max)

	pixel := func(x, y int) float32 {
		return math.Float32frombits(binary.BigEndian.Uint32(g.Pix[y*g.Stride+4*x:]))
	}
	assert.Equal(t, float32(3), pixel(0, 0))
	assert.Equal(t, float32(4), pixel(1, 0))
	assert.Equal(t, float32(1), pixel(0, 1))
	assert.Equal(t, float32(2), pixel(1, 1))
}
