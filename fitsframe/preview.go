package fitsframe

import (
	"encoding/binary"
	"errors"
	"image"
	"math"

	"github.com/astrogo/fitsio/fltimg"
	"github.com/montanaflynn/stats"
)

var ErrEmptyImage = errors.New("image has no finite pixels")

// DataRange returns the smallest and largest finite pixel.
func DataRange(data []float64) (lo, hi float64, err error) {
	vals := finite(data)
	if len(vals) == 0 {
		return 0, 0, ErrEmptyImage
	}
	lo, _ = stats.Min(vals)
	hi, _ = stats.Max(vals)
	return lo, hi, nil
}

func finite(data []float64) stats.Float64Data {
	var vals stats.Float64Data
	for _, v := range data {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			vals = append(vals, v)
		}
	}
	return vals
}

// AutoLimits returns display limits of median-3σ and median+5σ, clipped to
// the range of the finite pixels.
func AutoLimits(data []float64) (lo, hi float64, err error) {
	min, max, err := DataRange(data)
	if err != nil {
		return 0, 0, err
	}
	vals := finite(data)
	med, _ := stats.Median(vals)
	std, _ := stats.StandardDeviation(vals)

	lo = math.Max(min, med-3*std)
	hi = math.Min(max, med+5*std)
	if hi <= lo {
		lo, hi = min, max
	}
	return lo, hi, nil
}

// Preview returns the first plane of im as a float grey image mapping lo to
// black and hi to white. FITS rows run bottom up, so row 0 ends up at the
// bottom of the returned image.
func Preview(im *Image, lo, hi float64) *fltimg.Gray32 {
	w, h := im.Width(), im.Height()
	pix := make([]byte, 4*w*h)
	for y := 0; y < h; y++ {
		out := pix[4*w*(h-1-y):]
		for x, v := range im.Row(y) {
			binary.BigEndian.PutUint32(out[4*x:], math.Float32bits(float32(v)))
		}
	}
	return &fltimg.Gray32{
		Pix:    pix,
		Stride: 4 * w,
		Rect:   image.Rect(0, 0, w, h),
		Min:    float32(lo),
		Max:    float32(hi),
	}
}
