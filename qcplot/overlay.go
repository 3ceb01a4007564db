package qcplot

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"vimospipe/fitsframe"
)

// Trace is the upper and lower edge of one slit on a flat.
type Trace struct {
	Top, Bottom plotter.XYs
}

// polyval evaluates c[0] + c[1]*x + c[2]*x^2 + ...
func polyval(c []float64, x float64) float64 {
	v := 0.0
	for i := len(c) - 1; i >= 0; i-- {
		v = v*x + c[i]
	}
	return v
}

// SlitTraces evaluates the curvature polynomials of a MOS_CURV_COEFF table
// (columns c0, c1, ...; two rows per slit, top edge first) over the rows of
// a width x height flat. Traces run along the detector Y axis, so X is
// mirrored: x = width - P(y) + 1 + offset.
func SlitTraces(curv TableSource, ext, width, height int, offset float64) ([]Trace, error) {
	hdu, err := tableHDU(curv, ext)
	if err != nil {
		return nil, err
	}
	names, err := curv.ColumnNames(hdu)
	if err != nil {
		return nil, err
	}
	var coeffs [][]float64
	for deg := 0; hasColumn(names, fmt.Sprintf("c%d", deg)); deg++ {
		c, err := curv.Column(hdu, fmt.Sprintf("c%d", deg))
		if err != nil {
			return nil, err
		}
		coeffs = append(coeffs, c)
	}
	if len(coeffs) == 0 {
		return nil, fmt.Errorf("curvature coefficients c0: %w", fitsframe.ErrColumnNotFound)
	}

	row := func(r int) []float64 {
		c := make([]float64, len(coeffs))
		for deg := range coeffs {
			c[deg] = coeffs[deg][r]
		}
		return c
	}
	trace := func(c []float64) plotter.XYs {
		x := make([]float64, height)
		y := make([]float64, height)
		for ypix := 0; ypix < height; ypix++ {
			y[ypix] = float64(ypix + 1)
			x[ypix] = float64(width) - polyval(c, float64(ypix)) + 1 + offset
		}
		return xyPoints(x, y)
	}

	nslits := len(coeffs[0]) / 2
	traces := make([]Trace, 0, nslits)
	for slit := 0; slit < nslits; slit++ {
		traces = append(traces, Trace{Top: trace(row(2 * slit)), Bottom: trace(row(2*slit + 1))})
	}
	return traces, nil
}

// Window is the detector rows an object was extracted from.
type Window struct {
	Bottom, Top float64
}

// ExtractionWindows reads the start_N/end_N columns of an object table. A
// start of -1 marks an unused object slot.
func ExtractionWindows(objects TableSource, ext int) ([]Window, error) {
	hdu, err := tableHDU(objects, ext)
	if err != nil {
		return nil, err
	}
	names, err := objects.ColumnNames(hdu)
	if err != nil {
		return nil, err
	}

	var starts, ends [][]float64
	for n := 1; hasColumn(names, fmt.Sprintf("start_%d", n)); n++ {
		cols, err := lineColumns(objects, hdu, fmt.Sprintf("start_%d", n), fmt.Sprintf("end_%d", n))
		if err != nil {
			return nil, err
		}
		starts = append(starts, cols[0])
		ends = append(ends, cols[1])
	}
	if len(starts) == 0 {
		return nil, fmt.Errorf("object table start_1: %w", fitsframe.ErrColumnNotFound)
	}

	var windows []Window
	for slit := 0; slit < len(starts[0]); slit++ {
		for obj := range starts {
			if slit >= len(starts[obj]) || slit >= len(ends[obj]) || starts[obj][slit] == -1 {
				continue
			}
			windows = append(windows, Window{Bottom: starts[obj][slit], Top: ends[obj][slit]})
		}
	}
	return windows, nil
}

// overlay runs draw and puts the axis ranges back the way they were.
func overlay(plt *plot.Plot, draw func() error) error {
	xmin, xmax, ymin, ymax := plt.X.Min, plt.X.Max, plt.Y.Min, plt.Y.Max
	err := draw()
	plt.X.Min, plt.X.Max, plt.Y.Min, plt.Y.Max = xmin, xmax, ymin, ymax
	return err
}

func addHLine(plt *plot.Plot, y float64, c color.Color) error {
	return addLine(plt, plotter.XYs{{X: plt.X.Min, Y: y}, {X: plt.X.Max, Y: y}}, c)
}

func addVLine(plt *plot.Plot, x float64, c color.Color) error {
	return addLine(plt, plotter.XYs{{X: x, Y: plt.Y.Min}, {X: x, Y: plt.Y.Max}}, c)
}

// markLines draws a red vertical line at each wavelength, over the current
// Y range.
func markLines(plt *plot.Plot, lines []float64) error {
	if len(lines) == 0 || math.IsInf(plt.Y.Min, 0) || math.IsInf(plt.Y.Max, 0) {
		return nil
	}
	return overlay(plt, func() error {
		for _, l := range lines {
			if err := addVLine(plt, l, red); err != nil {
				return err
			}
		}
		return nil
	})
}

// StdTabRedFlux compares the flux calibrated standard star spectrum with
// the tabulated flux of the star from the spectro-photometric table. Points
// used in the response fit are highlighted. The brightest object of std is
// the standard.
func StdTabRedFlux(std ImageSource, specphot TableSource, opt Options) (*plot.Plot, error) {
	sp, err := extractSpectrum(std, Options{Extension: opt.Extension})
	if err != nil {
		return nil, err
	}
	cols, err := lineColumns(specphot, 1, "WAVE", "STD_FLUX", "USED_FIT")
	if err != nil {
		return nil, err
	}
	wave, stdFlux, usedFit := cols[0], cols[1], cols[2]

	reduced := xyPoints(sp.wave, sp.flux)
	if len(reduced) == 0 {
		return nil, fmt.Errorf("flux calibrated standard: %w", ErrNoData)
	}

	plt := newPlot("Flux calibrated standard star", "Lambda [Angstrom]", "10^-16 erg cm^-2 s^-1 Angstrom^-1")
	if err := addLine(plt, reduced, red); err != nil {
		return nil, err
	}
	if err := addScatter(plt, xyPoints(wave, stdFlux), darkBlue, vg.Points(3), "tabulated"); err != nil {
		return nil, err
	}
	used := where(wave, stdFlux, func(i int) bool { return i < len(usedFit) && usedFit[i] > 0 })
	if err := addScatter(plt, used, lightGreen, vg.Points(3), "used in fit"); err != nil {
		return nil, err
	}

	top := reduced[0].Y
	for _, p := range reduced {
		top = math.Max(top, p.Y)
	}
	plt.X.Min = math.Min(sp.wave[0], sp.wave[len(sp.wave)-1])
	plt.X.Max = math.Max(sp.wave[0], sp.wave[len(sp.wave)-1])
	if top > 0 {
		plt.Y.Min, plt.Y.Max = 0, top*1.1
	}
	return plt, nil
}
