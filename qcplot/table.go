package qcplot

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"vimospipe/fitsframe"
)

var (
	darkBlue   = color.RGBA{R: 0x00, G: 0x00, B: 0x8b, A: 0xff}
	darkRed    = color.RGBA{R: 0x8b, G: 0x00, B: 0x00, A: 0xff}
	yellow     = color.RGBA{R: 0xff, G: 0xff, B: 0x00, A: 0xff}
	green      = color.RGBA{R: 0x00, G: 0x80, B: 0x00, A: 0xff}
	lightGreen = color.RGBA{R: 0x90, G: 0xee, B: 0x90, A: 0xff}
	red        = color.RGBA{R: 0xff, G: 0x00, B: 0x00, A: 0xff}
)

func tableHDU(src TableSource, ext int) (int, error) {
	if ext >= src.NumHDU() {
		return 0, fmt.Errorf("extension %d requested, product has %d HDUs", ext, src.NumHDU())
	}
	return ext, nil
}

func hasColumn(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// where pairs x[i] and y[i] for the rows keep accepts.
func where(x, y []float64, keep func(i int) bool) plotter.XYs {
	var xs, ys []float64
	for i := 0; i < len(x) && i < len(y); i += 1 {
		if keep(i) {
			xs = append(xs, x[i])
			ys = append(ys, y[i])
		}
	}
	return xyPoints(xs, ys)
}

// residualRow parses the row number out of a residual column name (r0,
// r10, ...).
func residualRow(name string) (int, bool) {
	if !strings.HasPrefix(name, "r") {
		return 0, false
	}
	n, err := strconv.Atoi(name[1:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// DispResiduals plots the residuals of the wavelength calibration against
// wavelength and against detector row. Each rN column holds the residuals
// of row N. opt.ExcludedLines are marked on the wavelength plot.
func DispResiduals(src TableSource, opt Options) ([]Figure, error) {
	hdu, err := tableHDU(src, opt.ext())
	if err != nil {
		return nil, err
	}
	wave, err := src.Column(hdu, "wavelength")
	if err != nil {
		return nil, err
	}
	names, err := src.ColumnNames(hdu)
	if err != nil {
		return nil, err
	}

	var allWave, allY, allRes []float64
	for _, name := range names {
		row, ok := residualRow(name)
		if !ok {
			continue
		}
		res, err := src.Column(hdu, name)
		if err != nil {
			return nil, err
		}
		for i := 0; i < len(res) && i < len(wave); i += 1 {
			allWave = append(allWave, wave[i])
			allY = append(allY, float64(row))
			allRes = append(allRes, res[i])
		}
	}
	vsWave := xyPoints(allWave, allRes)
	if len(vsWave) == 0 {
		return nil, fmt.Errorf("dispersion residuals: %w", ErrNoData)
	}

	pw := newPlot("Residuals of wavelength calibration", "Wavelength [Ang]", "Residual [pix]")
	if err := addScatter(pw, vsWave, color.Black, vg.Points(2), ""); err != nil {
		return nil, err
	}
	if err := markLines(pw, opt.ExcludedLines); err != nil {
		return nil, err
	}
	py := newPlot("Residuals of wavelength calibration", "Ypos [pix]", "Residual [pix]")
	if err := addScatter(py, xyPoints(allY, allRes), color.Black, vg.Points(2), ""); err != nil {
		return nil, err
	}
	return []Figure{{Name: "res_vs_wave", Plot: pw}, {Name: "res_vs_y", Plot: py}}, nil
}

// lineColumns reads the named columns of table HDU hdu.
func lineColumns(src TableSource, hdu int, names ...string) ([][]float64, error) {
	cols := make([][]float64, len(names))
	for i, name := range names {
		c, err := src.Column(hdu, name)
		if err != nil {
			return nil, err
		}
		cols[i] = c
	}
	return cols, nil
}

// DetectedLines plots the arc line positions on the detector, coloured by
// identification, and the line position residuals against wavelength.
// Rectified positions are used when the table has them.
func DetectedLines(src TableSource, opt Options) ([]Figure, error) {
	hdu, err := tableHDU(src, opt.ext())
	if err != nil {
		return nil, err
	}

	pos, err := lineColumns(src, hdu, "xpos_rectified", "ypos_rectified", "xpos_rectified_iter", "ypos_rectified_iter")
	if errors.Is(err, fitsframe.ErrColumnNotFound) {
		pos, err = lineColumns(src, hdu, "xpos", "ypos", "xpos_iter", "ypos_iter")
	}
	if err != nil {
		return nil, err
	}
	ident, err := lineColumns(src, hdu, "wave_ident", "wave_ident_iter", "res_xpos", "fit_used")
	if err != nil {
		return nil, err
	}
	x, y, xIter, yIter := pos[0], pos[1], pos[2], pos[3]
	wave, waveIter, resX, fitUsed := ident[0], ident[1], ident[2], ident[3]

	all := xyPoints(x, y)
	if len(all) == 0 {
		return nil, fmt.Errorf("detected lines: %w", ErrNoData)
	}

	pxy := newPlot("Detected arc lines", "Xpos [pix]", "Ypos [pix]")
	layers := []struct {
		pts    plotter.XYs
		c      color.Color
		legend string
	}{
		{all, color.Black, "detected"},
		{where(xIter, yIter, func(i int) bool { return i < len(waveIter) && finite(waveIter[i]) }), lightGreen, "identified, second pass"},
		{where(x, y, func(i int) bool { return i < len(wave) && finite(wave[i]) }), green, "identified"},
		{where(xIter, yIter, func(i int) bool {
			identified := (i < len(wave) && finite(wave[i])) || (i < len(waveIter) && finite(waveIter[i]))
			return identified && i < len(fitUsed) && fitUsed[i] == 0
		}), red, "rejected by fit"},
	}
	for _, l := range layers {
		if err := addScatter(pxy, l.pts, l.c, vg.Points(2), l.legend); err != nil {
			return nil, err
		}
	}

	pres := newPlot("Line position residuals", "Wavelength [Ang]", "Residual [pix]")
	if err := addScatter(pres, xyPoints(wave, resX), color.Black, vg.Points(2), ""); err != nil {
		return nil, err
	}
	if err := markLines(pres, opt.ExcludedLines); err != nil {
		return nil, err
	}
	return []Figure{{Name: "x_vs_y", Plot: pxy}, {Name: "res_vs_wave", Plot: pres}}, nil
}

// SkylinesOffsets plots the offset of each sky line in every slit against
// its wavelength. The table has a wave column and one column per slit.
func SkylinesOffsets(src TableSource, opt Options) ([]Figure, error) {
	const hdu = 1
	wave, err := src.Column(hdu, "wave")
	if err != nil {
		return nil, err
	}
	names, err := src.ColumnNames(hdu)
	if err != nil {
		return nil, err
	}

	var allWave, allRes []float64
	for _, name := range names {
		if name == "wave" {
			continue
		}
		res, err := src.Column(hdu, name)
		if err != nil {
			return nil, err
		}
		for i := 0; i < len(res) && i < len(wave); i += 1 {
			allWave = append(allWave, wave[i])
			allRes = append(allRes, res[i])
		}
	}
	pts := xyPoints(allWave, allRes)
	if len(pts) == 0 {
		return nil, fmt.Errorf("sky line offsets: %w", ErrNoData)
	}

	plt := newPlot("Sky line offsets", "Wavelength [Ang]", "Residual [Ang]")
	if err := addScatter(plt, pts, color.Black, vg.Points(3.5), ""); err != nil {
		return nil, err
	}
	return []Figure{{Name: "skylines_offsets", Plot: plt}}, nil
}

// SpecPhot plots the response curve of a spectro-photometric table together
// with the extracted and the tabulated standard star flux. Tables made with
// a flat SED correction carry _FFSED response columns.
func SpecPhot(src TableSource, opt Options) ([]Figure, error) {
	respNames, err := src.ColumnNames(2)
	if err != nil {
		return nil, err
	}
	suffix := ""
	if !hasColumn(respNames, "RESPONSE") {
		suffix = "_FFSED"
	}

	cols, err := lineColumns(src, 1, "WAVE", "STD_FLUX", "OBS_FLUX", "RAW_RESPONSE"+suffix, "USED_FIT")
	if err != nil {
		return nil, err
	}
	wave, stdFlux, obsFlux, rawResp, usedFit := cols[0], cols[1], cols[2], cols[3], cols[4]
	fit, err := lineColumns(src, 2, "WAVE", "RESPONSE"+suffix)
	if err != nil {
		return nil, err
	}
	waveObs, fitResp := fit[0], fit[1]

	rawNonNull := where(wave, rawResp, func(i int) bool { return rawResp[i] > 0 })
	used := where(wave, rawResp, func(i int) bool { return i < len(usedFit) && usedFit[i] > 0 })

	presp := newPlot("Response", "Lambda [Angstrom]", "10^-16 erg cm^-2 e-^-1")
	if err := addLine(presp, xyPoints(waveObs, fitResp), color.Black); err != nil {
		return nil, err
	}
	if err := addScatter(presp, rawNonNull, darkBlue, vg.Points(2), "raw response"); err != nil {
		return nil, err
	}
	if err := addScatter(presp, used, lightGreen, vg.Points(2), "used in fit"); err != nil {
		return nil, err
	}
	if len(rawNonNull) > 0 {
		top := rawNonNull[0].Y
		for _, p := range rawNonNull {
			if p.Y > top {
				top = p.Y
			}
		}
		presp.Y.Min, presp.Y.Max = 0, top*1.1
	}

	pext := newPlot("Extracted standard star", "Lambda [Angstrom]", "e- s^-1 Angstrom^-1")
	if err := addLine(pext, where(wave, obsFlux, func(i int) bool { return obsFlux[i] > 0 }), color.Black); err != nil {
		return nil, err
	}

	ptab := newPlot("Tabulated standard star flux", "Lambda [Angstrom]", "10^-16 erg cm^-2 s^-1 Angstrom^-1")
	tab := xyPoints(wave, stdFlux)
	if len(tab) == 0 {
		return nil, fmt.Errorf("standard star table: %w", ErrNoData)
	}
	if err := addScatter(ptab, tab, color.Black, vg.Points(2), ""); err != nil {
		return nil, err
	}

	return []Figure{
		{Name: "response", Plot: presp},
		{Name: "std_extracted", Plot: pext},
		{Name: "std_tabulated", Plot: ptab},
	}, nil
}
