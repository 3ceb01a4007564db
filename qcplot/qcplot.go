// Package qcplot draws the diagnostic plots used to judge VIMOS pipeline
// products: reduced arcs, wavelength and spatial maps, flats, dispersion
// residuals, detected lines, sky line offsets, response curves and extracted
// spectra.
package qcplot

import (
	"errors"
	"fmt"
	"image/color"
	"log"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/font"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"vimospipe/fitsframe"
)

var ErrNoData = errors.New("nothing to plot")

// ImageSource gives access to the image HDUs of a product.
type ImageSource interface {
	NumHDU() int
	Header(hdu int) (fitsframe.Header, error)
	Image(hdu int) (*fitsframe.Image, error)
}

// TableSource gives access to the binary tables of a product.
type TableSource interface {
	NumHDU() int
	ColumnNames(hdu int) ([]string, error)
	NumRows(hdu int) (int, error)
	Column(hdu int, name string) ([]float64, error)
}

// Source is a FITS product. *fitsframe.TableFile implements it.
type Source interface {
	ImageSource
	TableSource
}

// Options select what part of a product is drawn.
type Options struct {
	// Extension is the 1-based multiplexing index of multi-extension
	// products. Zero means the first.
	Extension int
	// Object is the 1-based row of an extracted spectra image. Zero picks
	// the brightest object.
	Object int
	// ExcludedLines are arc wavelengths marked on the residual plots, the
	// lines handed to the calibration recipe as ignore_lines.
	ExcludedLines []float64

	// Companion products, filled in by Reporter from the same directory.

	// Traces is a MOS_CURV_COEFF table drawn over flats.
	Traces TableSource
	// TraceOffset shifts the traces along X. Raw flats need the Y overscan
	// trimmed from the master flat (ESO QC TRIMM LLY) added back.
	TraceOffset float64
	// Objects is an OBJECT_SCI_TABLE whose extraction windows are drawn on
	// mapped science frames.
	Objects TableSource
	// SpecPhot is the response table a flux calibrated standard is
	// compared with.
	SpecPhot TableSource
}

func (o Options) ext() int {
	if o.Extension < 1 {
		return 1
	}
	return o.Extension
}

// Figure is one plot of a product. Name ends up in the file name.
type Figure struct {
	Name string
	Plot *plot.Plot
}

// Builder makes the figures of one product kind.
type Builder func(src Source, opt Options) ([]Figure, error)

// Builders maps a product category (ESO PRO CATG) to its plots.
var Builders = map[string]Builder{
	"MOS_ARC_SPECTRUM_EXTRACTED":  imageBuilder(ReducedArc),
	"IFU_ARC_SPECTRUM_EXTRACTED":  imageBuilder(ReducedArc),
	"MOS_WAVELENGTH_MAP":          imageBuilder(WavelengthMap),
	"MOS_SPATIAL_MAP":             imageBuilder(SpatialMap),
	"MOS_SCREEN_FLAT":             imageBuilder(Flat),
	"MOS_COMBINED_SCREEN_FLAT":    imageBuilder(Flat),
	"IFU_FLAT_SPECTRUM_EXTRACTED": imageBuilder(Flat),
	"MOS_MASTER_SCREEN_FLAT":      imageBuilder(NormFlat),
	"MOS_SCIENCE_EXTRACTED":       imageBuilder(MappedScience),

	"MOS_DISP_RESIDUALS_TABLE":      tableBuilder(DispResiduals),
	"MOS_DETECTED_LINES":            tableBuilder(DetectedLines),
	"MOS_SCI_SKYLINES_OFFSETS_SLIT": tableBuilder(SkylinesOffsets),
	"MOS_STD_SKYLINES_OFFSETS_SLIT": tableBuilder(SkylinesOffsets),
	"MOS_SPECPHOT_TABLE":            tableBuilder(SpecPhot),
	"IFU_SPECPHOT_TABLE":            tableBuilder(SpecPhot),

	"MOS_SCIENCE_REDUCED":      spectrumBuilder,
	"MOS_SCIENCE_FLUX_REDUCED": spectrumBuilder,
	"IFU_SCIENCE_REDUCED":      spectrumBuilder,
	"IFU_SCIENCE_FLUX_REDUCED": spectrumBuilder,
	"IFU_STANDARD_REDUCED":     spectrumBuilder,
	"MOS_STANDARD_REDUCED":     spectrumBuilder,

	"MOS_STANDARD_FLUX_REDUCED": standardFluxBuilder,
}

func imageBuilder(kind ImageKind) Builder {
	return func(src Source, opt Options) ([]Figure, error) {
		p, err := ImagePlot(src, kind, opt)
		if err != nil {
			return nil, err
		}
		return []Figure{{Name: kind.String(), Plot: p}}, nil
	}
}

func tableBuilder(fn func(TableSource, Options) ([]Figure, error)) Builder {
	return func(src Source, opt Options) ([]Figure, error) {
		return fn(src, opt)
	}
}

func spectrumBuilder(src Source, opt Options) ([]Figure, error) {
	p, err := ExtractedScience(src, opt)
	if err != nil {
		return nil, err
	}
	return []Figure{{Name: "spectrum", Plot: p}}, nil
}

// standardFluxBuilder adds the comparison with the tabulated flux when the
// response table is known.
func standardFluxBuilder(src Source, opt Options) ([]Figure, error) {
	figs, err := spectrumBuilder(src, opt)
	if err != nil || opt.SpecPhot == nil {
		return figs, err
	}
	p, err := StdTabRedFlux(src, opt.SpecPhot, opt)
	if err != nil {
		log.Printf("no tabulated flux comparison: %v", err)
		return figs, nil
	}
	return append(figs, Figure{Name: "std_tab_red_flux", Plot: p}), nil
}

// Plot size used by Render.
const (
	Width  = 14 * vg.Inch
	Height = 6 * vg.Inch
)

func newPlot(title, xLabel, yLabel string) *plot.Plot {
	plot.DefaultFont = font.Font{Typeface: "Liberation", Variant: "Sans", Size: font.Points(14)}

	plt := plot.New()
	plt.Title.Text = title
	plt.X.Label.Text = xLabel
	plt.Y.Label.Text = yLabel
	return plt
}

// xyPoints pairs x and y, dropping pairs where either value is not finite.
func xyPoints(x, y []float64) plotter.XYs {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	pts := make(plotter.XYs, 0, n)
	for i := 0; i < n; i += 1 {
		if !finite(x[i]) || !finite(y[i]) {
			continue
		}
		pts = append(pts, plotter.XY{X: x[i], Y: y[i]})
	}
	return pts
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// addScatter draws pts as filled circles. Empty sets are skipped.
func addScatter(plt *plot.Plot, pts plotter.XYs, c color.Color, radius vg.Length, legend string) error {
	if len(pts) == 0 {
		return nil
	}
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	s.GlyphStyle.Color = c
	s.GlyphStyle.Radius = radius
	s.GlyphStyle.Shape = plotutil.Shape(5)
	plt.Add(s)
	if legend != "" {
		plt.Legend.Add(legend, s)
	}
	return nil
}

func addLine(plt *plot.Plot, pts plotter.XYs, c color.Color) error {
	if len(pts) == 0 {
		return nil
	}
	l, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	l.LineStyle.Color = c
	l.LineStyle.Width = vg.Points(1.5)
	plt.Add(l)
	return nil
}

// Render writes plt as a PNG to path, creating parent directories.
func Render(plt *plot.Plot, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := plt.Save(Width, Height, path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}
