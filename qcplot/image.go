package qcplot

import (
	"fmt"
	"image/color"
	"log"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"

	"vimospipe/fitsframe"
)

// ImageKind selects how an image product is displayed.
type ImageKind int

const (
	ReducedArc ImageKind = iota
	WavelengthMap
	SpatialMap
	Flat
	NormFlat
	MappedScience
)

func (k ImageKind) String() string {
	switch k {
	case ReducedArc:
		return "reduced_arc"
	case WavelengthMap:
		return "wavelength_map"
	case SpatialMap:
		return "spatial_map"
	case Flat:
		return "flat"
	case NormFlat:
		return "norm_flat"
	case MappedScience:
		return "mapped_science"
	}
	return fmt.Sprintf("image%d", int(k))
}

func (k ImageKind) title() string {
	switch k {
	case ReducedArc:
		return "Wavelength-calibrated arc lamp frame"
	case WavelengthMap:
		return "Wavelength map"
	case SpatialMap:
		return "Slit spatial map"
	case Flat:
		return "Flat field frame"
	case NormFlat:
		return "Normalised master flat frame"
	case MappedScience:
		return "Rectified science frame"
	}
	return k.String()
}

// imageHDU maps a multiplexing index onto the HDU holding its image. Flats
// and mapped science frames carry an error image after each data image. The
// spatial map is always the primary image.
func imageHDU(kind ImageKind, numHDU, ext int) (int, error) {
	if kind == SpatialMap {
		return 0, nil
	}
	stride, multi := 1, numHDU > 1
	if kind == Flat || kind == NormFlat || kind == MappedScience {
		stride, multi = 2, numHDU > 2
	}
	if !multi {
		if ext > 1 {
			return 0, fmt.Errorf("extension %d requested from a single image product", ext)
		}
		return 0, nil
	}
	hdu := 1 + (ext-1)*stride
	if hdu >= numHDU {
		return 0, fmt.Errorf("extension %d requested, product has %d HDUs", ext, numHDU)
	}
	return hdu, nil
}

// imageGrid exposes an Image as a heat map grid. Columns are placed on a
// linear world axis, rows on 1-based pixel numbers.
type imageGrid struct {
	img                 *fitsframe.Image
	crval, cdelt, crpix float64
}

func (g imageGrid) Dims() (c, r int) { return g.img.Width(), g.img.Height() }

func (g imageGrid) Z(c, r int) float64 { return g.img.At(c, r) }

func (g imageGrid) X(c int) float64 { return g.crval + (float64(c+1)-g.crpix)*g.cdelt }

func (g imageGrid) Y(r int) float64 { return float64(r + 1) }

func pixelGrid(img *fitsframe.Image) imageGrid {
	return imageGrid{img: img, crval: 1, cdelt: 1, crpix: 1}
}

// linearWCSGrid places columns on CRVAL1 + (x - CRPIX1) * CDELT1.
func linearWCSGrid(img *fitsframe.Image) imageGrid {
	g := pixelGrid(img)
	g.crval = img.Header.FloatOr("CRVAL1", 1)
	g.crpix = img.Header.FloatOr("CRPIX1", 1)
	g.cdelt = img.Header.FloatOr("CDELT1", img.Header.FloatOr("CD1_1", 1))
	if g.cdelt == 0 {
		g.cdelt = 1
	}
	return g
}

// heatMap draws g with the colour scale clipped to [lo, hi].
func heatMap(g imageGrid, lo, hi float64) *plotter.HeatMap {
	if !(hi > lo) {
		lo, hi = lo-0.5, lo+0.5
	}
	pal := palette.Heat(256, 1)
	colors := pal.Colors()

	hm := plotter.NewHeatMap(g, pal)
	hm.Min, hm.Max = lo, hi
	hm.Underflow = colors[0]
	hm.Overflow = colors[len(colors)-1]
	hm.NaN = color.Transparent
	hm.Rasterized = true
	return hm
}

// ImagePlot displays the image of a product, selecting the extension in opt.
// Flats get the slit traces of opt.Traces drawn over them and mapped science
// frames the extraction windows of opt.Objects. A companion table that
// cannot be read is logged and left out.
func ImagePlot(src ImageSource, kind ImageKind, opt Options) (*plot.Plot, error) {
	hdu, err := imageHDU(kind, src.NumHDU(), opt.ext())
	if err != nil {
		return nil, err
	}
	img, err := src.Image(hdu)
	if err != nil {
		return nil, err
	}
	plt, err := DisplayImage(img, kind)
	if err != nil {
		return nil, err
	}

	switch {
	case (kind == Flat || kind == NormFlat) && opt.Traces != nil:
		traces, err := SlitTraces(opt.Traces, opt.ext(), img.Width(), img.Height(), opt.TraceOffset)
		if err != nil {
			log.Printf("no slit traces on %s: %v", kind, err)
			break
		}
		err = overlay(plt, func() error {
			for _, tr := range traces {
				if err := addLine(plt, tr.Top, red); err != nil {
					return err
				}
				if err := addLine(plt, tr.Bottom, darkRed); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	case kind == MappedScience && opt.Objects != nil:
		windows, err := ExtractionWindows(opt.Objects, opt.ext())
		if err != nil {
			log.Printf("no extraction windows on %s: %v", kind, err)
			break
		}
		err = overlay(plt, func() error {
			for _, w := range windows {
				if err := addHLine(plt, w.Top, red); err != nil {
					return err
				}
				if err := addHLine(plt, w.Bottom, yellow); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return plt, nil
}

// DisplayImage draws img with the colour limits of kind.
func DisplayImage(img *fitsframe.Image, kind ImageKind) (*plot.Plot, error) {
	if img.Width() == 0 || len(img.Data) < img.Width()*img.Height() {
		return nil, fmt.Errorf("%s: %w", kind, ErrNoData)
	}

	grid := pixelGrid(img)
	xLabel, yLabel := "X [pix]", "Y [pix]"
	var lo, hi float64
	var err error
	switch kind {
	case ReducedArc:
		grid = linearWCSGrid(img)
		xLabel = "Lambda [Angstrom]"
		if lo, hi, err = arcLimits(img.Data); err != nil {
			return nil, err
		}
	case WavelengthMap:
		lo, hi = 3000, 10000
	case SpatialMap:
		xLabel, yLabel = "X", "Y"
		lo, hi = 0, 100
	case NormFlat:
		clipped := &fitsframe.Image{Axes: img.Axes, Header: img.Header, Data: make([]float64, len(img.Data))}
		for i, v := range img.Data {
			if v > 5 {
				v = 0
			}
			clipped.Data[i] = v
		}
		grid = pixelGrid(clipped)
		lo, hi = 0.9, 1.1
	default:
		s, err := Summarize(img.Data)
		if err != nil {
			return nil, err
		}
		lo, hi = s.Min, s.Max
	}

	plt := newPlot(kind.title(), xLabel, yLabel)
	plt.Add(heatMap(grid, lo, hi))
	w, h := grid.Dims()
	plt.X.Min, plt.X.Max = math.Min(grid.X(0), grid.X(w-1)), math.Max(grid.X(0), grid.X(w-1))
	plt.Y.Min, plt.Y.Max = grid.Y(0), grid.Y(h-1)
	return plt, nil
}

// spectrum is one row of an extracted spectra image on its wavelength axis.
type spectrum struct {
	wave, flux []float64
	obj, nobj  int
	bunit      string
}

// extractSpectrum picks one object of an extracted spectra image. The
// wavelength solution and BUNIT come from the primary header.
func extractSpectrum(src ImageSource, opt Options) (*spectrum, error) {
	hdu := 0
	if src.NumHDU() > 1 {
		hdu = opt.ext()
		if hdu >= src.NumHDU() {
			return nil, fmt.Errorf("extension %d requested, product has %d HDUs", hdu, src.NumHDU())
		}
	} else if opt.ext() > 1 {
		return nil, fmt.Errorf("extension %d requested from a single image product", opt.ext())
	}

	img, err := src.Image(hdu)
	if err != nil {
		return nil, err
	}
	nobj, nwave := img.Height(), img.Width()
	if nobj == 0 || nwave == 0 {
		return nil, fmt.Errorf("extracted spectra: %w", ErrNoData)
	}
	hdr, err := src.Header(0)
	if err != nil {
		return nil, err
	}

	obj := opt.Object
	if obj < 1 || obj > nobj {
		rows := make([][]float64, nobj)
		for y := 0; y < nobj; y += 1 {
			rows[y] = img.Row(y)
		}
		obj = brightestRow(rows) + 1
	}

	crpix := hdr.FloatOr("CRPIX1", 1)
	crval := hdr.FloatOr("CRVAL1", 1)
	cdelt := hdr.FloatOr("CD1_1", 1)
	wave := make([]float64, nwave)
	for i := range wave {
		wave[i] = (float64(i+1)-crpix)*cdelt + crval
	}
	bunit, _ := hdr.String("BUNIT")
	return &spectrum{wave: wave, flux: img.Row(obj - 1), obj: obj, nobj: nobj, bunit: bunit}, nil
}

// ExtractedScience plots one spectrum of an extracted spectra image: one
// object per row, wavelength along CRPIX1/CRVAL1/CD1_1. opt.Object picks
// the row; by default the object with the highest median flux is shown.
func ExtractedScience(src ImageSource, opt Options) (*plot.Plot, error) {
	sp, err := extractSpectrum(src, opt)
	if err != nil {
		return nil, err
	}
	plt := newPlot(fmt.Sprintf("Extracted spectrum, object %d of %d", sp.obj, sp.nobj),
		"Lambda", fmt.Sprintf("Total Flux [%s]", sp.bunit))
	pts := xyPoints(sp.wave, sp.flux)
	if len(pts) == 0 {
		return nil, fmt.Errorf("object %d: %w", sp.obj, ErrNoData)
	}
	if err := addLine(plt, pts, color.Black); err != nil {
		return nil, err
	}
	return plt, nil
}
