package qcplot

import (
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"

	"vimospipe/fitsframe"
)

// Opener loads a product for plotting.
type Opener func(path string) (Source, error)

// OpenProduct reads a product with fitsio.
func OpenProduct(path string) (Source, error) {
	tf, err := fitsframe.OpenTable(path)
	if err != nil {
		return nil, err
	}
	return tf, nil
}

// Rendered is one PNG written by a Reporter.
type Rendered struct {
	Product  string
	Category string
	Path     string
}

// Failure is a product that could not be plotted.
type Failure struct {
	Product string
	Err     error
}

// ReportResult is the outcome of a Report run.
type ReportResult struct {
	Rendered []Rendered
	Failed   []Failure
	// Unplotted lists products whose category has no plot.
	Unplotted []string
}

// Reporter turns the products in a directory into PNG plots.
type Reporter struct {
	Options Options
	Read    fitsframe.HeaderFunc
	Open    Opener
}

// Report plots every product in dir with the default reader.
func Report(dir, outDir string, opt Options) (*ReportResult, error) {
	r := &Reporter{Options: opt}
	return r.Report(dir, outDir)
}

// Report finds the products in dir by their category, builds the plots of
// each and writes <category>_<figure>.png files into outDir. A product
// that fails to load or plot is logged and skipped. Slit traces, object
// windows and tabulated standard fluxes are taken from the other products
// in dir, and titles carry the instrument setup of the product.
func (r *Reporter) Report(dir, outDir string) (*ReportResult, error) {
	open := r.Open
	if open == nil {
		open = OpenProduct
	}
	products, err := fitsframe.Products(dir, r.Read)
	if err != nil {
		return nil, err
	}

	byCategory := make(map[string]fitsframe.Product)
	for _, prod := range products {
		if _, ok := byCategory[prod.Category]; !ok {
			byCategory[prod.Category] = prod
		}
	}

	res := &ReportResult{}
	seen := make(map[string]int)
	for _, prod := range products {
		build, ok := Builders[prod.Category]
		if !ok {
			res.Unplotted = append(res.Unplotted, prod.Path)
			continue
		}
		src, err := open(prod.Path)
		if err != nil {
			log.Printf("skipping %s: %v", prod.Path, err)
			res.Failed = append(res.Failed, Failure{Product: prod.Path, Err: err})
			continue
		}
		opt, companions := r.companions(prod.Category, byCategory, open)
		figures, err := build(src, opt)
		closeSource(src)
		for _, c := range companions {
			closeSource(c)
		}
		if err != nil {
			log.Printf("cannot plot %s (%s): %v", prod.Path, prod.Category, err)
			res.Failed = append(res.Failed, Failure{Product: prod.Path, Err: err})
			continue
		}

		prefix := strings.ToLower(prod.Category)
		if n := seen[prod.Category]; n > 0 {
			prefix = fmt.Sprintf("%s%d", prefix, n+1)
		}
		seen[prod.Category]++

		annotate(figures, prod.Header)
		for _, fig := range figures {
			out := filepath.Join(outDir, prefix+"_"+fig.Name+".png")
			if err := Render(fig.Plot, out); err != nil {
				log.Printf("cannot plot %s (%s): %v", prod.Path, prod.Category, err)
				res.Failed = append(res.Failed, Failure{Product: prod.Path, Err: err})
				continue
			}
			res.Rendered = append(res.Rendered, Rendered{Product: prod.Path, Category: prod.Category, Path: out})
		}
	}
	return res, nil
}

// annotate adds the instrument setup of h under the figure titles.
func annotate(figures []Figure, h fitsframe.Header) {
	setup, ok := fitsframe.InstrumentSetup(h)
	if !ok {
		return
	}
	for _, fig := range figures {
		fig.Plot.Title.Text += "\n" + setup.String()
	}
}

func closeSource(src Source) {
	if c, ok := src.(io.Closer); ok {
		c.Close()
	}
}

// Categories of the products other plots are drawn with.
const (
	curvatureCategory  = "MOS_CURV_COEFF"
	masterFlatCategory = "MOS_MASTER_SCREEN_FLAT"
	objectsCategory    = "OBJECT_SCI_TABLE"
	specPhotCategory   = "MOS_SPECPHOT_TABLE"
)

// TrimLLYKey holds the first detector row kept after overscan trimming.
const TrimLLYKey = "ESO QC TRIMM LLY"

// companions opens the products a plot of category draws on top of its
// own and returns the options pointing at them. The caller closes them.
func (r *Reporter) companions(category string, byCategory map[string]fitsframe.Product, open Opener) (Options, []Source) {
	opt := r.Options
	var opened []Source
	get := func(catg string) Source {
		prod, ok := byCategory[catg]
		if !ok {
			return nil
		}
		src, err := open(prod.Path)
		if err != nil {
			log.Printf("cannot read %s: %v", prod.Path, err)
			return nil
		}
		opened = append(opened, src)
		return src
	}

	switch category {
	case "MOS_SCREEN_FLAT", "MOS_COMBINED_SCREEN_FLAT", masterFlatCategory:
		curv := get(curvatureCategory)
		if curv == nil {
			break
		}
		opt.Traces = curv
		if category == masterFlatCategory {
			break
		}
		if master, ok := byCategory[masterFlatCategory]; ok {
			if lly, err := master.Header.Float(TrimLLYKey); err == nil {
				opt.TraceOffset = lly - 1
			}
		}
	case "MOS_SCIENCE_EXTRACTED":
		if objects := get(objectsCategory); objects != nil {
			opt.Objects = objects
		}
	case "MOS_STANDARD_FLUX_REDUCED":
		if specphot := get(specPhotCategory); specphot != nil {
			opt.SpecPhot = specphot
		}
	}
	return opt, opened
}
