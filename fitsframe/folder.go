package fitsframe

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
)

// DefaultPattern matches every FITS file in a folder.
const DefaultPattern = "*.fits"

// ListFits returns the regular files in folder whose names match pattern,
// sorted by name. An empty pattern means DefaultPattern.
func ListFits(folder, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("bad file pattern %q: %w", pattern, err)
	}

	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, err
	}
	var fitsPaths []string
	for i := 0; i < len(entries); i += 1 {
		if !entries[i].Type().IsRegular() {
			continue
		}
		name := entries[i].Name()
		if ok, _ := filepath.Match(pattern, name); ok {
			fitsPaths = append(fitsPaths, filepath.Join(folder, name))
		}
	}
	sort.Strings(fitsPaths)
	return fitsPaths, nil
}

// ProductCategoryKey is the keyword pipeline products carry their category in.
const ProductCategoryKey = "ESO PRO CATG"

// Product is a pipeline output file together with its category.
type Product struct {
	Path     string
	Category string
	Header   Header
}

// Products lists the FITS files in folder that carry a product category.
// Files without one (raw frames, static calibrations) are skipped.
func Products(folder string, read HeaderFunc) ([]Product, error) {
	if read == nil {
		read = ReadPrimaryHeader
	}
	paths, err := ListFits(folder, DefaultPattern)
	if err != nil {
		return nil, err
	}

	var products []Product
	for _, path := range paths {
		hdr, err := read(path)
		if err != nil {
			log.Printf("skipping %s: %v", path, err)
			continue
		}
		catg, err := hdr.String(ProductCategoryKey)
		if err != nil {
			continue
		}
		products = append(products, Product{Path: path, Category: catg, Header: hdr})
	}
	return products, nil
}
