package fitsframe

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/astrogo/fitsio"
)

// Keywords giving the IFU head pointing of a VIMOS exposure.
const (
	IFURAKey  = "ESO INS IFU RA"
	IFUDecKey = "ESO INS IFU DEC"
)

// structural cards are regenerated by fitsio when an HDU is written.
func structural(name string) bool {
	switch name {
	case "SIMPLE", "BITPIX", "NAXIS", "EXTEND", "XTENSION", "PCOUNT", "GCOUNT", "END", "":
		return true
	}
	return strings.HasPrefix(name, "NAXIS")
}

// CopyWithKeywords writes a copy of the image file src to dst, replacing or
// appending the given cards in the primary header. Every HDU of src must be
// an image.
func CopyWithKeywords(src, dst string, primary []fitsio.Card) error {
	in, err := openFitsFile(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	w, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("could not create %s: %w", dst, err)
	}
	defer w.Close()

	out, err := fitsio.Create(w)
	if err != nil {
		return err
	}

	for i, hdu := range in.HDUs() {
		img, ok := hdu.(fitsio.Image)
		if !ok {
			out.Close()
			return fmt.Errorf("%s HDU %d is not an image; only image files can be copied", src, i)
		}
		var overrides []fitsio.Card
		if i == 0 {
			overrides = primary
		}
		if err := copyImage(out, img, overrides); err != nil {
			out.Close()
			return fmt.Errorf("copying %s HDU %d: %w", src, i, err)
		}
	}
	if err := out.Close(); err != nil {
		return err
	}
	return w.Close()
}

func copyImage(out *fitsio.File, img fitsio.Image, overrides []fitsio.Card) error {
	hdr := img.Header()
	dst := fitsio.NewImage(hdr.Bitpix(), hdr.Axes())
	defer dst.Close()

	pending := make(map[string]fitsio.Card, len(overrides))
	var order []string
	for _, c := range overrides {
		if _, dup := pending[c.Name]; !dup {
			order = append(order, c.Name)
		}
		pending[c.Name] = c
	}

	seen := make(map[string]bool)
	var cards []fitsio.Card
	for i := 0; i < len(hdr.Keys()); i += 1 {
		card := *hdr.Card(i)
		if structural(card.Name) || seen[card.Name] {
			continue
		}
		seen[card.Name] = true
		if o, ok := pending[card.Name]; ok {
			if o.Comment == "" {
				o.Comment = card.Comment
			}
			card = o
			delete(pending, card.Name)
		}
		cards = append(cards, card)
	}
	for _, name := range order {
		if c, ok := pending[name]; ok {
			cards = append(cards, c)
		}
	}
	if err := dst.Header().Append(cards...); err != nil {
		return err
	}

	pixels, err := typedPixels(img)
	if err != nil {
		return err
	}
	if pixels != nil {
		if err := dst.Write(pixels); err != nil {
			return err
		}
	}
	return out.Write(dst)
}

// typedPixels reads the image data in its on-disk type.
func typedPixels(img fitsio.Image) (interface{}, error) {
	hdr := img.Header()
	if len(hdr.Axes()) == 0 {
		return nil, nil
	}
	n := numPixels(hdr.Axes())
	var err error
	switch hdr.Bitpix() {
	case 8:
		data := make([]uint8, n)
		err = img.Read(&data)
		return data, err
	case 16:
		data := make([]int16, n)
		err = img.Read(&data)
		return data, err
	case 32:
		data := make([]int32, n)
		err = img.Read(&data)
		return data, err
	case 64:
		data := make([]int64, n)
		err = img.Read(&data)
		return data, err
	case -32:
		data := make([]float32, n)
		err = img.Read(&data)
		return data, err
	case -64:
		data := make([]float64, n)
		err = img.Read(&data)
		return data, err
	}
	return nil, fmt.Errorf("BITPIX %d is not supported", hdr.Bitpix())
}

// SetPointingWCS copies the cube src to dst and sets CRVAL1/CRVAL2 to the IFU
// pointing recorded in the src primary header.
func SetPointingWCS(src, dst string) error {
	hdr, err := ReadPrimaryHeader(src)
	if err != nil {
		return err
	}
	ra, err := hdr.Float(IFURAKey)
	if err != nil {
		return fmt.Errorf("%s: %w", src, err)
	}
	dec, err := hdr.Float(IFUDecKey)
	if err != nil {
		return fmt.Errorf("%s: %w", src, err)
	}
	return CopyWithKeywords(src, dst, []fitsio.Card{
		{Name: "CRVAL1", Value: ra},
		{Name: "CRVAL2", Value: dec},
	})
}
