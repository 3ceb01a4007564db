package fitsframe

import (
	"fmt"

	"github.com/astrogo/fitsio"
)

// Image is a FITS image HDU converted to float64 with BSCALE/BZERO applied.
// Data is stored with NAXIS1 varying fastest.
type Image struct {
	Axes   []int
	Data   []float64
	Header Header
}

// Width is NAXIS1.
func (im *Image) Width() int {
	if len(im.Axes) < 1 {
		return 0
	}
	return im.Axes[0]
}

// Height is NAXIS2, or 1 for a one dimensional image.
func (im *Image) Height() int {
	if len(im.Axes) < 2 {
		return 1
	}
	return im.Axes[1]
}

// At returns the pixel at zero based column x and row y of the first plane.
func (im *Image) At(x, y int) float64 {
	return im.Data[y*im.Width()+x]
}

// Row returns row y of the first plane. The slice aliases Data.
func (im *Image) Row(y int) []float64 {
	w := im.Width()
	return im.Data[y*w : (y+1)*w]
}

// ReadImage reads image HDU hdu of the file at path.
func ReadImage(path string, hdu int) (*Image, error) {
	f, err := openFitsFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if hdu < 0 || hdu >= len(f.HDUs()) {
		return nil, fmt.Errorf("%s has %d HDUs, no HDU %d", path, len(f.HDUs()), hdu)
	}
	img, ok := f.HDU(hdu).(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("%s HDU %d is not an image", path, hdu)
	}
	return decodeImage(img)
}

func decodeImage(img fitsio.Image) (*Image, error) {
	hdr := img.Header()
	axes := append([]int(nil), hdr.Axes()...)
	if len(axes) == 0 {
		return nil, fmt.Errorf("image HDU %q has no data", img.Name())
	}

	raw, err := readPixels(img)
	if err != nil {
		return nil, err
	}

	cards := make([]fitsio.Card, 0, len(hdr.Keys()))
	for i := 0; i < len(hdr.Keys()); i += 1 {
		cards = append(cards, *hdr.Card(i))
	}
	header := HeaderFromCards(cards)
	bscale := header.FloatOr("BSCALE", 1)
	bzero := header.FloatOr("BZERO", 0)
	if bscale != 1 || bzero != 0 {
		for i := range raw {
			raw[i] = raw[i]*bscale + bzero
		}
	}
	return &Image{Axes: axes, Data: raw, Header: header}, nil
}

func numPixels(axes []int) int {
	n := 1
	for _, a := range axes {
		n *= a
	}
	return n
}

// readPixels reads the data of img as float64 whatever its BITPIX.
func readPixels(img fitsio.Image) ([]float64, error) {
	hdr := img.Header()
	n := numPixels(hdr.Axes())
	out := make([]float64, n)

	switch hdr.Bitpix() {
	case 8:
		data := make([]uint8, n)
		if err := img.Read(&data); err != nil {
			return nil, err
		}
		for i, v := range data {
			out[i] = float64(v)
		}
	case 16:
		data := make([]int16, n)
		if err := img.Read(&data); err != nil {
			return nil, err
		}
		for i, v := range data {
			out[i] = float64(v)
		}
	case 32:
		data := make([]int32, n)
		if err := img.Read(&data); err != nil {
			return nil, err
		}
		for i, v := range data {
			out[i] = float64(v)
		}
	case 64:
		data := make([]int64, n)
		if err := img.Read(&data); err != nil {
			return nil, err
		}
		for i, v := range data {
			out[i] = float64(v)
		}
	case -32:
		data := make([]float32, n)
		if err := img.Read(&data); err != nil {
			return nil, err
		}
		for i, v := range data {
			out[i] = float64(v)
		}
	case -64:
		if err := img.Read(&out); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("BITPIX %d is not supported", hdr.Bitpix())
	}
	return out, nil
}
