package fitsframe

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/astrogo/fitsio"
)

var (
	ErrKeyNotFound = errors.New("keyword not found")
	ErrKeyType     = errors.New("keyword has unexpected type")
)

const hierarch = "HIERARCH"

// Header holds the cards of one HDU keyed by name. ESO hierarchical keywords
// are stored without their HIERARCH prefix, so "ESO DPR TYPE" and
// "HIERARCH ESO DPR TYPE" address the same card.
type Header map[string]interface{}

// HeaderFunc reads the primary header of a FITS file.
type HeaderFunc func(path string) (Header, error)

func normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if strings.HasPrefix(key, hierarch+" ") {
		key = strings.TrimSpace(key[len(hierarch):])
	}
	return key
}

// HeaderFromCards builds a Header from fitsio cards. The first card of a
// given name wins.
func HeaderFromCards(cards []fitsio.Card) Header {
	h := make(Header, len(cards))
	for _, card := range cards {
		name := normalizeKey(card.Name)
		if name == "" {
			continue
		}
		if _, dup := h[name]; dup {
			continue
		}
		h[name] = card.Value
	}
	return h
}

func (h Header) lookup(key string) (interface{}, bool) {
	name := normalizeKey(key)
	if v, ok := h[name]; ok {
		return v, true
	}
	v, ok := h[hierarch+" "+name]
	return v, ok
}

// Has reports whether the keyword is present.
func (h Header) Has(key string) bool {
	_, ok := h.lookup(key)
	return ok
}

// Get returns the raw card value.
func (h Header) Get(key string) (interface{}, error) {
	v, ok := h.lookup(key)
	if !ok {
		return nil, fmt.Errorf("%s: %w", normalizeKey(key), ErrKeyNotFound)
	}
	return v, nil
}

// String returns a string keyword with FITS padding removed.
func (h Header) String(key string) (string, error) {
	v, err := h.Get(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s is %T, not string: %w", normalizeKey(key), v, ErrKeyType)
	}
	return strings.TrimSpace(s), nil
}

// Int returns an integer keyword. Integral floats and numeric strings are
// accepted since some instruments write quadrant numbers as either.
func (h Header) Int(key string) (int, error) {
	v, err := h.Get(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int8:
		return int(n), nil
	case int16:
		return int(n), nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint8:
		return int(n), nil
	case float64:
		if n == math.Trunc(n) {
			return int(n), nil
		}
	case float32:
		if float64(n) == math.Trunc(float64(n)) {
			return int(n), nil
		}
	case string:
		i, convErr := strconv.Atoi(strings.TrimSpace(n))
		if convErr == nil {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%s is %T(%v), not integer: %w", normalizeKey(key), v, v, ErrKeyType)
}

// Float returns a numeric keyword as float64.
func (h Header) Float(key string) (float64, error) {
	v, err := h.Get(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, convErr := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if convErr == nil {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%s is %T(%v), not numeric: %w", normalizeKey(key), v, v, ErrKeyType)
}

// FloatOr returns the keyword as float64 or def when it is absent or not numeric.
func (h Header) FloatOr(key string, def float64) float64 {
	f, err := h.Float(key)
	if err != nil {
		return def
	}
	return f
}

func openFitsFile(fitsFilePath string) (*fitsio.File, error) {
	fileHandle, err := os.Open(fitsFilePath)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", fitsFilePath, err)
	}
	defer fileHandle.Close()

	fitsHandle, err := fitsio.Open(fileHandle)
	if err != nil {
		return nil, fmt.Errorf("%s is not a readable FITS file: %w", fitsFilePath, err)
	}
	return fitsHandle, nil
}

// Cards returns the cards of HDU hdu in file order.
func Cards(path string, hdu int) ([]fitsio.Card, error) {
	f, err := openFitsFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if hdu < 0 || hdu >= len(f.HDUs()) {
		return nil, fmt.Errorf("%s has %d HDUs, no HDU %d", path, len(f.HDUs()), hdu)
	}
	hdr := f.HDU(hdu).Header()
	cards := make([]fitsio.Card, 0, len(hdr.Keys()))
	for i := 0; i < len(hdr.Keys()); i += 1 {
		cards = append(cards, *hdr.Card(i))
	}
	return cards, nil
}

// ReadHeader returns the header of HDU hdu.
func ReadHeader(path string, hdu int) (Header, error) {
	cards, err := Cards(path, hdu)
	if err != nil {
		return nil, err
	}
	return HeaderFromCards(cards), nil
}

// ReadPrimaryHeader returns the header of the primary HDU. It satisfies HeaderFunc.
func ReadPrimaryHeader(path string) (Header, error) {
	return ReadHeader(path, 0)
}

// FormatCards renders cards one per line for display.
func FormatCards(cards []fitsio.Card) []string {
	var lines []string
	for _, card := range cards {
		var line string
		if card.Comment == "" {
			line = fmt.Sprintf("%8s: %8v", card.Name, card.Value)
		} else {
			line = fmt.Sprintf("%8s: %8v (%s)", card.Name, card.Value, card.Comment)
		}
		lines = append(lines, line)
	}
	return lines
}

// Setup is the instrument configuration a frame was taken with.
type Setup struct {
	Grism  string
	Filter string
	Mask   string
}

func (s Setup) String() string {
	return fmt.Sprintf("Grism/Filter: %s/%s   Mask id: %s", s.Grism, s.Filter, s.Mask)
}

// InstrumentSetup reads the grism, filter and mask of the four VIMOS
// quadrants. The highest numbered quadrant present wins. ok is false when
// the header names none of them.
func InstrumentSetup(h Header) (setup Setup, ok bool) {
	setup = Setup{Grism: "unknown", Filter: "free", Mask: "free"}
	for q := 1; q <= 4; q++ {
		if v, err := h.Get(fmt.Sprintf("ESO INS GRIS%d NAME", q)); err == nil {
			setup.Grism, ok = strings.TrimSpace(fmt.Sprint(v)), true
		}
		if v, err := h.Get(fmt.Sprintf("ESO INS FILT%d NAME", q)); err == nil {
			setup.Filter, ok = strings.TrimSpace(fmt.Sprint(v)), true
		}
		if v, err := h.Get(fmt.Sprintf("ESO INS MASK%d ID", q)); err == nil {
			setup.Mask, ok = strings.TrimSpace(fmt.Sprint(v)), true
		}
	}
	return setup, ok
}
