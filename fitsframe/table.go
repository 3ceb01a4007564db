package fitsframe

import (
	"errors"
	"fmt"
	"strings"

	"github.com/astrogo/fitsio"
)

var ErrColumnNotFound = errors.New("column not found")

// TableFile gives column access to the binary tables of a FITS product.
type TableFile struct {
	path string
	f    *fitsio.File
	hdus []fitsio.HDU
}

// OpenTable loads every HDU of the file at path. Close releases them.
func OpenTable(path string) (*TableFile, error) {
	f, err := openFitsFile(path)
	if err != nil {
		return nil, err
	}
	return &TableFile{path: path, f: f, hdus: f.HDUs()}, nil
}

// Close closes the underlying fitsio file.
func (tf *TableFile) Close() error {
	if tf.f == nil {
		return nil
	}
	err := tf.f.Close()
	tf.f = nil
	return err
}

// Path is the file the tables were read from.
func (tf *TableFile) Path() string { return tf.path }

// NumHDU counts the primary HDU and all extensions.
func (tf *TableFile) NumHDU() int { return len(tf.hdus) }

// Header returns the header of HDU hdu.
func (tf *TableFile) Header(hdu int) (Header, error) {
	if hdu < 0 || hdu >= len(tf.hdus) {
		return nil, fmt.Errorf("%s has %d HDUs, no HDU %d", tf.path, len(tf.hdus), hdu)
	}
	hdr := tf.hdus[hdu].Header()
	cards := make([]fitsio.Card, 0, len(hdr.Keys()))
	for i := 0; i < len(hdr.Keys()); i += 1 {
		cards = append(cards, *hdr.Card(i))
	}
	return HeaderFromCards(cards), nil
}

func (tf *TableFile) table(hdu int) (*fitsio.Table, error) {
	if hdu < 0 || hdu >= len(tf.hdus) {
		return nil, fmt.Errorf("%s has %d HDUs, no HDU %d", tf.path, len(tf.hdus), hdu)
	}
	t, ok := tf.hdus[hdu].(*fitsio.Table)
	if !ok {
		return nil, fmt.Errorf("%s HDU %d is not a table", tf.path, hdu)
	}
	return t, nil
}

// Image decodes HDU hdu as an image.
func (tf *TableFile) Image(hdu int) (*Image, error) {
	if hdu < 0 || hdu >= len(tf.hdus) {
		return nil, fmt.Errorf("%s has %d HDUs, no HDU %d", tf.path, len(tf.hdus), hdu)
	}
	img, ok := tf.hdus[hdu].(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("%s HDU %d is not an image", tf.path, hdu)
	}
	return decodeImage(img)
}

// ColumnNames lists the columns of table HDU hdu in order.
func (tf *TableFile) ColumnNames(hdu int) ([]string, error) {
	t, err := tf.table(hdu)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, col := range t.Cols() {
		names = append(names, col.Name)
	}
	return names, nil
}

// NumRows returns the row count of table HDU hdu.
func (tf *TableFile) NumRows(hdu int) (int, error) {
	t, err := tf.table(hdu)
	if err != nil {
		return 0, err
	}
	return int(t.NumRows()), nil
}

// Column reads a scalar numeric column of table HDU hdu as float64.
func (tf *TableFile) Column(hdu int, name string) ([]float64, error) {
	t, err := tf.table(hdu)
	if err != nil {
		return nil, err
	}
	icol := t.Index(name)
	if icol < 0 {
		return nil, fmt.Errorf("%s HDU %d %q: %w", tf.path, hdu, name, ErrColumnNotFound)
	}
	if err := checkFormat(t.Col(icol).Format); err != nil {
		return nil, fmt.Errorf("%s column %q: %w", tf.path, name, err)
	}

	rows, err := t.Read(0, t.NumRows())
	if err != nil {
		return nil, fmt.Errorf("reading %s HDU %d: %w", tf.path, hdu, err)
	}
	defer rows.Close()

	var values []float64
	for rows.Next() {
		row := map[string]interface{}{name: nil}
		if err := rows.Scan(&row); err != nil {
			return nil, fmt.Errorf("%s column %q: %w", tf.path, name, err)
		}
		v, ok := cellValue(row[name])
		if !ok {
			return nil, fmt.Errorf("%s column %q holds %T", tf.path, name, row[name])
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

// checkFormat accepts the scalar numeric binary table TFORMs.
func checkFormat(format string) error {
	format = strings.TrimSpace(format)
	code := strings.TrimLeft(format, "0123456789")
	repeat := format[:len(format)-len(code)]
	if repeat != "" && repeat != "1" {
		return fmt.Errorf("vector column format %q is not supported", format)
	}
	if code == "" {
		return fmt.Errorf("empty column format")
	}
	switch code[0] {
	case 'D', 'E', 'K', 'J', 'I', 'B', 'L':
		return nil
	}
	return fmt.Errorf("column format %q is not numeric", format)
}

func cellValue(cell interface{}) (float64, bool) {
	switch v := cell.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case int16:
		return float64(v), true
	case int8:
		return float64(v), true
	case uint8:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
