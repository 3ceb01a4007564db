package classify

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"vimospipe/fitsframe"
)

// QuadrantKey holds the detector quadrant (1..4) an exposure was read from.
const QuadrantKey = "ESO OCS CON QUAD"

// NumQuadrants is the number of VIMOS detectors.
const NumQuadrants = 4

// RawPattern matches raw VIMOS archive file names.
const RawPattern = "VIMOS*.fits"

var ErrBadQuadrant = errors.New("quadrant out of range")

// Quadrant returns the detector quadrant recorded in h.
func Quadrant(h fitsframe.Header) (int, error) {
	q, err := h.Int(QuadrantKey)
	if err != nil {
		return 0, err
	}
	if q < 1 || q > NumQuadrants {
		return 0, fmt.Errorf("%s = %d: %w", QuadrantKey, q, ErrBadQuadrant)
	}
	return q, nil
}

// QuadrantDir is the directory raw frames of quadrant q are sorted into.
func QuadrantDir(root string, q int) string {
	return filepath.Join(root, fmt.Sprintf("q%d", q))
}

// SortReport lists what SortQuadrants did.
type SortReport struct {
	Moved   map[int][]string
	Skipped []Skip
}

// MoveToQuadrant moves one raw frame into the quadrant directory under root
// and returns its new path.
func MoveToQuadrant(root, path string, read fitsframe.HeaderFunc) (string, error) {
	if read == nil {
		read = fitsframe.ReadPrimaryHeader
	}
	h, err := read(path)
	if err != nil {
		return "", err
	}
	q, err := Quadrant(h)
	if err != nil {
		return "", err
	}
	dir := QuadrantDir(root, q)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		return "", fmt.Errorf("moving %s to %s: %w", path, dir, err)
	}
	return dst, nil
}

// SortQuadrants creates q1..q4 under dir and moves every file matching
// pattern into the directory of its quadrant. Files whose quadrant cannot be
// read stay where they are.
func SortQuadrants(dir, pattern string, read fitsframe.HeaderFunc) (SortReport, error) {
	if pattern == "" {
		pattern = RawPattern
	}
	report := SortReport{Moved: make(map[int][]string)}

	for q := 1; q <= NumQuadrants; q++ {
		if err := os.MkdirAll(QuadrantDir(dir, q), 0o755); err != nil {
			return report, err
		}
	}

	paths, err := fitsframe.ListFits(dir, pattern)
	if err != nil {
		return report, err
	}
	for _, path := range paths {
		dst, err := MoveToQuadrant(dir, path, read)
		if err != nil {
			log.Printf("leaving %s in place: %v", path, err)
			report.Skipped = append(report.Skipped, Skip{Path: path, Reason: err.Error()})
			continue
		}
		q, _ := quadrantOfDir(filepath.Dir(dst))
		report.Moved[q] = append(report.Moved[q], dst)
	}
	return report, nil
}

func quadrantOfDir(dir string) (int, error) {
	var q int
	_, err := fmt.Sscanf(filepath.Base(dir), "q%d", &q)
	return q, err
}
