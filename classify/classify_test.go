package classify

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vimospipe/fitsframe"
)

func fakeHeaders(headers map[string]fitsframe.Header) fitsframe.HeaderFunc {
	return func(path string) (fitsframe.Header, error) {
		h, ok := headers[filepath.Base(path)]
		if !ok {
			return nil, errors.New("not a FITS file")
		}
		return h, nil
	}
}

func TestClassifyIFUFrames(t *testing.T) {
	c := &Classifier{
		Rules: IFURules,
		Read: fakeHeaders(map[string]fitsframe.Header{
			"b1.fits":  {"ESO DPR TYPE": "BIAS"},
			"f1.fits":  {"HIERARCH ESO DPR TYPE": "FLAT,LAMP"},
			"a1.fits":  {"ESO DPR TYPE": "WAVE,LAMP "},
			"a2.fits":  {"ESO DPR TYPE": "WAVE,LAMP"},
			"s1.fits":  {"ESO DPR TYPE": "STD"},
			"o1.fits":  {"ESO DPR TYPE": "OBJECT"},
			"b2.fits":  {"ESO DPR TYPE": "BIAS"},
			"dk.fits":  {"ESO DPR TYPE": "DARK"},
			"cal.fits": {"ESO PRO CATG": "MASTER_BIAS", "ESO DPR TYPE": "BIAS"},
			"hdr.fits": {"OBJECT": "no dpr"},
		}),
	}

	res := c.Classify([]string{"b1.fits", "f1.fits", "a1.fits", "a2.fits", "s1.fits",
		"o1.fits", "b2.fits", "dk.fits", "cal.fits", "hdr.fits", "junk.fits"})

	assert.Equal(t, []string{"b1.fits", "b2.fits"}, res.Frames.Get("BIAS"))
	assert.Equal(t, []string{"f1.fits"}, res.Frames.Get("IFU_SCREEN_FLAT"))
	assert.Equal(t, []string{"a1.fits", "a2.fits"}, res.Frames.Get("IFU_ARC_SPECTRUM"))
	assert.Equal(t, []string{"s1.fits"}, res.Frames.Get("IFU_STANDARD"))
	assert.Equal(t, []string{"o1.fits"}, res.Frames.Get("IFU_SCIENCE"))
	assert.Equal(t, []string{"dk.fits"}, res.Unmatched)

	require.Len(t, res.Skipped, 3)
	assert.Equal(t, "cal.fits", res.Skipped[0].Path)
	assert.Equal(t, "pipeline product MASTER_BIAS", res.Skipped[0].Reason)
	assert.Equal(t, "hdr.fits", res.Skipped[1].Path)
	assert.Equal(t, "no classification keyword", res.Skipped[1].Reason)
	assert.Equal(t, "junk.fits", res.Skipped[2].Path)
}

func TestMatchFirstRuleWins(t *testing.T) {
	c := &Classifier{Rules: []Rule{
		{Key: "ESO DPR CATG", Value: "CALIB", Category: "CALIB"},
		{Key: DPRTypeKey, Value: "BIAS", Category: "BIAS"},
	}}
	cat, missing := c.Match(fitsframe.Header{"ESO DPR CATG": "CALIB", "ESO DPR TYPE": "BIAS"})
	assert.False(t, missing)
	assert.Equal(t, "CALIB", cat)

	cat, missing = c.Match(fitsframe.Header{"ESO DPR TYPE": "BIAS"})
	assert.False(t, missing)
	assert.Equal(t, "BIAS", cat)
}

func TestQuadrant(t *testing.T) {
	q, err := Quadrant(fitsframe.Header{"ESO OCS CON QUAD": 2})
	require.NoError(t, err)
	assert.Equal(t, 2, q)

	_, err = Quadrant(fitsframe.Header{"ESO OCS CON QUAD": 5})
	assert.ErrorIs(t, err, ErrBadQuadrant)

	_, err = Quadrant(fitsframe.Header{})
	assert.ErrorIs(t, err, fitsframe.ErrKeyNotFound)
}

func TestSortQuadrants(t *testing.T) {
	dir := t.TempDir()
	names := []string{"VIMOS.A.fits", "VIMOS.B.fits", "VIMOS.C.fits", "VIMOS.D.fits", "other.fits"}
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte(n), 0o644))
	}
	// q1 may already exist from an earlier run.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "q1"), 0o755))

	read := fakeHeaders(map[string]fitsframe.Header{
		"VIMOS.A.fits": {"ESO OCS CON QUAD": 1},
		"VIMOS.B.fits": {"ESO OCS CON QUAD": 4},
		"VIMOS.C.fits": {"ESO OCS CON QUAD": 1},
		"other.fits":   {"ESO OCS CON QUAD": 2},
	})

	report, err := SortQuadrants(dir, "", read)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "q1", "VIMOS.A.fits"),
		filepath.Join(dir, "q1", "VIMOS.C.fits"),
	}, report.Moved[1])
	assert.Equal(t, []string{filepath.Join(dir, "q4", "VIMOS.B.fits")}, report.Moved[4])
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, filepath.Join(dir, "VIMOS.D.fits"), report.Skipped[0].Path)

	for q := 1; q <= NumQuadrants; q++ {
		assert.DirExists(t, QuadrantDir(dir, q))
	}
	assert.FileExists(t, filepath.Join(dir, "VIMOS.D.fits"))
	assert.FileExists(t, filepath.Join(dir, "other.fits"))
	assert.NoFileExists(t, filepath.Join(dir, "VIMOS.A.fits"))
}
