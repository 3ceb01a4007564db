// Package classify sorts raw VIMOS exposures into frame categories by
// comparing header keywords against fixed values.
package classify

import (
	"fmt"
	"log"
	"strings"

	"vimospipe/fitsframe"
	"vimospipe/sof"
)

// DPRTypeKey holds the data product type of a raw exposure.
const DPRTypeKey = "ESO DPR TYPE"

// Rule assigns Category to frames whose Key equals Value.
type Rule struct {
	Key      string
	Value    string
	Category string
}

func (r Rule) String() string {
	return fmt.Sprintf("%s == %q -> %s", r.Key, r.Value, r.Category)
}

// IFURules classify the raw frames of an IFU observing block.
var IFURules = []Rule{
	{Key: DPRTypeKey, Value: "BIAS", Category: "BIAS"},
	{Key: DPRTypeKey, Value: "FLAT,LAMP", Category: "IFU_SCREEN_FLAT"},
	{Key: DPRTypeKey, Value: "WAVE,LAMP", Category: "IFU_ARC_SPECTRUM"},
	{Key: DPRTypeKey, Value: "STD", Category: "IFU_STANDARD"},
	{Key: DPRTypeKey, Value: "OBJECT", Category: "IFU_SCIENCE"},
}

// Skip records a file left out of the frame set and why.
type Skip struct {
	Path   string
	Reason string
}

// Result is the outcome of classifying a list of files.
type Result struct {
	Frames    sof.FrameSet
	Skipped   []Skip
	Unmatched []string
}

// Classifier applies rules to file headers.
type Classifier struct {
	Rules []Rule
	Read  fitsframe.HeaderFunc
}

// New returns a classifier reading headers with fitsio.
func New(rules []Rule) *Classifier {
	return &Classifier{Rules: rules, Read: fitsframe.ReadPrimaryHeader}
}

// Match returns the category of the first rule matching h. missing is true
// when h lacks every keyword the rules look at.
func (c *Classifier) Match(h fitsframe.Header) (category string, missing bool) {
	missing = true
	for _, r := range c.Rules {
		v, err := h.Get(r.Key)
		if err != nil {
			continue
		}
		missing = false
		if strings.TrimSpace(fmt.Sprint(v)) == r.Value {
			return r.Category, false
		}
	}
	return "", missing
}

// Classify reads each file header and files it under the first matching
// rule. Unreadable files, pipeline products and files without the rule
// keywords are skipped.
func (c *Classifier) Classify(paths []string) Result {
	read := c.Read
	if read == nil {
		read = fitsframe.ReadPrimaryHeader
	}

	res := Result{Frames: sof.FrameSet{}}
	for _, path := range paths {
		h, err := read(path)
		if err != nil {
			log.Printf("skipping %s: %v", path, err)
			res.Skipped = append(res.Skipped, Skip{Path: path, Reason: err.Error()})
			continue
		}
		if catg, err := h.String(fitsframe.ProductCategoryKey); err == nil {
			res.Skipped = append(res.Skipped, Skip{Path: path, Reason: "pipeline product " + catg})
			continue
		}
		cat, missing := c.Match(h)
		switch {
		case missing:
			res.Skipped = append(res.Skipped, Skip{Path: path, Reason: "no classification keyword"})
		case cat == "":
			res.Unmatched = append(res.Unmatched, path)
		default:
			res.Frames.Add(cat, path)
		}
	}
	return res
}

// ClassifyDir classifies the files in dir matching pattern.
func (c *Classifier) ClassifyDir(dir, pattern string) (Result, error) {
	paths, err := fitsframe.ListFits(dir, pattern)
	if err != nil {
		return Result{}, err
	}
	return c.Classify(paths), nil
}
