package sof

import (
	"path/filepath"
	"sort"

	"github.com/qdm12/reprint"
)

// FrameSet maps a frame category (BIAS, IFU_SCIENCE, MASTER_BIAS, ...) to the
// files carrying it, in the order they were added.
type FrameSet map[string][]string

// Add appends paths to a category.
func (fs FrameSet) Add(category string, paths ...string) {
	fs[category] = append(fs[category], paths...)
}

// Set replaces a category with a single path. Products and static
// calibrations are registered this way.
func (fs FrameSet) Set(category, path string) {
	fs[category] = []string{path}
}

// Get returns the paths of a category.
func (fs FrameSet) Get(category string) []string {
	return fs[category]
}

// Has reports whether a category has at least one path.
func (fs FrameSet) Has(category string) bool {
	return len(fs[category]) > 0
}

// First returns the first path of a category.
func (fs FrameSet) First(category string) (string, bool) {
	paths := fs[category]
	if len(paths) == 0 {
		return "", false
	}
	return paths[0], true
}

// Last returns the last path of a category.
func (fs FrameSet) Last(category string) (string, bool) {
	paths := fs[category]
	if len(paths) == 0 {
		return "", false
	}
	return paths[len(paths)-1], true
}

// Categories returns the categories in sorted order.
func (fs FrameSet) Categories() []string {
	cats := make([]string, 0, len(fs))
	for c := range fs {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

// Clone returns a deep copy, so stages can register products without
// touching the caller's set.
func (fs FrameSet) Clone() FrameSet {
	if fs == nil {
		return FrameSet{}
	}
	return FrameSet(reprint.This(map[string][]string(fs)).(map[string][]string))
}

// Prefix returns a copy with every relative path joined to dir. Absolute
// paths are kept as they are.
func (fs FrameSet) Prefix(dir string) FrameSet {
	out := fs.Clone()
	for cat, paths := range out {
		for i, p := range paths {
			if !filepath.IsAbs(p) {
				paths[i] = filepath.Join(dir, p)
			}
		}
		out[cat] = paths
	}
	return out
}

// Merge adds every path of other to fs.
func (fs FrameSet) Merge(other FrameSet) {
	for _, cat := range other.Categories() {
		fs.Add(cat, other[cat]...)
	}
}
