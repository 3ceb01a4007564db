package sof

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Selection picks which frames of a category go into a manifest.
type Selection int

const (
	All Selection = iota
	First
	Last
)

func (s Selection) String() string {
	switch s {
	case First:
		return "first"
	case Last:
		return "last"
	}
	return "all"
}

// Pick applies the selection to a list of paths.
func (s Selection) Pick(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	switch s {
	case First:
		return paths[:1]
	case Last:
		return paths[len(paths)-1:]
	}
	return paths
}

// Entry is one line of a set-of-frames file.
type Entry struct {
	Path     string
	Category string
}

// Manifest is an ordered set-of-frames, the input list of an esorex recipe.
type Manifest struct {
	Entries []Entry
}

// Add appends one entry per path.
func (m *Manifest) Add(category string, paths ...string) {
	for _, p := range paths {
		m.Entries = append(m.Entries, Entry{Path: p, Category: category})
	}
}

// AddFrom appends the selected frames of a category from fs and returns how
// many were added.
func (m *Manifest) AddFrom(fs FrameSet, category string, sel Selection) int {
	picked := sel.Pick(fs.Get(category))
	m.Add(category, picked...)
	return len(picked)
}

// Len is the number of entries.
func (m *Manifest) Len() int { return len(m.Entries) }

// Categories lists each category once in first-seen order.
func (m *Manifest) Categories() []string {
	seen := make(map[string]bool)
	var cats []string
	for _, e := range m.Entries {
		if !seen[e.Category] {
			seen[e.Category] = true
			cats = append(cats, e.Category)
		}
	}
	return cats
}

// FrameSet converts the manifest back to a category map.
func (m *Manifest) FrameSet() FrameSet {
	fs := FrameSet{}
	for _, e := range m.Entries {
		fs.Add(e.Category, e.Path)
	}
	return fs
}

// Write emits one "<path>\t<CATEGORY>" line per entry.
func (m *Manifest) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, e := range m.Entries {
		if _, err := fmt.Fprintf(bw, "%s\t%s\n", e.Path, e.Category); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes the manifest to path, creating parent directories.
func (m *Manifest) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := m.Write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

var ErrMalformed = errors.New("malformed set-of-frames line")

// Parse reads a set-of-frames file. Fields may be separated by any white
// space; blank lines and lines starting with # are ignored.
func Parse(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d %q: %w", lineNo, line, ErrMalformed)
		}
		m.Entries = append(m.Entries, Entry{Path: fields[0], Category: fields[1]})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// ReadFile parses the set-of-frames file at path.
func ReadFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
