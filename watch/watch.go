// Package watch sorts raw VIMOS frames into quadrant directories as they
// arrive in a download directory.
package watch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"vimospipe/classify"
	"vimospipe/fitsframe"
)

const (
	DefaultRetryInterval = 2 * time.Second
	DefaultMaxRetries    = 30
)

// Watcher moves files matching Pattern from Root into Root/q<N>.
type Watcher struct {
	Root    string
	Pattern string
	Read    fitsframe.HeaderFunc
	// A file whose header cannot be read yet is probably still being
	// written. It is retried every RetryInterval, at most MaxRetries times.
	RetryInterval time.Duration
	MaxRetries    int
	// Moved is called after each file is sorted.
	Moved func(src, dst string)

	pending map[string]int
}

// New returns a watcher for raw frames in root.
func New(root string) *Watcher {
	return &Watcher{
		Root:          root,
		Pattern:       classify.RawPattern,
		Read:          fitsframe.ReadPrimaryHeader,
		RetryInterval: DefaultRetryInterval,
		MaxRetries:    DefaultMaxRetries,
	}
}

func (w *Watcher) matches(path string) bool {
	if filepath.Dir(path) != filepath.Clean(w.Root) {
		return false
	}
	ok, _ := filepath.Match(w.Pattern, filepath.Base(path))
	return ok
}

// try sorts one file. Files that cannot be sorted yet stay pending.
func (w *Watcher) try(path string) {
	if _, err := os.Stat(path); err != nil {
		delete(w.pending, path)
		return
	}
	dst, err := classify.MoveToQuadrant(w.Root, path, w.Read)
	if err != nil {
		w.pending[path]++
		if w.pending[path] > w.MaxRetries {
			log.Printf("giving up on %s: %v", path, err)
			delete(w.pending, path)
		}
		return
	}
	delete(w.pending, path)
	log.Printf("%s -> %s", filepath.Base(path), dst)
	if w.Moved != nil {
		w.Moved(path, dst)
	}
}

// Run sorts the files already in Root, then every matching file created
// there, until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if w.Pattern == "" {
		w.Pattern = classify.RawPattern
	}
	if w.RetryInterval <= 0 {
		w.RetryInterval = DefaultRetryInterval
	}
	if w.MaxRetries <= 0 {
		w.MaxRetries = DefaultMaxRetries
	}
	w.pending = make(map[string]int)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()
	if err := fsw.Add(w.Root); err != nil {
		return fmt.Errorf("watching %s: %w", w.Root, err)
	}

	for q := 1; q <= classify.NumQuadrants; q++ {
		if err := os.MkdirAll(classify.QuadrantDir(w.Root, q), 0o755); err != nil {
			return err
		}
	}
	existing, err := fitsframe.ListFits(w.Root, w.Pattern)
	if err != nil {
		return err
	}
	for _, path := range existing {
		w.try(path)
	}

	ticker := time.NewTicker(w.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.matches(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if _, waiting := w.pending[ev.Name]; waiting {
					// still being written, retry count starts again
					w.pending[ev.Name] = 0
					continue
				}
				w.try(ev.Name)
			} else if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				delete(w.pending, ev.Name)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Printf("watch %s: %v", w.Root, err)
		case <-ticker.C:
			for path := range w.pending {
				w.try(path)
			}
		}
	}
}
