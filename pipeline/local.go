package pipeline

import (
	"path/filepath"

	"vimospipe/classify"
	"vimospipe/sof"
)

// LocalManifest is a set-of-frames written next to the raw data.
type LocalManifest struct {
	Stage    string
	Path     string
	Manifest *sof.Manifest
	Skipped  []classify.Skip
}

// PrepareLocal classifies the FITS files in dir and writes the set-of-frames
// of the named stage into dir. Raw frames are referenced as ./<name> and the
// products of earlier stages by their bare file names, so esorex has to be
// started from dir.
func (r *Reducer) PrepareLocal(dir, stageName string, c *classify.Classifier) (*LocalManifest, error) {
	stages := LocalStages()
	idx, err := FindStage(stages, stageName)
	if err != nil {
		return nil, err
	}

	res, err := c.ClassifyDir(dir, "")
	if err != nil {
		return nil, err
	}

	frames := r.cfg().StaticFrames()
	for _, cat := range res.Frames.Categories() {
		for _, p := range res.Frames.Get(cat) {
			frames.Add(cat, "./"+filepath.Base(p))
		}
	}
	for _, s := range stages[:idx] {
		s.RegisterProducts(frames, "")
	}

	stage := stages[idx]
	m, err := stage.Manifest(frames)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, stage.SOFName)
	if err := m.WriteFile(path); err != nil {
		return nil, err
	}
	return &LocalManifest{Stage: stage.Name, Path: path, Manifest: m, Skipped: res.Skipped}, nil
}
