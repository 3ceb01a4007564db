package pipeline

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"vimospipe/classify"
	"vimospipe/config"
	"vimospipe/esorex"
	"vimospipe/fitsframe"
	"vimospipe/sof"
)

// RecipeRunner executes one recipe call.
type RecipeRunner interface {
	Run(ctx context.Context, inv esorex.Invocation) (esorex.Result, error)
}

// RunnerFactory returns a runner writing products and logs into dir.
type RunnerFactory func(dir string) RecipeRunner

// Reducer runs stages for one data directory.
type Reducer struct {
	Config    *config.Config
	NewRunner RunnerFactory
	Read      fitsframe.HeaderFunc
	// DryRun writes every set-of-frames file without calling esorex.
	DryRun bool
	// From and To restrict the stages run. Products of stages before From
	// are assumed to exist already.
	From, To string
}

// NewReducer returns a reducer calling the configured esorex binary.
func NewReducer(cfg *config.Config, rec esorex.Recorder) *Reducer {
	return &Reducer{
		Config: cfg,
		NewRunner: func(dir string) RecipeRunner {
			r := esorex.NewRunner(cfg.Esorex, dir)
			r.Recorder = rec
			return r
		},
		Read: fitsframe.ReadPrimaryHeader,
	}
}

// StageReport is what happened to one stage.
type StageReport struct {
	Stage   string
	Recipe  string
	SOF     string
	Skipped bool
	Result  *esorex.Result
	Err     error
}

// Report is the outcome of ReduceIFU.
type Report struct {
	Quadrant  int
	OutputDir string
	Stages    []StageReport
	Frames    sof.FrameSet
}

func (r *Reducer) cfg() *config.Config {
	if r.Config == nil {
		return config.Default()
	}
	return r.Config
}

func (r *Reducer) stageRange(stages []Stage) (int, int, error) {
	from, to := 0, len(stages)-1
	var err error
	if r.From != "" {
		if from, err = FindStage(stages, r.From); err != nil {
			return 0, 0, err
		}
	}
	if r.To != "" {
		if to, err = FindStage(stages, r.To); err != nil {
			return 0, 0, err
		}
	}
	if from > to {
		return 0, 0, fmt.Errorf("stage %s comes after %s", r.From, r.To)
	}
	return from, to, nil
}

// ScienceQuadrant reads the detector quadrant of the first science frame.
func (r *Reducer) ScienceQuadrant(frames sof.FrameSet) (int, error) {
	sci, ok := frames.First("IFU_SCIENCE")
	if !ok {
		return 0, fmt.Errorf("cannot tell the quadrant: %w", ErrMissingCategory)
	}
	read := r.Read
	if read == nil {
		read = fitsframe.ReadPrimaryHeader
	}
	h, err := read(sci)
	if err != nil {
		return 0, err
	}
	return classify.Quadrant(h)
}

// QuadrantDir is where the products of one quadrant are written.
func QuadrantDir(dataDir string, q int) string {
	return filepath.Join(dataDir, fmt.Sprintf("quadrant%d", q))
}

// ReduceIFU runs the IFU chain on the raw frames of one quadrant. Relative
// raw paths are taken relative to dataDir; static calibrations come from the
// configuration unless raw already names them. Products go to
// <dataDir>/quadrant<N>.
func (r *Reducer) ReduceIFU(ctx context.Context, dataDir string, raw sof.FrameSet) (*Report, error) {
	frames := r.cfg().StaticFrames()
	prefixed := raw.Prefix(dataDir)
	for _, cat := range prefixed.Categories() {
		frames[cat] = prefixed[cat]
	}

	q, err := r.ScienceQuadrant(frames)
	if err != nil {
		return nil, err
	}
	outDir := QuadrantDir(dataDir, q)
	log.Printf("quadrant %d -> %s", q, outDir)

	report := &Report{Quadrant: q, OutputDir: outDir, Frames: frames}
	err = r.runStages(ctx, IFUStages, frames, outDir, report)
	return report, err
}

func (r *Reducer) runStages(ctx context.Context, stages []Stage, frames sof.FrameSet, outDir string, report *Report) error {
	from, to, err := r.stageRange(stages)
	if err != nil {
		return err
	}

	runner := r.NewRunner(outDir)
	for i, stage := range stages {
		if i < from || i > to {
			if i < from {
				stage.RegisterProducts(frames, outDir)
			}
			report.Stages = append(report.Stages, StageReport{Stage: stage.Name, Recipe: stage.Recipe, Skipped: true})
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		m, err := stage.Manifest(frames)
		if err != nil {
			return fmt.Errorf("stage %s: %w", stage.Name, err)
		}
		sofPath := filepath.Join(outDir, stage.SOFName)
		if err := m.WriteFile(sofPath); err != nil {
			return fmt.Errorf("stage %s: %w", stage.Name, err)
		}
		sr := StageReport{Stage: stage.Name, Recipe: stage.Recipe, SOF: sofPath}

		if !r.DryRun {
			res, err := runner.Run(ctx, esorex.Invocation{
				Recipe: stage.Recipe,
				Params: r.cfg().RecipeParams(stage.Recipe, stage.Params),
				SOF:    sofPath,
			})
			sr.Result = &res
			if err != nil {
				sr.Err = err
				report.Stages = append(report.Stages, sr)
				return fmt.Errorf("stage %s: %w", stage.Name, err)
			}
		}
		report.Stages = append(report.Stages, sr)
		stage.RegisterProducts(frames, outDir)
	}
	return nil
}
