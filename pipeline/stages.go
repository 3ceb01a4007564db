// Package pipeline chains esorex recipes into a VIMOS IFU reduction: it builds
// each recipe's set-of-frames from the frames classified so far, runs the
// recipe, and registers the products it is expected to write for the next
// stage.
package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"

	"vimospipe/sof"
)

var ErrMissingCategory = errors.New("no frames for category")

// Input is one category a recipe reads.
type Input struct {
	Category string
	Select   sof.Selection
	Optional bool
}

// Stage maps frame categories onto one recipe call.
type Stage struct {
	Name     string
	Recipe   string
	SOFName  string
	Inputs   []Input
	Products map[string]string
	Params   map[string]string
}

// IFU stage names, in reduction order.
const (
	StageBias     = "bias"
	StageCalib    = "calib"
	StageStandard = "standard"
	StageScience  = "science"
)

// IFUStages is the IFU reduction chain: master bias, IFU calibration (fibre
// identification, tracing, transmission), standard star response, science.
var IFUStages = []Stage{
	{
		Name:    StageBias,
		Recipe:  "vmbias",
		SOFName: "bias.sof",
		Inputs:  []Input{{Category: "BIAS"}},
		Products: map[string]string{
			"MASTER_BIAS": "master_bias.fits",
		},
	},
	{
		Name:    StageCalib,
		Recipe:  "vmifucalib",
		SOFName: "calib.sof",
		Inputs: []Input{
			{Category: "IFU_SCREEN_FLAT"},
			{Category: "IFU_ARC_SPECTRUM", Select: sof.First},
			{Category: "LINE_CATALOG"},
			{Category: "IFU_IDENT"},
			{Category: "MASTER_BIAS"},
		},
		Products: map[string]string{
			"IFU_IDS":          "ifu_ids.fits",
			"IFU_TRACE":        "ifu_trace.fits",
			"IFU_TRANSMISSION": "ifu_transmission.fits",
		},
	},
	{
		Name:    StageStandard,
		Recipe:  "vmifustandard",
		SOFName: "ifustandard.sof",
		Inputs: []Input{
			{Category: "IFU_STANDARD"},
			{Category: "MASTER_BIAS"},
			{Category: "IFU_IDS"},
			{Category: "IFU_TRACE"},
			{Category: "IFU_TRANSMISSION"},
			{Category: "EXTINCT_TABLE"},
			{Category: "STD_FLUX_TABLE"},
		},
		Products: map[string]string{
			"IFU_SPECPHOT_TABLE": "ifu_specphot_table.fits",
		},
	},
	{
		Name:    StageScience,
		Recipe:  "vmifuscience",
		SOFName: "ifuscience.sof",
		Inputs: []Input{
			{Category: "IFU_SCIENCE"},
			{Category: "MASTER_BIAS"},
			{Category: "IFU_IDS"},
			{Category: "IFU_TRACE"},
			{Category: "IFU_TRANSMISSION"},
			{Category: "EXTINCT_TABLE"},
			{Category: "IFU_SPECPHOT_TABLE"},
		},
		Products: map[string]string{
			"IFU_SCIENCE_REDUCED":      "ifu_science_reduced.fits",
			"IFU_SCIENCE_FLUX_REDUCED": "ifu_science_flux_reduced.fits",
		},
		Params: map[string]string{"CalibrateFlux": "true"},
	},
}

// LocalStages are the stages used to write set-of-frames files next to the
// raw data of one quadrant: the last arc goes into the calibration and only
// the first science exposure is reduced.
func LocalStages() []Stage {
	stages := make([]Stage, len(IFUStages))
	copy(stages, IFUStages)
	for i := range stages {
		stages[i].Inputs = append([]Input(nil), stages[i].Inputs...)
		for j := range stages[i].Inputs {
			switch stages[i].Inputs[j].Category {
			case "IFU_ARC_SPECTRUM":
				stages[i].Inputs[j].Select = sof.Last
			case "IFU_SCIENCE":
				stages[i].Inputs[j].Select = sof.First
			}
		}
	}
	return stages
}

// FindStage returns the index of the named stage.
func FindStage(stages []Stage, name string) (int, error) {
	for i, s := range stages {
		if s.Name == name || s.Recipe == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("unknown stage %q", name)
}

// Manifest builds the set-of-frames of the stage from fs. A required
// category without frames is an error.
func (s Stage) Manifest(fs sof.FrameSet) (*sof.Manifest, error) {
	m := &sof.Manifest{}
	for _, in := range s.Inputs {
		if m.AddFrom(fs, in.Category, in.Select) == 0 && !in.Optional {
			return nil, fmt.Errorf("%s needs %s: %w", s.Recipe, in.Category, ErrMissingCategory)
		}
	}
	return m, nil
}

// RegisterProducts records the files the stage writes into outDir.
func (s Stage) RegisterProducts(fs sof.FrameSet, outDir string) {
	for cat, name := range s.Products {
		fs.Set(cat, filepath.Join(outDir, name))
	}
}
