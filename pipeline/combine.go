package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"vimospipe/esorex"
	"vimospipe/sof"
)

// CombineRecipe merges the cubes of the four quadrants into one field of view.
const CombineRecipe = "vmifucombinecube"

// DefaultCubeType is the product combined when none is given. The other
// useful choice is ifu_science_reduced.
const DefaultCubeType = "ifu_science_flux_reduced"

var ErrNoCubes = errors.New("no quadrant cubes found")

// CombineDir is where the combined cube is written.
func CombineDir(dataDir string) string {
	return filepath.Join(dataDir, "Combine")
}

// CombineManifest lists <dataDir>/quadrant<i>/<cubeType>.fits for each
// quadrant that has one.
func CombineManifest(dataDir, cubeType string, quadrants []int) (*sof.Manifest, error) {
	if cubeType == "" {
		cubeType = DefaultCubeType
	}
	name := strings.ToLower(cubeType)
	cat := strings.ToUpper(cubeType)

	m := &sof.Manifest{}
	for _, q := range quadrants {
		cube := filepath.Join(QuadrantDir(dataDir, q), name+".fits")
		if _, err := os.Stat(cube); err != nil {
			log.Printf("quadrant %d has no %s, leaving it out", q, filepath.Base(cube))
			continue
		}
		m.Add(cat, cube)
	}
	if m.Len() == 0 {
		return nil, fmt.Errorf("%s in %s: %w", name, dataDir, ErrNoCubes)
	}
	return m, nil
}

// CombineCubes writes <dataDir>/Combine/ifucombinefov<type>.sof and runs
// vmifucombinecube on it.
func (r *Reducer) CombineCubes(ctx context.Context, dataDir, cubeType string, quadrants []int) (*StageReport, error) {
	if cubeType == "" {
		cubeType = DefaultCubeType
	}
	if len(quadrants) == 0 {
		quadrants = []int{1, 2, 3, 4}
	}

	m, err := CombineManifest(dataDir, cubeType, quadrants)
	if err != nil {
		return nil, err
	}
	dir := CombineDir(dataDir)
	sofPath := filepath.Join(dir, fmt.Sprintf("ifucombinefov%s.sof", strings.ToLower(cubeType)))
	if err := m.WriteFile(sofPath); err != nil {
		return nil, err
	}

	sr := &StageReport{Stage: "combine", Recipe: CombineRecipe, SOF: sofPath}
	if r.DryRun {
		return sr, nil
	}
	res, err := r.NewRunner(dir).Run(ctx, esorex.Invocation{
		Recipe: CombineRecipe,
		Params: r.cfg().RecipeParams(CombineRecipe, nil),
		SOF:    sofPath,
	})
	sr.Result = &res
	sr.Err = err
	return sr, err
}
