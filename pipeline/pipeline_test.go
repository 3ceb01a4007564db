package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vimospipe/classify"
	"vimospipe/config"
	"vimospipe/esorex"
	"vimospipe/fitsframe"
	"vimospipe/sof"
)

type call struct {
	dir string
	inv esorex.Invocation
}

type fakeRunner struct {
	calls  []call
	failOn string
}

func (f *fakeRunner) factory(dir string) RecipeRunner {
	return runnerFunc(func(ctx context.Context, inv esorex.Invocation) (esorex.Result, error) {
		f.calls = append(f.calls, call{dir: dir, inv: inv})
		res := esorex.Result{Recipe: inv.Recipe, SOF: inv.SOF, OutputDir: dir}
		if inv.Recipe == f.failOn {
			res.ExitCode = 1
			err := &esorex.ExitError{Recipe: inv.Recipe, Code: 1, Err: errors.New("exit status 1")}
			res.Err = err
			return res, err
		}
		return res, nil
	})
}

func (f *fakeRunner) recipes() []string {
	var out []string
	for _, c := range f.calls {
		out = append(out, c.inv.Recipe)
	}
	return out
}

type runnerFunc func(ctx context.Context, inv esorex.Invocation) (esorex.Result, error)

func (fn runnerFunc) Run(ctx context.Context, inv esorex.Invocation) (esorex.Result, error) {
	return fn(ctx, inv)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.CalibDir = "/cal"
	return cfg
}

func rawFrames() sof.FrameSet {
	return sof.FrameSet{
		"BIAS":             {"b1.fits", "b2.fits"},
		"IFU_SCREEN_FLAT":  {"f1.fits"},
		"IFU_ARC_SPECTRUM": {"a1.fits", "a2.fits"},
		"IFU_STANDARD":     {"s1.fits"},
		"IFU_SCIENCE":      {"o1.fits", "o2.fits"},
	}
}

func quadrantReader(q int) fitsframe.HeaderFunc {
	return func(path string) (fitsframe.Header, error) {
		return fitsframe.Header{classify.QuadrantKey: q}, nil
	}
}

func readSOF(t *testing.T, path string) *sof.Manifest {
	t.Helper()
	m, err := sof.ReadFile(path)
	require.NoError(t, err)
	return m
}

func TestStageManifestMissingCategory(t *testing.T) {
	_, err := IFUStages[0].Manifest(sof.FrameSet{})
	assert.ErrorIs(t, err, ErrMissingCategory)

	st := Stage{Recipe: "x", Inputs: []Input{{Category: "A"}, {Category: "B", Optional: true}}}
	m, err := st.Manifest(sof.FrameSet{"A": {"a.fits"}})
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())
}

func TestFindStage(t *testing.T) {
	i, err := FindStage(IFUStages, StageStandard)
	require.NoError(t, err)
	assert.Equal(t, 2, i)

	i, err = FindStage(IFUStages, "vmifuscience")
	require.NoError(t, err)
	assert.Equal(t, 3, i)

	_, err = FindStage(IFUStages, "vmmosobsstare")
	assert.Error(t, err)
}

func TestLocalStagesLeaveChainUntouched(t *testing.T) {
	local := LocalStages()
	calib, _ := FindStage(local, StageCalib)
	for _, in := range local[calib].Inputs {
		if in.Category == "IFU_ARC_SPECTRUM" {
			assert.Equal(t, sof.Last, in.Select)
		}
	}
	for _, in := range IFUStages[calib].Inputs {
		if in.Category == "IFU_ARC_SPECTRUM" {
			assert.Equal(t, sof.First, in.Select)
		}
	}
}

func TestReduceIFU(t *testing.T) {
	dataDir := t.TempDir()
	fr := &fakeRunner{}
	r := &Reducer{Config: testConfig(), NewRunner: fr.factory, Read: quadrantReader(3)}

	report, err := r.ReduceIFU(context.Background(), dataDir, rawFrames())
	require.NoError(t, err)

	outDir := filepath.Join(dataDir, "quadrant3")
	assert.Equal(t, 3, report.Quadrant)
	assert.Equal(t, outDir, report.OutputDir)
	assert.Equal(t, []string{"vmbias", "vmifucalib", "vmifustandard", "vmifuscience"}, fr.recipes())
	for _, c := range fr.calls {
		assert.Equal(t, outDir, c.dir)
	}
	assert.Equal(t, map[string]string{"CalibrateFlux": "true"}, fr.calls[3].inv.Params)

	bias := readSOF(t, filepath.Join(outDir, "bias.sof"))
	assert.Equal(t, []sof.Entry{
		{Path: filepath.Join(dataDir, "b1.fits"), Category: "BIAS"},
		{Path: filepath.Join(dataDir, "b2.fits"), Category: "BIAS"},
	}, bias.Entries)

	calib := readSOF(t, filepath.Join(outDir, "calib.sof")).FrameSet()
	assert.Equal(t, []string{filepath.Join(dataDir, "a1.fits")}, calib.Get("IFU_ARC_SPECTRUM"))
	assert.Equal(t, []string{"/cal/lcat_HR_blue.tfits"}, calib.Get("LINE_CATALOG"))
	assert.Equal(t, []string{filepath.Join(outDir, "master_bias.fits")}, calib.Get("MASTER_BIAS"))

	sci := readSOF(t, filepath.Join(outDir, "ifuscience.sof")).FrameSet()
	assert.Len(t, sci.Get("IFU_SCIENCE"), 2)
	assert.Equal(t, []string{filepath.Join(outDir, "ifu_specphot_table.fits")}, sci.Get("IFU_SPECPHOT_TABLE"))

	assert.Equal(t, []string{filepath.Join(outDir, "ifu_science_flux_reduced.fits")},
		report.Frames.Get("IFU_SCIENCE_FLUX_REDUCED"))
}

func TestReduceIFUConfiguredParams(t *testing.T) {
	cfg := testConfig()
	cfg.Recipes["vmifuscience"] = map[string]string{"CalibrateFlux": "false", "UseSkylines": "true"}
	fr := &fakeRunner{}
	r := &Reducer{Config: cfg, NewRunner: fr.factory, Read: quadrantReader(1), From: StageScience}

	_, err := r.ReduceIFU(context.Background(), t.TempDir(), rawFrames())
	require.NoError(t, err)
	require.Len(t, fr.calls, 1)
	assert.Equal(t, map[string]string{"CalibrateFlux": "false", "UseSkylines": "true"}, fr.calls[0].inv.Params)
}

func TestReduceIFUStopsOnFailure(t *testing.T) {
	dataDir := t.TempDir()
	fr := &fakeRunner{failOn: "vmifucalib"}
	r := &Reducer{Config: testConfig(), NewRunner: fr.factory, Read: quadrantReader(2)}

	report, err := r.ReduceIFU(context.Background(), dataDir, rawFrames())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage calib")

	var exitErr *esorex.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.Code)

	assert.Equal(t, []string{"vmbias", "vmifucalib"}, fr.recipes())
	require.Len(t, report.Stages, 2)
	assert.Equal(t, 1, report.Stages[1].Result.ExitCode)
	assert.Error(t, report.Stages[1].Err)
	assert.NoError(t, report.Stages[0].Err)
	assert.NoFileExists(t, filepath.Join(dataDir, "quadrant2", "ifustandard.sof"))
}

func TestReduceIFUStageRange(t *testing.T) {
	dataDir := t.TempDir()
	fr := &fakeRunner{}
	r := &Reducer{Config: testConfig(), NewRunner: fr.factory, Read: quadrantReader(4),
		From: StageCalib, To: "vmifustandard"}

	report, err := r.ReduceIFU(context.Background(), dataDir, rawFrames())
	require.NoError(t, err)
	assert.Equal(t, []string{"vmifucalib", "vmifustandard"}, fr.recipes())
	require.Len(t, report.Stages, 4)
	assert.True(t, report.Stages[0].Skipped)
	assert.True(t, report.Stages[3].Skipped)

	outDir := filepath.Join(dataDir, "quadrant4")
	calib := readSOF(t, filepath.Join(outDir, "calib.sof")).FrameSet()
	assert.Equal(t, []string{filepath.Join(outDir, "master_bias.fits")}, calib.Get("MASTER_BIAS"))
	assert.NoFileExists(t, filepath.Join(outDir, "bias.sof"))
	assert.NoFileExists(t, filepath.Join(outDir, "ifuscience.sof"))

	r.From, r.To = StageScience, StageBias
	_, err = r.ReduceIFU(context.Background(), dataDir, rawFrames())
	assert.Error(t, err)
}

func TestReduceIFUDryRun(t *testing.T) {
	dataDir := t.TempDir()
	fr := &fakeRunner{}
	r := &Reducer{Config: testConfig(), NewRunner: fr.factory, Read: quadrantReader(1), DryRun: true}

	report, err := r.ReduceIFU(context.Background(), dataDir, rawFrames())
	require.NoError(t, err)
	assert.Empty(t, fr.calls)
	for _, sr := range report.Stages {
		assert.Nil(t, sr.Result)
		assert.FileExists(t, sr.SOF)
	}
}

func TestReduceIFUNeedsScience(t *testing.T) {
	raw := rawFrames()
	delete(raw, "IFU_SCIENCE")
	r := &Reducer{Config: testConfig(), NewRunner: (&fakeRunner{}).factory, Read: quadrantReader(1)}
	_, err := r.ReduceIFU(context.Background(), t.TempDir(), raw)
	assert.ErrorIs(t, err, ErrMissingCategory)
}

func TestCombineCubes(t *testing.T) {
	dataDir := t.TempDir()
	for _, q := range []int{1, 3} {
		dir := QuadrantDir(dataDir, q)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "ifu_science_flux_reduced.fits"), nil, 0o644))
	}

	fr := &fakeRunner{}
	r := &Reducer{Config: testConfig(), NewRunner: fr.factory}
	sr, err := r.CombineCubes(context.Background(), dataDir, "", nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dataDir, "Combine", "ifucombinefovifu_science_flux_reduced.sof"), sr.SOF)
	m := readSOF(t, sr.SOF)
	assert.Equal(t, []sof.Entry{
		{Path: filepath.Join(dataDir, "quadrant1", "ifu_science_flux_reduced.fits"), Category: "IFU_SCIENCE_FLUX_REDUCED"},
		{Path: filepath.Join(dataDir, "quadrant3", "ifu_science_flux_reduced.fits"), Category: "IFU_SCIENCE_FLUX_REDUCED"},
	}, m.Entries)

	require.Len(t, fr.calls, 1)
	assert.Equal(t, CombineRecipe, fr.calls[0].inv.Recipe)
	assert.Equal(t, CombineDir(dataDir), fr.calls[0].dir)
}

func TestCombineNoCubes(t *testing.T) {
	_, err := CombineManifest(t.TempDir(), "ifu_science_reduced", []int{1, 2, 3, 4})
	assert.ErrorIs(t, err, ErrNoCubes)
}

func TestPrepareLocal(t *testing.T) {
	dir := t.TempDir()
	headers := map[string]fitsframe.Header{
		"VIMOS.1.fits": {"ESO DPR TYPE": "BIAS"},
		"VIMOS.2.fits": {"ESO DPR TYPE": "WAVE,LAMP"},
		"VIMOS.3.fits": {"ESO DPR TYPE": "WAVE,LAMP"},
		"VIMOS.4.fits": {"ESO DPR TYPE": "FLAT,LAMP"},
	}
	for name := range headers {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.fits"), nil, 0o644))

	c := &classify.Classifier{
		Rules: classify.IFURules,
		Read: func(path string) (fitsframe.Header, error) {
			h, ok := headers[filepath.Base(path)]
			if !ok {
				return nil, errors.New("not a FITS file")
			}
			return h, nil
		},
	}

	r := &Reducer{Config: config.Default()}
	lm, err := r.PrepareLocal(dir, StageCalib, c)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "calib.sof"), lm.Path)
	require.Len(t, lm.Skipped, 1)

	data, err := os.ReadFile(lm.Path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "./VIMOS.4.fits\tIFU_SCREEN_FLAT\n"), text)
	assert.Contains(t, text, "./VIMOS.3.fits\tIFU_ARC_SPECTRUM\n")
	assert.NotContains(t, text, "VIMOS.2.fits")
	assert.Contains(t, text, "lcat_HR_blue.tfits\tLINE_CATALOG\n")
	assert.Contains(t, text, "master_bias.fits\tMASTER_BIAS\n")

	_, err = r.PrepareLocal(dir, StageStandard, c)
	assert.ErrorIs(t, err, ErrMissingCategory)
}
