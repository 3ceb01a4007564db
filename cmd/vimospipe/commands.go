package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"vimospipe/classify"
	"vimospipe/fitsframe"
	"vimospipe/pipeline"
	"vimospipe/qcplot"
	"vimospipe/sof"
	"vimospipe/watch"
)

func runSort(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("sort")
	pattern := fs.String("pattern", classify.RawPattern, "file name pattern of raw frames")
	if err := parseArgs(fs, args, 1); err != nil {
		return err
	}

	report, err := classify.SortQuadrants(fs.Arg(0), *pattern, nil)
	if err != nil {
		return err
	}
	for q := 1; q <= classify.NumQuadrants; q++ {
		fmt.Printf("q%d: %d frame(s)\n", q, len(report.Moved[q]))
	}
	if len(report.Skipped) > 0 {
		fmt.Printf("left in place: %d\n", len(report.Skipped))
	}
	return nil
}

func runClassify(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("classify")
	pattern := fs.String("pattern", fitsframe.DefaultPattern, "file name pattern")
	out := fs.String("o", "", "write the set-of-frames to this file instead of stdout")
	if err := parseArgs(fs, args, 1); err != nil {
		return err
	}

	res, err := classify.New(classify.IFURules).ClassifyDir(fs.Arg(0), *pattern)
	if err != nil {
		return err
	}
	for _, p := range res.Unmatched {
		log.Printf("no rule for %s", p)
	}

	m := &sof.Manifest{}
	for _, cat := range res.Frames.Categories() {
		m.Add(cat, res.Frames.Get(cat)...)
	}
	if *out != "" {
		return m.WriteFile(*out)
	}
	return m.Write(os.Stdout)
}

func runSOF(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("sof")
	stage := fs.String("stage", "all", "stage to write (bias, calib, standard, science or all)")
	if err := parseArgs(fs, args, 1); err != nil {
		return err
	}

	r := pipeline.NewReducer(a.cfg, nil)
	c := classify.New(classify.IFURules)
	names := stageNames(*stage)

	written := 0
	for _, name := range names {
		lm, err := r.PrepareLocal(fs.Arg(0), name, c)
		if err != nil {
			if *stage != "all" {
				return err
			}
			log.Printf("no %s set-of-frames: %v", name, err)
			continue
		}
		fmt.Printf("%s (%d frames)\n", lm.Path, lm.Manifest.Len())
		written++
	}
	if written == 0 {
		return errors.New("no set-of-frames written")
	}
	return nil
}

// stageNames expands "all" into every local stage, in reduction order.
func stageNames(stage string) []string {
	if stage != "all" {
		return []string{stage}
	}
	var names []string
	for _, s := range pipeline.LocalStages() {
		names = append(names, s.Name)
	}
	return names
}

func runReduce(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("reduce")
	sofPath := fs.String("sof", "", "set-of-frames listing the raw frames (default: classify <datadir>)")
	from := fs.String("from", "", "first stage to run")
	to := fs.String("to", "", "last stage to run")
	dryRun := fs.Bool("dry-run", false, "write the set-of-frames files without running esorex")
	if err := parseArgs(fs, args, 1); err != nil {
		return err
	}
	dataDir := fs.Arg(0)

	var raw sof.FrameSet
	if *sofPath != "" {
		m, err := sof.ReadFile(*sofPath)
		if err != nil {
			return err
		}
		raw = m.FrameSet()
	} else {
		res, err := classify.New(classify.IFURules).ClassifyDir(dataDir, "")
		if err != nil {
			return err
		}
		raw = sof.FrameSet{}
		for _, cat := range res.Frames.Categories() {
			for _, p := range res.Frames.Get(cat) {
				raw.Add(cat, filepath.Base(p))
			}
		}
	}

	if !*dryRun {
		if err := a.openLedger(); err != nil {
			log.Printf("not recording runs: %v", err)
		}
	}
	r := pipeline.NewReducer(a.cfg, a.recorder())
	r.From, r.To, r.DryRun = *from, *to, *dryRun

	report, err := r.ReduceIFU(ctx, dataDir, raw)
	if report != nil {
		printStages(report.Stages)
	}
	return err
}

func printStages(stages []pipeline.StageReport) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tRECIPE\tSTATUS\tTIME\tSOF")
	for _, s := range stages {
		status, took := "written", ""
		switch {
		case s.Skipped:
			status = "skipped"
		case s.Err != nil:
			status = "failed"
			if s.Result != nil {
				took = s.Result.Duration.Round(time.Second).String()
			}
		case s.Result != nil:
			status = "ok"
			took = s.Result.Duration.Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Stage, s.Recipe, status, took, s.SOF)
	}
	tw.Flush()
}

func parseQuadrants(list string) ([]int, error) {
	var qs []int
	for _, f := range strings.Split(list, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		q, err := strconv.Atoi(f)
		if err != nil || q < 1 || q > classify.NumQuadrants {
			return nil, fmt.Errorf("bad quadrant %q", f)
		}
		qs = append(qs, q)
	}
	return qs, nil
}

// parseWavelengths reads the ignore_lines format: comma separated
// wavelengths in Angstrom.
func parseWavelengths(list string) ([]float64, error) {
	var waves []float64
	for _, f := range strings.Split(list, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		w, err := strconv.ParseFloat(f, 64)
		if err != nil || w <= 0 {
			return nil, fmt.Errorf("bad wavelength %q", f)
		}
		waves = append(waves, w)
	}
	return waves, nil
}

func runCombine(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("combine")
	cubeType := fs.String("type", pipeline.DefaultCubeType, "product to combine")
	quadrants := fs.String("quadrants", "1,2,3,4", "comma separated quadrants")
	dryRun := fs.Bool("dry-run", false, "write the set-of-frames file without running esorex")
	if err := parseArgs(fs, args, 1); err != nil {
		return err
	}
	qs, err := parseQuadrants(*quadrants)
	if err != nil {
		return err
	}

	if !*dryRun {
		if err := a.openLedger(); err != nil {
			log.Printf("not recording runs: %v", err)
		}
	}
	r := pipeline.NewReducer(a.cfg, a.recorder())
	r.DryRun = *dryRun
	sr, err := r.CombineCubes(ctx, fs.Arg(0), *cubeType, qs)
	if sr != nil {
		printStages([]pipeline.StageReport{*sr})
	}
	return err
}

func runWCS(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("wcs")
	if err := parseArgs(fs, args, 2); err != nil {
		return err
	}
	if err := fitsframe.SetPointingWCS(fs.Arg(0), fs.Arg(1)); err != nil {
		return err
	}
	fmt.Println(fs.Arg(1))
	return nil
}

func runQC(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("qc")
	out := fs.String("o", "", "output directory (default <dir>/qc)")
	ext := fs.Int("ext", 1, "extension of multi-extension products")
	object := fs.Int("object", 0, "object row of extracted spectra (default: brightest)")
	exclude := fs.String("exclude", "", "comma separated arc wavelengths to mark on residual plots")
	if err := parseArgs(fs, args, 1); err != nil {
		return err
	}
	lines, err := parseWavelengths(*exclude)
	if err != nil {
		return err
	}
	dir := fs.Arg(0)
	outDir := *out
	if outDir == "" {
		outDir = filepath.Join(dir, "qc")
	}

	res, err := qcplot.Report(dir, outDir, qcplot.Options{Extension: *ext, Object: *object, ExcludedLines: lines})
	if err != nil {
		return err
	}
	for _, r := range res.Rendered {
		fmt.Println(r.Path)
	}
	for _, p := range res.Unplotted {
		log.Printf("no plot for %s", filepath.Base(p))
	}
	if len(res.Rendered) == 0 && len(res.Failed) > 0 {
		return fmt.Errorf("no product could be plotted, %d failed", len(res.Failed))
	}
	return nil
}

func runHeader(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("header")
	hdu := fs.Int("hdu", 0, "HDU number, 0 is the primary")
	if err := parseArgs(fs, args, 1); err != nil {
		return err
	}
	cards, err := fitsframe.Cards(fs.Arg(0), *hdu)
	if err != nil {
		return err
	}
	for _, line := range fitsframe.FormatCards(cards) {
		fmt.Println(line)
	}
	return nil
}

func runWatch(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("watch")
	pattern := fs.String("pattern", classify.RawPattern, "file name pattern of raw frames")
	if err := parseArgs(fs, args, 1); err != nil {
		return err
	}
	w := watch.New(fs.Arg(0))
	w.Pattern = *pattern
	log.Printf("watching %s, interrupt to stop", fs.Arg(0))
	return w.Run(ctx)
}

func runRuns(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("runs")
	recipe := fs.String("recipe", "", "only runs of this recipe")
	n := fs.Int("n", 20, "number of runs to list")
	if err := parseArgs(fs, args, 0); err != nil {
		return err
	}
	if !a.cfg.LedgerEnabled() {
		return errors.New("the run ledger is turned off")
	}
	if err := a.openLedger(); err != nil {
		return err
	}

	runs, err := a.ledger.List(ctx, *recipe, *n)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tRECIPE\tEXIT\tTIME\tOUTPUT")
	for _, r := range runs {
		exit := strconv.Itoa(r.ExitCode)
		if !r.Succeeded() && r.ExitCode == 0 {
			exit = "error"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Recipe, exit, r.Duration().Round(time.Second), r.OutputDir)
	}
	return tw.Flush()
}
