// Package esorex runs ESO pipeline recipes through the esorex command line
// tool. Recipes themselves are opaque: this package only builds the command,
// executes it and tidies up its log.
package esorex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultBinary is looked up in PATH when no esorex path is configured.
const DefaultBinary = "esorex"

// logName is the file esorex writes into its --log-dir.
const logName = "esorex.log"

// Invocation is one recipe call.
type Invocation struct {
	Recipe string
	Params map[string]string
	SOF    string
}

// Result describes a finished recipe call.
type Result struct {
	ID        string
	Recipe    string
	SOF       string
	OutputDir string
	Command   []string
	ExitCode  int
	Started   time.Time
	Duration  time.Duration
	Log       string
	Err       error
}

// ExitError is returned when a recipe exits non-zero.
type ExitError struct {
	Recipe string
	Code   int
	Err    error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("recipe %s exited with status %d", e.Recipe, e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Executor starts a process and waits for it.
type Executor interface {
	Execute(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error
}

// ExecExecutor runs commands with os/exec, without a shell.
type ExecExecutor struct{}

func (ExecExecutor) Execute(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// Recorder keeps a history of recipe runs.
type Recorder interface {
	Record(ctx context.Context, res Result) error
}

// Runner calls esorex with a fixed output and log directory.
type Runner struct {
	Binary    string
	OutputDir string
	LogDir    string
	Exec      Executor
	Recorder  Recorder
	Stdout    io.Writer
	Stderr    io.Writer
}

// NewRunner returns a runner writing products and logs into dir.
func NewRunner(binary, dir string) *Runner {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Runner{Binary: binary, OutputDir: dir, LogDir: dir, Exec: ExecExecutor{}}
}

// Args builds the esorex argument list:
//
//	--output-dir=<dir> --log-dir=<dir> <recipe> [--Param=value ...] <sof>
//
// Recipe parameters are sorted by name.
func (r *Runner) Args(inv Invocation) []string {
	args := []string{
		"--output-dir=" + r.OutputDir,
		"--log-dir=" + r.logDir(),
		inv.Recipe,
	}
	keys := make([]string, 0, len(inv.Params))
	for k := range inv.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, fmt.Sprintf("--%s=%s", strings.TrimLeft(k, "-"), inv.Params[k]))
	}
	return append(args, inv.SOF)
}

func (r *Runner) logDir() string {
	if r.LogDir == "" {
		return r.OutputDir
	}
	return r.LogDir
}

// CommandLine renders the full command for display.
func (r *Runner) CommandLine(inv Invocation) string {
	return strings.Join(append([]string{r.Binary}, r.Args(inv)...), " ")
}

// Run executes one recipe and renames esorex.log to <recipe>.log.
func (r *Runner) Run(ctx context.Context, inv Invocation) (Result, error) {
	if inv.Recipe == "" {
		return Result{}, errors.New("no recipe given")
	}
	if _, err := os.Stat(inv.SOF); err != nil {
		return Result{}, fmt.Errorf("set-of-frames for %s: %w", inv.Recipe, err)
	}
	for _, dir := range []string{r.OutputDir, r.logDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Result{}, err
		}
	}

	executor := r.Exec
	if executor == nil {
		executor = ExecExecutor{}
	}
	stdout, stderr := r.Stdout, r.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	res := Result{
		ID:        uuid.NewString(),
		Recipe:    inv.Recipe,
		SOF:       inv.SOF,
		OutputDir: r.OutputDir,
		Command:   append([]string{r.Binary}, r.Args(inv)...),
		Started:   time.Now(),
	}
	log.Println(strings.Join(res.Command, " "))

	err := executor.Execute(ctx, r.Binary, r.Args(inv), stdout, stderr)
	res.Duration = time.Since(res.Started)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			err = &ExitError{Recipe: inv.Recipe, Code: res.ExitCode, Err: err}
		} else {
			res.ExitCode = -1
			err = fmt.Errorf("running %s: %w", inv.Recipe, err)
		}
		res.Err = err
	}

	res.Log = r.renameLog(inv.Recipe)
	r.record(ctx, res)
	return res, err
}

// renameLog moves esorex.log aside so the next recipe does not overwrite it.
func (r *Runner) renameLog(recipe string) string {
	src := filepath.Join(r.logDir(), logName)
	dst := filepath.Join(r.logDir(), recipe+".log")
	if err := os.Rename(src, dst); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("could not rename %s: %v", src, err)
		} else {
			log.Printf("%s wrote no %s", recipe, logName)
		}
		return ""
	}
	return dst
}

func (r *Runner) record(ctx context.Context, res Result) {
	if r.Recorder == nil {
		return
	}
	if err := r.Recorder.Record(ctx, res); err != nil {
		log.Printf("could not record %s run: %v", res.Recipe, err)
	}
}
