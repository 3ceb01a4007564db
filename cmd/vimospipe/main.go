// Command vimospipe drives the esorex recipes of the VIMOS IFU pipeline:
// it sorts and classifies raw frames, writes set-of-frames files, runs the
// reduction chain, and plots the products.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"vimospipe/config"
	"vimospipe/esorex"
	"vimospipe/ledger"
)

const version = "0.4.0"

type command struct {
	name    string
	usage   string
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

// commands is filled in init since the commands print their own usage from it.
var commands []command

func init() {
	commands = []command{
		{"sort", "sort [-pattern P] <dir>", "move raw VIMOS frames into q1..q4 by detector quadrant", runSort},
		{"classify", "classify [-pattern P] [-o file] <dir>", "classify FITS files and print their set-of-frames", runClassify},
		{"sof", "sof [-stage name|all] <dir>", "write set-of-frames files next to the raw data of one quadrant", runSOF},
		{"reduce", "reduce [-sof raw.sof] [-from stage] [-to stage] [-dry-run] <datadir>", "run the IFU reduction chain", runReduce},
		{"combine", "combine [-type T] [-quadrants 1,2,3,4] [-dry-run] <datadir>", "combine the quadrant cubes into one field of view", runCombine},
		{"wcs", "wcs <src> <dst>", "copy a cube and point its WCS at the IFU centre", runWCS},
		{"qc", "qc [-o dir] [-ext N] [-object N] <dir>", "plot the pipeline products in a directory", runQC},
		{"header", "header [-hdu N] <file>", "print the header cards of a FITS file", runHeader},
		{"watch", "watch <dir>", "sort raw frames into quadrants as they arrive", runWatch},
		{"runs", "runs [-recipe R] [-n N]", "list recorded recipe runs", runRuns},
	}
}

// app carries what every command shares.
type app struct {
	cfg    *config.Config
	ledger *ledger.Ledger
}

// recorder returns the ledger as an esorex.Recorder, or nil without one.
func (a *app) recorder() esorex.Recorder {
	if a.ledger == nil {
		return nil
	}
	return a.ledger
}

func (a *app) openLedger() error {
	if a.ledger != nil || !a.cfg.LedgerEnabled() {
		return nil
	}
	l, err := ledger.Open(a.cfg.Ledger)
	if err != nil {
		return err
	}
	a.ledger = l
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "vimospipe %s\n\n", version)
	fmt.Fprintf(os.Stderr, "Usage: %s [-config file] <command> [options]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Commands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
}

func main() {
	log.SetFlags(log.Ltime)
	flag.Usage = usage
	configPath := flag.String("config", "", "config file (default "+config.DefaultFile+" if present)")
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == flag.Arg(0) {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", flag.Arg(0))
		flag.Usage()
		os.Exit(1)
	}
	log.SetPrefix(cmd.name + ": ")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	a := &app{cfg: cfg}
	defer func() {
		if a.ledger != nil {
			a.ledger.Close()
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = cmd.run(ctx, a, flag.Args()[1:])
	stop()
	if err != nil {
		if a.ledger != nil {
			a.ledger.Close()
		}
		log.Fatal(err)
	}
}

// newFlagSet returns a flag set printing the usage line of c.
func newFlagSet(c string) *flag.FlagSet {
	fs := flag.NewFlagSet(c, flag.ExitOnError)
	fs.Usage = func() {
		for _, cmd := range commands {
			if cmd.name == c {
				fmt.Fprintf(fs.Output(), "Usage: vimospipe %s\n\n%s\n\n", cmd.usage, cmd.summary)
			}
		}
		fs.PrintDefaults()
	}
	return fs
}

// parseArgs parses args and checks the number of positional arguments.
func parseArgs(fs *flag.FlagSet, args []string, n int) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != n {
		fs.Usage()
		return fmt.Errorf("%s needs %d argument(s), got %d", fs.Name(), n, fs.NArg())
	}
	return nil
}
