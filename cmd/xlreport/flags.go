package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
)

// cliFlags holds all command-line flags.
type cliFlags struct {
	config  string
	verbose int

	excel        string
	templatesDir string
	templates    []string
	rows         string

	format          string
	singleFile      bool
	groupByTemplate bool
	structure       string
	name            string
	outputDir       string
	dpi             int
	timeout         string
}

// parseFlags parses the command line. The returned FlagSet lets callers
// ask which flags were explicitly set.
func parseFlags(args []string) (*cliFlags, *flag.FlagSet, error) {
	fs := flag.NewFlagSet("xlreport", flag.ContinueOnError)
	f := &cliFlags{}

	fs.StringVarP(&f.config, "config", "c", "", "YAML config file path")
	fs.CountVarP(&f.verbose, "verbose", "v", "increase logging verbosity")

	fs.StringVarP(&f.excel, "excel", "x", "", "workbook to ingest (.xlsx)")
	fs.StringVarP(&f.templatesDir, "templates-dir", "T", "", "directory holding template subdirectories")
	fs.StringSliceVarP(&f.templates, "template", "t", nil, "template name to render (repeatable, default: all)")
	fs.StringVarP(&f.rows, "rows", "r", "", "1-based row selection, e.g. 1,3-5 (default: all)")

	fs.StringVarP(&f.format, "format", "f", "", "output format: pdf or png")
	fs.BoolVar(&f.singleFile, "single-file", false, "merge all generated PDFs into one document")
	fs.BoolVar(&f.groupByTemplate, "group-by-template", false, "render every row of a template before the next template")
	fs.StringVar(&f.structure, "structure", "", "multi-file layout: flat, by_template, by_row")
	fs.StringVarP(&f.name, "name", "n", "", "output filename base")
	fs.StringVarP(&f.outputDir, "output", "o", "", "directory for the final deliverable")
	fs.IntVar(&f.dpi, "dpi", 0, "raster resolution for PNG output")
	fs.StringVar(&f.timeout, "timeout", "", "per-document conversion timeout (e.g. 30s, 2m)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: xlreport [flags]\n\n")
		fmt.Fprint(os.Stderr, fs.FlagUsages())
	}

	if err := fs.Parse(args[1:]); err != nil {
		return nil, nil, err
	}
	return f, fs, nil
}
