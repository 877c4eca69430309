package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	flag "github.com/spf13/pflag"

	xlreport "github.com/haneul-lab/go-xlreport"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrConfigParse    = errors.New("failed to parse config")
)

// Config holds the CLI configuration. Explicitly set flags override
// file values.
type Config struct {
	Excel     ExcelConfig     `yaml:"excel"`
	Templates TemplatesConfig `yaml:"templates"`
	Export    ExportConfig    `yaml:"export"`
}

// ExcelConfig names the workbook and the row selection.
type ExcelConfig struct {
	Path string `yaml:"path"`
	Rows string `yaml:"rows"` // 1-based selection, e.g. "1,3-5"; empty = all
}

// TemplatesConfig names the template root and the selected templates.
type TemplatesConfig struct {
	Dir   string   `yaml:"dir"`
	Names []string `yaml:"names"` // empty = every template in Dir
}

// ExportConfig defines batch output options.
type ExportConfig struct {
	Format          string `yaml:"format"`
	SingleFile      bool   `yaml:"singleFile"`
	GroupByTemplate bool   `yaml:"groupByTemplate"`
	Structure       string `yaml:"structure"`
	Name            string `yaml:"name"`
	OutputDir       string `yaml:"outputDir"`
	DPI             int    `yaml:"dpi"`
	Timeout         string `yaml:"timeout"`
}

// DefaultConfig returns the configuration used when no file or flags
// say otherwise.
func DefaultConfig() *Config {
	return &Config{
		Export: ExportConfig{
			Format:    xlreport.FormatPDF,
			Structure: xlreport.StructureFlat,
			Name:      xlreport.DefaultFilenameBase,
			OutputDir: ".",
		},
	}
}

// LoadConfig reads a YAML config file over the defaults. Unknown fields
// are rejected so misspelled keys fail loudly.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- config path is user-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.UnmarshalWithOptions(data, cfg, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}
	return cfg, nil
}

// applyFlags overlays explicitly set flags onto cfg. Booleans need the
// FlagSet because false is a meaningful override.
func applyFlags(cfg *Config, f *cliFlags, fs *flag.FlagSet) {
	if f.excel != "" {
		cfg.Excel.Path = f.excel
	}
	if f.rows != "" {
		cfg.Excel.Rows = f.rows
	}
	if f.templatesDir != "" {
		cfg.Templates.Dir = f.templatesDir
	}
	if len(f.templates) > 0 {
		cfg.Templates.Names = f.templates
	}
	if f.format != "" {
		cfg.Export.Format = f.format
	}
	if fs.Changed("single-file") {
		cfg.Export.SingleFile = f.singleFile
	}
	if fs.Changed("group-by-template") {
		cfg.Export.GroupByTemplate = f.groupByTemplate
	}
	if f.structure != "" {
		cfg.Export.Structure = f.structure
	}
	if f.name != "" {
		cfg.Export.Name = f.name
	}
	if f.outputDir != "" {
		cfg.Export.OutputDir = f.outputDir
	}
	if f.dpi != 0 {
		cfg.Export.DPI = f.dpi
	}
	if f.timeout != "" {
		cfg.Export.Timeout = f.timeout
	}
}
