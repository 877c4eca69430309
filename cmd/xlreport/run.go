package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	xlreport "github.com/haneul-lab/go-xlreport"
	"github.com/haneul-lab/go-xlreport/ingest"
)

// Sentinel errors for CLI operations.
var (
	ErrNoWorkbook      = errors.New("no workbook specified")
	ErrNoTemplateDir   = errors.New("no template directory specified")
	ErrUnknownTemplate = errors.New("unknown template name")
	ErrInvalidTimeout  = errors.New("invalid timeout")
	ErrWriteOutput     = errors.New("failed to write final output")
)

// run executes one export batch from the merged configuration and
// copies the deliverable into the output directory.
func run(ctx context.Context, cfg *Config, logger *slog.Logger, stdout io.Writer) error {
	if cfg.Excel.Path == "" {
		return ErrNoWorkbook
	}
	if cfg.Templates.Dir == "" {
		return ErrNoTemplateDir
	}

	templates, err := xlreport.LoadTemplateDir(cfg.Templates.Dir)
	if err != nil {
		if len(templates) == 0 {
			return err
		}
		// Broken templates are reported; the rest still run.
		logger.Warn("some templates failed to load", "error", err)
	}
	names, err := selectTemplates(templates, cfg.Templates.Names)
	if err != nil {
		return err
	}

	loader := ingest.NewLoader(ingest.WithLogger(logger))
	if err := loader.Load(cfg.Excel.Path); err != nil {
		return err
	}
	defer func() { _ = loader.Close() }()

	records, err := loader.Records()
	if err != nil {
		return err
	}
	headers, err := loader.Headers()
	if err != nil {
		return err
	}
	rowIdx, err := parseRowSpec(cfg.Excel.Rows, len(records))
	if err != nil {
		return err
	}
	rows := make([]ingest.Row, len(rowIdx))
	for i, idx := range rowIdx {
		rows[i] = records[idx]
	}

	opts := []xlreport.ExporterOption{xlreport.WithLogger(logger)}
	if cfg.Export.DPI > 0 {
		opts = append(opts, xlreport.WithRasterDPI(cfg.Export.DPI))
	}
	if cfg.Export.Timeout != "" {
		d, err := time.ParseDuration(cfg.Export.Timeout)
		if err != nil || d <= 0 {
			return fmt.Errorf("%w: %q", ErrInvalidTimeout, cfg.Export.Timeout)
		}
		opts = append(opts, xlreport.WithTimeout(d))
	}

	workDir, err := os.MkdirTemp("", "xlreport-")
	if err != nil {
		return fmt.Errorf("creating work directory: %w", err)
	}
	exporter := xlreport.NewExporter(templates, workDir, opts...)
	defer func() { _ = exporter.CleanupWorkDir() }()
	defer func() { _ = exporter.Close() }()

	result, err := exporter.Export(ctx, xlreport.ExportJob{
		Templates:       names,
		Rows:            rows,
		Headers:         headers,
		Format:          cfg.Export.Format,
		SingleFile:      cfg.Export.SingleFile,
		GroupByTemplate: cfg.Export.GroupByTemplate,
		Structure:       cfg.Export.Structure,
		FilenameBase:    cfg.Export.Name,
		Progress: func(current, total int, filename string, _ map[string]any) {
			fmt.Fprintf(stdout, "[%d/%d] %s\n", current, total, filename)
		},
	})
	if err != nil {
		return err
	}
	if result.Cancelled {
		fmt.Fprintln(stdout, "export cancelled")
		return nil
	}
	if result.OutputPath == "" {
		fmt.Fprintln(stdout, "nothing generated")
		return nil
	}

	dest := filepath.Join(cfg.Export.OutputDir, filepath.Base(result.OutputPath))
	if err := copyFile(result.OutputPath, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}
	fmt.Fprintln(stdout, dest)
	return nil
}

// selectTemplates resolves the requested template names, defaulting to
// every loaded template.
func selectTemplates(templates []*xlreport.Template, names []string) ([]string, error) {
	if len(names) == 0 {
		if len(templates) == 0 {
			return nil, xlreport.ErrNoTemplates
		}
		all := make([]string, len(templates))
		for i, t := range templates {
			all[i] = t.Name
		}
		return all, nil
	}
	known := make(map[string]bool, len(templates))
	for _, t := range templates {
		known[t.Name] = true
	}
	for _, n := range names {
		if !known[n] {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, n)
		}
	}
	return names, nil
}

// copyFile copies src to dst, creating the destination directory.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src) // #nosec G304 -- src is exporter-owned scratch output
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	out, err := os.Create(dst) // #nosec G304 -- dst is the user's output directory
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	_, err = io.Copy(out, in)
	return err
}
