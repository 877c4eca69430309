package xlreport

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/haneul-lab/go-xlreport/internal/convert"
	"github.com/haneul-lab/go-xlreport/internal/render"
	"github.com/haneul-lab/go-xlreport/mapping"
)

// pdfEngine abstracts HTML to PDF conversion so tests can run without a
// browser.
type pdfEngine interface {
	ToPDF(ctx context.Context, htmlContent, outputPath, baseDir string) error
	Close() error
}

// Compile-time interface check.
var _ pdfEngine = (*convert.PDFEngine)(nil)

// exporterConfig holds internal configuration for Exporter.
type exporterConfig struct {
	timeout   time.Duration
	rasterDPI int
	page      *convert.PageSize
}

// Exporter drives the extraction -> mapping -> rendering -> conversion
// pipeline across a (template x row) matrix. It owns a scratch directory
// for intermediate files; callers purge it with CleanupWorkDir before a
// new job and after consuming the final output.
//
// An Exporter processes one job at a time. It is expected to be driven
// from a background goroutine by its caller, with progress observations
// crossing back to the caller's context.
type Exporter struct {
	cfg       exporterConfig
	logger    *slog.Logger
	templates map[string]*Template
	workDir   string

	engine    pdfEngine
	rasterize func(pdfPath, outputPath string, dpi int) error
	merge     func(pdfPaths []string, outputPath string) error

	cancelled atomic.Bool
	state     atomic.Int32
}

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

// WithLogger sets the structured logger used for batch diagnostics.
func WithLogger(logger *slog.Logger) ExporterOption {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithTimeout sets the per-document conversion timeout.
// Panics if d <= 0 (programmer error, similar to time.NewTicker).
func WithTimeout(d time.Duration) ExporterOption {
	if d <= 0 {
		panic("xlreport: WithTimeout duration must be positive")
	}
	return func(e *Exporter) {
		e.cfg.timeout = d
	}
}

// WithRasterDPI sets the resolution for PNG output.
func WithRasterDPI(dpi int) ExporterOption {
	return func(e *Exporter) {
		e.cfg.rasterDPI = dpi
	}
}

// WithPageSize overrides the default A4 page geometry.
func WithPageSize(p convert.PageSize) ExporterOption {
	return func(e *Exporter) {
		e.cfg.page = &p
	}
}

// NewExporter creates an Exporter over the given templates, using
// workDir for intermediate files. The PDF engine is created lazily with
// the configured timeout unless injected by tests.
func NewExporter(templates []*Template, workDir string, opts ...ExporterOption) *Exporter {
	e := &Exporter{
		cfg: exporterConfig{
			timeout:   convert.DefaultTimeout,
			rasterDPI: convert.DefaultRasterDPI,
		},
		logger:    slog.Default(),
		templates: make(map[string]*Template, len(templates)),
		workDir:   workDir,
		rasterize: convert.Rasterize,
		merge:     convert.Merge,
	}
	for _, t := range templates {
		e.templates[t.Name] = t
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.engine == nil {
		engineOpts := []convert.EngineOption{convert.WithTimeout(e.cfg.timeout)}
		if e.cfg.page != nil {
			engineOpts = append(engineOpts, convert.WithPageSize(*e.cfg.page))
		}
		e.engine = convert.NewPDFEngine(engineOpts...)
	}
	return e
}

// State returns the orchestrator's current lifecycle phase.
func (e *Exporter) State() State {
	return State(e.state.Load())
}

// Cancel requests cooperative cancellation: no further units start, but
// the unit in flight finishes. The flag is observed before each unit
// and cleared at the start of the next Export.
func (e *Exporter) Cancel() {
	e.cancelled.Store(true)
}

// exportUnit is one (template, row index) pairing, the atomic unit of
// batch work.
type exportUnit struct {
	template string
	rowIdx   int
}

// enumerateUnits expands the (template x row) matrix in the job's
// ordering mode.
func enumerateUnits(job *ExportJob) []exportUnit {
	units := make([]exportUnit, 0, len(job.Templates)*len(job.Rows))
	if job.GroupByTemplate {
		for _, t := range job.Templates {
			for r := range job.Rows {
				units = append(units, exportUnit{template: t, rowIdx: r})
			}
		}
		return units
	}
	for r := range job.Rows {
		for _, t := range job.Templates {
			units = append(units, exportUnit{template: t, rowIdx: r})
		}
	}
	return units
}

// Export runs the full batch and returns its result. Per-unit render or
// conversion failures are logged and skipped; only setup failures (bad
// configuration, unusable working directory) return an error. Check
// result.Cancelled and result.OutputPath to distinguish "cancelled",
// "completed with output" and "completed with nothing generated".
func (e *Exporter) Export(ctx context.Context, job ExportJob) (*ExportResult, error) {
	if err := job.Validate(); err != nil {
		e.state.Store(int32(StateFailed))
		return nil, err
	}
	if State(e.state.Swap(int32(StateRunning))) == StateRunning {
		return nil, ErrExportRunning
	}
	e.cancelled.Store(false)

	jobDir := filepath.Join(e.workDir, "job-"+uuid.NewString())
	if err := os.MkdirAll(jobDir, 0o750); err != nil {
		e.state.Store(int32(StateFailed))
		return nil, fmt.Errorf("%w: %v", ErrCreateWorkDir, err)
	}

	units := enumerateUnits(&job)
	total := len(units)
	result := &ExportResult{UnitsTotal: total}

	e.logger.Info("export started",
		"templates", len(job.Templates), "rows", len(job.Rows),
		"format", job.Format, "order", orderName(job.GroupByTemplate))

	var generated []string
	for _, unit := range units {
		// Cooperative cancellation: checked before each unit, never
		// preemptive. A unit in flight always completes.
		if e.cancelled.Load() || ctx.Err() != nil {
			e.state.Store(int32(StateCancelled))
			e.logger.Info("export cancelled",
				"completed", result.UnitsCompleted, "total", total)
			result.Cancelled = true
			return result, nil
		}

		tmpl, ok := e.templates[unit.template]
		if !ok {
			e.logger.Error("unknown template, unit skipped", "template", unit.template)
			continue
		}

		filename := fmt.Sprintf("%s_%s_%03d", job.FilenameBase, tmpl.Name, unit.rowIdx+1)
		outDir := unitDir(jobDir, &job, tmpl.Name, unit.rowIdx)
		outPath := filepath.Join(outDir, filename+".pdf")

		row := job.Rows[unit.rowIdx]
		err := os.MkdirAll(outDir, 0o750)
		if err == nil {
			err = e.renderUnit(ctx, tmpl, &job, row.ByName, row.ByIndex, outPath)
		}
		if err != nil {
			e.logger.Error("document conversion failed",
				"template", tmpl.Name, "row", unit.rowIdx, "error", err)
		} else {
			generated = append(generated, outPath)
			e.logger.Debug("document generated", "path", outPath)
		}

		result.UnitsCompleted++
		if job.Progress != nil {
			job.Progress(result.UnitsCompleted, total, filename+".pdf", row.ByName)
		}
	}

	files, outputPath, err := e.postProcess(generated, &job, jobDir)
	if err != nil {
		e.state.Store(int32(StateFailed))
		return nil, err
	}
	result.Files = files
	result.OutputPath = outputPath

	e.state.Store(int32(StateCompleted))
	if outputPath == "" {
		e.logger.Warn("export completed with nothing generated")
	} else {
		e.logger.Info("export completed", "files", len(files), "output", outputPath)
	}
	return result, nil
}

// renderUnit maps, renders and converts one (template, row) pairing.
func (e *Exporter) renderUnit(ctx context.Context, tmpl *Template, job *ExportJob, byName map[string]any, byIndex []any, outPath string) error {
	mapper := mapping.New(tmpl.Fields, job.Headers, mapping.WithLogger(e.logger))
	values := mapper.Apply(byName, byIndex)
	markup := render.Render(tmpl.Markup, values)
	return e.engine.ToPDF(ctx, markup, outPath, tmpl.Dir)
}

// postProcess applies, in order: raster conversion, single-file merge,
// final packaging.
func (e *Exporter) postProcess(generated []string, job *ExportJob, jobDir string) (files []string, outputPath string, err error) {
	if len(generated) == 0 {
		return nil, "", nil
	}
	files = generated

	if job.Format == FormatPNG {
		var pngs []string
		for _, pdfPath := range files {
			pngPath := replaceExt(pdfPath, ".png")
			if err := e.rasterize(pdfPath, pngPath, e.cfg.rasterDPI); err != nil {
				e.logger.Error("raster conversion failed", "path", pdfPath, "error", err)
				continue
			}
			pngs = append(pngs, pngPath)
		}
		files = pngs
	}

	if job.Format == FormatPDF && job.SingleFile && len(files) > 1 {
		mergedPath := filepath.Join(jobDir, job.FilenameBase+".pdf")
		if err := e.merge(files, mergedPath); err != nil {
			e.logger.Error("merge failed, keeping individual files", "error", err)
		} else {
			files = []string{mergedPath}
		}
	}

	switch len(files) {
	case 0:
		return nil, "", nil
	case 1:
		return files, files[0], nil
	default:
		archivePath := filepath.Join(jobDir, job.FilenameBase+".zip")
		if err := createArchive(files, archivePath); err != nil {
			return nil, "", err
		}
		return files, archivePath, nil
	}
}

// unitDir resolves the output directory for one unit per the job's
// folder structure mode.
func unitDir(jobDir string, job *ExportJob, templateName string, rowIdx int) string {
	switch job.Structure {
	case StructureByTemplate:
		return filepath.Join(jobDir, templateName)
	case StructureByRow:
		return filepath.Join(jobDir, fmt.Sprintf("row_%03d", rowIdx+1))
	default:
		return jobDir
	}
}

// replaceExt swaps a path's extension.
func replaceExt(path, ext string) string {
	return path[:len(path)-len(filepath.Ext(path))] + ext
}

// orderName names the enumeration order for logs.
func orderName(groupByTemplate bool) string {
	if groupByTemplate {
		return "template-major"
	}
	return "row-major"
}

// Close releases conversion resources (the headless browser).
func (e *Exporter) Close() error {
	return e.engine.Close()
}

// CleanupWorkDir removes every intermediate file the exporter has
// written. Scratch content is not self-cleaning; callers invoke this
// before a new job and after consuming the final output.
func (e *Exporter) CleanupWorkDir() error {
	if e.workDir == "" {
		return nil
	}
	return os.RemoveAll(e.workDir)
}
