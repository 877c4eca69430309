package convert

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/haneul-lab/go-xlreport/internal/fileutil"
)

// A4 page dimensions in inches. Chrome's printToPDF takes inches, the
// template layouts are designed against 210x297mm.
const (
	a4WidthInches  = 8.27
	a4HeightInches = 11.69
)

// mmPerInch converts millimeter page overrides to Chrome's inch units.
const mmPerInch = 25.4

// DefaultTimeout bounds a single HTML page load + print.
const DefaultTimeout = 30 * time.Second

// File permissions for generated documents.
const filePermissions = 0o644

// PageSize overrides the default A4 page geometry, in millimeters.
type PageSize struct {
	WidthMM  float64
	HeightMM float64
	MarginMM float64
}

// PDFEngine converts HTML markup to PDF files using headless Chrome.
// The browser is launched lazily on first use and must be released with
// Close. A PDFEngine is not safe for concurrent use; create one per
// worker when rendering in parallel.
type PDFEngine struct {
	browser *rod.Browser
	timeout time.Duration
	page    *PageSize
}

// EngineOption configures a PDFEngine.
type EngineOption func(*PDFEngine)

// WithTimeout sets the per-conversion timeout.
// Panics if d <= 0 (programmer error, similar to time.NewTicker).
func WithTimeout(d time.Duration) EngineOption {
	if d <= 0 {
		panic("convert: WithTimeout duration must be positive")
	}
	return func(e *PDFEngine) {
		e.timeout = d
	}
}

// WithPageSize overrides the default A4 page geometry.
func WithPageSize(p PageSize) EngineOption {
	return func(e *PDFEngine) {
		e.page = &p
	}
}

// NewPDFEngine creates a PDFEngine with default configuration.
func NewPDFEngine(opts ...EngineOption) *PDFEngine {
	e := &PDFEngine{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ensureBrowser lazily connects to the browser.
func (e *PDFEngine) ensureBrowser() error {
	if e.browser != nil {
		return nil
	}

	l := launcher.New()

	// Use pre-installed browser if specified (Docker/containerized environments)
	if bin := os.Getenv("ROD_BROWSER_BIN"); bin != "" {
		l = l.Bin(bin)
	}

	// NoSandbox required for CI and containerized environments
	if os.Getenv("CI") == "true" || os.Getenv("ROD_BROWSER_BIN") != "" {
		l = l.NoSandbox(true)
	}

	u, err := l.Launch()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}

	e.browser = rod.New().ControlURL(u)
	if err := e.browser.Connect(); err != nil {
		e.browser = nil
		return fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}
	return nil
}

// Close releases browser resources.
func (e *PDFEngine) Close() error {
	if e.browser != nil {
		err := e.browser.Close()
		e.browser = nil
		return err
	}
	return nil
}

// ToPDF renders HTML markup to a paginated PDF at outputPath.
// baseDir, when non-empty, anchors relative references in the markup;
// rendered markup is normally self-contained (images are inlined as
// data URLs) so baseDir is only needed for template-local assets.
func (e *PDFEngine) ToPDF(ctx context.Context, htmlContent, outputPath, baseDir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmpPath, cleanup, err := fileutil.WriteTempFile(baseDir, htmlContent, "html")
	if err != nil {
		return err
	}
	defer cleanup()

	pdfBytes, err := e.renderFile(ctx, tmpPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o750); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}
	if err := os.WriteFile(outputPath, pdfBytes, filePermissions); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}
	return nil
}

// renderFile opens a local HTML file in headless Chrome and prints it to PDF.
func (e *PDFEngine) renderFile(ctx context.Context, filePath string) ([]byte, error) {
	if err := e.ensureBrowser(); err != nil {
		return nil, err
	}

	page, err := e.browser.Page(proto.TargetCreateTarget{URL: "file://" + filePath})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageCreate, err)
	}
	defer page.Close()

	// Honor the tighter of the engine timeout and the context deadline.
	timeout := e.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
		if timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}

	if err := page.Timeout(timeout).WaitLoad(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reader, err := page.PDF(e.printOptions())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPDFRender, err)
	}

	pdfBytes, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: reading PDF stream: %v", ErrPDFRender, err)
	}
	return pdfBytes, nil
}

// printOptions builds Chrome print settings for the configured page size.
func (e *PDFEngine) printOptions() *proto.PagePrintToPDF {
	width, height, margin := a4WidthInches, a4HeightInches, 0.0
	if e.page != nil {
		width = e.page.WidthMM / mmPerInch
		height = e.page.HeightMM / mmPerInch
		margin = e.page.MarginMM / mmPerInch
	}

	return &proto.PagePrintToPDF{
		PaperWidth:      floatPtr(width),
		PaperHeight:     floatPtr(height),
		MarginTop:       floatPtr(margin),
		MarginBottom:    floatPtr(margin),
		MarginLeft:      floatPtr(margin),
		MarginRight:     floatPtr(margin),
		PrintBackground: true,
	}
}

// floatPtr returns a pointer to a float64 value.
func floatPtr(v float64) *float64 {
	return &v
}
