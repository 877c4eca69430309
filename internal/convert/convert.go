// Package convert turns rendered HTML markup into paginated documents.
//
// Three operations are provided: HTML to PDF through headless Chrome
// (go-rod), PDF to PNG rasterization through MuPDF (go-fitz), and PDF
// concatenation with size optimization through pdfcpu. Conversion
// failures are reported as errors; callers decide whether a failed
// conversion aborts a batch.
package convert

import "errors"

// Sentinel errors for conversion operations.
var (
	ErrBrowserConnect = errors.New("failed to connect to browser")
	ErrPageCreate     = errors.New("failed to create browser page")
	ErrPageLoad       = errors.New("failed to load page")
	ErrPDFRender      = errors.New("PDF rendering failed")
	ErrWriteOutput    = errors.New("failed to write output file")
	ErrRasterOpen     = errors.New("failed to open PDF for rasterization")
	ErrEmptyPDF       = errors.New("PDF has no pages")
	ErrRaster         = errors.New("rasterization failed")
	ErrMerge          = errors.New("PDF merge failed")
	ErrNothingToMerge = errors.New("no input files to merge")
)
