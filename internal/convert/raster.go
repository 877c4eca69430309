package convert

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"

	fitz "github.com/gen2brain/go-fitz"
)

// DefaultRasterDPI gives print-quality PNG output.
const DefaultRasterDPI = 300

// Rasterize renders the first page of a PDF to a PNG image at the given
// resolution. MuPDF renders at a 72-DPI baseline, so the requested DPI
// acts as a dpi/72 zoom factor. Multi-page inputs yield one image from
// page 1. The output is opaque RGB; transparency is flattened.
func Rasterize(pdfPath, outputPath string, dpi int) (err error) {
	if dpi <= 0 {
		dpi = DefaultRasterDPI
	}

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRasterOpen, err)
	}
	defer func() {
		if closeErr := doc.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("%w: closing document: %v", ErrRaster, closeErr)
		}
	}()

	if doc.NumPage() == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyPDF, pdfPath)
	}

	img, err := doc.ImageDPI(0, float64(dpi))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRaster, err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o750); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}

	f, err := os.Create(outputPath) // #nosec G304 -- caller-controlled output path
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("%w: %v", ErrWriteOutput, closeErr)
		}
	}()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("%w: encoding PNG: %v", ErrRaster, err)
	}
	return nil
}
