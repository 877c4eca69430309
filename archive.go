package xlreport

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"
)

// createArchive bundles files into a single deflate-compressed ZIP at
// outputPath. Entries are stored by base name; generated filenames
// already encode template and row, so names never collide.
func createArchive(files []string, outputPath string) (err error) {
	out, err := os.Create(outputPath) // #nosec G304 -- path built from the job dir
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchive, err)
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("%w: %v", ErrArchive, closeErr)
		}
	}()

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})

	for _, file := range files {
		if err := addToArchive(zw, file); err != nil {
			_ = zw.Close()
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrArchive, err)
	}
	return nil
}

// addToArchive streams one file into the ZIP writer.
func addToArchive(zw *zip.Writer, file string) (err error) {
	f, err := os.Open(file) // #nosec G304 -- generated file path
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchive, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("%w: %v", ErrArchive, closeErr)
		}
	}()

	w, err := zw.Create(filepath.Base(file))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArchive, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("%w: %v", ErrArchive, err)
	}
	return nil
}
