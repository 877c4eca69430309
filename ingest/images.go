package ingest

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	// Register decoders for common embedded picture formats.
	_ "image/gif"
	_ "image/jpeg"

	"github.com/xuri/excelize/v2"
	"golang.org/x/image/draw"
)

// imageWorkers bounds the decode pool; decoding and thumbnail scaling
// are CPU-bound.
const imageWorkers = 4

// thumbBound is the square bounding box for thumbnails, in pixels.
// Aspect ratio is preserved within it.
const thumbBound = 40

// ImageAsset is one embedded image extracted from the workbook,
// anchored at a 1-based (row, column) cell position. Both files live in
// the session image cache and are regenerated on every load.
type ImageAsset struct {
	Row       int
	Col       int
	Path      string
	ThumbPath string
}

// pictureJob carries one embedded picture to the decode pool.
type pictureJob struct {
	row, col int
	data     []byte
}

// extractImages pulls every embedded picture out of the workbook on a
// dedicated read/write-capable handle, decodes them on a bounded worker
// pool and writes full image + thumbnail into cacheDir. One picture's
// failure never aborts the others; a total failure returns an empty map.
func (l *Loader) extractImages(path, sheet, cacheDir string) map[string]ImageAsset {
	images := make(map[string]ImageAsset)

	f, err := excelize.OpenFile(path)
	if err != nil {
		l.logger.Warn("image extraction skipped", "path", path, "error", err)
		return images
	}
	defer f.Close()

	cells, err := f.GetPictureCells(sheet)
	if err != nil {
		l.logger.Warn("image extraction skipped", "sheet", sheet, "error", err)
		return images
	}
	if len(cells) == 0 {
		return images
	}

	if err := os.MkdirAll(cacheDir, 0o750); err != nil {
		l.logger.Warn("cannot create image cache", "dir", cacheDir, "error", err)
		return images
	}

	var pendingJobs []pictureJob
	for _, cell := range cells {
		pics, err := f.GetPictures(sheet, cell)
		if err != nil || len(pics) == 0 {
			l.logger.Debug("no picture data at anchor", "cell", cell, "error", err)
			continue
		}
		col, row, err := excelize.CellNameToCoordinates(cell)
		if err != nil {
			continue
		}
		pendingJobs = append(pendingJobs, pictureJob{row: row, col: col, data: pics[0].File})
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	jobs := make(chan pictureJob, len(pendingJobs))

	workers := imageWorkers
	if workers > len(pendingJobs) {
		workers = len(pendingJobs)
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				asset, err := l.decodePicture(job, cacheDir)
				if err != nil {
					l.logger.Warn("embedded image skipped",
						"row", job.row, "col", job.col, "error", err)
					continue
				}
				mu.Lock()
				images[imageKey(job.row, job.col)] = asset
				mu.Unlock()
			}
		}()
	}

	for _, job := range pendingJobs {
		jobs <- job
	}
	close(jobs)
	wg.Wait()

	return images
}

// decodePicture decodes one embedded picture and writes its full-size
// PNG and thumbnail into the cache directory.
func (l *Loader) decodePicture(job pictureJob, cacheDir string) (ImageAsset, error) {
	img, _, err := image.Decode(bytes.NewReader(job.data))
	if err != nil {
		return ImageAsset{}, fmt.Errorf("decoding picture: %w", err)
	}

	fullPath := filepath.Join(cacheDir, fmt.Sprintf("img_%d_%d.png", job.row, job.col))
	if err := writePNG(fullPath, img); err != nil {
		return ImageAsset{}, err
	}

	thumbPath := filepath.Join(cacheDir, fmt.Sprintf("thumb_%d_%d.png", job.row, job.col))
	if err := writePNG(thumbPath, thumbnail(img)); err != nil {
		return ImageAsset{}, err
	}

	return ImageAsset{Row: job.row, Col: job.col, Path: fullPath, ThumbPath: thumbPath}, nil
}

// thumbnail scales an image to fit the thumbBound square, preserving
// aspect ratio.
func thumbnail(src image.Image) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return src
	}

	tw, th := thumbBound, thumbBound
	if w >= h {
		th = h * thumbBound / w
	} else {
		tw = w * thumbBound / h
	}
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// writePNG encodes img to path, closing the file on every exit path.
func writePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path) // #nosec G304 -- path built from the cache dir
	if err != nil {
		return fmt.Errorf("creating image file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing image file: %w", closeErr)
		}
	}()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encoding PNG: %w", err)
	}
	return nil
}
