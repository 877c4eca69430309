// Package ingest loads analyzer-produced workbooks into row-oriented data.
//
// A Loader evaluates formula cells, extracts embedded images into a
// per-session cache directory, and exposes every data row both as a
// name-keyed map and as an index-keyed slice. The index view is
// authoritative: when two columns share a header name the map view
// keeps only the last one, so index-based access must be used to reach
// the earlier columns.
package ingest

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sentinel errors for ingestion operations.
var (
	ErrFileNotFound = errors.New("workbook file not found")
	ErrOpenWorkbook = errors.New("failed to open workbook")
	ErrReadSheet    = errors.New("failed to read sheet")
	ErrNotLoaded    = errors.New("no workbook loaded; call Load first")
	ErrRowIndex     = errors.New("row index out of range")
)

// DefaultSheetName is the sheet the analyzer writes its capture rows to.
// Workbooks without it fall back to the first sheet.
const DefaultSheetName = "Capture Data"

// imageCacheDirName is created next to the workbook and purged on every
// load so assets from a previous session never leak into the current one.
const imageCacheDirName = ".images"

// Row is one data row, available through both of its views.
// ByIndex[i] is always authoritative for column i; ByName loses
// information when two columns share a header (last write wins).
type Row struct {
	ByName  map[string]any
	ByIndex []any
}

// clone returns a deep-enough copy so callers cannot mutate loader state.
func (r Row) clone() Row {
	byName := make(map[string]any, len(r.ByName))
	for k, v := range r.ByName {
		byName[k] = v
	}
	byIndex := make([]any, len(r.ByIndex))
	copy(byIndex, r.ByIndex)
	return Row{ByName: byName, ByIndex: byIndex}
}

// Loader reads a workbook and serves its rows, headers and embedded images.
// A Loader is reusable: each Load purges the previous session's image
// cache before populating a new one. Not safe for concurrent use.
type Loader struct {
	logger *slog.Logger

	path     string
	sheet    string
	headers  []string
	rows     []Row
	images   map[string]ImageAsset
	cacheDir string
	loaded   bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the structured logger used for ingestion diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a Loader with default configuration.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the workbook at path, evaluating formulas and extracting
// embedded images. Any previously loaded session is discarded and its
// image cache purged first.
func (l *Loader) Load(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}

	l.purgeCache()
	l.loaded = false

	sheet, err := pickSheet(path)
	if err != nil {
		return err
	}

	// Formula pass on its own handle. A failure here degrades to an
	// empty evaluation map; formula cells then fall back to raw text.
	formulaValues := l.evalFormulas(path)

	// Image pass before the structural pass, on a separate handle:
	// evaluating and structural reads cannot see embedded drawings.
	// The cache dir is removed first even on a fresh Loader; a leftover
	// from an earlier process must never mix into this session.
	cacheDir := filepath.Join(filepath.Dir(path), imageCacheDirName)
	if err := os.RemoveAll(cacheDir); err != nil {
		l.logger.Warn("failed to purge image cache", "dir", cacheDir, "error", err)
	}
	images := l.extractImages(path, sheet, cacheDir)

	headers, rows, err := l.readSheet(path, sheet, formulaValues, images)
	if err != nil {
		return err
	}

	l.path = path
	l.sheet = sheet
	l.headers = headers
	l.rows = rows
	l.images = images
	l.cacheDir = cacheDir
	l.loaded = true

	l.logger.Info("workbook loaded",
		"path", path, "sheet", sheet, "rows", len(rows), "images", len(images))
	return nil
}

// pickSheet opens the workbook just long enough to choose the data sheet.
func pickSheet(path string) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpenWorkbook, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("%w: workbook has no sheets", ErrOpenWorkbook)
	}
	for _, s := range sheets {
		if s == DefaultSheetName {
			return s, nil
		}
	}
	return sheets[0], nil
}

// evalFormulas computes every formula cell in the workbook into a map
// keyed by normalized cell position (SHEET!COLROW, upper-cased).
// The whole pass is best-effort: failures are logged, never fatal.
func (l *Loader) evalFormulas(path string) map[string]any {
	values := make(map[string]any)

	f, err := excelize.OpenFile(path)
	if err != nil {
		l.logger.Warn("formula evaluation skipped", "path", path, "error", err)
		return values
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			l.logger.Warn("formula scan failed for sheet", "sheet", sheet, "error", err)
			continue
		}
		for r := range rows {
			for c := range rows[r] {
				cell, err := excelize.CoordinatesToCellName(c+1, r+1)
				if err != nil {
					continue
				}
				formula, err := f.GetCellFormula(sheet, cell)
				if err != nil || formula == "" {
					continue
				}
				computed, err := f.CalcCellValue(sheet, cell)
				if err != nil {
					l.logger.Debug("formula not computable",
						"sheet", sheet, "cell", cell, "formula", formula, "error", err)
					continue
				}
				values[cellKey(sheet, cell)] = normalizeValue(computed)
			}
		}
	}
	return values
}

// readSheet reads headers and data rows, resolving formula cells through
// the evaluation map and substituting image paths at anchored positions.
func (l *Loader) readSheet(path, sheet string, formulaValues map[string]any, images map[string]ImageAsset) ([]string, []Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrOpenWorkbook, err)
	}
	defer f.Close()

	raw, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrReadSheet, sheet, err)
	}
	if len(raw) == 0 {
		return []string{}, []Row{}, nil
	}

	// Row 1 is always the header row; empty header cells stay "".
	headers := make([]string, len(raw[0]))
	copy(headers, raw[0])

	// An image can be anchored past the last cell-bearing row or column;
	// the grid is widened so those anchors still surface as row data.
	maxRow := len(raw)
	imageCols := make(map[int]int, len(images))
	for _, img := range images {
		if img.Row > maxRow {
			maxRow = img.Row
		}
		if img.Col > imageCols[img.Row] {
			imageCols[img.Row] = img.Col
		}
	}

	rows := make([]Row, 0, maxRow-1)
	for r := 1; r < maxRow; r++ {
		var rawRow []string
		if r < len(raw) {
			rawRow = raw[r]
		}
		width := len(headers)
		if len(rawRow) > width {
			width = len(rawRow)
		}
		if imageCols[r+1] > width {
			width = imageCols[r+1]
		}

		byIndex := make([]any, width)
		byName := make(map[string]any, len(headers))
		for c := 0; c < width; c++ {
			value := l.cellValue(f, sheet, r+1, c+1, rawRow, formulaValues, images)
			byIndex[c] = value
			if c < len(headers) {
				byName[headers[c]] = value
			}
		}
		rows = append(rows, Row{ByName: byName, ByIndex: byIndex})
	}
	return headers, rows, nil
}

// cellValue resolves one data cell. Image anchors win over any literal
// or formula value at the same position; formula cells resolve through
// the evaluation map with a lenient raw-text fallback.
func (l *Loader) cellValue(f *excelize.File, sheet string, row, col int, rawRow []string, formulaValues map[string]any, images map[string]ImageAsset) any {
	if img, ok := images[imageKey(row, col)]; ok {
		return img.Path
	}

	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return nil
	}

	formula, err := f.GetCellFormula(sheet, cell)
	if err == nil && formula != "" {
		if v, ok := formulaValues[cellKey(sheet, cell)]; ok {
			return v
		}
		l.logger.Debug("formula value missing from evaluation map, keeping raw text",
			"sheet", sheet, "cell", cell, "formula", formula)
		return formula
	}

	if col-1 >= len(rawRow) || rawRow[col-1] == "" {
		return nil
	}
	return normalizeValue(rawRow[col-1])
}

// purgeCache removes the previous session's image cache directory.
func (l *Loader) purgeCache() {
	if l.cacheDir == "" {
		return
	}
	if err := os.RemoveAll(l.cacheDir); err != nil {
		l.logger.Warn("failed to purge image cache", "dir", l.cacheDir, "error", err)
	}
	l.cacheDir = ""
}

// Close tears down the session, purging the image cache.
func (l *Loader) Close() error {
	l.purgeCache()
	l.loaded = false
	l.headers = nil
	l.rows = nil
	l.images = nil
	return nil
}

// IsLoaded reports whether a workbook has been loaded.
func (l *Loader) IsLoaded() bool {
	return l.loaded
}

// FilePath returns the path of the loaded workbook, or "" before Load.
func (l *Loader) FilePath() string {
	return l.path
}

// SheetName returns the sheet the data was read from, or "" before Load.
func (l *Loader) SheetName() string {
	return l.sheet
}

// RowCount returns the number of data rows.
func (l *Loader) RowCount() (int, error) {
	if !l.loaded {
		return 0, ErrNotLoaded
	}
	return len(l.rows), nil
}

// Headers returns a copy of the header row.
func (l *Loader) Headers() ([]string, error) {
	if !l.loaded {
		return nil, ErrNotLoaded
	}
	headers := make([]string, len(l.headers))
	copy(headers, l.headers)
	return headers, nil
}

// HeaderWithIndex pairs a column index with its header name, for callers
// that must address duplicate-named columns unambiguously.
type HeaderWithIndex struct {
	Index int
	Name  string
}

// HeadersWithIndex returns every header together with its column index.
func (l *Loader) HeadersWithIndex() ([]HeaderWithIndex, error) {
	if !l.loaded {
		return nil, ErrNotLoaded
	}
	out := make([]HeaderWithIndex, len(l.headers))
	for i, h := range l.headers {
		out[i] = HeaderWithIndex{Index: i, Name: h}
	}
	return out, nil
}

// Record returns row i with both of its views.
func (l *Loader) Record(i int) (Row, error) {
	if !l.loaded {
		return Row{}, ErrNotLoaded
	}
	if i < 0 || i >= len(l.rows) {
		return Row{}, fmt.Errorf("%w: %d (have %d rows)", ErrRowIndex, i, len(l.rows))
	}
	return l.rows[i].clone(), nil
}

// Records returns all rows with both views.
func (l *Loader) Records() ([]Row, error) {
	if !l.loaded {
		return nil, ErrNotLoaded
	}
	out := make([]Row, len(l.rows))
	for i := range l.rows {
		out[i] = l.rows[i].clone()
	}
	return out, nil
}

// GetRow returns the name-keyed view of row i.
func (l *Loader) GetRow(i int) (map[string]any, error) {
	r, err := l.Record(i)
	if err != nil {
		return nil, err
	}
	return r.ByName, nil
}

// GetRowByIndex returns the index-keyed view of row i, which survives
// duplicate header names.
func (l *Loader) GetRowByIndex(i int) ([]any, error) {
	r, err := l.Record(i)
	if err != nil {
		return nil, err
	}
	return r.ByIndex, nil
}

// GetAllRows returns the name-keyed view of every row.
func (l *Loader) GetAllRows() ([]map[string]any, error) {
	records, err := l.Records()
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(records))
	for i, r := range records {
		out[i] = r.ByName
	}
	return out, nil
}

// GetAllRowsByIndex returns the index-keyed view of every row.
func (l *Loader) GetAllRowsByIndex() ([][]any, error) {
	records, err := l.Records()
	if err != nil {
		return nil, err
	}
	out := make([][]any, len(records))
	for i, r := range records {
		out[i] = r.ByIndex
	}
	return out, nil
}

// Images returns the extracted image assets keyed by "{row}_{col}"
// (1-based anchor position).
func (l *Loader) Images() (map[string]ImageAsset, error) {
	if !l.loaded {
		return nil, ErrNotLoaded
	}
	out := make(map[string]ImageAsset, len(l.images))
	for k, v := range l.images {
		out[k] = v
	}
	return out, nil
}

// cellKey builds the normalized formula-map key for a cell position.
// Sheet names arriving with an enclosing [bookname] decoration are
// stripped to the bare sheet name before upper-casing.
func cellKey(sheet, cell string) string {
	if i := strings.LastIndex(sheet, "]"); i != -1 && strings.HasPrefix(sheet, "[") {
		sheet = sheet[i+1:]
	}
	return strings.ToUpper(sheet) + "!" + strings.ToUpper(cell)
}

// imageKey builds the image-map key for a 1-based anchor position.
func imageKey(row, col int) string {
	return fmt.Sprintf("%d_%d", row, col)
}
