package xlreport

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/haneul-lab/go-xlreport/ingest"
	"github.com/haneul-lab/go-xlreport/mapping"
)

// fakeEngine records conversion calls and writes placeholder files so
// post-processing has something to work with. failSubstr, when set,
// fails any conversion whose output path contains it.
type fakeEngine struct {
	mu         sync.Mutex
	outputs    []string
	markups    []string
	failSubstr string
	closed     bool
}

func (f *fakeEngine) ToPDF(_ context.Context, htmlContent, outputPath, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSubstr != "" && strings.Contains(outputPath, f.failSubstr) {
		return errors.New("conversion refused")
	}
	if err := os.WriteFile(outputPath, []byte("%PDF-1.4 fake"), 0o644); err != nil {
		return err
	}
	f.outputs = append(f.outputs, outputPath)
	f.markups = append(f.markups, htmlContent)
	return nil
}

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// basenames strips directories from a path list.
func basenames(paths []string) []string {
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	return names
}

// postureTemplate is a minimal template bound to a Score column.
func postureTemplate(name string) *Template {
	return &Template{
		Name:   name,
		Markup: "<html><body>{{ score }}</body></html>",
		Fields: []mapping.Field{{ID: "score", Label: "Score", Column: "Score"}},
	}
}

// captureRows builds n rows with the classic capture headers.
func captureRows(n int) ([]ingest.Row, []string) {
	headers := []string{"Frame", "Score", "Upper Arm"}
	rows := make([]ingest.Row, n)
	for i := range rows {
		rows[i] = ingest.Row{
			ByName:  map[string]any{"Frame": int64(i + 1), "Score": int64(80 + i), "Upper Arm": int64(2)},
			ByIndex: []any{int64(i + 1), int64(80 + i), int64(2)},
		}
	}
	return rows, headers
}

// newTestExporter wires an Exporter to the fake engine and passthrough
// raster/merge fakes.
func newTestExporter(t *testing.T, templates []*Template) (*Exporter, *fakeEngine) {
	t.Helper()

	engine := &fakeEngine{}
	e := NewExporter(templates, t.TempDir())
	e.engine = engine
	e.rasterize = func(pdfPath, outputPath string, _ int) error {
		return os.WriteFile(outputPath, []byte("fake png"), 0o644)
	}
	e.merge = func(pdfPaths []string, outputPath string) error {
		return os.WriteFile(outputPath, []byte("%PDF-1.4 merged"), 0o644)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e, engine
}

func TestExport_SingleTemplateBatch(t *testing.T) {
	t.Parallel()

	rows, headers := captureRows(3)
	e, engine := newTestExporter(t, []*Template{postureTemplate("Report")})

	result, err := e.Export(context.Background(), ExportJob{
		Templates:       []string{"Report"},
		Rows:            rows,
		Headers:         headers,
		Format:          FormatPDF,
		GroupByTemplate: true,
		Structure:       StructureFlat,
		FilenameBase:    "capture",
	})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	want := []string{"capture_Report_001.pdf", "capture_Report_002.pdf", "capture_Report_003.pdf"}
	got := basenames(engine.outputs)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("generated %v, want %v", got, want)
	}
	if result.UnitsCompleted != 3 || result.UnitsTotal != 3 {
		t.Errorf("units = %d/%d, want 3/3", result.UnitsCompleted, result.UnitsTotal)
	}
	if len(result.Files) != 3 {
		t.Fatalf("Files = %v, want three separate documents", result.Files)
	}
	if filepath.Ext(result.OutputPath) != ".zip" {
		t.Errorf("OutputPath = %q, want an archive for multi-file output", result.OutputPath)
	}
	if e.State() != StateCompleted {
		t.Errorf("State = %v, want completed", e.State())
	}

	// The archive must bundle exactly the generated documents.
	zr, err := zip.OpenReader(result.OutputPath)
	if err != nil {
		t.Fatalf("opening archive: %v", err)
	}
	defer zr.Close()
	var entries []string
	for _, f := range zr.File {
		entries = append(entries, f.Name)
	}
	sort.Strings(entries)
	if fmt.Sprint(entries) != fmt.Sprint(want) {
		t.Errorf("archive entries = %v, want %v", entries, want)
	}

	// Rendered markup carries the row's mapped value, not the token.
	for i, markup := range engine.markups {
		if strings.Contains(markup, "{{") {
			t.Errorf("markup %d still has unsubstituted tokens: %q", i, markup)
		}
		if !strings.Contains(markup, fmt.Sprint(80+i)) {
			t.Errorf("markup %d = %q, want score %d", i, markup, 80+i)
		}
	}
}

func TestExport_EnumerationOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		groupByTemplate bool
		want            []string
	}{
		{
			name:            "template major",
			groupByTemplate: true,
			want: []string{
				"export_A_001.pdf", "export_A_002.pdf",
				"export_B_001.pdf", "export_B_002.pdf",
			},
		},
		{
			name:            "row major",
			groupByTemplate: false,
			want: []string{
				"export_A_001.pdf", "export_B_001.pdf",
				"export_A_002.pdf", "export_B_002.pdf",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rows, headers := captureRows(2)
			e, engine := newTestExporter(t, []*Template{postureTemplate("A"), postureTemplate("B")})

			if _, err := e.Export(context.Background(), ExportJob{
				Templates:       []string{"A", "B"},
				Rows:            rows,
				Headers:         headers,
				GroupByTemplate: tt.groupByTemplate,
			}); err != nil {
				t.Fatalf("Export() error = %v", err)
			}
			got := basenames(engine.outputs)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("order = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExport_SingleOutputReturnedDirectly(t *testing.T) {
	t.Parallel()

	rows, headers := captureRows(1)
	e, _ := newTestExporter(t, []*Template{postureTemplate("Report")})

	result, err := e.Export(context.Background(), ExportJob{
		Templates: []string{"Report"},
		Rows:      rows,
		Headers:   headers,
	})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if len(result.Files) != 1 {
		t.Fatalf("Files = %v, want one", result.Files)
	}
	if result.OutputPath != result.Files[0] {
		t.Errorf("OutputPath = %q, want the lone file %q unarchived", result.OutputPath, result.Files[0])
	}
	if filepath.Ext(result.OutputPath) != ".pdf" {
		t.Errorf("OutputPath = %q, want a .pdf", result.OutputPath)
	}
}

func TestExport_SingleFileMerge(t *testing.T) {
	t.Parallel()

	rows, headers := captureRows(3)
	e, _ := newTestExporter(t, []*Template{postureTemplate("Report")})

	var mergedInputs []string
	e.merge = func(pdfPaths []string, outputPath string) error {
		mergedInputs = pdfPaths
		return os.WriteFile(outputPath, []byte("%PDF-1.4 merged"), 0o644)
	}

	result, err := e.Export(context.Background(), ExportJob{
		Templates:    []string{"Report"},
		Rows:         rows,
		Headers:      headers,
		SingleFile:   true,
		FilenameBase: "session",
	})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if len(mergedInputs) != 3 {
		t.Errorf("merge received %d inputs, want 3", len(mergedInputs))
	}
	if len(result.Files) != 1 || filepath.Base(result.Files[0]) != "session.pdf" {
		t.Errorf("Files = %v, want the merged session.pdf", result.Files)
	}
	if result.OutputPath != result.Files[0] {
		t.Errorf("OutputPath = %q, want merged file returned directly", result.OutputPath)
	}
}

func TestExport_MergeFailureKeepsIndividualFiles(t *testing.T) {
	t.Parallel()

	rows, headers := captureRows(2)
	e, _ := newTestExporter(t, []*Template{postureTemplate("Report")})
	e.merge = func([]string, string) error { return errors.New("merge exploded") }

	result, err := e.Export(context.Background(), ExportJob{
		Templates:  []string{"Report"},
		Rows:       rows,
		Headers:    headers,
		SingleFile: true,
	})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if len(result.Files) != 2 {
		t.Errorf("Files = %v, want both individual documents kept", result.Files)
	}
	if filepath.Ext(result.OutputPath) != ".zip" {
		t.Errorf("OutputPath = %q, want the fallback archive", result.OutputPath)
	}
}

func TestExport_PNGFormat(t *testing.T) {
	t.Parallel()

	rows, headers := captureRows(2)
	e, _ := newTestExporter(t, []*Template{postureTemplate("Report")})

	var rasterDPIs []int
	e.rasterize = func(pdfPath, outputPath string, dpi int) error {
		rasterDPIs = append(rasterDPIs, dpi)
		return os.WriteFile(outputPath, []byte("fake png"), 0o644)
	}

	result, err := e.Export(context.Background(), ExportJob{
		Templates: []string{"Report"},
		Rows:      rows,
		Headers:   headers,
		Format:    FormatPNG,
	})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if len(result.Files) != 2 {
		t.Fatalf("Files = %v, want two", result.Files)
	}
	for _, f := range result.Files {
		if filepath.Ext(f) != ".png" {
			t.Errorf("file %q, want .png output", f)
		}
	}
	for _, dpi := range rasterDPIs {
		if dpi != 300 {
			t.Errorf("raster dpi = %d, want default 300", dpi)
		}
	}
}

func TestExport_Cancellation(t *testing.T) {
	t.Parallel()

	rows, headers := captureRows(5)
	e, engine := newTestExporter(t, []*Template{postureTemplate("Report")})

	var progressCalls int
	result, err := e.Export(context.Background(), ExportJob{
		Templates: []string{"Report"},
		Rows:      rows,
		Headers:   headers,
		Progress: func(current, total int, filename string, _ map[string]any) {
			progressCalls++
			if current == 2 {
				e.Cancel()
			}
		},
	})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !result.Cancelled {
		t.Error("result.Cancelled = false, want true")
	}
	if e.State() != StateCancelled {
		t.Errorf("State = %v, want cancelled", e.State())
	}
	if result.OutputPath != "" {
		t.Errorf("OutputPath = %q, want empty on cancellation", result.OutputPath)
	}
	// The unit in flight finishes; nothing past it ever starts.
	if result.UnitsCompleted != 2 || progressCalls != 2 {
		t.Errorf("completed %d units with %d progress calls, want 2 and 2",
			result.UnitsCompleted, progressCalls)
	}
	for _, out := range engine.outputs {
		if strings.Contains(out, "_003") || strings.Contains(out, "_004") || strings.Contains(out, "_005") {
			t.Errorf("unit %q started after cancellation", out)
		}
	}

	// A cancelled exporter accepts a fresh job.
	result, err = e.Export(context.Background(), ExportJob{
		Templates: []string{"Report"},
		Rows:      rows[:1],
		Headers:   headers,
	})
	if err != nil {
		t.Fatalf("Export() after cancellation error = %v", err)
	}
	if result.Cancelled || result.OutputPath == "" {
		t.Errorf("fresh job after cancellation: %+v", result)
	}
}

func TestExport_ContextCancellation(t *testing.T) {
	t.Parallel()

	rows, headers := captureRows(3)
	e, _ := newTestExporter(t, []*Template{postureTemplate("Report")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := e.Export(ctx, ExportJob{
		Templates: []string{"Report"},
		Rows:      rows,
		Headers:   headers,
	})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if !result.Cancelled || result.UnitsCompleted != 0 {
		t.Errorf("result = %+v, want cancellation before the first unit", result)
	}
}

func TestExport_ProgressPayload(t *testing.T) {
	t.Parallel()

	rows, headers := captureRows(2)
	e, _ := newTestExporter(t, []*Template{postureTemplate("Report")})

	type call struct {
		current, total int
		filename       string
		score          any
	}
	var calls []call
	if _, err := e.Export(context.Background(), ExportJob{
		Templates:    []string{"Report"},
		Rows:         rows,
		Headers:      headers,
		FilenameBase: "capture",
		Progress: func(current, total int, filename string, row map[string]any) {
			calls = append(calls, call{current, total, filename, row["Score"]})
		},
	}); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	want := []call{
		{1, 2, "capture_Report_001.pdf", int64(80)},
		{2, 2, "capture_Report_002.pdf", int64(81)},
	}
	if fmt.Sprint(calls) != fmt.Sprint(want) {
		t.Errorf("progress calls = %v, want %v", calls, want)
	}
}

func TestExport_UnknownTemplateSkipped(t *testing.T) {
	t.Parallel()

	rows, headers := captureRows(2)
	e, engine := newTestExporter(t, []*Template{postureTemplate("Report")})

	var progressCalls int
	result, err := e.Export(context.Background(), ExportJob{
		Templates: []string{"Report", "Ghost"},
		Rows:      rows,
		Headers:   headers,
		Progress: func(int, int, string, map[string]any) {
			progressCalls++
		},
	})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if result.UnitsTotal != 4 {
		t.Errorf("UnitsTotal = %d, want the full matrix of 4", result.UnitsTotal)
	}
	// Skipped units advance neither the counter nor progress.
	if result.UnitsCompleted != 2 || progressCalls != 2 {
		t.Errorf("completed %d units with %d progress calls, want 2 and 2",
			result.UnitsCompleted, progressCalls)
	}
	if len(engine.outputs) != 2 {
		t.Errorf("generated %v, want only the known template's units", basenames(engine.outputs))
	}
}

func TestExport_ConversionFailureIsolated(t *testing.T) {
	t.Parallel()

	rows, headers := captureRows(3)
	e, engine := newTestExporter(t, []*Template{postureTemplate("Report")})
	engine.failSubstr = "_002"

	result, err := e.Export(context.Background(), ExportJob{
		Templates: []string{"Report"},
		Rows:      rows,
		Headers:   headers,
	})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	// A failed unit still counts as processed.
	if result.UnitsCompleted != 3 {
		t.Errorf("UnitsCompleted = %d, want 3", result.UnitsCompleted)
	}
	got := basenames(result.Files)
	want := []string{"export_Report_001.pdf", "export_Report_003.pdf"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Files = %v, want %v", got, want)
	}
}

func TestExport_NothingGenerated(t *testing.T) {
	t.Parallel()

	rows, headers := captureRows(2)
	e, engine := newTestExporter(t, []*Template{postureTemplate("Report")})
	engine.failSubstr = "Report"

	result, err := e.Export(context.Background(), ExportJob{
		Templates: []string{"Report"},
		Rows:      rows,
		Headers:   headers,
	})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	// Distinct from cancellation: the batch ran to completion.
	if result.Cancelled {
		t.Error("Cancelled = true, want false")
	}
	if result.OutputPath != "" || len(result.Files) != 0 {
		t.Errorf("result = %+v, want empty output", result)
	}
	if e.State() != StateCompleted {
		t.Errorf("State = %v, want completed", e.State())
	}
}

func TestExport_FolderStructures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		structure string
		wantDirs  []string
	}{
		{"by template", StructureByTemplate, []string{"A", "B"}},
		{"by row", StructureByRow, []string{"row_001", "row_002"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rows, headers := captureRows(2)
			e, engine := newTestExporter(t, []*Template{postureTemplate("A"), postureTemplate("B")})

			if _, err := e.Export(context.Background(), ExportJob{
				Templates: []string{"A", "B"},
				Rows:      rows,
				Headers:   headers,
				Structure: tt.structure,
			}); err != nil {
				t.Fatalf("Export() error = %v", err)
			}

			for _, wantDir := range tt.wantDirs {
				found := false
				for _, out := range engine.outputs {
					if filepath.Base(filepath.Dir(out)) == wantDir {
						found = true
					}
				}
				if !found {
					t.Errorf("no output under %q in %v", wantDir, engine.outputs)
				}
			}
		})
	}
}

func TestExport_RejectsConcurrentRun(t *testing.T) {
	t.Parallel()

	rows, headers := captureRows(1)
	e, _ := newTestExporter(t, []*Template{postureTemplate("Report")})

	job := ExportJob{Templates: []string{"Report"}, Rows: rows, Headers: headers}

	started := make(chan struct{})
	release := make(chan struct{})
	e.engine = &blockingEngine{started: started, release: release}

	errCh := make(chan error, 1)
	go func() {
		_, err := e.Export(context.Background(), job)
		errCh <- err
	}()
	<-started

	if _, err := e.Export(context.Background(), job); !errors.Is(err, ErrExportRunning) {
		t.Errorf("second Export() error = %v, want ErrExportRunning", err)
	}
	close(release)
	if err := <-errCh; err != nil {
		t.Errorf("first Export() error = %v", err)
	}
}

// blockingEngine parks the first conversion until released.
type blockingEngine struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingEngine) ToPDF(_ context.Context, _ string, outputPath, _ string) error {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return os.WriteFile(outputPath, []byte("%PDF-1.4 fake"), 0o644)
}

func (b *blockingEngine) Close() error { return nil }

func TestExport_ValidationErrors(t *testing.T) {
	t.Parallel()

	rows, headers := captureRows(1)

	tests := []struct {
		name    string
		job     ExportJob
		wantErr error
	}{
		{
			name:    "no templates",
			job:     ExportJob{Rows: rows, Headers: headers},
			wantErr: ErrNoTemplates,
		},
		{
			name:    "bad format",
			job:     ExportJob{Templates: []string{"Report"}, Rows: rows, Headers: headers, Format: "docx"},
			wantErr: ErrInvalidFormat,
		},
		{
			name:    "bad structure",
			job:     ExportJob{Templates: []string{"Report"}, Rows: rows, Headers: headers, Structure: "nested"},
			wantErr: ErrInvalidStructure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e, _ := newTestExporter(t, []*Template{postureTemplate("Report")})
			if _, err := e.Export(context.Background(), tt.job); !errors.Is(err, tt.wantErr) {
				t.Errorf("Export() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestExport_CleanupWorkDir(t *testing.T) {
	t.Parallel()

	rows, headers := captureRows(1)
	workDir := t.TempDir()
	engine := &fakeEngine{}
	e := NewExporter([]*Template{postureTemplate("Report")}, workDir)
	e.engine = engine
	t.Cleanup(func() { _ = e.Close() })

	result, err := e.Export(context.Background(), ExportJob{
		Templates: []string{"Report"},
		Rows:      rows,
		Headers:   headers,
	})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if _, err := os.Stat(result.OutputPath); err != nil {
		t.Fatalf("output missing before cleanup: %v", err)
	}

	if err := e.CleanupWorkDir(); err != nil {
		t.Fatalf("CleanupWorkDir() error = %v", err)
	}
	if _, err := os.Stat(result.OutputPath); !os.IsNotExist(err) {
		t.Errorf("output still present after cleanup: %v", err)
	}
}
