// Package xlreport batch-renders analyzer spreadsheet rows through
// visual report templates into PDF or PNG documents.
//
// # Pipeline
//
// The pipeline has four stages:
//
//  1. Ingestion: the ingest package loads a workbook, evaluates formula
//     cells, extracts embedded images into a session cache, and serves
//     each row both name-keyed and index-keyed.
//  2. Mapping: the mapping package binds template fields to spreadsheet
//     columns, automatically by case-insensitive name match with manual
//     overrides on top, persisted to a sidecar file.
//  3. Rendering: mapped values are substituted into the template's
//     {{ fieldId }} placeholders; image fields are inlined as base64
//     data URLs so the markup is self-contained.
//  4. Conversion: headless Chrome prints the markup to PDF; PNG output
//     rasterizes page 1 via MuPDF; merged output concatenates and
//     optimizes PDFs via pdfcpu.
//
// # Quick Start
//
//	loader := ingest.NewLoader()
//	if err := loader.Load("capture.xlsx"); err != nil {
//	    log.Fatal(err)
//	}
//	defer loader.Close()
//
//	templates, err := xlreport.LoadTemplateDir("templates")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	exporter := xlreport.NewExporter(templates, workDir)
//	defer exporter.Close()
//	defer exporter.CleanupWorkDir()
//
//	rows, _ := loader.Records()
//	headers, _ := loader.Headers()
//	result, err := exporter.Export(ctx, xlreport.ExportJob{
//	    Templates:    []string{"Posture Report"},
//	    Rows:         rows,
//	    Headers:      headers,
//	    Format:       xlreport.FormatPDF,
//	    FilenameBase: "capture",
//	})
//
// The result's OutputPath is the generated document, or a ZIP archive
// when the batch produced more than one file. An empty OutputPath with
// Cancelled false means the batch completed but generated nothing.
//
// # Cancellation and Progress
//
// Export runs synchronously; drive it from a goroutine and use
// Exporter.Cancel (or context cancellation) to stop it between units.
// The unit in flight always finishes. A ProgressFunc on the job
// observes every processed unit.
//
// # Browser Requirements
//
// PDF generation requires Chrome/Chromium. The go-rod library downloads
// a managed Chromium on first run. Set ROD_BROWSER_BIN to use a
// pre-installed binary; NoSandbox is enabled automatically in CI and
// containerized environments.
package xlreport
