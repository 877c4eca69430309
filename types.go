package xlreport

import (
	"fmt"

	"github.com/haneul-lab/go-xlreport/ingest"
)

// Output format constants.
const (
	FormatPDF = "pdf"
	FormatPNG = "png"
)

// Folder structure constants for multi-file output.
const (
	StructureFlat       = "flat"
	StructureByTemplate = "by_template"
	StructureByRow      = "by_row"
)

// DefaultFilenameBase is used when a job does not name its output.
const DefaultFilenameBase = "export"

// State is the orchestrator's lifecycle phase.
type State int32

// Exporter states. Idle is entered on construction and reset; Running
// during an export; the remaining states are terminal per job.
const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ProgressFunc observes batch progress. It is invoked after every
// processed unit with the number of units completed so far, the total
// unit count, the unit's output filename and the row's name-keyed data.
// It is called from the exporting goroutine; implementations crossing
// into another context must hand the payload off themselves.
type ProgressFunc func(current, total int, filename string, row map[string]any)

// ExportJob describes one batch: the selected templates and rows,
// crossed into (template, row) units and rendered to documents.
type ExportJob struct {
	// Templates names the templates to render, in order.
	Templates []string

	// Rows are the selected data rows, each carrying both views.
	Rows []ingest.Row

	// Headers are the spreadsheet headers the field mapping resolves
	// against.
	Headers []string

	// Format selects "pdf" or "png" output.
	Format string

	// SingleFile merges all generated PDFs into one document.
	// Only meaningful for PDF output with more than one file.
	SingleFile bool

	// GroupByTemplate makes enumeration template-major (all rows of
	// template 1, then template 2, ...); otherwise row-major. This
	// governs generated filename order and is a visible contract.
	GroupByTemplate bool

	// Structure arranges multi-file output: flat, by_template or by_row.
	Structure string

	// FilenameBase prefixes every generated filename.
	FilenameBase string

	// Progress, when non-nil, observes every processed unit.
	Progress ProgressFunc
}

// Validate checks the job's enumerable settings, applying defaults for
// the zero values.
func (j *ExportJob) Validate() error {
	if len(j.Templates) == 0 {
		return ErrNoTemplates
	}
	if j.Format == "" {
		j.Format = FormatPDF
	}
	if j.Format != FormatPDF && j.Format != FormatPNG {
		return fmt.Errorf("%w: %q", ErrInvalidFormat, j.Format)
	}
	if j.Structure == "" {
		j.Structure = StructureFlat
	}
	switch j.Structure {
	case StructureFlat, StructureByTemplate, StructureByRow:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStructure, j.Structure)
	}
	if j.FilenameBase == "" {
		j.FilenameBase = DefaultFilenameBase
	}
	return nil
}

// ExportResult reports a finished batch. Exactly one of three outcomes
// holds: the job was cancelled (Cancelled true, empty OutputPath), it
// completed without producing files (empty OutputPath), or it completed
// with output (OutputPath is the single file or the archive).
type ExportResult struct {
	// OutputPath is the final deliverable: the lone generated file when
	// one unit produced output, or the archive bundling all of them.
	OutputPath string

	// Files lists the generated documents after post-processing.
	Files []string

	// Cancelled reports that the batch stopped at a cancellation check.
	Cancelled bool

	// UnitsCompleted counts processed units, including failed ones.
	UnitsCompleted int

	// UnitsTotal is len(Templates) x len(Rows).
	UnitsTotal int
}
