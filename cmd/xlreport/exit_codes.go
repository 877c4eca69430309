package main

import (
	"errors"
	"os"

	xlreport "github.com/haneul-lab/go-xlreport"
	"github.com/haneul-lab/go-xlreport/ingest"
	"github.com/haneul-lab/go-xlreport/internal/convert"
)

// Exit codes for the xlreport CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess = 0 // Successful export
	ExitGeneral = 1 // General/unexpected error
	ExitUsage   = 2 // Invalid flags, config, or validation
	ExitIO      = 3 // File not found, permission denied
	ExitBrowser = 4 // Browser/Chrome errors
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must wrap with
// fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	// Browser errors (exit 4)
	if errors.Is(err, convert.ErrBrowserConnect) ||
		errors.Is(err, convert.ErrPageCreate) ||
		errors.Is(err, convert.ErrPageLoad) ||
		errors.Is(err, convert.ErrPDFRender) {
		return ExitBrowser
	}

	// I/O errors (exit 3)
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, ingest.ErrFileNotFound) ||
		errors.Is(err, ingest.ErrOpenWorkbook) ||
		errors.Is(err, ErrWriteOutput) {
		return ExitIO
	}

	// Usage errors (exit 2)
	if errors.Is(err, ErrConfigNotFound) ||
		errors.Is(err, ErrConfigParse) ||
		errors.Is(err, ErrRowSpec) ||
		errors.Is(err, ErrNoWorkbook) ||
		errors.Is(err, ErrNoTemplateDir) ||
		errors.Is(err, ErrUnknownTemplate) ||
		errors.Is(err, ErrInvalidTimeout) ||
		errors.Is(err, xlreport.ErrNoTemplates) ||
		errors.Is(err, xlreport.ErrInvalidFormat) ||
		errors.Is(err, xlreport.ErrInvalidStructure) {
		return ExitUsage
	}

	return ExitGeneral
}
