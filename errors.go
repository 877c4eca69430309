package xlreport

import "errors"

// Sentinel errors for export and template operations.
var (
	// Template loading errors.
	ErrManifestNotFound = errors.New("template manifest not found")
	ErrManifestParse    = errors.New("template manifest is not valid JSON")
	ErrMarkupNotFound   = errors.New("template has no markup file")
	ErrTemplateMarkup   = errors.New("template markup unreadable")

	// Export configuration validation errors.
	ErrInvalidFormat    = errors.New("invalid output format")
	ErrInvalidStructure = errors.New("invalid folder structure")
	ErrNoTemplates      = errors.New("no templates selected")
	ErrExportRunning    = errors.New("an export is already running")

	// Export runtime errors.
	ErrCreateWorkDir = errors.New("failed to create working directory")
	ErrArchive       = errors.New("failed to create archive")
)
