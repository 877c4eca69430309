package mapping

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// SidecarVersion is the only mapping-file format this build reads.
const SidecarVersion = "1.0"

// Sentinel errors for sidecar persistence.
var (
	ErrSidecarRead  = errors.New("failed to read mapping file")
	ErrSidecarParse = errors.New("mapping file is not valid JSON")
	ErrVersion      = errors.New("unsupported mapping file version")
)

// sidecarFile is the on-disk mapping format, one file per
// spreadsheet+template pair. Null mapping entries mean unresolved.
type sidecarFile struct {
	Version      string             `json:"version"`
	TemplateName string             `json:"template_name"`
	ExcelFile    string             `json:"excel_file"`
	Mappings     map[string]*string `json:"mappings"`
	CreatedAt    string             `json:"created_at"`
	UpdatedAt    string             `json:"updated_at"`
}

// SidecarPath builds the conventional sidecar location for a
// spreadsheet+template pair: {xlsxPath}.{templateNameLowercased}.mapping.
func SidecarPath(xlsxPath, templateName string) string {
	return xlsxPath + "." + strings.ToLower(templateName) + ".mapping"
}

// Save persists the effective mapping to path. Unresolved fields are
// written as null so a later load leaves them untouched. An existing
// file's creation timestamp is preserved.
func (m *Mapper) Save(path, templateName, excelFile string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	createdAt := now
	if prev, err := readSidecar(path); err == nil && prev.CreatedAt != "" {
		createdAt = prev.CreatedAt
	}

	mappings := make(map[string]*string, len(m.fields))
	for id, col := range m.Mapping() {
		if col == "" {
			mappings[id] = nil
			continue
		}
		c := col
		mappings[id] = &c
	}

	doc := sidecarFile{
		Version:      SidecarVersion,
		TemplateName: templateName,
		ExcelFile:    excelFile,
		Mappings:     mappings,
		CreatedAt:    createdAt,
		UpdatedAt:    now,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding mapping file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing mapping file: %w", err)
	}
	return nil
}

// Load reads a sidecar file and installs every non-null entry as a
// manual override. Overrides for fields the file does not mention are
// left in place. The file's version must match SidecarVersion exactly.
func (m *Mapper) Load(path string) error {
	doc, err := readSidecar(path)
	if err != nil {
		return err
	}

	for fieldID, col := range doc.Mappings {
		if col == nil {
			continue
		}
		m.Set(fieldID, *col)
	}

	m.logger.Debug("mapping sidecar loaded", "path", path, "entries", len(doc.Mappings))
	return nil
}

// readSidecar parses and version-checks a sidecar file.
func readSidecar(path string) (*sidecarFile, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- sidecar path is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSidecarRead, err)
	}

	var doc sidecarFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSidecarParse, err)
	}
	if doc.Version == "" {
		return nil, fmt.Errorf("%w: version missing", ErrVersion)
	}
	if doc.Version != SidecarVersion {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrVersion, doc.Version, SidecarVersion)
	}
	return &doc, nil
}
