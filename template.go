package xlreport

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/haneul-lab/go-xlreport/mapping"
)

// ManifestName is the manifest file every template directory carries.
const ManifestName = "template.json"

// Template is one visual report layout: HTML markup with {{ fieldId }}
// placeholders plus the field definitions that bind those placeholders
// to spreadsheet columns. Templates are consumed as-is; authoring and
// storage management belong to external tooling.
type Template struct {
	Name       string
	Dir        string
	MarkupPath string
	Markup     string
	Fields     []mapping.Field
}

// manifest is the on-disk template descriptor.
type manifest struct {
	Name   string          `json:"name"`
	Fields []mapping.Field `json:"fields"`
}

// LoadTemplate reads one template directory: its template.json manifest
// and the first .html/.htm markup file found alongside it.
func LoadTemplate(dir string) (*Template, error) {
	manifestPath := filepath.Join(dir, ManifestName)
	data, err := os.ReadFile(manifestPath) // #nosec G304 -- template dirs are caller-controlled
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, manifestPath)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrManifestParse, manifestPath, err)
	}
	if m.Name == "" {
		m.Name = filepath.Base(dir)
	}

	markupPath, err := findMarkup(dir)
	if err != nil {
		return nil, err
	}
	markup, err := os.ReadFile(markupPath) // #nosec G304 -- discovered inside the template dir
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTemplateMarkup, markupPath, err)
	}

	return &Template{
		Name:       m.Name,
		Dir:        dir,
		MarkupPath: markupPath,
		Markup:     string(markup),
		Fields:     m.Fields,
	}, nil
}

// findMarkup locates the template's markup file.
func findMarkup(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrMarkupNotFound, dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".html", ".htm":
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrMarkupNotFound, dir)
}

// LoadTemplateDir scans the immediate subdirectories of root for
// templates. Hidden and underscore-prefixed directories are skipped, as
// are directories without a manifest. Directories whose manifest exists
// but fails to load are reported in the joined error while the
// remaining templates still load.
func LoadTemplateDir(root string) ([]*Template, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading template root: %w", err)
	}

	var templates []*Template
	var errs []error
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}
		dir := filepath.Join(root, name)
		if _, err := os.Stat(filepath.Join(dir, ManifestName)); err != nil {
			continue
		}
		t, err := LoadTemplate(dir)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		templates = append(templates, t)
	}
	return templates, errors.Join(errs...)
}
