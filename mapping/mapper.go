// Package mapping binds template fields to spreadsheet columns.
//
// A Mapper auto-resolves each field's declared column name against the
// spreadsheet headers and lets callers override individual bindings
// manually. Manual overrides always win until cleared. Mappings can be
// persisted to a versioned sidecar file next to the spreadsheet.
package mapping

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/haneul-lab/go-xlreport/internal/render"
)

// Field types.
const (
	TypeText  = "text"
	TypeImage = "image"
)

// Field is one named slot in a template that a spreadsheet column's
// value can be bound to. Fields come from the template manifest and are
// immutable once loaded.
type Field struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Column string `json:"excel_column"`
	Index  *int   `json:"excel_index,omitempty"`
	Type   string `json:"type,omitempty"`
}

// Status classifies how a field is currently resolved.
type Status string

// Field resolution states.
const (
	StatusAuto     Status = "auto"
	StatusManual   Status = "manual"
	StatusUnmapped Status = "unmapped"
)

// Mapper resolves template fields against spreadsheet headers.
// Not safe for concurrent use.
type Mapper struct {
	logger  *slog.Logger
	fields  []Field
	headers []string
	auto    map[string]string // fieldID -> header, absent when unresolved
	manual  map[string]string
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithLogger sets the structured logger used for mapping diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mapper) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates a Mapper and immediately computes the auto-mapping:
// case-insensitive exact match of each field's declared column against
// the headers, first matching header winning on duplicates.
func New(fields []Field, headers []string, opts ...Option) *Mapper {
	m := &Mapper{
		logger:  slog.Default(),
		fields:  append([]Field(nil), fields...),
		headers: append([]string(nil), headers...),
		manual:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.autoMap()
	return m
}

// autoMap recomputes the automatic bindings from scratch.
func (m *Mapper) autoMap() {
	byLower := make(map[string]string, len(m.headers))
	for _, h := range m.headers {
		lower := strings.ToLower(h)
		if _, seen := byLower[lower]; !seen {
			byLower[lower] = h
		}
	}

	m.auto = make(map[string]string, len(m.fields))
	for _, f := range m.fields {
		if h, ok := byLower[strings.ToLower(f.Column)]; ok {
			m.auto[f.ID] = h
		}
	}
}

// Fields returns the field definitions the mapper was built from.
func (m *Mapper) Fields() []Field {
	return append([]Field(nil), m.fields...)
}

// Mapping returns the effective binding for every field: the manual
// override when present, otherwise the auto-resolved column, otherwise
// the empty string.
func (m *Mapper) Mapping() map[string]string {
	out := make(map[string]string, len(m.fields))
	for _, f := range m.fields {
		if col, ok := m.manual[f.ID]; ok {
			out[f.ID] = col
			continue
		}
		out[f.ID] = m.auto[f.ID]
	}
	return out
}

// Set installs a manual override for a field. It takes precedence over
// the auto-mapping until Clear or ResetToAuto. Setting the empty string
// clears any existing override instead of installing an empty binding.
func (m *Mapper) Set(fieldID, column string) {
	if column == "" {
		delete(m.manual, fieldID)
		return
	}
	m.manual[fieldID] = column
}

// Clear removes a field's manual override, restoring its auto-mapping.
func (m *Mapper) Clear(fieldID string) {
	delete(m.manual, fieldID)
}

// ResetToAuto drops every manual override at once.
func (m *Mapper) ResetToAuto() {
	m.manual = make(map[string]string)
}

// Status reports how fieldID is currently resolved.
func (m *Mapper) Status(fieldID string) Status {
	if _, ok := m.manual[fieldID]; ok {
		return StatusManual
	}
	if _, ok := m.auto[fieldID]; ok {
		return StatusAuto
	}
	return StatusUnmapped
}

// Unmapped lists the IDs of fields with no resolution either way.
func (m *Mapper) Unmapped() []string {
	var out []string
	for _, f := range m.fields {
		if m.Mapping()[f.ID] == "" {
			out = append(out, f.ID)
		}
	}
	return out
}

// IsFullyMapped reports whether every field is resolved.
func (m *Mapper) IsFullyMapped() bool {
	return len(m.Unmapped()) == 0
}

// Apply resolves every field against one row and returns fieldID->value.
//
// Resolution order per field: a declared source index wins whenever an
// index-based row is supplied and the index is in range; otherwise the
// resolved column is looked up in the name-based row; otherwise nil.
// Image-typed values are converted to inline embeddable <img> references
// so rendered markup carries no file dependencies.
func (m *Mapper) Apply(rowByName map[string]any, rowByIndex []any) map[string]any {
	mapping := m.Mapping()
	out := make(map[string]any, len(m.fields))

	for _, f := range m.fields {
		var value any
		switch {
		case f.Index != nil && rowByIndex != nil && *f.Index >= 0 && *f.Index < len(rowByIndex):
			value = rowByIndex[*f.Index]
		default:
			if col := mapping[f.ID]; col != "" {
				if v, ok := rowByName[col]; ok {
					value = v
				}
			}
		}

		if f.Type == TypeImage && value != nil {
			value = render.ImageTag(fmt.Sprint(value))
		}
		out[f.ID] = value
	}
	return out
}

// ApplyBatch applies the mapping to multiple rows. rowsByIndex may be
// nil when index-based data is unavailable.
func (m *Mapper) ApplyBatch(rowsByName []map[string]any, rowsByIndex [][]any) []map[string]any {
	out := make([]map[string]any, len(rowsByName))
	for i, row := range rowsByName {
		var byIndex []any
		if i < len(rowsByIndex) {
			byIndex = rowsByIndex[i]
		}
		out[i] = m.Apply(row, byIndex)
	}
	return out
}
