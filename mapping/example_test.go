package mapping_test

import (
	"fmt"

	"github.com/haneul-lab/go-xlreport/mapping"
)

// ExampleMapper_Apply demonstrates auto-mapping template fields against
// spreadsheet headers and resolving one row.
func ExampleMapper_Apply() {
	fields := []mapping.Field{
		{ID: "frame", Label: "Frame", Column: "Frame"},
		{ID: "score", Label: "Score", Column: "Score"},
	}
	m := mapping.New(fields, []string{"Frame", "Score"})

	values := m.Apply(
		map[string]any{"Frame": 12, "Score": 87},
		[]any{12, 87},
	)
	fmt.Println(values["frame"], values["score"])
	// Output: 12 87
}

// ExampleSidecarPath shows where a mapping sidecar lands next to its
// workbook.
func ExampleSidecarPath() {
	fmt.Println(mapping.SidecarPath("/data/session.xlsx", "Posture"))
	// Output: /data/session.xlsx.posture.mapping
}
