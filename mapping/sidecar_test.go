package mapping

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestSidecarPath(t *testing.T) {
	t.Parallel()

	got := SidecarPath("/data/capture.xlsx", "Posture Report")
	want := "/data/capture.xlsx.posture report.mapping"
	if got != want {
		t.Errorf("SidecarPath() = %q, want %q", got, want)
	}
}

func TestSidecar_RoundTrip(t *testing.T) {
	t.Parallel()

	fields := []Field{
		{ID: "score", Column: "Score"},
		{ID: "frame", Column: "Frame"},
		{ID: "ghost", Column: "Missing"},
	}
	headers := []string{"Frame", "Score"}

	m := New(fields, headers)
	m.Set("score", "Frame") // manual override survives the round trip

	path := filepath.Join(t.TempDir(), "capture.xlsx.report.mapping")
	if err := m.Save(path, "Report", "capture.xlsx"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	fresh := New(fields, headers)
	if err := fresh.Load(path); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	got, want := fresh.Mapping(), m.Mapping()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round-tripped mapping = %v, want %v", got, want)
	}
	if fresh.Status("score") != StatusManual {
		t.Errorf("loaded entry should be installed as manual override, got %v", fresh.Status("score"))
	}
}

func TestSidecar_FileFormat(t *testing.T) {
	t.Parallel()

	m := New([]Field{{ID: "score", Column: "Score"}, {ID: "ghost", Column: "Nope"}}, []string{"Score"})
	path := filepath.Join(t.TempDir(), "c.xlsx.report.mapping")
	if err := m.Save(path, "Report", "c.xlsx"); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("sidecar is not valid JSON: %v", err)
	}

	if doc["version"] != "1.0" {
		t.Errorf("version = %v, want 1.0", doc["version"])
	}
	if doc["template_name"] != "Report" {
		t.Errorf("template_name = %v, want Report", doc["template_name"])
	}
	if doc["excel_file"] != "c.xlsx" {
		t.Errorf("excel_file = %v, want c.xlsx", doc["excel_file"])
	}

	mappings, ok := doc["mappings"].(map[string]any)
	if !ok {
		t.Fatalf("mappings = %T, want object", doc["mappings"])
	}
	if mappings["score"] != "Score" {
		t.Errorf("mappings.score = %v, want Score", mappings["score"])
	}
	if v, present := mappings["ghost"]; !present || v != nil {
		t.Errorf("mappings.ghost = %v, want explicit null", v)
	}

	for _, key := range []string{"created_at", "updated_at"} {
		s, _ := doc[key].(string)
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			t.Errorf("%s = %q is not RFC3339: %v", key, s, err)
		}
	}
}

func TestSidecar_LoadKeepsUnmentionedOverrides(t *testing.T) {
	t.Parallel()

	saver := New([]Field{{ID: "a", Column: "A"}}, []string{"A"})
	path := filepath.Join(t.TempDir(), "x.mapping")
	if err := saver.Save(path, "T", "x.xlsx"); err != nil {
		t.Fatal(err)
	}

	loader := New([]Field{{ID: "a", Column: "A"}, {ID: "b", Column: "B"}}, []string{"A", "B"})
	loader.Set("b", "A") // not mentioned in the file; must survive
	if err := loader.Load(path); err != nil {
		t.Fatal(err)
	}
	if got := loader.Mapping()["b"]; got != "A" {
		t.Errorf("override for b = %q after Load, want untouched A", got)
	}
}

func TestSidecar_LoadErrors(t *testing.T) {
	t.Parallel()

	write := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "bad.mapping")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	m := New(nil, nil)

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		err := m.Load(filepath.Join(t.TempDir(), "missing.mapping"))
		if !errors.Is(err, ErrSidecarRead) {
			t.Errorf("Load() error = %v, want ErrSidecarRead", err)
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		t.Parallel()

		err := m.Load(write(t, "{not json"))
		if !errors.Is(err, ErrSidecarParse) {
			t.Errorf("Load() error = %v, want ErrSidecarParse", err)
		}
	})

	t.Run("missing version", func(t *testing.T) {
		t.Parallel()

		err := m.Load(write(t, `{"mappings":{}}`))
		if !errors.Is(err, ErrVersion) {
			t.Errorf("Load() error = %v, want ErrVersion", err)
		}
	})

	t.Run("version mismatch", func(t *testing.T) {
		t.Parallel()

		err := m.Load(write(t, `{"version":"2.0","mappings":{}}`))
		if !errors.Is(err, ErrVersion) {
			t.Errorf("Load() error = %v, want ErrVersion", err)
		}
	})
}

func TestSidecar_SavePreservesCreatedAt(t *testing.T) {
	t.Parallel()

	m := New([]Field{{ID: "a", Column: "A"}}, []string{"A"})
	path := filepath.Join(t.TempDir(), "x.mapping")

	if err := m.Save(path, "T", "x.xlsx"); err != nil {
		t.Fatal(err)
	}
	first, err := readSidecar(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.Save(path, "T", "x.xlsx"); err != nil {
		t.Fatal(err)
	}
	second, err := readSidecar(path)
	if err != nil {
		t.Fatal(err)
	}

	if second.CreatedAt != first.CreatedAt {
		t.Errorf("created_at changed on re-save: %q -> %q", first.CreatedAt, second.CreatedAt)
	}
}
