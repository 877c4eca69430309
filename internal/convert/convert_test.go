package convert

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestPrintOptions(t *testing.T) {
	t.Parallel()

	t.Run("defaults to A4 with zero margins", func(t *testing.T) {
		t.Parallel()

		opts := NewPDFEngine().printOptions()
		if *opts.PaperWidth != a4WidthInches || *opts.PaperHeight != a4HeightInches {
			t.Errorf("paper = %gx%g in, want %gx%g in",
				*opts.PaperWidth, *opts.PaperHeight, a4WidthInches, a4HeightInches)
		}
		if *opts.MarginTop != 0 || *opts.MarginBottom != 0 || *opts.MarginLeft != 0 || *opts.MarginRight != 0 {
			t.Error("default margins should be zero")
		}
		if !opts.PrintBackground {
			t.Error("PrintBackground should be enabled")
		}
	})

	t.Run("page size override converts mm to inches", func(t *testing.T) {
		t.Parallel()

		e := NewPDFEngine(WithPageSize(PageSize{WidthMM: 127, HeightMM: 254, MarginMM: 25.4}))
		opts := e.printOptions()
		if got, want := *opts.PaperWidth, 5.0; got != want {
			t.Errorf("PaperWidth = %g, want %g", got, want)
		}
		if got, want := *opts.PaperHeight, 10.0; got != want {
			t.Errorf("PaperHeight = %g, want %g", got, want)
		}
		if got, want := *opts.MarginTop, 1.0; got != want {
			t.Errorf("MarginTop = %g, want %g", got, want)
		}
	})
}

func TestWithTimeout_PanicsOnNonPositive(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("WithTimeout(0) should panic")
		}
	}()
	WithTimeout(0)
}

func TestWithTimeout_SetsTimeout(t *testing.T) {
	t.Parallel()

	e := NewPDFEngine(WithTimeout(5 * time.Second))
	if e.timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", e.timeout)
	}
}

func TestRasterize_MissingFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	err := Rasterize(filepath.Join(dir, "missing.pdf"), filepath.Join(dir, "out.png"), 300)
	if !errors.Is(err, ErrRasterOpen) {
		t.Errorf("Rasterize() error = %v, want ErrRasterOpen", err)
	}
}

func TestMerge_NoInputs(t *testing.T) {
	t.Parallel()

	if err := Merge(nil, filepath.Join(t.TempDir(), "out.pdf")); !errors.Is(err, ErrNothingToMerge) {
		t.Errorf("Merge(nil) error = %v, want ErrNothingToMerge", err)
	}
}

func TestMerge_MissingInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	err := Merge([]string{filepath.Join(dir, "a.pdf")}, filepath.Join(dir, "out.pdf"))
	if !errors.Is(err, ErrMerge) {
		t.Errorf("Merge() error = %v, want ErrMerge", err)
	}
}
