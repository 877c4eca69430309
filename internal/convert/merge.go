package convert

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Merge concatenates multiple PDF files into one, then optimizes the
// merged result (dead object removal, stream compression, structural
// cleanup). Input files are left untouched.
func Merge(pdfPaths []string, outputPath string) error {
	if len(pdfPaths) == 0 {
		return ErrNothingToMerge
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	if err := api.MergeCreateFile(pdfPaths, outputPath, false, conf); err != nil {
		return fmt.Errorf("%w: %v", ErrMerge, err)
	}

	// In-place optimization of the merged file.
	if err := api.OptimizeFile(outputPath, "", conf); err != nil {
		return fmt.Errorf("%w: optimizing merged file: %v", ErrMerge, err)
	}
	return nil
}
