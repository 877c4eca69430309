// Package render substitutes mapped field values into template markup.
//
// Templates use {{ fieldId }} placeholders. Values originating from
// image-typed fields are embedded as base64 data URLs so the rendered
// markup is self-contained and needs no external file references.
package render

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/valyala/fasttemplate"
)

// Placeholder delimiters, matching the template manifest convention.
const (
	startTag = "{{"
	endTag   = "}}"
)

// Render substitutes {{ fieldId }} placeholders in markup with values.
// Placeholder names are trimmed of surrounding whitespace, so both
// {{score}} and {{ score }} resolve the field "score". Unknown or nil
// fields render as the empty string.
func Render(markup string, values map[string]any) string {
	return fasttemplate.ExecuteFuncString(markup, startTag, endTag,
		func(w io.Writer, tag string) (int, error) {
			v, ok := values[strings.TrimSpace(tag)]
			if !ok || v == nil {
				return 0, nil
			}
			return io.WriteString(w, fmt.Sprint(v))
		})
}

// ImageTag converts an image file path into a complete <img> element
// whose src is an inline base64 data URL. Returns the empty string when
// the file cannot be read; a missing image must not fail the document.
func ImageTag(path string) string {
	dataURL := DataURL(path)
	if dataURL == "" {
		return ""
	}
	return fmt.Sprintf(`<img src="%s" style="width:100%%;height:100%%;object-fit:contain;">`, dataURL)
}

// DataURL reads an image file and encodes it as a data URL.
// The MIME type is derived from the file extension; unknown extensions
// default to image/png. Returns the empty string on read failure.
func DataURL(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return "data:" + mimeForExt(filepath.Ext(path)) + ";base64," +
		base64.StdEncoding.EncodeToString(data)
}

// mimeForExt maps an image file extension to its MIME type.
func mimeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "image/png"
	}
}
