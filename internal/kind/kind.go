// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package kind defines the supported conversion kinds and their
// validation rules. One table drives the gateway and the client: allowed
// input extensions, sniffed content types, size caps, and the optional
// form fields each kind accepts.
package kind

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pdiddy/convert-relay/pkg/types"
)

// Kind is a conversion kind slug as it appears in URLs, e.g. "pdf-to-word".
type Kind string

const (
	PDFToWord       Kind = "pdf-to-word"
	PDFToExcel      Kind = "pdf-to-excel"
	PDFToPowerPoint Kind = "pdf-to-powerpoint"
	PDFToJPG        Kind = "pdf-to-jpg"
	WordToPDF       Kind = "word-to-pdf"
	ExcelToPDF      Kind = "excel-to-pdf"
	PowerPointToPDF Kind = "powerpoint-to-pdf"
	HTMLToPDF       Kind = "html-to-pdf"
)

const (
	maxPDFInput    = 50 << 20 // PDF inputs
	maxOfficeInput = 16 << 20 // Office and HTML inputs
)

// FieldSpec describes one optional form field a conversion kind accepts.
// A field validates against Allowed when set, otherwise against the
// numeric [Min, Max] range when Max is positive.
type FieldSpec struct {
	Name    string
	Allowed []string
	Min     int
	Max     int
}

// Spec holds the validation rules and routing data for one conversion kind.
type Spec struct {
	// Kind is the slug used in URLs and the backend path.
	Kind Kind

	// Label is the human-readable tool name, e.g. "PDF to Word".
	Label string

	// InputLabel names the expected input in validation messages,
	// e.g. "a PDF" yields "file must be a PDF".
	InputLabel string

	// Extensions lists allowed input extensions, lowercase with dot.
	Extensions []string

	// Sniffed lists content types http.DetectContentType may report for
	// a valid input. Office formats are ZIP containers, so they sniff as
	// application/zip.
	Sniffed []string

	// MaxBytes is the input size cap for this kind.
	MaxBytes int64

	// Fields lists the optional form fields this kind accepts. Fields
	// outside this list are dropped before forwarding.
	Fields []FieldSpec

	// OutputExt is the usual artifact extension, informational only —
	// result filenames always come from the backend.
	OutputExt string
}

var specs = []*Spec{
	{
		Kind:       PDFToWord,
		Label:      "PDF to Word",
		InputLabel: "a PDF",
		Extensions: []string{".pdf"},
		Sniffed:    []string{"application/pdf"},
		MaxBytes:   maxPDFInput,
		Fields: []FieldSpec{
			{Name: "mode", Allowed: []string{"auto", "fast", "accurate", "hybrid", "ocr"}},
		},
		OutputExt: ".docx",
	},
	{
		Kind:       PDFToExcel,
		Label:      "PDF to Excel",
		InputLabel: "a PDF",
		Extensions: []string{".pdf"},
		Sniffed:    []string{"application/pdf"},
		MaxBytes:   maxPDFInput,
		OutputExt:  ".xlsx",
	},
	{
		Kind:       PDFToPowerPoint,
		Label:      "PDF to PowerPoint",
		InputLabel: "a PDF",
		Extensions: []string{".pdf"},
		Sniffed:    []string{"application/pdf"},
		MaxBytes:   maxPDFInput,
		OutputExt:  ".pptx",
	},
	{
		Kind:       PDFToJPG,
		Label:      "PDF to JPG",
		InputLabel: "a PDF",
		Extensions: []string{".pdf"},
		Sniffed:    []string{"application/pdf"},
		MaxBytes:   maxPDFInput,
		Fields: []FieldSpec{
			{Name: "output_format", Allowed: []string{"jpg", "png"}},
			{Name: "dpi", Allowed: []string{"72", "150", "300"}},
			{Name: "quality", Min: 1, Max: 100},
			{Name: "page_range", Allowed: []string{"all", "first", "custom"}},
		},
		OutputExt: ".jpg",
	},
	{
		Kind:       WordToPDF,
		Label:      "Word to PDF",
		InputLabel: "a Word document (.docx)",
		Extensions: []string{".docx"},
		Sniffed:    []string{"application/zip", "application/octet-stream"},
		MaxBytes:   maxOfficeInput,
		OutputExt:  ".pdf",
	},
	{
		Kind:       ExcelToPDF,
		Label:      "Excel to PDF",
		InputLabel: "an Excel workbook (.xlsx)",
		Extensions: []string{".xlsx"},
		Sniffed:    []string{"application/zip", "application/octet-stream"},
		MaxBytes:   maxOfficeInput,
		OutputExt:  ".pdf",
	},
	{
		Kind:       PowerPointToPDF,
		Label:      "PowerPoint to PDF",
		InputLabel: "a PowerPoint presentation (.pptx)",
		Extensions: []string{".pptx"},
		Sniffed:    []string{"application/zip", "application/octet-stream"},
		MaxBytes:   maxOfficeInput,
		OutputExt:  ".pdf",
	},
	{
		Kind:       HTMLToPDF,
		Label:      "HTML to PDF",
		InputLabel: "an HTML file",
		Extensions: []string{".html", ".htm"},
		Sniffed:    []string{"text/html", "text/plain", "text/xml"},
		MaxBytes:   maxOfficeInput,
		OutputExt:  ".pdf",
	},
}

var byKind = func() map[Kind]*Spec {
	m := make(map[Kind]*Spec, len(specs))
	for _, s := range specs {
		m[s.Kind] = s
	}
	return m
}()

// Lookup returns the spec for a kind slug.
func Lookup(name string) (*Spec, bool) {
	s, ok := byKind[Kind(name)]
	return s, ok
}

// All returns every supported conversion kind in declaration order.
func All() []*Spec {
	return specs
}

// Names returns the supported kind slugs in declaration order.
func Names() []string {
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = string(s.Kind)
	}
	return names
}

// ValidateFile checks the filename extension and size against the spec.
// Failures are local validation errors; nothing is sent to the backend.
func (s *Spec) ValidateFile(filename string, size int64) error {
	if strings.TrimSpace(filename) == "" {
		return types.NewFailure(types.FailValidation, "no file provided")
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !contains(s.Extensions, ext) {
		return types.NewFailure(types.FailValidation, "file must be %s", s.InputLabel)
	}
	if size > s.MaxBytes {
		return types.NewFailure(types.FailValidation,
			"file exceeds the %d MB limit for %s", s.MaxBytes>>20, s.Label)
	}
	return nil
}

// ValidateSniff checks the detected content type of the file head against
// the kinds a valid input may sniff as. head should be the first 512
// bytes; an empty head is accepted (nothing to check).
func (s *Spec) ValidateSniff(head []byte) error {
	if len(head) == 0 {
		return nil
	}
	detected := http.DetectContentType(head)
	for _, allowed := range s.Sniffed {
		if strings.HasPrefix(detected, allowed) {
			return nil
		}
	}
	return types.NewFailure(types.FailValidation,
		"file content does not look like %s (detected %s)", s.InputLabel, detected)
}

// ValidateOptions checks the provided option fields against the spec and
// returns the normalized allow-listed set. Unknown fields are dropped;
// known fields with invalid values fail validation.
func (s *Spec) ValidateOptions(opts map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(s.Fields))
	for _, f := range s.Fields {
		raw, ok := opts[f.Name]
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		val := strings.ToLower(strings.TrimSpace(raw))
		if len(f.Allowed) > 0 {
			if !contains(f.Allowed, val) {
				return nil, types.NewFailure(types.FailValidation,
					"invalid %s: %s (valid values: %s)", f.Name, val, strings.Join(f.Allowed, ", "))
			}
		} else if f.Max > 0 {
			n, err := strconv.Atoi(val)
			if err != nil || n < f.Min || n > f.Max {
				return nil, types.NewFailure(types.FailValidation,
					"invalid %s: %s (must be %d-%d)", f.Name, val, f.Min, f.Max)
			}
		}
		out[f.Name] = val
	}
	return out, nil
}

// contentTypes maps artifact extensions to download content types.
var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".zip":  "application/zip",
}

// ContentTypeFor derives the download Content-Type from a filename's
// extension, defaulting to application/octet-stream.
func ContentTypeFor(filename string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
