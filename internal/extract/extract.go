package extract

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Result holds extracted plain text plus structural metadata.
// Pages is populated for paged formats (PDF, PPTX) so the page-aware chunking
// strategy can keep per-page provenance; Text is always populated.
type Result struct {
	Text       string
	Pages      []string
	PageCount  int
	SlideCount int
}

// UnsupportedFormatError reports an extension the extractor cannot handle.
// The document is skipped; sibling documents in a batch are unaffected.
type UnsupportedFormatError struct {
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file type: %s", e.Ext)
}

// File extracts plain text from a document based on its extension.
func File(path string) (Result, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf":
		return readPDF(path)
	case ".docx":
		return readDOCX(path)
	case ".pptx":
		return readPPTX(path)
	case ".txt", ".md":
		return readText(path)
	default:
		return Result{}, &UnsupportedFormatError{Ext: ext}
	}
}

// Supported reports whether the extension is one the extractor handles.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".docx", ".pptx", ".txt", ".md":
		return true
	}
	return false
}
