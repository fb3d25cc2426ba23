package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/phuslu/log"
)

// readPDF extracts per-page text with pdfcpu. A page whose content cannot be
// extracted or decoded degrades to an empty string; only a document that
// cannot be opened at all fails.
func readPDF(path string) (Result, error) {
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read PDF: %w", err)
	}
	pageCount := pdfCtx.PageCount

	pages := make([]string, pageCount)
	outDir, err := os.MkdirTemp("", "tutor-pdf-*")
	if err != nil {
		return Result{}, err
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(path, outDir, nil, conf); err != nil {
		log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("PDF content extraction failed, pages degrade to empty text")
		return Result{Text: joinPages(pages), Pages: pages, PageCount: pageCount}, nil
	}

	files, _ := os.ReadDir(outDir)
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(f.Name(), "page_%d", &pageNum); err != nil {
			if _, err := fmt.Sscanf(f.Name(), "Content_page_%d", &pageNum); err != nil {
				continue
			}
		}
		if pageNum < 1 || pageNum > pageCount {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(outDir, f.Name()))
		if err != nil {
			continue
		}
		pages[pageNum-1] = decodeContentText(raw)
	}

	return Result{Text: joinPages(pages), Pages: pages, PageCount: pageCount}, nil
}

func joinPages(pages []string) string {
	return strings.Join(pages, "\n\n")
}

// decodeContentText pulls text-show operator arguments out of a raw PDF
// content stream. It understands literal strings with the standard escapes
// and emits line breaks on text-positioning operators, which is enough to
// recover readable reading-order text from most generators.
func decodeContentText(content []byte) string {
	var out strings.Builder
	var pending string
	i := 0
	flush := func() {
		if pending != "" {
			out.WriteString(pending)
			out.WriteString(" ")
			pending = ""
		}
	}
	newline := func() {
		flush()
		if s := out.String(); len(s) > 0 && !strings.HasSuffix(s, "\n") {
			out.WriteByte('\n')
		}
	}
	for i < len(content) {
		c := content[i]
		switch c {
		case '(':
			lit, next := readLiteral(content, i+1)
			pending += lit
			i = next
		case '<':
			// Hex strings carry encoded glyph IDs we cannot map without the
			// font's CMap; skip them.
			j := i + 1
			for j < len(content) && content[j] != '>' {
				j++
			}
			i = j + 1
		case '%':
			for i < len(content) && content[i] != '\n' {
				i++
			}
		case 'T':
			if i+1 < len(content) {
				switch content[i+1] {
				case 'j', 'J':
					flush()
					i += 2
					continue
				case 'd', 'D', '*':
					newline()
					i += 2
					continue
				}
			}
			i++
		case '\'', '"':
			newline()
			i++
		default:
			i++
		}
	}
	flush()
	return strings.TrimSpace(out.String())
}

// readLiteral consumes a PDF literal string starting just after '('.
// Returns the decoded text and the index after the closing ')'.
func readLiteral(content []byte, start int) (string, int) {
	var sb strings.Builder
	depth := 1
	i := start
	for i < len(content) {
		c := content[i]
		switch c {
		case '\\':
			if i+1 >= len(content) {
				return sb.String(), i + 1
			}
			e := content[i+1]
			switch e {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case 'b', 'f':
				// rare control escapes, drop
			case '(', ')', '\\':
				sb.WriteByte(e)
			default:
				if e >= '0' && e <= '7' {
					// octal escape, up to three digits
					v, n := 0, 0
					for n < 3 && i+1+n < len(content) {
						d := content[i+1+n]
						if d < '0' || d > '7' {
							break
						}
						v = v*8 + int(d-'0')
						n++
					}
					sb.WriteByte(byte(v))
					i += n + 1
					continue
				}
				sb.WriteByte(e)
			}
			i += 2
		case '(':
			depth++
			sb.WriteByte(c)
			i++
		case ')':
			depth--
			if depth == 0 {
				return sb.String(), i + 1
			}
			sb.WriteByte(c)
			i++
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), i
}
