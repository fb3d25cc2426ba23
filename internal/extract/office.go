package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// DOCX and PPTX are zip archives of XML parts. Text lives in <w:t> runs
// (Word) and <a:t> runs (PowerPoint); paragraphs close with </w:p> / </a:p>.

// readDOCX joins non-empty paragraphs from word/document.xml with blank lines.
func readDOCX(path string) (Result, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open docx: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return Result{}, fmt.Errorf("failed to open docx body: %w", err)
		}
		paras, err := collectParagraphs(rc, "t", "p")
		rc.Close()
		if err != nil {
			return Result{}, fmt.Errorf("failed to parse docx body: %w", err)
		}
		return Result{Text: strings.Join(paras, "\n\n")}, nil
	}
	return Result{}, fmt.Errorf("docx missing word/document.xml")
}

// readPPTX extracts one text block per slide, in slide order. A slide that
// fails to parse degrades to an empty string.
func readPPTX(path string) (Result, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to open pptx: %w", err)
	}
	defer zr.Close()

	type slideFile struct {
		num int
		f   *zip.File
	}
	var slides []slideFile
	for _, f := range zr.File {
		var num int
		if _, err := fmt.Sscanf(f.Name, "ppt/slides/slide%d.xml", &num); err == nil {
			slides = append(slides, slideFile{num: num, f: f})
		}
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	texts := make([]string, len(slides))
	for i, s := range slides {
		rc, err := s.f.Open()
		if err != nil {
			continue
		}
		paras, err := collectParagraphs(rc, "t", "p")
		rc.Close()
		if err != nil {
			continue
		}
		texts[i] = strings.Join(paras, "\n")
	}

	return Result{
		Text:       strings.Join(texts, "\n\n"),
		Pages:      texts,
		SlideCount: len(slides),
	}, nil
}

// collectParagraphs streams an OOXML part and gathers character data inside
// run-text elements, grouped into paragraphs.
func collectParagraphs(r io.Reader, textLocal, paraLocal string) ([]string, error) {
	dec := xml.NewDecoder(r)
	var paras []string
	var cur strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == textLocal {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case textLocal:
				inText = false
			case paraLocal:
				if s := strings.TrimSpace(cur.String()); s != "" {
					paras = append(paras, s)
				}
				cur.Reset()
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		paras = append(paras, s)
	}
	return paras, nil
}
