package extract

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile_UnsupportedFormat(t *testing.T) {
	_, err := File("grades.xlsx")
	require.Error(t, err)
	var uerr *UnsupportedFormatError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, ".xlsx", uerr.Ext)
}

func TestReadText_UTF8(t *testing.T) {
	path := writeFile(t, "notes.txt", []byte("plain utf-8 text\n"))
	res, err := File(path)
	require.NoError(t, err)
	assert.Equal(t, "plain utf-8 text\n", res.Text)
}

func TestReadText_UTF8BOM(t *testing.T) {
	path := writeFile(t, "bom.md", append([]byte{0xEF, 0xBB, 0xBF}, []byte("# Heading")...))
	res, err := File(path)
	require.NoError(t, err)
	assert.Equal(t, "# Heading", res.Text)
}

func TestReadText_UTF16LE(t *testing.T) {
	// "hi" with a UTF-16LE BOM
	path := writeFile(t, "wide.txt", []byte{0xFF, 0xFE, 'h', 0x00, 'i', 0x00})
	res, err := File(path)
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Text)
}

func TestReadText_InvalidBytesNeverFail(t *testing.T) {
	// 0xE9 is é in Windows-1252 but invalid standalone UTF-8
	path := writeFile(t, "legacy.txt", []byte{'c', 'a', 'f', 0xE9})
	res, err := File(path)
	require.NoError(t, err)
	assert.Equal(t, "café", res.Text)
}

func TestReadDOCX(t *testing.T) {
	body := `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph.</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph.</w:t></w:r></w:p>
  </w:body>
</w:document>`
	path := writeZip(t, "deck.docx", map[string]string{"word/document.xml": body})
	res, err := File(path)
	require.NoError(t, err)
	assert.Equal(t, "First paragraph.\n\nSecond paragraph.", res.Text)
}

func TestReadPPTX(t *testing.T) {
	slide := func(text string) string {
		return `<?xml version="1.0"?>
<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"
       xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">
  <a:p><a:r><a:t>` + text + `</a:t></a:r></a:p>
</p:sld>`
	}
	path := writeZip(t, "slides.pptx", map[string]string{
		"ppt/slides/slide2.xml": slide("Slide two"),
		"ppt/slides/slide1.xml": slide("Slide one"),
	})
	res, err := File(path)
	require.NoError(t, err)
	assert.Equal(t, 2, res.SlideCount)
	require.Len(t, res.Pages, 2)
	assert.Equal(t, "Slide one", res.Pages[0])
	assert.Equal(t, "Slide two", res.Pages[1])
	assert.Equal(t, "Slide one\n\nSlide two", res.Text)
}

func TestDecodeContentText(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "simple Tj",
			content: `BT /F1 12 Tf (Hello world) Tj ET`,
			want:    "Hello world",
		},
		{
			name:    "TJ array joins literals",
			content: `BT [(Hel) -20 (lo)] TJ ET`,
			want:    "Hello",
		},
		{
			name:    "Td starts a new line",
			content: `BT (line one) Tj 0 -14 Td (line two) Tj ET`,
			want:    "line one \nline two",
		},
		{
			name:    "escapes",
			content: `BT (paren \(x\) and \\ backslash) Tj ET`,
			want:    `paren (x) and \ backslash`,
		},
		{
			name:    "octal escape",
			content: `BT (\101BC) Tj ET`,
			want:    "ABC",
		},
		{
			name:    "hex strings skipped",
			content: `BT <00480065> Tj (ok) Tj ET`,
			want:    "ok",
		},
		{
			name:    "empty stream",
			content: ``,
			want:    "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeContentText([]byte(tt.content))
			if got != tt.want {
				t.Errorf("decodeContentText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func writeZip(t *testing.T, name string, parts map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for part, content := range parts {
		w, err := zw.Create(part)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}
