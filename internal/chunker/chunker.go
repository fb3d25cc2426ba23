package chunker

import (
	"regexp"
	"strings"
	"unicode"
)

// Strategy selects how text is segmented into chunks.
type Strategy string

const (
	// StrategyWindow is a pure sliding window over the text.
	StrategyWindow Strategy = "window"
	// StrategyHybrid accumulates paragraphs and biases boundaries toward
	// section headers, falling back to the window for oversized chunks.
	StrategyHybrid Strategy = "hybrid"
	// StrategyPage chunks each page independently so every chunk carries
	// exactly one page number. Requires per-page extraction.
	StrategyPage Strategy = "page"
)

// Splitter produces deterministic, bounded-size, overlapping chunks.
// For fixed input and parameters the output is fully reproducible, which the
// idempotent upsert keyed by chunk number depends on.
type Splitter struct {
	maxChars int
	overlap  int
}

var (
	blankLineRe  = regexp.MustCompile(`\n\s*\n`)
	listMarkerRe = regexp.MustCompile(`^(\d+(\.\d+)*|[IVXLC]+\.)\s+\S`)
)

// New creates a splitter. Non-positive sizes fall back to 1500/300.
func New(maxChars, overlap int) *Splitter {
	if maxChars <= 0 {
		maxChars = 1500
	}
	if overlap < 0 || overlap >= maxChars {
		overlap = 300
		if overlap >= maxChars {
			overlap = maxChars / 5
		}
	}
	return &Splitter{maxChars: maxChars, overlap: overlap}
}

// Split segments text using the given strategy. StrategyPage is only
// meaningful with per-page input; for flat text it behaves like hybrid.
func (s *Splitter) Split(text string, strategy Strategy) []string {
	if strategy == StrategyWindow {
		return s.windowSplit(text)
	}
	return s.hybridSplit(text)
}

// windowSplit advances by maxChars-overlap each step; the final chunk extends
// to the end of text and may be shorter than the window.
func (s *Splitter) windowSplit(text string) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	n := len(runes)
	var out []string
	start := 0
	for start < n {
		end := start + s.maxChars
		if end > n {
			end = n
		}
		out = append(out, string(runes[start:end]))
		if end == n {
			break
		}
		start = end - s.overlap
		if start < 0 {
			start = 0
		}
	}
	return out
}

// hybridSplit accumulates paragraphs into a buffer up to maxChars, seeding
// each new buffer with the previous buffer's overlap tail. A header paragraph
// forces an early flush once the buffer exceeds maxChars, biasing boundaries
// toward section starts. Oversized chunks are post-split with the window.
func (s *Splitter) hybridSplit(text string) []string {
	if text == "" {
		return nil
	}
	var paras []string
	for _, p := range blankLineRe.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			paras = append(paras, p)
		}
	}

	var chunks []string
	buf := ""
	for _, p := range paras {
		add := p
		if buf != "" {
			add = "\n\n" + p
		}
		if runeLen(buf)+runeLen(add) <= s.maxChars {
			buf += add
		} else {
			if buf != "" {
				chunks = append(chunks, buf)
			}
			tail := ""
			if s.overlap > 0 && buf != "" {
				tail = tailRunes(buf, s.overlap)
			}
			if tail != "" {
				buf = tail + "\n\n" + p
			} else {
				buf = p
			}
		}
		if isHeader(p) && runeLen(buf) > s.maxChars {
			chunks = append(chunks, buf)
			buf = ""
		}
	}
	if buf != "" {
		chunks = append(chunks, buf)
	}

	var final []string
	for _, c := range chunks {
		if runeLen(c) > s.maxChars {
			final = append(final, s.windowSplit(c)...)
		} else {
			final = append(final, c)
		}
	}
	return final
}

// isHeader reports whether the paragraph's first line looks like a section
// header: short and fully upper-case, ending with a colon, or starting with a
// numbered or roman-numeral list marker.
func isHeader(p string) bool {
	line := p
	if idx := strings.IndexByte(p, '\n'); idx >= 0 {
		line = p[:idx]
	}
	if runeLen(line) <= 80 && (isUpper(line) || strings.HasSuffix(line, ":")) {
		return true
	}
	return listMarkerRe.MatchString(line)
}

// isUpper mirrors "no cased character is lower-case, and at least one is cased".
func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}

func runeLen(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}

func tailRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
