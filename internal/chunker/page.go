package chunker

import "strings"

// PageChunk is a chunk confined to a single page of the source document.
type PageChunk struct {
	Text string
	Page int // 1-based page or slide number
}

// SplitPages chunks each page independently so provenance stays exact.
// Within a page, a chunk prefers to end at the last sentence terminator or
// newline found in the trailing 30% of the window; otherwise it cuts at the
// hard boundary.
func (s *Splitter) SplitPages(pages []string) []PageChunk {
	var out []PageChunk
	for i, page := range pages {
		for _, text := range s.sentenceAwareSplit(page) {
			out = append(out, PageChunk{Text: text, Page: i + 1})
		}
	}
	return out
}

func (s *Splitter) sentenceAwareSplit(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	n := len(runes)
	if n == 0 {
		return nil
	}
	threshold := int(float64(s.maxChars) * 0.7)
	var out []string
	start := 0
	for start < n {
		end := start + s.maxChars
		if end >= n {
			if c := strings.TrimSpace(string(runes[start:])); c != "" {
				out = append(out, c)
			}
			break
		}
		window := runes[start:end]
		cut := lastIndexFunc(window, isSentenceEnd)
		if cut <= threshold {
			cut = lastIndexFunc(window, func(r rune) bool { return r == '\n' })
		}
		if cut > threshold {
			end = start + cut + 1
		}
		if c := strings.TrimSpace(string(runes[start:end])); c != "" {
			out = append(out, c)
		}
		next := end - s.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func lastIndexFunc(runes []rune, match func(rune) bool) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if match(runes[i]) {
			return i
		}
	}
	return -1
}
