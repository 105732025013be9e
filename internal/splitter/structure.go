package splitter

import (
	"regexp"
	"strings"
)

var headingRe = regexp.MustCompile(`(?i)^(#{1,6}\s+|chapter\b|section\b)`)

var paragraphRe = regexp.MustCompile(`\n{2,}`)

// SplitStructure splits text along heading-like lines into sections,
// then packs each section's paragraphs into chunks of at most maxChars
// characters. When a paragraph would overflow the budget the chunk is
// closed and the next one is seeded with the trailing overlapChars
// characters of the closed chunk followed by the overflowing paragraph.
// A section with no paragraphs yields no chunks.
func SplitStructure(text string, maxChars, overlapChars int) []Chunk {
	if text == "" {
		return nil
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var sections []string
	var curLines []string
	for _, line := range strings.Split(text, "\n") {
		if headingRe.MatchString(strings.TrimSpace(line)) {
			if len(curLines) > 0 {
				sections = append(sections, strings.TrimSpace(strings.Join(curLines, "\n")))
			}
			curLines = []string{line}
		} else {
			curLines = append(curLines, line)
		}
	}
	if len(curLines) > 0 {
		sections = append(sections, strings.TrimSpace(strings.Join(curLines, "\n")))
	}

	var chunks []Chunk
	for i, sec := range sections {
		var paragraphs []string
		for _, p := range paragraphRe.Split(sec, -1) {
			if p = strings.TrimSpace(p); p != "" {
				paragraphs = append(paragraphs, p)
			}
		}
		for j, text := range chunkParagraphs(paragraphs, maxChars, overlapChars) {
			chunks = append(chunks, Chunk{
				Text: text,
				Meta: Meta{"section_index": i, "chunk_index": j},
			})
		}
	}
	return chunks
}

// chunkParagraphs greedily packs consecutive paragraphs while the
// accumulated length stays within maxChars. Lengths and the overlap tail
// are measured in runes, not bytes.
func chunkParagraphs(paragraphs []string, maxChars, overlapChars int) []string {
	var chunks []string
	var cur []string
	curLen := 0

	for _, p := range paragraphs {
		plen := len([]rune(p))
		if curLen+plen <= maxChars || len(cur) == 0 {
			cur = append(cur, p)
			curLen += plen + 2
			continue
		}
		joined := strings.Join(cur, "\n\n")
		chunks = append(chunks, strings.TrimSpace(joined))
		if overlapChars > 0 {
			tail := overlapTail(joined, overlapChars)
			cur = []string{tail, p}
			curLen = len([]rune(tail)) + plen + 2
		} else {
			cur = []string{p}
			curLen = plen + 2
		}
	}

	if len(cur) > 0 {
		chunks = append(chunks, strings.TrimSpace(strings.Join(cur, "\n\n")))
	}
	return chunks
}

func overlapTail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
