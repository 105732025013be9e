package splitter

import "strings"

// SplitTokens produces fixed-size windows of chunkSize whitespace tokens,
// advancing by chunkSize-chunkOverlap tokens per step. The final window
// is truncated to the remaining tokens. Tokenization is approximate word
// tokenization by whitespace, no sub-word tokenizer.
func SplitTokens(text string, chunkSize, chunkOverlap int) []Chunk {
	if text == "" {
		return nil
	}
	toks := strings.Fields(text)
	n := len(toks)
	if n == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = 200
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 2
	}

	var chunks []Chunk
	start := 0
	for start < n {
		end := start + chunkSize
		if end > n {
			end = n
		}
		chunks = append(chunks, Chunk{
			Text: strings.Join(toks[start:end], " "),
			Meta: Meta{"start_token": start, "end_token": end},
		})
		if end == n {
			break
		}
		start = end - chunkOverlap
		if start < 0 {
			start = 0
		}
	}
	return chunks
}
