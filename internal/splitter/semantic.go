package splitter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ErrSemanticSplit marks failures of the embedding-backed strategy so
// callers can tell them apart from input problems. The semantic splitter
// is the only network-dependent strategy.
var ErrSemanticSplit = errors.New("semantic split failed")

// Embedder computes embedding vectors for a batch of texts using the
// named embedding model.
type Embedder interface {
	EmbedBatch(ctx context.Context, embeddingModel string, texts []string) ([][]float32, error)
}

// SemanticSplitter groups consecutive sentences into chunks, breaking
// where the similarity between neighboring sentences drops below a
// percentile-based threshold of the whole similarity distribution.
type SemanticSplitter struct {
	embedder   Embedder
	model      string
	percentile float64
}

// NewSemanticSplitter builds a splitter that breaks at the bottom
// (100-percentile)% of successive-sentence similarities. percentile <= 0
// defaults to 90.
func NewSemanticSplitter(embedder Embedder, embeddingModel string, percentile float64) *SemanticSplitter {
	if percentile <= 0 {
		percentile = 90
	}
	return &SemanticSplitter{
		embedder:   embedder,
		model:      embeddingModel,
		percentile: percentile,
	}
}

// Split chunks text at semantic boundaries. Chunks carry no positional
// metadata beyond their order.
func (s *SemanticSplitter) Split(ctx context.Context, text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil, nil
	}
	if len(sentences) == 1 {
		return []Chunk{{Text: sentences[0]}}, nil
	}

	vectors, err := s.embedder.EmbedBatch(ctx, s.model, sentences)
	if err != nil {
		return nil, fmt.Errorf("%w: embed sentences: %v", ErrSemanticSplit, err)
	}
	if len(vectors) != len(sentences) {
		return nil, fmt.Errorf("%w: got %d vectors for %d sentences", ErrSemanticSplit, len(vectors), len(sentences))
	}

	// Distance between each pair of consecutive sentences; a breakpoint
	// is a distance above the percentile threshold of the distribution.
	distances := make([]float64, len(sentences)-1)
	for i := range distances {
		distances[i] = 1 - cosineSimilarity(vectors[i], vectors[i+1])
	}
	threshold := percentileOf(distances, s.percentile)

	var chunks []Chunk
	var group []string
	for i, sentence := range sentences {
		group = append(group, sentence)
		if i < len(distances) && distances[i] > threshold {
			chunks = append(chunks, Chunk{Text: strings.Join(group, " ")})
			group = nil
		}
	}
	if len(group) > 0 {
		chunks = append(chunks, Chunk{Text: strings.Join(group, " ")})
	}
	return chunks, nil
}

// splitSentences cuts text after sentence-ending punctuation or at
// blank lines. Good enough for boundary detection; the exact sentence
// borders do not have to be linguistically perfect.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder
	runes := []rune(text)

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			sentences = append(sentences, s)
		}
		cur.Reset()
	}

	for i, r := range runes {
		cur.WriteRune(r)
		switch r {
		case '.', '!', '?':
			if i+1 == len(runes) || runes[i+1] == ' ' || runes[i+1] == '\t' || runes[i+1] == '\n' {
				flush()
			}
		case '\n':
			if i+1 < len(runes) && runes[i+1] == '\n' {
				flush()
			}
		}
	}
	flush()
	return sentences
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// percentileOf computes the p-th percentile with linear interpolation
// between closest ranks.
func percentileOf(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
