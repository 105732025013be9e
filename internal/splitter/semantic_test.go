package splitter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vectors [][]float32
	err     error
	calls   int
	model   string
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, model string, texts []string) ([][]float32, error) {
	f.calls++
	f.model = model
	if f.err != nil {
		return nil, f.err
	}
	if len(f.vectors) >= len(texts) {
		return f.vectors[:len(texts)], nil
	}
	return f.vectors, nil
}

func TestSemanticSplitGroupsBySimilarity(t *testing.T) {
	// four sentences: the first two nearly parallel, then an orthogonal
	// jump, then parallel again — one breakpoint expected
	emb := &fakeEmbedder{vectors: [][]float32{
		{1, 0},
		{0.99, 0.1},
		{0, 1},
		{0.1, 0.99},
	}}
	s := NewSemanticSplitter(emb, "nomic-embed-text", 90)

	chunks, err := s.Split(context.Background(), "Cats purr. Cats sleep. Stocks fell. Markets closed.")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Cats purr. Cats sleep.", chunks[0].Text)
	assert.Equal(t, "Stocks fell. Markets closed.", chunks[1].Text)
	assert.Equal(t, "nomic-embed-text", emb.model)

	// no positional metadata for semantic chunks
	for _, c := range chunks {
		assert.Nil(t, c.Meta)
	}
}

func TestSemanticSplitErrorPropagates(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("connection refused")}
	s := NewSemanticSplitter(emb, "nomic-embed-text", 90)

	_, err := s.Split(context.Background(), "One sentence. Another sentence.")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSemanticSplit)
}

func TestSemanticSplitSingleSentenceSkipsEmbedding(t *testing.T) {
	emb := &fakeEmbedder{}
	s := NewSemanticSplitter(emb, "nomic-embed-text", 90)

	chunks, err := s.Split(context.Background(), "Just one sentence.")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, emb.calls)
}

func TestSemanticSplitEmptyInput(t *testing.T) {
	s := NewSemanticSplitter(&fakeEmbedder{}, "m", 90)
	chunks, err := s.Split(context.Background(), "  \n ")
	require.NoError(t, err)
	assert.Nil(t, chunks)
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("First one. Second!\n\nThird paragraph without period")
	assert.Equal(t, []string{"First one.", "Second!", "Third paragraph without period"}, got)
}
