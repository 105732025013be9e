package app

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nimbus/internal/ai"
	"nimbus/internal/config"
	"nimbus/internal/filestore"
	"nimbus/internal/model"
	"nimbus/internal/repository"
)

type fakeDocMetaStore struct {
	docs    map[string]*model.Document
	patches []map[string]interface{}
}

func newFakeDocMetaStore() *fakeDocMetaStore {
	return &fakeDocMetaStore{docs: make(map[string]*model.Document)}
}

func (f *fakeDocMetaStore) Create(doc *model.Document) error {
	f.docs[doc.Filename] = doc
	return nil
}

func (f *fakeDocMetaStore) GetByFilename(filename string) (*model.Document, error) {
	return f.docs[filename], nil
}

func (f *fakeDocMetaStore) ListByUploader(uploader string) ([]model.Document, error) {
	var out []model.Document
	for _, d := range f.docs {
		if d.Uploader == uploader {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDocMetaStore) UpdateMetadata(filename string, patch map[string]interface{}) error {
	f.patches = append(f.patches, patch)
	return nil
}

func (f *fakeDocMetaStore) SetParsedText(filename, text, parserName string) error {
	if d, ok := f.docs[filename]; ok {
		d.ParsedText = text
		d.ParserName = parserName
		d.ParsingStatus = model.ParsingStatusParsed
	}
	return nil
}

func (f *fakeDocMetaStore) SetSplits(filename, splitsJSON, splitterName string) error {
	if d, ok := f.docs[filename]; ok {
		d.Splits = splitsJSON
		d.SplitterName = splitterName
	}
	return nil
}

func (f *fakeDocMetaStore) DeleteByFilename(filename string) error {
	delete(f.docs, filename)
	return nil
}

type fakeBatchEmbedder struct {
	batchSizes []int
	err        error
}

func (f *fakeBatchEmbedder) EmbedBatch(_ context.Context, _ ai.EmbeddingConfig, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batchSizes = append(f.batchSizes, len(texts))
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{1, 0}
	}
	return vectors, nil
}

type fakeDocEmbeddingStore struct {
	writes int
	tables []string
}

func (f *fakeDocEmbeddingStore) EnsureTable(_ context.Context, embeddingModel string) (string, error) {
	table := repository.TableNameForModel(embeddingModel)
	f.tables = append(f.tables, table)
	return table, nil
}

func (f *fakeDocEmbeddingStore) Write(_ context.Context, _, _, _ string, _ []float32) error {
	f.writes++
	return nil
}

func (f *fakeDocEmbeddingStore) DeleteByFilename(context.Context, string) (repository.DeleteResult, error) {
	return repository.DeleteResult{Deleted: 2}, nil
}

type docFixture struct {
	svc      *DocumentService
	meta     *fakeDocMetaStore
	store    *fakeDocEmbeddingStore
	embedder *fakeBatchEmbedder
}

func newDocFixture(t *testing.T) *docFixture {
	t.Helper()
	files, err := filestore.New(t.TempDir())
	require.NoError(t, err)

	f := &docFixture{
		meta:     newFakeDocMetaStore(),
		store:    &fakeDocEmbeddingStore{},
		embedder: &fakeBatchEmbedder{},
	}
	f.svc = NewDocumentService(
		f.meta, f.store, files, f.embedder,
		config.LLMConfig{},
		config.RAGConfig{DefaultChunkSize: 100, DefaultChunkOverlap: 10, DefaultEmbeddingModel: "nomic-embed-text"},
		config.UploadsConfig{AllowedExtensions: ".pdf,.md,.txt", MaxSizeMB: 1},
		zap.NewNop(),
	)
	return f
}

func TestUploadRejectsUnsupportedExtension(t *testing.T) {
	f := newDocFixture(t)
	_, err := f.svc.Upload(context.Background(), "alice", "malware.exe", 10, strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	f := newDocFixture(t)
	_, err := f.svc.Upload(context.Background(), "alice", "big.md", 2<<20, strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestUploadRejectsDuplicateFilename(t *testing.T) {
	f := newDocFixture(t)
	_, err := f.svc.Upload(context.Background(), "alice", "notes.md", 5, strings.NewReader("hello"))
	require.NoError(t, err)

	_, err = f.svc.Upload(context.Background(), "alice", "notes.md", 5, strings.NewReader("hello"))
	assert.ErrorIs(t, err, ErrDocumentExists)
}

func TestUploadCreatesEnabledUnparsedDocument(t *testing.T) {
	f := newDocFixture(t)
	doc, err := f.svc.Upload(context.Background(), "alice", "notes.md", 5, strings.NewReader("hello"))
	require.NoError(t, err)

	assert.True(t, doc.Enabled)
	assert.Equal(t, model.ParsingStatusUnparsed, doc.ParsingStatus)
	assert.Equal(t, int64(5), doc.Size)
	assert.NotEmpty(t, doc.ID)
}

func TestSplitRequiresParsedText(t *testing.T) {
	f := newDocFixture(t)
	f.meta.docs["a.md"] = &model.Document{Filename: "a.md", Uploader: "alice"}

	_, err := f.svc.Split(context.Background(), "a.md", "alice", SplitInput{})
	assert.ErrorIs(t, err, ErrNotParsed)
}

func TestSplitUnknownStrategy(t *testing.T) {
	f := newDocFixture(t)
	f.meta.docs["a.md"] = &model.Document{
		Filename: "a.md", Uploader: "alice",
		ParsingStatus: model.ParsingStatusParsed, ParsedText: "some text",
	}

	_, err := f.svc.Split(context.Background(), "a.md", "alice", SplitInput{Strategy: "wavelet"})
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestSplitStoresChunks(t *testing.T) {
	f := newDocFixture(t)
	f.meta.docs["a.md"] = &model.Document{
		Filename: "a.md", Uploader: "alice",
		ParsingStatus: model.ParsingStatusParsed,
		ParsedText:    "first paragraph.\n\nsecond paragraph.",
	}

	chunks, err := f.svc.Split(context.Background(), "a.md", "alice", SplitInput{Strategy: "structure"})
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
	assert.True(t, f.meta.docs["a.md"].HasSplits())
	assert.Equal(t, "structure", f.meta.docs["a.md"].SplitterName)
}

func TestEmbedBatchesChunks(t *testing.T) {
	f := newDocFixture(t)
	f.meta.docs["a.md"] = &model.Document{
		Filename: "a.md", Uploader: "alice",
		ParsingStatus: model.ParsingStatusParsed,
		Splits:        buildSplitsJSON(t, 23),
	}

	count, err := f.svc.Embed(context.Background(), "a.md", "alice", "nomic-embed-text")
	require.NoError(t, err)

	assert.Equal(t, 23, count)
	assert.Equal(t, 23, f.store.writes)
	assert.Equal(t, []int{10, 10, 3}, f.embedder.batchSizes)
	require.Len(t, f.meta.patches, 1)
	assert.Equal(t, true, f.meta.patches[0]["embeddings"])
	assert.Equal(t, "nomic-embed-text", f.meta.patches[0]["embeddings_model"])
}

func TestEmbedRequiresSplits(t *testing.T) {
	f := newDocFixture(t)
	f.meta.docs["a.md"] = &model.Document{Filename: "a.md", Uploader: "alice"}

	_, err := f.svc.Embed(context.Background(), "a.md", "alice", "nomic-embed-text")
	assert.ErrorIs(t, err, ErrNoSplits)
}

func TestDeleteRemovesMetadata(t *testing.T) {
	f := newDocFixture(t)
	f.meta.docs["a.md"] = &model.Document{Filename: "a.md", Uploader: "alice"}

	require.NoError(t, f.svc.Delete(context.Background(), "a.md", "alice"))
	assert.NotContains(t, f.meta.docs, "a.md")
}

func TestDocumentOwnershipEnforced(t *testing.T) {
	f := newDocFixture(t)
	f.meta.docs["a.md"] = &model.Document{Filename: "a.md", Uploader: "bob"}

	_, err := f.svc.Parse(context.Background(), "a.md", "alice")
	assert.ErrorIs(t, err, ErrNotOwner)

	err = f.svc.Delete(context.Background(), "a.md", "alice")
	assert.ErrorIs(t, err, ErrNotOwner)
}

func buildSplitsJSON(t *testing.T, n int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("[")
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(`{"text":"chunk","meta":{"chunk_index":`)
		b.WriteString(string(rune('0' + i%10)))
		b.WriteString(`}}`)
	}
	b.WriteString("]")
	return b.String()
}
