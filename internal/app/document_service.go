package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nimbus/internal/ai"
	"nimbus/internal/config"
	"nimbus/internal/filestore"
	"nimbus/internal/model"
	"nimbus/internal/parser"
	"nimbus/internal/repository"
	"nimbus/internal/splitter"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrDocumentExists   = errors.New("document already exists")
	ErrUnsupportedType  = errors.New("unsupported file type")
	ErrFileTooLarge     = errors.New("file exceeds size limit")
	ErrNotParsed        = errors.New("document has not been parsed")
	ErrNoSplits         = errors.New("document has not been split")
	ErrUnknownStrategy  = errors.New("unknown split strategy")
	ErrNotOwner         = errors.New("document belongs to another user")
)

// embedBatchSize bounds how many chunks go to the embedding service in
// one request.
const embedBatchSize = 10

type batchEmbedder interface {
	EmbedBatch(ctx context.Context, cfg ai.EmbeddingConfig, texts []string) ([][]float32, error)
}

type documentEmbeddingStore interface {
	EnsureTable(ctx context.Context, embeddingModel string) (string, error)
	Write(ctx context.Context, table, filename, text string, vector []float32) error
	DeleteByFilename(ctx context.Context, filename string) (repository.DeleteResult, error)
}

type documentMetaStore interface {
	Create(doc *model.Document) error
	GetByFilename(filename string) (*model.Document, error)
	ListByUploader(uploader string) ([]model.Document, error)
	UpdateMetadata(filename string, patch map[string]interface{}) error
	SetParsedText(filename, text, parserName string) error
	SetSplits(filename, splitsJSON, splitterName string) error
	DeleteByFilename(filename string) error
}

// DocumentService owns the document lifecycle: upload, parse, split,
// embed, and delete, with the parse/split/embed results recorded on the
// document row so each step can be redone independently.
type DocumentService struct {
	docRepo  documentMetaStore
	store    documentEmbeddingStore
	files    *filestore.Store
	embedder batchEmbedder
	llm      config.LLMConfig
	rag      config.RAGConfig
	uploads  config.UploadsConfig
	logger   *zap.Logger
}

func NewDocumentService(
	docRepo documentMetaStore,
	store documentEmbeddingStore,
	files *filestore.Store,
	embedder batchEmbedder,
	llm config.LLMConfig,
	rag config.RAGConfig,
	uploads config.UploadsConfig,
	logger *zap.Logger,
) *DocumentService {
	return &DocumentService{
		docRepo:  docRepo,
		store:    store,
		files:    files,
		embedder: embedder,
		llm:      llm,
		rag:      rag,
		uploads:  uploads,
		logger:   logger,
	}
}

func (s *DocumentService) Upload(ctx context.Context, uploader, filename string, size int64, r io.Reader) (*model.Document, error) {
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." {
		return nil, ErrInvalidInput
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !s.uploads.AllowedExtensionSet()[ext] {
		return nil, ErrUnsupportedType
	}
	if s.uploads.MaxSizeMB > 0 && size > int64(s.uploads.MaxSizeMB)<<20 {
		return nil, ErrFileTooLarge
	}

	existing, err := s.docRepo.GetByFilename(filename)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDocumentExists
	}

	path, written, err := s.files.Save(filename, r)
	if err != nil {
		return nil, err
	}

	doc := &model.Document{
		ID:            uuid.NewString(),
		Filename:      filename,
		Uploader:      uploader,
		Enabled:       true,
		ParsingStatus: model.ParsingStatusUnparsed,
		Size:          written,
		FilePath:      path,
	}
	if err := s.docRepo.Create(doc); err != nil {
		s.files.Remove(filename)
		return nil, err
	}
	s.logger.Info("document uploaded",
		zap.String("filename", filename), zap.String("uploader", uploader), zap.Int64("size", written))
	return doc, nil
}

func (s *DocumentService) List(uploader string) ([]model.Document, error) {
	return s.docRepo.ListByUploader(uploader)
}

func (s *DocumentService) SetEnabled(filename, uploader string, enabled bool) error {
	if _, err := s.ownedDocument(filename, uploader); err != nil {
		return err
	}
	return s.docRepo.UpdateMetadata(filename, map[string]interface{}{"enabled": enabled})
}

// Parse extracts the document's text with the parser matching its
// extension and records the result.
func (s *DocumentService) Parse(ctx context.Context, filename, uploader string) (*model.Document, error) {
	doc, err := s.ownedDocument(filename, uploader)
	if err != nil {
		return nil, err
	}

	text, parserName, err := parser.ParseFile(doc.FilePath)
	if err != nil {
		return nil, fmt.Errorf("parse %s failed: %w", filename, err)
	}
	if err := s.docRepo.SetParsedText(filename, text, parserName); err != nil {
		return nil, err
	}

	doc.ParsedText = text
	doc.ParserName = parserName
	doc.ParsingStatus = model.ParsingStatusParsed
	s.logger.Info("document parsed",
		zap.String("filename", filename), zap.String("parser", parserName), zap.Int("chars", len(text)))
	return doc, nil
}

// SplitInput selects a chunking strategy and its knobs. Zero values
// fall back to the configured defaults.
type SplitInput struct {
	Strategy       string
	ChunkSize      int
	ChunkOverlap   int
	EmbeddingModel string
}

// Split chunks the parsed text and stores the chunk list, replacing any
// previous split. Splitting again invalidates stored embeddings only
// when the document is re-embedded.
func (s *DocumentService) Split(ctx context.Context, filename, uploader string, input SplitInput) ([]splitter.Chunk, error) {
	doc, err := s.ownedDocument(filename, uploader)
	if err != nil {
		return nil, err
	}
	if doc.ParsingStatus != model.ParsingStatusParsed || doc.ParsedText == "" {
		return nil, ErrNotParsed
	}

	chunkSize := input.ChunkSize
	if chunkSize <= 0 {
		chunkSize = s.rag.DefaultChunkSize
	}
	overlap := input.ChunkOverlap
	if overlap < 0 {
		overlap = s.rag.DefaultChunkOverlap
	}

	var chunks []splitter.Chunk
	switch input.Strategy {
	case splitter.StrategyStructure, "":
		chunks = splitter.SplitStructure(doc.ParsedText, chunkSize, overlap)
	case splitter.StrategyToken:
		chunks = splitter.SplitTokens(doc.ParsedText, chunkSize, overlap)
	case splitter.StrategySemantic:
		embedModel := input.EmbeddingModel
		if embedModel == "" {
			embedModel = s.rag.DefaultEmbeddingModel
		}
		sem := splitter.NewSemanticSplitter(s.splitterEmbedder(), embedModel, 90)
		chunks, err = sem.Split(ctx, doc.ParsedText)
		if err != nil {
			return nil, err
		}
	default:
		return nil, ErrUnknownStrategy
	}

	payload, err := json.Marshal(chunks)
	if err != nil {
		return nil, fmt.Errorf("marshal chunks failed: %w", err)
	}
	strategy := input.Strategy
	if strategy == "" {
		strategy = splitter.StrategyStructure
	}
	if err := s.docRepo.SetSplits(filename, string(payload), strategy); err != nil {
		return nil, err
	}
	s.logger.Info("document split",
		zap.String("filename", filename), zap.String("strategy", strategy), zap.Int("chunks", len(chunks)))
	return chunks, nil
}

// Preview returns the stored chunk list without re-splitting.
func (s *DocumentService) Preview(filename, uploader string) ([]splitter.Chunk, error) {
	doc, err := s.ownedDocument(filename, uploader)
	if err != nil {
		return nil, err
	}
	if !doc.HasSplits() {
		return nil, ErrNoSplits
	}
	var chunks []splitter.Chunk
	if err := json.Unmarshal([]byte(doc.Splits), &chunks); err != nil {
		return nil, fmt.Errorf("unmarshal stored chunks failed: %w", err)
	}
	return chunks, nil
}

// Embed writes the document's chunks into the table of the given
// embedding model, creating the table on first use. Chunks go to the
// embedding service in fixed-size batches. Returns the number of
// chunks embedded.
func (s *DocumentService) Embed(ctx context.Context, filename, uploader, embeddingModel string) (int, error) {
	doc, err := s.ownedDocument(filename, uploader)
	if err != nil {
		return 0, err
	}
	if !doc.HasSplits() {
		return 0, ErrNoSplits
	}
	if embeddingModel == "" {
		embeddingModel = s.rag.DefaultEmbeddingModel
	}

	var chunks []splitter.Chunk
	if err := json.Unmarshal([]byte(doc.Splits), &chunks); err != nil {
		return 0, fmt.Errorf("unmarshal stored chunks failed: %w", err)
	}
	if len(chunks) == 0 {
		return 0, ErrNoSplits
	}

	table, err := s.store.EnsureTable(ctx, embeddingModel)
	if err != nil {
		return 0, err
	}

	cfg := ai.EmbeddingConfig{BaseURL: s.llm.BaseURL, APIKey: s.llm.APIKey, Model: embeddingModel}
	written := 0
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vectors, err := s.embedBatchWithTimeout(ctx, cfg, texts)
		if err != nil {
			return written, fmt.Errorf("embed batch failed: %w", err)
		}
		if len(vectors) != len(texts) {
			return written, fmt.Errorf("embedding service returned %d vectors for %d texts", len(vectors), len(texts))
		}
		for i, vec := range vectors {
			if err := s.store.Write(ctx, table, filename, texts[i], vec); err != nil {
				return written, err
			}
			written++
		}
	}

	err = s.docRepo.UpdateMetadata(filename, map[string]interface{}{
		"embeddings":       true,
		"embeddings_model": embeddingModel,
	})
	if err != nil {
		return written, err
	}
	s.logger.Info("document embedded",
		zap.String("filename", filename), zap.String("embedding_model", embeddingModel), zap.Int("chunks", written))
	return written, nil
}

// Delete removes the document everywhere: every embedding table, the
// stored file, and the metadata row. Embedding-table failures are
// logged but do not stop the rest of the cleanup.
func (s *DocumentService) Delete(ctx context.Context, filename, uploader string) error {
	if _, err := s.ownedDocument(filename, uploader); err != nil {
		return err
	}

	result, err := s.store.DeleteByFilename(ctx, filename)
	if err != nil {
		s.logger.Warn("embedding cleanup failed", zap.String("filename", filename), zap.Error(err))
	}
	for _, failure := range result.Failures {
		s.logger.Warn("embedding cleanup failed for table",
			zap.String("filename", filename), zap.String("table", failure.Table), zap.Error(failure.Err))
	}

	if err := s.files.Remove(filename); err != nil {
		s.logger.Warn("file cleanup failed", zap.String("filename", filename), zap.Error(err))
	}

	if err := s.docRepo.DeleteByFilename(filename); err != nil {
		return err
	}
	s.logger.Info("document deleted",
		zap.String("filename", filename), zap.Int64("embeddings_removed", result.Deleted))
	return nil
}

func (s *DocumentService) ownedDocument(filename, uploader string) (*model.Document, error) {
	doc, err := s.docRepo.GetByFilename(filename)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	if doc.Uploader != uploader {
		return nil, ErrNotOwner
	}
	return doc, nil
}

func (s *DocumentService) embedBatchWithTimeout(ctx context.Context, cfg ai.EmbeddingConfig, texts []string) ([][]float32, error) {
	if s.llm.EmbeddingTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.llm.EmbeddingTimeoutSeconds)*time.Second)
		defer cancel()
	}
	return s.embedder.EmbedBatch(ctx, cfg, texts)
}

func (s *DocumentService) splitterEmbedder() splitter.Embedder {
	return embedderAdapter{embedder: s.embedder, llm: s.llm}
}

// embedderAdapter bridges the OpenAI-compatible client to the semantic
// splitter's embedder interface.
type embedderAdapter struct {
	embedder batchEmbedder
	llm      config.LLMConfig
}

func (a embedderAdapter) EmbedBatch(ctx context.Context, embeddingModel string, texts []string) ([][]float32, error) {
	return a.embedder.EmbedBatch(ctx, ai.EmbeddingConfig{
		BaseURL: a.llm.BaseURL,
		APIKey:  a.llm.APIKey,
		Model:   embeddingModel,
	}, texts)
}
