package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"nimbus/internal/ai"
	"nimbus/internal/config"
	"nimbus/internal/repository"
)

// RetrievedChunk is one document snippet returned by the retrieval
// fan-out, tagged with the table and embedding model that produced it.
type RetrievedChunk struct {
	Filename       string
	Text           string
	Distance       float64
	Table          string
	EmbeddingModel string
}

type queryEmbedder interface {
	Embed(ctx context.Context, cfg ai.EmbeddingConfig, text string) ([]float32, error)
}

type embeddingStore interface {
	TableExists(ctx context.Context, table string) (bool, error)
	Query(ctx context.Context, table string, filenames []string, vector []float32, topK int) ([]repository.RetrievalRow, error)
}

// Retriever fans a query out across every (table, embedding model) pair
// registered for a chat model and merges the per-table hits into one
// ranked list. Retrieval never fails the caller: any table that errors
// is logged and skipped, and an empty result means "answer without
// context".
type Retriever struct {
	embedder     queryEmbedder
	store        embeddingStore
	registry     map[string][]config.TablePair
	llm          config.LLMConfig
	topKPerModel int
	topKOverall  int
	logger       *zap.Logger
}

func NewRetriever(
	embedder queryEmbedder,
	store embeddingStore,
	registry map[string][]config.TablePair,
	llm config.LLMConfig,
	topKPerModel, topKOverall int,
	logger *zap.Logger,
) *Retriever {
	return &Retriever{
		embedder:     embedder,
		store:        store,
		registry:     registry,
		llm:          llm,
		topKPerModel: topKPerModel,
		topKOverall:  topKOverall,
		logger:       logger,
	}
}

// Retrieve returns the merged top hits for the message, restricted to
// the caller's enabled files. Chat models with no registered tables and
// queries with no enabled files retrieve nothing.
func (r *Retriever) Retrieve(ctx context.Context, chatModel, message string, enabledFiles []string) []RetrievedChunk {
	pairs := r.registry[chatModel]
	if len(pairs) == 0 || len(enabledFiles) == 0 {
		return nil
	}

	// Results are indexed by pair so the merge keeps configuration
	// order among equal distances.
	results := make([][]RetrievedChunk, len(pairs))
	var wg sync.WaitGroup
	for i, pair := range pairs {
		wg.Add(1)
		go func(i int, pair config.TablePair) {
			defer wg.Done()
			results[i] = r.queryPair(ctx, pair, message, enabledFiles)
		}(i, pair)
	}
	wg.Wait()

	return r.merge(results)
}

func (r *Retriever) queryPair(ctx context.Context, pair config.TablePair, message string, enabledFiles []string) []RetrievedChunk {
	exists, err := r.store.TableExists(ctx, pair.Table)
	if err != nil {
		r.logger.Warn("embedding table check failed",
			zap.String("table", pair.Table), zap.Error(err))
		return nil
	}
	if !exists {
		return nil
	}

	if r.llm.EmbeddingTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(r.llm.EmbeddingTimeoutSeconds)*time.Second)
		defer cancel()
	}
	vector, err := r.embedder.Embed(ctx, ai.EmbeddingConfig{
		BaseURL: r.llm.BaseURL,
		APIKey:  r.llm.APIKey,
		Model:   pair.EmbeddingModel,
	}, message)
	if err != nil {
		r.logger.Warn("query embedding failed",
			zap.String("embedding_model", pair.EmbeddingModel), zap.Error(err))
		return nil
	}

	rows, err := r.store.Query(ctx, pair.Table, enabledFiles, vector, r.topKPerModel)
	if err != nil {
		r.logger.Warn("embedding query failed",
			zap.String("table", pair.Table), zap.Error(err))
		return nil
	}

	chunks := make([]RetrievedChunk, 0, len(rows))
	for _, row := range rows {
		chunks = append(chunks, RetrievedChunk{
			Filename:       row.Filename,
			Text:           row.Text,
			Distance:       row.Distance,
			Table:          pair.Table,
			EmbeddingModel: pair.EmbeddingModel,
		})
	}
	return chunks
}

// merge flattens the per-pair results in configuration order, drops
// duplicate chunks, sorts by distance ascending with a stable sort, and
// caps the list at the overall top-k.
func (r *Retriever) merge(results [][]RetrievedChunk) []RetrievedChunk {
	seen := make(map[string]bool)
	var merged []RetrievedChunk
	for _, chunks := range results {
		for _, chunk := range chunks {
			key := dedupKey(chunk.Filename, chunk.Text)
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, chunk)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Distance < merged[j].Distance
	})

	if len(merged) > r.topKOverall {
		merged = merged[:r.topKOverall]
	}
	return merged
}

// dedupKey identifies a chunk by its filename and the first 1000 runes
// of its text, so the same passage indexed under several embedding
// models collapses to one hit.
func dedupKey(filename, text string) string {
	runes := []rune(text)
	if len(runes) > 1000 {
		runes = runes[:1000]
	}
	return filename + "\x00" + string(runes)
}
