package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelRegistry(t *testing.T) {
	cfg := RAGConfig{
		ModelTableMap: "llama3:latest=document_embeddings_nomic_embed_text:nomic-embed-text|document_embeddings_all_minilm:all-minilm;mistral=document_embeddings_bge_m3:bge-m3",
	}

	registry := cfg.ModelRegistry()
	require.Len(t, registry, 2)

	pairs := registry["llama3:latest"]
	require.Len(t, pairs, 2)
	assert.Equal(t, "document_embeddings_nomic_embed_text", pairs[0].Table)
	assert.Equal(t, "nomic-embed-text", pairs[0].EmbeddingModel)
	assert.Equal(t, "document_embeddings_all_minilm", pairs[1].Table)
	assert.Equal(t, "all-minilm", pairs[1].EmbeddingModel)

	pairs = registry["mistral"]
	require.Len(t, pairs, 1)
	assert.Equal(t, "bge-m3", pairs[0].EmbeddingModel)
}

func TestModelRegistrySkipsMalformedEntries(t *testing.T) {
	cfg := RAGConfig{ModelTableMap: "no-equals-sign;model=tableonly;ok=t1:m1"}

	registry := cfg.ModelRegistry()
	require.Len(t, registry, 1)
	assert.Equal(t, []TablePair{{Table: "t1", EmbeddingModel: "m1"}}, registry["ok"])
}

func TestModelRegistryEmpty(t *testing.T) {
	cfg := RAGConfig{ModelTableMap: ""}
	assert.Empty(t, cfg.ModelRegistry())
}

func TestIsChatModel(t *testing.T) {
	cfg := RAGConfig{EmbeddingModels: "mxbai-embed-large,nomic-embed-text,all-minilm"}

	tests := []struct {
		model string
		want  bool
	}{
		{"llama3:latest", true},
		{"mistral:7b", true},
		{"nomic-embed-text", false},
		{"Nomic-Embed-Text:latest", false},
		{"all-minilm", false},
		{"some-embedder", false},       // embed heuristic
		{"llama3-embedding-fan", true}, // llama exemption
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.IsChatModel(tt.model), tt.model)
	}
}

func TestAllowedExtensionSet(t *testing.T) {
	cfg := UploadsConfig{AllowedExtensions: ".pdf, md,TXT,"}
	set := cfg.AllowedExtensionSet()
	assert.Equal(t, map[string]bool{".pdf": true, ".md": true, ".txt": true}, set)
}
