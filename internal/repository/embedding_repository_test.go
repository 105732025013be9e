package repository

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableNameForModel(t *testing.T) {
	cases := []struct {
		model string
		want  string
	}{
		{"nomic-embed-text", "document_embeddings_nomic_embed_text"},
		{"BGE-M3", "document_embeddings_bge_m3"},
		{"text-embedding-3.small", "document_embeddings_text_embedding_3_small"},
		{"plain", "document_embeddings_plain"},
		{"with space/slash", "document_embeddings_with_space_slash"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TableNameForModel(tc.model))
	}
}

func TestTableForModelCaches(t *testing.T) {
	repo := NewEmbeddingRepository(nil)
	first := repo.TableForModel("nomic-embed-text")
	second := repo.TableForModel("nomic-embed-text")
	assert.Equal(t, first, second)
	assert.Equal(t, "document_embeddings_nomic_embed_text", first)
}

func TestDeleteAcrossTablesContinuesPastFailures(t *testing.T) {
	tables := []string{"document_embeddings_a", "document_embeddings_b", "document_embeddings_c"}
	failing := errors.New("relation gone")

	result := deleteAcrossTables(tables, func(table string) (int64, error) {
		if table == "document_embeddings_b" {
			return 0, failing
		}
		return 3, nil
	})

	assert.Equal(t, int64(6), result.Deleted)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "document_embeddings_b", result.Failures[0].Table)
	assert.ErrorIs(t, result.Failures[0].Err, failing)
}

func TestDeleteAcrossTablesEmpty(t *testing.T) {
	result := deleteAcrossTables(nil, func(string) (int64, error) {
		t.Fatal("delete called with no tables")
		return 0, nil
	})
	assert.Zero(t, result.Deleted)
	assert.Empty(t, result.Failures)
}
