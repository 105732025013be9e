package repository

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// EmbeddingTablePrefix namespaces the per-model embedding tables; table
// discovery for cascade deletes matches on it.
const EmbeddingTablePrefix = "document_embeddings_"

var validTableName = regexp.MustCompile(`^[a-z0-9_]+$`)

// RetrievalRow is one nearest-neighbor hit from a single embedding table.
type RetrievalRow struct {
	Filename string
	Text     string
	Distance float64
}

// TableError records a per-table failure during a cascade delete.
type TableError struct {
	Table string
	Err   error
}

// DeleteResult is the outcome of a cascade delete across all embedding
// tables: total rows removed and the tables that failed. A failure on
// one table never prevents cleanup on the rest.
type DeleteResult struct {
	Deleted  int64
	Failures []TableError
}

// EmbeddingRepository stores (filename, chunk text, vector) rows in one
// table per embedding model. Vectors within a table all come from that
// table's model, so their dimension is uniform per table.
type EmbeddingRepository struct {
	db *gorm.DB

	mu     sync.Mutex
	tables map[string]string // embedding model -> derived table name
}

func NewEmbeddingRepository(db *gorm.DB) *EmbeddingRepository {
	return &EmbeddingRepository{
		db:     db,
		tables: make(map[string]string),
	}
}

// TableNameForModel derives the table name for an embedding model:
// lowercase, with every character outside [a-z0-9] folded to '_'.
func TableNameForModel(embeddingModel string) string {
	var b strings.Builder
	b.WriteString(EmbeddingTablePrefix)
	for _, r := range strings.ToLower(embeddingModel) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// TableForModel returns the (cached) table name for an embedding model.
func (r *EmbeddingRepository) TableForModel(embeddingModel string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name, ok := r.tables[embeddingModel]; ok {
		return name
	}
	name := TableNameForModel(embeddingModel)
	r.tables[embeddingModel] = name
	return name
}

// EnsureTable creates the model's table if absent and returns its name.
// Safe to race: CREATE TABLE IF NOT EXISTS is idempotent.
func (r *EmbeddingRepository) EnsureTable(ctx context.Context, embeddingModel string) (string, error) {
	table := r.TableForModel(embeddingModel)
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id SERIAL PRIMARY KEY,
		filename TEXT,
		text TEXT,
		embedding VECTOR
	)`, table)
	if err := r.db.WithContext(ctx).Exec(stmt).Error; err != nil {
		return "", fmt.Errorf("create embedding table %s failed: %w", table, err)
	}
	return table, nil
}

// TableExists reports whether the named embedding table exists.
func (r *EmbeddingRepository) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := r.db.WithContext(ctx).Raw(`
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public' AND table_name = ?
		)`, table).Scan(&exists).Error
	if err != nil {
		return false, fmt.Errorf("check embedding table %s failed: %w", table, err)
	}
	return exists, nil
}

func (r *EmbeddingRepository) Write(ctx context.Context, table, filename, text string, vector []float32) error {
	if !validTableName.MatchString(table) {
		return fmt.Errorf("invalid embedding table name %q", table)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (filename, text, embedding) VALUES (?, ?, ?)", table)
	if err := r.db.WithContext(ctx).Exec(stmt, filename, text, pgvector.NewVector(vector)).Error; err != nil {
		return fmt.Errorf("write embedding to %s failed: %w", table, err)
	}
	return nil
}

// Query returns up to topK rows nearest to the query vector by L2
// distance, ascending, restricted to the filename allow-list.
func (r *EmbeddingRepository) Query(ctx context.Context, table string, filenames []string, vector []float32, topK int) ([]RetrievalRow, error) {
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid embedding table name %q", table)
	}
	if len(filenames) == 0 || topK <= 0 {
		return nil, nil
	}
	stmt := fmt.Sprintf(
		"SELECT filename, text, embedding <-> ? AS distance FROM %s WHERE filename = ANY(?) ORDER BY distance ASC LIMIT ?",
		table,
	)
	var rows []RetrievalRow
	err := r.db.WithContext(ctx).
		Raw(stmt, pgvector.NewVector(vector), pq.Array(filenames), topK).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query embedding table %s failed: %w", table, err)
	}
	return rows, nil
}

// ListTables discovers every embedding table, regardless of which model
// created it or when.
func (r *EmbeddingRepository) ListTables(ctx context.Context) ([]string, error) {
	var tables []string
	err := r.db.WithContext(ctx).Raw(`
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_name LIKE ?`,
		EmbeddingTablePrefix+"%").Scan(&tables).Error
	if err != nil {
		return nil, fmt.Errorf("list embedding tables failed: %w", err)
	}
	return tables, nil
}

// DeleteByFilename removes the document's rows from every embedding
// table, accumulating the deleted count and any per-table failures.
func (r *EmbeddingRepository) DeleteByFilename(ctx context.Context, filename string) (DeleteResult, error) {
	tables, err := r.ListTables(ctx)
	if err != nil {
		return DeleteResult{}, err
	}
	result := deleteAcrossTables(tables, func(table string) (int64, error) {
		if !validTableName.MatchString(table) {
			return 0, fmt.Errorf("invalid embedding table name %q", table)
		}
		res := r.db.WithContext(ctx).Exec(fmt.Sprintf("DELETE FROM %s WHERE filename = ?", table), filename)
		if res.Error != nil {
			return 0, res.Error
		}
		return res.RowsAffected, nil
	})
	return result, nil
}

// deleteAcrossTables folds a delete over the tables, accumulating the
// total and collecting failures instead of aborting on the first one.
func deleteAcrossTables(tables []string, del func(table string) (int64, error)) DeleteResult {
	var result DeleteResult
	for _, table := range tables {
		n, err := del(table)
		if err != nil {
			result.Failures = append(result.Failures, TableError{Table: table, Err: err})
			continue
		}
		result.Deleted += n
	}
	return result
}
