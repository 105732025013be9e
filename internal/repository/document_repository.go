package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"nimbus/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(doc *model.Document) error {
	if err := r.db.Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByFilename(filename string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("filename = ?", filename).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query document by filename failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) ListByUploader(uploader string) ([]model.Document, error) {
	var docs []model.Document
	if err := r.db.Where("uploader = ?", uploader).Order("created_at DESC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return docs, nil
}

// ListEnabledFilenames returns the filenames the uploader has switched on
// for retrieval.
func (r *DocumentRepository) ListEnabledFilenames(uploader string) ([]string, error) {
	var filenames []string
	if err := r.db.Model(&model.Document{}).
		Where("uploader = ? AND enabled = ?", uploader, true).
		Pluck("filename", &filenames).Error; err != nil {
		return nil, fmt.Errorf("list enabled filenames failed: %w", err)
	}
	return filenames, nil
}

// patchableColumns is the allow-list for metadata patches; anything else
// in the patch map is dropped.
var patchableColumns = map[string]bool{
	"enabled":          true,
	"parsing_status":   true,
	"size":             true,
	"file_path":        true,
	"embeddings":       true,
	"embeddings_model": true,
}

// UpdateMetadata applies an atomic partial update to a document's
// metadata columns.
func (r *DocumentRepository) UpdateMetadata(filename string, patch map[string]interface{}) error {
	filtered := make(map[string]interface{}, len(patch))
	for k, v := range patch {
		if patchableColumns[k] {
			filtered[k] = v
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	res := r.db.Model(&model.Document{}).Where("filename = ?", filename).Updates(filtered)
	if res.Error != nil {
		return fmt.Errorf("update document metadata failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update document metadata: %q not found", filename)
	}
	return nil
}

func (r *DocumentRepository) SetParsedText(filename, text, parserName string) error {
	res := r.db.Model(&model.Document{}).Where("filename = ?", filename).Updates(map[string]interface{}{
		"parsing_status": model.ParsingStatusParsed,
		"parser_name":    parserName,
		"parsed_text":    text,
	})
	if res.Error != nil {
		return fmt.Errorf("set parsed text failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("set parsed text: %q not found", filename)
	}
	return nil
}

// SetSplits overwrites the stored chunking result; only the most recent
// split is retained per document.
func (r *DocumentRepository) SetSplits(filename, splitsJSON, splitterName string) error {
	res := r.db.Model(&model.Document{}).Where("filename = ?", filename).Updates(map[string]interface{}{
		"splits":        splitsJSON,
		"splitter_name": splitterName,
	})
	if res.Error != nil {
		return fmt.Errorf("set splits failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("set splits: %q not found", filename)
	}
	return nil
}

func (r *DocumentRepository) DeleteByFilename(filename string) error {
	if err := r.db.Where("filename = ?", filename).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}
