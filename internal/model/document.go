package model

import "time"

const (
	ParsingStatusUnparsed = "Unparsed"
	ParsingStatusParsed   = "Parsed"
)

// Document is the metadata record for an uploaded file. The parsed text,
// the current chunking result, and the embedding state all live here;
// the embedding vectors themselves live in the per-model embedding tables
// keyed by Filename.
type Document struct {
	ID            string    `gorm:"size:36;primaryKey" json:"id"`
	Filename      string    `gorm:"size:256;not null;uniqueIndex" json:"filename"`
	Uploader      string    `gorm:"size:64;not null;index" json:"uploader"`
	Enabled       bool      `gorm:"not null;default:false" json:"enabled"`
	ParsingStatus string    `gorm:"size:32" json:"parsing_status"`
	Size          int64     `json:"size"`
	FilePath      string    `gorm:"size:512" json:"file_path"`
	ParserName    string    `gorm:"size:64" json:"parser_name"`
	ParsedText    string    `gorm:"type:text" json:"-"`
	SplitterName  string    `gorm:"size:64" json:"splitter_name"`
	Splits        string    `gorm:"type:text" json:"-"` // JSON array of chunks
	Embeddings    bool      `gorm:"not null;default:false" json:"has_embeddings"`
	EmbedModel    string    `gorm:"size:128;column:embeddings_model" json:"embeddings_model"`
	CreatedAt     time.Time `json:"created_at"`
}

// HasSplits reports whether a chunking result is stored.
func (d *Document) HasSplits() bool {
	return d.Splits != "" && d.Splits != "[]"
}
