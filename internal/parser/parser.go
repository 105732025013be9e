package parser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"nimbus/internal/pkg/pdfextract"
)

// Parser extracts plain text from one document format.
type Parser interface {
	Name() string
	Parse(r io.Reader) (string, error)
}

type pdfParser struct{}

func (pdfParser) Name() string { return "pdf" }

func (pdfParser) Parse(r io.Reader) (string, error) {
	return pdfextract.ExtractText(r)
}

type plainTextParser struct{}

func (plainTextParser) Name() string { return "text" }

func (plainTextParser) Parse(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read document failed: %w", err)
	}
	return string(data), nil
}

var registry = map[string]Parser{
	".pdf":      pdfParser{},
	".txt":      plainTextParser{},
	".md":       plainTextParser{},
	".markdown": plainTextParser{},
}

// ForFilename picks the parser for a filename by extension.
func ForFilename(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	p, ok := registry[ext]
	if !ok {
		return nil, fmt.Errorf("no parser for extension %q", ext)
	}
	return p, nil
}

// ParseFile opens the file and extracts its text with the parser that
// matches its extension.
func ParseFile(path string) (text, parserName string, err error) {
	p, err := ForFilename(path)
	if err != nil {
		return "", "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("open document failed: %w", err)
	}
	defer f.Close()

	text, err = p.Parse(f)
	if err != nil {
		return "", "", fmt.Errorf("parse document failed: %w", err)
	}
	return text, p.Name(), nil
}
