// Package splitter turns parsed document text into overlapping chunks.
// Three interchangeable strategies are provided: structure-aware
// (headings and paragraphs), token-count windows, and semantic boundary
// detection backed by an embedding model.
package splitter

const (
	StrategyStructure = "structure"
	StrategyToken     = "token"
	StrategySemantic  = "semantic"
)

// Chunk is one text segment with strategy-specific positional metadata.
// Meta keys depend on the splitter that produced the chunk: the
// structure splitter sets section_index/chunk_index, the token splitter
// sets start_token/end_token, the semantic splitter sets nothing.
type Chunk struct {
	Text string `json:"text"`
	Meta Meta   `json:"meta,omitempty"`
}

type Meta map[string]int
