package domain

// SourceFileKey is the metadata key every stored node is tagged with.
// Cleanup of a document joins on this key only.
const SourceFileKey = "source_file"

// Chunk is a bounded text segment of one document version.
type Chunk struct {
	ID         string // Deterministic per (file, index, hash)
	SourceFile string // Originating filename (no directory)
	Index      int    // Position within the document, 0-based
	Text       string
}

// Triple is a subject-relation-object fact extracted from a chunk.
type Triple struct {
	Subject     string `json:"subject"`
	SubjectType string `json:"subject_type,omitempty"`
	Relation    string `json:"relation"`
	Object      string `json:"object"`
	ObjectType  string `json:"object_type,omitempty"`
}

// Document is a chunk ready for insertion: text, embedding and derived graph structure.
type Document struct {
	Chunk
	Embedding []float32
	Triples   []Triple
}

// Match is a retrieved chunk with its similarity score.
type Match struct {
	ChunkID    string
	SourceFile string
	Text       string
	Score      float64 // Higher is more similar
	Triples    []Triple
}

// StoreStats summarizes store contents.
type StoreStats struct {
	Chunks    int64
	Entities  int64
	Relations int64
}
