package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wouteroostervld/kgrag/pkg/domain"
)

// DefaultMaxTriplesPerChunk bounds how many facts are requested per chunk.
const DefaultMaxTriplesPerChunk = 10

const extractionSystemPrompt = "You are a knowledge graph extractor. Return only JSONL format (one JSON object per line)."

// Extractor turns chunk text into knowledge graph triples using a Generator.
type Extractor struct {
	gen        Generator
	maxTriples int
}

// NewExtractor creates an extractor. maxTriples <= 0 uses DefaultMaxTriplesPerChunk.
func NewExtractor(gen Generator, maxTriples int) *Extractor {
	if maxTriples <= 0 {
		maxTriples = DefaultMaxTriplesPerChunk
	}
	return &Extractor{gen: gen, maxTriples: maxTriples}
}

// Extract asks the LLM for triples found in text.
// A response that contains no triples is not an error.
func (e *Extractor) Extract(ctx context.Context, text string) ([]domain.Triple, error) {
	response, err := e.gen.Generate(ctx, BuildExtractionPrompt(text, e.maxTriples), extractionSystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate triples: %w", err)
	}

	triples, err := ParseTriples(response)
	if err != nil {
		return nil, err
	}
	if len(triples) > e.maxTriples {
		triples = triples[:e.maxTriples]
	}
	return triples, nil
}

// BuildExtractionPrompt creates the extraction prompt for a single chunk.
func BuildExtractionPrompt(text string, maxTriples int) string {
	var sb strings.Builder

	sb.WriteString(`Some text is provided below. Extract up to `)
	sb.WriteString(fmt.Sprint(maxTriples))
	sb.WriteString(` knowledge triples from the text.

For each triple, output ONE JSON line with:
- subject: entity name
- subject_type: PERSON|PLACE|ORGANIZATION|EVENT|CONCEPT|OTHER
- relation: short verb phrase
- object: entity name
- object_type: PERSON|PLACE|ORGANIZATION|EVENT|CONCEPT|OTHER

Avoid stopwords. Use the language of the text for entity names.

Output ONLY JSONL format (one JSON object per line). No explanations, no markdown wrappers.

Example:
Text: Alice is Bob's mother.
{"subject": "Alice", "subject_type": "PERSON", "relation": "is mother of", "object": "Bob", "object_type": "PERSON"}

---

Text:
`)
	sb.WriteString(text)
	sb.WriteString("\n\n---\n\nOutput:\n")

	return sb.String()
}

// ParseTriples parses a JSONL (or JSON array) response into triples.
// Malformed lines are skipped; an error is returned only when nothing could be parsed.
func ParseTriples(response string) ([]domain.Triple, error) {
	response = stripMarkdownCodeFence(response)

	// Some models answer with a JSON array despite the instructions
	if strings.HasPrefix(response, "[") {
		var arr []domain.Triple
		if err := json.Unmarshal([]byte(response), &arr); err == nil {
			return normalizeTriples(arr), nil
		}
	}

	lines := strings.Split(response, "\n")
	var triples []domain.Triple
	var errors []string

	for lineNum, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimSuffix(line, ",")

		if line == "" || strings.HasPrefix(line, "`") {
			continue
		}
		if !strings.HasPrefix(line, "{") {
			continue
		}

		var parsed domain.Triple
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			errors = append(errors, fmt.Sprintf("line %d: %v", lineNum+1, err))
			continue
		}
		triples = append(triples, parsed)
	}

	triples = normalizeTriples(triples)

	if len(triples) > 0 {
		if len(errors) > 0 {
			slog.Debug("Skipped malformed triple lines", "parsed", len(triples), "skipped", len(errors))
		}
		return triples, nil
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("failed to parse JSONL: %s", strings.Join(errors[:min(5, len(errors))], "; "))
	}

	return nil, nil
}

// normalizeTriples trims fields and drops incomplete triples.
func normalizeTriples(in []domain.Triple) []domain.Triple {
	out := make([]domain.Triple, 0, len(in))
	for _, t := range in {
		t.Subject = strings.TrimSpace(t.Subject)
		t.Relation = strings.TrimSpace(t.Relation)
		t.Object = strings.TrimSpace(t.Object)
		t.SubjectType = strings.ToUpper(strings.TrimSpace(t.SubjectType))
		t.ObjectType = strings.ToUpper(strings.TrimSpace(t.ObjectType))
		if t.Subject == "" || t.Relation == "" || t.Object == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}

// stripMarkdownCodeFence removes markdown code fences from responses
// Handles: ```json\n...\n``` or ```\n...\n```
func stripMarkdownCodeFence(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		firstNewline := strings.Index(s, "\n")
		if firstNewline == -1 {
			return s // Malformed, return as-is
		}

		s = s[firstNewline+1:]
		if strings.HasSuffix(s, "```") {
			s = s[:len(s)-3]
		}

		s = strings.TrimSpace(s)
	}

	return s
}
