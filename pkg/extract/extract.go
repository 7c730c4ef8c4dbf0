// Package extract pulls functions and classes out of source text. The engine
// treats extraction as a pluggable collaborator; the built-in Heuristic covers
// languages without a dedicated parser.
package extract

// Entity is a single extracted function or class with its source span.
// Line numbers are 1-based and inclusive.
type Entity struct {
	Name      string `json:"name"`
	Code      string `json:"code"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// Extraction is the result of parsing one file
type Extraction struct {
	Functions []Entity          `json:"functions"`
	Classes   map[string]Entity `json:"classes"`
}

// Extractor parses source text into functions and classes
type Extractor interface {
	Extract(code string) (Extraction, error)
}
