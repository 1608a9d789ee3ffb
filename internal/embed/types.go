// Package embed provides the uniform embedder contract (spec §4.3) over
// multiple providers — Voyage, Jina, an OpenAI-compatible endpoint, and a
// deterministic fake used by tests and EMBEDDER_USE_FAKE — plus the shared
// HTTP retry policy every real provider client applies.
package embed

import "context"

// InputType distinguishes a query embedding from a passage (document)
// embedding; several providers shape their request body differently for
// each (spec §4.3).
type InputType string

const (
	InputTypeQuery   InputType = "query"
	InputTypePassage InputType = "passage"
)

// Result is what Embed and the contextual variant return.
type Result struct {
	Vectors    [][]float32
	Dimensions int
	Provider   string
	Model      string
	TokensUsed *int
}

// Embedder is the uniform contract every provider client satisfies.
type Embedder interface {
	Embed(ctx context.Context, texts []string, inputType InputType) (Result, error)
	HealthCheck(ctx context.Context) error
	Provider() string
	Model() string
	Dimensions() int
}

// ContextualEmbedder is the optional capability (spec §4.3, §4.7) a
// provider/model may support: embedding every chunk of a document together
// so each vector carries whole-document context. Callers type-assert for
// this interface rather than branching on provider name.
type ContextualEmbedder interface {
	Embedder
	EmbedDocumentChunksContextual(ctx context.Context, chunks []string, inputType InputType) (Result, error)
}
