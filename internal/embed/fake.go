package embed

import (
	"context"
	"crypto/sha256"
	"regexp"
	"sort"
	"strings"
)

// Fake is the deterministic embedder used by tests and the
// EMBEDDER_USE_FAKE configuration switch (spec §4.3): vectors are derived
// from SHA-256 of the lowercased, sorted, alphanumeric tokens of the text,
// mapped into [-1, 1] per byte.
type Fake struct {
	dims int
}

// NewFake constructs a deterministic embedder that always returns
// fixed-length vectors.
func NewFake(dims int) *Fake {
	if dims <= 0 {
		dims = 8
	}
	return &Fake{dims: dims}
}

var alnumTokenRe = regexp.MustCompile(`[a-z0-9]+`)

// fakeVector implements spec §4.3's deterministic fake algorithm.
func fakeVector(text string, dims int) []float32 {
	tokens := alnumTokenRe.FindAllString(strings.ToLower(text), -1)
	sort.Strings(tokens)
	canon := strings.Join(tokens, " ")
	sum := sha256.Sum256([]byte(canon))

	vec := make([]float32, dims)
	for i := 0; i < dims; i++ {
		b := sum[i%len(sum)]
		vec[i] = float32(int(b)-128) / 128.0
	}
	return vec
}

func (f *Fake) Embed(_ context.Context, texts []string, _ InputType) (Result, error) {
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = fakeVector(t, f.dims)
	}
	return Result{Vectors: vectors, Dimensions: f.dims, Provider: "fake", Model: "fake"}, nil
}

// EmbedDocumentChunksContextual embeds each chunk independently — the fake
// embedder has no real notion of whole-document context, but implements
// the capability so contextual-eligible tests can exercise that code path
// without a live provider.
func (f *Fake) EmbedDocumentChunksContextual(ctx context.Context, chunks []string, inputType InputType) (Result, error) {
	return f.Embed(ctx, chunks, inputType)
}

func (f *Fake) HealthCheck(context.Context) error { return nil }
func (f *Fake) Provider() string                  { return "fake" }
func (f *Fake) Model() string                     { return "fake" }
func (f *Fake) Dimensions() int                    { return f.dims }

var (
	_ Embedder           = (*Fake)(nil)
	_ ContextualEmbedder = (*Fake)(nil)
)
