package embed

import (
	"context"
	"sort"
	"strings"

	apperrors "github.com/bgconley/memento/internal/errors"
)

const voyageDefaultBase = "https://api.voyageai.com"

// Voyage implements the Voyage provider shape from spec §4.3: non-contextual
// models POST /v1/embeddings; voyage-context-* models POST
// /v1/contextualizedembeddings and support whole-document contextual
// embedding.
type Voyage struct {
	http     *httpClient
	model    string
	dims     int
	outDims  *int
}

func NewVoyage(baseURL, apiKey, model string, dims int, breaker *apperrors.CircuitBreaker) *Voyage {
	if baseURL == "" {
		baseURL = voyageDefaultBase
	}
	var outDims *int
	if dims > 0 {
		d := dims
		outDims = &d
	}
	return &Voyage{http: newHTTPClient(baseURL, apiKey, breaker), model: model, dims: dims, outDims: outDims}
}

func (v *Voyage) isContextualModel() bool { return strings.HasPrefix(v.model, "voyage-context-") }

type voyageEmbedRequest struct {
	Input           []string `json:"input"`
	Model           string   `json:"model"`
	InputType       string   `json:"input_type"`
	OutputDimension *int     `json:"output_dimension,omitempty"`
}

type voyageEmbedding struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type voyageEmbedResponse struct {
	Data  []voyageEmbedding `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func voyageInputType(t InputType) string {
	if t == InputTypeQuery {
		return "query"
	}
	return "document"
}

func (v *Voyage) Embed(ctx context.Context, texts []string, inputType InputType) (Result, error) {
	req := voyageEmbedRequest{Input: texts, Model: v.model, InputType: voyageInputType(inputType), OutputDimension: v.outDims}
	var resp voyageEmbedResponse
	if err := v.http.postJSON(ctx, "/v1/embeddings", req, &resp); err != nil {
		return Result{}, err
	}
	vectors := sortedByIndex(resp.Data)
	return v.result(vectors, resp.Usage.TotalTokens), nil
}

type voyageContextualRequest struct {
	Inputs          [][]string `json:"inputs"`
	Model           string     `json:"model"`
	InputType       string     `json:"input_type"`
	OutputDimension *int       `json:"output_dimension,omitempty"`
}

// voyageContextualResponse accommodates both documented response shapes
// (spec §4.3): results[0].embeddings, or nested data[].data[].embedding.
type voyageContextualResponse struct {
	Results []struct {
		Embeddings []voyageEmbedding `json:"embeddings"`
	} `json:"results"`
	Data []struct {
		Data []voyageEmbedding `json:"data"`
	} `json:"data"`
}

func (v *Voyage) EmbedDocumentChunksContextual(ctx context.Context, chunks []string, inputType InputType) (Result, error) {
	if !v.isContextualModel() {
		return Result{}, apperrors.Validation("model does not support contextual embedding").WithDetail("model", v.model)
	}
	req := voyageContextualRequest{Inputs: [][]string{chunks}, Model: v.model, InputType: voyageInputType(inputType), OutputDimension: v.outDims}
	var resp voyageContextualResponse
	if err := v.http.postJSON(ctx, "/v1/contextualizedembeddings", req, &resp); err != nil {
		return Result{}, err
	}

	var raw []voyageEmbedding
	if len(resp.Results) > 0 {
		raw = resp.Results[0].Embeddings
	} else if len(resp.Data) > 0 {
		raw = resp.Data[0].Data
	}
	if len(raw) == 0 {
		return Result{}, apperrors.Unavailable("contextual embedding response had no vectors")
	}
	vectors := sortedByIndex(raw)
	return v.result(vectors, 0), nil
}

func sortedByIndex(raw []voyageEmbedding) [][]float32 {
	sorted := append([]voyageEmbedding(nil), raw...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	out := make([][]float32, len(sorted))
	for i, e := range sorted {
		out[i] = e.Embedding
	}
	return out
}

func (v *Voyage) result(vectors [][]float32, tokens int) Result {
	dims := v.dims
	if dims == 0 && len(vectors) > 0 {
		dims = len(vectors[0])
	}
	r := Result{Vectors: vectors, Dimensions: dims, Provider: "voyage", Model: v.model}
	if tokens > 0 {
		r.TokensUsed = &tokens
	}
	return r
}

func (v *Voyage) HealthCheck(ctx context.Context) error {
	_, err := v.Embed(ctx, []string{"ping"}, InputTypeQuery)
	return err
}

func (v *Voyage) Provider() string { return "voyage" }
func (v *Voyage) Model() string    { return v.model }
func (v *Voyage) Dimensions() int  { return v.dims }

var (
	_ Embedder           = (*Voyage)(nil)
	_ ContextualEmbedder = (*Voyage)(nil)
)
