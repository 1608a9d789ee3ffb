package embed

import (
	"context"

	apperrors "github.com/bgconley/memento/internal/errors"
)

// OpenAICompat implements spec §4.3's OpenAI-compatible provider shape:
// POST /embeddings with {input, model, dimensions?}. input_type has no
// equivalent in this wire shape, so it is accepted for contract uniformity
// and otherwise ignored.
type OpenAICompat struct {
	http  *httpClient
	model string
	dims  int
}

func NewOpenAICompat(baseURL, apiKey, model string, dims int, breaker *apperrors.CircuitBreaker) *OpenAICompat {
	return &OpenAICompat{http: newHTTPClient(baseURL, apiKey, breaker), model: model, dims: dims}
}

type openAIEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions *int     `json:"dimensions,omitempty"`
}

type openAIEmbedding struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type openAIEmbedResponse struct {
	Data  []openAIEmbedding `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (o *OpenAICompat) Embed(ctx context.Context, texts []string, _ InputType) (Result, error) {
	var dims *int
	if o.dims > 0 {
		d := o.dims
		dims = &d
	}
	req := openAIEmbedRequest{Input: texts, Model: o.model, Dimensions: dims}
	var resp openAIEmbedResponse
	if err := o.http.postJSON(ctx, "/embeddings", req, &resp); err != nil {
		return Result{}, err
	}
	vectors := make([][]float32, len(resp.Data))
	for _, e := range resp.Data {
		if e.Index < 0 || e.Index >= len(vectors) {
			return Result{}, apperrors.Unavailable("openai-compatible response index out of range")
		}
		vectors[e.Index] = e.Embedding
	}
	outDims := o.dims
	if outDims == 0 && len(vectors) > 0 {
		outDims = len(vectors[0])
	}
	r := Result{Vectors: vectors, Dimensions: outDims, Provider: "openai_compat", Model: o.model}
	if resp.Usage.TotalTokens > 0 {
		t := resp.Usage.TotalTokens
		r.TokensUsed = &t
	}
	return r, nil
}

func (o *OpenAICompat) HealthCheck(ctx context.Context) error {
	_, err := o.Embed(ctx, []string{"ping"}, InputTypeQuery)
	return err
}

func (o *OpenAICompat) Provider() string { return "openai_compat" }
func (o *OpenAICompat) Model() string    { return o.model }
func (o *OpenAICompat) Dimensions() int  { return o.dims }

var _ Embedder = (*OpenAICompat)(nil)
