package embed

import (
	"context"

	apperrors "github.com/bgconley/memento/internal/errors"
)

const jinaDefaultBase = "https://api.jina.ai"

// Jina implements spec §4.3's Jina provider shape: POST /v1/embeddings with
// task retrieval.query|retrieval.passage; the contextual variant adds
// late_chunking: true to the same endpoint.
type Jina struct {
	http  *httpClient
	model string
	dims  int
}

func NewJina(baseURL, apiKey, model string, dims int, breaker *apperrors.CircuitBreaker) *Jina {
	if baseURL == "" {
		baseURL = jinaDefaultBase
	}
	return &Jina{http: newHTTPClient(baseURL, apiKey, breaker), model: model, dims: dims}
}

type jinaEmbedRequest struct {
	Input       []string `json:"input"`
	Model       string   `json:"model"`
	Task        string   `json:"task"`
	Dimensions  *int     `json:"dimensions,omitempty"`
	LateChunking bool    `json:"late_chunking,omitempty"`
}

type jinaEmbedding struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type jinaEmbedResponse struct {
	Data  []jinaEmbedding `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func jinaTask(t InputType) string {
	if t == InputTypeQuery {
		return "retrieval.query"
	}
	return "retrieval.passage"
}

func (j *Jina) dimsPtr() *int {
	if j.dims <= 0 {
		return nil
	}
	d := j.dims
	return &d
}

func (j *Jina) Embed(ctx context.Context, texts []string, inputType InputType) (Result, error) {
	req := jinaEmbedRequest{Input: texts, Model: j.model, Task: jinaTask(inputType), Dimensions: j.dimsPtr()}
	return j.do(ctx, req)
}

func (j *Jina) EmbedDocumentChunksContextual(ctx context.Context, chunks []string, inputType InputType) (Result, error) {
	req := jinaEmbedRequest{Input: chunks, Model: j.model, Task: jinaTask(inputType), Dimensions: j.dimsPtr(), LateChunking: true}
	return j.do(ctx, req)
}

func (j *Jina) do(ctx context.Context, req jinaEmbedRequest) (Result, error) {
	var resp jinaEmbedResponse
	if err := j.http.postJSON(ctx, "/v1/embeddings", req, &resp); err != nil {
		return Result{}, err
	}
	vectors := make([][]float32, len(resp.Data))
	for _, e := range resp.Data {
		if e.Index < 0 || e.Index >= len(vectors) {
			return Result{}, apperrors.Unavailable("jina response index out of range")
		}
		vectors[e.Index] = e.Embedding
	}
	dims := j.dims
	if dims == 0 && len(vectors) > 0 {
		dims = len(vectors[0])
	}
	r := Result{Vectors: vectors, Dimensions: dims, Provider: "jina", Model: j.model}
	if resp.Usage.TotalTokens > 0 {
		t := resp.Usage.TotalTokens
		r.TokensUsed = &t
	}
	return r, nil
}

func (j *Jina) HealthCheck(ctx context.Context) error {
	_, err := j.Embed(ctx, []string{"ping"}, InputTypeQuery)
	return err
}

func (j *Jina) Provider() string { return "jina" }
func (j *Jina) Model() string    { return j.model }
func (j *Jina) Dimensions() int  { return j.dims }

var (
	_ Embedder           = (*Jina)(nil)
	_ ContextualEmbedder = (*Jina)(nil)
)
