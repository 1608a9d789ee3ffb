package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoyage_NonContextualPostsInputTypeDocument(t *testing.T) {
	var gotPath string
	var gotReq voyageEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(voyageEmbedResponse{Data: []voyageEmbedding{{Embedding: []float32{0.1, 0.2}, Index: 0}}})
	}))
	defer srv.Close()

	v := NewVoyage(srv.URL, "key", "voyage-3", 2, nil)
	res, err := v.Embed(context.Background(), []string{"hello"}, InputTypePassage)
	require.NoError(t, err)
	assert.Equal(t, "/v1/embeddings", gotPath)
	assert.Equal(t, "document", gotReq.InputType)
	assert.Equal(t, [][]float32{{0.1, 0.2}}, res.Vectors)
}

func TestVoyage_ContextualModelPostsContextualEndpoint(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		resp := voyageContextualResponse{}
		resp.Results = []struct {
			Embeddings []voyageEmbedding `json:"embeddings"`
		}{{Embeddings: []voyageEmbedding{{Embedding: []float32{1, 2}, Index: 1}, {Embedding: []float32{3, 4}, Index: 0}}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	v := NewVoyage(srv.URL, "key", "voyage-context-3", 2, nil)
	res, err := v.EmbedDocumentChunksContextual(context.Background(), []string{"a", "b"}, InputTypePassage)
	require.NoError(t, err)
	assert.Equal(t, "/v1/contextualizedembeddings", gotPath)
	// Index-based sort must reorder the out-of-order response.
	assert.Equal(t, [][]float32{{3, 4}, {1, 2}}, res.Vectors)
}

func TestVoyage_NonContextualModelRejectsContextualCall(t *testing.T) {
	v := NewVoyage("http://unused", "key", "voyage-3", 2, nil)
	_, err := v.EmbedDocumentChunksContextual(context.Background(), []string{"a"}, InputTypePassage)
	assert.Error(t, err)
}

func TestJina_TaskReflectsInputType(t *testing.T) {
	var gotReq jinaEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(jinaEmbedResponse{Data: []jinaEmbedding{{Embedding: []float32{0.5}, Index: 0}}})
	}))
	defer srv.Close()

	j := NewJina(srv.URL, "key", "jina-embeddings-v3", 1, nil)
	_, err := j.Embed(context.Background(), []string{"q"}, InputTypeQuery)
	require.NoError(t, err)
	assert.Equal(t, "retrieval.query", gotReq.Task)
	assert.False(t, gotReq.LateChunking)
}

func TestJina_ContextualSetsLateChunking(t *testing.T) {
	var gotReq jinaEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(jinaEmbedResponse{Data: []jinaEmbedding{{Embedding: []float32{0.5}, Index: 0}}})
	}))
	defer srv.Close()

	j := NewJina(srv.URL, "key", "jina-embeddings-v3", 1, nil)
	_, err := j.EmbedDocumentChunksContextual(context.Background(), []string{"c"}, InputTypePassage)
	require.NoError(t, err)
	assert.True(t, gotReq.LateChunking)
}

func TestOpenAICompat_PostsDimensions(t *testing.T) {
	var gotReq openAIEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(openAIEmbedResponse{Data: []openAIEmbedding{{Embedding: []float32{1, 2, 3}, Index: 0}}})
	}))
	defer srv.Close()

	o := NewOpenAICompat(srv.URL, "key", "text-embedding-3-small", 3, nil)
	res, err := o.Embed(context.Background(), []string{"x"}, InputTypePassage)
	require.NoError(t, err)
	require.NotNil(t, gotReq.Dimensions)
	assert.Equal(t, 3, *gotReq.Dimensions)
	assert.Equal(t, 3, res.Dimensions)
}

func TestHTTPClient_NonOKSurfacesBodyAsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad model name"))
	}))
	defer srv.Close()

	v := NewVoyage(srv.URL, "key", "voyage-3", 2, nil)
	_, err := v.Embed(context.Background(), []string{"x"}, InputTypePassage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad model name")
}

func TestHTTPClient_RetriesOn429ThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(voyageEmbedResponse{Data: []voyageEmbedding{{Embedding: []float32{1}, Index: 0}}})
	}))
	defer srv.Close()

	v := NewVoyage(srv.URL, "key", "voyage-3", 1, nil)
	res, err := v.Embed(context.Background(), []string{"x"}, InputTypePassage)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, [][]float32{{1}}, res.Vectors)
}
