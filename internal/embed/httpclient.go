package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/bgconley/memento/internal/errors"
)

// httpClient is the shared transport every real provider uses: it applies
// the retry policy (spec §4.3) and the circuit breaker guard (spec §9)
// around a single JSON POST, and classifies the terminal error.
type httpClient struct {
	base    string
	apiKey  string
	client  *http.Client
	retry   RetryConfig
	breaker *apperrors.CircuitBreaker
}

func newHTTPClient(base, apiKey string, breaker *apperrors.CircuitBreaker) *httpClient {
	return &httpClient{
		base:    base,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		retry:   DefaultRetryConfig(),
		breaker: breaker,
	}
}

// postJSON POSTs body (already-marshaled JSON) to path and unmarshals a
// successful response into out. Non-2xx responses surface their body as
// the error message (spec §4.3); 429 and 5xx are retried by withRetry
// before that happens.
func (c *httpClient) postJSON(ctx context.Context, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return apperrors.Internal("marshal embedder request", err)
	}

	do := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(raw))
		if err != nil {
			return apperrors.Internal("build embedder request", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return retryable(apperrors.Unavailable("embedder request failed").WithDetail("cause", err.Error()))
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return apperrors.Internal("decode embedder response", err)
			}
			return nil
		}

		msg := fmt.Sprintf("embedder returned %d: %s", resp.StatusCode, string(respBody))
		if resp.StatusCode == http.StatusTooManyRequests {
			return retryable(apperrors.RateLimited(msg))
		}
		if resp.StatusCode >= 500 {
			return retryable(apperrors.Unavailable(msg))
		}
		return apperrors.Internal(msg, nil)
	}

	if c.breaker == nil {
		return withRetry(ctx, c.retry, do)
	}
	if !c.breaker.Allow() {
		return apperrors.Unavailable("embedder circuit breaker open")
	}
	err = withRetry(ctx, c.retry, do)
	if err != nil {
		c.breaker.RecordFailure()
		return err
	}
	c.breaker.RecordSuccess()
	return nil
}
