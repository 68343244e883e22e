package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/c360studio/agentbus/model"
)

// maxEmbeddingBatch is the largest number of inputs sent in a single
// embeddings request. Larger inputs are chunked and issued sequentially
// so the provider sees bounded request sizes.
const maxEmbeddingBatch = 512

// embeddingCapable combines the chat and embedding provider interfaces.
// A provider satisfies it by implementing both.
type embeddingCapable interface {
	Provider
	EmbeddingProvider
}

// SupportsEmbedding reports whether at least one available model in the
// embedding fallback chain is backed by an embedding-capable provider.
// Callers use this to skip semantic features rather than fail them.
func (c *Client) SupportsEmbedding() bool {
	chain := c.registry.GetAvailableFallbackChain(model.CapabilityEmbedding)
	for _, modelName := range chain {
		ep := c.registry.GetEndpoint(modelName)
		if ep == nil {
			continue
		}
		if _, ok := GetProvider(ep.Provider).(embeddingCapable); ok {
			return true
		}
	}
	return false
}

// Embed converts texts into embedding vectors, one per input, in input
// order. Inputs are chunked into batches of at most maxEmbeddingBatch and
// the batches are issued sequentially; a failed batch fails the whole call.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbeddingBatch {
		end := start + maxEmbeddingBatch
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch starting at %d: %w", start, err)
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

// EmbedOne embeds a single text.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vectors))
	}
	return vectors[0], nil
}

// embedBatch sends one batch through the embedding fallback chain.
func (c *Client) embedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	chain := c.registry.GetAvailableFallbackChain(model.CapabilityEmbedding)
	if len(chain) == 0 {
		return nil, fmt.Errorf("no models configured for capability embedding")
	}

	var lastErr error

	for _, modelName := range chain {
		ep := c.registry.GetEndpoint(modelName)
		if ep == nil {
			continue
		}

		if !c.registry.IsEndpointAvailable(modelName) {
			c.logger.Debug("Endpoint circuit open, skipping", "model", modelName)
			continue
		}

		provider, ok := GetProvider(ep.Provider).(embeddingCapable)
		if !ok {
			c.logger.Debug("Provider has no embedding support, skipping",
				"model", modelName, "provider", ep.Provider)
			continue
		}

		vectors, err := c.tryEmbedWithRetry(ctx, ep, provider, modelName, inputs)
		if err == nil {
			return vectors, nil
		}

		lastErr = err
		c.logger.Warn("Embedding endpoint failed, trying fallback",
			"model", modelName, "provider", ep.Provider, "error", err)

		if IsFatal(err) {
			return nil, err
		}
	}

	if lastErr == nil {
		return nil, fmt.Errorf("no embedding-capable providers available")
	}
	return nil, fmt.Errorf("all embedding endpoints failed: %w", lastErr)
}

// tryEmbedWithRetry attempts one batch against one endpoint with backoff.
func (c *Client) tryEmbedWithRetry(ctx context.Context, ep *model.EndpointConfig, provider embeddingCapable, modelName string, inputs []string) ([][]float32, error) {
	var lastErr error

	for attempt := 1; attempt <= c.retryConfig.MaxAttempts; attempt++ {
		vectors, err := c.doEmbedRequest(ctx, ep, provider, inputs)
		if err == nil {
			c.registry.MarkEndpointSuccess(modelName)
			return vectors, nil
		}

		lastErr = err

		if IsFatal(err) {
			return nil, err
		}

		if attempt < c.retryConfig.MaxAttempts {
			backoff := c.retryConfig.Backoff(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	c.registry.MarkEndpointFailure(modelName)
	return nil, lastErr
}

// doEmbedRequest executes a single HTTP request to the embeddings endpoint.
func (c *Client) doEmbedRequest(ctx context.Context, ep *model.EndpointConfig, provider embeddingCapable, inputs []string) ([][]float32, error) {
	url := provider.BuildEmbeddingURL(ep.URL)

	body, err := provider.BuildEmbeddingRequestBody(ep.Model, inputs)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build embedding request body: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	vectors, err := provider.ParseEmbeddingResponse(respBody)
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("parse embedding response: %w", err))
	}
	if len(vectors) != len(inputs) {
		return nil, NewTransientError(fmt.Errorf("expected %d embeddings, got %d", len(inputs), len(vectors)))
	}

	return vectors, nil
}
