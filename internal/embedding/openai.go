package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	openAIEmbeddingURL = "https://api.openai.com/v1/embeddings"
	model              = "text-embedding-3-small"

	// Dimensions matches the memory_records.embedding column.
	Dimensions = 1536

	maxResponseBytes = 8 << 20
)

type OpenAIClient struct {
	apiKey     string
	url        string
	httpClient *http.Client
}

func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:     apiKey,
		url:        openAIEmbeddingURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type embeddingRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed returns the embedding of text. The reply must carry exactly
// Dimensions values to fit the memory_records column.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: model, Input: text, Dimensions: Dimensions})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var result embeddingResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&result)
	switch {
	case resp.StatusCode != http.StatusOK && result.Error != nil:
		return nil, fmt.Errorf("embedding API returned status %d: %s", resp.StatusCode, result.Error.Message)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("embedding API returned status %d", resp.StatusCode)
	case decodeErr != nil:
		return nil, fmt.Errorf("decode embedding response: %w", decodeErr)
	case len(result.Data) == 0:
		return nil, errors.New("embedding API returned no data")
	}

	emb := result.Data[0].Embedding
	if len(emb) != Dimensions {
		return nil, fmt.Errorf("embedding API returned %d dimensions, want %d", len(emb), Dimensions)
	}
	return emb, nil
}
