package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Harshitk-cp/tenet/internal/domain"
)

const (
	anthropicMessagesURL = "https://api.anthropic.com/v1/messages"
	anthropicModel       = "claude-3-5-haiku-20241022"
	anthropicVersion     = "2023-06-01"
)

type AnthropicClient struct {
	apiKey     string
	url        string
	httpClient *http.Client
}

func NewAnthropicClient(apiKey string) *AnthropicClient {
	return &AnthropicClient{
		apiKey:     apiKey,
		url:        anthropicMessagesURL,
		httpClient: &http.Client{},
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *AnthropicClient) complete(ctx context.Context, messages []anthropicMessage, maxTokens int) (string, error) {
	var result anthropicResponse
	header := map[string]string{"x-api-key": c.apiKey, "anthropic-version": anthropicVersion}
	req := anthropicRequest{Model: anthropicModel, MaxTokens: maxTokens, Messages: messages}
	if err := postJSON(ctx, c.httpClient, "anthropic", c.url, header, req, &result); err != nil {
		return "", err
	}
	if result.Error != nil {
		return "", fmt.Errorf("anthropic API error: %s", result.Error.Message)
	}
	for _, block := range result.Content {
		if block.Type == "text" {
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", errors.New("anthropic API returned no text content")
}

func (c *AnthropicClient) Appraise(ctx context.Context, req domain.AppraisalRequest) (*domain.Appraisal, error) {
	messages := []anthropicMessage{
		{Role: "user", Content: buildAppraisalPrompt(req)},
	}

	result, err := c.complete(ctx, messages, 1024)
	if err != nil {
		return nil, fmt.Errorf("appraise: %w", err)
	}
	return parseAppraisal(result)
}
