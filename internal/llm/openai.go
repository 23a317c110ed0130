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
	openAIChatURL = "https://api.openai.com/v1/chat/completions"
	chatModel     = "gpt-4o-mini"
)

type OpenAIClient struct {
	apiKey     string
	url        string
	httpClient *http.Client
}

func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:     apiKey,
		url:        openAIChatURL,
		httpClient: &http.Client{},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float32         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// complete asks for a JSON object reply and returns the first choice.
func (c *OpenAIClient) complete(ctx context.Context, messages []chatMessage, temp float32) (string, error) {
	var result chatResponse
	req := chatRequest{
		Model:          chatModel,
		Messages:       messages,
		Temperature:    temp,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	header := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := postJSON(ctx, c.httpClient, "openai", c.url, header, req, &result); err != nil {
		return "", err
	}
	if result.Error != nil {
		return "", fmt.Errorf("openai API error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", errors.New("openai API returned no choices")
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

func (c *OpenAIClient) Appraise(ctx context.Context, req domain.AppraisalRequest) (*domain.Appraisal, error) {
	messages := []chatMessage{
		{Role: "user", Content: buildAppraisalPrompt(req)},
	}

	result, err := c.complete(ctx, messages, 0)
	if err != nil {
		return nil, fmt.Errorf("appraise: %w", err)
	}
	return parseAppraisal(result)
}
