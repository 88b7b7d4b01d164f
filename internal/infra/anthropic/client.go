package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"educel/internal/infra/metrics"
)

const defaultBaseURL = "https://api.anthropic.com"

const apiVersion = "2023-06-01"

// Client выполняет запросы к Messages API.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

// NewClient создаёт клиента Anthropic.
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout + 5*time.Second}
	return &Client{http: httpClient, baseURL: baseURL, apiKey: apiKey}
}

// HasCredentials сообщает, задан ли ключ API.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// MessageRequest описывает тело запроса.
type MessageRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
}

// Message представляет сообщение в диалоге.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	// RoleUser сообщение пользователя.
	RoleUser = "user"
)

// ContentBlock содержит один блок ответа модели.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Usage описывает статистику использования токенов.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// MessageResponse описывает ответ модели.
type MessageResponse struct {
	Content []ContentBlock `json:"content"`
	Usage   *Usage         `json:"usage,omitempty"`
}

// FirstText возвращает первый текстовый блок ответа.
func (r MessageResponse) FirstText() (string, bool) {
	for _, block := range r.Content {
		if block.Type == "text" {
			return block.Text, true
		}
	}
	return "", false
}

// CreateMessage вызывает /v1/messages.
func (c *Client) CreateMessage(ctx context.Context, req MessageRequest) (MessageResponse, error) {
	if c.apiKey == "" {
		return MessageResponse{}, fmt.Errorf("anthropic: api key is empty")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return MessageResponse{}, fmt.Errorf("anthropic: marshal request: %w", err)
	}
	endpoint := c.baseURL + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return MessageResponse{}, fmt.Errorf("anthropic: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		metrics.ObserveNetworkRequest("anthropic", "messages", req.Model, start, err)
		return MessageResponse{}, fmt.Errorf("anthropic: do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveNetworkRequest("anthropic", "messages", req.Model, start, err)
		return MessageResponse{}, fmt.Errorf("anthropic: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		var apiErr apiErrorResponse
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Message != "" {
			err = fmt.Errorf("anthropic: %s", apiErr.Error.Message)
		} else {
			err = fmt.Errorf("anthropic: unexpected status %d", resp.StatusCode)
		}
		metrics.ObserveNetworkRequest("anthropic", "messages", req.Model, start, err)
		return MessageResponse{}, err
	}
	var message MessageResponse
	if err := json.Unmarshal(respBody, &message); err != nil {
		metrics.ObserveNetworkRequest("anthropic", "messages", req.Model, start, err)
		return MessageResponse{}, fmt.Errorf("anthropic: decode response: %w", err)
	}
	metrics.ObserveNetworkRequest("anthropic", "messages", req.Model, start, nil)
	if message.Usage != nil {
		metrics.ObserveLLMGeneration(req.Model, time.Since(start), message.Usage.InputTokens, message.Usage.OutputTokens)
	}
	return message, nil
}

type apiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}
