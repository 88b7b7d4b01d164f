package generator

import (
	"context"
	"fmt"

	"educel/internal/domain"
	"educel/internal/infra/anthropic"
)

const defaultMaxTokens = 2048

// Claude реализует domain.Generator поверх Messages API.
type Claude struct {
	client *anthropic.Client
	model  string
}

var _ domain.Generator = (*Claude)(nil)

// NewClaude создаёт генератор контента.
func NewClaude(client *anthropic.Client, model string) *Claude {
	return &Claude{client: client, model: model}
}

// HasCredentials сообщает, задан ли ключ API.
func (c *Claude) HasCredentials() bool {
	return c.client.HasCredentials()
}

// Generate реализует domain.Generator. Ответ без текстового блока —
// сбой попытки, он учитывается бюджетом повторов.
func (c *Claude) Generate(ctx context.Context, system, prompt string) (string, error) {
	if !c.client.HasCredentials() {
		return "", domain.ErrNoCredentials
	}

	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     c.model,
		MaxTokens: defaultMaxTokens,
		System:    system,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}

	text, ok := resp.FirstText()
	if !ok {
		return "", fmt.Errorf("anthropic: response has no text block")
	}
	return text, nil
}
