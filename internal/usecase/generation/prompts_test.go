package generation

import (
	"errors"
	"strings"
	"testing"

	"educel/internal/domain"
)

func TestSystemPromptDepth(t *testing.T) {
	concise := SystemPrompt(domain.DepthConcise)
	deeper := SystemPrompt(domain.DepthDeeper)
	if concise == deeper {
		t.Fatal("глубина подачи должна менять системную инструкцию")
	}
	if !strings.Contains(concise, "valid JSON only") {
		t.Fatal("инструкция должна требовать чистый JSON")
	}
}

func TestUserPromptPersonalization(t *testing.T) {
	req := domain.GenerateRequest{
		Type:            domain.GenTopicOptions,
		PreferredTopics: []string{"productivity", "design"},
	}

	plain, err := UserPrompt(req, Personalization{})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if strings.Contains(plain, "engages most") || strings.Contains(plain, "recently shown") {
		t.Fatal("без сигналов подсказки не добавляются")
	}

	personalized, err := UserPrompt(req, Personalization{
		TopTopic: "deep work",
		Avoid:    []string{"sales", "deep work"},
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !strings.Contains(personalized, `"deep work"`) {
		t.Fatal("топ-тема должна попадать в промпт")
	}
	if !strings.Contains(personalized, "sales") {
		t.Fatal("список избегаемых тем должен попадать в промпт")
	}
}

func TestUserPromptLearnMoreContext(t *testing.T) {
	prior := &domain.LearnContent{Title: "Pomodoro Basics"}
	prompt, err := UserPrompt(domain.GenerateRequest{
		Type:      domain.GenLearnMore,
		Topic:     "pomodoro advanced",
		PriorItem: prior,
	}, Personalization{})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !strings.Contains(prompt, "Pomodoro Basics") {
		t.Fatal("продолжение должно ссылаться на прежнюю карточку")
	}
}

func TestUserPromptUnknownType(t *testing.T) {
	_, err := UserPrompt(domain.GenerateRequest{Type: "sonnet"}, Personalization{})
	if !errors.Is(err, domain.ErrUnknownGenerateType) {
		t.Fatalf("ожидалась ошибка неизвестного типа, получено %v", err)
	}
}
