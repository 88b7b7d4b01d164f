package generator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"educel/internal/domain"
	"educel/internal/infra/anthropic"
	"educel/internal/infra/metrics"
)

func newStubServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("неожиданный путь запроса: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func TestGenerateCountsTokensOnce(t *testing.T) {
	const model = "claude-test-tokens-once"
	srv := newStubServer(t, `{
		"content":[{"type":"text","text":"{\"ok\":true}"}],
		"usage":{"input_tokens":10,"output_tokens":5}
	}`)
	defer srv.Close()

	gen := NewClaude(anthropic.NewClient("key", srv.URL, time.Second), model)

	inputBefore := testutil.ToFloat64(metrics.LLMTokensTotal.WithLabelValues(model, "input"))
	outputBefore := testutil.ToFloat64(metrics.LLMTokensTotal.WithLabelValues(model, "output"))

	text, err := gen.Generate(context.Background(), "system", "prompt")
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if text != `{"ok":true}` {
		t.Fatalf("неожиданный текст ответа: %q", text)
	}

	if got := testutil.ToFloat64(metrics.LLMTokensTotal.WithLabelValues(model, "input")) - inputBefore; got != 10 {
		t.Fatalf("llm_tokens_total{type=input} = %v, ожидалось 10", got)
	}
	if got := testutil.ToFloat64(metrics.LLMTokensTotal.WithLabelValues(model, "output")) - outputBefore; got != 5 {
		t.Fatalf("llm_tokens_total{type=output} = %v, ожидалось 5", got)
	}
}

func TestGenerateNoTextBlock(t *testing.T) {
	srv := newStubServer(t, `{"content":[],"usage":{"input_tokens":1,"output_tokens":0}}`)
	defer srv.Close()

	gen := NewClaude(anthropic.NewClient("key", srv.URL, time.Second), "claude-test-empty")
	if _, err := gen.Generate(context.Background(), "system", "prompt"); err == nil {
		t.Fatal("ожидалась ошибка на ответ без текстового блока")
	}
}

func TestGenerateWithoutCredentials(t *testing.T) {
	gen := NewClaude(anthropic.NewClient("", "http://127.0.0.1:0", time.Second), "claude-test-nokey")
	_, err := gen.Generate(context.Background(), "system", "prompt")
	if !errors.Is(err, domain.ErrNoCredentials) {
		t.Fatalf("ожидалась ошибка отсутствия ключа, получено %v", err)
	}
}
