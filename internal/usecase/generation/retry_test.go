package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"educel/internal/domain"
)

func TestStripFences(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
		{"```json\n{\"a\":1}", `{"a":1}`},
		{"", ""},
	}
	for _, c := range cases {
		if got := StripFences(c.in); got != c.want {
			t.Fatalf("StripFences(%q) = %q, ожидалось %q", c.in, got, c.want)
		}
	}
}

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	want := Payload{Clarify: &domain.ClarifyResponse{Question: "q"}}
	fn := func(_ context.Context) (Payload, error) {
		attempts++
		if attempts < 3 {
			return Payload{}, errors.New("временный сбой")
		}
		return want, nil
	}

	got, err := retryGenerate(context.Background(), fn, noSleep)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("ожидалось 3 попытки, было %d", attempts)
	}
	if got.Clarify == nil || got.Clarify.Question != "q" {
		t.Fatalf("вернулся не тот результат: %+v", got)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	fn := func(_ context.Context) (Payload, error) {
		attempts++
		return Payload{}, ErrSchemaMismatch
	}

	_, err := retryGenerate(context.Background(), fn, noSleep)
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("ожидалась ErrGenerationFailed, получено %v", err)
	}
	if attempts != 3 {
		t.Fatalf("ожидалось 3 попытки, было %d", attempts)
	}
}

func TestRetryBackoffSchedule(t *testing.T) {
	var pauses []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	}
	fn := func(_ context.Context) (Payload, error) {
		return Payload{}, errors.New("сбой")
	}

	_, _ = retryGenerate(context.Background(), fn, sleep)

	want := []time.Duration{time.Second, 2 * time.Second}
	if len(pauses) != len(want) {
		t.Fatalf("ожидалось %d пауз, было %d", len(want), len(pauses))
	}
	for i := range want {
		if pauses[i] != want[i] {
			t.Fatalf("пауза %d: ожидалось %v, получено %v", i, want[i], pauses[i])
		}
	}
}

func TestRetryTerminalErrors(t *testing.T) {
	for _, terminal := range []error{domain.ErrNoCredentials, domain.ErrUnknownGenerateType} {
		attempts := 0
		fn := func(_ context.Context) (Payload, error) {
			attempts++
			return Payload{}, terminal
		}
		_, err := retryGenerate(context.Background(), fn, noSleep)
		if !errors.Is(err, terminal) {
			t.Fatalf("ожидалась %v, получено %v", terminal, err)
		}
		if attempts != 1 {
			t.Fatalf("окончательная ошибка не должна повторяться, было %d попыток", attempts)
		}
	}
}

func TestRetryDeadlineBecomesTimeout(t *testing.T) {
	sleep := func(ctx context.Context, _ time.Duration) error {
		return context.DeadlineExceeded
	}
	fn := func(_ context.Context) (Payload, error) {
		return Payload{}, errors.New("сбой")
	}

	_, err := retryGenerate(context.Background(), fn, sleep)
	if !errors.Is(err, domain.ErrGenerationTimeout) {
		t.Fatalf("ожидалась ErrGenerationTimeout, получено %v", err)
	}
}

func TestRetryCancelPassesThrough(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fn := func(_ context.Context) (Payload, error) {
		cancel()
		return Payload{}, errors.New("сбой")
	}

	_, err := retryGenerate(ctx, fn, noSleep)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("отмена должна проходить как есть, получено %v", err)
	}
	if errors.Is(err, domain.ErrGenerationTimeout) {
		t.Fatal("отмена не должна превращаться в таймаут")
	}
}
