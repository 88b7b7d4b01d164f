package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"educel/internal/domain"
)

const (
	// maxAttempts — сколько раз мы просим модель, прежде чем сдаться.
	maxAttempts = 3
	// overallDeadline ограничивает всю цепочку попыток вместе с паузами.
	overallDeadline = 30 * time.Second

	backoffBase = time.Second
)

// StripFences убирает markdown-ограждения, которыми модель иногда
// оборачивает JSON, несмотря на инструкции.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

type attemptFunc func(ctx context.Context) (Payload, error)

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryGenerate выполняет попытки генерации с экспоненциальной паузой
// (1s, 2s, 4s) под общим дедлайном. Ошибки схемы и сети считаются
// временными, отсутствие ключа и отмена контекста — окончательными.
func retryGenerate(ctx context.Context, fn attemptFunc, sleep sleepFunc) (Payload, error) {
	ctx, cancel := context.WithTimeout(ctx, overallDeadline)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, backoffBase<<(attempt-1)); err != nil {
				return Payload{}, mapCtxErr(err, lastErr)
			}
		}
		payload, err := fn(ctx)
		if err == nil {
			return payload, nil
		}
		if errors.Is(err, domain.ErrNoCredentials) || errors.Is(err, domain.ErrUnknownGenerateType) {
			return Payload{}, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Payload{}, mapCtxErr(ctxErr, err)
		}
		lastErr = err
	}
	return Payload{}, fmt.Errorf("%w: %v", domain.ErrGenerationFailed, lastErr)
}

// mapCtxErr превращает срабатывание общего дедлайна в отдельную ошибку
// таймаута; отмена вызывающей стороной проходит как есть.
func mapCtxErr(ctxErr, lastErr error) error {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		if lastErr != nil {
			return fmt.Errorf("%w: последняя ошибка: %v", domain.ErrGenerationTimeout, lastErr)
		}
		return domain.ErrGenerationTimeout
	}
	return ctxErr
}
