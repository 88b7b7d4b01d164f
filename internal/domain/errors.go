package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound возвращается при отсутствии запрошенной записи.
var ErrNotFound = errors.New("запись не найдена")

// ErrAlreadySaved возвращается при повторном сохранении элемента.
var ErrAlreadySaved = errors.New("элемент уже сохранён")

// ErrUnknownGenerateType возвращается при неизвестном типе генерации.
var ErrUnknownGenerateType = errors.New("неизвестный тип генерации")

// ErrGenerationFailed возвращается после исчерпания попыток генерации.
var ErrGenerationFailed = errors.New("генерация не удалась")

// ErrGenerationTimeout возвращается при превышении общего дедлайна генерации.
var ErrGenerationTimeout = errors.New("генерация превысила лимит времени")

// ErrExpandedExists возвращается при попытке перегенерировать развёрнутую статью.
var ErrExpandedExists = errors.New("развёрнутая статья уже создана")

// ErrNoCredentials возвращается, если у сервиса нет ключа модели.
var ErrNoCredentials = errors.New("отсутствует ключ API модели")

// RateLimitError сообщает о превышении лимита запросов.
type RateLimitError struct {
	Limit   int
	ResetAt time.Time
}

// Error реализует error.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("превышен лимит %d запросов, сброс %s", e.Limit, e.ResetAt.UTC().Format(time.RFC3339))
}
