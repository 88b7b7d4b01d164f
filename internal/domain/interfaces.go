package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Generator выполняет один запрос к генеративной модели и возвращает сырой текст.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// RateLimitResult описывает итог проверки лимита.
type RateLimitResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RateLimiter проверяет лимит запросов по идентификатору.
type RateLimiter interface {
	Check(ctx context.Context, identifier string) (RateLimitResult, error)
}

// LearnItemRepo управляет карточками микро-обучения.
type LearnItemRepo interface {
	GetByID(ctx context.Context, userID, id uuid.UUID) (LearnItem, error)
	GetByTopic(ctx context.Context, userID uuid.UUID, topic string) (LearnItem, error)
	ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]LearnItem, error)
	Create(ctx context.Context, item LearnItem) (LearnItem, error)
	UpsertByTopic(ctx context.Context, item LearnItem) (LearnItem, error)
	SetExpandedContent(ctx context.Context, userID, id uuid.UUID, content ExpandedContent, at time.Time) (LearnItem, error)
	SetExpiry(ctx context.Context, userID, id uuid.UUID, expiresAt *time.Time) error
}

// LessonPlanRepo управляет планами занятий.
type LessonPlanRepo interface {
	Create(ctx context.Context, plan LessonPlan) (LessonPlan, error)
	GetByID(ctx context.Context, userID, id uuid.UUID) (LessonPlan, error)
	GetByLearnItem(ctx context.Context, userID, learnItemID uuid.UUID) (LessonPlan, error)
	List(ctx context.Context, userID uuid.UUID) ([]LessonPlan, error)
}

// SavedItemRepo управляет закладками пользователя.
type SavedItemRepo interface {
	Create(ctx context.Context, item SavedItem) (SavedItem, error)
	Delete(ctx context.Context, userID uuid.UUID, itemType ItemType, itemID uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID) ([]SavedItem, error)
}

// PrefsRepo управляет настройками пользователя.
type PrefsRepo interface {
	Get(ctx context.Context, userID uuid.UUID) (UserPrefs, error)
	Upsert(ctx context.Context, userID uuid.UUID, update PrefsUpdate) (UserPrefs, error)
}

// EventRepo управляет событиями вовлечённости.
type EventRepo interface {
	Record(ctx context.Context, event UserEvent) error
	HasContentView(ctx context.Context, userID, learnItemID uuid.UUID, sessionID string) (bool, error)
	ListTopicEventsSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]UserEvent, error)
}

// RecoRepo управляет кэшем предложений и журналом показов.
type RecoRepo interface {
	GetTopicOptionsCache(ctx context.Context, userID uuid.UUID) (TopicOptionsCache, error)
	UpsertTopicOptionsCache(ctx context.Context, cache TopicOptionsCache) error
	SaveHomeRecommendations(ctx context.Context, recos []HomeRecommendation) error
	ListRecentRecommendations(ctx context.Context, userID uuid.UUID, limit int) ([]HomeRecommendation, error)
}
