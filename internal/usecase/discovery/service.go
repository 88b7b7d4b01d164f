package discovery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"educel/internal/domain"
)

// EngagementWindow задаёт глубину анализа событий вовлечённости.
const EngagementWindow = 14 * 24 * time.Hour

// RecencyLimit задаёт число последних показов для списка избегаемых тем.
const RecencyLimit = 30

// Service считает персонализационные сигналы по событиям пользователя.
type Service struct {
	events domain.EventRepo
	recos  domain.RecoRepo
	log    zerolog.Logger
	now    func() time.Time
}

// NewService создаёт сервис персонализации.
func NewService(events domain.EventRepo, recos domain.RecoRepo, log zerolog.Logger) *Service {
	return &Service{events: events, recos: recos, log: log, now: time.Now}
}

// Hints содержит сигналы персонализации для построения промпта.
type Hints struct {
	Scores   map[string]int
	TopTopic string
	Avoid    []string
}

// Collect собирает сигналы персонализации. Все чтения best-effort:
// ошибка хранилища даёт пустые сигналы, а не ошибку запроса.
func (s *Service) Collect(ctx context.Context, userID uuid.UUID) Hints {
	scores, top := s.EngagementScores(ctx, userID)
	return Hints{
		Scores:   scores,
		TopTopic: top,
		Avoid:    s.RecentlyShown(ctx, userID),
	}
}

// EngagementScores возвращает взвешенные очки по нормализованным темам за окно
// и тему с максимумом очков. При равенстве выигрывает тема, встреченная раньше.
func (s *Service) EngagementScores(ctx context.Context, userID uuid.UUID) (map[string]int, string) {
	since := s.now().UTC().Add(-EngagementWindow)
	events, err := s.events.ListTopicEventsSince(ctx, userID, since)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID.String()).Msg("discovery: чтение событий не удалось, очки пустые")
		return map[string]int{}, ""
	}
	return ScoreEvents(events)
}

// ScoreEvents суммирует веса событий по нормализованным темам.
// Результат не зависит от порядка событий; топ-тема определяется
// первым появлением темы во входном срезе при строгом превышении очков.
func ScoreEvents(events []domain.UserEvent) (map[string]int, string) {
	scores := make(map[string]int)
	var order []string
	for _, event := range events {
		topic := domain.NormalizeTopic(event.Topic)
		if topic == "" {
			continue
		}
		if _, seen := scores[topic]; !seen {
			order = append(order, topic)
		}
		scores[topic] += domain.EventWeight(event.EventType)
	}

	top := ""
	best := 0
	for _, topic := range order {
		if scores[topic] > best {
			best = scores[topic]
			top = topic
		}
	}
	return scores, top
}

// RecentlyShown возвращает нормализованные темы последних показов,
// от свежих к старым, без повторов. Ошибка чтения даёт пустой список.
func (s *Service) RecentlyShown(ctx context.Context, userID uuid.UUID) []string {
	recos, err := s.recos.ListRecentRecommendations(ctx, userID, RecencyLimit)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID.String()).Msg("discovery: чтение показов не удалось, список пуст")
		return nil
	}
	seen := make(map[string]struct{}, len(recos))
	var topics []string
	for _, reco := range recos {
		topic := domain.NormalizeTopic(reco.Topic)
		if topic == "" {
			continue
		}
		if _, ok := seen[topic]; ok {
			continue
		}
		seen[topic] = struct{}{}
		topics = append(topics, topic)
	}
	return topics
}
