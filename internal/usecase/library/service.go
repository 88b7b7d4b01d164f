package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"educel/internal/domain"
)

// Service управляет жизненным циклом контента: закладки, сроки,
// планы занятий, развёрнутые статьи и события вовлечённости.
type Service struct {
	items  domain.LearnItemRepo
	plans  domain.LessonPlanRepo
	saved  domain.SavedItemRepo
	prefs  domain.PrefsRepo
	events domain.EventRepo
	log    zerolog.Logger
	now    func() time.Time
}

// NewService создаёт сервис жизненного цикла контента.
func NewService(
	items domain.LearnItemRepo,
	plans domain.LessonPlanRepo,
	saved domain.SavedItemRepo,
	prefs domain.PrefsRepo,
	events domain.EventRepo,
	log zerolog.Logger,
) *Service {
	return &Service{
		items:  items,
		plans:  plans,
		saved:  saved,
		prefs:  prefs,
		events: events,
		log:    log,
		now:    time.Now,
	}
}

// Save создаёт закладку. Для карточки дополнительно снимается срок
// истечения: сохранённый контент не должен протухать.
func (s *Service) Save(ctx context.Context, userID uuid.UUID, itemType domain.ItemType, itemID uuid.UUID) (domain.SavedItem, error) {
	topic, err := s.resolveTopic(ctx, userID, itemType, itemID)
	if err != nil {
		return domain.SavedItem{}, err
	}

	saved, err := s.saved.Create(ctx, domain.SavedItem{
		UserID:   userID,
		ItemType: itemType,
		ItemID:   itemID,
	})
	if err != nil {
		return domain.SavedItem{}, err
	}

	if itemType == domain.ItemLearning {
		if err := s.items.SetExpiry(ctx, userID, itemID, nil); err != nil {
			return domain.SavedItem{}, fmt.Errorf("снятие срока истечения: %w", err)
		}
	}

	s.recordEvent(ctx, domain.UserEvent{
		UserID:      userID,
		EventType:   domain.EventSaved,
		Topic:       topic,
		LearnItemID: learnItemRef(itemType, itemID),
	})
	return saved, nil
}

// Unsave удаляет закладку. Карточка при этом снова получает срок
// истечения в 30 дней от текущего момента.
func (s *Service) Unsave(ctx context.Context, userID uuid.UUID, itemType domain.ItemType, itemID uuid.UUID) error {
	if err := s.saved.Delete(ctx, userID, itemType, itemID); err != nil {
		return err
	}
	if itemType == domain.ItemLearning {
		expiresAt := domain.CalculateExpiresAt(s.now())
		if err := s.items.SetExpiry(ctx, userID, itemID, &expiresAt); err != nil {
			return fmt.Errorf("восстановление срока истечения: %w", err)
		}
	}
	return nil
}

// ListSaved возвращает закладки пользователя.
func (s *Service) ListSaved(ctx context.Context, userID uuid.UUID) ([]domain.SavedItem, error) {
	return s.saved.List(ctx, userID)
}

// PlanResult описывает итог создания плана занятий.
type PlanResult struct {
	Plan      domain.LessonPlan
	Created   bool
	AutoSaved bool
}

// CreateLessonPlan сохраняет план занятий и сразу пытается добавить его
// в закладки. Повторный запрос для той же карточки возвращает прежний
// план, а сбой авто-сохранения не отменяет создание.
func (s *Service) CreateLessonPlan(ctx context.Context, userID uuid.UUID, plan domain.LessonPlan) (PlanResult, error) {
	plan.UserID = userID
	if plan.LearnItemID != nil {
		result, err := s.ExistingLessonPlan(ctx, userID, *plan.LearnItemID)
		switch {
		case err == nil:
			return result, nil
		case !errors.Is(err, domain.ErrNotFound):
			return PlanResult{}, err
		}
	}

	created, err := s.plans.Create(ctx, plan)
	if err != nil {
		return PlanResult{}, err
	}

	autoSaved := s.autoSave(ctx, userID, created.ID)
	s.recordEvent(ctx, domain.UserEvent{
		UserID:    userID,
		EventType: domain.EventPlanGenerated,
		Topic:     created.Topic,
	})
	return PlanResult{Plan: created, Created: true, AutoSaved: autoSaved}, nil
}

// autoSave добавляет план в закладки. Уже существующая закладка —
// тоже успех, любой другой сбой только логируется.
func (s *Service) autoSave(ctx context.Context, userID, planID uuid.UUID) bool {
	_, err := s.saved.Create(ctx, domain.SavedItem{
		UserID:   userID,
		ItemType: domain.ItemLessonPlan,
		ItemID:   planID,
	})
	if err == nil || errors.Is(err, domain.ErrAlreadySaved) {
		return true
	}
	s.log.Warn().Err(err).Str("user_id", userID.String()).Msg("library: авто-сохранение плана не удалось")
	return false
}

// ExistingLessonPlan возвращает план карточки и повторяет попытку
// авто-сохранения, честно сообщая её исход.
func (s *Service) ExistingLessonPlan(ctx context.Context, userID, learnItemID uuid.UUID) (PlanResult, error) {
	existing, err := s.plans.GetByLearnItem(ctx, userID, learnItemID)
	if err != nil {
		return PlanResult{}, err
	}
	return PlanResult{Plan: existing, AutoSaved: s.autoSave(ctx, userID, existing.ID)}, nil
}

// GetLessonPlanByLearnItem возвращает план, созданный из карточки.
func (s *Service) GetLessonPlanByLearnItem(ctx context.Context, userID, learnItemID uuid.UUID) (domain.LessonPlan, error) {
	return s.plans.GetByLearnItem(ctx, userID, learnItemID)
}

// GetLessonPlan возвращает план занятий по идентификатору.
func (s *Service) GetLessonPlan(ctx context.Context, userID, id uuid.UUID) (domain.LessonPlan, error) {
	return s.plans.GetByID(ctx, userID, id)
}

// ListLessonPlans возвращает планы занятий пользователя.
func (s *Service) ListLessonPlans(ctx context.Context, userID uuid.UUID) ([]domain.LessonPlan, error) {
	return s.plans.List(ctx, userID)
}

// GetLearnItem возвращает карточку по идентификатору.
func (s *Service) GetLearnItem(ctx context.Context, userID, id uuid.UUID) (domain.LearnItem, error) {
	return s.items.GetByID(ctx, userID, id)
}

// CreateLearnItem сохраняет готовую карточку с обычным сроком истечения.
// Тема нормализуется, повторная тема перезаписывает старую запись.
func (s *Service) CreateLearnItem(ctx context.Context, userID uuid.UUID, topic string, sourceType domain.SourceType, content domain.LearnContent) (domain.LearnItem, error) {
	now := s.now().UTC()
	expiresAt := domain.CalculateExpiresAt(now)
	return s.items.UpsertByTopic(ctx, domain.LearnItem{
		UserID:     userID,
		Topic:      domain.NormalizeTopic(topic),
		SourceType: sourceType,
		Content:    content,
		CreatedAt:  now,
		ExpiresAt:  &expiresAt,
	})
}

// ListLearnItems возвращает последние карточки пользователя.
func (s *Service) ListLearnItems(ctx context.Context, userID uuid.UUID, limit int) ([]domain.LearnItem, error) {
	return s.items.ListRecent(ctx, userID, limit)
}

// SetExpandedContent прикрепляет развёрнутую статью к карточке.
// Операция одноразовая: повторная попытка отклоняется.
func (s *Service) SetExpandedContent(ctx context.Context, userID, id uuid.UUID, content domain.ExpandedContent) (domain.LearnItem, error) {
	item, err := s.items.GetByID(ctx, userID, id)
	if err != nil {
		return domain.LearnItem{}, err
	}
	if item.Expanded != nil {
		return domain.LearnItem{}, domain.ErrExpandedExists
	}
	return s.items.SetExpandedContent(ctx, userID, id, content, s.now().UTC())
}

// RecordEvent записывает событие вовлечённости. Повторный просмотр
// карточки в рамках одной клиентской сессии не записывается.
func (s *Service) RecordEvent(ctx context.Context, event domain.UserEvent) (deduplicated bool, err error) {
	if event.EventType == domain.EventContentViewed && event.LearnItemID != nil {
		if sid := event.SessionID(); sid != "" {
			seen, err := s.events.HasContentView(ctx, event.UserID, *event.LearnItemID, sid)
			if err != nil {
				s.log.Warn().Err(err).Str("user_id", event.UserID.String()).Msg("library: проверка повторного просмотра не удалась")
			} else if seen {
				return true, nil
			}
		}
	}
	return false, s.events.Record(ctx, event)
}

// GetPrefs возвращает настройки пользователя либо значения по умолчанию.
func (s *Service) GetPrefs(ctx context.Context, userID uuid.UUID) (domain.UserPrefs, error) {
	prefs, err := s.prefs.Get(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return defaultPrefs(userID), nil
	}
	if err != nil {
		return domain.UserPrefs{}, err
	}
	return prefs, nil
}

// UpdatePrefs применяет частичное обновление настроек.
func (s *Service) UpdatePrefs(ctx context.Context, userID uuid.UUID, update domain.PrefsUpdate) (domain.UserPrefs, error) {
	return s.prefs.Upsert(ctx, userID, update)
}

func defaultPrefs(userID uuid.UUID) domain.UserPrefs {
	return domain.UserPrefs{
		UserID: userID,
		Depth:  domain.DepthConcise,
		Theme:  domain.ThemeAuto,
	}
}

// resolveTopic проверяет существование элемента и возвращает его тему.
func (s *Service) resolveTopic(ctx context.Context, userID uuid.UUID, itemType domain.ItemType, itemID uuid.UUID) (string, error) {
	switch itemType {
	case domain.ItemLearning:
		item, err := s.items.GetByID(ctx, userID, itemID)
		if err != nil {
			return "", err
		}
		return item.Topic, nil
	case domain.ItemLessonPlan:
		plan, err := s.plans.GetByID(ctx, userID, itemID)
		if err != nil {
			return "", err
		}
		return plan.Topic, nil
	default:
		return "", fmt.Errorf("неизвестный вид элемента: %s", itemType)
	}
}

func (s *Service) recordEvent(ctx context.Context, event domain.UserEvent) {
	if err := s.events.Record(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("user_id", event.UserID.String()).Msg("library: запись события не удалась")
	}
}

func learnItemRef(itemType domain.ItemType, itemID uuid.UUID) *uuid.UUID {
	if itemType != domain.ItemLearning {
		return nil
	}
	id := itemID
	return &id
}
