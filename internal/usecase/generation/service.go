package generation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"educel/internal/domain"
	"educel/internal/infra/metrics"
	"educel/internal/usecase/discovery"
)

// SuggestionTTL задаёт срок жизни кэша предложенных тем.
const SuggestionTTL = 10 * time.Minute

// HintSource отдаёт сигналы персонализации для промптов.
type HintSource interface {
	Collect(ctx context.Context, userID uuid.UUID) discovery.Hints
}

// Service — оркестратор генерации: лимиты, кэш предложений,
// промпты, попытки с паузами и проверка схемы ответа.
type Service struct {
	generator domain.Generator
	limiter   domain.RateLimiter
	recos     domain.RecoRepo
	events    domain.EventRepo
	items     domain.LearnItemRepo
	hints     HintSource
	log       zerolog.Logger
	now       func() time.Time
	sleep     sleepFunc
}

// NewService создаёт оркестратор генерации.
func NewService(
	generator domain.Generator,
	limiter domain.RateLimiter,
	recos domain.RecoRepo,
	events domain.EventRepo,
	items domain.LearnItemRepo,
	hints HintSource,
	log zerolog.Logger,
) *Service {
	return &Service{
		generator: generator,
		limiter:   limiter,
		recos:     recos,
		events:    events,
		items:     items,
		hints:     hints,
		log:       log,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Result — проверенный ответ генерации вместе со служебными метаданными.
type Result struct {
	Payload Payload
	Meta    domain.GenerateMeta
}

// Generate выполняет полный пайплайн для одного запроса генерации.
func (s *Service) Generate(ctx context.Context, userID uuid.UUID, req domain.GenerateRequest) (Result, error) {
	if err := s.checkLimit(ctx, userID); err != nil {
		return Result{}, err
	}
	if req.Depth == "" {
		req.Depth = domain.DepthConcise
	}

	if req.Type == domain.GenTopicOptions {
		if cached, ok := s.cachedSuggestions(ctx, userID); ok {
			metrics.IncGenerateRequest(string(req.Type), "cached")
			return cached, nil
		}
	}

	payload, err := s.generatePayload(ctx, userID, req)
	if err != nil {
		s.observeFailure(req.Type, err)
		return Result{}, err
	}

	result := Result{Payload: payload}
	s.applyFallbackSources(req, &result)
	if req.Type == domain.GenTopicOptions {
		s.storeSuggestions(ctx, userID, &result)
	}
	metrics.IncGenerateRequest(string(req.Type), "ok")
	return result, nil
}

// LearnItemResult — карточка из слоя дедупликации по (пользователь, тема).
type LearnItemResult struct {
	Item   domain.LearnItem
	Cached bool
	Meta   domain.GenerateMeta
}

// GetOrCreateLearnItem возвращает непросроченную карточку по теме либо
// генерирует новую и сохраняет её апсертом по (пользователь, тема),
// так что на пару приходится не больше одной живой строки.
func (s *Service) GetOrCreateLearnItem(ctx context.Context, userID uuid.UUID, topic string, source domain.SourceType, depth domain.Depth, prior *domain.LearnContent) (LearnItemResult, error) {
	normalized := domain.NormalizeTopic(topic)
	existing, err := s.items.GetByTopic(ctx, userID, normalized)
	switch {
	case err == nil && !existing.Expired(s.now()):
		return LearnItemResult{Item: existing, Cached: true, Meta: domain.GenerateMeta{Cached: true}}, nil
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		s.log.Warn().Err(err).Str("user_id", userID.String()).Msg("generation: чтение карточки не удалось, считаем промахом")
	}

	genType := domain.GenLearnItem
	if source == domain.SourceLearnMore {
		genType = domain.GenLearnMore
	}
	result, err := s.Generate(ctx, userID, domain.GenerateRequest{
		Type:      genType,
		Depth:     depth,
		Topic:     topic,
		PriorItem: prior,
	})
	if err != nil {
		return LearnItemResult{}, err
	}

	expiresAt := domain.CalculateExpiresAt(s.now())
	item := domain.LearnItem{
		UserID:     userID,
		Topic:      normalized,
		SourceType: source,
		Content:    *result.Payload.Learn,
		ExpiresAt:  &expiresAt,
	}
	saved, err := s.items.UpsertByTopic(ctx, item)
	if err != nil {
		return LearnItemResult{}, err
	}
	return LearnItemResult{Item: saved, Meta: result.Meta}, nil
}

// checkLimit проверяет лимит генераций. Сбой хранилища лимитов
// логируется и пропускает запрос: защита не должна ронять доступность.
func (s *Service) checkLimit(ctx context.Context, userID uuid.UUID) error {
	res, err := s.limiter.Check(ctx, userID.String())
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID.String()).Msg("generation: проверка лимита не удалась, пропускаем")
		return nil
	}
	if !res.Allowed {
		metrics.RateLimitRejections.Inc()
		return &domain.RateLimitError{Limit: res.Limit, ResetAt: res.ResetAt}
	}
	return nil
}

func (s *Service) generatePayload(ctx context.Context, userID uuid.UUID, req domain.GenerateRequest) (Payload, error) {
	var personalization Personalization
	if req.Type == domain.GenTopicOptions {
		hints := s.hints.Collect(ctx, userID)
		personalization = Personalization{TopTopic: hints.TopTopic, Avoid: hints.Avoid}
	}

	prompt, err := UserPrompt(req, personalization)
	if err != nil {
		return Payload{}, err
	}
	system := SystemPrompt(req.Depth)

	return retryGenerate(ctx, func(ctx context.Context) (Payload, error) {
		metrics.IncGenerateAttempt(string(req.Type))
		raw, err := s.generator.Generate(ctx, system, prompt)
		if err != nil {
			return Payload{}, err
		}
		return ValidatePayload(req.Type, []byte(StripFences(raw)))
	}, s.sleep)
}

// cachedSuggestions возвращает кэшированную тройку тем моложе SuggestionTTL.
// Ошибка чтения трактуется как промах.
func (s *Service) cachedSuggestions(ctx context.Context, userID uuid.UUID) (Result, bool) {
	cache, err := s.recos.GetTopicOptionsCache(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.Warn().Err(err).Str("user_id", userID.String()).Msg("generation: чтение кэша предложений не удалось, считаем промахом")
		}
		metrics.IncSuggestionCache(false)
		return Result{}, false
	}
	if len(cache.Options) == 0 || s.now().Sub(cache.CreatedAt) >= SuggestionTTL {
		metrics.IncSuggestionCache(false)
		return Result{}, false
	}
	metrics.IncSuggestionCache(true)
	return Result{
		Payload: Payload{TopicOptions: &domain.TopicOptions{Options: cache.Options}},
		Meta:    domain.GenerateMeta{SessionID: cache.SessionID, Cached: true},
	}, true
}

// storeSuggestions записывает свежую тройку тем в кэш и журнал показов.
// Все записи best-effort: успех генерации не зависит от них.
func (s *Service) storeSuggestions(ctx context.Context, userID uuid.UUID, result *Result) {
	options := result.Payload.TopicOptions.Options
	sessionID := uuid.New()
	now := s.now().UTC()
	result.Meta.SessionID = sessionID

	cache := domain.TopicOptionsCache{
		UserID:    userID,
		Options:   options,
		SessionID: sessionID,
		CreatedAt: now,
	}
	if err := s.recos.UpsertTopicOptionsCache(ctx, cache); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID.String()).Msg("generation: запись кэша предложений не удалась")
	}

	slots := []domain.Slot{domain.SlotA, domain.SlotB, domain.SlotC}
	recos := make([]domain.HomeRecommendation, 0, len(options))
	for i, option := range options {
		if i >= len(slots) {
			break
		}
		recos = append(recos, domain.HomeRecommendation{
			UserID:    userID,
			Topic:     option.Topic,
			Slot:      slots[i],
			SessionID: sessionID,
			CreatedAt: now,
		})
	}
	if err := s.recos.SaveHomeRecommendations(ctx, recos); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID.String()).Msg("generation: запись журнала показов не удалась")
	}

	event := domain.UserEvent{
		UserID:    userID,
		EventType: domain.EventRecoShown,
		Meta:      map[string]any{"session_id": sessionID.String()},
		CreatedAt: now,
	}
	if err := s.events.Record(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID.String()).Msg("generation: запись события показа не удалась")
	}
}

// applyFallbackSources подставляет источники из фиксированной таблицы,
// когда модель их не вернула, и помечает это в метаданных.
func (s *Service) applyFallbackSources(req domain.GenerateRequest, result *Result) {
	if req.Type != domain.GenLearnItem && req.Type != domain.GenLearnMore {
		return
	}
	if result.Payload.Learn == nil || len(result.Payload.Learn.Sources) > 0 {
		return
	}
	topic := req.Topic
	if topic == "" {
		topic = req.CustomTopic
	}
	result.Payload.Learn.Sources = ResolveFallbackSources(topic)
	result.Meta.UsedFallbackSources = true
}

func (s *Service) observeFailure(genType domain.GenerateType, err error) {
	outcome := "failed"
	if errors.Is(err, domain.ErrGenerationTimeout) {
		outcome = "timeout"
	}
	metrics.IncGenerateRequest(string(genType), outcome)
}
