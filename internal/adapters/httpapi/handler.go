package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"educel/internal/domain"
	infrahttp "educel/internal/infra/http"
	"educel/internal/usecase/generation"
	"educel/internal/usecase/library"
)

// defaultListLimit применяется к спискам карточек без явного limit.
const defaultListLimit = 10

// Handler обслуживает JSON API приложения.
type Handler struct {
	gen        *generation.Service
	lib        *library.Service
	log        zerolog.Logger
	learnLimit int
}

// NewHandler создаёт обработчик API.
func NewHandler(gen *generation.Service, lib *library.Service, log zerolog.Logger, learnLimit int) *Handler {
	if learnLimit <= 0 {
		learnLimit = 100
	}
	return &Handler{gen: gen, lib: lib, log: log, learnLimit: learnLimit}
}

// Routes монтирует маршруты API на переданный роутер.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/generate", h.generate)

	r.Route("/learn", func(r chi.Router) {
		r.Get("/", h.listLearnItems)
		r.Post("/", h.createLearnItem)
		r.Post("/prefetch", h.prefetchLearnItem)
		r.Get("/{id}", h.getLearnItem)
		r.Patch("/{id}", h.expandLearnItem)
	})

	r.Route("/saved", func(r chi.Router) {
		r.Get("/", h.listSaved)
		r.Post("/", h.save)
		r.Delete("/", h.unsave)
	})

	r.Route("/lesson-plan", func(r chi.Router) {
		r.Get("/", h.listLessonPlans)
		r.Post("/", h.createLessonPlan)
		r.Get("/{id}", h.getLessonPlan)
	})

	r.Get("/prefs", h.getPrefs)
	r.Post("/prefs", h.updatePrefs)

	r.Post("/events", h.recordEvent)
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := infrahttp.UserID(r)
	if !ok {
		infrahttp.WriteError(w, http.StatusUnauthorized, "пользователь не аутентифицирован")
	}
	return userID, ok
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		infrahttp.WriteError(w, http.StatusBadRequest, "некорректное тело запроса")
		return false
	}
	return true
}

// writeDomainError переводит доменные ошибки в коды ответа.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var rle *domain.RateLimitError
	switch {
	case errors.As(err, &rle):
		infrahttp.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":    "превышен лимит генераций",
			"limit":    rle.Limit,
			"reset_at": rle.ResetAt.UTC().Format(time.RFC3339),
		})
	case errors.Is(err, domain.ErrNotFound):
		infrahttp.WriteError(w, http.StatusNotFound, "запись не найдена")
	case errors.Is(err, domain.ErrAlreadySaved):
		infrahttp.WriteError(w, http.StatusConflict, "элемент уже сохранён")
	case errors.Is(err, domain.ErrExpandedExists):
		infrahttp.WriteError(w, http.StatusConflict, "развёрнутая статья уже создана")
	case errors.Is(err, domain.ErrUnknownGenerateType):
		infrahttp.WriteError(w, http.StatusBadRequest, "неизвестный тип генерации")
	case errors.Is(err, domain.ErrGenerationTimeout):
		infrahttp.WriteError(w, http.StatusGatewayTimeout, "генерация превысила лимит времени")
	case errors.Is(err, domain.ErrGenerationFailed):
		infrahttp.WriteError(w, http.StatusBadGateway, "генерация не удалась")
	case errors.Is(err, domain.ErrNoCredentials):
		infrahttp.WriteError(w, http.StatusServiceUnavailable, "сервис генерации не настроен")
	default:
		h.log.Error().Err(err).Str("request_id", infrahttp.RequestID(r)).Str("path", r.URL.Path).Msg("api: внутренняя ошибка")
		infrahttp.WriteError(w, http.StatusInternalServerError, "внутренняя ошибка")
	}
}

func validDepth(depth domain.Depth) bool {
	return depth == "" || depth == domain.DepthConcise || depth == domain.DepthDeeper
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req domain.GenerateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Type == "" {
		infrahttp.WriteError(w, http.StatusBadRequest, "поле type обязательно")
		return
	}
	if !validDepth(req.Depth) {
		infrahttp.WriteError(w, http.StatusBadRequest, "недопустимое значение depth")
		return
	}
	if req.Type == domain.GenTopicOptions && len(req.PreferredTopics) == 0 {
		infrahttp.WriteError(w, http.StatusBadRequest, "для подбора тем нужны preferred_topics")
		return
	}

	result, err := h.gen.Generate(r.Context(), userID, req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	infrahttp.WriteJSON(w, http.StatusOK, map[string]any{
		"content": result.Payload.Value(),
		"meta":    result.Meta,
	})
}

type learnItemRequest struct {
	Topic      string               `json:"topic"`
	SourceType domain.SourceType    `json:"source_type"`
	Depth      domain.Depth         `json:"depth"`
	PriorItem  *domain.LearnContent `json:"prior_item,omitempty"`
	Content    json.RawMessage      `json:"content,omitempty"`
}

func (h *Handler) handleLearnItemRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req learnItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if domain.NormalizeTopic(req.Topic) == "" {
		infrahttp.WriteError(w, http.StatusBadRequest, "поле topic обязательно")
		return
	}
	if !validDepth(req.Depth) {
		infrahttp.WriteError(w, http.StatusBadRequest, "недопустимое значение depth")
		return
	}
	if req.SourceType == "" {
		req.SourceType = domain.SourceTopicChoice
	}

	// Клиент может прислать уже готовую карточку; тогда модель не вызывается.
	if len(req.Content) > 0 {
		payload, err := generation.ValidatePayload(domain.GenLearnItem, req.Content)
		if err != nil {
			infrahttp.WriteError(w, http.StatusBadRequest, "некорректное содержимое карточки")
			return
		}
		item, err := h.lib.CreateLearnItem(r.Context(), userID, req.Topic, req.SourceType, *payload.Learn)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		infrahttp.WriteJSON(w, http.StatusCreated, map[string]any{
			"item":   learnItemResponse(item),
			"cached": false,
			"meta":   domain.GenerateMeta{},
		})
		return
	}

	result, err := h.gen.GetOrCreateLearnItem(r.Context(), userID, req.Topic, req.SourceType, req.Depth, req.PriorItem)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.Cached {
		status = http.StatusOK
	}
	infrahttp.WriteJSON(w, status, map[string]any{
		"item":   learnItemResponse(result.Item),
		"cached": result.Cached,
		"meta":   result.Meta,
	})
}

func (h *Handler) createLearnItem(w http.ResponseWriter, r *http.Request) {
	h.handleLearnItemRequest(w, r)
}

func (h *Handler) prefetchLearnItem(w http.ResponseWriter, r *http.Request) {
	h.handleLearnItemRequest(w, r)
}

func (h *Handler) listLearnItems(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			n = defaultListLimit
		}
		if n > h.learnLimit {
			n = h.learnLimit
		}
		limit = n
	}
	items, err := h.lib.ListLearnItems(r.Context(), userID, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, learnItemResponse(item))
	}
	infrahttp.WriteJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (h *Handler) getLearnItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		infrahttp.WriteError(w, http.StatusBadRequest, "некорректный идентификатор")
		return
	}
	item, err := h.lib.GetLearnItem(r.Context(), userID, id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	infrahttp.WriteJSON(w, http.StatusOK, learnItemResponse(item))
}

// expandLearnItem прикрепляет развёрнутую статью к карточке.
// Повторный запрос отклоняется без обращения к модели.
func (h *Handler) expandLearnItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		infrahttp.WriteError(w, http.StatusBadRequest, "некорректный идентификатор")
		return
	}
	item, err := h.lib.GetLearnItem(r.Context(), userID, id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if item.Expanded != nil {
		h.writeDomainError(w, r, domain.ErrExpandedExists)
		return
	}

	result, err := h.gen.Generate(r.Context(), userID, domain.GenerateRequest{
		Type:      domain.GenExpandContent,
		Topic:     item.Topic,
		PriorItem: &item.Content,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	updated, err := h.lib.SetExpandedContent(r.Context(), userID, id, *result.Payload.Expanded)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	infrahttp.WriteJSON(w, http.StatusOK, learnItemResponse(updated))
}

type savedItemRequest struct {
	ItemType domain.ItemType `json:"item_type"`
	ItemID   uuid.UUID       `json:"item_id"`
}

func (req savedItemRequest) valid() bool {
	if req.ItemID == uuid.Nil {
		return false
	}
	return req.ItemType == domain.ItemLearning || req.ItemType == domain.ItemLessonPlan
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req savedItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !req.valid() {
		infrahttp.WriteError(w, http.StatusBadRequest, "нужны item_type и item_id")
		return
	}
	saved, err := h.lib.Save(r.Context(), userID, req.ItemType, req.ItemID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	infrahttp.WriteJSON(w, http.StatusCreated, savedItemResponse(saved))
}

func (h *Handler) unsave(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req savedItemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !req.valid() {
		infrahttp.WriteError(w, http.StatusBadRequest, "нужны item_type и item_id")
		return
	}
	if err := h.lib.Unsave(r.Context(), userID, req.ItemType, req.ItemID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	infrahttp.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listSaved(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	items, err := h.lib.ListSaved(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, savedItemResponse(item))
	}
	infrahttp.WriteJSON(w, http.StatusOK, map[string]any{"items": out})
}

type lessonPlanRequest struct {
	LearnItemID *uuid.UUID   `json:"learn_item_id,omitempty"`
	Topic       string       `json:"topic"`
	Depth       domain.Depth `json:"depth"`
}

// createLessonPlan генерирует многодневный план и сохраняет его.
// План для той же карточки не создаётся повторно.
func (h *Handler) createLessonPlan(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req lessonPlanRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !validDepth(req.Depth) {
		infrahttp.WriteError(w, http.StatusBadRequest, "недопустимое значение depth")
		return
	}

	topic := req.Topic
	var prior *domain.LearnContent
	if req.LearnItemID != nil {
		item, err := h.lib.GetLearnItem(r.Context(), userID, *req.LearnItemID)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		topic = item.Topic
		prior = &item.Content

		if existing, err := h.lib.ExistingLessonPlan(r.Context(), userID, *req.LearnItemID); err == nil {
			infrahttp.WriteJSON(w, http.StatusOK, map[string]any{
				"plan":       lessonPlanResponse(existing.Plan),
				"created":    false,
				"auto_saved": existing.AutoSaved,
			})
			return
		}
	}
	if domain.NormalizeTopic(topic) == "" {
		infrahttp.WriteError(w, http.StatusBadRequest, "нужна тема или карточка")
		return
	}

	result, err := h.gen.Generate(r.Context(), userID, domain.GenerateRequest{
		Type:      domain.GenLessonPlan,
		Topic:     topic,
		Depth:     req.Depth,
		PriorItem: prior,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	planResult, err := h.lib.CreateLessonPlan(r.Context(), userID, domain.LessonPlan{
		LearnItemID: req.LearnItemID,
		Title:       planTitle(topic),
		Topic:       domain.NormalizeTopic(topic),
		Content:     *result.Payload.LessonPlan,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	status := http.StatusCreated
	if !planResult.Created {
		status = http.StatusOK
	}
	infrahttp.WriteJSON(w, status, map[string]any{
		"plan":       lessonPlanResponse(planResult.Plan),
		"created":    planResult.Created,
		"auto_saved": planResult.AutoSaved,
	})
}

func (h *Handler) getLessonPlan(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		infrahttp.WriteError(w, http.StatusBadRequest, "некорректный идентификатор")
		return
	}
	plan, err := h.lib.GetLessonPlan(r.Context(), userID, id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	infrahttp.WriteJSON(w, http.StatusOK, lessonPlanResponse(plan))
}

func (h *Handler) listLessonPlans(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	if raw := r.URL.Query().Get("learn_item_id"); raw != "" {
		learnItemID, err := uuid.Parse(raw)
		if err != nil {
			infrahttp.WriteError(w, http.StatusBadRequest, "некорректный идентификатор")
			return
		}
		plan, err := h.lib.GetLessonPlanByLearnItem(r.Context(), userID, learnItemID)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		infrahttp.WriteJSON(w, http.StatusOK, lessonPlanResponse(plan))
		return
	}
	plans, err := h.lib.ListLessonPlans(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(plans))
	for _, plan := range plans {
		out = append(out, lessonPlanResponse(plan))
	}
	infrahttp.WriteJSON(w, http.StatusOK, map[string]any{"plans": out})
}

func (h *Handler) getPrefs(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	prefs, err := h.lib.GetPrefs(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	infrahttp.WriteJSON(w, http.StatusOK, prefsResponse(prefs))
}

func (h *Handler) updatePrefs(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var update domain.PrefsUpdate
	if !decodeBody(w, r, &update) {
		return
	}
	if update.Depth != nil && !validDepth(*update.Depth) {
		infrahttp.WriteError(w, http.StatusBadRequest, "недопустимое значение depth")
		return
	}
	if update.Theme != nil {
		switch *update.Theme {
		case domain.ThemeLight, domain.ThemeDark, domain.ThemeAuto:
		default:
			infrahttp.WriteError(w, http.StatusBadRequest, "недопустимое значение theme")
			return
		}
	}
	prefs, err := h.lib.UpdatePrefs(r.Context(), userID, update)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	infrahttp.WriteJSON(w, http.StatusOK, prefsResponse(prefs))
}

type eventRequest struct {
	EventType   domain.EventType `json:"event_type"`
	Topic       string           `json:"topic"`
	LearnItemID *uuid.UUID       `json:"learn_item_id,omitempty"`
	Slot        domain.Slot      `json:"slot,omitempty"`
	Meta        map[string]any   `json:"meta,omitempty"`
}

func (h *Handler) recordEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req eventRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.EventType == "" {
		infrahttp.WriteError(w, http.StatusBadRequest, "поле event_type обязательно")
		return
	}

	deduplicated, err := h.lib.RecordEvent(r.Context(), domain.UserEvent{
		UserID:      userID,
		EventType:   req.EventType,
		Topic:       req.Topic,
		LearnItemID: req.LearnItemID,
		Slot:        req.Slot,
		Meta:        req.Meta,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	infrahttp.WriteJSON(w, http.StatusAccepted, map[string]any{"deduplicated": deduplicated})
}
