package library

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"educel/internal/domain"
)

type stubItems struct {
	byID       map[uuid.UUID]domain.LearnItem
	expirySet  bool
	lastExpiry *time.Time
	expiryErr  error
	expanded   *domain.ExpandedContent
}

func (r *stubItems) GetByID(_ context.Context, _ uuid.UUID, id uuid.UUID) (domain.LearnItem, error) {
	item, ok := r.byID[id]
	if !ok {
		return domain.LearnItem{}, domain.ErrNotFound
	}
	return item, nil
}

func (r *stubItems) GetByTopic(_ context.Context, _ uuid.UUID, _ string) (domain.LearnItem, error) {
	return domain.LearnItem{}, domain.ErrNotFound
}

func (r *stubItems) ListRecent(_ context.Context, _ uuid.UUID, _ int) ([]domain.LearnItem, error) {
	return nil, nil
}

func (r *stubItems) Create(_ context.Context, item domain.LearnItem) (domain.LearnItem, error) {
	return item, nil
}

func (r *stubItems) UpsertByTopic(_ context.Context, item domain.LearnItem) (domain.LearnItem, error) {
	return item, nil
}

func (r *stubItems) SetExpandedContent(_ context.Context, _ uuid.UUID, id uuid.UUID, content domain.ExpandedContent, at time.Time) (domain.LearnItem, error) {
	item := r.byID[id]
	item.Expanded = &content
	item.ExpandedCreatedAt = &at
	r.byID[id] = item
	return item, nil
}

func (r *stubItems) SetExpiry(_ context.Context, _ uuid.UUID, _ uuid.UUID, expiresAt *time.Time) error {
	r.expirySet = true
	r.lastExpiry = expiresAt
	return r.expiryErr
}

type stubPlans struct {
	byID        map[uuid.UUID]domain.LessonPlan
	byLearnItem map[uuid.UUID]domain.LessonPlan
	created     *domain.LessonPlan
	createErr   error
}

func (r *stubPlans) Create(_ context.Context, plan domain.LessonPlan) (domain.LessonPlan, error) {
	if r.createErr != nil {
		return domain.LessonPlan{}, r.createErr
	}
	plan.ID = uuid.New()
	r.created = &plan
	return plan, nil
}

func (r *stubPlans) GetByID(_ context.Context, _ uuid.UUID, id uuid.UUID) (domain.LessonPlan, error) {
	plan, ok := r.byID[id]
	if !ok {
		return domain.LessonPlan{}, domain.ErrNotFound
	}
	return plan, nil
}

func (r *stubPlans) GetByLearnItem(_ context.Context, _ uuid.UUID, learnItemID uuid.UUID) (domain.LessonPlan, error) {
	plan, ok := r.byLearnItem[learnItemID]
	if !ok {
		return domain.LessonPlan{}, domain.ErrNotFound
	}
	return plan, nil
}

func (r *stubPlans) List(_ context.Context, _ uuid.UUID) ([]domain.LessonPlan, error) {
	return nil, nil
}

type stubSaved struct {
	created   []domain.SavedItem
	createErr error
	deleted   []domain.ItemType
	deleteErr error
}

func (r *stubSaved) Create(_ context.Context, item domain.SavedItem) (domain.SavedItem, error) {
	if r.createErr != nil {
		return domain.SavedItem{}, r.createErr
	}
	item.ID = uuid.New()
	r.created = append(r.created, item)
	return item, nil
}

func (r *stubSaved) Delete(_ context.Context, _ uuid.UUID, itemType domain.ItemType, _ uuid.UUID) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	r.deleted = append(r.deleted, itemType)
	return nil
}

func (r *stubSaved) List(_ context.Context, _ uuid.UUID) ([]domain.SavedItem, error) {
	return r.created, nil
}

type stubPrefs struct {
	prefs domain.UserPrefs
	err   error
}

func (r *stubPrefs) Get(_ context.Context, _ uuid.UUID) (domain.UserPrefs, error) {
	return r.prefs, r.err
}

func (r *stubPrefs) Upsert(_ context.Context, userID uuid.UUID, update domain.PrefsUpdate) (domain.UserPrefs, error) {
	prefs := r.prefs
	prefs.UserID = userID
	if update.Depth != nil {
		prefs.Depth = *update.Depth
	}
	if update.Theme != nil {
		prefs.Theme = *update.Theme
	}
	if update.PreferredTopics != nil {
		prefs.PreferredTopics = *update.PreferredTopics
	}
	return prefs, nil
}

type stubEvents struct {
	recorded  []domain.UserEvent
	seen      bool
	seenErr   error
	recordErr error
}

func (r *stubEvents) Record(_ context.Context, event domain.UserEvent) error {
	if r.recordErr != nil {
		return r.recordErr
	}
	r.recorded = append(r.recorded, event)
	return nil
}

func (r *stubEvents) HasContentView(_ context.Context, _, _ uuid.UUID, _ string) (bool, error) {
	return r.seen, r.seenErr
}

func (r *stubEvents) ListTopicEventsSince(_ context.Context, _ uuid.UUID, _ time.Time) ([]domain.UserEvent, error) {
	return nil, nil
}

type env struct {
	items  *stubItems
	plans  *stubPlans
	saved  *stubSaved
	prefs  *stubPrefs
	events *stubEvents
	svc    *Service
}

func newEnv() *env {
	e := &env{
		items:  &stubItems{byID: map[uuid.UUID]domain.LearnItem{}},
		plans:  &stubPlans{byID: map[uuid.UUID]domain.LessonPlan{}, byLearnItem: map[uuid.UUID]domain.LessonPlan{}},
		saved:  &stubSaved{},
		prefs:  &stubPrefs{err: domain.ErrNotFound},
		events: &stubEvents{},
	}
	e.svc = NewService(e.items, e.plans, e.saved, e.prefs, e.events, zerolog.Nop())
	return e
}

func TestSaveLearningClearsExpiry(t *testing.T) {
	e := newEnv()
	userID := uuid.New()
	itemID := uuid.New()
	expires := time.Now().Add(24 * time.Hour)
	e.items.byID[itemID] = domain.LearnItem{ID: itemID, UserID: userID, Topic: "deep work", ExpiresAt: &expires}

	saved, err := e.svc.Save(context.Background(), userID, domain.ItemLearning, itemID)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if saved.ItemType != domain.ItemLearning {
		t.Fatalf("вид элемента потерян: %s", saved.ItemType)
	}
	if !e.items.expirySet || e.items.lastExpiry != nil {
		t.Fatal("срок истечения должен быть снят")
	}
	if len(e.events.recorded) != 1 || e.events.recorded[0].EventType != domain.EventSaved {
		t.Fatal("ожидалось событие сохранения")
	}
	if e.events.recorded[0].Topic != "deep work" {
		t.Fatalf("тема события потеряна: %q", e.events.recorded[0].Topic)
	}
}

func TestSaveMissingItem(t *testing.T) {
	e := newEnv()
	_, err := e.svc.Save(context.Background(), uuid.New(), domain.ItemLearning, uuid.New())
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидалась ErrNotFound, получено %v", err)
	}
	if len(e.saved.created) != 0 {
		t.Fatal("закладка на отсутствующий элемент не должна создаваться")
	}
}

func TestSaveDuplicate(t *testing.T) {
	e := newEnv()
	itemID := uuid.New()
	e.items.byID[itemID] = domain.LearnItem{ID: itemID, Topic: "x"}
	e.saved.createErr = domain.ErrAlreadySaved

	_, err := e.svc.Save(context.Background(), uuid.New(), domain.ItemLearning, itemID)
	if !errors.Is(err, domain.ErrAlreadySaved) {
		t.Fatalf("ожидалась ErrAlreadySaved, получено %v", err)
	}
	if e.items.expirySet {
		t.Fatal("повторное сохранение не должно трогать срок истечения")
	}
}

func TestUnsaveLearningRestoresExpiry(t *testing.T) {
	e := newEnv()
	before := time.Now()

	if err := e.svc.Unsave(context.Background(), uuid.New(), domain.ItemLearning, uuid.New()); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if e.items.lastExpiry == nil {
		t.Fatal("срок истечения должен быть восстановлен")
	}
	horizon := e.items.lastExpiry.Sub(before.UTC())
	if horizon < domain.ExpiryHorizon-time.Minute || horizon > domain.ExpiryHorizon+time.Minute {
		t.Fatalf("срок должен быть 30 дней от текущего момента, получено %v", horizon)
	}
}

func TestUnsaveLessonPlanSkipsExpiry(t *testing.T) {
	e := newEnv()
	if err := e.svc.Unsave(context.Background(), uuid.New(), domain.ItemLessonPlan, uuid.New()); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if e.items.expirySet {
		t.Fatal("закладка плана не должна трогать сроки карточек")
	}
}

func TestCreateLessonPlanAutoSaves(t *testing.T) {
	e := newEnv()
	userID := uuid.New()

	result, err := e.svc.CreateLessonPlan(context.Background(), userID, domain.LessonPlan{
		Title: "Deep Work in a Week",
		Topic: "deep work",
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !result.Created || !result.AutoSaved {
		t.Fatalf("ожидалось создание с авто-сохранением: %+v", result)
	}
	if len(e.saved.created) != 1 || e.saved.created[0].ItemType != domain.ItemLessonPlan {
		t.Fatal("авто-сохранение должно создавать закладку плана")
	}
	if len(e.events.recorded) != 1 || e.events.recorded[0].EventType != domain.EventPlanGenerated {
		t.Fatal("ожидалось событие генерации плана")
	}
}

func TestCreateLessonPlanAutoSaveFailureIsSoft(t *testing.T) {
	e := newEnv()
	e.saved.createErr = errors.New("диск переполнен")

	result, err := e.svc.CreateLessonPlan(context.Background(), uuid.New(), domain.LessonPlan{Topic: "x"})
	if err != nil {
		t.Fatalf("сбой авто-сохранения не должен ронять создание: %v", err)
	}
	if result.AutoSaved {
		t.Fatal("неудачное авто-сохранение не должно отмечаться успехом")
	}
	if !result.Created {
		t.Fatal("план должен быть создан")
	}
}

func TestCreateLessonPlanIdempotentPerLearnItem(t *testing.T) {
	e := newEnv()
	userID := uuid.New()
	learnItemID := uuid.New()
	existing := domain.LessonPlan{ID: uuid.New(), UserID: userID, Topic: "deep work", LearnItemID: &learnItemID}
	e.plans.byLearnItem[learnItemID] = existing

	result, err := e.svc.CreateLessonPlan(context.Background(), userID, domain.LessonPlan{
		Topic:       "deep work",
		LearnItemID: &learnItemID,
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if result.Created {
		t.Fatal("повторный запрос должен вернуть прежний план")
	}
	if result.Plan.ID != existing.ID {
		t.Fatalf("ожидался прежний план %s, получен %s", existing.ID, result.Plan.ID)
	}
	if e.plans.created != nil {
		t.Fatal("новый план не должен создаваться")
	}
}

func TestExistingLessonPlanReportsAutoSaveFailure(t *testing.T) {
	e := newEnv()
	userID := uuid.New()
	learnItemID := uuid.New()
	existing := domain.LessonPlan{ID: uuid.New(), UserID: userID, Topic: "deep work", LearnItemID: &learnItemID}
	e.plans.byLearnItem[learnItemID] = existing
	e.saved.createErr = errors.New("хранилище закладок недоступно")

	result, err := e.svc.ExistingLessonPlan(context.Background(), userID, learnItemID)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if result.Plan.ID != existing.ID {
		t.Fatalf("ожидался прежний план %s, получен %s", existing.ID, result.Plan.ID)
	}
	if result.AutoSaved {
		t.Fatal("сбой авто-сохранения не должен выдаваться за успех")
	}
}

func TestSetExpandedContentOnce(t *testing.T) {
	e := newEnv()
	userID := uuid.New()
	itemID := uuid.New()
	e.items.byID[itemID] = domain.LearnItem{ID: itemID, UserID: userID}
	content := domain.ExpandedContent{Paragraphs: []string{"a", "b", "c"}, OneLineTakeaway: "t"}

	item, err := e.svc.SetExpandedContent(context.Background(), userID, itemID, content)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if item.Expanded == nil {
		t.Fatal("развёрнутая статья должна быть прикреплена")
	}

	_, err = e.svc.SetExpandedContent(context.Background(), userID, itemID, content)
	if !errors.Is(err, domain.ErrExpandedExists) {
		t.Fatalf("повторное расширение должно отклоняться, получено %v", err)
	}
}

func TestRecordEventContentViewDedup(t *testing.T) {
	e := newEnv()
	e.events.seen = true
	itemID := uuid.New()

	deduplicated, err := e.svc.RecordEvent(context.Background(), domain.UserEvent{
		UserID:      uuid.New(),
		EventType:   domain.EventContentViewed,
		LearnItemID: &itemID,
		Meta:        map[string]any{"session_id": "sess-1"},
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !deduplicated {
		t.Fatal("повторный просмотр должен дедуплицироваться")
	}
	if len(e.events.recorded) != 0 {
		t.Fatal("повторный просмотр не должен записываться")
	}
}

func TestRecordEventNoSessionNoDedup(t *testing.T) {
	e := newEnv()
	e.events.seen = true
	itemID := uuid.New()

	deduplicated, err := e.svc.RecordEvent(context.Background(), domain.UserEvent{
		UserID:      uuid.New(),
		EventType:   domain.EventContentViewed,
		LearnItemID: &itemID,
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if deduplicated {
		t.Fatal("без идентификатора сессии дедупликация не применяется")
	}
	if len(e.events.recorded) != 1 {
		t.Fatal("событие без сессии должно записываться")
	}
}

func TestRecordEventDedupCheckFailureIsSoft(t *testing.T) {
	e := newEnv()
	e.events.seenErr = errors.New("таймаут")
	itemID := uuid.New()

	deduplicated, err := e.svc.RecordEvent(context.Background(), domain.UserEvent{
		UserID:      uuid.New(),
		EventType:   domain.EventContentViewed,
		LearnItemID: &itemID,
		Meta:        map[string]any{"session_id": "sess-1"},
	})
	if err != nil {
		t.Fatalf("сбой проверки не должен ронять запись: %v", err)
	}
	if deduplicated {
		t.Fatal("при сбое проверки событие считается новым")
	}
}

func TestGetPrefsDefaults(t *testing.T) {
	e := newEnv()
	userID := uuid.New()

	prefs, err := e.svc.GetPrefs(context.Background(), userID)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if prefs.Depth != domain.DepthConcise || prefs.Theme != domain.ThemeAuto {
		t.Fatalf("ожидались значения по умолчанию: %+v", prefs)
	}
	if prefs.UserID != userID {
		t.Fatal("настройки по умолчанию должны принадлежать пользователю")
	}
}
