package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"educel/internal/domain"
	"educel/internal/usecase/discovery"
)

type stubGenerator struct {
	responses []string
	err       error
	calls     int
	lastSys   string
	lastUser  string
}

func (g *stubGenerator) Generate(_ context.Context, system, prompt string) (string, error) {
	g.calls++
	g.lastSys = system
	g.lastUser = prompt
	if g.err != nil {
		return "", g.err
	}
	idx := g.calls - 1
	if idx >= len(g.responses) {
		idx = len(g.responses) - 1
	}
	return g.responses[idx], nil
}

type stubLimiter struct {
	result domain.RateLimitResult
	err    error
}

func (l *stubLimiter) Check(_ context.Context, _ string) (domain.RateLimitResult, error) {
	return l.result, l.err
}

type stubRecoRepo struct {
	cache      domain.TopicOptionsCache
	cacheErr   error
	upserted   *domain.TopicOptionsCache
	upsertErr  error
	savedRecos []domain.HomeRecommendation
	saveErr    error
	recent     []domain.HomeRecommendation
}

func (r *stubRecoRepo) GetTopicOptionsCache(_ context.Context, _ uuid.UUID) (domain.TopicOptionsCache, error) {
	return r.cache, r.cacheErr
}

func (r *stubRecoRepo) UpsertTopicOptionsCache(_ context.Context, cache domain.TopicOptionsCache) error {
	r.upserted = &cache
	return r.upsertErr
}

func (r *stubRecoRepo) SaveHomeRecommendations(_ context.Context, recos []domain.HomeRecommendation) error {
	r.savedRecos = recos
	return r.saveErr
}

func (r *stubRecoRepo) ListRecentRecommendations(_ context.Context, _ uuid.UUID, _ int) ([]domain.HomeRecommendation, error) {
	return r.recent, nil
}

type stubEventRepo struct {
	recorded []domain.UserEvent
	err      error
}

func (r *stubEventRepo) Record(_ context.Context, event domain.UserEvent) error {
	r.recorded = append(r.recorded, event)
	return r.err
}

func (r *stubEventRepo) HasContentView(_ context.Context, _, _ uuid.UUID, _ string) (bool, error) {
	return false, nil
}

func (r *stubEventRepo) ListTopicEventsSince(_ context.Context, _ uuid.UUID, _ time.Time) ([]domain.UserEvent, error) {
	return nil, nil
}

type stubItemRepo struct {
	byTopic    domain.LearnItem
	byTopicErr error
	upserted   *domain.LearnItem
	upsertErr  error
}

func (r *stubItemRepo) GetByID(_ context.Context, _, _ uuid.UUID) (domain.LearnItem, error) {
	return domain.LearnItem{}, domain.ErrNotFound
}

func (r *stubItemRepo) GetByTopic(_ context.Context, _ uuid.UUID, _ string) (domain.LearnItem, error) {
	return r.byTopic, r.byTopicErr
}

func (r *stubItemRepo) ListRecent(_ context.Context, _ uuid.UUID, _ int) ([]domain.LearnItem, error) {
	return nil, nil
}

func (r *stubItemRepo) Create(_ context.Context, item domain.LearnItem) (domain.LearnItem, error) {
	return item, nil
}

func (r *stubItemRepo) UpsertByTopic(_ context.Context, item domain.LearnItem) (domain.LearnItem, error) {
	r.upserted = &item
	if r.upsertErr != nil {
		return domain.LearnItem{}, r.upsertErr
	}
	item.ID = uuid.New()
	return item, nil
}

func (r *stubItemRepo) SetExpandedContent(_ context.Context, _, _ uuid.UUID, _ domain.ExpandedContent, _ time.Time) (domain.LearnItem, error) {
	return domain.LearnItem{}, nil
}

func (r *stubItemRepo) SetExpiry(_ context.Context, _, _ uuid.UUID, _ *time.Time) error {
	return nil
}

type stubHints struct {
	out   discovery.Hints
	calls int
}

func (h *stubHints) Collect(_ context.Context, _ uuid.UUID) discovery.Hints {
	h.calls++
	return h.out
}

type serviceEnv struct {
	gen     *stubGenerator
	limiter *stubLimiter
	recos   *stubRecoRepo
	events  *stubEventRepo
	items   *stubItemRepo
	hints   *stubHints
	svc     *Service
}

func newServiceEnv() *serviceEnv {
	env := &serviceEnv{
		gen:     &stubGenerator{responses: []string{"{}"}},
		limiter: &stubLimiter{result: domain.RateLimitResult{Allowed: true, Limit: 20, Remaining: 19}},
		recos:   &stubRecoRepo{cacheErr: domain.ErrNotFound},
		events:  &stubEventRepo{},
		items:   &stubItemRepo{byTopicErr: domain.ErrNotFound},
		hints:   &stubHints{},
	}
	env.svc = NewService(env.gen, env.limiter, env.recos, env.events, env.items, env.hints, zerolog.Nop())
	env.svc.sleep = noSleep
	return env
}

const topicOptionsJSON = `{"options":[
	{"topic":"Deep Work","hook":"Focus is rare"},
	{"topic":"Negotiation","hook":"Everything is negotiable"},
	{"topic":"Spaced Repetition","hook":"Forget less"}
]}`

func TestGenerateTopicOptionsFresh(t *testing.T) {
	env := newServiceEnv()
	env.gen.responses = []string{"```json\n" + topicOptionsJSON + "\n```"}
	userID := uuid.New()

	result, err := env.svc.Generate(context.Background(), userID, domain.GenerateRequest{
		Type:            domain.GenTopicOptions,
		PreferredTopics: []string{"productivity"},
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if result.Payload.TopicOptions == nil || len(result.Payload.TopicOptions.Options) != 3 {
		t.Fatal("ожидалась тройка тем")
	}
	if result.Meta.Cached {
		t.Fatal("свежая генерация не должна помечаться как кэш")
	}
	if result.Meta.SessionID == uuid.Nil {
		t.Fatal("сессия показа должна быть создана")
	}
	if env.hints.calls != 1 {
		t.Fatal("персонализация должна вызываться при промахе кэша")
	}
	if env.recos.upserted == nil || env.recos.upserted.SessionID != result.Meta.SessionID {
		t.Fatal("кэш предложений должен быть перезаписан с новой сессией")
	}
	if len(env.recos.savedRecos) != 3 {
		t.Fatalf("ожидалось 3 записи показов, получено %d", len(env.recos.savedRecos))
	}
	wantSlots := []domain.Slot{domain.SlotA, domain.SlotB, domain.SlotC}
	for i, reco := range env.recos.savedRecos {
		if reco.Slot != wantSlots[i] {
			t.Fatalf("слот %d: ожидался %s, получен %s", i, wantSlots[i], reco.Slot)
		}
	}
	if len(env.events.recorded) != 1 || env.events.recorded[0].EventType != domain.EventRecoShown {
		t.Fatal("ожидалось событие показа рекомендаций")
	}
}

func TestGenerateTopicOptionsCacheHit(t *testing.T) {
	env := newServiceEnv()
	sessionID := uuid.New()
	env.recos.cacheErr = nil
	env.recos.cache = domain.TopicOptionsCache{
		UserID:    uuid.New(),
		Options:   []domain.TopicOption{{Topic: "a", Hook: "b"}, {Topic: "c", Hook: "d"}, {Topic: "e", Hook: "f"}},
		SessionID: sessionID,
		CreatedAt: time.Now().Add(-time.Minute),
	}

	result, err := env.svc.Generate(context.Background(), uuid.New(), domain.GenerateRequest{Type: domain.GenTopicOptions})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !result.Meta.Cached || result.Meta.SessionID != sessionID {
		t.Fatalf("ожидался кэшированный ответ с прежней сессией: %+v", result.Meta)
	}
	if env.gen.calls != 0 {
		t.Fatal("кэш-хит не должен вызывать модель")
	}
	if env.hints.calls != 0 {
		t.Fatal("кэш-хит не должен считать персонализацию")
	}
}

func TestGenerateTopicOptionsStaleCache(t *testing.T) {
	env := newServiceEnv()
	env.gen.responses = []string{topicOptionsJSON}
	env.recos.cacheErr = nil
	env.recos.cache = domain.TopicOptionsCache{
		Options:   []domain.TopicOption{{Topic: "a", Hook: "b"}},
		SessionID: uuid.New(),
		CreatedAt: time.Now().Add(-11 * time.Minute),
	}

	result, err := env.svc.Generate(context.Background(), uuid.New(), domain.GenerateRequest{Type: domain.GenTopicOptions})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if result.Meta.Cached {
		t.Fatal("протухший кэш должен вести к свежей генерации")
	}
	if env.gen.calls == 0 {
		t.Fatal("модель должна вызываться при протухшем кэше")
	}
}

func TestGenerateRateLimited(t *testing.T) {
	env := newServiceEnv()
	resetAt := time.Now().Add(30 * time.Minute)
	env.limiter.result = domain.RateLimitResult{Allowed: false, Limit: 20, ResetAt: resetAt}

	_, err := env.svc.Generate(context.Background(), uuid.New(), domain.GenerateRequest{Type: domain.GenLearnItem, Topic: "x"})
	var rle *domain.RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("ожидалась RateLimitError, получено %v", err)
	}
	if rle.Limit != 20 || !rle.ResetAt.Equal(resetAt) {
		t.Fatalf("детали лимита потеряны: %+v", rle)
	}
	if env.gen.calls != 0 {
		t.Fatal("отклонённый запрос не должен вызывать модель")
	}
}

func TestGenerateLimiterFailureIsOpen(t *testing.T) {
	env := newServiceEnv()
	env.limiter.err = errors.New("redis down")
	env.gen.responses = []string{`{"question":"q","options":["a","b","c"]}`}

	_, err := env.svc.Generate(context.Background(), uuid.New(), domain.GenerateRequest{Type: domain.GenClarifyTopic, Topic: "x"})
	if err != nil {
		t.Fatalf("сбой лимитера не должен ронять запрос: %v", err)
	}
}

func TestGenerateFallbackSources(t *testing.T) {
	env := newServiceEnv()
	env.gen.responses = []string{`{
		"title":"t","hook":"h","bullets":["a","b","c"],
		"example":"e","micro_action":"m","quiz_question":"q","quiz_answer":"a"
	}`}

	result, err := env.svc.Generate(context.Background(), uuid.New(), domain.GenerateRequest{
		Type:  domain.GenLearnItem,
		Topic: "negotiation tactics",
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !result.Meta.UsedFallbackSources {
		t.Fatal("подстановка источников должна помечаться в метаданных")
	}
	if len(result.Payload.Learn.Sources) == 0 {
		t.Fatal("источники должны быть подставлены из таблицы")
	}
}

func TestGenerateModelSourcesKept(t *testing.T) {
	env := newServiceEnv()
	env.gen.responses = []string{validLearnJSON()}

	result, err := env.svc.Generate(context.Background(), uuid.New(), domain.GenerateRequest{
		Type:  domain.GenLearnItem,
		Topic: "deep work",
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if result.Meta.UsedFallbackSources {
		t.Fatal("источники модели не должны помечаться как подстановка")
	}
	if result.Payload.Learn.Sources[0].URL != "https://fs.blog/deep-work/" {
		t.Fatalf("источники модели потеряны: %+v", result.Payload.Learn.Sources)
	}
}

func TestGenerateRetriesInvalidPayload(t *testing.T) {
	env := newServiceEnv()
	env.gen.responses = []string{"not json at all", `{"question":"q","options":["a","b","c"]}`}

	result, err := env.svc.Generate(context.Background(), uuid.New(), domain.GenerateRequest{Type: domain.GenClarifyTopic, Topic: "x"})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if env.gen.calls != 2 {
		t.Fatalf("ожидалось 2 вызова модели, было %d", env.gen.calls)
	}
	if result.Payload.Clarify == nil {
		t.Fatal("ожидался уточняющий вопрос")
	}
}

func TestGenerateExhaustedIsFailed(t *testing.T) {
	env := newServiceEnv()
	env.gen.responses = []string{"still not json"}

	_, err := env.svc.Generate(context.Background(), uuid.New(), domain.GenerateRequest{Type: domain.GenClarifyTopic, Topic: "x"})
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Fatalf("ожидалась ErrGenerationFailed, получено %v", err)
	}
	if env.gen.calls != 3 {
		t.Fatalf("ожидалось 3 попытки, было %d", env.gen.calls)
	}
}

func TestGenerateCacheWriteFailureIgnored(t *testing.T) {
	env := newServiceEnv()
	env.gen.responses = []string{topicOptionsJSON}
	env.recos.upsertErr = errors.New("диск переполнен")
	env.recos.saveErr = errors.New("диск переполнен")
	env.events.err = errors.New("диск переполнен")

	result, err := env.svc.Generate(context.Background(), uuid.New(), domain.GenerateRequest{Type: domain.GenTopicOptions})
	if err != nil {
		t.Fatalf("сбой записи кэша не должен ронять успешную генерацию: %v", err)
	}
	if result.Payload.TopicOptions == nil {
		t.Fatal("результат генерации должен возвращаться")
	}
}

func TestGetOrCreateLearnItemCached(t *testing.T) {
	env := newServiceEnv()
	expires := time.Now().Add(10 * 24 * time.Hour)
	env.items.byTopicErr = nil
	env.items.byTopic = domain.LearnItem{ID: uuid.New(), Topic: "deep work", ExpiresAt: &expires}

	result, err := env.svc.GetOrCreateLearnItem(context.Background(), uuid.New(), "  Deep   Work ", domain.SourceTopicChoice, domain.DepthConcise, nil)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !result.Cached {
		t.Fatal("живая карточка должна возвращаться как кэш-хит")
	}
	if env.gen.calls != 0 {
		t.Fatal("кэш-хит не должен вызывать модель")
	}
}

func TestGetOrCreateLearnItemExpired(t *testing.T) {
	env := newServiceEnv()
	expires := time.Now().Add(-time.Hour)
	env.items.byTopicErr = nil
	env.items.byTopic = domain.LearnItem{ID: uuid.New(), Topic: "deep work", ExpiresAt: &expires}
	env.gen.responses = []string{validLearnJSON()}

	result, err := env.svc.GetOrCreateLearnItem(context.Background(), uuid.New(), "Deep Work", domain.SourceTopicChoice, domain.DepthConcise, nil)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if result.Cached {
		t.Fatal("просроченная карточка должна перегенерироваться")
	}
	if env.items.upserted == nil {
		t.Fatal("новая карточка должна сохраняться апсертом")
	}
	if env.items.upserted.Topic != "deep work" {
		t.Fatalf("тема апсерта должна быть нормализована, получено %q", env.items.upserted.Topic)
	}
	if env.items.upserted.ExpiresAt == nil {
		t.Fatal("новая карточка должна получать срок истечения")
	}
}

func TestGetOrCreateLearnItemLearnMore(t *testing.T) {
	env := newServiceEnv()
	env.gen.responses = []string{validLearnJSON()}
	prior := &domain.LearnContent{Title: "Basics", Bullets: []string{"a", "b", "c"}}

	_, err := env.svc.GetOrCreateLearnItem(context.Background(), uuid.New(), "deep work advanced", domain.SourceLearnMore, domain.DepthDeeper, prior)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if env.items.upserted.SourceType != domain.SourceLearnMore {
		t.Fatalf("тип источника потерян: %s", env.items.upserted.SourceType)
	}
}
