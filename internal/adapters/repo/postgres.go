package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"educel/internal/domain"
	"educel/internal/infra/metrics"
)

// Postgres держит пул соединений и раздаёт типизированные репозитории.
type Postgres struct {
	pool *pgxpool.Pool
}

const queryTimeout = 10 * time.Second

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), queryTimeout)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, queryTimeout)
}

// LearnItems возвращает репозиторий карточек.
func (p *Postgres) LearnItems() *LearnItems { return &LearnItems{db: p} }

// LessonPlans возвращает репозиторий планов занятий.
func (p *Postgres) LessonPlans() *LessonPlans { return &LessonPlans{db: p} }

// SavedItems возвращает репозиторий закладок.
func (p *Postgres) SavedItems() *SavedItems { return &SavedItems{db: p} }

// Prefs возвращает репозиторий настроек.
func (p *Postgres) Prefs() *Prefs { return &Prefs{db: p} }

// Events возвращает репозиторий событий вовлечённости.
func (p *Postgres) Events() *Events { return &Events{db: p} }

// Recos возвращает репозиторий кэша предложений и журнала показов.
func (p *Postgres) Recos() *Recos { return &Recos{db: p} }

// LearnItems реализует domain.LearnItemRepo.
type LearnItems struct {
	db *Postgres
}

var _ domain.LearnItemRepo = (*LearnItems)(nil)

const learnItemColumns = `id, user_id, topic, source_type, content, expanded_content, expanded_created_at, created_at, expires_at`

func scanLearnItem(row pgx.Row) (domain.LearnItem, error) {
	var (
		item        domain.LearnItem
		contentRaw  []byte
		expandedRaw []byte
	)
	err := row.Scan(
		&item.ID, &item.UserID, &item.Topic, &item.SourceType,
		&contentRaw, &expandedRaw, &item.ExpandedCreatedAt,
		&item.CreatedAt, &item.ExpiresAt,
	)
	if err != nil {
		return domain.LearnItem{}, err
	}
	if err := json.Unmarshal(contentRaw, &item.Content); err != nil {
		return domain.LearnItem{}, fmt.Errorf("разбор content: %w", err)
	}
	if len(expandedRaw) > 0 {
		var expanded domain.ExpandedContent
		if err := json.Unmarshal(expandedRaw, &expanded); err != nil {
			return domain.LearnItem{}, fmt.Errorf("разбор expanded_content: %w", err)
		}
		item.Expanded = &expanded
	}
	return item, nil
}

// GetByID реализует domain.LearnItemRepo.
func (r *LearnItems) GetByID(ctx context.Context, userID, id uuid.UUID) (domain.LearnItem, error) {
	ctx, cancel := r.db.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := r.db.pool.QueryRow(ctx, `
SELECT `+learnItemColumns+`
FROM learn_items
WHERE user_id = $1 AND id = $2
`, userID, id)
	item, err := scanLearnItem(row)
	metrics.ObserveNetworkRequest("postgres", "learn_item_get", "learn_items", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LearnItem{}, domain.ErrNotFound
	}
	return item, err
}

// GetByTopic реализует domain.LearnItemRepo.
func (r *LearnItems) GetByTopic(ctx context.Context, userID uuid.UUID, topic string) (domain.LearnItem, error) {
	ctx, cancel := r.db.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := r.db.pool.QueryRow(ctx, `
SELECT `+learnItemColumns+`
FROM learn_items
WHERE user_id = $1 AND topic = $2
`, userID, topic)
	item, err := scanLearnItem(row)
	metrics.ObserveNetworkRequest("postgres", "learn_item_get_by_topic", "learn_items", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LearnItem{}, domain.ErrNotFound
	}
	return item, err
}

// ListRecent реализует domain.LearnItemRepo.
func (r *LearnItems) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]domain.LearnItem, error) {
	ctx, cancel := r.db.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := r.db.pool.Query(ctx, `
SELECT `+learnItemColumns+`
FROM learn_items
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`, userID, limit)
	metrics.ObserveNetworkRequest("postgres", "learn_item_list", "learn_items", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.LearnItem
	for rows.Next() {
		item, err := scanLearnItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Create реализует domain.LearnItemRepo.
func (r *LearnItems) Create(ctx context.Context, item domain.LearnItem) (domain.LearnItem, error) {
	ctx, cancel := r.db.connCtx(ctx)
	defer cancel()

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	contentRaw, err := json.Marshal(item.Content)
	if err != nil {
		return domain.LearnItem{}, fmt.Errorf("кодирование content: %w", err)
	}

	start := time.Now()
	row := r.db.pool.QueryRow(ctx, `
INSERT INTO learn_items (id, user_id, topic, source_type, content, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
RETURNING `+learnItemColumns+`
`, item.ID, item.UserID, item.Topic, item.SourceType, contentRaw, item.ExpiresAt)
	created, err := scanLearnItem(row)
	metrics.ObserveNetworkRequest("postgres", "learn_item_insert", "learn_items", start, err)
	return created, err
}

// UpsertByTopic реализует domain.LearnItemRepo. Конфликт по
// (user_id, topic) перезаписывает содержимое, сохраняя id строки.
func (r *LearnItems) UpsertByTopic(ctx context.Context, item domain.LearnItem) (domain.LearnItem, error) {
	ctx, cancel := r.db.connCtx(ctx)
	defer cancel()

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	contentRaw, err := json.Marshal(item.Content)
	if err != nil {
		return domain.LearnItem{}, fmt.Errorf("кодирование content: %w", err)
	}

	start := time.Now()
	row := r.db.pool.QueryRow(ctx, `
INSERT INTO learn_items (id, user_id, topic, source_type, content, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (user_id, topic) DO UPDATE SET
	source_type = EXCLUDED.source_type,
	content = EXCLUDED.content,
	expanded_content = NULL,
	expanded_created_at = NULL,
	expires_at = EXCLUDED.expires_at,
	created_at = now()
RETURNING `+learnItemColumns+`
`, item.ID, item.UserID, item.Topic, item.SourceType, contentRaw, item.ExpiresAt)
	saved, err := scanLearnItem(row)
	metrics.ObserveNetworkRequest("postgres", "learn_item_upsert", "learn_items", start, err)
	return saved, err
}

// SetExpandedContent реализует domain.LearnItemRepo.
func (r *LearnItems) SetExpandedContent(ctx context.Context, userID, id uuid.UUID, content domain.ExpandedContent, at time.Time) (domain.LearnItem, error) {
	ctx, cancel := r.db.connCtx(ctx)
	defer cancel()

	raw, err := json.Marshal(content)
	if err != nil {
		return domain.LearnItem{}, fmt.Errorf("кодирование expanded_content: %w", err)
	}

	start := time.Now()
	row := r.db.pool.QueryRow(ctx, `
UPDATE learn_items
SET expanded_content = $3, expanded_created_at = $4
WHERE user_id = $1 AND id = $2
RETURNING `+learnItemColumns+`
`, userID, id, raw, at)
	item, err := scanLearnItem(row)
	metrics.ObserveNetworkRequest("postgres", "learn_item_set_expanded", "learn_items", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LearnItem{}, domain.ErrNotFound
	}
	return item, err
}

// SetExpiry реализует domain.LearnItemRepo.
func (r *LearnItems) SetExpiry(ctx context.Context, userID, id uuid.UUID, expiresAt *time.Time) error {
	ctx, cancel := r.db.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := r.db.pool.Exec(ctx, `
UPDATE learn_items SET expires_at = $3 WHERE user_id = $1 AND id = $2
`, userID, id, expiresAt)
	metrics.ObserveNetworkRequest("postgres", "learn_item_set_expiry", "learn_items", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// LessonPlans реализует domain.LessonPlanRepo.
type LessonPlans struct {
	db *Postgres
}

var _ domain.LessonPlanRepo = (*LessonPlans)(nil)

const lessonPlanColumns = `id, user_id, learn_item_id, title, topic, content, created_at`

func scanLessonPlan(row pgx.Row) (domain.LessonPlan, error) {
	var (
		plan domain.LessonPlan
		raw  []byte
	)
	err := row.Scan(&plan.ID, &plan.UserID, &plan.LearnItemID, &plan.Title, &plan.Topic, &raw, &plan.CreatedAt)
	if err != nil {
		return domain.LessonPlan{}, err
	}
	if err := json.Unmarshal(raw, &plan.Content); err != nil {
		return domain.LessonPlan{}, fmt.Errorf("разбор content плана: %w", err)
	}
	return plan, nil
}

// Create реализует domain.LessonPlanRepo.
func (r *LessonPlans) Create(ctx context.Context, plan domain.LessonPlan) (domain.LessonPlan, error) {
	ctx, cancel := r.db.connCtx(ctx)
	defer cancel()

	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	raw, err := json.Marshal(plan.Content)
	if err != nil {
		return domain.LessonPlan{}, fmt.Errorf("кодирование content плана: %w", err)
	}

	start := time.Now()
	row := r.db.pool.QueryRow(ctx, `
INSERT INTO lesson_plans (id, user_id, learn_item_id, title, topic, content, created_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
RETURNING `+lessonPlanColumns+`
`, plan.ID, plan.UserID, plan.LearnItemID, plan.Title, plan.Topic, raw)
	created, err := scanLessonPlan(row)
	metrics.ObserveNetworkRequest("postgres", "lesson_plan_insert", "lesson_plans", start, err)
	return created, err
}

// GetByID реализует domain.LessonPlanRepo.
func (r *LessonPlans) GetByID(ctx context.Context, userID, id uuid.UUID) (domain.LessonPlan, error) {
	ctx, cancel := r.db.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := r.db.pool.QueryRow(ctx, `
SELECT `+lessonPlanColumns+` FROM lesson_plans WHERE user_id = $1 AND id = $2
`, userID, id)
	plan, err := scanLessonPlan(row)
	metrics.ObserveNetworkRequest("postgres", "lesson_plan_get", "lesson_plans", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LessonPlan{}, domain.ErrNotFound
	}
	return plan, err
}

// GetByLearnItem реализует domain.LessonPlanRepo.
func (r *LessonPlans) GetByLearnItem(ctx context.Context, userID, learnItemID uuid.UUID) (domain.LessonPlan, error) {
	ctx, cancel := r.db.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := r.db.pool.QueryRow(ctx, `
SELECT `+lessonPlanColumns+`
FROM lesson_plans
WHERE user_id = $1 AND learn_item_id = $2
ORDER BY created_at DESC
LIMIT 1
`, userID, learnItemID)
	plan, err := scanLessonPlan(row)
	metrics.ObserveNetworkRequest("postgres", "lesson_plan_get_by_item", "lesson_plans", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LessonPlan{}, domain.ErrNotFound
	}
	return plan, err
}

// List реализует domain.LessonPlanRepo.
func (r *LessonPlans) List(ctx context.Context, userID uuid.UUID) ([]domain.LessonPlan, error) {
	ctx, cancel := r.db.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := r.db.pool.Query(ctx, `
SELECT `+lessonPlanColumns+` FROM lesson_plans WHERE user_id = $1 ORDER BY created_at DESC
`, userID)
	metrics.ObserveNetworkRequest("postgres", "lesson_plan_list", "lesson_plans", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []domain.LessonPlan
	for rows.Next() {
		plan, err := scanLessonPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

// SavedItems реализует domain.SavedItemRepo.
type SavedItems struct {
	db *Postgres
}

var _ domain.SavedItemRepo = (*SavedItems)(nil)

// Create реализует domain.SavedItemRepo. Повторная закладка на тот же
// элемент отклоняется ограничением уникальности.
func (r *SavedItems) Create(ctx context.Context, item domain.SavedItem) (domain.SavedItem, error) {
	ctx, cancel := r.db.connCtx(ctx)
	defer cancel()

	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}

	start := time.Now()
	row := r.db.pool.QueryRow(ctx, `
INSERT INTO saved_items (id, user_id, item_type, item_id, created_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (user_id, item_type, item_id) DO NOTHING
RETURNING id, created_at
`, item.ID, item.UserID, item.ItemType, item.ItemID)
	err := row.Scan(&item.ID, &item.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "saved_item_insert", "saved_items", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SavedItem{}, domain.ErrAlreadySaved
	}
	if err != nil {
		return domain.SavedItem{}, err
	}
	return item, nil
}

// Delete реализует domain.SavedItemRepo.
func (r *SavedItems) Delete(ctx context.Context, userID uuid.UUID, itemType domain.ItemType, itemID uuid.UUID) error {
	ctx, cancel := r.db.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := r.db.pool.Exec(ctx, `
DELETE FROM saved_items WHERE user_id = $1 AND item_type = $2 AND item_id = $3
`, userID, itemType, itemID)
	metrics.ObserveNetworkRequest("postgres", "saved_item_delete", "saved_items", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List реализует domain.SavedItemRepo. Закладки возвращаются вместе
// с содержимым карточки или плана.
func (r *SavedItems) List(ctx context.Context, userID uuid.UUID) ([]domain.SavedItem, error) {
	ctx, cancel := r.db.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := r.db.pool.Query(ctx, `
SELECT
	s.id, s.user_id, s.item_type, s.item_id, s.created_at,
	li.id, li.topic, li.source_type, li.content, li.expanded_content, li.expanded_created_at, li.created_at, li.expires_at,
	lp.id, lp.learn_item_id, lp.title, lp.topic, lp.content, lp.created_at
FROM saved_items s
LEFT JOIN learn_items li ON s.item_type = 'learning' AND li.user_id = s.user_id AND li.id = s.item_id
LEFT JOIN lesson_plans lp ON s.item_type = 'lesson_plan' AND lp.user_id = s.user_id AND lp.id = s.item_id
WHERE s.user_id = $1
ORDER BY s.created_at DESC
`, userID)
	metrics.ObserveNetworkRequest("postgres", "saved_item_list", "saved_items", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.SavedItem
	for rows.Next() {
		item, err := scanSavedItemRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanSavedItemRow(rows pgx.Rows) (domain.SavedItem, error) {
	var (
		item domain.SavedItem

		liID         *uuid.UUID
		liTopic      *string
		liSource     *string
		liContent    []byte
		liExpanded   []byte
		liExpandedAt *time.Time
		liCreatedAt  *time.Time
		liExpiresAt  *time.Time

		lpID        *uuid.UUID
		lpLearnItem *uuid.UUID
		lpTitle     *string
		lpTopic     *string
		lpContent   []byte
		lpCreatedAt *time.Time
	)
	err := rows.Scan(
		&item.ID, &item.UserID, &item.ItemType, &item.ItemID, &item.CreatedAt,
		&liID, &liTopic, &liSource, &liContent, &liExpanded, &liExpandedAt, &liCreatedAt, &liExpiresAt,
		&lpID, &lpLearnItem, &lpTitle, &lpTopic, &lpContent, &lpCreatedAt,
	)
	if err != nil {
		return domain.SavedItem{}, err
	}
	if liID != nil {
		learn := domain.LearnItem{
			ID:                *liID,
			UserID:            item.UserID,
			ExpandedCreatedAt: liExpandedAt,
			ExpiresAt:         liExpiresAt,
		}
		if liTopic != nil {
			learn.Topic = *liTopic
		}
		if liSource != nil {
			learn.SourceType = domain.SourceType(*liSource)
		}
		if liCreatedAt != nil {
			learn.CreatedAt = *liCreatedAt
		}
		if len(liContent) > 0 {
			if err := json.Unmarshal(liContent, &learn.Content); err != nil {
				return domain.SavedItem{}, fmt.Errorf("разбор content закладки: %w", err)
			}
		}
		if len(liExpanded) > 0 {
			var expanded domain.ExpandedContent
			if err := json.Unmarshal(liExpanded, &expanded); err != nil {
				return domain.SavedItem{}, fmt.Errorf("разбор expanded_content закладки: %w", err)
			}
			learn.Expanded = &expanded
		}
		item.LearnItem = &learn
	}
	if lpID != nil {
		plan := domain.LessonPlan{
			ID:          *lpID,
			UserID:      item.UserID,
			LearnItemID: lpLearnItem,
		}
		if lpTitle != nil {
			plan.Title = *lpTitle
		}
		if lpTopic != nil {
			plan.Topic = *lpTopic
		}
		if lpCreatedAt != nil {
			plan.CreatedAt = *lpCreatedAt
		}
		if len(lpContent) > 0 {
			if err := json.Unmarshal(lpContent, &plan.Content); err != nil {
				return domain.SavedItem{}, fmt.Errorf("разбор content плана закладки: %w", err)
			}
		}
		item.LessonPlan = &plan
	}
	return item, nil
}

// Prefs реализует domain.PrefsRepo.
type Prefs struct {
	db *Postgres
}

var _ domain.PrefsRepo = (*Prefs)(nil)

// Get реализует domain.PrefsRepo.
func (r *Prefs) Get(ctx context.Context, userID uuid.UUID) (domain.UserPrefs, error) {
	ctx, cancel := r.db.connCtx(ctx)
	defer cancel()

	start := time.Now()
	var (
		prefs     domain.UserPrefs
		topicsRaw []byte
	)
	err := r.db.pool.QueryRow(ctx, `
SELECT user_id, preferred_topics, depth, theme, created_at, updated_at
FROM user_prefs WHERE user_id = $1
`, userID).Scan(&prefs.UserID, &topicsRaw, &prefs.Depth, &prefs.Theme, &prefs.CreatedAt, &prefs.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "prefs_get", "user_prefs", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserPrefs{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.UserPrefs{}, err
	}
	if len(topicsRaw) > 0 {
		if err := json.Unmarshal(topicsRaw, &prefs.PreferredTopics); err != nil {
			return domain.UserPrefs{}, fmt.Errorf("разбор preferred_topics: %w", err)
		}
	}
	return prefs, nil
}

// Upsert реализует domain.PrefsRepo. Отсутствующие поля обновления
// не трогают сохранённые значения.
func (r *Prefs) Upsert(ctx context.Context, userID uuid.UUID, update domain.PrefsUpdate) (domain.UserPrefs, error) {
	ctx, cancel := r.db.connCtx(ctx)
	defer cancel()

	var topicsRaw []byte
	if update.PreferredTopics != nil {
		raw, err := json.Marshal(*update.PreferredTopics)
		if err != nil {
			return domain.UserPrefs{}, fmt.Errorf("кодирование preferred_topics: %w", err)
		}
		topicsRaw = raw
	}

	start := time.Now()
	var (
		prefs  domain.UserPrefs
		gotRaw []byte
	)
	err := r.db.pool.QueryRow(ctx, `
INSERT INTO user_prefs (user_id, preferred_topics, depth, theme, created_at, updated_at)
VALUES ($1, COALESCE($2, '[]'::jsonb), COALESCE($3, 'concise'), COALESCE($4, 'auto'), now(), now())
ON CONFLICT (user_id) DO UPDATE SET
	preferred_topics = COALESCE($2, user_prefs.preferred_topics),
	depth = COALESCE($3, user_prefs.depth),
	theme = COALESCE($4, user_prefs.theme),
	updated_at = now()
RETURNING user_id, preferred_topics, depth, theme, created_at, updated_at
`, userID, topicsRaw, update.Depth, update.Theme).
		Scan(&prefs.UserID, &gotRaw, &prefs.Depth, &prefs.Theme, &prefs.CreatedAt, &prefs.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "prefs_upsert", "user_prefs", start, err)
	if err != nil {
		return domain.UserPrefs{}, err
	}
	if len(gotRaw) > 0 {
		if err := json.Unmarshal(gotRaw, &prefs.PreferredTopics); err != nil {
			return domain.UserPrefs{}, fmt.Errorf("разбор preferred_topics: %w", err)
		}
	}
	return prefs, nil
}

// Events реализует domain.EventRepo.
type Events struct {
	db *Postgres
}

var _ domain.EventRepo = (*Events)(nil)

// Record реализует domain.EventRepo.
func (r *Events) Record(ctx context.Context, event domain.UserEvent) error {
	ctx, cancel := r.db.connCtx(ctx)
	defer cancel()

	var metaRaw []byte
	if event.Meta != nil {
		raw, err := json.Marshal(event.Meta)
		if err != nil {
			return fmt.Errorf("кодирование meta: %w", err)
		}
		metaRaw = raw
	}

	var slot *string
	if event.Slot != "" {
		s := string(event.Slot)
		slot = &s
	}

	start := time.Now()
	_, err := r.db.pool.Exec(ctx, `
INSERT INTO user_events (user_id, event_type, topic, learn_item_id, slot, meta, created_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
`, event.UserID, event.EventType, event.Topic, event.LearnItemID, slot, metaRaw)
	metrics.ObserveNetworkRequest("postgres", "event_insert", "user_events", start, err)
	return err
}

// HasContentView реализует domain.EventRepo.
func (r *Events) HasContentView(ctx context.Context, userID, learnItemID uuid.UUID, sessionID string) (bool, error) {
	ctx, cancel := r.db.connCtx(ctx)
	defer cancel()

	start := time.Now()
	var exists bool
	err := r.db.pool.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1 FROM user_events
	WHERE user_id = $1 AND learn_item_id = $2 AND event_type = $3 AND meta->>'session_id' = $4
)
`, userID, learnItemID, domain.EventContentViewed, sessionID).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "event_has_view", "user_events", start, err)
	return exists, err
}

// ListTopicEventsSince реализует domain.EventRepo.
func (r *Events) ListTopicEventsSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]domain.UserEvent, error) {
	ctx, cancel := r.db.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := r.db.pool.Query(ctx, `
SELECT id, user_id, event_type, topic, learn_item_id, slot, meta, created_at
FROM user_events
WHERE user_id = $1 AND created_at >= $2 AND topic <> ''
ORDER BY created_at ASC
`, userID, since)
	metrics.ObserveNetworkRequest("postgres", "event_list_since", "user_events", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.UserEvent
	for rows.Next() {
		var (
			event   domain.UserEvent
			slot    *string
			metaRaw []byte
		)
		if err := rows.Scan(&event.ID, &event.UserID, &event.EventType, &event.Topic, &event.LearnItemID, &slot, &metaRaw, &event.CreatedAt); err != nil {
			return nil, err
		}
		if slot != nil {
			event.Slot = domain.Slot(*slot)
		}
		if len(metaRaw) > 0 {
			if err := json.Unmarshal(metaRaw, &event.Meta); err != nil {
				return nil, fmt.Errorf("разбор meta: %w", err)
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Recos реализует domain.RecoRepo.
type Recos struct {
	db *Postgres
}

var _ domain.RecoRepo = (*Recos)(nil)

// GetTopicOptionsCache реализует domain.RecoRepo.
func (r *Recos) GetTopicOptionsCache(ctx context.Context, userID uuid.UUID) (domain.TopicOptionsCache, error) {
	ctx, cancel := r.db.connCtx(ctx)
	defer cancel()

	start := time.Now()
	var (
		cache      domain.TopicOptionsCache
		optionsRaw []byte
	)
	err := r.db.pool.QueryRow(ctx, `
SELECT user_id, options, session_id, created_at
FROM topic_options_cache WHERE user_id = $1
`, userID).Scan(&cache.UserID, &optionsRaw, &cache.SessionID, &cache.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "topic_cache_get", "topic_options_cache", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TopicOptionsCache{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.TopicOptionsCache{}, err
	}
	if err := json.Unmarshal(optionsRaw, &cache.Options); err != nil {
		return domain.TopicOptionsCache{}, fmt.Errorf("разбор options: %w", err)
	}
	return cache, nil
}

// UpsertTopicOptionsCache реализует domain.RecoRepo.
func (r *Recos) UpsertTopicOptionsCache(ctx context.Context, cache domain.TopicOptionsCache) error {
	ctx, cancel := r.db.connCtx(ctx)
	defer cancel()

	optionsRaw, err := json.Marshal(cache.Options)
	if err != nil {
		return fmt.Errorf("кодирование options: %w", err)
	}

	start := time.Now()
	_, err = r.db.pool.Exec(ctx, `
INSERT INTO topic_options_cache (user_id, options, session_id, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE SET
	options = EXCLUDED.options,
	session_id = EXCLUDED.session_id,
	created_at = EXCLUDED.created_at
`, cache.UserID, optionsRaw, cache.SessionID, cache.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "topic_cache_upsert", "topic_options_cache", start, err)
	return err
}

// SaveHomeRecommendations реализует domain.RecoRepo.
func (r *Recos) SaveHomeRecommendations(ctx context.Context, recos []domain.HomeRecommendation) error {
	if len(recos) == 0 {
		return nil
	}
	ctx, cancel := r.db.connCtx(ctx)
	defer cancel()

	batch := &pgx.Batch{}
	for _, reco := range recos {
		batch.Queue(`
INSERT INTO home_recommendations (user_id, topic, slot, session_id, created_at)
VALUES ($1, $2, $3, $4, $5)
`, reco.UserID, reco.Topic, reco.Slot, reco.SessionID, reco.CreatedAt)
	}

	start := time.Now()
	err := r.db.pool.SendBatch(ctx, batch).Close()
	metrics.ObserveNetworkRequest("postgres", "home_reco_insert", "home_recommendations", start, err)
	return err
}

// ListRecentRecommendations реализует domain.RecoRepo.
func (r *Recos) ListRecentRecommendations(ctx context.Context, userID uuid.UUID, limit int) ([]domain.HomeRecommendation, error) {
	ctx, cancel := r.db.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := r.db.pool.Query(ctx, `
SELECT user_id, topic, slot, session_id, created_at
FROM home_recommendations
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`, userID, limit)
	metrics.ObserveNetworkRequest("postgres", "home_reco_list", "home_recommendations", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recos []domain.HomeRecommendation
	for rows.Next() {
		var reco domain.HomeRecommendation
		if err := rows.Scan(&reco.UserID, &reco.Topic, &reco.Slot, &reco.SessionID, &reco.CreatedAt); err != nil {
			return nil, err
		}
		recos = append(recos, reco)
	}
	return recos, rows.Err()
}
