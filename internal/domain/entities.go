package domain

import (
	"time"

	"github.com/google/uuid"
)

// SourceType описывает, каким путём карточка была создана.
type SourceType string

const (
	SourceTopicChoice SourceType = "topic_choice"
	SourceTeachMe     SourceType = "teach_me"
	SourceLearnMore   SourceType = "learn_more"
	SourceAdjacent    SourceType = "adjacent"
)

// Depth задаёт глубину подачи материала.
type Depth string

const (
	DepthConcise Depth = "concise"
	DepthDeeper  Depth = "deeper"
)

// Theme задаёт тему оформления.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
	ThemeAuto  Theme = "auto"
)

// ItemType различает виды сохраняемых элементов.
type ItemType string

const (
	ItemLearning   ItemType = "learning"
	ItemLessonPlan ItemType = "lesson_plan"
)

// GenerateType перечисляет семь форм генерируемого контента.
type GenerateType string

const (
	GenTopicOptions    GenerateType = "topic_options"
	GenAdjacentOptions GenerateType = "adjacent_options"
	GenClarifyTopic    GenerateType = "clarify_topic"
	GenLearnItem       GenerateType = "learn_item"
	GenLearnMore       GenerateType = "learn_more"
	GenExpandContent   GenerateType = "expand_content"
	GenLessonPlan      GenerateType = "lesson_plan"
)

// SourceLink указывает на внешний источник.
type SourceLink struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// LearnContent содержит структурированную карточку микро-обучения.
type LearnContent struct {
	Title        string       `json:"title"`
	Hook         string       `json:"hook"`
	Bullets      []string     `json:"bullets"`
	Example      string       `json:"example"`
	MicroAction  string       `json:"micro_action"`
	QuizQuestion string       `json:"quiz_question"`
	QuizAnswer   string       `json:"quiz_answer"`
	Sources      []SourceLink `json:"sources,omitempty"`
}

// ExpandedContent содержит развёрнутую статью по карточке.
type ExpandedContent struct {
	Paragraphs        []string `json:"paragraphs"`
	AdditionalBullets []string `json:"additional_bullets,omitempty"`
	OneLineTakeaway   string   `json:"one_line_takeaway"`
}

// LearnItem представляет карточку микро-обучения пользователя.
type LearnItem struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	Topic             string
	SourceType        SourceType
	Content           LearnContent
	Expanded          *ExpandedContent
	ExpandedCreatedAt *time.Time
	CreatedAt         time.Time
	ExpiresAt         *time.Time
}

// Expired сообщает, истёк ли срок карточки на момент now.
func (li LearnItem) Expired(now time.Time) bool {
	return li.ExpiresAt != nil && !li.ExpiresAt.After(now)
}

// ResourceType описывает вид учебного ресурса.
type ResourceType string

const (
	ResourceArticle ResourceType = "article"
	ResourceVideo   ResourceType = "video"
	ResourceBook    ResourceType = "book"
	ResourceCourse  ResourceType = "course"
	ResourceTool    ResourceType = "tool"
)

// ResourceItem описывает учебный ресурс в плане занятий.
type ResourceItem struct {
	Title string       `json:"title"`
	URL   string       `json:"url"`
	Type  ResourceType `json:"type"`
}

// DayPlanItem описывает один день плана занятий.
type DayPlanItem struct {
	Day        int      `json:"day"`
	Focus      string   `json:"focus"`
	Activities []string `json:"activities"`
}

// LessonPlanContent содержит наполнение плана занятий.
type LessonPlanContent struct {
	Goals     []string       `json:"goals"`
	Resources []ResourceItem `json:"resources"`
	Exercises []string       `json:"exercises"`
	DailyPlan []DayPlanItem  `json:"daily_plan"`
}

// LessonPlan представляет многодневный план занятий.
type LessonPlan struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	LearnItemID *uuid.UUID
	Title       string
	Topic       string
	Content     LessonPlanContent
	CreatedAt   time.Time
}

// SavedItem хранит закладку пользователя на карточку или план занятий.
type SavedItem struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	ItemType   ItemType
	ItemID     uuid.UUID
	CreatedAt  time.Time
	LearnItem  *LearnItem
	LessonPlan *LessonPlan
}

// UserPrefs хранит настройки пользователя, читаемые пайплайном генерации.
type UserPrefs struct {
	UserID          uuid.UUID
	PreferredTopics []string
	Depth           Depth
	Theme           Theme
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PrefsUpdate описывает частичное обновление настроек.
type PrefsUpdate struct {
	PreferredTopics *[]string `json:"preferred_topics,omitempty"`
	Depth           *Depth    `json:"depth,omitempty"`
	Theme           *Theme    `json:"theme,omitempty"`
}

// EventType перечисляет типы событий вовлечённости.
type EventType string

const (
	EventRecoShown     EventType = "reco_shown"
	EventTopicClicked  EventType = "topic_clicked"
	EventContentViewed EventType = "content_viewed"
	EventSaved         EventType = "saved"
	EventQuizCompleted EventType = "quiz_completed"
	EventPlanGenerated EventType = "plan_generated"
)

// Slot помечает позицию показанной рекомендации.
type Slot string

const (
	SlotA Slot = "A"
	SlotB Slot = "B"
	SlotC Slot = "C"
)

// UserEvent представляет неизменяемую запись о действии пользователя.
type UserEvent struct {
	ID          int64
	UserID      uuid.UUID
	EventType   EventType
	Topic       string
	LearnItemID *uuid.UUID
	Slot        Slot
	Meta        map[string]any
	CreatedAt   time.Time
}

// SessionID возвращает идентификатор клиентской сессии из метаданных события.
func (e UserEvent) SessionID() string {
	if e.Meta == nil {
		return ""
	}
	sid, _ := e.Meta["session_id"].(string)
	return sid
}

// TopicOption описывает одну предложенную тему.
type TopicOption struct {
	Topic string `json:"topic"`
	Hook  string `json:"hook"`
}

// TopicOptions содержит тройку предложенных тем.
type TopicOptions struct {
	Options []TopicOption `json:"options"`
}

// ClarifyResponse содержит уточняющий вопрос по размытой теме.
type ClarifyResponse struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// TopicOptionsCache хранит последние сгенерированные темы пользователя.
type TopicOptionsCache struct {
	UserID    uuid.UUID
	Options   []TopicOption
	SessionID uuid.UUID
	CreatedAt time.Time
}

// HomeRecommendation фиксирует показанную тему в конкретном слоте.
type HomeRecommendation struct {
	UserID    uuid.UUID
	Topic     string
	Slot      Slot
	SessionID uuid.UUID
	CreatedAt time.Time
}

// GenerateRequest описывает запрос на генерацию контента.
type GenerateRequest struct {
	Type            GenerateType  `json:"type"`
	PreferredTopics []string      `json:"preferred_topics"`
	Depth           Depth         `json:"depth"`
	Topic           string        `json:"topic,omitempty"`
	CustomTopic     string        `json:"custom_topic,omitempty"`
	PriorItem       *LearnContent `json:"prior_item,omitempty"`
}

// GenerateMeta несёт служебные сведения об ответе генерации.
type GenerateMeta struct {
	UsedFallbackSources bool      `json:"used_fallback_sources"`
	SessionID           uuid.UUID `json:"session_id,omitempty"`
	Cached              bool      `json:"cached"`
}

// ExpiryHorizon задаёт срок жизни несохранённой карточки.
const ExpiryHorizon = 30 * 24 * time.Hour

// CalculateExpiresAt возвращает срок истечения карточки от момента now.
func CalculateExpiresAt(now time.Time) time.Time {
	return now.UTC().Add(ExpiryHorizon)
}
