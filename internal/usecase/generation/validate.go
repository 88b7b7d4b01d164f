package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"educel/internal/domain"
)

// ErrSchemaMismatch сообщает, что ответ модели не соответствует ожидаемой схеме.
var ErrSchemaMismatch = errors.New("ответ не соответствует ожидаемой схеме")

// Payload — размеченное объединение проверенных ответов модели.
// Заполняется ровно одно поле, соответствующее запрошенному типу.
type Payload struct {
	TopicOptions *domain.TopicOptions
	Clarify      *domain.ClarifyResponse
	Learn        *domain.LearnContent
	Expanded     *domain.ExpandedContent
	LessonPlan   *domain.LessonPlanContent
}

// Value возвращает заполненную часть объединения.
func (p Payload) Value() any {
	switch {
	case p.TopicOptions != nil:
		return p.TopicOptions
	case p.Clarify != nil:
		return p.Clarify
	case p.Learn != nil:
		return p.Learn
	case p.Expanded != nil:
		return p.Expanded
	case p.LessonPlan != nil:
		return p.LessonPlan
	default:
		return nil
	}
}

// ValidatePayload разбирает очищенный от ограждений JSON и проверяет его
// структуру для запрошенного типа генерации. Несовпадение — отказ, не догадка.
func ValidatePayload(genType domain.GenerateType, raw []byte) (Payload, error) {
	switch genType {
	case domain.GenTopicOptions, domain.GenAdjacentOptions:
		opts, err := validateTopicOptions(raw)
		if err != nil {
			return Payload{}, err
		}
		return Payload{TopicOptions: opts}, nil
	case domain.GenClarifyTopic:
		clarify, err := validateClarify(raw)
		if err != nil {
			return Payload{}, err
		}
		return Payload{Clarify: clarify}, nil
	case domain.GenLearnItem, domain.GenLearnMore:
		content, err := validateLearnContent(raw)
		if err != nil {
			return Payload{}, err
		}
		return Payload{Learn: content}, nil
	case domain.GenExpandContent:
		expanded, err := validateExpandedContent(raw)
		if err != nil {
			return Payload{}, err
		}
		return Payload{Expanded: expanded}, nil
	case domain.GenLessonPlan:
		plan, err := validateLessonPlan(raw)
		if err != nil {
			return Payload{}, err
		}
		return Payload{LessonPlan: plan}, nil
	default:
		return Payload{}, fmt.Errorf("%w: %s", domain.ErrUnknownGenerateType, genType)
	}
}

func schemaErr(reason string) error {
	return fmt.Errorf("%w: %s", ErrSchemaMismatch, reason)
}

func validateTopicOptions(raw []byte) (*domain.TopicOptions, error) {
	var parsed domain.TopicOptions
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, schemaErr(err.Error())
	}
	if len(parsed.Options) != 3 {
		return nil, schemaErr(fmt.Sprintf("нужно ровно 3 варианта, получено %d", len(parsed.Options)))
	}
	for i := range parsed.Options {
		parsed.Options[i].Topic = strings.TrimSpace(parsed.Options[i].Topic)
		parsed.Options[i].Hook = strings.TrimSpace(parsed.Options[i].Hook)
		if parsed.Options[i].Topic == "" || parsed.Options[i].Hook == "" {
			return nil, schemaErr("вариант без topic или hook")
		}
	}
	return &parsed, nil
}

func validateClarify(raw []byte) (*domain.ClarifyResponse, error) {
	var parsed domain.ClarifyResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, schemaErr(err.Error())
	}
	parsed.Question = strings.TrimSpace(parsed.Question)
	if parsed.Question == "" {
		return nil, schemaErr("пустой question")
	}
	if len(parsed.Options) != 3 {
		return nil, schemaErr(fmt.Sprintf("нужно ровно 3 варианта, получено %d", len(parsed.Options)))
	}
	for i := range parsed.Options {
		parsed.Options[i] = strings.TrimSpace(parsed.Options[i])
		if parsed.Options[i] == "" {
			return nil, schemaErr("пустой вариант")
		}
	}
	return &parsed, nil
}

// learnContentPayload откладывает разбор sources: это единственное поле
// с мягкой проверкой, его брак не должен ронять весь ответ.
type learnContentPayload struct {
	Title        string          `json:"title"`
	Hook         string          `json:"hook"`
	Bullets      []string        `json:"bullets"`
	Example      string          `json:"example"`
	MicroAction  string          `json:"micro_action"`
	QuizQuestion string          `json:"quiz_question"`
	QuizAnswer   string          `json:"quiz_answer"`
	Sources      json.RawMessage `json:"sources"`
}

func validateLearnContent(raw []byte) (*domain.LearnContent, error) {
	var parsed learnContentPayload
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, schemaErr(err.Error())
	}
	content := domain.LearnContent{
		Title:        strings.TrimSpace(parsed.Title),
		Hook:         strings.TrimSpace(parsed.Hook),
		Bullets:      parsed.Bullets,
		Example:      strings.TrimSpace(parsed.Example),
		MicroAction:  strings.TrimSpace(parsed.MicroAction),
		QuizQuestion: strings.TrimSpace(parsed.QuizQuestion),
		QuizAnswer:   strings.TrimSpace(parsed.QuizAnswer),
	}
	if content.Title == "" || content.Hook == "" || content.Example == "" ||
		content.MicroAction == "" || content.QuizQuestion == "" || content.QuizAnswer == "" {
		return nil, schemaErr("отсутствует обязательное текстовое поле")
	}
	if len(content.Bullets) != 3 {
		return nil, schemaErr(fmt.Sprintf("нужно ровно 3 буллета, получено %d", len(content.Bullets)))
	}
	for i := range content.Bullets {
		content.Bullets[i] = strings.TrimSpace(content.Bullets[i])
		if content.Bullets[i] == "" {
			return nil, schemaErr("пустой буллет")
		}
	}
	content.Sources = decodeSourcesBestEffort(parsed.Sources)
	return &content, nil
}

// decodeSourcesBestEffort извлекает источники, отбрасывая их целиком
// при любом браке вместо отказа по всему ответу.
func decodeSourcesBestEffort(raw json.RawMessage) []domain.SourceLink {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var sources []domain.SourceLink
	if err := json.Unmarshal(raw, &sources); err != nil {
		return nil
	}
	for i := range sources {
		sources[i].Title = strings.TrimSpace(sources[i].Title)
		sources[i].URL = strings.TrimSpace(sources[i].URL)
		if sources[i].Title == "" || sources[i].URL == "" {
			return nil
		}
	}
	if len(sources) == 0 {
		return nil
	}
	return sources
}

const takeawayMaxRunes = 100

func validateExpandedContent(raw []byte) (*domain.ExpandedContent, error) {
	var parsed domain.ExpandedContent
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, schemaErr(err.Error())
	}
	if len(parsed.Paragraphs) < 3 || len(parsed.Paragraphs) > 6 {
		return nil, schemaErr(fmt.Sprintf("нужно от 3 до 6 абзацев, получено %d", len(parsed.Paragraphs)))
	}
	for i := range parsed.Paragraphs {
		parsed.Paragraphs[i] = strings.TrimSpace(parsed.Paragraphs[i])
		if parsed.Paragraphs[i] == "" {
			return nil, schemaErr("пустой абзац")
		}
	}
	parsed.OneLineTakeaway = strings.TrimSpace(parsed.OneLineTakeaway)
	if parsed.OneLineTakeaway == "" {
		return nil, schemaErr("пустой one_line_takeaway")
	}
	if utf8.RuneCountInString(parsed.OneLineTakeaway) >= takeawayMaxRunes {
		return nil, schemaErr("one_line_takeaway длиннее 100 символов")
	}
	return &parsed, nil
}

func validateLessonPlan(raw []byte) (*domain.LessonPlanContent, error) {
	var parsed domain.LessonPlanContent
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, schemaErr(err.Error())
	}
	if len(parsed.Goals) < 2 {
		return nil, schemaErr("нужно минимум 2 цели")
	}
	if len(parsed.Resources) < 3 {
		return nil, schemaErr("нужно минимум 3 ресурса")
	}
	if len(parsed.Exercises) < 2 {
		return nil, schemaErr("нужно минимум 2 упражнения")
	}
	if len(parsed.DailyPlan) < 7 {
		return nil, schemaErr("нужно минимум 7 дней в плане")
	}
	for i := range parsed.Resources {
		res := &parsed.Resources[i]
		res.Title = strings.TrimSpace(res.Title)
		res.URL = strings.TrimSpace(res.URL)
		if res.Title == "" || res.URL == "" {
			return nil, schemaErr("ресурс без title или url")
		}
		switch res.Type {
		case domain.ResourceArticle, domain.ResourceVideo, domain.ResourceBook, domain.ResourceCourse, domain.ResourceTool:
		default:
			return nil, schemaErr(fmt.Sprintf("неизвестный тип ресурса %q", res.Type))
		}
	}
	for i := range parsed.DailyPlan {
		day := &parsed.DailyPlan[i]
		day.Focus = strings.TrimSpace(day.Focus)
		if day.Focus == "" {
			return nil, schemaErr("день без фокуса")
		}
		if len(day.Activities) == 0 {
			return nil, schemaErr("день без активностей")
		}
	}
	return &parsed, nil
}
