package generation

import (
	"fmt"
	"strings"

	"educel/internal/domain"
)

// Personalization несёт сигналы для промпта предложений тем.
type Personalization struct {
	TopTopic string
	Avoid    []string
}

// Домены, которые модели разрешено указывать в источниках.
var allowedSourceDomains = []string{
	"hbr.org",
	"sloanreview.mit.edu",
	"mckinsey.com",
	"nature.com",
	"apa.org",
	"nngroup.com",
	"investopedia.com",
	"ted.com",
	"fs.blog",
	"wikipedia.org",
}

// SystemPrompt строит системную инструкцию с учётом глубины подачи.
func SystemPrompt(depth domain.Depth) string {
	depthInstruction := "Keep content crisp and scannable. Prioritize actionable insights over depth."
	if depth == domain.DepthDeeper {
		depthInstruction = "Provide slightly more context and nuance while remaining practical."
	}

	return fmt.Sprintf(`You are Educel, an AI knowledge assistant for busy professionals and founders.

Tone Guidelines:
- Calm, smart, slightly analytical
- Practical and insightful, never motivational or cheesy
- Use professional/founder-relevant examples
- No citations unless explicitly asked
- Avoid medical or legal advice; if requested, provide general info and suggest verification

Content Rules:
- %s
- Make every word count
- Focus on actionable, memorable insights
- Use concrete examples from business, technology, or professional contexts

You MUST respond with valid JSON only. No markdown, no explanation, just the JSON object.`, depthInstruction)
}

// UserPrompt строит пользовательскую инструкцию для типа генерации.
// Неизвестный тип — ошибка клиента, а не сбой генерации.
func UserPrompt(req domain.GenerateRequest, p Personalization) (string, error) {
	switch req.Type {
	case domain.GenTopicOptions:
		return topicOptionsPrompt(req, p), nil
	case domain.GenAdjacentOptions:
		return adjacentOptionsPrompt(req), nil
	case domain.GenClarifyTopic:
		return clarifyTopicPrompt(req), nil
	case domain.GenLearnItem, domain.GenLearnMore:
		return learnItemPrompt(req), nil
	case domain.GenExpandContent:
		return expandContentPrompt(req), nil
	case domain.GenLessonPlan:
		return lessonPlanPrompt(req), nil
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownGenerateType, req.Type)
	}
}

func topicOptionsPrompt(req domain.GenerateRequest, p Personalization) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Generate 3 learning topic suggestions based on these preferred areas: %s

Respond with ONLY this JSON structure:
{
  "options": [
    {"topic": "Specific topic title", "hook": "One intriguing line about why this matters"},
    {"topic": "Specific topic title", "hook": "One intriguing line about why this matters"},
    {"topic": "Specific topic title", "hook": "One intriguing line about why this matters"}
  ]
}

Make topics specific and immediately actionable (not broad categories). Hooks should create curiosity.`, strings.Join(req.PreferredTopics, ", "))

	if p.TopTopic != "" {
		fmt.Fprintf(&b, "\n\nThe user engages most with %q. Let at most one suggestion relate to it; keep the set diverse.", p.TopTopic)
	}
	if len(p.Avoid) > 0 {
		fmt.Fprintf(&b, "\n\nDo NOT repeat recently shown topics: %s.", strings.Join(p.Avoid, ", "))
	}
	return b.String()
}

func adjacentOptionsPrompt(req domain.GenerateRequest) string {
	return fmt.Sprintf(`Based on the topic "%s", suggest 3 related but distinct topics the user might want to explore next.

Respond with ONLY this JSON structure:
{
  "options": [
    {"topic": "Adjacent topic title", "hook": "Why this connects and why it matters"},
    {"topic": "Adjacent topic title", "hook": "Why this connects and why it matters"},
    {"topic": "Adjacent topic title", "hook": "Why this connects and why it matters"}
  ]
}`, req.Topic)
}

func clarifyTopicPrompt(req domain.GenerateRequest) string {
	return fmt.Sprintf(`The user wants to learn about: "%s"

This is too broad or vague. Generate a clarifying question with 3 specific angle options.

Respond with ONLY this JSON structure:
{
  "question": "What angle interests you most?",
  "options": ["Specific angle 1", "Specific angle 2", "Specific angle 3"]
}

Make options distinct and practical for a professional/founder audience.`, req.CustomTopic)
}

func learnItemPrompt(req domain.GenerateRequest) string {
	topic := req.Topic
	if topic == "" {
		topic = req.CustomTopic
	}
	contextNote := ""
	if req.Type == domain.GenLearnMore && req.PriorItem != nil {
		contextNote = fmt.Sprintf("\n\nThis is a follow-up to: %q. Go deeper on a specific aspect or reveal an advanced insight.", req.PriorItem.Title)
	}

	return fmt.Sprintf(`Create a micro-learning item about: "%s"%s

Respond with ONLY this JSON structure:
{
  "title": "Clear, specific title (max 10 words)",
  "hook": "One sentence that makes this feel essential to know",
  "bullets": [
    "Key insight 1 (max 16 words)",
    "Key insight 2 (max 16 words)",
    "Key insight 3 (max 16 words)"
  ],
  "example": "A concrete 2-4 sentence example, preferably from business/professional context",
  "micro_action": "One specific thing to try today (max 140 characters)",
  "quiz_question": "A thoughtful question to test understanding",
  "quiz_answer": "Brief, clear answer",
  "sources": [
    {"title": "Source title", "url": "https://..."}
  ]
}

Ensure bullets are exactly 3 items. Make the micro_action immediately actionable.
Sources are optional; if you include them, use only reputable root domains from this list: %s.`, topic, contextNote, strings.Join(allowedSourceDomains, ", "))
}

func expandContentPrompt(req domain.GenerateRequest) string {
	title := ""
	if req.PriorItem != nil {
		title = req.PriorItem.Title
	}
	topic := req.Topic
	if topic == "" {
		topic = req.CustomTopic
	}
	return fmt.Sprintf(`Expand the micro-learning item "%s" on the topic "%s" into a short article.

Respond with ONLY this JSON structure:
{
  "paragraphs": ["...", "...", "..."],
  "additional_bullets": ["optional extra insight"],
  "one_line_takeaway": "The single idea to remember (under 100 characters)"
}

Write between 3 and 6 paragraphs. Stay practical; no fluff. The one_line_takeaway is required.`, title, topic)
}

func lessonPlanPrompt(req domain.GenerateRequest) string {
	topic := req.Topic
	if topic == "" {
		topic = req.CustomTopic
	}
	contextNote := ""
	if req.PriorItem != nil {
		contextNote = fmt.Sprintf("\n\nBuild on what the user already learned from %q.", req.PriorItem.Title)
	}
	return fmt.Sprintf(`Create a structured study plan for the topic "%s".%s

Respond with ONLY this JSON structure:
{
  "goals": ["Learning goal 1", "Learning goal 2"],
  "resources": [
    {"title": "Resource title", "url": "https://...", "type": "article"},
    {"title": "Resource title", "url": "https://...", "type": "video"},
    {"title": "Resource title", "url": "https://...", "type": "book"}
  ],
  "exercises": ["Practice exercise 1", "Practice exercise 2"],
  "daily_plan": [
    {"day": 1, "focus": "Day focus", "activities": ["Activity 1", "Activity 2"]}
  ]
}

Rules: at least 2 goals, at least 3 resources (types: article, video, book, course, tool),
at least 2 exercises, and a daily_plan of 7 to 14 days, each day with a focus and 1-3 activities.
Resource urls must use reputable root domains from this list: %s.`, topic, contextNote, strings.Join(allowedSourceDomains, ", "))
}
