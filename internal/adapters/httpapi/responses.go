package httpapi

import (
	"strings"
	"time"

	"educel/internal/domain"
)

func learnItemResponse(item domain.LearnItem) map[string]any {
	out := map[string]any{
		"id":          item.ID,
		"topic":       item.Topic,
		"source_type": item.SourceType,
		"content":     item.Content,
		"created_at":  item.CreatedAt.UTC().Format(time.RFC3339),
	}
	if item.Expanded != nil {
		out["expanded_content"] = item.Expanded
	}
	if item.ExpandedCreatedAt != nil {
		out["expanded_created_at"] = item.ExpandedCreatedAt.UTC().Format(time.RFC3339)
	}
	if item.ExpiresAt != nil {
		out["expires_at"] = item.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return out
}

func lessonPlanResponse(plan domain.LessonPlan) map[string]any {
	out := map[string]any{
		"id":         plan.ID,
		"title":      plan.Title,
		"topic":      plan.Topic,
		"content":    plan.Content,
		"created_at": plan.CreatedAt.UTC().Format(time.RFC3339),
	}
	if plan.LearnItemID != nil {
		out["learn_item_id"] = *plan.LearnItemID
	}
	return out
}

func savedItemResponse(item domain.SavedItem) map[string]any {
	out := map[string]any{
		"id":         item.ID,
		"item_type":  item.ItemType,
		"item_id":    item.ItemID,
		"created_at": item.CreatedAt.UTC().Format(time.RFC3339),
	}
	if item.LearnItem != nil {
		out["learn_item"] = learnItemResponse(*item.LearnItem)
	}
	if item.LessonPlan != nil {
		out["lesson_plan"] = lessonPlanResponse(*item.LessonPlan)
	}
	return out
}

func prefsResponse(prefs domain.UserPrefs) map[string]any {
	topics := prefs.PreferredTopics
	if topics == nil {
		topics = []string{}
	}
	return map[string]any{
		"preferred_topics": topics,
		"depth":            prefs.Depth,
		"theme":            prefs.Theme,
	}
}

func planTitle(topic string) string {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "Learning plan"
	}
	return "Learning plan: " + topic
}
