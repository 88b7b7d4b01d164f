package domain

import (
	"strings"
)

// NormalizeTopic приводит тему к каноничному виду: обрезает края,
// схлопывает пробелы и приводит к нижнему регистру. Используется везде,
// где темы сравниваются или служат ключом.
func NormalizeTopic(topic string) string {
	return strings.ToLower(strings.Join(strings.Fields(topic), " "))
}

// Весовые коэффициенты событий для подсчёта вовлечённости.
const (
	weightSaved         = 4
	weightQuizCompleted = 3
	weightPlanGenerated = 6
	weightTopicClicked  = 2
	weightContentViewed = 1
	weightDefault       = 1
)

// EventWeight возвращает вес события при подсчёте вовлечённости.
// Неизвестные типы получают вес по умолчанию.
func EventWeight(eventType EventType) int {
	switch eventType {
	case EventSaved:
		return weightSaved
	case EventQuizCompleted:
		return weightQuizCompleted
	case EventPlanGenerated:
		return weightPlanGenerated
	case EventTopicClicked:
		return weightTopicClicked
	case EventContentViewed:
		return weightContentViewed
	default:
		return weightDefault
	}
}

// CuratedTopics — список тем, предлагаемых при онбординге.
var CuratedTopics = []string{
	"Productivity",
	"Communication",
	"Leadership",
	"Psychology",
	"Sales",
	"Negotiation",
	"Writing",
	"Design",
	"Finance basics",
	"Health habits",
	"History",
	"Technology",
	"Career growth",
	"Entrepreneurship",
	"Decision-making",
}
