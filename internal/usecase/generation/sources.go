package generation

import (
	"strings"

	"educel/internal/domain"
)

// fallbackCategories — фиксированная таблица источников по категориям.
// Порядок задаёт приоритет при совпадении нескольких категорий,
// результат должен быть детерминированным.
var fallbackCategories = []struct {
	Category string
	Sources  []domain.SourceLink
}{
	{"productivity", []domain.SourceLink{
		{Title: "Deep Work and the Value of Focus", URL: "https://fs.blog/deep-work/"},
		{Title: "The Science of Productivity", URL: "https://hbr.org/topic/subject/productivity"},
	}},
	{"communication", []domain.SourceLink{
		{Title: "How to Communicate Clearly", URL: "https://hbr.org/topic/subject/communication"},
		{Title: "Active Listening Research", URL: "https://www.apa.org/topics/communication"},
	}},
	{"leadership", []domain.SourceLink{
		{Title: "What Makes a Leader", URL: "https://hbr.org/topic/subject/leadership"},
		{Title: "Leadership Insights", URL: "https://sloanreview.mit.edu/topic/leadership/"},
	}},
	{"psychology", []domain.SourceLink{
		{Title: "Psychology Topics", URL: "https://www.apa.org/topics"},
		{Title: "Mental Models", URL: "https://fs.blog/mental-models/"},
	}},
	{"sales", []domain.SourceLink{
		{Title: "Sales Strategy", URL: "https://hbr.org/topic/subject/sales"},
		{Title: "Growth, Marketing and Sales Insights", URL: "https://www.mckinsey.com/capabilities/growth-marketing-and-sales/our-insights"},
	}},
	{"negotiation", []domain.SourceLink{
		{Title: "Negotiation Tactics", URL: "https://hbr.org/topic/subject/negotiations"},
		{Title: "Getting to Yes, Summarised", URL: "https://fs.blog/getting-to-yes/"},
	}},
	{"writing", []domain.SourceLink{
		{Title: "Writing Well", URL: "https://fs.blog/how-to-write/"},
		{Title: "Plain Language Guidelines", URL: "https://www.nngroup.com/articles/plain-language-experts/"},
	}},
	{"design", []domain.SourceLink{
		{Title: "UX Research Basics", URL: "https://www.nngroup.com/articles/"},
		{Title: "Design Thinking", URL: "https://hbr.org/topic/subject/design"},
	}},
	{"finance", []domain.SourceLink{
		{Title: "Financial Terms Explained", URL: "https://www.investopedia.com/financial-term-dictionary-4769738"},
		{Title: "Personal Finance Basics", URL: "https://www.investopedia.com/personal-finance-4427760"},
	}},
	{"health", []domain.SourceLink{
		{Title: "Health and Behaviour", URL: "https://www.apa.org/topics/healthy-lifestyle"},
		{Title: "Health Sciences Research", URL: "https://www.nature.com/subjects/health-sciences"},
	}},
	{"history", []domain.SourceLink{
		{Title: "History Overviews", URL: "https://en.wikipedia.org/wiki/Portal:History"},
		{Title: "Lessons of History", URL: "https://fs.blog/the-lessons-of-history/"},
	}},
	{"technology", []domain.SourceLink{
		{Title: "Technology Research", URL: "https://www.nature.com/subjects/technology"},
		{Title: "Technology Strategy", URL: "https://sloanreview.mit.edu/topic/technology-innovation/"},
	}},
	{"career", []domain.SourceLink{
		{Title: "Career Planning", URL: "https://hbr.org/topic/subject/career-planning"},
		{Title: "Ideas Worth Spreading on Work", URL: "https://www.ted.com/topics/work"},
	}},
	{"entrepreneurship", []domain.SourceLink{
		{Title: "Entrepreneurship Essentials", URL: "https://hbr.org/topic/subject/entrepreneurship"},
		{Title: "Founders and Startups", URL: "https://www.ted.com/topics/entrepreneurship"},
	}},
	{"decision", []domain.SourceLink{
		{Title: "Decision-Making Frameworks", URL: "https://fs.blog/decision-making/"},
		{Title: "The Hidden Traps in Decision Making", URL: "https://hbr.org/topic/subject/decision-making-and-problem-solving"},
	}},
}

// keywordCategories сводит частые слова к категориям таблицы.
// Порядок важен: первое совпадение выигрывает.
var keywordCategories = []struct {
	Keyword  string
	Category string
}{
	{"invest", "finance"},
	{"money", "finance"},
	{"budget", "finance"},
	{"startup", "entrepreneurship"},
	{"business", "entrepreneurship"},
	{"focus", "productivity"},
	{"habit", "productivity"},
	{"time management", "productivity"},
	{"speak", "communication"},
	{"listen", "communication"},
	{"manage", "leadership"},
	{"team", "leadership"},
	{"brain", "psychology"},
	{"mind", "psychology"},
	{"persua", "negotiation"},
	{"ux", "design"},
	{"sleep", "health"},
	{"fitness", "health"},
	{"programming", "technology"},
	{"software", "technology"},
	{"job", "career"},
	{"interview", "career"},
	{"choice", "decision"},
}

var defaultSources = []domain.SourceLink{
	{Title: "Farnam Street: Learning Resources", URL: "https://fs.blog/blog/"},
	{Title: "TED: Ideas Worth Spreading", URL: "https://www.ted.com/talks"},
}

// ResolveFallbackSources подбирает детерминированный список источников
// по теме. Всегда возвращает непустой список.
func ResolveFallbackSources(topic string) []domain.SourceLink {
	normalized := domain.NormalizeTopic(topic)
	for _, entry := range fallbackCategories {
		if strings.Contains(normalized, entry.Category) {
			return entry.Sources
		}
	}
	for _, kw := range keywordCategories {
		if strings.Contains(normalized, kw.Keyword) {
			return categorySources(kw.Category)
		}
	}
	return defaultSources
}

func categorySources(category string) []domain.SourceLink {
	for _, entry := range fallbackCategories {
		if entry.Category == category {
			return entry.Sources
		}
	}
	return defaultSources
}
