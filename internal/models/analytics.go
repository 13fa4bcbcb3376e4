package models

// Result rows for the canned analytics aggregations the chat router can
// dispatch to. All of them are already scoped to one user by the query.

type TopicOverviewRow struct {
	SermonID         string `json:"sermon_id"`
	Title            string `json:"title"`
	Date             string `json:"date"`
	PrimaryScripture string `json:"primary_scripture,omitempty"`
	Summary          string `json:"summary,omitempty"`
}

type PreachingPatternRow struct {
	Period      string   `json:"period"` // e.g. "2025-03" or "2025"
	SermonCount int      `json:"sermon_count"`
	TopTopics   []string `json:"top_topics"`
}

type RelatedSermonRow struct {
	SermonID   string  `json:"sermon_id"`
	Title      string  `json:"title"`
	Date       string  `json:"date"`
	Similarity float64 `json:"similarity"`
}

type ScriptureUsageRow struct {
	Book         string `json:"book"`
	UsageCount   int    `json:"usage_count"`
	LastPreached string `json:"last_preached"`
}
