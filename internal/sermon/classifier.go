package sermon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pulpit-ai/pulpit/internal/core"
	"github.com/pulpit-ai/pulpit/internal/models"
)

// sampleThreshold is the text length above which the classifier sees only
// the head and tail of the sermon, keeping both introduction and
// conclusion in view.
const sampleThreshold = 6000

// ExtractedMetadata is the structured record the metadata model returns.
// Unresolved fields stay zero-valued with confidence 0.
type ExtractedMetadata struct {
	Title            string   `json:"title"`
	Date             string   `json:"date"`
	Preacher         string   `json:"preacher"`
	Location         string   `json:"location"`
	Series           string   `json:"series"`
	PrimaryScripture string   `json:"primary_scripture"`
	Scriptures       []string `json:"scriptures"`
	SermonType       string   `json:"sermon_type"`
	Topics           []string `json:"topics"`
	Tags             []string `json:"tags"`
	Summary          string   `json:"summary"`
	KeyPoints        []string `json:"key_points"`
	Illustrations    []string `json:"illustrations"`
	Themes           []string `json:"themes"`
	CallsToAction    []string `json:"calls_to_action"`
	PersonalStories  []string `json:"personal_stories"`
	MentionedPeople  []string `json:"mentioned_people"`
	MentionedEvents  []string `json:"mentioned_events"`
	Tone             string   `json:"tone"`
	Keywords         []string `json:"keywords"`

	ConfidenceScores map[string]float64 `json:"confidence_scores"`
}

// Classifier turns raw sermon text into validated structured metadata.
type Classifier struct {
	llm core.LLMProvider
}

func NewClassifier(llm core.LLMProvider) *Classifier {
	return &Classifier{llm: llm}
}

const classifierSystemPrompt = `You are a sermon metadata extractor. Analyze the sermon text and return JSON with exactly these fields:
- title: string
- date: string, YYYY-MM-DD
- preacher: string
- location: string
- series: string
- primary_scripture: string (e.g. "Matthew 21:1-11")
- scriptures: array of references, e.g. ["Matthew 21:1-11", "Zechariah 9:9"]
- sermon_type: one of "expository", "textual", "topical", "narrative"
- topics: array of 1-3 topics
- tags: array of 1-3 tags chosen only from: ` + "%s" + `
- summary: string, 100-200 words
- key_points: array of 1-3 key points
- illustrations: array of strings
- themes: array of strings
- calls_to_action: array of strings
- personal_stories: array of strings
- mentioned_people: array of strings
- mentioned_events: array of strings
- tone: string
- keywords: array of strings
- confidence_scores: object mapping every field name above to a score between 0 and 1

If you cannot determine a field, use null (or an empty array) and give it confidence 0.`

// Extract runs the metadata model over the text and applies the boundary
// validation rules before anything reaches storage.
func (c *Classifier) Extract(ctx context.Context, text string) (*ExtractedMetadata, error) {
	system := fmt.Sprintf(classifierSystemPrompt, strings.Join(models.SermonTags, ", "))

	var meta ExtractedMetadata
	if err := c.llm.GenerateJSON(ctx, system, "Extract the metadata from this sermon:\n\n"+sampleText(text), &meta); err != nil {
		return nil, fmt.Errorf("metadata extraction: %w", err)
	}

	meta.validate()
	return &meta, nil
}

// sampleText keeps the head and tail of long texts so the model sees the
// introduction and the conclusion.
func sampleText(text string) string {
	if len(text) <= sampleThreshold {
		return text
	}
	half := sampleThreshold / 2
	return text[:half] + "\n...\n" + text[len(text)-half:]
}

// validate enforces the closed vocabularies and normalizes confidence
// scores. Non-conforming values are nulled, never coerced.
func (m *ExtractedMetadata) validate() {
	if m.ConfidenceScores == nil {
		m.ConfidenceScores = map[string]float64{}
	}
	for k, v := range m.ConfidenceScores {
		if v < 0 {
			m.ConfidenceScores[k] = 0
		} else if v > 1 {
			m.ConfidenceScores[k] = 1
		}
	}

	m.SermonType = normalizeSermonType(m.SermonType)
	if m.SermonType == "" {
		m.ConfidenceScores["sermon_type"] = 0
	}

	m.Tags = normalizeTags(m.Tags)
	if len(m.Tags) == 0 {
		m.Tags = nil
		m.ConfidenceScores["tags"] = 0
	}

	if m.Date != "" {
		if _, err := time.Parse("2006-01-02", m.Date); err != nil {
			m.Date = ""
			m.ConfidenceScores["date"] = 0
		}
	}
}

// normalizeSermonType maps model output onto the four accepted values,
// tolerating case differences and a trailing " sermon". Anything else
// becomes empty.
func normalizeSermonType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	t = strings.TrimSuffix(t, " sermon")
	if models.ValidSermonType(t) {
		return t
	}
	return ""
}

// normalizeTags keeps only taxonomy tags, at most MaxSermonTags of them.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, models.MaxSermonTags)
	seen := map[string]bool{}
	for _, tag := range tags {
		tag = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(tag)), " ", "-")
		if !models.ValidSermonTag(tag) || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
		if len(out) == models.MaxSermonTags {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
