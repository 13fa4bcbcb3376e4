package chat

import (
	"context"
)

// The fixed catalog of analytics operations the router may dispatch to.
// "none" is a valid classification; it means plain retrieval only.
const (
	fnTopicOverview     = "topic_overview"
	fnPreachingPatterns = "preaching_patterns"
	fnRelatedSermons    = "related_sermons"
	fnScriptureUsage    = "scripture_usage"
	fnNone              = "none"
)

// FunctionCall is the structured classification of a user question against
// the analytics catalog.
type FunctionCall struct {
	Function   string `json:"function"`
	Parameters struct {
		Topic     string `json:"topic"`
		Timeframe string `json:"timeframe"`
		SermonID  string `json:"sermon_id"`
		Limit     int    `json:"limit"`
		Book      string `json:"book"`
	} `json:"parameters"`
}

const functionRouterPrompt = `You are a sermon database assistant. Classify the user's question against this catalog of analytics operations and extract parameters:

- topic_overview: overview of sermons about a topic. Parameters: topic (required).
- preaching_patterns: preaching patterns over time. Parameters: timeframe ("year", "month" or "season", required).
- related_sermons: sermons related to a specific sermon. Parameters: sermon_id (required UUID), limit (optional).
- scripture_usage: how scriptures are used across sermons. Parameters: book (optional Bible book, e.g. "Romans").
- none: the question fits no operation above.

Example mappings:
- "What have I preached about grace?" -> topic_overview with topic "grace"
- "How has my preaching changed month to month?" -> preaching_patterns with timeframe "month"
- "Which books of the Bible do I preach from most?" -> scripture_usage

Respond with JSON: {"function": "...", "parameters": {...}}.`

// classifyFunction asks the model to match the question against the
// catalog. An unknown function name degrades to none.
func (r *Router) classifyFunction(ctx context.Context, question string) (*FunctionCall, error) {
	var call FunctionCall
	if err := r.classifier.GenerateJSON(ctx, functionRouterPrompt, question, &call); err != nil {
		return nil, err
	}
	switch call.Function {
	case fnTopicOverview, fnPreachingPatterns, fnRelatedSermons, fnScriptureUsage, fnNone:
		return &call, nil
	default:
		call.Function = fnNone
		return &call, nil
	}
}

// dispatchFunction runs the classified aggregation. Empty results come
// back as (nil, nil) so the caller can skip them.
func (r *Router) dispatchFunction(ctx context.Context, userID string, call *FunctionCall) (any, error) {
	switch call.Function {
	case fnTopicOverview:
		if call.Parameters.Topic == "" {
			return nil, nil
		}
		rows, err := r.db.TopicOverview(ctx, userID, call.Parameters.Topic)
		if err != nil || len(rows) == 0 {
			return nil, err
		}
		return rows, nil
	case fnPreachingPatterns:
		rows, err := r.db.PreachingPatterns(ctx, userID, call.Parameters.Timeframe)
		if err != nil || len(rows) == 0 {
			return nil, err
		}
		return rows, nil
	case fnRelatedSermons:
		if call.Parameters.SermonID == "" {
			return nil, nil
		}
		rows, err := r.db.RelatedSermons(ctx, userID, call.Parameters.SermonID, call.Parameters.Limit)
		if err != nil || len(rows) == 0 {
			return nil, err
		}
		return rows, nil
	case fnScriptureUsage:
		rows, err := r.db.ScriptureUsage(ctx, userID, call.Parameters.Book)
		if err != nil || len(rows) == 0 {
			return nil, err
		}
		return rows, nil
	default:
		return nil, nil
	}
}
