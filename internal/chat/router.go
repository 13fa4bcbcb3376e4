// Package chat routes user questions to the right response strategy:
// direct answers for general questions, retrieval-augmented answers for
// questions about the user's own sermons.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/pulpit-ai/pulpit/internal/core"
	"github.com/pulpit-ai/pulpit/internal/models"
)

// Conversation history bounds: the most recent maxHistory messages, each
// at most maxMessageLen characters; everything else is dropped.
const (
	maxHistory    = 5
	maxMessageLen = 500
)

// Retrieval constants. Analytical queries trade precision for recall.
const (
	broadThreshold   = 0.2
	broadLimit       = 30
	focusedThreshold = 0.3
	focusedLimit     = 5
)

// Sentinels delimiting the machine-parseable sermon-reference trailer.
const (
	RefsStart = "[SERMON_REFS]"
	RefsEnd   = "[/SERMON_REFS]"
)

var (
	analyticalPattern = regexp.MustCompile(`(?i)how (many|often)|frequency|pattern|when.*last|history`)
	entityPattern     = regexp.MustCompile(`(?i)\bwho\b|\bmention(s|ed)?\b|\bquote(s|d)?\b|\bperson\b|\bpeople\b`)
)

// Router sends the short classification calls (context check, function
// routing) to a cheaper model and the streamed answers to the full one.
type Router struct {
	db         core.DbClient
	embedder   core.EmbeddingProvider
	classifier core.LLMProvider
	generator  core.LLMProvider
}

func NewRouter(db core.DbClient, emb core.EmbeddingProvider, classifier, generator core.LLMProvider) *Router {
	return &Router{db: db, embedder: emb, classifier: classifier, generator: generator}
}

const contextClassifierPrompt = `Determine if this question requires searching through the user's own sermon content or if it is a general question.

Questions that NEED_CONTEXT:
- "What did Pastor John say about marriage last month?"
- "Which sermon talked about the prodigal son?"
- "When was the last time you covered Revelation?"
- "How many times have you preached on forgiveness?"

Questions that do NOT need context (NO_CONTEXT):
- "What does the Bible say about marriage?"
- "Can you explain the story of the prodigal son?"
- "How should I pray?"

Rules:
1. If the question references specific sermons, pastors, or past teachings -> NEEDS_CONTEXT
2. If the question asks about frequency, patterns, or history -> NEEDS_CONTEXT
3. If the question is about general biblical or theological topics -> NO_CONTEXT
4. If in doubt, prefer NEEDS_CONTEXT for better accuracy

Reply with only "NEEDS_CONTEXT" or "NO_CONTEXT".`

const generalSystemPrompt = `You are a helpful pastoral assistant.
Answer general questions about ministry, theology, and church leadership without referencing specific sermons.
Be direct and helpful. Do not start with a greeting; answer the question directly while maintaining a warm, professional tone.`

// Respond streams the answer for one user message through onDelta.
// The sermon-reference trailer, when present, is delivered through the
// same sink after the answer body.
func (r *Router) Respond(ctx context.Context, userID, message string, history []models.ChatMessage, onDelta func(delta string) error) error {
	history = boundHistory(history)

	needsContext, err := r.needsContext(ctx, message)
	if err != nil {
		return err
	}
	if !needsContext {
		return r.generator.GenerateStream(ctx, generalSystemPrompt, history, message, onDelta)
	}
	return r.respondWithContext(ctx, userID, message, history, onDelta)
}

// boundHistory keeps the most recent turns and drops oversized messages.
func boundHistory(history []models.ChatMessage) []models.ChatMessage {
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	out := make([]models.ChatMessage, 0, len(history))
	for _, m := range history {
		if len(m.Content) <= maxMessageLen {
			out = append(out, m)
		}
	}
	return out
}

// needsContext defaults to true on any answer other than a clean
// NO_CONTEXT, favoring recall over precision.
func (r *Router) needsContext(ctx context.Context, message string) (bool, error) {
	answer, err := r.classifier.Generate(ctx, contextClassifierPrompt, fmt.Sprintf("Question: %q", message))
	if err != nil {
		return false, fmt.Errorf("context classification: %w", err)
	}
	return strings.TrimSpace(answer) != "NO_CONTEXT", nil
}

// respondWithContext merges two independent, best-effort context sources
// (analytics function routing and similarity retrieval) before synthesis.
func (r *Router) respondWithContext(ctx context.Context, userID, message string, history []models.ChatMessage, onDelta func(delta string) error) error {
	analytical := analyticalPattern.MatchString(message)

	// Function routing never blocks the response; on any failure we just
	// answer from retrieval alone.
	var functionContext string
	if call, err := r.classifyFunction(ctx, message); err != nil {
		log.Printf("chat: function classification skipped: %v", err)
	} else if result, err := r.dispatchFunction(ctx, userID, call); err != nil {
		log.Printf("chat: %s dispatch skipped: %v", call.Function, err)
	} else if result != nil {
		if b, err := json.Marshal(result); err == nil {
			functionContext = fmt.Sprintf("Database analysis (%s):\n%s", call.Function, b)
		}
	}

	chunks, sermons, err := r.retrieve(ctx, userID, message, analytical)
	if err != nil {
		return err
	}

	system := synthesisPrompt(chunks, sermons, functionContext)
	if err := r.generator.GenerateStream(ctx, system, history, message, onDelta); err != nil {
		return err
	}

	return emitReferences(chunks, sermons, onDelta)
}

// retrieve embeds the question and runs the user-scoped similarity
// search, attaching parent sermon metadata to each hit.
func (r *Router) retrieve(ctx context.Context, userID, message string, analytical bool) ([]models.SermonChunk, map[string]models.Sermon, error) {
	query := message
	if entityPattern.MatchString(message) {
		// Steer the embedding toward passages naming people and events.
		query += " mentions, quotes, or references"
	}

	vecs, err := r.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, nil, fmt.Errorf("embed query: empty result")
	}

	threshold, limit := focusedThreshold, focusedLimit
	if analytical {
		threshold, limit = broadThreshold, broadLimit
	}

	chunks, err := r.db.SearchSermonChunks(ctx, userID, vecs[0], threshold, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("similarity search: %w", err)
	}

	ids := make([]string, 0, len(chunks))
	seen := map[string]bool{}
	for _, ch := range chunks {
		if !seen[ch.SermonID] {
			seen[ch.SermonID] = true
			ids = append(ids, ch.SermonID)
		}
	}

	sermons := map[string]models.Sermon{}
	if len(ids) > 0 {
		rows, err := r.db.GetSermonsByIDs(ctx, userID, ids)
		if err != nil {
			return nil, nil, fmt.Errorf("fetch sermon metadata: %w", err)
		}
		for _, s := range rows {
			sermons[s.ID] = s
		}
	}
	return chunks, sermons, nil
}

func synthesisPrompt(chunks []models.SermonChunk, sermons map[string]models.Sermon, functionContext string) string {
	var b strings.Builder
	b.WriteString(`You are a helpful sermon assistant for a preacher reviewing their own sermon history.
Answer conversationally, cite sermon titles and dates naturally, and keep responses clear and organized.

`)
	if functionContext != "" {
		b.WriteString(functionContext)
		b.WriteString("\n\n")
	}
	if len(chunks) > 0 {
		b.WriteString("Sermon excerpts, most relevant first:\n")
		for _, ch := range chunks {
			s := sermons[ch.SermonID]
			fmt.Fprintf(&b, "[Sermon: %q (%s) Content: %s]\n\n", s.Title, s.Date, ch.Content)
		}
	} else {
		b.WriteString("No relevant sermon excerpts were found; say so rather than inventing sermons.\n")
	}
	return b.String()
}

// emitReferences appends the sentinel-delimited JSON trailer clients parse
// into clickable sermon references. Refs follow the retrieval order of the
// chunks, best match first, so identical requests produce identical trailers.
func emitReferences(chunks []models.SermonChunk, sermons map[string]models.Sermon, onDelta func(delta string) error) error {
	if len(sermons) == 0 {
		return nil
	}
	refs := make([]models.SermonRef, 0, len(sermons))
	seen := map[string]bool{}
	for _, ch := range chunks {
		s, ok := sermons[ch.SermonID]
		if !ok || seen[ch.SermonID] {
			continue
		}
		seen[ch.SermonID] = true
		refs = append(refs, models.SermonRef{ID: s.ID, Title: s.Title, Date: s.Date})
	}
	if len(refs) == 0 {
		return nil
	}
	b, err := json.Marshal(refs)
	if err != nil {
		return err
	}
	return onDelta("\n" + RefsStart + string(b) + RefsEnd)
}
