package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulpit-ai/pulpit/internal/chat"
	"github.com/pulpit-ai/pulpit/internal/core"
	"github.com/pulpit-ai/pulpit/internal/models"
)

type fakeLLM struct {
	classifyAnswer string
	jsonPayload    string
	jsonErr        error
	streamText     string

	generateCalls int
	jsonCalls     int
	streamCalls   int
	streamSystem  string
	streamHistory []models.ChatMessage
}

func (f *fakeLLM) Generate(ctx context.Context, system, user string) (string, error) {
	f.generateCalls++
	return f.classifyAnswer, nil
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, system, user string, out any) error {
	f.jsonCalls++
	if f.jsonErr != nil {
		return f.jsonErr
	}
	return json.Unmarshal([]byte(f.jsonPayload), out)
}

func (f *fakeLLM) GenerateStream(ctx context.Context, system string, history []models.ChatMessage, user string, onDelta func(string) error) error {
	f.streamCalls++
	f.streamSystem = system
	f.streamHistory = history
	return onDelta(f.streamText)
}

type fakeEmbedder struct {
	calls     int
	lastQuery string
}

func (f *fakeEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	f.lastQuery = texts[0]
	return [][]float32{{0.1, 0.2, 0.3}}, nil
}

type fakeDB struct {
	core.DbClient

	chunks        []models.SermonChunk
	sermons       []models.Sermon
	searchCalls   int
	lastThreshold float64
	lastLimit     int

	topicRows  []models.TopicOverviewRow
	topicCalls int
}

func (f *fakeDB) SearchSermonChunks(ctx context.Context, userID string, vec []float32, threshold float64, limit int) ([]models.SermonChunk, error) {
	f.searchCalls++
	f.lastThreshold = threshold
	f.lastLimit = limit
	return f.chunks, nil
}

func (f *fakeDB) GetSermonsByIDs(ctx context.Context, userID string, ids []string) ([]models.Sermon, error) {
	return f.sermons, nil
}

func (f *fakeDB) TopicOverview(ctx context.Context, userID, topic string) ([]models.TopicOverviewRow, error) {
	f.topicCalls++
	return f.topicRows, nil
}

func collect(out *strings.Builder) func(string) error {
	return func(delta string) error {
		out.WriteString(delta)
		return nil
	}
}

func TestRespond_GeneralQuestionSkipsRetrieval(t *testing.T) {
	db := &fakeDB{}
	emb := &fakeEmbedder{}
	llm := &fakeLLM{classifyAnswer: "NO_CONTEXT", streamText: "Prayer is a conversation with God."}
	router := chat.NewRouter(db, emb, llm, llm)

	var out strings.Builder
	err := router.Respond(context.Background(), "user-1", "How should I pray?", nil, collect(&out))
	require.NoError(t, err)

	assert.Equal(t, "Prayer is a conversation with God.", out.String())
	assert.Zero(t, emb.calls)
	assert.Zero(t, db.searchCalls)
	assert.NotContains(t, out.String(), chat.RefsStart)
}

func TestRespond_AmbiguousClassificationUsesContext(t *testing.T) {
	db := &fakeDB{}
	emb := &fakeEmbedder{}
	llm := &fakeLLM{classifyAnswer: "hmm, unsure", jsonPayload: `{"function": "none"}`, streamText: "answer"}
	router := chat.NewRouter(db, emb, llm, llm)

	var out strings.Builder
	err := router.Respond(context.Background(), "user-1", "Tell me about shepherds", nil, collect(&out))
	require.NoError(t, err)

	assert.Equal(t, 1, db.searchCalls)
}

func TestRespond_ContextPathAppendsReferenceTrailer(t *testing.T) {
	db := &fakeDB{
		chunks: []models.SermonChunk{
			{SermonID: "s1", Content: "The lost sheep matters to the shepherd.", Similarity: 0.8},
			{SermonID: "s1", Content: "Ninety-nine are left on the hills.", Similarity: 0.6},
		},
		sermons: []models.Sermon{{ID: "s1", Title: "The Lost Sheep", Date: "2024-05-05"}},
	}
	emb := &fakeEmbedder{}
	llm := &fakeLLM{classifyAnswer: "NEEDS_CONTEXT", jsonPayload: `{"function": "none"}`, streamText: "You preached on this in The Lost Sheep."}
	router := chat.NewRouter(db, emb, llm, llm)

	var out strings.Builder
	err := router.Respond(context.Background(), "user-1", "Which sermon covered the lost sheep?", nil, collect(&out))
	require.NoError(t, err)

	assert.Equal(t, 0.3, db.lastThreshold)
	assert.Equal(t, 5, db.lastLimit)

	body := out.String()
	start := strings.Index(body, chat.RefsStart)
	end := strings.Index(body, chat.RefsEnd)
	require.Greater(t, start, 0)
	require.Greater(t, end, start)

	var refs []models.SermonRef
	require.NoError(t, json.Unmarshal([]byte(body[start+len(chat.RefsStart):end]), &refs))
	require.Len(t, refs, 1)
	assert.Equal(t, "s1", refs[0].ID)
	assert.Equal(t, "The Lost Sheep", refs[0].Title)

	assert.Contains(t, llm.streamSystem, "The Lost Sheep")
}

func TestRespond_ReferenceOrderFollowsRetrieval(t *testing.T) {
	db := &fakeDB{
		chunks: []models.SermonChunk{
			{SermonID: "s2", Content: "Zacchaeus climbed the sycamore.", Similarity: 0.9},
			{SermonID: "s1", Content: "The lost sheep matters to the shepherd.", Similarity: 0.7},
			{SermonID: "s2", Content: "He came to seek and save the lost.", Similarity: 0.5},
		},
		sermons: []models.Sermon{
			{ID: "s1", Title: "The Lost Sheep", Date: "2024-05-05"},
			{ID: "s2", Title: "Zacchaeus", Date: "2024-06-02"},
		},
	}
	emb := &fakeEmbedder{}
	llm := &fakeLLM{classifyAnswer: "NEEDS_CONTEXT", jsonPayload: `{"function": "none"}`, streamText: "answer"}
	router := chat.NewRouter(db, emb, llm, llm)

	var out strings.Builder
	err := router.Respond(context.Background(), "user-1", "Which sermon covered the lost?", nil, collect(&out))
	require.NoError(t, err)

	body := out.String()
	start := strings.Index(body, chat.RefsStart)
	end := strings.Index(body, chat.RefsEnd)
	require.Greater(t, start, 0)
	require.Greater(t, end, start)

	var refs []models.SermonRef
	require.NoError(t, json.Unmarshal([]byte(body[start+len(chat.RefsStart):end]), &refs))
	require.Len(t, refs, 2)
	assert.Equal(t, "s2", refs[0].ID)
	assert.Equal(t, "s1", refs[1].ID)
}

func TestRespond_ClassificationUsesDedicatedModel(t *testing.T) {
	db := &fakeDB{}
	emb := &fakeEmbedder{}
	classifier := &fakeLLM{classifyAnswer: "NEEDS_CONTEXT", jsonPayload: `{"function": "none"}`}
	generator := &fakeLLM{streamText: "answer"}
	router := chat.NewRouter(db, emb, classifier, generator)

	var out strings.Builder
	err := router.Respond(context.Background(), "user-1", "Which sermon covered Ruth?", nil, collect(&out))
	require.NoError(t, err)

	assert.Equal(t, 1, classifier.generateCalls)
	assert.Equal(t, 1, classifier.jsonCalls)
	assert.Zero(t, classifier.streamCalls)

	assert.Equal(t, 1, generator.streamCalls)
	assert.Zero(t, generator.generateCalls)
	assert.Zero(t, generator.jsonCalls)
}

func TestRespond_AnalyticalQuestionBroadensRetrieval(t *testing.T) {
	db := &fakeDB{}
	emb := &fakeEmbedder{}
	llm := &fakeLLM{classifyAnswer: "NEEDS_CONTEXT", jsonPayload: `{"function": "none"}`, streamText: "answer"}
	router := chat.NewRouter(db, emb, llm, llm)

	var out strings.Builder
	err := router.Respond(context.Background(), "user-1", "How often do I preach on forgiveness?", nil, collect(&out))
	require.NoError(t, err)

	assert.Equal(t, 0.2, db.lastThreshold)
	assert.Equal(t, 30, db.lastLimit)
}

func TestRespond_EntityQuestionAugmentsQuery(t *testing.T) {
	db := &fakeDB{}
	emb := &fakeEmbedder{}
	llm := &fakeLLM{classifyAnswer: "NEEDS_CONTEXT", jsonPayload: `{"function": "none"}`, streamText: "answer"}
	router := chat.NewRouter(db, emb, llm, llm)

	var out strings.Builder
	err := router.Respond(context.Background(), "user-1", "Who did I quote about suffering?", nil, collect(&out))
	require.NoError(t, err)

	assert.Contains(t, emb.lastQuery, "mentions, quotes, or references")
}

func TestRespond_FunctionResultFeedsSynthesis(t *testing.T) {
	db := &fakeDB{
		topicRows: []models.TopicOverviewRow{{Title: "Amazing Grace", Date: "2024-01-07"}},
	}
	emb := &fakeEmbedder{}
	llm := &fakeLLM{
		classifyAnswer: "NEEDS_CONTEXT",
		jsonPayload:    `{"function": "topic_overview", "parameters": {"topic": "grace"}}`,
		streamText:     "answer",
	}
	router := chat.NewRouter(db, emb, llm, llm)

	var out strings.Builder
	err := router.Respond(context.Background(), "user-1", "What have I preached about grace?", nil, collect(&out))
	require.NoError(t, err)

	assert.Equal(t, 1, db.topicCalls)
	assert.Contains(t, llm.streamSystem, "topic_overview")
	assert.Contains(t, llm.streamSystem, "Amazing Grace")
}

func TestRespond_FunctionFailureNeverBlocksAnswer(t *testing.T) {
	db := &fakeDB{}
	emb := &fakeEmbedder{}
	llm := &fakeLLM{
		classifyAnswer: "NEEDS_CONTEXT",
		jsonErr:        errors.New("routing model unavailable"),
		streamText:     "still answered",
	}
	router := chat.NewRouter(db, emb, llm, llm)

	var out strings.Builder
	err := router.Respond(context.Background(), "user-1", "Which sermon covered Ruth?", nil, collect(&out))
	require.NoError(t, err)

	assert.Equal(t, "still answered", out.String())
	assert.Equal(t, 1, db.searchCalls)
}

func TestRespond_HistoryIsBounded(t *testing.T) {
	db := &fakeDB{}
	emb := &fakeEmbedder{}
	llm := &fakeLLM{classifyAnswer: "NO_CONTEXT", streamText: "answer"}
	router := chat.NewRouter(db, emb, llm, llm)

	history := make([]models.ChatMessage, 0, 8)
	for i := 0; i < 7; i++ {
		history = append(history, models.ChatMessage{Role: "user", Content: "short question"})
	}
	history = append(history, models.ChatMessage{Role: "user", Content: strings.Repeat("x", 600)})

	var out strings.Builder
	err := router.Respond(context.Background(), "user-1", "How should I pray?", history, collect(&out))
	require.NoError(t, err)

	require.Len(t, llm.streamHistory, 4)
	for _, m := range llm.streamHistory {
		assert.LessOrEqual(t, len(m.Content), 500)
	}
}
