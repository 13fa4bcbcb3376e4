package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulpit-ai/pulpit/internal/api/handlers"
	appMiddleware "github.com/pulpit-ai/pulpit/internal/api/middlewares"
	"github.com/pulpit-ai/pulpit/internal/chat"
	"github.com/pulpit-ai/pulpit/internal/core"
	"github.com/pulpit-ai/pulpit/internal/models"
	"github.com/pulpit-ai/pulpit/internal/sermon"
)

type fakeDB struct {
	core.DbClient

	user      *models.User
	record    *models.ProcessingRecord
	sermons   []models.Sermon
	updateErr error
	calls     int
}

func (f *fakeDB) CreateUser(ctx context.Context, user *models.User) error {
	f.calls++
	f.user = user
	return nil
}

func (f *fakeDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	f.calls++
	if f.user != nil && f.user.Email == email {
		return f.user, nil
	}
	return nil, nil
}

func (f *fakeDB) GetProcessingRecord(ctx context.Context, id string) (*models.ProcessingRecord, error) {
	f.calls++
	if f.record != nil && f.record.ID == id {
		return f.record, nil
	}
	return nil, nil
}

func (f *fakeDB) MarkProcessingError(ctx context.Context, id, message string) error {
	f.calls++
	return nil
}

func (f *fakeDB) ListSermonsByUser(ctx context.Context, userID string) ([]models.Sermon, error) {
	f.calls++
	return f.sermons, nil
}

func (f *fakeDB) GetSermonByID(ctx context.Context, id, userID string) (*models.Sermon, error) {
	f.calls++
	for i := range f.sermons {
		if f.sermons[i].ID == id && f.sermons[i].UserID == userID {
			return &f.sermons[i], nil
		}
	}
	return nil, nil
}

func (f *fakeDB) UpdateSermonFields(ctx context.Context, id, userID string, fields map[string]any) (*models.Sermon, error) {
	f.calls++
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	for i := range f.sermons {
		if f.sermons[i].ID == id && f.sermons[i].UserID == userID {
			if title, ok := fields["title"].(string); ok {
				f.sermons[i].Title = title
			}
			return &f.sermons[i], nil
		}
	}
	return nil, nil
}

func (f *fakeDB) DeleteSermon(ctx context.Context, id, userID string) error {
	f.calls++
	for i := range f.sermons {
		if f.sermons[i].ID == id && f.sermons[i].UserID == userID {
			f.sermons = append(f.sermons[:i], f.sermons[i+1:]...)
			return nil
		}
	}
	return nil
}

type fakeObject struct {
	core.ObjectClient

	deletes []string
}

func (f *fakeObject) PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	return "https://signed.example.com/" + key, nil
}

func (f *fakeObject) DeleteFile(ctx context.Context, bucket, key string) error {
	f.deletes = append(f.deletes, key)
	return nil
}

type quotaLLM struct{}

func (quotaLLM) Generate(ctx context.Context, system, user string) (string, error) {
	return "", core.ErrQuotaExhausted
}

func (quotaLLM) GenerateJSON(ctx context.Context, system, user string, out any) error {
	return core.ErrQuotaExhausted
}

func (quotaLLM) GenerateStream(ctx context.Context, system string, history []models.ChatMessage, user string, onDelta func(string) error) error {
	return core.ErrQuotaExhausted
}

type noopEmbedder struct{}

func (noopEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return [][]float32{{0}}, nil
}

func authed(r *http.Request, userID string) *http.Request {
	return r.WithContext(appMiddleware.WithUserID(r.Context(), userID))
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func newPipelineRouter(db *fakeDB) http.Handler {
	p := sermon.NewPipeline(db, &fakeObject{}, noopEmbedder{}, nil,
		sermon.NewClassifier(quotaLLM{}), sermon.NewValidator(quotaLLM{}),
		sermon.PipelineConfig{Bucket: "sermons"})
	h := handlers.NewPipelineHandler(p, 1<<20)

	r := chi.NewRouter()
	r.Post("/api/process-sermon/{id}/parse", h.Parse)
	r.Post("/api/process-sermon/{id}/vectorize", h.Vectorize)
	return r
}

func TestJWTMiddleware_RejectsMissingToken(t *testing.T) {
	db := &fakeDB{}
	handler := appMiddleware.JWT("test-secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		db.calls++
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/sermons", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Zero(t, db.calls, "nothing behind the middleware should run")
}

func TestJWTMiddleware_RejectsGarbageToken(t *testing.T) {
	handler := appMiddleware.JWT("test-secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/sermons", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestVectorize_WrongStateReturnsCurrentStatus(t *testing.T) {
	db := &fakeDB{record: &models.ProcessingRecord{
		ID: "proc-1", UserID: "user-1", Status: models.StatusUploaded, Text: "text",
	}}
	router := newPipelineRouter(db)

	req := authed(httptest.NewRequest(http.MethodPost, "/api/process-sermon/proc-1/vectorize", nil), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, models.StatusUploaded, body["currentStatus"])
	assert.Equal(t, models.StatusParsed, body["expectedStatus"])

	// The record itself is untouched.
	assert.Equal(t, models.StatusUploaded, db.record.Status)
}

func TestParse_UnknownRecordIs404(t *testing.T) {
	router := newPipelineRouter(&fakeDB{})

	req := authed(httptest.NewRequest(http.MethodPost, "/api/process-sermon/missing/parse", nil), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestParse_QuotaExhaustionIs429(t *testing.T) {
	db := &fakeDB{record: &models.ProcessingRecord{
		ID: "proc-1", UserID: "user-1", Status: models.StatusUploaded, Text: "text",
	}}
	router := newPipelineRouter(db)

	req := authed(httptest.NewRequest(http.MethodPost, "/api/process-sermon/proc-1/parse", nil), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestListSermons_UsesFormattedShape(t *testing.T) {
	db := &fakeDB{sermons: []models.Sermon{{
		ID: "s1", UserID: "user-1", Title: "The Vine", Date: "2024-04-14",
		PrimaryScripture: "John 15:1-8", KeyPoints: []string{"Abide"},
		FilePages: 6, WordCount: 2400,
	}}}
	h := handlers.NewSermonHandler(db, &fakeObject{}, "sermons")

	req := authed(httptest.NewRequest(http.MethodGet, "/api/sermons", nil), "user-1")
	rr := httptest.NewRecorder()
	h.List(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 1)

	assert.Equal(t, "John 15:1-8", list[0]["primaryScripture"])
	assert.Equal(t, float64(6), list[0]["pageCount"])
	assert.Equal(t, float64(2400), list[0]["wordCount"])
	assert.NotContains(t, list[0], "primary_scripture")
}

func TestGetSermon_ConfidenceView(t *testing.T) {
	db := &fakeDB{sermons: []models.Sermon{{
		ID: "s1", UserID: "user-1", Title: "The Vine",
		ConfidenceScores: map[string]float64{"title": 0.93},
	}}}
	h := handlers.NewSermonHandler(db, &fakeObject{}, "sermons")

	r := chi.NewRouter()
	r.Get("/api/sermons/{id}", h.Get)

	req := authed(httptest.NewRequest(http.MethodGet, "/api/sermons/s1?confidence=true", nil), "user-1")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var fields map[string]models.SermonField
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &fields))

	assert.Equal(t, "The Vine", fields["title"].Value)
	assert.Equal(t, 0.93, fields["title"].Confidence)
	assert.Equal(t, 0.0, fields["preacher"].Confidence)
}

func TestPatchSermon_UnknownFieldIs400(t *testing.T) {
	db := &fakeDB{updateErr: fmt.Errorf("%w: field not updatable: embedding", core.ErrInvalidUpdate)}
	h := handlers.NewSermonHandler(db, &fakeObject{}, "sermons")

	r := chi.NewRouter()
	r.Patch("/api/sermons/{id}", h.Patch)

	body := strings.NewReader(`{"embedding": "nope"}`)
	req := authed(httptest.NewRequest(http.MethodPatch, "/api/sermons/s1", body), "user-1")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, decodeBody(t, rr)["error"], "field not updatable")
}

func TestPatchSermon_StorageFailureIsOpaque500(t *testing.T) {
	db := &fakeDB{updateErr: errors.New("pq: connection refused host=db-internal.prod port=5432")}
	h := handlers.NewSermonHandler(db, &fakeObject{}, "sermons")

	r := chi.NewRouter()
	r.Patch("/api/sermons/{id}", h.Patch)

	body := strings.NewReader(`{"title": "A New Title"}`)
	req := authed(httptest.NewRequest(http.MethodPatch, "/api/sermons/s1", body), "user-1")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "connection refused")
	assert.NotContains(t, rr.Body.String(), "db-internal")
}

func TestPatchSermon_ReturnsUpdatedSummary(t *testing.T) {
	db := &fakeDB{sermons: []models.Sermon{{ID: "s1", UserID: "user-1", Title: "Old Title"}}}
	h := handlers.NewSermonHandler(db, &fakeObject{}, "sermons")

	r := chi.NewRouter()
	r.Patch("/api/sermons/{id}", h.Patch)

	body := strings.NewReader(`{"title": "A New Title"}`)
	req := authed(httptest.NewRequest(http.MethodPatch, "/api/sermons/s1", body), "user-1")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	got := decodeBody(t, rr)
	assert.Equal(t, "s1", got["id"])
	assert.Equal(t, "A New Title", got["title"])
}

func TestDeleteSermon_RequestsStorageRemovalOnce(t *testing.T) {
	db := &fakeDB{sermons: []models.Sermon{{
		ID: "s1", UserID: "user-1", Title: "The Vine",
		FilePath: "user-1/s1/vine.pdf",
	}}}
	obj := &fakeObject{}
	h := handlers.NewSermonHandler(db, obj, "sermons")

	r := chi.NewRouter()
	r.Delete("/api/sermons/{id}", h.Delete)

	req := authed(httptest.NewRequest(http.MethodDelete, "/api/sermons/s1", nil), "user-1")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"user-1/s1/vine.pdf"}, obj.deletes)
	assert.Empty(t, db.sermons)
}

func TestSignedPDF_ScopedToOwnFiles(t *testing.T) {
	h := handlers.NewSermonHandler(&fakeDB{}, &fakeObject{}, "sermons")

	req := authed(httptest.NewRequest(http.MethodGet, "/api/pdf?path=user-2/s9/other.pdf", nil), "user-1")
	rr := httptest.NewRecorder()
	h.SignedPDF(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	req = authed(httptest.NewRequest(http.MethodGet, "/api/pdf?path=user-1/s1/mine.pdf", nil), "user-1")
	rr = httptest.NewRecorder()
	h.SignedPDF(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "https://signed.example.com/user-1/s1/mine.pdf", decodeBody(t, rr)["url"])
}

func TestChat_QuotaBeforeStreamIs429(t *testing.T) {
	router := chat.NewRouter(&fakeDB{}, noopEmbedder{}, quotaLLM{}, quotaLLM{})
	h := handlers.NewChatHandler(router)

	body := strings.NewReader(`{"message": "How should I pray?"}`)
	req := authed(httptest.NewRequest(http.MethodPost, "/api/chat", body), "user-1")
	rr := httptest.NewRecorder()
	h.Chat(rr, req)

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestSignupThenLogin(t *testing.T) {
	db := &fakeDB{}
	h := handlers.NewAuthHandler(db, "test-secret")

	req := httptest.NewRequest(http.MethodPost, "/api/signup",
		strings.NewReader(`{"email": "pastor@example.com", "password": "hunter2"}`))
	rr := httptest.NewRecorder()
	h.Signup(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.NotEmpty(t, decodeBody(t, rr)["token"])

	req = httptest.NewRequest(http.MethodPost, "/api/login",
		strings.NewReader(`{"email": "pastor@example.com", "password": "wrong"}`))
	rr = httptest.NewRecorder()
	h.Login(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/login",
		strings.NewReader(`{"email": "pastor@example.com", "password": "hunter2"}`))
	rr = httptest.NewRecorder()
	h.Login(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestChat_EmptyMessageIs400(t *testing.T) {
	h := handlers.NewChatHandler(chat.NewRouter(&fakeDB{}, noopEmbedder{}, quotaLLM{}, quotaLLM{}))

	req := authed(httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message": "  "}`)), "user-1")
	rr := httptest.NewRecorder()
	h.Chat(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
