package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	appMiddleware "github.com/pulpit-ai/pulpit/internal/api/middlewares"
	"github.com/pulpit-ai/pulpit/internal/core"
	"github.com/pulpit-ai/pulpit/internal/models"
)

// SermonHandler serves the sermon library: listing, detail (optionally as
// per-field confidence view), partial updates, deletion and signed file URLs.
type SermonHandler struct {
	dbclient core.DbClient
	object   core.ObjectClient
	bucket   string
}

func NewSermonHandler(db core.DbClient, obj core.ObjectClient, bucket string) *SermonHandler {
	return &SermonHandler{dbclient: db, object: obj, bucket: bucket}
}

// sermonSummary is the list item shape returned by GET /api/sermons.
type sermonSummary struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Date             string   `json:"date"`
	Preacher         string   `json:"preacher"`
	Series           string   `json:"series"`
	Location         string   `json:"location"`
	FilePath         string   `json:"filePath"`
	FileName         string   `json:"fileName"`
	FileSize         int64    `json:"fileSize"`
	PageCount        int      `json:"pageCount"`
	UploadedAt       string   `json:"uploadedAt"`
	PrimaryScripture string   `json:"primaryScripture"`
	SermonType       string   `json:"sermonType"`
	Topics           []string `json:"topics"`
	Tags             []string `json:"tags"`
	Summary          string   `json:"summary"`
	KeyPoints        []string `json:"keyPoints"`
	Illustrations    []string `json:"illustrations"`
	Themes           []string `json:"themes"`
	CallsToAction    []string `json:"callsToAction"`
	PersonalStories  []string `json:"personalStories"`
	Tone             string   `json:"tone"`
	MentionedPeople  []string `json:"mentionedPeople"`
	MentionedEvents  []string `json:"mentionedEvents"`
	WordCount        int      `json:"wordCount"`
	Keywords         []string `json:"keywords"`
}

func summarize(s *models.Sermon) sermonSummary {
	return sermonSummary{
		ID:               s.ID,
		Title:            s.Title,
		Date:             s.Date,
		Preacher:         s.Preacher,
		Series:           s.Series,
		Location:         s.Location,
		FilePath:         s.FilePath,
		FileName:         s.FileName,
		FileSize:         s.FileSize,
		PageCount:        s.FilePages,
		UploadedAt:       s.CreatedAt.Format(time.RFC3339),
		PrimaryScripture: s.PrimaryScripture,
		SermonType:       s.SermonType,
		Topics:           s.Topics,
		Tags:             s.Tags,
		Summary:          s.Summary,
		KeyPoints:        s.KeyPoints,
		Illustrations:    s.Illustrations,
		Themes:           s.Themes,
		CallsToAction:    s.CallsToAction,
		PersonalStories:  s.PersonalStories,
		Tone:             s.Tone,
		MentionedPeople:  s.MentionedPeople,
		MentionedEvents:  s.MentionedEvents,
		WordCount:        s.WordCount,
		Keywords:         s.Keywords,
	}
}

func (h *SermonHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := appMiddleware.UserID(r.Context())

	sermons, err := h.dbclient.ListSermonsByUser(r.Context(), userID)
	if err != nil {
		log.Printf("list sermons: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch sermons")
		return
	}

	out := make([]sermonSummary, 0, len(sermons))
	for i := range sermons {
		out = append(out, summarize(&sermons[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// confidenceView wraps every metadata field with its extraction confidence.
func confidenceView(s *models.Sermon) map[string]models.SermonField {
	score := func(key string) float64 { return s.ConfidenceScores[key] }
	return map[string]models.SermonField{
		"id":                {Value: s.ID, Confidence: score("id")},
		"title":             {Value: s.Title, Confidence: score("title")},
		"date":              {Value: s.Date, Confidence: score("date")},
		"preacher":          {Value: s.Preacher, Confidence: score("preacher")},
		"series":            {Value: s.Series, Confidence: score("series")},
		"location":          {Value: s.Location, Confidence: score("location")},
		"primary_scripture": {Value: s.PrimaryScripture, Confidence: score("primary_scripture")},
		"scriptures":        {Value: s.Scriptures, Confidence: score("scriptures")},
		"sermon_type":       {Value: s.SermonType, Confidence: score("sermon_type")},
		"topics":            {Value: s.Topics, Confidence: score("topics")},
		"tags":              {Value: s.Tags, Confidence: score("tags")},
		"summary":           {Value: s.Summary, Confidence: score("summary")},
		"key_points":        {Value: s.KeyPoints, Confidence: score("key_points")},
		"illustrations":     {Value: s.Illustrations, Confidence: score("illustrations")},
		"themes":            {Value: s.Themes, Confidence: score("themes")},
		"calls_to_action":   {Value: s.CallsToAction, Confidence: score("calls_to_action")},
		"personal_stories":  {Value: s.PersonalStories, Confidence: score("personal_stories")},
		"mentioned_people":  {Value: s.MentionedPeople, Confidence: score("mentioned_people")},
		"mentioned_events":  {Value: s.MentionedEvents, Confidence: score("mentioned_events")},
		"tone":              {Value: s.Tone, Confidence: score("tone")},
		"keywords":          {Value: s.Keywords, Confidence: score("keywords")},
		"word_count":        {Value: s.WordCount, Confidence: score("word_count")},
	}
}

func (h *SermonHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := appMiddleware.UserID(r.Context())
	id := chi.URLParam(r, "id")

	s, err := h.dbclient.GetSermonByID(r.Context(), id, userID)
	if err != nil {
		log.Printf("get sermon %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to fetch sermon")
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, "sermon not found")
		return
	}

	if r.URL.Query().Get("confidence") == "true" {
		writeJSON(w, http.StatusOK, confidenceView(s))
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *SermonHandler) Patch(w http.ResponseWriter, r *http.Request) {
	userID := appMiddleware.UserID(r.Context())
	id := chi.URLParam(r, "id")

	var fields map[string]any
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s, err := h.dbclient.UpdateSermonFields(r.Context(), id, userID, fields)
	if errors.Is(err, core.ErrInvalidUpdate) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		log.Printf("update sermon %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to update sermon")
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, "sermon not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":         s.ID,
		"title":      s.Title,
		"created_at": s.CreatedAt,
		"updated_at": s.UpdatedAt,
	})
}

func (h *SermonHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := appMiddleware.UserID(r.Context())
	id := chi.URLParam(r, "id")

	s, err := h.dbclient.GetSermonByID(r.Context(), id, userID)
	if err != nil {
		log.Printf("get sermon %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to delete sermon")
		return
	}
	if s == nil {
		writeError(w, http.StatusNotFound, "sermon not found")
		return
	}

	// The stored file is removed best-effort; the database rows are
	// authoritative and go regardless.
	if s.FilePath != "" {
		if err := h.object.DeleteFile(r.Context(), h.bucket, s.FilePath); err != nil {
			log.Printf("delete file %s: %v", s.FilePath, err)
		}
	}

	if err := h.dbclient.DeleteSermon(r.Context(), id, userID); err != nil {
		log.Printf("delete sermon %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to delete sermon")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// SignedPDF returns a short-lived download URL for one of the caller's own
// stored files. Object keys are prefixed with the owner's user id, which is
// what scopes access here.
func (h *SermonHandler) SignedPDF(w http.ResponseWriter, r *http.Request) {
	userID := appMiddleware.UserID(r.Context())

	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "file path is required")
		return
	}
	if !strings.HasPrefix(path, userID+"/") {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	url, err := h.object.PresignGet(r.Context(), h.bucket, path, time.Hour)
	if err != nil {
		log.Printf("presign %s: %v", path, err)
		writeError(w, http.StatusInternalServerError, "could not access file")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
