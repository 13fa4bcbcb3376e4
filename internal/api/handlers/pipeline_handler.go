package handlers

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	appMiddleware "github.com/pulpit-ai/pulpit/internal/api/middlewares"
	"github.com/pulpit-ai/pulpit/internal/core"
	"github.com/pulpit-ai/pulpit/internal/core/extract"
	"github.com/pulpit-ai/pulpit/internal/models"
	"github.com/pulpit-ai/pulpit/internal/sermon"
)

// PipelineHandler exposes the client-driven ingestion pipeline: upload,
// then parse, vectorize and store as separate calls.
type PipelineHandler struct {
	pipeline *sermon.Pipeline
	maxBytes int64
}

func NewPipelineHandler(p *sermon.Pipeline, maxBytes int64) *PipelineHandler {
	return &PipelineHandler{pipeline: p, maxBytes: maxBytes}
}

// readUploadedFile validates and reads the multipart "file" field. All
// validation happens before any external call.
func (h *PipelineHandler) readUploadedFile(w http.ResponseWriter, r *http.Request) (name, contentType string, data []byte, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid or oversized upload")
		return "", "", nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return "", "", nil, false
	}
	defer file.Close()

	contentType = header.Header.Get("Content-Type")
	isPDF := contentType == "application/pdf" ||
		strings.EqualFold(filepath.Ext(header.Filename), ".pdf")
	if !isPDF {
		writeError(w, http.StatusBadRequest, "file must be a PDF")
		return "", "", nil, false
	}
	if contentType == "" {
		contentType = "application/pdf"
	}

	data, err = io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read file")
		return "", "", nil, false
	}
	return header.Filename, contentType, data, true
}

// Upload extracts and validates the document, then creates the processing
// record in the uploaded state.
func (h *PipelineHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID := appMiddleware.UserID(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	name, contentType, data, ok := h.readUploadedFile(w, r)
	if !ok {
		return
	}

	rec, err := h.pipeline.Upload(r.Context(), userID, name, contentType, data)
	if err != nil {
		var notSermon *sermon.NotSermonError
		switch {
		case errors.As(err, &notSermon):
			writeError(w, http.StatusBadRequest, notSermon.Error())
		case errors.Is(err, extract.ErrExtraction):
			writeError(w, http.StatusBadRequest, "could not extract text from file")
		case errors.Is(err, core.ErrQuotaExhausted):
			writeError(w, http.StatusTooManyRequests, "service temporarily unavailable")
		default:
			writeError(w, http.StatusInternalServerError, "failed to process file")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"processingId": rec.ID,
		"status":       models.StatusUploaded,
	})
}

func (h *PipelineHandler) Parse(w http.ResponseWriter, r *http.Request) {
	userID := appMiddleware.UserID(r.Context())
	id := chi.URLParam(r, "id")

	res, err := h.pipeline.Parse(r.Context(), id, userID)
	if err != nil {
		writeStageError(w, "parse", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *PipelineHandler) Vectorize(w http.ResponseWriter, r *http.Request) {
	userID := appMiddleware.UserID(r.Context())
	id := chi.URLParam(r, "id")

	res, err := h.pipeline.Vectorize(r.Context(), id, userID)
	if err != nil {
		writeStageError(w, "vectorize", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Store receives the original file again and finalizes the sermon.
func (h *PipelineHandler) Store(w http.ResponseWriter, r *http.Request) {
	userID := appMiddleware.UserID(r.Context())
	id := chi.URLParam(r, "id")

	_, contentType, data, ok := h.readUploadedFile(w, r)
	if !ok {
		return
	}

	res, err := h.pipeline.Store(r.Context(), id, userID, data, contentType)
	if err != nil {
		writeStageError(w, "store", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
