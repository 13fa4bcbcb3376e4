package sermon

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pulpit-ai/pulpit/internal/core"
	"github.com/pulpit-ai/pulpit/internal/core/textsplit"
	"github.com/pulpit-ai/pulpit/internal/models"
)

// PipelineConfig tunes the ingestion pipeline.
//
// Bucket:         object-storage bucket for sermon files.
// EmbedBatchSize: chunks embedded per batch; batches run sequentially so
//                 partial progress survives a mid-run crash.
type PipelineConfig struct {
	Bucket         string
	EmbedBatchSize int
	MaxChunkSize   int
	ChunkOverlap   int
}

// Pipeline drives an upload through uploaded -> parsed -> vectorized ->
// completed. Each stage is invoked by a separate client call; a stage
// asserts its exact predecessor state before doing any work, and on
// failure marks the record error without rolling back committed work.
type Pipeline struct {
	db         core.DbClient
	obj        core.ObjectClient
	embedder   core.EmbeddingProvider
	extractor  core.TextExtractor
	classifier *Classifier
	validator  *Validator
	splitter   textsplit.Splitter
	cfg        PipelineConfig
}

func NewPipeline(db core.DbClient, obj core.ObjectClient, emb core.EmbeddingProvider, ext core.TextExtractor, cls *Classifier, val *Validator, cfg PipelineConfig) *Pipeline {
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 5
	}
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = 1000
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = 200
	}
	return &Pipeline{
		db:         db,
		obj:        obj,
		embedder:   emb,
		extractor:  ext,
		classifier: cls,
		validator:  val,
		splitter:   textsplit.New(textsplit.Config{MaxChunkSize: cfg.MaxChunkSize, Overlap: cfg.ChunkOverlap}),
		cfg:        cfg,
	}
}

// StageResult is what each pipeline stage reports back to the client.
type StageResult struct {
	ProcessingID string `json:"processingId"`
	SermonID     string `json:"sermonId,omitempty"`
	Status       string `json:"status"`
	NextStep     string `json:"nextStep,omitempty"`
	ChunkCount   int    `json:"chunkCount,omitempty"`
	FilePath     string `json:"filePath,omitempty"`
	PublicURL    string `json:"publicUrl,omitempty"`
}

// Upload extracts text from the document, verifies it is a sermon, and
// creates the processing record in the uploaded state.
func (p *Pipeline) Upload(ctx context.Context, userID, fileName, fileType string, data []byte) (*models.ProcessingRecord, error) {
	extraction, err := p.extractor.Extract(ctx, data, fileType)
	if err != nil {
		return nil, err
	}

	verdict, err := p.validator.Validate(ctx, extraction.Text)
	if err != nil {
		return nil, err
	}
	if !verdict.IsSermon {
		return nil, &NotSermonError{Reason: verdict.Reason}
	}

	rec := &models.ProcessingRecord{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    models.StatusUploaded,
		Text:      extraction.Text,
		FileName:  filepath.Base(fileName),
		FileSize:  int64(len(data)),
		FileType:  fileType,
		FilePages: extraction.Pages,
	}
	if err := p.db.CreateProcessingRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("create processing record: %w", err)
	}
	log.Printf("pipeline: upload accepted, processing=%s pages=%d", rec.ID, rec.FilePages)
	return rec, nil
}

// loadExpecting fetches the record, checks ownership and asserts the exact
// predecessor status. Nothing is mutated when the assertion fails.
func (p *Pipeline) loadExpecting(ctx context.Context, id, userID, expected string) (*models.ProcessingRecord, error) {
	rec, err := p.db.GetProcessingRecord(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load processing record: %w", err)
	}
	if rec == nil || rec.UserID != userID {
		return nil, ErrRecordNotFound
	}
	if rec.Status != expected {
		return nil, &InvalidStateError{ProcessingID: id, Expected: expected, Actual: rec.Status}
	}
	return rec, nil
}

// fail marks the record error with a diagnostic message and returns the
// original failure. The record is kept for operator inspection.
func (p *Pipeline) fail(ctx context.Context, id, stage string, err error) error {
	log.Printf("pipeline: %s failed, processing=%s: %v", stage, id, err)
	if markErr := p.db.MarkProcessingError(ctx, id, fmt.Sprintf("%s: %v", stage, err)); markErr != nil {
		log.Printf("pipeline: could not mark error, processing=%s: %v", id, markErr)
	}
	return err
}

// Parse extracts structured metadata from the stored text and creates the
// sermon record. uploaded -> parsed.
func (p *Pipeline) Parse(ctx context.Context, id, userID string) (*StageResult, error) {
	rec, err := p.loadExpecting(ctx, id, userID, models.StatusUploaded)
	if err != nil {
		return nil, err
	}

	meta, err := p.classifier.Extract(ctx, rec.Text)
	if err != nil {
		return nil, p.fail(ctx, id, "parse", err)
	}

	s := sermonFromMetadata(meta, rec)
	if err := p.db.CreateSermon(ctx, s); err != nil {
		return nil, p.fail(ctx, id, "parse", fmt.Errorf("create sermon: %w", err))
	}

	if err := p.db.AdvanceProcessingStatus(ctx, id, models.StatusUploaded, models.StatusParsed, s.ID); err != nil {
		return nil, p.fail(ctx, id, "parse", err)
	}

	return &StageResult{
		ProcessingID: id,
		SermonID:     s.ID,
		Status:       models.StatusParsed,
		NextStep:     "vectorize",
	}, nil
}

// sermonFromMetadata fills the sermon row, substituting defaults for
// fields the model could not resolve.
func sermonFromMetadata(meta *ExtractedMetadata, rec *models.ProcessingRecord) *models.Sermon {
	title := meta.Title
	if title == "" {
		title = "Untitled Sermon"
	}
	date := meta.Date
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	preacher := meta.Preacher
	if preacher == "" {
		preacher = "Unknown Preacher"
	}
	summary := meta.Summary
	if summary == "" {
		summary = "No summary available"
	}

	return &models.Sermon{
		ID:               uuid.NewString(),
		UserID:           rec.UserID,
		Title:            title,
		Date:             date,
		Preacher:         preacher,
		Location:         meta.Location,
		Series:           meta.Series,
		PrimaryScripture: meta.PrimaryScripture,
		Scriptures:       meta.Scriptures,
		SermonType:       meta.SermonType,
		Topics:           meta.Topics,
		Tags:             meta.Tags,
		Summary:          summary,
		KeyPoints:        meta.KeyPoints,
		Illustrations:    meta.Illustrations,
		Themes:           meta.Themes,
		CallsToAction:    meta.CallsToAction,
		PersonalStories:  meta.PersonalStories,
		MentionedPeople:  meta.MentionedPeople,
		MentionedEvents:  meta.MentionedEvents,
		Tone:             meta.Tone,
		Keywords:         meta.Keywords,
		WordCount:        len(strings.Fields(rec.Text)),
		ConfidenceScores: meta.ConfidenceScores,
		FileName:         rec.FileName,
		FileSize:         rec.FileSize,
		FileType:         rec.FileType,
		FilePages:        rec.FilePages,
		ProcessingID:     rec.ID,
	}
}

// Vectorize chunks the stored text, embeds the chunks in sequential
// batches, and persists them batch-by-batch. parsed -> vectorized.
// A mid-run failure leaves already-persisted chunks in place; re-invoking
// from the parsed state is the recovery path.
func (p *Pipeline) Vectorize(ctx context.Context, id, userID string) (*StageResult, error) {
	rec, err := p.loadExpecting(ctx, id, userID, models.StatusParsed)
	if err != nil {
		return nil, err
	}

	chunks := p.splitter.Chunk(rec.Text)
	if len(chunks) == 0 {
		return nil, p.fail(ctx, id, "vectorize", fmt.Errorf("no chunks produced from %d chars of text", len(rec.Text)))
	}

	for start := 0; start < len(chunks); start += p.cfg.EmbedBatchSize {
		end := start + p.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		if err := p.embedBatch(ctx, rec.SermonID, chunks[start:end], start); err != nil {
			return nil, p.fail(ctx, id, "vectorize", err)
		}
	}

	if err := p.db.AdvanceProcessingStatus(ctx, id, models.StatusParsed, models.StatusVectorized, ""); err != nil {
		return nil, p.fail(ctx, id, "vectorize", err)
	}

	return &StageResult{
		ProcessingID: id,
		SermonID:     rec.SermonID,
		Status:       models.StatusVectorized,
		ChunkCount:   len(chunks),
		NextStep:     "store",
	}, nil
}

// embedBatch embeds one batch's chunks concurrently and persists them in a
// single insert. Storage order is reconstructed from chunk_index, not from
// embedding completion order.
func (p *Pipeline) embedBatch(ctx context.Context, sermonID string, batch []string, offset int) error {
	rows := make([]models.SermonChunk, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	for i, content := range batch {
		g.Go(func() error {
			vecs, err := p.embedder.EmbedTexts(gctx, []string{content})
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", offset+i, err)
			}
			if len(vecs) != 1 {
				return fmt.Errorf("embed chunk %d: got %d vectors", offset+i, len(vecs))
			}
			rows[i] = models.SermonChunk{
				ID:         uuid.NewString(),
				SermonID:   sermonID,
				Content:    content,
				Embedding:  vecs[0],
				ChunkIndex: offset + i,
				ChunkType:  "content",
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := p.db.InsertSermonChunks(ctx, rows); err != nil {
		return fmt.Errorf("insert chunk batch at %d: %w", offset, err)
	}
	return nil
}

// Store persists the original file and finalizes the sermon record.
// vectorized -> completed.
func (p *Pipeline) Store(ctx context.Context, id, userID string, data []byte, contentType string) (*StageResult, error) {
	rec, err := p.loadExpecting(ctx, id, userID, models.StatusVectorized)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s/%s/%s", rec.UserID, rec.SermonID, strings.ReplaceAll(rec.FileName, " ", "_"))
	publicURL, err := p.obj.UploadFile(ctx, p.cfg.Bucket, key, data, contentType)
	if err != nil {
		return nil, p.fail(ctx, id, "store", fmt.Errorf("upload file: %w", err))
	}

	if err := p.db.SetSermonFile(ctx, rec.SermonID, key, publicURL); err != nil {
		return nil, p.fail(ctx, id, "store", err)
	}

	if err := p.db.AdvanceProcessingStatus(ctx, id, models.StatusVectorized, models.StatusCompleted, ""); err != nil {
		return nil, p.fail(ctx, id, "store", err)
	}

	return &StageResult{
		ProcessingID: id,
		SermonID:     rec.SermonID,
		Status:       models.StatusCompleted,
		FilePath:     key,
		PublicURL:    publicURL,
	}, nil
}
