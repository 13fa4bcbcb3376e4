package core

import (
	"context"
	"errors"
	"time"

	"github.com/pulpit-ai/pulpit/internal/models"
)

// ErrInvalidUpdate marks sermon updates rejected for request-level reasons,
// an unknown field or an empty patch, as opposed to storage failures.
var ErrInvalidUpdate = errors.New("invalid sermon update")

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateProcessingRecord(ctx context.Context, rec *models.ProcessingRecord) error
	GetProcessingRecord(ctx context.Context, id string) (*models.ProcessingRecord, error)
	// AdvanceProcessingStatus moves a record from one exact status to the
	// next; the update is conditional on the current status so concurrent
	// stage calls cannot double-advance.
	AdvanceProcessingStatus(ctx context.Context, id, from, to, sermonID string) error
	MarkProcessingError(ctx context.Context, id, message string) error

	CreateSermon(ctx context.Context, s *models.Sermon) error
	GetSermonByID(ctx context.Context, id, userID string) (*models.Sermon, error)
	GetSermonsByIDs(ctx context.Context, userID string, ids []string) ([]models.Sermon, error)
	ListSermonsByUser(ctx context.Context, userID string) ([]models.Sermon, error)
	UpdateSermonFields(ctx context.Context, id, userID string, fields map[string]any) (*models.Sermon, error)
	SetSermonFile(ctx context.Context, id, filePath, publicURL string) error
	// DeleteSermon removes the sermon, its chunks, and its processing
	// record in one transaction. Storage cleanup is the caller's job.
	DeleteSermon(ctx context.Context, id, userID string) error

	InsertSermonChunks(ctx context.Context, chunks []models.SermonChunk) error
	GetChunksBySermon(ctx context.Context, sermonID string) ([]models.SermonChunk, error)
	// SearchSermonChunks runs a cosine-similarity search over the given
	// user's chunks, keeping hits at or above threshold, best first.
	SearchSermonChunks(ctx context.Context, userID string, queryVec []float32, threshold float64, limit int) ([]models.SermonChunk, error)

	TopicOverview(ctx context.Context, userID, topic string) ([]models.TopicOverviewRow, error)
	PreachingPatterns(ctx context.Context, userID, timeframe string) ([]models.PreachingPatternRow, error)
	RelatedSermons(ctx context.Context, userID, sermonID string, limit int) ([]models.RelatedSermonRow, error)
	ScriptureUsage(ctx context.Context, userID, book string) ([]models.ScriptureUsageRow, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
	PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}
