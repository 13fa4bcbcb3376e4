package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/pulpit-ai/pulpit/internal/core"
	"github.com/pulpit-ai/pulpit/internal/models"
)

// sermonColumns is the canonical projection for sermon rows. Date comes
// back as YYYY-MM-DD text; JSONB columns are scanned as raw bytes and
// decoded in scanSermon.
const sermonColumns = `
	id, user_id, title, to_char(date, 'YYYY-MM-DD'), preacher,
	COALESCE(location, ''), COALESCE(series, ''), COALESCE(primary_scripture, ''),
	scriptures, COALESCE(sermon_type, ''), topics, tags, summary,
	key_points, illustrations, themes, calls_to_action, personal_stories,
	mentioned_people, mentioned_events, COALESCE(tone, ''), keywords,
	word_count, confidence_scores, COALESCE(file_path, ''), COALESCE(public_url, ''),
	file_name, file_size, file_type, file_pages, COALESCE(processing_id::text, ''),
	created_at, updated_at`

// jsonbList marshals a string slice for a NOT NULL jsonb column.
func jsonbList(v []string) []byte {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return b
}

func jsonbMap(v map[string]float64) []byte {
	if v == nil {
		v = map[string]float64{}
	}
	b, _ := json.Marshal(v)
	return b
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSermon(r rowScanner) (*models.Sermon, error) {
	var (
		s          models.Sermon
		scriptures, topics, tags, keyPoints, illustrations, themes,
		callsToAction, personalStories, mentionedPeople, mentionedEvents,
		keywords, confidence []byte
	)
	err := r.Scan(
		&s.ID, &s.UserID, &s.Title, &s.Date, &s.Preacher,
		&s.Location, &s.Series, &s.PrimaryScripture,
		&scriptures, &s.SermonType, &topics, &tags, &s.Summary,
		&keyPoints, &illustrations, &themes, &callsToAction, &personalStories,
		&mentionedPeople, &mentionedEvents, &s.Tone, &keywords,
		&s.WordCount, &confidence, &s.FilePath, &s.PublicURL,
		&s.FileName, &s.FileSize, &s.FileType, &s.FilePages, &s.ProcessingID,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	for dst, raw := range map[*[]string][]byte{
		&s.Scriptures: scriptures, &s.Topics: topics, &s.Tags: tags,
		&s.KeyPoints: keyPoints, &s.Illustrations: illustrations,
		&s.Themes: themes, &s.CallsToAction: callsToAction,
		&s.PersonalStories: personalStories, &s.MentionedPeople: mentionedPeople,
		&s.MentionedEvents: mentionedEvents, &s.Keywords: keywords,
	} {
		if err := json.Unmarshal(raw, dst); err != nil {
			return nil, fmt.Errorf("decode sermon list column: %w", err)
		}
	}
	if err := json.Unmarshal(confidence, &s.ConfidenceScores); err != nil {
		return nil, fmt.Errorf("decode confidence_scores: %w", err)
	}
	return &s, nil
}

func (c *DatabaseClient) CreateSermon(ctx context.Context, s *models.Sermon) error {
	if s == nil {
		return errors.New("nil sermon")
	}
	const q = `
		INSERT INTO sermons
			(id, user_id, title, date, preacher, location, series, primary_scripture,
			 scriptures, sermon_type, topics, tags, summary, key_points, illustrations,
			 themes, calls_to_action, personal_stories, mentioned_people, mentioned_events,
			 tone, keywords, word_count, confidence_scores,
			 file_name, file_size, file_type, file_pages, processing_id,
			 created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8,
			 $9, $10, $11, $12, $13, $14, $15,
			 $16, $17, $18, $19, $20,
			 $21, $22, $23, $24,
			 $25, $26, $27, $28, $29,
			 now(), now())
	`
	_, err := c.db.ExecContext(ctx, q,
		s.ID, s.UserID, s.Title, s.Date, s.Preacher, nullable(s.Location), nullable(s.Series), nullable(s.PrimaryScripture),
		jsonbList(s.Scriptures), nullable(s.SermonType), jsonbList(s.Topics), jsonbList(s.Tags), s.Summary,
		jsonbList(s.KeyPoints), jsonbList(s.Illustrations),
		jsonbList(s.Themes), jsonbList(s.CallsToAction), jsonbList(s.PersonalStories),
		jsonbList(s.MentionedPeople), jsonbList(s.MentionedEvents),
		nullable(s.Tone), jsonbList(s.Keywords), s.WordCount, jsonbMap(s.ConfidenceScores),
		s.FileName, s.FileSize, s.FileType, s.FilePages, nullable(s.ProcessingID),
	)
	return err
}

func (c *DatabaseClient) GetSermonByID(ctx context.Context, id, userID string) (*models.Sermon, error) {
	q := `SELECT ` + sermonColumns + ` FROM sermons WHERE id = $1 AND user_id = $2`
	s, err := scanSermon(c.db.QueryRowContext(ctx, q, id, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (c *DatabaseClient) GetSermonsByIDs(ctx context.Context, userID string, ids []string) ([]models.Sermon, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := `SELECT ` + sermonColumns + ` FROM sermons WHERE user_id = $1 AND id = ANY($2::uuid[])`
	rows, err := c.db.QueryContext(ctx, q, userID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Sermon
	for rows.Next() {
		s, err := scanSermon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) ListSermonsByUser(ctx context.Context, userID string) ([]models.Sermon, error) {
	q := `SELECT ` + sermonColumns + ` FROM sermons WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Sermon
	for rows.Next() {
		s, err := scanSermon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// sermonPatchColumns whitelists the columns a PATCH may touch, and whether
// the value is a JSONB list.
var sermonPatchColumns = map[string]bool{
	"title": false, "date": false, "preacher": false, "location": false,
	"series": false, "primary_scripture": false, "sermon_type": false,
	"summary": false, "tone": false,
	"scriptures": true, "topics": true, "tags": true, "key_points": true,
	"illustrations": true, "themes": true, "calls_to_action": true,
	"personal_stories": true, "mentioned_people": true,
	"mentioned_events": true, "keywords": true,
}

func (c *DatabaseClient) UpdateSermonFields(ctx context.Context, id, userID string, fields map[string]any) (*models.Sermon, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no updatable fields in request", core.ErrInvalidUpdate)
	}

	sets := make([]string, 0, len(fields)+1)
	args := []any{id, userID}
	for col, val := range fields {
		isList, ok := sermonPatchColumns[col]
		if !ok {
			return nil, fmt.Errorf("%w: field not updatable: %s", core.ErrInvalidUpdate, col)
		}
		if isList {
			b, err := json.Marshal(val)
			if err != nil {
				return nil, fmt.Errorf("%w: encode %s: %v", core.ErrInvalidUpdate, col, err)
			}
			val = b
		}
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	sets = append(sets, "updated_at = now()")

	q := `UPDATE sermons SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 AND user_id = $2 RETURNING ` + sermonColumns
	s, err := scanSermon(c.db.QueryRowContext(ctx, q, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (c *DatabaseClient) SetSermonFile(ctx context.Context, id, filePath, publicURL string) error {
	const q = `
		UPDATE sermons
		SET file_path = $2, public_url = $3, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, filePath, publicURL)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("sermon not found: %s", id)
	}
	return nil
}

// DeleteSermon removes chunks, the processing record, and the sermon row
// in one transaction. Chunks also cascade at the schema level; the explicit
// delete keeps the intent visible.
func (c *DatabaseClient) DeleteSermon(ctx context.Context, id, userID string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sermon_chunks WHERE sermon_id = $1`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sermon_processing WHERE sermon_id = $1`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete processing record: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sermons WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete sermon: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return fmt.Errorf("sermon not found: %s", id)
	}
	return tx.Commit()
}

// Chunks

// InsertSermonChunks inserts chunks in a single transaction.
func (c *DatabaseClient) InsertSermonChunks(ctx context.Context, chunks []models.SermonChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO sermon_chunks
			(id, sermon_id, content, embedding, chunk_index, chunk_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		vec := pgvector.NewVector(ch.Embedding)
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.SermonID, ch.Content, vec, ch.ChunkIndex, ch.ChunkType,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) GetChunksBySermon(ctx context.Context, sermonID string) ([]models.SermonChunk, error) {
	const q = `
		SELECT id, sermon_id, content, embedding, chunk_index, chunk_type, created_at
		FROM sermon_chunks
		WHERE sermon_id = $1
		ORDER BY chunk_index ASC
	`
	rows, err := c.db.QueryContext(ctx, q, sermonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SermonChunk
	for rows.Next() {
		var (
			ch  models.SermonChunk
			emb pgvector.Vector
		)
		if err := rows.Scan(&ch.ID, &ch.SermonID, &ch.Content, &emb, &ch.ChunkIndex, &ch.ChunkType, &ch.CreatedAt); err != nil {
			return nil, err
		}
		ch.Embedding = emb.Slice()
		out = append(out, ch)
	}
	return out, rows.Err()
}

// SearchSermonChunks finds the user's most similar chunks for a query
// embedding, keeping only hits at or above the cosine-similarity threshold.
func (c *DatabaseClient) SearchSermonChunks(ctx context.Context, userID string, queryVec []float32, threshold float64, limit int) ([]models.SermonChunk, error) {
	const q = `
		SELECT c.id, c.sermon_id, c.content, c.chunk_index, c.chunk_type,
		       1 - (c.embedding <=> $2) AS similarity
		FROM sermon_chunks c
		JOIN sermons s ON s.id = c.sermon_id
		WHERE s.user_id = $1
		  AND 1 - (c.embedding <=> $2) >= $3
		ORDER BY c.embedding <=> $2
		LIMIT $4
	`
	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, userID, vec, threshold, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SermonChunk
	for rows.Next() {
		var ch models.SermonChunk
		if err := rows.Scan(&ch.ID, &ch.SermonID, &ch.Content, &ch.ChunkIndex, &ch.ChunkType, &ch.Similarity); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}
