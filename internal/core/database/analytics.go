package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pulpit-ai/pulpit/internal/models"
)

// Server-side aggregations backing the chat router's function catalog.
// All queries are scoped to one user; the chat layer treats their results
// as best-effort context, so empty result sets are not errors.

func (c *DatabaseClient) TopicOverview(ctx context.Context, userID, topic string) ([]models.TopicOverviewRow, error) {
	const q = `
		SELECT id, title, to_char(date, 'YYYY-MM-DD'),
		       COALESCE(primary_scripture, ''), summary
		FROM sermons
		WHERE user_id = $1
		  AND (topics::text ILIKE '%' || $2 || '%'
		       OR themes::text ILIKE '%' || $2 || '%'
		       OR tags::text ILIKE '%' || $2 || '%'
		       OR summary ILIKE '%' || $2 || '%')
		ORDER BY date DESC
		LIMIT 25
	`
	rows, err := c.db.QueryContext(ctx, q, userID, topic)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TopicOverviewRow
	for rows.Next() {
		var r models.TopicOverviewRow
		if err := rows.Scan(&r.SermonID, &r.Title, &r.Date, &r.PrimaryScripture, &r.Summary); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// timeframeFormat maps the router's timeframe parameter to a date_trunc
// friendly to_char pattern. Unknown values fall back to yearly buckets.
func timeframeFormat(timeframe string) string {
	switch timeframe {
	case "month":
		return "YYYY-MM"
	case "season":
		return `YYYY "Q"Q`
	default: // "year"
		return "YYYY"
	}
}

func (c *DatabaseClient) PreachingPatterns(ctx context.Context, userID, timeframe string) ([]models.PreachingPatternRow, error) {
	const q = `
		SELECT t.period,
		       count(DISTINCT t.id) AS sermon_count,
		       COALESCE(jsonb_agg(DISTINCT t.topic) FILTER (WHERE t.topic IS NOT NULL), '[]') AS topics
		FROM (
			SELECT s.id, to_char(s.date, $2) AS period, topic
			FROM sermons s
			LEFT JOIN LATERAL jsonb_array_elements_text(s.topics) AS topic ON true
			WHERE s.user_id = $1
		) t
		GROUP BY t.period
		ORDER BY t.period DESC
		LIMIT 24
	`
	rows, err := c.db.QueryContext(ctx, q, userID, timeframeFormat(timeframe))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PreachingPatternRow
	for rows.Next() {
		var (
			r      models.PreachingPatternRow
			topics []byte
		)
		if err := rows.Scan(&r.Period, &r.SermonCount, &topics); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(topics, &r.TopTopics); err != nil {
			return nil, fmt.Errorf("decode topics: %w", err)
		}
		if len(r.TopTopics) > 5 {
			r.TopTopics = r.TopTopics[:5]
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RelatedSermons compares per-sermon embedding centroids so the result
// reflects whole-sermon similarity rather than a single lucky chunk.
func (c *DatabaseClient) RelatedSermons(ctx context.Context, userID, sermonID string, limit int) ([]models.RelatedSermonRow, error) {
	if limit <= 0 {
		limit = 5
	}
	const q = `
		WITH target AS (
			SELECT avg(embedding) AS emb
			FROM sermon_chunks
			WHERE sermon_id = $2
		)
		SELECT s.id, s.title, to_char(s.date, 'YYYY-MM-DD'),
		       1 - (avg(c.embedding) <=> (SELECT emb FROM target)) AS similarity
		FROM sermons s
		JOIN sermon_chunks c ON c.sermon_id = s.id
		WHERE s.user_id = $1 AND s.id <> $2
		GROUP BY s.id, s.title, s.date
		ORDER BY similarity DESC
		LIMIT $3
	`
	rows, err := c.db.QueryContext(ctx, q, userID, sermonID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RelatedSermonRow
	for rows.Next() {
		var r models.RelatedSermonRow
		if err := rows.Scan(&r.SermonID, &r.Title, &r.Date, &r.Similarity); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) ScriptureUsage(ctx context.Context, userID, book string) ([]models.ScriptureUsageRow, error) {
	const q = `
		SELECT b.book, count(*) AS usage_count,
		       max(to_char(b.date, 'YYYY-MM-DD')) AS last_preached
		FROM (
			SELECT s.date, trim(substring(ref FROM '^[1-3]?\s*[A-Za-z]+')) AS book
			FROM sermons s, jsonb_array_elements_text(s.scriptures) AS ref
			WHERE s.user_id = $1
		) b
		WHERE b.book <> '' AND ($2 = '' OR lower(b.book) = lower($2))
		GROUP BY b.book
		ORDER BY usage_count DESC
		LIMIT 50
	`
	rows, err := c.db.QueryContext(ctx, q, userID, book)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScriptureUsageRow
	for rows.Next() {
		var r models.ScriptureUsageRow
		if err := rows.Scan(&r.Book, &r.UsageCount, &r.LastPreached); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
