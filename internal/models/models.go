package models

import (
	"time"
)

// Processing record statuses. Transitions are strictly forward
// (uploaded -> parsed -> vectorized -> completed); error is reachable
// from any non-terminal status.
const (
	StatusUploaded   = "uploaded"
	StatusParsed     = "parsed"
	StatusVectorized = "vectorized"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// SermonTypes is the closed set of accepted sermon_type values.
var SermonTypes = []string{"expository", "textual", "topical", "narrative"}

// SermonTags is the fixed tag taxonomy. A sermon carries at most three.
var SermonTags = []string{
	"salvation", "discipleship", "faith", "prayer", "relationships",
	"spiritual-warfare", "evangelism", "healing", "worship", "stewardship",
	"identity", "community", "character", "biblical-history", "prophecy",
}

// MaxSermonTags caps how many taxonomy tags a sermon may carry.
const MaxSermonTags = 3

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ProcessingRecord tracks one upload attempt through the ingestion pipeline.
// The extracted text lives here until vectorization; it is logically retired
// afterwards but never deleted, so failed runs stay inspectable.
type ProcessingRecord struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	Status       string    `db:"status" json:"status"`
	Text         string    `db:"text" json:"-"`
	SermonID     string    `db:"sermon_id" json:"sermon_id,omitempty"`
	ErrorMessage string    `db:"error_message" json:"error_message,omitempty"`
	FileName     string    `db:"file_name" json:"file_name"`
	FileSize     int64     `db:"file_size" json:"file_size"`
	FileType     string    `db:"file_type" json:"file_type"`
	FilePages    int       `db:"file_pages" json:"file_pages"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Sermon is the finalized, queryable entity produced by the pipeline.
// List-valued metadata and confidence_scores are stored as JSONB.
type Sermon struct {
	ID     string `db:"id" json:"id"`
	UserID string `db:"user_id" json:"user_id"`

	Title            string   `db:"title" json:"title"`
	Date             string   `db:"date" json:"date"` // YYYY-MM-DD
	Preacher         string   `db:"preacher" json:"preacher"`
	Location         string   `db:"location" json:"location,omitempty"`
	Series           string   `db:"series" json:"series,omitempty"`
	PrimaryScripture string   `db:"primary_scripture" json:"primary_scripture,omitempty"`
	Scriptures       []string `db:"scriptures" json:"scriptures"`
	SermonType       string   `db:"sermon_type" json:"sermon_type,omitempty"`
	Topics           []string `db:"topics" json:"topics"`
	Tags             []string `db:"tags" json:"tags"`
	Summary          string   `db:"summary" json:"summary"`
	KeyPoints        []string `db:"key_points" json:"key_points"`
	Illustrations    []string `db:"illustrations" json:"illustrations"`
	Themes           []string `db:"themes" json:"themes"`
	CallsToAction    []string `db:"calls_to_action" json:"calls_to_action"`
	PersonalStories  []string `db:"personal_stories" json:"personal_stories"`
	MentionedPeople  []string `db:"mentioned_people" json:"mentioned_people"`
	MentionedEvents  []string `db:"mentioned_events" json:"mentioned_events"`
	Tone             string   `db:"tone" json:"tone,omitempty"`
	Keywords         []string `db:"keywords" json:"keywords"`
	WordCount        int      `db:"word_count" json:"word_count"`

	ConfidenceScores map[string]float64 `db:"confidence_scores" json:"confidence_scores"`

	FilePath  string `db:"file_path" json:"file_path,omitempty"`
	PublicURL string `db:"public_url" json:"public_url,omitempty"`
	FileName  string `db:"file_name" json:"file_name"`
	FileSize  int64  `db:"file_size" json:"file_size"`
	FileType  string `db:"file_type" json:"file_type"`
	FilePages int    `db:"file_pages" json:"file_pages"`

	ProcessingID string    `db:"processing_id" json:"processing_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// SermonChunk is one embedded shard of a sermon's text.
type SermonChunk struct {
	ID         string    `db:"id" json:"id"`
	SermonID   string    `db:"sermon_id" json:"sermon_id"`
	Content    string    `db:"content" json:"content"`
	Embedding  []float32 `db:"embedding" json:"-"`
	ChunkIndex int       `db:"chunk_index" json:"chunk_index"`
	ChunkType  string    `db:"chunk_type" json:"chunk_type"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`

	// Set by similarity search; not a column on sermon_chunks.
	Similarity float64 `db:"-" json:"similarity,omitempty"`
}

// ChatMessage is one turn of conversation history sent by the client.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// SermonField wraps a field value with the classifier's confidence in it,
// for clients that request the confidence view of a sermon.
type SermonField struct {
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
}

// SermonRef is the machine-parseable reference appended to chat answers.
type SermonRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Date  string `json:"date,omitempty"`
}

// ValidSermonType reports whether t is one of the four accepted types.
func ValidSermonType(t string) bool {
	for _, v := range SermonTypes {
		if v == t {
			return true
		}
	}
	return false
}

// ValidSermonTag reports whether tag belongs to the fixed taxonomy.
func ValidSermonTag(tag string) bool {
	for _, v := range SermonTags {
		if v == tag {
			return true
		}
	}
	return false
}
