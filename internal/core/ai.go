package core

import (
	"context"
	"errors"

	"github.com/pulpit-ai/pulpit/internal/models"
)

// ErrQuotaExhausted marks model-call failures caused by rate or quota
// limits, so handlers can answer 429 instead of a generic 500.
var ErrQuotaExhausted = errors.New("model quota exhausted")

type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
	// GenerateJSON asks the model for a JSON-only response and decodes it
	// into out. Malformed model output is an error, never partial data.
	GenerateJSON(ctx context.Context, systemPrompt string, userPrompt string, out any) error
	// GenerateStream delivers the answer token-by-token through onDelta.
	// A non-nil error from onDelta aborts the stream.
	GenerateStream(ctx context.Context, systemPrompt string, history []models.ChatMessage, userPrompt string, onDelta func(delta string) error) error
}

// Extraction is what the text extractor recovers from a binary document.
type Extraction struct {
	Text  string
	Pages int
}

// TextExtractor pulls normalized plain text out of an uploaded document.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, contentType string) (*Extraction, error)
}
