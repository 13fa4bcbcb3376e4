package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"

	"github.com/pulpit-ai/pulpit/internal/core"
)

// ErrExtraction marks a document that cannot be parsed (corrupt or
// unsupported format). Terminal for the upload; a retry will not help.
var ErrExtraction = errors.New("text extraction failed")

type PDFExtractor struct{}

var _ core.TextExtractor = (*PDFExtractor)(nil)

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

var (
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	newlineRuns = regexp.MustCompile(`\n{3,}`)
)

// NormalizeText collapses whitespace runs and repeated blank lines so the
// same document always yields the same canonical text.
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = spaceRuns.ReplaceAllString(s, " ")
	s = newlineRuns.ReplaceAllString(s, "\n\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Extract pulls normalized text and the page count out of a PDF.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte, contentType string) (*core.Extraction, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrExtraction)
	}

	res, err := docconv.Convert(bytes.NewReader(data), contentType, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := NormalizeText(res.Body)
	if text == "" {
		return nil, fmt.Errorf("%w: no text in document", ErrExtraction)
	}

	return &core.Extraction{
		Text:  text,
		Pages: countPages(data),
	}, nil
}

// countPages reads the page tree directly; docconv does not report it.
// A zero count is acceptable when the structure cannot be walked.
func countPages(data []byte) int {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0
	}
	return r.NumPage()
}
