// Package textsplit turns sermon text into bounded, overlapping chunks
// without breaking sentences apart.
package textsplit

import (
	"fmt"
	"regexp"
	"strings"
)

// abbreviations whose trailing period must not end a sentence.
var abbreviations = []string{
	"Mr.", "Mrs.", "Dr.", "Ph.D.", "e.g.", "i.e.", "etc.", "vs.", "Rev.",
}

var sentencePattern = regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)`)

type Config struct {
	MaxChunkSize int // upper bound in characters per chunk
	Overlap      int // approximate characters of trailing context carried forward
}

type Splitter struct {
	cfg Config
}

func New(cfg Config) Splitter {
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = 1000
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	return Splitter{cfg: cfg}
}

// SplitSentences segments text into sentences, treating the fixed
// abbreviation set as non-terminal periods.
func SplitSentences(text string) []string {
	working := text
	for i, abbr := range abbreviations {
		working = strings.ReplaceAll(working, abbr, placeholder(i))
	}

	matches := sentencePattern.FindAllString(working, -1)

	sentences := make([]string, 0, len(matches))
	for _, m := range matches {
		for i, abbr := range abbreviations {
			m = strings.ReplaceAll(m, placeholder(i), abbr)
		}
		if m = strings.TrimSpace(m); m != "" {
			sentences = append(sentences, m)
		}
	}
	return sentences
}

func placeholder(i int) string {
	return fmt.Sprintf("\x00%d\x00", i)
}

// Chunk packs sentences greedily into chunks of at most MaxChunkSize
// characters, seeding each new chunk with trailing sentences of the
// previous one up to Overlap characters. The same input always yields the
// same chunk sequence.
func (s Splitter) Chunk(text string) []string {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var (
		chunks []string
		buf    []string
		size   int
	)

	flush := func() {
		if len(buf) == 0 {
			return
		}
		chunks = append(chunks, strings.Join(buf, " "))
		if s.cfg.Overlap > 0 {
			keep, kept := len(buf), 0
			for keep > 0 && kept+len(buf[keep-1]) <= s.cfg.Overlap {
				kept += len(buf[keep-1]) + 1
				keep--
			}
			buf = append([]string(nil), buf[keep:]...)
			size = kept
		} else {
			buf = nil
			size = 0
		}
	}

	for _, sentence := range sentences {
		if size > 0 && size+len(sentence) > s.cfg.MaxChunkSize {
			flush()
		}
		buf = append(buf, sentence)
		size += len(sentence) + 1
	}
	// Tail flush without seeding another overlap.
	if len(buf) > 0 {
		chunk := strings.Join(buf, " ")
		if len(chunks) == 0 || chunk != chunks[len(chunks)-1] {
			chunks = append(chunks, chunk)
		}
	}

	return chunks
}
