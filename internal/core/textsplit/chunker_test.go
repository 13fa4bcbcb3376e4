package textsplit_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulpit-ai/pulpit/internal/core/textsplit"
)

func TestSplitSentences_Abbreviations(t *testing.T) {
	text := "Dr. Smith spoke on grace. Mrs. Jones read Psalm 23. We studied e.g. the exodus."

	sentences := textsplit.SplitSentences(text)

	require.Len(t, sentences, 3)
	assert.Equal(t, "Dr. Smith spoke on grace.", sentences[0])
	assert.Equal(t, "Mrs. Jones read Psalm 23.", sentences[1])
	assert.Equal(t, "We studied e.g. the exodus.", sentences[2])
}

func TestSplitSentences_TrailingWithoutTerminator(t *testing.T) {
	sentences := textsplit.SplitSentences("First point! Second point? And a closing thought")

	require.Len(t, sentences, 3)
	assert.Equal(t, "And a closing thought", sentences[2])
}

func TestChunk_RespectsMaxSize(t *testing.T) {
	splitter := textsplit.New(textsplit.Config{MaxChunkSize: 120, Overlap: 0})

	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("The congregation sang together with one voice. ")
	}

	chunks := splitter.Chunk(b.String())

	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 120)
	}
}

func TestChunk_OverlapCarriesTrailingSentence(t *testing.T) {
	splitter := textsplit.New(textsplit.Config{MaxChunkSize: 80, Overlap: 40})

	text := "Faith moves mountains. Hope anchors the soul. Love never fails. Grace covers all of it."
	chunks := splitter.Chunk(text)

	require.GreaterOrEqual(t, len(chunks), 2)
	for i := 1; i < len(chunks); i++ {
		first := textsplit.SplitSentences(chunks[i])[0]
		assert.Contains(t, chunks[i-1], first,
			"chunk %d should open with trailing context from chunk %d", i, i-1)
	}
}

func TestChunk_Deterministic(t *testing.T) {
	splitter := textsplit.New(textsplit.Config{MaxChunkSize: 100, Overlap: 30})
	text := strings.Repeat("He opened the scriptures to them on the road. Their hearts burned within them. ", 10)

	first := splitter.Chunk(text)
	second := splitter.Chunk(text)

	assert.Equal(t, first, second)
}

func TestChunk_RoundTripWithoutOverlap(t *testing.T) {
	splitter := textsplit.New(textsplit.Config{MaxChunkSize: 60, Overlap: 0})

	text := "Seek first the kingdom. All these things will be added. Do not worry about tomorrow. Each day has enough trouble."
	chunks := splitter.Chunk(text)
	require.GreaterOrEqual(t, len(chunks), 2)

	assert.Equal(t,
		strings.Join(textsplit.SplitSentences(text), " "),
		strings.Join(chunks, " "))
}

func TestChunk_Empty(t *testing.T) {
	splitter := textsplit.New(textsplit.Config{})

	assert.Nil(t, splitter.Chunk(""))
	assert.Nil(t, splitter.Chunk("   \n  "))
}
