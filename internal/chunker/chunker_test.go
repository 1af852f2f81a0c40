package chunker

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = "word"
	}
	return strings.Join(w, " ")
}

func TestSplit_ShortTextIsSingleChunk(t *testing.T) {
	c := New()
	text := words(400)
	chunks := c.Split(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0].Text)
	assert.Equal(t, 1, chunks[0].Total)
}

func TestSplit_EmptyTextHasNoChunks(t *testing.T) {
	c := New()
	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split("   \n  "))
}

func TestSplit_LongTextOverlapsByStride(t *testing.T) {
	c := New()
	numbered := make([]string, 1200)
	for i := range numbered {
		numbered[i] = "w" + strconv.Itoa(i)
	}
	text := strings.Join(numbered, " ")
	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		n := len(strings.Fields(ch.Text))
		assert.LessOrEqual(t, n, WindowWords)
	}
	assert.Equal(t, len(chunks), chunks[0].Total)

	first := strings.Fields(chunks[0].Text)
	second := strings.Fields(chunks[1].Text)
	assert.Equal(t, first[StrideWords:], second[:WindowWords-StrideWords])
}

func TestShingles_ShortTextFallsBackToUnigrams(t *testing.T) {
	s := Shingles("hello world")
	assert.Len(t, s, 2)
}

func TestJaccard_IdenticalTextIsOne(t *testing.T) {
	a := Shingles("the quick brown fox jumps over the lazy dog")
	b := Shingles("the quick brown fox jumps over the lazy dog")
	assert.Equal(t, 1.0, Jaccard(a, b))
}

func TestJaccard_DisjointTextIsZero(t *testing.T) {
	a := Shingles("alpha beta gamma delta")
	b := Shingles("one two three four")
	assert.Equal(t, 0.0, Jaccard(a, b))
}

func TestShingleHash_OrderIndependent(t *testing.T) {
	a := Shingles("alpha beta gamma delta epsilon")
	h1 := ShingleHash(a)
	h2 := ShingleHash(a)
	assert.Equal(t, h1, h2)
}
