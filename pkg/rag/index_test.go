package rag

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyIndexReturnsEmptyString(t *testing.T) {
	idx := NewRelevanceIndex()
	assert.Equal(t, "", idx.RelevantHistory("anything at all", 5))
	assert.Equal(t, "", idx.RecentMessages(5))
}

func TestWordHistoryIsBounded(t *testing.T) {
	idx := NewRelevanceIndex(WithMaxHistory(50))
	for i := 0; i < 30; i++ {
		idx.AddMessage(fmt.Sprintf("message number %d with a handful of words", i))
	}
	assert.LessOrEqual(t, idx.WordHistoryLen(), 50)
}

func TestRecentMessages(t *testing.T) {
	idx := NewRelevanceIndex()
	idx.AddMessage("first")
	idx.AddMessage("second")
	idx.AddMessage("third")

	assert.Equal(t, "second\nthird", idx.RecentMessages(2))
	assert.Equal(t, "first\nsecond\nthird", idx.RecentMessages(10))
}

func TestRelevantHistoryFindsMatchingMessage(t *testing.T) {
	idx := NewRelevanceIndex()
	idx.AddMessage("Vanessa: I love talking about archeology and ancient scripts")
	idx.AddMessage("Lukas: the weather is nice today")
	idx.AddMessage("Jerry: what do we know about cuneiform tablets")

	result := idx.RelevantHistory("tell me more about archeology", 5)
	assert.Contains(t, result, "archeology")
	assert.NotContains(t, result, "weather")
}

func TestRelevantHistoryPreservesChronologicalOrder(t *testing.T) {
	idx := NewRelevanceIndex()
	idx.AddMessage("alpha topic here")
	idx.AddMessage("unrelated filler text")
	idx.AddMessage("more alpha discussion")

	result := idx.RelevantHistory("alpha", 5)
	lines := strings.Split(result, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "alpha topic here", lines[0])
	assert.Equal(t, "more alpha discussion", lines[1])
}

func TestVectorizerFailureFallsBackToRecency(t *testing.T) {
	idx := NewRelevanceIndex()
	idx.disableVectors = true
	idx.AddMessage("one")
	idx.AddMessage("two")
	idx.AddMessage("three")

	assert.Equal(t, idx.RecentMessages(2), idx.RelevantHistory("one two three", 2))
}

func TestClearResetsEverything(t *testing.T) {
	idx := NewRelevanceIndex()
	idx.AddMessage("some content")
	idx.Clear()

	assert.Equal(t, 0, idx.WordHistoryLen())
	assert.Equal(t, "", idx.RelevantHistory("content", 5))
	assert.Equal(t, "", idx.RecentMessages(5))
}

func TestEvictionTrimsMessagesInLockstep(t *testing.T) {
	idx := NewRelevanceIndex(WithMaxHistory(10))
	for i := 0; i < 20; i++ {
		idx.AddMessage(fmt.Sprintf("filler message %d", i))
	}

	// old messages should no longer be retrievable by recency
	recent := idx.RecentMessages(100)
	assert.NotContains(t, recent, "filler message 0\n")
	assert.Contains(t, recent, "filler message 19")
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"hello", "world", "42"}, Tokenize("Hello, WORLD! 42."))
	assert.Empty(t, Tokenize("..."))
}
