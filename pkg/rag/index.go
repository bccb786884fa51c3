package rag

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

var wordRe = regexp.MustCompile(`\b\w+\b`)

// Tokenize splits text into lowercase word tokens.
func Tokenize(text string) []string {
	return wordRe.FindAllString(strings.ToLower(text), -1)
}

const DefaultMaxHistory = 1000

// RelevanceIndex is a bounded, similarity-searchable cache of recent
// conversation text. It keeps a rolling window of word tokens alongside the
// raw messages they came from and answers "what prior content is relevant to
// this query" with a TF-IDF-weighted term overlap. Every failure path
// degrades to recency-based retrieval; retrieval must never block a round.
type RelevanceIndex struct {
	maxHistory int

	conversationHistory []string
	wordHistory         []string

	// weights[i] is the score weight of wordHistory[i]; nil when the index
	// has not been (re)built or the build was degenerate.
	weights []float64

	// test hook: simulates a vectorizer failure
	disableVectors bool
}

type IndexOption func(*RelevanceIndex)

func WithMaxHistory(n int) IndexOption {
	return func(idx *RelevanceIndex) {
		if n > 0 {
			idx.maxHistory = n
		}
	}
}

func NewRelevanceIndex(options ...IndexOption) *RelevanceIndex {
	ret := &RelevanceIndex{
		maxHistory: DefaultMaxHistory,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// AddMessage tokenizes the message, appends to the bounded word history
// (oldest tokens evicted first) and rebuilds the vector weights. Eviction
// trims the raw message list in lockstep, best effort.
func (idx *RelevanceIndex) AddMessage(text string) {
	idx.conversationHistory = append(idx.conversationHistory, text)
	idx.wordHistory = append(idx.wordHistory, Tokenize(text)...)

	if excess := len(idx.wordHistory) - idx.maxHistory; excess > 0 {
		idx.wordHistory = idx.wordHistory[excess:]
		for len(idx.conversationHistory) > 1 && idx.historyTokenCount() > len(idx.wordHistory) {
			idx.conversationHistory = idx.conversationHistory[1:]
		}
	}

	idx.rebuild()
	log.Debug().Int("word_history", len(idx.wordHistory)).
		Int("messages", len(idx.conversationHistory)).
		Msg("added message to relevance index")
}

func (idx *RelevanceIndex) historyTokenCount() int {
	count := 0
	for _, msg := range idx.conversationHistory {
		count += len(Tokenize(msg))
	}
	return count
}

// rebuild recomputes per-token weights. A token occurring in few messages
// weighs more than one occurring everywhere (IDF over the retained messages).
func (idx *RelevanceIndex) rebuild() {
	if len(idx.wordHistory) == 0 || idx.disableVectors {
		idx.weights = nil
		return
	}

	df := map[string]int{}
	for _, msg := range idx.conversationHistory {
		seen := map[string]struct{}{}
		for _, w := range Tokenize(msg) {
			if _, ok := seen[w]; !ok {
				seen[w] = struct{}{}
				df[w]++
			}
		}
	}

	n := float64(len(idx.conversationHistory))
	idx.weights = make([]float64, len(idx.wordHistory))
	for i, w := range idx.wordHistory {
		idx.weights[i] = math.Log(1+n/float64(1+df[w])) + 1
	}
}

// RecentMessages returns the last n raw messages, newline-joined.
func (idx *RelevanceIndex) RecentMessages(n int) string {
	if n <= 0 || len(idx.conversationHistory) == 0 {
		return ""
	}
	start := len(idx.conversationHistory) - n
	if start < 0 {
		start = 0
	}
	return strings.Join(idx.conversationHistory[start:], "\n")
}

// RelevantHistory scores every retained token position against the query,
// picks the topK best matches, and maps each back to its containing message.
// An empty index returns ""; a missing vector space falls back to recency.
func (idx *RelevanceIndex) RelevantHistory(query string, topK int) string {
	if len(idx.wordHistory) == 0 {
		log.Debug().Msg("relevance index is empty")
		return ""
	}
	if idx.weights == nil {
		log.Warn().Msg("relevance index has no vector weights, returning recent messages")
		return idx.RecentMessages(topK)
	}

	queryTerms := map[string]struct{}{}
	for _, w := range Tokenize(query) {
		queryTerms[w] = struct{}{}
	}

	type scored struct {
		pos   int
		score float64
	}
	candidates := make([]scored, 0, len(idx.wordHistory))
	for i, w := range idx.wordHistory {
		if _, ok := queryTerms[w]; ok {
			candidates = append(candidates, scored{pos: i, score: idx.weights[i]})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	// Map token positions back to their containing messages, preserving
	// chronological order and deduplicating. Positions index the trimmed word
	// history, which may start mid-way into the oldest retained message.
	bounds := make([]int, len(idx.conversationHistory))
	count := 0
	for i, msg := range idx.conversationHistory {
		count += len(Tokenize(msg))
		bounds[i] = count
	}
	offset := count - len(idx.wordHistory)

	matched := map[int]struct{}{}
	for _, c := range candidates {
		for i, end := range bounds {
			if c.pos+offset < end {
				matched[i] = struct{}{}
				break
			}
		}
	}

	indices := make([]int, 0, len(matched))
	for i := range matched {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	messages := make([]string, 0, len(indices))
	for _, i := range indices {
		messages = append(messages, idx.conversationHistory[i])
	}

	log.Debug().Int("matched", len(messages)).Msg("retrieved relevant history")
	return strings.Join(messages, "\n")
}

// Clear resets the index to empty; used when starting a new topic.
func (idx *RelevanceIndex) Clear() {
	idx.conversationHistory = nil
	idx.wordHistory = nil
	idx.weights = nil
	log.Debug().Msg("relevance index cleared")
}

// WordHistoryLen exposes the retained token count for bookkeeping and tests.
func (idx *RelevanceIndex) WordHistoryLen() int {
	return len(idx.wordHistory)
}
