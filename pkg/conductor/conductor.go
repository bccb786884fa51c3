package conductor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/persona"
	"github.com/go-go-golems/parley/pkg/provider"
	"github.com/go-go-golems/parley/pkg/rag"
	"github.com/go-go-golems/parley/pkg/tokens"
)

// Response is one participant's contribution to a round.
type Response struct {
	Text     string
	Provider string
	Model    string
}

// Conductor drives turn-taking among the configured personas and the human
// user: it assembles prompts, streams provider output, extracts and records
// responses, runs the helper detectors, and persists the transcript. All of
// its dependencies are explicit; there is no ambient global state.
//
// Within a round, participants are processed strictly sequentially so that
// each turn appends to the shared thread before the next one starts, and so
// that interruption has a single unambiguous cut point. The store and the
// relevance index are only ever mutated from here.
type Conductor struct {
	registry  *persona.Registry
	providers *provider.Registry
	store     *chat.Store
	index     *rag.RelevanceIndex
	publisher *events.PublisherManager
	counter   *tokens.Counter

	historyPath string
	contextTopK int

	mu              sync.Mutex
	cancelRound     context.CancelFunc
	currentThreadID string
	currentRound    int
	responded       map[string]struct{}
	thinking        string
	totalTokens     int
	codeAware       bool

	// freshRound is true when the round started on an empty index; roundAdds
	// counts index writes since the round began. Together they tell prompt
	// assembly whether any context beyond the triggering prompt exists yet.
	freshRound bool
	roundAdds  int
}

type Option func(*Conductor)

func WithStore(store *chat.Store) Option {
	return func(c *Conductor) {
		c.store = store
	}
}

func WithHistoryPath(path string) Option {
	return func(c *Conductor) {
		c.historyPath = path
	}
}

func WithIndex(index *rag.RelevanceIndex) Option {
	return func(c *Conductor) {
		c.index = index
	}
}

func WithPublisher(publisher *events.PublisherManager) Option {
	return func(c *Conductor) {
		c.publisher = publisher
	}
}

func WithTokenCounter(counter *tokens.Counter) Option {
	return func(c *Conductor) {
		c.counter = counter
	}
}

func WithContextTopK(k int) Option {
	return func(c *Conductor) {
		if k > 0 {
			c.contextTopK = k
		}
	}
}

func NewConductor(registry *persona.Registry, providers *provider.Registry, options ...Option) *Conductor {
	ret := &Conductor{
		registry:    registry,
		providers:   providers,
		contextTopK: 5,
		responded:   map[string]struct{}{},
		codeAware:   true,
	}
	for _, option := range options {
		option(ret)
	}
	if ret.store == nil {
		ret.store = chat.NewStore()
	}
	if ret.index == nil {
		ret.index = rag.NewRelevanceIndex()
	}
	if ret.publisher == nil {
		ret.publisher = events.NewPublisherManager()
	}
	return ret
}

func (c *Conductor) Store() *chat.Store {
	return c.store
}

func (c *Conductor) CurrentThreadID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentThreadID
}

func (c *Conductor) TotalTokens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalTokens
}

// ThinkingParticipant names the participant a generation is currently in
// flight for, or "".
func (c *Conductor) ThinkingParticipant() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.thinking
}

// Interrupt cancels the active round. Generation stops after the current
// fragment; the interrupted participant's partial output is discarded,
// remaining participants are skipped. Not an error path.
func (c *Conductor) Interrupt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelRound != nil {
		log.Debug().Msg("interrupting active round")
		c.cancelRound()
	}
}

// NewTopic closes the current thread with a divider, starts a fresh thread
// and resets the round state and the relevance index.
func (c *Conductor) NewTopic() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentThreadID != "" {
		c.store.Append(c.currentThreadID, chat.NewDivider())
	}

	id := c.store.NewThread(time.Now().Format("2006-01-02"))
	c.currentThreadID = id
	c.currentRound = 0
	c.responded = map[string]struct{}{}
	c.index.Clear()
	c.saveHistory()

	log.Debug().Str("thread_id", id).Msg("started new topic")
	return id
}

// SwitchThread makes an existing thread current and reseeds the relevance
// index from its transcript.
func (c *Conductor) SwitchThread(threadID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.store.Thread(threadID)
	if !ok {
		return errors.Errorf("unknown thread %s", threadID)
	}

	c.currentThreadID = threadID
	c.index.Clear()
	for _, m := range t.Messages {
		if m.IsDivider {
			continue
		}
		c.index.AddMessage(m.Line())
	}
	if len(t.Messages) > 0 {
		c.currentRound = 1
	} else {
		c.currentRound = 0
	}
	c.responded = map[string]struct{}{}

	log.Debug().Str("thread_id", threadID).Int("messages", len(t.Messages)).
		Msg("switched thread")
	return nil
}

// beginRound derives the cancellable round context, bumps the round counter
// and clears the responded set. Starting a round clears a previous
// interruption.
func (c *Conductor) beginRound(ctx context.Context) (context.Context, context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	roundCtx, cancel := context.WithCancel(ctx)
	c.cancelRound = cancel
	c.currentRound++
	c.responded = map[string]struct{}{}
	c.freshRound = c.index.WordHistoryLen() == 0
	c.roundAdds = 0
	return roundCtx, cancel
}

// ensureThread creates the first thread lazily on first interaction.
func (c *Conductor) ensureThread() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentThreadID == "" {
		c.currentThreadID = c.store.NewThread(time.Now().Format("2006-01-02"))
		log.Debug().Str("thread_id", c.currentThreadID).Msg("created initial thread")
	}
	return c.currentThreadID
}

func (c *Conductor) markResponded(participant string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responded[participant] = struct{}{}
}

func (c *Conductor) allResponded(active []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range active {
		if _, ok := c.responded[p]; !ok {
			return false
		}
	}
	return true
}

func (c *Conductor) setThinking(participant string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.thinking = participant
}

// recordMessage appends to the current thread (deduplicated against the
// preceding entry), feeds the relevance index and persists. Persistence
// failures are logged and swallowed; the in-memory state stays
// authoritative.
func (c *Conductor) recordMessage(entry chat.MessageEntry) bool {
	threadID := c.ensureThread()
	appended := c.store.Append(threadID, entry)
	if appended && !entry.IsDivider {
		c.index.AddMessage(entry.Line())
		c.mu.Lock()
		c.roundAdds++
		c.mu.Unlock()
	}
	c.saveHistory()
	return appended
}

func (c *Conductor) saveHistory() {
	if c.historyPath == "" {
		return
	}
	if err := c.store.Save(c.historyPath); err != nil {
		log.Error().Err(err).Str("path", c.historyPath).
			Msg("could not save conversation history")
	}
}

func (c *Conductor) countTokens(prompt string, completion string) {
	if c.counter == nil {
		return
	}
	used := c.counter.Count(prompt) + c.counter.Count(completion)

	c.mu.Lock()
	c.totalTokens += used
	total := c.totalTokens
	c.mu.Unlock()

	c.publisher.PublishBlind(events.NewTokenUsageEvent(c.eventMetadata(), total))
}

func (c *Conductor) eventMetadata() events.EventMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return events.EventMetadata{
		ID:       uuid.New(),
		ThreadID: c.currentThreadID,
		Round:    c.currentRound,
	}
}
