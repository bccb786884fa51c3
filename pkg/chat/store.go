package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Thread is one topic-scoped conversation. Topic starts empty and is
// back-filled once the first full round has completed.
type Thread struct {
	Date     string         `json:"date"`
	Topic    string         `json:"topic"`
	Messages []MessageEntry `json:"messages"`
}

// Store maps thread id to thread, preserving insertion order of the ids.
// Thread ids are "thread_<n>" with <n> monotonically increasing. The order
// is part of the on-disk contract: load -> save -> load must round-trip to
// an identical document.
type Store struct {
	threads map[string]*Thread
	order   []string
}

func NewStore() *Store {
	return &Store{
		threads: map[string]*Thread{},
	}
}

// NewThread allocates the next thread id and registers an empty thread for it.
func (s *Store) NewThread(date string) string {
	n := len(s.order) + 1
	id := fmt.Sprintf("thread_%d", n)
	for _, taken := s.threads[id]; taken; _, taken = s.threads[id] {
		n++
		id = fmt.Sprintf("thread_%d", n)
	}
	s.threads[id] = &Thread{Date: date}
	s.order = append(s.order, id)
	return id
}

func (s *Store) Thread(id string) (*Thread, bool) {
	t, ok := s.threads[id]
	return t, ok
}

func (s *Store) ThreadIDs() []string {
	ret := make([]string, len(s.order))
	copy(ret, s.order)
	return ret
}

func (s *Store) Len() int {
	return len(s.order)
}

// Append adds an entry to the given thread, creating the thread if needed.
// An entry equal to the immediately preceding one (by sender, text, provider
// and model) is dropped. Returns whether the entry was actually appended.
func (s *Store) Append(threadID string, entry MessageEntry) bool {
	t, ok := s.threads[threadID]
	if !ok {
		t = &Thread{}
		s.threads[threadID] = t
		s.order = append(s.order, threadID)
	}

	if n := len(t.Messages); n > 0 && !entry.IsDivider && t.Messages[n-1].Equal(entry) {
		log.Debug().Str("thread_id", threadID).Str("sender", entry.Sender).
			Msg("dropping duplicate message append")
		return false
	}

	t.Messages = append(t.Messages, entry)
	return true
}

// SetTopic overwrites the thread's topic. Idempotent; repeated calls simply
// overwrite.
func (s *Store) SetTopic(threadID string, topic string) {
	if t, ok := s.threads[threadID]; ok {
		t.Topic = topic
	}
}

// Context renders a thread's transcript as "Sender: text" lines, dividers as
// a dashed rule. Used for prompt assembly and the moderator summary.
func (s *Store) Context(threadID string) string {
	t, ok := s.threads[threadID]
	if !ok {
		return ""
	}
	lines := make([]string, 0, len(t.Messages))
	for _, m := range t.Messages {
		lines = append(lines, m.Line())
	}
	return strings.Join(lines, "\n")
}

// MarshalJSON emits the threads as a JSON object in insertion order. Go maps
// do not preserve key order, so this cannot go through the default encoder.
func (s *Store) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range s.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		b, err := json.Marshal(s.threads[id])
		if err != nil {
			return nil, errors.Wrapf(err, "could not marshal thread %s", id)
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *Store) UnmarshalJSON(b []byte) error {
	s.threads = map[string]*Thread{}
	s.order = nil

	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("conversation history must be a JSON object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id, ok := tok.(string)
		if !ok {
			return errors.New("unexpected token in conversation history")
		}
		t := &Thread{}
		if err := dec.Decode(t); err != nil {
			return errors.Wrapf(err, "could not decode thread %s", id)
		}
		s.threads[id] = t
		s.order = append(s.order, id)
	}

	_, err = dec.Token()
	return err
}

// LoadStore reads the conversation history document. A missing or corrupt
// file yields an empty store; persistence failures are never fatal.
func LoadStore(path string) *Store {
	ret := NewStore()

	b, err := os.ReadFile(path)
	if err != nil {
		log.Debug().Err(err).Str("path", path).
			Msg("conversation history not found, starting with an empty history")
		return ret
	}

	if err := json.Unmarshal(b, ret); err != nil {
		log.Warn().Err(err).Str("path", path).
			Msg("could not parse conversation history, starting with an empty history")
		return NewStore()
	}

	log.Debug().Str("path", path).Int("threads", ret.Len()).
		Msg("loaded conversation history")
	return ret
}

// Save writes the history document with two-space indentation. Callers are
// expected to log and swallow the error; the in-memory state stays
// authoritative and the next successful save catches up.
func (s *Store) Save(path string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "could not marshal conversation history")
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, b, "", "  "); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, "could not create history directory")
		}
	}

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return errors.Wrap(err, "could not write conversation history")
	}

	return nil
}
