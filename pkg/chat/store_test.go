package chat

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendDeduplicatesLastMessage(t *testing.T) {
	s := NewStore()
	id := s.NewThread("2024-07-29")

	entry := NewMessageEntry("Vanessa", "Hello everyone", WithProvider("anthropic", "claude-3-opus"))
	require.True(t, s.Append(id, entry))
	require.False(t, s.Append(id, entry))

	th, ok := s.Thread(id)
	require.True(t, ok)
	assert.Len(t, th.Messages, 1)

	// a different sender with the same text is not a duplicate
	require.True(t, s.Append(id, NewMessageEntry("Lukas", "Hello everyone")))
	assert.Len(t, th.Messages, 2)
}

func TestAppendCreatesThreadOnFirstUse(t *testing.T) {
	s := NewStore()
	require.True(t, s.Append("thread_1", NewMessageEntry("Jerry", "hi")))
	assert.Equal(t, []string{"thread_1"}, s.ThreadIDs())
}

func TestDividersAreNeverDeduplicated(t *testing.T) {
	s := NewStore()
	id := s.NewThread("2024-07-29")
	require.True(t, s.Append(id, NewDivider()))
	require.True(t, s.Append(id, NewDivider()))

	th, _ := s.Thread(id)
	assert.Len(t, th.Messages, 2)
}

func TestNewThreadIDsAreMonotonic(t *testing.T) {
	s := NewStore()
	assert.Equal(t, "thread_1", s.NewThread("2024-07-29"))
	assert.Equal(t, "thread_2", s.NewThread("2024-07-29"))
	assert.Equal(t, "thread_3", s.NewThread("2024-07-30"))
}

func TestRoundTripIsStable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")

	s := NewStore()
	for i := 0; i < 12; i++ {
		id := s.NewThread("2024-07-29")
		s.Append(id, NewMessageEntry("Jerry", "hi"))
		s.Append(id, NewMessageEntry("Vanessa", "hello", WithProvider("anthropic", "claude-3-opus")))
		s.SetTopic(id, "greetings")
	}

	require.NoError(t, s.Save(path))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	loaded := LoadStore(path)
	require.Equal(t, s.ThreadIDs(), loaded.ThreadIDs())
	require.NoError(t, loaded.Save(path))

	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestLoadMissingFileYieldsEmptyStore(t *testing.T) {
	s := LoadStore(filepath.Join(t.TempDir(), "nope.json"))
	assert.Equal(t, 0, s.Len())
}

func TestLoadCorruptFileYieldsEmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	s := LoadStore(path)
	assert.Equal(t, 0, s.Len())
}

func TestMarshalPreservesInsertionOrder(t *testing.T) {
	s := NewStore()
	s.Append("thread_2", NewMessageEntry("Jerry", "out of order on purpose"))
	s.Append("thread_1", NewMessageEntry("Jerry", "second"))

	b, err := json.Marshal(s)
	require.NoError(t, err)

	var order []string
	dec := json.NewDecoder(bytes.NewReader(b))
	_, err = dec.Token()
	require.NoError(t, err)
	for dec.More() {
		tok, err := dec.Token()
		require.NoError(t, err)
		order = append(order, tok.(string))
		var raw json.RawMessage
		require.NoError(t, dec.Decode(&raw))
	}
	assert.Equal(t, []string{"thread_2", "thread_1"}, order)
}

func TestContextRendersDividers(t *testing.T) {
	s := NewStore()
	id := s.NewThread("2024-07-29")
	s.Append(id, NewMessageEntry("Jerry", "before"))
	s.Append(id, NewDivider())
	s.Append(id, NewMessageEntry("Jerry", "after"))

	ctx := s.Context(id)
	assert.Equal(t, "Jerry: before\n----------------------------------------\nJerry: after", ctx)
}
