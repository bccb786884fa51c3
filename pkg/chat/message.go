package chat

import (
	"strings"
	"time"
)

// MessageEntry is a single transcript entry. Entries are immutable once
// created; the store only ever appends them.
type MessageEntry struct {
	Sender    string `json:"sender"`
	Text      string `json:"message"`
	AIName    string `json:"ai_name,omitempty"`
	Model     string `json:"model,omitempty"`
	IsPartial bool   `json:"is_partial"`
	IsDivider bool   `json:"is_divider"`
	Timestamp string `json:"timestamp"`
}

type MessageOption func(*MessageEntry)

func WithProvider(aiName string, model string) MessageOption {
	return func(m *MessageEntry) {
		m.AIName = aiName
		m.Model = model
	}
}

func WithTimestamp(t time.Time) MessageOption {
	return func(m *MessageEntry) {
		m.Timestamp = t.Format(time.RFC3339)
	}
}

func NewMessageEntry(sender string, text string, options ...MessageOption) MessageEntry {
	ret := MessageEntry{
		Sender:    sender,
		Text:      text,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	for _, option := range options {
		option(&ret)
	}
	return ret
}

// NewDivider marks a topic boundary inside a thread.
func NewDivider() MessageEntry {
	return MessageEntry{
		Sender:    "System",
		IsDivider: true,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// Equal compares the identity of two entries. Timestamps and the partial /
// divider flags are deliberately excluded so that a re-sent message is
// recognized as a duplicate.
func (m MessageEntry) Equal(other MessageEntry) bool {
	return m.Sender == other.Sender &&
		m.Text == other.Text &&
		m.AIName == other.AIName &&
		m.Model == other.Model
}

// Line renders the entry the way it appears in prompt context.
func (m MessageEntry) Line() string {
	if m.IsDivider {
		return strings.Repeat("-", 40)
	}
	return m.Sender + ": " + m.Text
}
