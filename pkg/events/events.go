package events

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type EventType string

const (
	EventTypeThinkingStarted  EventType = "thinking-started"
	EventTypeThinkingFinished EventType = "thinking-finished"
	EventTypePartial          EventType = "partial"
	EventTypeResponse         EventType = "response"
	EventTypeTopicUpdated     EventType = "topic-updated"
	EventTypeTokenUsage       EventType = "token-usage"
	EventTypeInterrupt        EventType = "interrupt"
	EventTypeError            EventType = "error"
)

// EventMetadata correlates an event with the round and thread it belongs to.
type EventMetadata struct {
	ID       uuid.UUID `json:"event_id"`
	ThreadID string    `json:"thread_id,omitempty"`
	Round    int       `json:"round,omitempty"`
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("event_id", em.ID.String())
	if em.ThreadID != "" {
		e.Str("thread_id", em.ThreadID)
	}
	if em.Round > 0 {
		e.Int("round", em.Round)
	}
}

// Event is a notification from the orchestration core to the presentation
// layer. The core never blocks waiting for acknowledgement.
type Event interface {
	Type() EventType
	Metadata() EventMetadata
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta"`
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

var _ Event = (*EventImpl)(nil)

// EventThinking covers both thinking-started and thinking-finished.
type EventThinking struct {
	EventImpl
	Participant string `json:"participant"`
}

func NewThinkingStartedEvent(metadata EventMetadata, participant string) *EventThinking {
	return &EventThinking{
		EventImpl:   EventImpl{Type_: EventTypeThinkingStarted, Metadata_: metadata},
		Participant: participant,
	}
}

func NewThinkingFinishedEvent(metadata EventMetadata, participant string) *EventThinking {
	return &EventThinking{
		EventImpl:   EventImpl{Type_: EventTypeThinkingFinished, Metadata_: metadata},
		Participant: participant,
	}
}

// EventPartial carries a streamed fragment plus the accumulated completion so
// far, for presentation layers that render in place.
type EventPartial struct {
	EventImpl
	Participant string `json:"participant"`
	Delta       string `json:"delta"`
	Completion  string `json:"completion"`
}

func NewPartialEvent(metadata EventMetadata, participant string, delta string, completion string) *EventPartial {
	return &EventPartial{
		EventImpl:   EventImpl{Type_: EventTypePartial, Metadata_: metadata},
		Participant: participant,
		Delta:       delta,
		Completion:  completion,
	}
}

type EventResponse struct {
	EventImpl
	Participant string `json:"participant"`
	Text        string `json:"text"`
	Provider    string `json:"provider,omitempty"`
	Model       string `json:"model,omitempty"`
}

func NewResponseEvent(metadata EventMetadata, participant string, text string, provider string, model string) *EventResponse {
	return &EventResponse{
		EventImpl:   EventImpl{Type_: EventTypeResponse, Metadata_: metadata},
		Participant: participant,
		Text:        text,
		Provider:    provider,
		Model:       model,
	}
}

type EventTopicUpdated struct {
	EventImpl
	Topic string `json:"topic"`
}

func NewTopicUpdatedEvent(metadata EventMetadata, topic string) *EventTopicUpdated {
	return &EventTopicUpdated{
		EventImpl: EventImpl{Type_: EventTypeTopicUpdated, Metadata_: metadata},
		Topic:     topic,
	}
}

type EventTokenUsage struct {
	EventImpl
	TotalTokens int `json:"total_tokens"`
}

func NewTokenUsageEvent(metadata EventMetadata, totalTokens int) *EventTokenUsage {
	return &EventTokenUsage{
		EventImpl:   EventImpl{Type_: EventTypeTokenUsage, Metadata_: metadata},
		TotalTokens: totalTokens,
	}
}

type EventInterrupt struct {
	EventImpl
	Participant string `json:"participant,omitempty"`
}

func NewInterruptEvent(metadata EventMetadata, participant string) *EventInterrupt {
	return &EventInterrupt{
		EventImpl:   EventImpl{Type_: EventTypeInterrupt, Metadata_: metadata},
		Participant: participant,
	}
}

type EventError struct {
	EventImpl
	ErrorString string `json:"error_string"`
}

func NewErrorEvent(metadata EventMetadata, err error) *EventError {
	return &EventError{
		EventImpl:   EventImpl{Type_: EventTypeError, Metadata_: metadata},
		ErrorString: err.Error(),
	}
}

// NewEventFromJson decodes an event published through the router back into
// its typed form.
func NewEventFromJson(b []byte) (Event, error) {
	var hdr EventImpl
	if err := json.Unmarshal(b, &hdr); err != nil {
		return nil, errors.Wrap(err, "could not parse event header")
	}

	decode := func(target Event) (Event, error) {
		if err := json.Unmarshal(b, target); err != nil {
			return nil, errors.Wrapf(err, "could not parse %s event", hdr.Type_)
		}
		return target, nil
	}

	switch hdr.Type_ {
	case EventTypeThinkingStarted, EventTypeThinkingFinished:
		return decode(&EventThinking{})
	case EventTypePartial:
		return decode(&EventPartial{})
	case EventTypeResponse:
		return decode(&EventResponse{})
	case EventTypeTopicUpdated:
		return decode(&EventTopicUpdated{})
	case EventTypeTokenUsage:
		return decode(&EventTokenUsage{})
	case EventTypeInterrupt:
		return decode(&EventInterrupt{})
	case EventTypeError:
		return decode(&EventError{})
	}

	return &hdr, nil
}
