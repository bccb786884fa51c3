package conductor

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/persona"
)

// runHelper executes a helper persona call: full prompt in, accumulated text
// out. Helper calls do not stream partial events to the presentation layer.
func (c *Conductor) runHelper(ctx context.Context, helperName string, prompt string) (string, string, string, error) {
	h, err := c.registry.Helper(helperName)
	if err != nil {
		return "", "", "", err
	}
	ep, model, err := c.resolveEndpoint(h)
	if err != nil {
		return "", "", "", err
	}

	stream, err := ep.Adapter.Generate(ctx, model, prompt)
	if err != nil {
		return "", "", "", errors.Wrapf(err, "could not start %s call", helperName)
	}

	var sb strings.Builder
	for fragment := range stream {
		sb.WriteString(fragment)
		if ctx.Err() != nil {
			return "", "", "", ctx.Err()
		}
	}
	if ctx.Err() != nil {
		return "", "", "", ctx.Err()
	}

	return sb.String(), ep.Name, model, nil
}

// DetectAddressedParticipant asks the ResponseDetector helper which
// participant, if any, the message is soliciting a reply from. The helper's
// stripped raw output is trusted as the answer; '', 'None' and 'null'
// normalize to "no addressee", and any failure of the underlying call is
// treated the same way. The detector is an LLM call, not a closed-form
// algorithm; it only has to fail safe.
func (c *Conductor) DetectAddressedParticipant(ctx context.Context, message string) string {
	userName := c.registry.UserName()
	names := append(c.registry.ParticipantNames(), userName)

	prompt := fmt.Sprintf(
		"Message: %s\n\nValid participants: %s\n\nDetermine which participant, if any, this message is directed at. If the message is soliciting a response from the human user (%s), respond with '%s'.",
		message, strings.Join(names, ", "), userName, userName)

	if h, err := c.registry.Helper(persona.HelperResponseDetector); err == nil {
		prompt = h.SystemMessage + "\n\n" + prompt
	}

	raw, _, _, err := c.runHelper(ctx, persona.HelperResponseDetector, prompt)
	if err != nil {
		log.Error().Err(err).Msg("addressed-participant detection failed")
		return ""
	}

	addressed := strings.TrimSpace(raw)
	switch addressed {
	case "", "None", "null":
		return ""
	}

	log.Debug().Str("addressed", addressed).Msg("detected addressed participant")
	return addressed
}

var (
	markdownPunctRe = regexp.MustCompile("[*_`#>\"]+")
	whitespaceRe    = regexp.MustCompile(`\s+`)
)

// cleanTopic collapses whitespace runs and strips markdown-style punctuation
// from the helper's raw output.
func cleanTopic(raw string) string {
	s := markdownPunctRe.ReplaceAllString(raw, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// GenerateTopic asks the TopicGenerator helper for a short declarative
// phrase describing the thread and stores it as the topic. The store write
// is idempotent; repeated calls overwrite.
func (c *Conductor) GenerateTopic(ctx context.Context) string {
	h, err := c.registry.Helper(persona.HelperTopicGenerator)
	if err != nil {
		log.Error().Err(err).Msg("no topic generator configured")
		return ""
	}

	contextStr := c.index.RecentMessages(10)
	prompt := fmt.Sprintf("%s\n\nConversation:\n%s\n\nProvide the topic.", h.SystemMessage, contextStr)

	raw, _, _, err := c.runHelper(ctx, persona.HelperTopicGenerator, prompt)
	if err != nil {
		log.Error().Err(err).Msg("topic generation failed")
		return ""
	}

	topic := cleanTopic(raw)
	if topic == "" {
		return ""
	}

	threadID := c.CurrentThreadID()
	c.store.SetTopic(threadID, topic)
	c.saveHistory()
	c.publisher.PublishBlind(events.NewTopicUpdatedEvent(c.eventMetadata(), topic))

	log.Debug().Str("thread_id", threadID).Str("topic", topic).Msg("topic generated")
	return topic
}

// Conversation context categories returned by ClassifyContext.
const (
	ContextCode     = "CODE"
	ContextResearch = "RESEARCH"
	ContextGeneral  = "GENERAL"
)

// ClassifyContext asks the ContextDetector helper whether the conversation
// is code-related, research-oriented or general discussion, and adjusts the
// master system message accordingly. Detector failure means GENERAL.
func (c *Conductor) ClassifyContext(ctx context.Context) string {
	h, err := c.registry.Helper(persona.HelperContextDetector)
	if err != nil {
		log.Error().Err(err).Msg("no context detector configured")
		return ContextGeneral
	}

	transcript := c.store.Context(c.CurrentThreadID())
	prompt := fmt.Sprintf("%s\n\nConversation:\n%s\n\nProvide the category.", h.SystemMessage, transcript)

	raw, _, _, err := c.runHelper(ctx, persona.HelperContextDetector, prompt)
	if err != nil {
		log.Error().Err(err).Msg("context classification failed")
		return ContextGeneral
	}

	category := strings.ToUpper(strings.TrimSpace(raw))
	switch category {
	case ContextCode, ContextResearch, ContextGeneral:
	default:
		category = ContextGeneral
	}

	c.mu.Lock()
	c.codeAware = category == ContextCode
	c.mu.Unlock()

	log.Debug().Str("category", category).Msg("classified conversation context")
	return category
}

// GenerateModeratorSummary has the Moderator helper summarize the current
// thread and records the summary in the transcript. On failure a short
// apology is recorded as a System message instead; the error never
// propagates to the round.
func (c *Conductor) GenerateModeratorSummary(ctx context.Context) string {
	c.setThinking("Moderator")
	defer c.setThinking("")

	h, err := c.registry.Helper(persona.HelperModerator)
	if err != nil {
		log.Error().Err(err).Msg("no moderator configured")
		c.recordMessage(chat.NewMessageEntry("System", "Unable to generate summary at this time."))
		return ""
	}

	transcript := c.store.Context(c.CurrentThreadID())
	prompt := fmt.Sprintf("%s\n\nConversation:\n%s\n\nProvide a summary of this conversation.", h.SystemMessage, transcript)

	raw, providerName, model, err := c.runHelper(ctx, persona.HelperModerator, prompt)
	summary := strings.TrimSpace(raw)
	if err != nil || summary == "" {
		log.Error().Err(err).Msg("moderator summary failed")
		c.recordMessage(chat.NewMessageEntry("System", "Unable to generate summary at this time."))
		return ""
	}

	c.recordMessage(chat.NewMessageEntry("Moderator", summary, chat.WithProvider(providerName, model)))
	c.publisher.PublishBlind(events.NewResponseEvent(c.eventMetadata(), "Moderator", summary, providerName, model))
	return summary
}
