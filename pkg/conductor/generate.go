package conductor

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/persona"
	"github.com/go-go-golems/parley/pkg/provider"
)

const noContextMarker = "This is a new topic. There is no prior conversation context."

// contextFor builds the conversation-context section of a prompt: relevant
// history for the query, recency when similarity finds nothing, and an
// explicit marker on a fresh topic. On the first turn of a fresh thread the
// index only holds the triggering prompt itself, which is already in the
// prompt body.
func (c *Conductor) contextFor(query string) string {
	c.mu.Lock()
	fresh := c.freshRound && c.roundAdds <= 1
	c.mu.Unlock()

	if fresh || c.index.WordHistoryLen() == 0 {
		return noContextMarker
	}
	if s := c.index.RelevantHistory(query, c.contextTopK); s != "" {
		return s
	}
	return c.index.RecentMessages(c.contextTopK)
}

func (c *Conductor) buildPrompt(p persona.Persona, participant string, prompt string) string {
	master := c.registry.RenderMaster(participant, c.codeAware)
	contextStr := c.contextFor(prompt)

	return fmt.Sprintf("%s\n%s\n\nConversation history:\n%s\n\n%s: %s\n%s:",
		master, p.SystemMessage, contextStr, c.registry.UserName(), prompt, participant)
}

// resolveEndpoint picks the endpoint for a persona; the persona's own model
// overrides the endpoint default when set.
func (c *Conductor) resolveEndpoint(p persona.Persona) (provider.Endpoint, string, error) {
	ep, err := c.providers.Resolve(p.Provider)
	if err != nil {
		return provider.Endpoint{}, "", err
	}
	model := p.Model
	if model == "" {
		model = ep.Model
	}
	return ep, model, nil
}

// streamCompletion accumulates the adapter's fragment stream, publishing
// partials as they arrive. Interruption is checked after every fragment;
// a cancelled context discards the partial accumulation.
func (c *Conductor) streamCompletion(ctx context.Context, ep provider.Endpoint, model string, prompt string, participant string) (string, error) {
	stream, err := ep.Adapter.Generate(ctx, model, prompt)
	if err != nil {
		return "", errors.Wrapf(err, "could not start generation for %s", participant)
	}

	var sb strings.Builder
	for fragment := range stream {
		sb.WriteString(fragment)
		c.publisher.PublishBlind(events.NewPartialEvent(c.eventMetadata(), participant, fragment, sb.String()))

		if ctx.Err() != nil {
			c.publisher.PublishBlind(events.NewInterruptEvent(c.eventMetadata(), participant))
			return "", ctx.Err()
		}
	}
	if ctx.Err() != nil {
		c.publisher.PublishBlind(events.NewInterruptEvent(c.eventMetadata(), participant))
		return "", ctx.Err()
	}

	return sb.String(), nil
}

// GenerateForParticipant generates one turn for the named persona. The
// participant must resolve to a known persona; anything else is a
// configuration error surfaced to the caller. Generation failures are not:
// they come back as an error-formatted Response so a single participant's
// failure never aborts the round. A cancelled context returns ctx.Err() and
// discards any partial output.
func (c *Conductor) GenerateForParticipant(ctx context.Context, participant string, prompt string) (Response, error) {
	p, err := c.registry.Lookup(participant)
	if err != nil {
		return Response{}, err
	}

	c.setThinking(participant)
	c.publisher.PublishBlind(events.NewThinkingStartedEvent(c.eventMetadata(), participant))
	defer func() {
		c.setThinking("")
		c.publisher.PublishBlind(events.NewThinkingFinishedEvent(c.eventMetadata(), participant))
	}()

	ep, model, err := c.resolveEndpoint(p)
	if err != nil {
		log.Error().Err(err).Str("participant", participant).Msg("could not resolve provider")
		return Response{
			Text: fmt.Sprintf("Error generating response for %s: %s", participant, err.Error()),
		}, nil
	}

	fullPrompt := c.buildPrompt(p, participant, prompt)
	log.Debug().Str("participant", participant).Str("provider", ep.Name).Str("model", model).
		Int("prompt_len", len(fullPrompt)).Msg("generating response")

	full, err := c.streamCompletion(ctx, ep, model, fullPrompt, participant)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, ctx.Err()
		}
		log.Error().Err(err).Str("participant", participant).Msg("generation failed")
		return Response{
			Text:     fmt.Sprintf("Error generating response for %s: %s", participant, err.Error()),
			Provider: ep.Name,
			Model:    model,
		}, nil
	}

	text := ExtractResponse(full, participant)
	if text != "" {
		c.markResponded(participant)
	}
	c.countTokens(fullPrompt, text)

	return Response{Text: text, Provider: ep.Name, Model: model}, nil
}

// generateTurn runs one participant's turn inside a round: generation,
// transcript append, response event. Configuration errors become inline
// error messages attributed to the participant; the round continues.
func (c *Conductor) generateTurn(ctx context.Context, participant string, prompt string, results map[string]Response) error {
	resp, err := c.GenerateForParticipant(ctx, participant, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.publisher.PublishBlind(events.NewErrorEvent(c.eventMetadata(), err))
		resp = Response{
			Text: fmt.Sprintf("Error generating response for %s: %s", participant, err.Error()),
		}
	}

	if resp.Text == "" {
		return nil
	}

	c.recordMessage(chat.NewMessageEntry(participant, resp.Text, chat.WithProvider(resp.Provider, resp.Model)))
	results[participant] = resp
	c.publisher.PublishBlind(events.NewResponseEvent(c.eventMetadata(), participant, resp.Text, resp.Provider, resp.Model))
	return nil
}

// GenerateConversation runs one full round: the user prompt is recorded
// exactly once, then every active participant takes a turn in the order
// given by the caller. If the round was interrupted mid-way the responses
// collected so far are returned without error. Once every active
// participant has responded, the thread topic is generated (once per
// thread).
func (c *Conductor) GenerateConversation(ctx context.Context, prompt string, activeParticipants []string) (map[string]Response, error) {
	roundCtx, cancel := c.beginRound(ctx)
	defer cancel()

	c.ensureThread()
	c.recordMessage(chat.NewMessageEntry(c.registry.UserName(), prompt))

	results := map[string]Response{}
	for _, participant := range activeParticipants {
		if roundCtx.Err() != nil {
			log.Debug().Str("participant", participant).Msg("round interrupted, skipping remaining participants")
			break
		}
		if err := c.generateTurn(roundCtx, participant, prompt, results); err != nil {
			break
		}
	}

	if len(activeParticipants) > 0 {
		c.maybeGenerateTopic(ctx, activeParticipants)
	}

	return results, nil
}

// ContinueResult is the outcome of continuing a conversation: either the
// round yields control back to the human, or one or more participants
// responded.
type ContinueResult struct {
	Responses map[string]Response
	// AddressedTo names the single participant the detector routed the
	// message to, when it did.
	AddressedTo string
	// PromptUser is set when the conversation is soliciting a response from
	// the human user; Prompt carries the prompt-back text.
	PromptUser bool
	Prompt     string
}

// ContinueConversation records the user's input, then routes it: a message
// addressed to the human yields control back; one addressed to a single
// active participant generates only that participant's response; anything
// else runs a full round.
func (c *Conductor) ContinueConversation(ctx context.Context, userInput string, activeParticipants []string) (*ContinueResult, error) {
	roundCtx, cancel := c.beginRound(ctx)
	defer cancel()

	c.ensureThread()
	c.recordMessage(chat.NewMessageEntry(c.registry.UserName(), userInput))

	ret := &ContinueResult{Responses: map[string]Response{}}

	addressed := c.DetectAddressedParticipant(roundCtx, userInput)
	switch {
	case addressed == c.registry.UserName():
		ret.PromptUser = true
		ret.Prompt = fmt.Sprintf("The conversation is awaiting your response, %s.", c.registry.UserName())
		return ret, nil

	case addressed != "" && containsName(activeParticipants, addressed):
		ret.AddressedTo = addressed
		if err := c.generateTurn(roundCtx, addressed, userInput, ret.Responses); err != nil {
			return ret, nil
		}

	default:
		for _, participant := range activeParticipants {
			if roundCtx.Err() != nil {
				break
			}
			if err := c.generateTurn(roundCtx, participant, userInput, ret.Responses); err != nil {
				break
			}
		}
	}

	// topic generation happens once the first exchange is in, whether or not
	// every participant took part in this continuation
	if len(ret.Responses) > 0 {
		c.maybeGenerateTopic(ctx, nil)
	}

	return ret, nil
}

// maybeGenerateTopic sets the thread topic once a full round has completed
// and the topic has not been set yet. With a nil participant list only the
// topic-unset check applies.
func (c *Conductor) maybeGenerateTopic(ctx context.Context, activeParticipants []string) {
	if ctx.Err() != nil {
		return
	}
	if activeParticipants != nil && !c.allResponded(activeParticipants) {
		return
	}

	threadID := c.CurrentThreadID()
	t, ok := c.store.Thread(threadID)
	if !ok || t.Topic != "" {
		return
	}

	c.GenerateTopic(ctx)
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
