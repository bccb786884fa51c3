package conductor

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/parley/pkg/persona"
	"github.com/go-go-golems/parley/pkg/provider"
)

type adapterFunc func(ctx context.Context, model string, prompt string) (<-chan string, error)

func (f adapterFunc) Generate(ctx context.Context, model string, prompt string) (<-chan string, error) {
	return f(ctx, model, prompt)
}

// promptSpeaker recovers the participant a conversational prompt was built
// for; prompts end with "<participant>:".
func promptSpeaker(prompt string) string {
	lines := strings.Split(strings.TrimSpace(prompt), "\n")
	return strings.TrimSuffix(lines[len(lines)-1], ":")
}

type script struct {
	topicCalls    int
	detectorReply string
	categoryReply string
	summaryReply  string
}

// adapter answers helper prompts from the script and conversational prompts
// with a canned per-speaker reply prefixed by the speaker marker.
func (s *script) adapter() adapterFunc {
	return func(ctx context.Context, model string, prompt string) (<-chan string, error) {
		ch := make(chan string, 4)
		defer close(ch)

		switch {
		case strings.Contains(prompt, "Provide the topic."):
			s.topicCalls++
			ch <- "Greetings and small talk"
		case strings.Contains(prompt, "Determine which participant"):
			ch <- s.detectorReply
		case strings.Contains(prompt, "Provide the category."):
			ch <- s.categoryReply
		case strings.Contains(prompt, "Provide a summary"):
			ch <- s.summaryReply
		default:
			speaker := promptSpeaker(prompt)
			ch <- speaker + ": "
			ch <- "Hello from " + speaker
		}
		return ch, nil
	}
}

func failingAdapter() adapterFunc {
	return func(ctx context.Context, model string, prompt string) (<-chan string, error) {
		return nil, errors.New("connection refused")
	}
}

func newTestConductor(ad provider.Adapter, options ...Option) *Conductor {
	providers := provider.NewRegistry()
	providers.Register("anthropic", provider.Endpoint{Model: "test-model", Adapter: ad})
	providers.Register("openai", provider.Endpoint{Model: "test-model", Adapter: ad})
	return NewConductor(persona.Default("User"), providers, options...)
}

func TestGenerateConversationRunsFullRound(t *testing.T) {
	s := &script{detectorReply: "None"}
	c := newTestConductor(s.adapter())

	results, err := c.GenerateConversation(context.Background(), "Hello everyone", []string{"Vanessa", "Lukas"})
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "Hello from Vanessa", results["Vanessa"].Text)
	assert.Equal(t, "Hello from Lukas", results["Lukas"].Text)

	th, ok := c.Store().Thread(c.CurrentThreadID())
	require.True(t, ok)
	require.Len(t, th.Messages, 3)
	assert.Equal(t, "User", th.Messages[0].Sender)
	assert.Equal(t, "Hello everyone", th.Messages[0].Text)
	assert.Equal(t, "Vanessa", th.Messages[1].Sender)
	assert.Equal(t, "Lukas", th.Messages[2].Sender)

	assert.Equal(t, "Greetings and small talk", th.Topic)
	assert.Equal(t, 1, s.topicCalls)
}

func TestTopicGeneratedOncePerThread(t *testing.T) {
	s := &script{detectorReply: "None"}
	c := newTestConductor(s.adapter())

	_, err := c.GenerateConversation(context.Background(), "First prompt", []string{"Vanessa"})
	require.NoError(t, err)
	_, err = c.GenerateConversation(context.Background(), "Second prompt", []string{"Vanessa"})
	require.NoError(t, err)

	assert.Equal(t, 1, s.topicCalls)

	c.NewTopic()
	_, err = c.GenerateConversation(context.Background(), "Fresh start", []string{"Vanessa"})
	require.NoError(t, err)
	assert.Equal(t, 2, s.topicCalls)
}

func TestGenerateForParticipantUnknownPersona(t *testing.T) {
	s := &script{}
	c := newTestConductor(s.adapter())

	_, err := c.GenerateForParticipant(context.Background(), "Zelda", "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, persona.ErrUnknownPersona))
}

func TestGenerationFailureBecomesErrorContent(t *testing.T) {
	s := &script{}
	providers := provider.NewRegistry()
	providers.Register("anthropic", provider.Endpoint{Model: "test-model", Adapter: s.adapter()})
	providers.Register("openai", provider.Endpoint{Model: "test-model", Adapter: failingAdapter()})
	c := NewConductor(persona.Default("User"), providers)

	results, err := c.GenerateConversation(context.Background(), "Hello", []string{"Vanessa", "Lukas"})
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "Hello from Vanessa", results["Vanessa"].Text)
	assert.Contains(t, results["Lukas"].Text, "Error generating response for Lukas")

	th, _ := c.Store().Thread(c.CurrentThreadID())
	require.Len(t, th.Messages, 3)
	assert.Contains(t, th.Messages[2].Text, "Error generating response for Lukas")
}

func TestInterruptDiscardsPartialOutput(t *testing.T) {
	var c *Conductor
	ad := adapterFunc(func(ctx context.Context, model string, prompt string) (<-chan string, error) {
		ch := make(chan string, 2)
		ch <- "partial thoughts that should never be recorded"
		c.Interrupt()
		close(ch)
		return ch, nil
	})
	c = newTestConductor(ad)

	results, err := c.GenerateConversation(context.Background(), "Hello", []string{"Vanessa", "Lukas"})
	require.NoError(t, err)
	assert.Empty(t, results)

	th, ok := c.Store().Thread(c.CurrentThreadID())
	require.True(t, ok)
	require.Len(t, th.Messages, 1)
	assert.Equal(t, "User", th.Messages[0].Sender)
	assert.Equal(t, "", th.Topic)
}

func TestInterruptionClearedByNextRound(t *testing.T) {
	interrupted := false
	var c *Conductor
	ad := adapterFunc(func(ctx context.Context, model string, prompt string) (<-chan string, error) {
		ch := make(chan string, 2)
		if strings.Contains(prompt, "Provide the topic.") {
			ch <- "A topic"
			close(ch)
			return ch, nil
		}
		speaker := promptSpeaker(prompt)
		ch <- speaker + ": reply from " + speaker
		if !interrupted {
			interrupted = true
			c.Interrupt()
		}
		close(ch)
		return ch, nil
	})
	c = newTestConductor(ad)

	results, err := c.GenerateConversation(context.Background(), "one", []string{"Vanessa"})
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = c.GenerateConversation(context.Background(), "two", []string{"Vanessa"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "reply from Vanessa", results["Vanessa"].Text)
}

func TestContinueConversationRoutesToAddressed(t *testing.T) {
	s := &script{detectorReply: "Lukas"}
	c := newTestConductor(s.adapter())

	ret, err := c.ContinueConversation(context.Background(), "Lukas, what do you think?", []string{"Vanessa", "Lukas"})
	require.NoError(t, err)

	assert.Equal(t, "Lukas", ret.AddressedTo)
	assert.False(t, ret.PromptUser)
	require.Len(t, ret.Responses, 1)
	assert.Equal(t, "Hello from Lukas", ret.Responses["Lukas"].Text)
}

func TestContinueConversationPromptsUser(t *testing.T) {
	s := &script{detectorReply: "User"}
	c := newTestConductor(s.adapter())

	ret, err := c.ContinueConversation(context.Background(), "What does everyone think?", []string{"Vanessa"})
	require.NoError(t, err)

	assert.True(t, ret.PromptUser)
	assert.NotEmpty(t, ret.Prompt)
	assert.Empty(t, ret.Responses)
	assert.Equal(t, 0, s.topicCalls)
}

func TestContinueConversationFullRoundByDefault(t *testing.T) {
	s := &script{detectorReply: "None"}
	c := newTestConductor(s.adapter())

	ret, err := c.ContinueConversation(context.Background(), "Thoughts?", []string{"Vanessa", "Lukas"})
	require.NoError(t, err)

	assert.Equal(t, "", ret.AddressedTo)
	require.Len(t, ret.Responses, 2)
}

func TestDetectAddressedParticipantNormalization(t *testing.T) {
	for _, reply := range []string{"", "None", "null"} {
		s := &script{detectorReply: reply}
		c := newTestConductor(s.adapter())
		assert.Equal(t, "", c.DetectAddressedParticipant(context.Background(), "hello"), "reply %q", reply)
	}

	s := &script{detectorReply: "  Lukas\n"}
	c := newTestConductor(s.adapter())
	assert.Equal(t, "Lukas", c.DetectAddressedParticipant(context.Background(), "Lukas?"))
}

func TestDetectAddressedParticipantFailsSafe(t *testing.T) {
	c := newTestConductor(failingAdapter())
	assert.Equal(t, "", c.DetectAddressedParticipant(context.Background(), "hello"))
}

func TestModeratorSummaryRecorded(t *testing.T) {
	s := &script{detectorReply: "None", summaryReply: "Everyone said hello."}
	c := newTestConductor(s.adapter())

	_, err := c.GenerateConversation(context.Background(), "Hello", []string{"Vanessa"})
	require.NoError(t, err)

	summary := c.GenerateModeratorSummary(context.Background())
	assert.Equal(t, "Everyone said hello.", summary)

	th, _ := c.Store().Thread(c.CurrentThreadID())
	last := th.Messages[len(th.Messages)-1]
	assert.Equal(t, "Moderator", last.Sender)
	assert.Equal(t, "Everyone said hello.", last.Text)
}

func TestModeratorFailureRecordsSystemMessage(t *testing.T) {
	c := newTestConductor(failingAdapter())
	c.ensureThread()

	summary := c.GenerateModeratorSummary(context.Background())
	assert.Equal(t, "", summary)

	th, _ := c.Store().Thread(c.CurrentThreadID())
	require.NotEmpty(t, th.Messages)
	last := th.Messages[len(th.Messages)-1]
	assert.Equal(t, "System", last.Sender)
	assert.Equal(t, "Unable to generate summary at this time.", last.Text)
}

func TestClassifyContext(t *testing.T) {
	for reply, want := range map[string]string{
		"CODE":     ContextCode,
		"code\n":   ContextCode,
		"RESEARCH": ContextResearch,
		"banana":   ContextGeneral,
	} {
		s := &script{categoryReply: reply}
		c := newTestConductor(s.adapter())
		c.ensureThread()
		assert.Equal(t, want, c.ClassifyContext(context.Background()), "reply %q", reply)
	}
}

func TestClassifyContextFailsToGeneral(t *testing.T) {
	c := newTestConductor(failingAdapter())
	c.ensureThread()
	assert.Equal(t, ContextGeneral, c.ClassifyContext(context.Background()))
}

func TestNewTopicInsertsDividerAndResets(t *testing.T) {
	s := &script{detectorReply: "None"}
	c := newTestConductor(s.adapter())

	_, err := c.GenerateConversation(context.Background(), "Hello", []string{"Vanessa"})
	require.NoError(t, err)
	first := c.CurrentThreadID()

	second := c.NewTopic()
	assert.NotEqual(t, first, second)
	assert.Equal(t, second, c.CurrentThreadID())

	th, _ := c.Store().Thread(first)
	require.NotEmpty(t, th.Messages)
	assert.True(t, th.Messages[len(th.Messages)-1].IsDivider)
}

func TestSwitchThreadReseedsIndex(t *testing.T) {
	s := &script{detectorReply: "None"}
	c := newTestConductor(s.adapter())

	_, err := c.GenerateConversation(context.Background(), "The moon landing was in 1969", []string{"Vanessa"})
	require.NoError(t, err)
	first := c.CurrentThreadID()

	c.NewTopic()
	require.NoError(t, c.SwitchThread(first))
	assert.Equal(t, first, c.CurrentThreadID())

	assert.Error(t, c.SwitchThread("thread_999"))
}

func TestFreshThreadMarkerOnlyForFirstTurn(t *testing.T) {
	var prompts []string
	ad := adapterFunc(func(ctx context.Context, model string, prompt string) (<-chan string, error) {
		ch := make(chan string, 2)
		if strings.Contains(prompt, "Provide the topic.") {
			ch <- "A topic"
		} else {
			prompts = append(prompts, prompt)
			speaker := promptSpeaker(prompt)
			ch <- speaker + ": hello from " + speaker
		}
		close(ch)
		return ch, nil
	})
	c := newTestConductor(ad)

	_, err := c.GenerateConversation(context.Background(), "Hello", []string{"Vanessa", "Lukas"})
	require.NoError(t, err)

	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[0], "no prior conversation context")
	assert.NotContains(t, prompts[1], "no prior conversation context")
	assert.Contains(t, prompts[1], "hello from Vanessa")

	// the second round has real history behind it
	_, err = c.GenerateConversation(context.Background(), "More", []string{"Vanessa"})
	require.NoError(t, err)
	require.Len(t, prompts, 3)
	assert.NotContains(t, prompts[2], "no prior conversation context")
}

func TestRepeatedPromptDeduplicated(t *testing.T) {
	s := &script{detectorReply: "None"}
	c := newTestConductor(s.adapter())

	_, err := c.GenerateConversation(context.Background(), "Hello", []string{})
	require.NoError(t, err)
	_, err = c.GenerateConversation(context.Background(), "Hello", []string{})
	require.NoError(t, err)

	th, _ := c.Store().Thread(c.CurrentThreadID())
	assert.Len(t, th.Messages, 1)
}
