package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/parley/pkg/chat"
	"github.com/go-go-golems/parley/pkg/conductor"
	"github.com/go-go-golems/parley/pkg/events"
	"github.com/go-go-golems/parley/pkg/persona"
	"github.com/go-go-golems/parley/pkg/provider"
	"github.com/go-go-golems/parley/pkg/tokens"
)

// contextRefreshInterval is how many user messages pass between
// reclassifications of the conversation context.
const contextRefreshInterval = 5

func newChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive group conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context())
		},
	}

	cmd.Flags().String("openai-api-key", "", "OpenAI API key (or PARLEY_OPENAI_API_KEY / OPENAI_API_KEY)")
	cmd.Flags().String("openai-base-url", "", "OpenAI-compatible base URL for the openai provider")
	cmd.Flags().String("openai-model", "gpt-4", "Default model for the openai provider")
	cmd.Flags().String("anthropic-api-key", "", "API key for the anthropic provider")
	cmd.Flags().String("anthropic-base-url", "", "OpenAI-compatible base URL serving anthropic models")
	cmd.Flags().String("anthropic-model", "claude-3-5-sonnet-20241022", "Default model for the anthropic provider")
	cmd.Flags().Int("context-top-k", 5, "How many history messages to retrieve per prompt")
	cobra.CheckErr(viper.BindPFlags(cmd.Flags()))

	return cmd
}

func buildRegistry() (*persona.Registry, error) {
	userName := viper.GetString("user-name")
	if path := viper.GetString("personas"); path != "" {
		return persona.LoadFromFile(path)
	}
	return persona.Default(userName), nil
}

func buildProviders() *provider.Registry {
	ret := provider.NewRegistry()

	openaiKey := viper.GetString("openai-api-key")
	if openaiKey == "" {
		openaiKey = os.Getenv("OPENAI_API_KEY")
	}
	ret.Register("openai", provider.Endpoint{
		Model: viper.GetString("openai-model"),
		Adapter: provider.NewOpenAIAdapter("openai", openaiKey,
			provider.WithBaseURL(viper.GetString("openai-base-url"))),
	})

	// The anthropic provider goes through an OpenAI-compatible gateway
	// (litellm, openrouter and friends); point anthropic-base-url at one.
	anthropicKey := viper.GetString("anthropic-api-key")
	if anthropicKey == "" {
		anthropicKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	ret.Register("anthropic", provider.Endpoint{
		Model: viper.GetString("anthropic-model"),
		Adapter: provider.NewOpenAIAdapter("anthropic", anthropicKey,
			provider.WithBaseURL(viper.GetString("anthropic-base-url"))),
	})

	return ret
}

// renderEvent prints streamed conversation events. Partials render in place
// as they arrive; the response line itself is therefore already on screen by
// the time the response event fires.
func renderEvent(msg *message.Message) error {
	defer msg.Ack()

	e, err := events.NewEventFromJson(msg.Payload)
	if err != nil {
		log.Warn().Err(err).Msg("could not parse event")
		return nil
	}

	switch ev := e.(type) {
	case *events.EventThinking:
		if ev.Type() == events.EventTypeThinkingStarted {
			fmt.Printf("\n[%s is thinking]\n", ev.Participant)
		}
	case *events.EventPartial:
		fmt.Print(ev.Delta)
	case *events.EventResponse:
		fmt.Println()
	case *events.EventTopicUpdated:
		fmt.Printf("\n[topic: %s]\n", ev.Topic)
	case *events.EventInterrupt:
		fmt.Println("\n[interrupted]")
	case *events.EventError:
		fmt.Printf("\n[error: %s]\n", ev.ErrorString)
	}
	return nil
}

func printHelp() {
	fmt.Print(`Commands:
  /help            show this help
  /quit            save and exit
  /new-topic       close the current thread and start a fresh one
  /summary         have the moderator summarize the current thread
  /threads         list stored threads
  /switch <id>     continue an earlier thread
  /interrupt       stop the round in progress
  /tokens          show session token usage
Anything else is sent to the conversation. Ctrl-C interrupts a round.
`)
}

func runChat(ctx context.Context) error {
	registry, err := buildRegistry()
	if err != nil {
		return err
	}

	historyPath := viper.GetString("history")
	store := chat.LoadStore(historyPath)

	router, err := events.NewEventRouter()
	if err != nil {
		return err
	}
	defer func() {
		_ = router.Close()
	}()

	publisher := events.NewPublisherManager()
	publisher.SubscribePublisher("chat", router.Publisher)
	router.AddHandler("cli-renderer", "chat", renderEvent)

	c := conductor.NewConductor(registry, buildProviders(),
		conductor.WithStore(store),
		conductor.WithHistoryPath(historyPath),
		conductor.WithPublisher(publisher),
		conductor.WithTokenCounter(tokens.NewCounter(viper.GetString("openai-model"))),
		conductor.WithContextTopK(viper.GetInt("context-top-k")),
	)

	routerCtx, stopRouter := context.WithCancel(ctx)
	defer stopRouter()
	go func() {
		if err := router.Run(routerCtx); err != nil && routerCtx.Err() == nil {
			log.Error().Err(err).Msg("event router stopped")
		}
	}()
	<-router.Running()

	// Ctrl-C interrupts the round in flight instead of killing the process.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			c.Interrupt()
		}
	}()

	participants := registry.ParticipantNames()
	userName := registry.UserName()

	if g := registry.Greeting(); g != "" {
		fmt.Println(g)
	}
	fmt.Printf("You are chatting with %s. Type /help for commands.\n", strings.Join(participants, ", "))

	messageCount := 0
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("\n%s> ", userName)
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := runCommand(ctx, c, store, line); quit {
				break
			}
			continue
		}

		messageCount++
		if messageCount%contextRefreshInterval == 0 {
			c.ClassifyContext(ctx)
		}

		ret, err := c.ContinueConversation(ctx, line, participants)
		if err != nil {
			log.Error().Err(err).Msg("conversation round failed")
			continue
		}
		if ret.PromptUser {
			fmt.Println(ret.Prompt)
		}
	}

	fmt.Println("Goodbye.")
	return scanner.Err()
}

// runCommand handles a slash command; returns true when the loop should end.
func runCommand(ctx context.Context, c *conductor.Conductor, store *chat.Store, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		printHelp()
	case "/new-topic":
		id := c.NewTopic()
		fmt.Printf("Started %s.\n", id)
	case "/summary":
		if s := c.GenerateModeratorSummary(ctx); s != "" {
			fmt.Printf("\nModerator: %s\n", s)
		} else {
			fmt.Println("Unable to generate summary at this time.")
		}
	case "/threads":
		printThreads(store)
	case "/switch":
		arg = strings.TrimSpace(arg)
		if arg == "" {
			fmt.Println("Usage: /switch <thread id>")
			break
		}
		if err := c.SwitchThread(arg); err != nil {
			fmt.Printf("No such thread: %s\n", arg)
			break
		}
		fmt.Printf("Switched to %s.\n", arg)
	case "/interrupt":
		c.Interrupt()
	case "/tokens":
		fmt.Printf("Session token usage: %d\n", c.TotalTokens())
	default:
		fmt.Printf("Unknown command %s. Type /help for the command list.\n", cmd)
	}
	return false
}

func printThreads(store *chat.Store) {
	ids := store.ThreadIDs()
	if len(ids) == 0 {
		fmt.Println("No threads yet.")
		return
	}
	for _, id := range ids {
		t, ok := store.Thread(id)
		if !ok {
			continue
		}
		topic := t.Topic
		if topic == "" {
			topic = "(no topic)"
		}
		fmt.Printf("%-12s %-12s %4d messages  %s\n", id, t.Date, len(t.Messages), topic)
	}
}
