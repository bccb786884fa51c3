package provider

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

// OpenAIAdapter streams chat completions from the OpenAI API or any
// OpenAI-compatible endpoint (Ollama, LM Studio, proxies) selected via the
// base URL.
type OpenAIAdapter struct {
	client       *go_openai.Client
	providerName string
}

type OpenAIOption func(*go_openai.ClientConfig)

func WithBaseURL(baseURL string) OpenAIOption {
	return func(cfg *go_openai.ClientConfig) {
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
	}
}

func NewOpenAIAdapter(providerName string, apiKey string, options ...OpenAIOption) *OpenAIAdapter {
	cfg := go_openai.DefaultConfig(apiKey)
	for _, option := range options {
		option(&cfg)
	}
	return &OpenAIAdapter{
		client:       go_openai.NewClientWithConfig(cfg),
		providerName: providerName,
	}
}

func (a *OpenAIAdapter) Generate(ctx context.Context, model string, prompt string) (<-chan string, error) {
	out := make(chan string)

	go func() {
		defer close(out)

		req := go_openai.ChatCompletionRequest{
			Model: model,
			Messages: []go_openai.ChatCompletionMessage{
				{
					Role:    go_openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			Stream: true,
		}

		stream, err := a.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			log.Error().Err(err).Str("provider", a.providerName).Str("model", model).
				Msg("streaming request failed")
			a.sendFallback(ctx, out)
			return
		}
		defer func() {
			stream.Close()
		}()

		chunkCount := 0
		for {
			select {
			case <-ctx.Done():
				log.Debug().Str("provider", a.providerName).Int("chunks", chunkCount).
					Msg("streaming cancelled by context")
				return
			default:
			}

			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				log.Debug().Str("provider", a.providerName).Int("chunks", chunkCount).
					Msg("stream completed")
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Error().Err(err).Str("provider", a.providerName).Int("chunks", chunkCount).
					Msg("stream receive failed")
				a.sendFallback(ctx, out)
				return
			}
			chunkCount++

			if len(response.Choices) == 0 {
				continue
			}
			delta := response.Choices[0].Delta.Content
			if delta == "" {
				continue
			}

			select {
			case out <- delta:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// sendFallback delivers the single "not available" fragment required by the
// adapter contract.
func (a *OpenAIAdapter) sendFallback(ctx context.Context, out chan<- string) {
	select {
	case out <- fmt.Sprintf("%s is not available now.", a.providerName):
	case <-ctx.Done():
	}
}

var _ Adapter = (*OpenAIAdapter)(nil)
