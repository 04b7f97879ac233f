package llm

import (
	"context"
	"errors"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/yourorg/defi-yield-agent/internal/model"
)

const (
	openAIBaseURL = "https://api.openai.com/v1"
	openAIModel   = "gpt-4o-mini"

	deepSeekBaseURL = "https://api.deepseek.com"
	deepSeekModel   = "deepseek-chat"

	openAITemperature = 0.7
)

// openAICompatible serves OpenAI and any endpoint speaking its chat-completions protocol
type openAICompatible struct {
	name   string
	model  string
	client *openai.Client
}

func newOpenAICompatible(name, apiKey string, o options) *openAICompatible {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = o.baseURL
	cfg.HTTPClient = o.httpClient
	return &openAICompatible{
		name:   name,
		model:  o.model,
		client: openai.NewClientWithConfig(cfg),
	}
}

func (c *openAICompatible) Complete(ctx context.Context, messages []model.Message, systemPrompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toOpenAIMessages(messages, systemPrompt),
		Temperature: openAITemperature,
		Stream:      true,
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", failed(c.name, err)
	}
	defer stream.Close()

	var b strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", failed(c.name, err)
		}
		if len(chunk.Choices) > 0 {
			b.WriteString(chunk.Choices[0].Delta.Content)
		}
	}
	return b.String(), nil
}

func toOpenAIMessages(messages []model.Message, systemPrompt string) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	out = append(out, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, m := range messages {
		role := m.Role
		switch role {
		case model.RoleAssistant, model.RoleSystem:
		default:
			role = model.RoleUser
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}
