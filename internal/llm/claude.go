package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/yourorg/defi-yield-agent/internal/model"
)

const (
	claudeBaseURL    = "https://api.anthropic.com"
	claudeModel      = "claude-3-5-sonnet-20241022"
	claudeAPIVersion = "2023-06-01"
	claudeMaxTokens  = 4096
)

type claude struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func newClaude(apiKey string, o options) *claude {
	return &claude{
		apiKey:     apiKey,
		baseURL:    o.baseURL,
		model:      o.model,
		httpClient: o.httpClient,
	}
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system,omitempty"`
	Messages  []claudeMessage `json:"messages"`
	Stream    bool            `json:"stream"`
}

type claudeEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *claude) Complete(ctx context.Context, messages []model.Message, systemPrompt string) (string, error) {
	body := claudeRequest{
		Model:     c.model,
		MaxTokens: claudeMaxTokens,
		System:    systemPrompt,
		Stream:    true,
	}
	for _, m := range messages {
		role := model.RoleUser
		if m.Role == model.RoleAssistant {
			role = model.RoleAssistant
		}
		body.Messages = append(body.Messages, claudeMessage{Role: role, Content: m.Content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", failed("claude", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", failed("claude", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", claudeAPIVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", failed("claude", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", failed("claude", err)
	}

	var (
		b       strings.Builder
		stopped bool
	)
	errStop := errors.New("stop")
	err = readSSE(resp.Body, func(event, data string) error {
		var ev claudeEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return fmt.Errorf("decode %s event: %w", event, err)
		}
		switch ev.Type {
		case "content_block_delta":
			if ev.Delta.Type == "text_delta" {
				b.WriteString(ev.Delta.Text)
			}
		case "error":
			return fmt.Errorf("stream error %s: %s", ev.Error.Type, ev.Error.Message)
		case "message_stop":
			stopped = true
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return "", failed("claude", err)
	}
	if !stopped {
		return "", failed("claude", errors.New("stream ended before message_stop"))
	}
	return b.String(), nil
}
