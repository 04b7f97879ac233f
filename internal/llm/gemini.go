package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/yourorg/defi-yield-agent/internal/model"
)

const (
	geminiBaseURL = "https://generativelanguage.googleapis.com"
	geminiModel   = "gemini-pro"
)

type gemini struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func newGemini(apiKey string, o options) *gemini {
	return &gemini{
		apiKey:     apiKey,
		baseURL:    o.baseURL,
		model:      o.model,
		httpClient: o.httpClient,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiChunk struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

func (g *gemini) Complete(ctx context.Context, messages []model.Message, systemPrompt string) (string, error) {
	body := geminiRequest{}
	if systemPrompt != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}}
	}
	for _, m := range messages {
		role := "user"
		if m.Role == model.RoleAssistant {
			role = "model"
		}
		body.Contents = append(body.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", failed("gemini", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse",
		g.baseURL, url.PathEscape(g.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", failed("gemini", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", failed("gemini", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return "", failed("gemini", err)
	}

	var b strings.Builder
	err = readSSE(resp.Body, func(_, data string) error {
		var chunk geminiChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("decode chunk: %w", err)
		}
		if chunk.Error != nil {
			return fmt.Errorf("stream error %s: %s", chunk.Error.Status, chunk.Error.Message)
		}
		for _, c := range chunk.Candidates {
			for _, p := range c.Content.Parts {
				b.WriteString(p.Text)
			}
		}
		return nil
	})
	if err != nil {
		return "", failed("gemini", err)
	}
	return b.String(), nil
}
