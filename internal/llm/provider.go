// Package llm puts the supported chat-completion backends behind one interface.
// Every backend consumes its provider's token stream and returns only the full text.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/yourorg/defi-yield-agent/internal/model"
)

var (
	// ErrUnsupportedProvider is returned for an unknown provider tag. No request is made.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrCompletionFailed wraps every backend failure: auth, network, rate limit or a bad stream
	ErrCompletionFailed = errors.New("completion failed")
)

// Kind identifies a completion backend
type Kind string

// Supported backends
const (
	OpenAI   Kind = "openai"
	Gemini   Kind = "gemini"
	Claude   Kind = "claude"
	DeepSeek Kind = "deepseek"
)

// Kinds lists every supported backend
var Kinds = []Kind{OpenAI, Gemini, Claude, DeepSeek}

// ParseKind resolves a provider tag, case-insensitively
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case OpenAI, Gemini, Claude, DeepSeek:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, s)
	}
}

// Completer turns a conversation plus system prompt into one completion
type Completer interface {
	Complete(ctx context.Context, messages []model.Message, systemPrompt string) (string, error)
}

type options struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// Option customizes a backend
type Option func(*options)

// WithBaseURL points the backend at another endpoint, e.g. a gateway or test server
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = strings.TrimRight(url, "/") }
}

// WithModel overrides the backend's default model
func WithModel(name string) Option {
	return func(o *options) { o.model = name }
}

// WithHTTPClient overrides the transport
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// New builds the backend for kind. An unknown kind fails before any network I/O.
func New(kind Kind, apiKey string, opts ...Option) (Completer, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = defaultHTTPClient()
	}

	switch kind {
	case OpenAI:
		return newOpenAICompatible(string(OpenAI), apiKey, o.withDefaults(openAIBaseURL, openAIModel)), nil
	case DeepSeek:
		return newOpenAICompatible(string(DeepSeek), apiKey, o.withDefaults(deepSeekBaseURL, deepSeekModel)), nil
	case Claude:
		return newClaude(apiKey, o.withDefaults(claudeBaseURL, claudeModel)), nil
	case Gemini:
		return newGemini(apiKey, o.withDefaults(geminiBaseURL, geminiModel)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, string(kind))
	}
}

func (o options) withDefaults(baseURL, model string) options {
	if o.baseURL == "" {
		o.baseURL = baseURL
	}
	if o.model == "" {
		o.model = model
	}
	return o
}

// Completions stream for a while; the caller's context bounds them
func defaultHTTPClient() *http.Client {
	c := cleanhttp.DefaultPooledClient()
	c.Timeout = 3 * time.Minute
	return c
}

func failed(provider string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrCompletionFailed, provider, err)
}
