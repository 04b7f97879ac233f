package llm

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yourorg/defi-yield-agent/internal/model"
	"github.com/yourorg/defi-yield-agent/internal/tracing"
)

// Handler receives the outcome of a streamed completion. Exactly one of
// OnComplete or OnError is called. OnIntermediate is reserved for per-chunk
// progress and is not called by the current backends.
type Handler struct {
	OnIntermediate func(stage, message string)
	OnComplete     func(text string)
	OnError        func(err error)
}

// Service dispatches completions by provider tag
type Service struct {
	common  []Option
	perKind map[Kind][]Option
}

// NewService creates a Service applying opts to every backend
func NewService(opts ...Option) *Service {
	return &Service{
		common:  opts,
		perKind: make(map[Kind][]Option),
	}
}

// Configure adds options for a single backend
func (s *Service) Configure(kind Kind, opts ...Option) *Service {
	s.perKind[kind] = append(s.perKind[kind], opts...)
	return s
}

// Complete runs one completion with the backend named by provider
func (s *Service) Complete(ctx context.Context, provider, apiKey string, messages []model.Message, systemPrompt string) (string, error) {
	kind, err := ParseKind(provider)
	if err != nil {
		return "", err
	}

	opts := append(append([]Option{}, s.common...), s.perKind[kind]...)
	completer, err := New(kind, apiKey, opts...)
	if err != nil {
		return "", err
	}

	ctx, span := tracing.Tracer().Start(ctx, "llm.Complete")
	defer span.End()
	span.SetAttributes(attribute.String("llm.provider", string(kind)))

	text, err := completer.Complete(ctx, messages, systemPrompt)
	if err != nil {
		tracing.RecordError(ctx, err)
		return "", err
	}
	span.SetAttributes(attribute.Int("llm.response_chars", len(text)))
	return text, nil
}

// Stream runs Complete and reports the result through h
func (s *Service) Stream(ctx context.Context, provider, apiKey string, messages []model.Message, systemPrompt string, h Handler) {
	text, err := s.Complete(ctx, provider, apiKey, messages, systemPrompt)
	if err != nil {
		if h.OnError != nil {
			h.OnError(err)
		}
		return
	}
	if h.OnComplete != nil {
		h.OnComplete(text)
	}
}
