// Package agent answers yield research questions with the stored pool data and an LLM.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yourorg/defi-yield-agent/internal/aggregate"
	"github.com/yourorg/defi-yield-agent/internal/llm"
	"github.com/yourorg/defi-yield-agent/internal/metrics"
	"github.com/yourorg/defi-yield-agent/internal/model"
	"github.com/yourorg/defi-yield-agent/internal/store"
	"github.com/yourorg/defi-yield-agent/internal/tracing"
)

const (
	// DefaultUserID is used when a request carries no user id
	DefaultUserID = "default_user"

	candidatePools = 20
	promptPools    = 10
	answerPools    = 5

	// ErrorMessage is the only error text a client ever sees
	ErrorMessage = "An error occurred processing your request"
)

// SystemPrompt frames every completion
const SystemPrompt = `You are a DeFi research agent that helps users find the best yield opportunities across multiple blockchains.
You have access to real-time data from 50+ protocols across 15+ chains.
Provide clear, actionable insights with specific numbers and recommendations.
Always mention risk scores and explain why certain pools are recommended.
Format your response with clear headers using ### and bold text using **.`

// FollowUps are attached to every answer
var FollowUps = []string{
	"Would you like to see historical APY trends?",
	"Should I calculate gas-adjusted returns?",
	"Do you want me to compare specific protocols?",
}

// Stage is a progress step of a streamed answer
type Stage string

// Progress stages, in delivery order
const (
	StageAnalyzing   Stage = "analyzing"
	StageSearching   Stage = "searching"
	StageCalculating Stage = "calculating"
	StageComplete    Stage = "complete"
	StageError       Stage = "error"
)

var stageMessages = map[Stage]string{
	StageAnalyzing:   "Understanding your requirements...",
	StageSearching:   "Scanning 50+ protocols across 15 chains...",
	StageCalculating: "Evaluating risk factors and yields...",
}

// Event is one item of a streamed answer. Answer is set only on StageComplete.
type Event struct {
	Stage   Stage
	Message string
	Answer  *Answer
}

// Terminal reports whether no events follow e
func (e Event) Terminal() bool {
	return e.Stage == StageComplete || e.Stage == StageError
}

// Request is one agent question
type Request struct {
	Messages []model.Message
	UserID   string
}

// Answer is the final agent reply
type Answer struct {
	Response            string     `json:"response"`
	Data                AnswerData `json:"data"`
	FollowUpSuggestions []string   `json:"follow_up_suggestions"`
}

// AnswerData carries the pools backing an answer
type AnswerData struct {
	Pools   []model.Pool      `json:"pools"`
	Summary aggregate.Summary `json:"summary"`
}

// PoolReader reads the highest-yield stored pools
type PoolReader interface {
	TopPoolsByAPY(ctx context.Context, n int) ([]model.Pool, error)
}

// SettingsReader looks up a user's provider choice
type SettingsReader interface {
	GetAISettings(ctx context.Context, userID string) (*model.AISettings, error)
}

// Streamer runs one completion and reports through a handler. *llm.Service implements it.
type Streamer interface {
	Stream(ctx context.Context, provider, apiKey string, messages []model.Message, systemPrompt string, h llm.Handler)
}

// Options configures an Orchestrator
type Options struct {
	// DefaultAPIKey is used when the user has no key saved for their provider
	DefaultAPIKey string

	// StageDelay pauses between progress events
	StageDelay time.Duration

	Metrics *metrics.Metrics
}

// Orchestrator runs the analyze, search, calculate, complete pipeline
type Orchestrator struct {
	pools    PoolReader
	settings SettingsReader
	llm      Streamer
	opts     Options
}

// New creates an Orchestrator
func New(pools PoolReader, settings SettingsReader, llm Streamer, opts Options) *Orchestrator {
	return &Orchestrator{
		pools:    pools,
		settings: settings,
		llm:      llm,
		opts:     opts,
	}
}

// Answer runs the pipeline without progress events
func (o *Orchestrator) Answer(ctx context.Context, req Request) (*Answer, error) {
	return o.run(ctx, req, func(Stage) {})
}

// Stream runs the pipeline in the background. Events arrive in stage order and
// end with exactly one complete or error event, after which the channel is closed.
// Cancelling ctx does not stop the work already started.
func (o *Orchestrator) Stream(ctx context.Context, req Request) <-chan Event {
	events := make(chan Event, 5)
	ctx = context.WithoutCancel(ctx)

	go func() {
		defer close(events)

		answer, err := o.run(ctx, req, func(stage Stage) {
			events <- Event{Stage: stage, Message: stageMessages[stage]}
			o.pause()
		})
		if err != nil {
			events <- Event{Stage: StageError, Message: ErrorMessage}
			return
		}
		events <- Event{Stage: StageComplete, Answer: answer}
	}()

	return events
}

func (o *Orchestrator) run(ctx context.Context, req Request, progress func(Stage)) (*Answer, error) {
	ctx, span := tracing.Tracer().Start(ctx, "agent.Answer")
	defer span.End()

	userID := req.UserID
	if userID == "" {
		userID = DefaultUserID
	}
	provider, apiKey := o.resolveProvider(ctx, userID)
	span.SetAttributes(
		attribute.String("agent.user_id", userID),
		attribute.String("agent.provider", provider),
	)

	logger := logrus.WithFields(logrus.Fields{
		"user_id":  userID,
		"provider": provider,
	})

	answer, err := o.answer(ctx, req, provider, apiKey, progress)
	if err != nil {
		tracing.RecordError(ctx, err)
		logger.WithError(err).Error("Agent request failed")
		o.opts.Metrics.ObserveAgent(provider, "error")
		return nil, err
	}

	logger.WithField("pools", len(answer.Data.Pools)).Info("Agent request completed")
	o.opts.Metrics.ObserveAgent(provider, "ok")
	return answer, nil
}

func (o *Orchestrator) answer(ctx context.Context, req Request, provider, apiKey string, progress func(Stage)) (*Answer, error) {
	progress(StageAnalyzing)

	pools, err := o.pools.TopPoolsByAPY(ctx, candidatePools)
	if err != nil {
		return nil, fmt.Errorf("load top pools: %w", err)
	}

	progress(StageSearching)
	progress(StageCalculating)

	prompt, err := buildPrompt(lastMessage(req.Messages), head(pools, promptPools))
	if err != nil {
		return nil, err
	}

	var (
		text    string
		callErr error
	)
	o.llm.Stream(ctx, provider, apiKey,
		[]model.Message{{Role: model.RoleUser, Content: prompt}},
		SystemPrompt,
		llm.Handler{
			OnComplete: func(t string) { text = t },
			OnError:    func(err error) { callErr = err },
		})
	if callErr != nil {
		return nil, callErr
	}

	top := make([]model.Pool, 0, answerPools)
	top = append(top, head(pools, answerPools)...)

	return &Answer{
		Response: text,
		Data: AnswerData{
			Pools:   top,
			Summary: aggregate.Summarize(pools),
		},
		FollowUpSuggestions: append([]string(nil), FollowUps...),
	}, nil
}

// resolveProvider picks the user's saved provider and key. Any lookup problem
// falls back to openai with the process default key.
func (o *Orchestrator) resolveProvider(ctx context.Context, userID string) (string, string) {
	provider, apiKey := string(llm.OpenAI), o.opts.DefaultAPIKey

	settings, err := o.settings.GetAISettings(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logrus.WithError(err).WithField("user_id", userID).Warn("Failed to load AI settings, using default provider")
		}
		return provider, apiKey
	}
	if settings == nil || settings.Provider == "" || settings.APIKeys == nil {
		return provider, apiKey
	}

	provider = settings.Provider
	if key := settings.APIKeys[provider]; key != "" {
		apiKey = key
	}
	return provider, apiKey
}

func (o *Orchestrator) pause() {
	if o.opts.StageDelay > 0 {
		time.Sleep(o.opts.StageDelay)
	}
}

func buildPrompt(question string, pools []model.Pool) (string, error) {
	if pools == nil {
		pools = []model.Pool{}
	}
	excerpt, err := json.MarshalIndent(pools, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode pools: %w", err)
	}
	return question + "\n\nHere are the top pools I found:\n" + string(excerpt), nil
}

func lastMessage(msgs []model.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Content
}

func head(pools []model.Pool, n int) []model.Pool {
	if len(pools) > n {
		return pools[:n]
	}
	return pools
}
