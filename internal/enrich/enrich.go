// Package enrich turns raw provider records into scored, bounded pool lists.
package enrich

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yourorg/defi-yield-agent/internal/fetch"
	"github.com/yourorg/defi-yield-agent/internal/metrics"
	"github.com/yourorg/defi-yield-agent/internal/model"
	"github.com/yourorg/defi-yield-agent/internal/risk"
	"github.com/yourorg/defi-yield-agent/internal/tracing"
	"github.com/yourorg/defi-yield-agent/internal/validation"
)

// DefaultMaxPools bounds the enriched list by TVL rank
const DefaultMaxPools = 500

// Enricher fetches, filters, scores and ranks pools
type Enricher struct {
	client   fetch.Client
	maxPools int
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures an Enricher
type Option func(*Enricher)

// WithMaxPools overrides the truncation size
func WithMaxPools(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.maxPools = n
		}
	}
}

// WithMetrics attaches Prometheus collectors
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Enricher) { e.metrics = m }
}

// WithClock overrides the timestamp source
func WithClock(now func() time.Time) Option {
	return func(e *Enricher) { e.now = now }
}

// New creates an Enricher reading from client
func New(client fetch.Client, opts ...Option) *Enricher {
	e := &Enricher{
		client:   client,
		maxPools: DefaultMaxPools,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich returns at most maxPools pools in non-increasing TVL order.
// A fetch failure fails the whole call; there are no partial results.
func (e *Enricher) Enrich(ctx context.Context) ([]model.Pool, error) {
	ctx, span := tracing.Tracer().Start(ctx, "enrich.Enrich")
	defer span.End()

	raw, err := e.client.Fetch(ctx)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	valid := validation.FilterInvalid(raw)
	now := e.now().UTC()

	pools := make([]model.Pool, 0, len(valid))
	for _, r := range valid {
		pools = append(pools, ToPool(r, now))
	}

	sort.SliceStable(pools, func(i, j int) bool {
		return pools[i].TVLUSD.GreaterThan(pools[j].TVLUSD)
	})

	if len(pools) > e.maxPools {
		pools = pools[:e.maxPools]
	}

	span.SetAttributes(
		attribute.Int("pools.received", len(raw)),
		attribute.Int("pools.kept", len(pools)),
	)
	e.metrics.ObserveEnrichment(len(raw), len(pools))
	logrus.WithFields(logrus.Fields{
		"received": len(raw),
		"valid":    len(valid),
		"kept":     len(pools),
	}).Info("Enriched pools")

	return pools, nil
}

// ToPool maps a raw record onto the persisted entity. Unset numerics become 0.
func ToPool(r model.RawPool, now time.Time) model.Pool {
	assessment := risk.Assess(r)
	return model.Pool{
		Chain:       r.Chain,
		Protocol:    r.Project,
		Symbol:      r.Symbol,
		TVLUSD:      decimal.NewFromFloat(r.TVLUSD.Value()),
		APY:         decimal.NewFromFloat(r.APY.Value()),
		APYBase:     decimal.NewFromFloat(r.APYBase.Value()),
		APYReward:   decimal.NewFromFloat(r.APYReward.Value()),
		RiskScore:   assessment.Score,
		ILRisk:      assessment.ILRisk,
		PoolID:      r.Pool,
		LastUpdated: now,
	}
}
