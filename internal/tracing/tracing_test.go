package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourorg/defi-yield-agent/internal/config"
)

func TestInitTracer_NoEndpoint(t *testing.T) {
	shutdown := InitTracer(config.Config{})
	assert.NotNil(t, shutdown)
	assert.NotPanics(t, shutdown)
}

func TestRecordError_NoSpan(t *testing.T) {
	ctx, span := Tracer().Start(context.Background(), "test")
	defer span.End()

	assert.NotPanics(t, func() {
		RecordError(ctx, errors.New("boom"))
		RecordError(ctx, nil)
		RecordError(context.Background(), errors.New("no span"))
	})
}
