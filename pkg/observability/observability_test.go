package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestDisabledProviderIsUsable(t *testing.T) {
	ctx := context.Background()

	p, err := New(ctx, &Config{Enabled: false})
	require.NoError(t, err)

	assert.NotNil(t, p.Tracer())
	assert.NotNil(t, p.Meter())

	spanCtx, span := p.StartSpan(ctx, "test.operation")
	assert.NotNil(t, spanCtx)
	span.End()

	opCtx, done := p.TrackOperation(ctx, "test.tracked",
		attribute.String("outcome", "ok"),
	)
	assert.NotNil(t, opCtx)
	done(nil)

	_, done = p.TrackOperation(ctx, "test.tracked")
	done(errors.New("boom"))

	require.NoError(t, p.Shutdown(ctx))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "packd", cfg.ServiceName)
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 1.0, cfg.SampleRate)
}
