package messaging

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestMessageCarrier_SetReplacesExistingHeader(t *testing.T) {
	msg := kafka.Message{}
	c := NewMessageCarrier(&msg)

	c.Set("traceparent", "one")
	c.Set("traceparent", "two")
	c.Set("baggage", "k=v")

	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "two", c.Get("traceparent"))
	assert.Equal(t, "", c.Get("missing"))
	assert.ElementsMatch(t, []string{"traceparent", "baggage"}, c.Keys())
}

func TestMessageCarrier_PropagatesTraceContext(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	prop := propagation.TraceContext{}
	msg := kafka.Message{}
	prop.Inject(ctx, NewMessageCarrier(&msg))

	extracted := trace.SpanContextFromContext(prop.Extract(context.Background(), NewMessageCarrier(&msg)))
	assert.Equal(t, traceID, extracted.TraceID())
	assert.Equal(t, spanID, extracted.SpanID())
	assert.True(t, extracted.IsSampled())
}
