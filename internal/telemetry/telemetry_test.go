package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

type publisherMock struct {
	mock.Mock
}

func (m *publisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	return m.Called(ctx, routingKey, event).Error(0)
}

func TestAuditEmitterPublishesEnvelope(t *testing.T) {
	pub := new(publisherMock)
	emitter := NewAuditEmitter(pub, AuditRoutingKey, "dmchat", "test", zap.NewNop().Sugar())
	userID := "u1"

	pub.On("Publish", mock.Anything, AuditRoutingKey, mock.MatchedBy(func(e AuditEnvelope) bool {
		return e.EventType == "audit_log" &&
			e.Service == "dmchat" &&
			e.RequestID == "req-1" &&
			*e.UserID == "u1" &&
			e.Payload == AuditPayload{Level: LevelInfo, Text: "signed in"}
	})).Return(assert.AnError).Once()

	emitter.Emit(context.Background(), LevelInfo, "signed in", "req-1", &userID)
	pub.AssertExpectations(t)
}

func TestNilAuditEmitterIsNoop(t *testing.T) {
	var emitter *AuditEmitter
	emitter.Emit(context.Background(), LevelInfo, "ignored", "", nil)
}

func TestInitTracerWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "", "dmchat", "test")
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, shutdown(context.Background()))
}
