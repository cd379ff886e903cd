package ws

import (
	"context"
	"time"

	"github.com/google/uuid"

	"dmchat/internal/observability"
)

func newConnID() string {
	return uuid.NewString()
}

// publishConnEvent emits a ws_events envelope for info and counts it.
func publishConnEvent(ctx context.Context, routingKey, event string, info ConnInfo, reason string) {
	duration := int64(0)
	if event != "ws_connect" {
		duration = time.Since(info.ConnectedAt).Milliseconds()
	}
	envelope := observability.NewEvent("ws_events", event, map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        info.Kind,
			"resource_id": info.ResourceID,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": duration,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	})
	envelope.Headers = observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(ctx, routingKey, envelope)
	observability.IncWSEvent(info.Kind, event)
}
