package observability

import "time"

// Routing keys of domain events.
const (
	EventMessageSent           = "chat.message_sent"
	EventFriendRequestSent     = "social.friend_request_sent"
	EventFriendRequestAccepted = "social.friend_request_accepted"
	EventFriendRequestRejected = "social.friend_request_rejected"
	EventWSConnect             = "ws_events.connect"
	EventWSDisconnect          = "ws_events.disconnect"
	EventWSError               = "ws_events.error"
)

type EventEnvelope struct {
	EventType  string            `json:"event_type"`
	EventName  string            `json:"event_name"`
	OccurredAt string            `json:"occurred_at"`
	Headers    map[string]string `json:"headers,omitempty"`
	Payload    any               `json:"payload"`
}

// NewEvent stamps an envelope with the current time.
func NewEvent(eventType, name string, payload any) EventEnvelope {
	return EventEnvelope{
		EventType:  eventType,
		EventName:  name,
		OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:    payload,
	}
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
