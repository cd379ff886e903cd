package ws

import "time"

const (
	KindChat  = "chat"
	KindChats = "chats"
)

// ConnInfo identifies one websocket connection in events and logs.
type ConnInfo struct {
	ConnID      string
	Kind        string
	ResourceID  string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
