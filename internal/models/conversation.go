package models

import (
	"sort"
	"strings"
)

// Conversation is the shared summary of a two-party chat. Stored in
// conversations/{id} where id is ConversationID of the two participants.
type Conversation struct {
	ID            string           `json:"id"`
	Participants  []string         `json:"participants"`
	LastMessage   string           `json:"lastMessage"`
	LastMessageAt int64            `json:"lastMessageAt"`
	UnreadCount   map[string]int   `json:"unreadCount"`
	Typing        map[string]int64 `json:"typing"`
	CreatedAt     int64            `json:"createdAt"`
}

// ConversationID is the deterministic id of the conversation between a and b.
func ConversationID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "_")
}

// HasParticipant reports whether userID takes part in the conversation.
func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Peer returns the participant that is not userID.
func (c Conversation) Peer(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// ChatListEntry is one row of a user's persisted chat list.
type ChatListEntry struct {
	RID         string `json:"rId"`
	MessageID   string `json:"messageId"`
	LastMessage string `json:"lastMessage"`
	UpdatedAt   int64  `json:"updatedAt"`
	MessageSeen bool   `json:"messageSeen"`
}

// ChatList is stored in chatLists/{userId}.
type ChatList struct {
	ChatsData []ChatListEntry `json:"chatsData"`
}
