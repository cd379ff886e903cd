// Package chatlist builds the sidebar of conversations: the user's persisted
// chat-list entries merged with rows synthesized for friends, ordered unread
// first and then by latest activity.
package chatlist

import (
	"sort"
	"strings"

	"dmchat/internal/models"
)

// Peer is the public profile of the other participant.
type Peer struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Bio      string `json:"bio"`
	LastSeen int64  `json:"last_seen"`
}

// PeerOf strips u down to its public fields.
func PeerOf(u models.User) Peer {
	return Peer{ID: u.ID, Name: u.Name, Username: u.Username, Avatar: u.Avatar, Bio: u.Bio, LastSeen: u.LastSeen}
}

// Item is one row of the chat list.
type Item struct {
	Peer           Peer   `json:"peer"`
	ConversationID string `json:"conversation_id"`
	LastMessage    string `json:"last_message"`
	LastMessageAt  int64  `json:"last_message_at"`
	UnreadCount    int    `json:"unread_count"`
	MessageSeen    bool   `json:"message_seen"`
	Persisted      bool   `json:"persisted"`
}

func (it Item) activity() int64 {
	if it.LastMessageAt > 0 {
		return it.LastMessageAt
	}
	return it.Peer.LastSeen
}

// Input is everything Compose needs.
type Input struct {
	UserID  string
	Entries []models.ChatListEntry
	// Users holds the profiles of friends and of every entry's peer.
	Users         map[string]models.User
	Friends       []string
	Conversations map[string]models.Conversation
	Query         string
}

// Compose merges persisted entries with friend rows. A persisted entry wins
// over a friend row for the same peer; entries whose peer is unknown are
// dropped. The result is filtered by Query on the display name.
func Compose(in Input) []Item {
	seen := map[string]bool{}
	items := make([]Item, 0, len(in.Entries)+len(in.Friends))

	for _, e := range in.Entries {
		if e.RID == "" || seen[e.RID] {
			continue
		}
		peer, ok := in.Users[e.RID]
		if !ok {
			continue
		}
		seen[e.RID] = true
		it := Item{
			Peer:           PeerOf(peer),
			ConversationID: e.MessageID,
			LastMessage:    e.LastMessage,
			LastMessageAt:  e.UpdatedAt,
			MessageSeen:    e.MessageSeen,
			Persisted:      true,
		}
		if it.ConversationID == "" {
			it.ConversationID = models.ConversationID(in.UserID, e.RID)
		}
		items = append(items, overlay(it, in))
	}

	for _, id := range in.Friends {
		if seen[id] {
			continue
		}
		peer, ok := in.Users[id]
		if !ok {
			continue
		}
		seen[id] = true
		it := Item{
			Peer:           PeerOf(peer),
			ConversationID: models.ConversationID(in.UserID, id),
			MessageSeen:    true,
		}
		items = append(items, overlay(it, in))
	}

	sort.SliceStable(items, func(i, j int) bool {
		ui, uj := items[i].UnreadCount > 0, items[j].UnreadCount > 0
		if ui != uj {
			return ui
		}
		return items[i].activity() > items[j].activity()
	})

	q := strings.ToLower(strings.TrimSpace(in.Query))
	if q == "" {
		return items
	}
	out := items[:0]
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.Peer.Name), q) {
			out = append(out, it)
		}
	}
	return out
}

// overlay applies the shared conversation summary, which is fresher than the
// per-user entry for both the unread count and the preview.
func overlay(it Item, in Input) Item {
	conv, ok := in.Conversations[it.ConversationID]
	if !ok {
		return it
	}
	it.UnreadCount = conv.UnreadCount[in.UserID]
	if conv.LastMessageAt >= it.LastMessageAt && conv.LastMessage != "" {
		it.LastMessage = conv.LastMessage
		it.LastMessageAt = conv.LastMessageAt
	}
	return it
}
