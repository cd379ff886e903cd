package models

const (
	NotificationFriendRequest = "friendRequest"

	RequestPending = "pending"
)

// Notification is an element of User.Notifications.
type Notification struct {
	Type         string `json:"type"`
	From         string `json:"from"`
	FromName     string `json:"fromName"`
	SenderAvatar string `json:"senderAvatar"`
	Timestamp    int64  `json:"timestamp"`
}

// FriendRequest is a pending request between two users. Stored in
// friendRequests/{id} and deleted once accepted or rejected.
type FriendRequest struct {
	ID          string `json:"id"`
	SenderID    string `json:"senderId"`
	SenderName  string `json:"senderName"`
	SenderPhoto string `json:"senderPhoto"`
	RecipientID string `json:"recipientId"`
	Status      string `json:"status"`
	CreatedAt   int64  `json:"createdAt"`
}
