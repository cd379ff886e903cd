package models

// User is a registered account. Stored in users/{id}.
type User struct {
	ID            string         `json:"id"`
	Email         string         `json:"email"`
	Username      string         `json:"username"`
	Name          string         `json:"name"`
	Avatar        string         `json:"avatar"`
	Bio           string         `json:"bio"`
	LastSeen      int64          `json:"lastSeen"`
	Friends       []string       `json:"friends"`
	Chats         []string       `json:"chats"`
	Notifications []Notification `json:"notifications"`
	CreatedAt     int64          `json:"createdAt"`
	UpdatedAt     int64          `json:"updatedAt"`
}

// IsFriend reports whether id is in the user's friends set.
func (u User) IsFriend(id string) bool {
	for _, f := range u.Friends {
		if f == id {
			return true
		}
	}
	return false
}

// Credentials hold the secrets for a user. Stored in credentials/{userId}.
type Credentials struct {
	UserID         string `json:"userId"`
	Email          string `json:"email"`
	PasswordHash   string `json:"passwordHash"`
	TokenHash      string `json:"tokenHash"`
	ResetTokenHash string `json:"resetTokenHash"`
	// ResetExpiresAt is when ResetTokenHash stops being accepted, in Unix ms.
	ResetExpiresAt int64 `json:"resetExpiresAt"`
}
