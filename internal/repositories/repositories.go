// Package repositories gives typed access to the document collections used by
// the chat client.
package repositories

import (
	"errors"
	"fmt"

	"dmchat/internal/docstore"
	"dmchat/internal/models"
)

const (
	CollUsers          = "users"
	CollCredentials    = "credentials"
	CollConversations  = "conversations"
	CollMessages       = "messages"
	CollChatLists      = "chatLists"
	CollFriendRequests = "friendRequests"
)

// storeErr maps store failures onto the domain error taxonomy.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, models.ErrNetwork, err)
}

func decode[T any](doc docstore.Document) (T, error) {
	var out T
	if err := docstore.Decode(doc.Data, &out); err != nil {
		return out, err
	}
	return out, nil
}

func decodeAll[T any](docs []docstore.Document, setID func(*T, string)) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		v, err := decode[T](d)
		if err != nil {
			return nil, err
		}
		if setID != nil {
			setID(&v, d.ID)
		}
		out = append(out, v)
	}
	return out, nil
}
