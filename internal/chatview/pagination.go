package chatview

import (
	"dmchat/internal/models"
	"dmchat/internal/repositories"
)

// older reports whether a sorts strictly before b in (createdAt, id) order.
func older(a, b repositories.MessageCursor) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt < b.CreatedAt
	}
	return a.ID < b.ID
}

// reverse returns msgs in the opposite order without touching the input.
func reverse(msgs []models.Message) []models.Message {
	out := make([]models.Message, len(msgs))
	for i, m := range msgs {
		out[len(msgs)-1-i] = m
	}
	return out
}

// mergeTail replaces the live tail of loaded with tail (ascending). Loaded
// messages strictly older than the first tail message are kept.
func mergeTail(loaded, tail []models.Message) []models.Message {
	if len(tail) == 0 {
		return loaded
	}
	boundary := repositories.CursorOf(tail[0])
	out := make([]models.Message, 0, len(loaded)+len(tail))
	for _, m := range loaded {
		if older(repositories.CursorOf(m), boundary) {
			out = append(out, m)
		}
	}
	return append(out, tail...)
}

// prependOlder puts page (ascending) in front of loaded, skipping ids that are
// already present.
func prependOlder(loaded, page []models.Message) []models.Message {
	seen := make(map[string]struct{}, len(loaded))
	for _, m := range loaded {
		seen[m.ID] = struct{}{}
	}
	out := make([]models.Message, 0, len(page)+len(loaded))
	for _, m := range page {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		out = append(out, m)
	}
	return append(out, loaded...)
}
