// Package social runs the friend-request workflow: a request is created as
// pending together with a notification for the recipient, and is deleted once
// the recipient accepts or rejects it. None of the steps are atomic.
package social

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dmchat/internal/models"
	"dmchat/internal/observability"
	"dmchat/internal/repositories"
)

var (
	ErrMissingSender    = errors.New("sender id is required")
	ErrMissingRecipient = errors.New("recipient id is required")
)

// Service implements the friend-request workflow.
type Service struct {
	users    repositories.UserRepository
	requests repositories.FriendRequestRepository
	log      *zap.SugaredLogger
	now      func() time.Time
	newID    func() string
}

// New constructs a Service.
func New(users repositories.UserRepository, requests repositories.FriendRequestRepository, log *zap.SugaredLogger) *Service {
	return &Service{
		users:    users,
		requests: requests,
		log:      log,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// SendRequest records a pending request from sender to recipientID and adds a
// notification to the recipient. Duplicates are not checked here; callers
// consult PendingMap and the friends list first.
func (s *Service) SendRequest(ctx context.Context, sender models.User, recipientID string) (models.FriendRequest, error) {
	if sender.ID == "" {
		return models.FriendRequest{}, ErrMissingSender
	}
	if recipientID == "" {
		return models.FriendRequest{}, ErrMissingRecipient
	}

	now := s.now().UnixMilli()
	req := models.FriendRequest{
		ID:          s.newID(),
		SenderID:    sender.ID,
		SenderName:  sender.Name,
		SenderPhoto: sender.Avatar,
		RecipientID: recipientID,
		Status:      models.RequestPending,
		CreatedAt:   now,
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return models.FriendRequest{}, err
	}

	note := models.Notification{
		Type:         models.NotificationFriendRequest,
		From:         sender.ID,
		FromName:     sender.Name,
		SenderAvatar: sender.Avatar,
		Timestamp:    now,
	}
	if err := s.users.AddNotification(ctx, recipientID, note); err != nil {
		return req, fmt.Errorf("notify recipient: %w", err)
	}

	observability.IncFriendRequest("sent")
	s.publish(ctx, observability.EventFriendRequestSent, "friend_request_sent", sender.ID, recipientID)
	s.log.Infow("friend request sent", "sender_id", sender.ID, "recipient_id", recipientID, "request_id", req.ID)
	return req, nil
}

// PendingMap returns the ids of every user with a pending request to or from
// userID.
func (s *Service) PendingMap(ctx context.Context, userID string) (map[string]bool, error) {
	sent, err := s.requests.PendingFrom(ctx, userID)
	if err != nil {
		return nil, err
	}
	received, err := s.requests.PendingTo(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(sent)+len(received))
	for _, r := range sent {
		out[r.RecipientID] = true
	}
	for _, r := range received {
		out[r.SenderID] = true
	}
	return out, nil
}

// Candidates lists users userID may send a request to: everyone except
// themselves, current friends and users with a pending request either way.
// query filters by display name or email, case-insensitively.
func (s *Service) Candidates(ctx context.Context, userID, query string) ([]models.User, error) {
	me, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	all, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.PendingMap(ctx, userID)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]models.User, 0, len(all))
	for _, u := range all {
		if u.ID == "" || u.ID == userID || (u.Email == "" && u.Username == "") {
			continue
		}
		if me.IsFriend(u.ID) || pending[u.ID] {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(u.Name), q) && !strings.Contains(strings.ToLower(u.Email), q) {
			continue
		}
		out = append(out, u)
	}
	sort.SliceStable(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

// Notifications returns userID's notifications, newest first.
func (s *Service) Notifications(ctx context.Context, userID string) ([]models.Notification, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := append([]models.Notification(nil), u.Notifications...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out, nil
}

// Accept makes userID and fromID friends, removes the request notification and
// deletes the pending request records. The two friend updates run concurrently.
// Without a pending request or notification from fromID it returns
// models.ErrNotFound and changes nothing.
func (s *Service) Accept(ctx context.Context, userID, fromID string) error {
	if fromID == "" {
		return ErrMissingSender
	}
	me, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := s.users.Get(ctx, fromID); err != nil {
		return fmt.Errorf("sender %s: %w", fromID, err)
	}
	reqs, err := s.pending(ctx, me, fromID)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.users.AddFriend(gctx, userID, fromID); err != nil {
			return err
		}
		return s.removeNotifications(gctx, me, fromID)
	})
	g.Go(func() error {
		return s.users.AddFriend(gctx, fromID, userID)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if err := s.deleteRequests(ctx, reqs); err != nil {
		return err
	}

	observability.IncFriendRequest("accepted")
	s.publish(ctx, observability.EventFriendRequestAccepted, "friend_request_accepted", fromID, userID)
	s.log.Infow("friend request accepted", "user_id", userID, "sender_id", fromID)
	return nil
}

// Reject removes the notification and deletes the request without touching
// either friends list. Like Accept it needs a request from fromID.
func (s *Service) Reject(ctx context.Context, userID, fromID string) error {
	if fromID == "" {
		return ErrMissingSender
	}
	me, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	reqs, err := s.pending(ctx, me, fromID)
	if err != nil {
		return err
	}
	if err := s.removeNotifications(ctx, me, fromID); err != nil {
		return err
	}
	if err := s.deleteRequests(ctx, reqs); err != nil {
		return err
	}

	observability.IncFriendRequest("rejected")
	s.publish(ctx, observability.EventFriendRequestRejected, "friend_request_rejected", fromID, userID)
	s.log.Infow("friend request rejected", "user_id", userID, "sender_id", fromID)
	return nil
}

func (s *Service) removeNotifications(ctx context.Context, u models.User, fromID string) error {
	for _, n := range u.Notifications {
		if n.Type != models.NotificationFriendRequest || n.From != fromID {
			continue
		}
		if err := s.users.RemoveNotification(ctx, u.ID, n); err != nil {
			return err
		}
	}
	return nil
}

// pending returns the requests from fromID to u. A notification alone is
// enough to proceed, since the request record may already be gone.
func (s *Service) pending(ctx context.Context, u models.User, fromID string) ([]models.FriendRequest, error) {
	reqs, err := s.requests.PendingBetween(ctx, fromID, u.ID)
	if err != nil {
		return nil, err
	}
	if len(reqs) > 0 || hasRequestFrom(u, fromID) {
		return reqs, nil
	}
	return nil, fmt.Errorf("friend request from %s: %w", fromID, models.ErrNotFound)
}

func hasRequestFrom(u models.User, fromID string) bool {
	for _, n := range u.Notifications {
		if n.Type == models.NotificationFriendRequest && n.From == fromID {
			return true
		}
	}
	return false
}

func (s *Service) deleteRequests(ctx context.Context, reqs []models.FriendRequest) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range reqs {
		id := r.ID
		g.Go(func() error { return s.requests.Delete(gctx, id) })
	}
	return g.Wait()
}

func (s *Service) publish(ctx context.Context, key, name, senderID, recipientID string) {
	err := observability.PublishEvent(ctx, key, observability.NewEvent("social", name, map[string]any{
		"sender_id":    senderID,
		"recipient_id": recipientID,
	}))
	if err != nil {
		s.log.Warnw("publish event failed", "routing_key", key, "error", err)
	}
}
