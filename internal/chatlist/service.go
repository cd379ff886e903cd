package chatlist

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"dmchat/internal/docstore"
	"dmchat/internal/models"
	"dmchat/internal/repositories"
)

// Service loads chat lists and opens conversations from them.
type Service struct {
	users         repositories.UserRepository
	conversations repositories.ConversationRepository
	chatLists     repositories.ChatListRepository
	log           *zap.SugaredLogger
	now           func() time.Time
}

// NewService constructs a Service.
func NewService(users repositories.UserRepository, conversations repositories.ConversationRepository, chatLists repositories.ChatListRepository, log *zap.SugaredLogger) *Service {
	return &Service{
		users:         users,
		conversations: conversations,
		chatLists:     chatLists,
		log:           log,
		now:           time.Now,
	}
}

// List composes userID's chat list, filtered by query.
func (s *Service) List(ctx context.Context, userID, query string) ([]Item, error) {
	me, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	list, err := s.chatLists.Get(ctx, userID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	convs, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	in := Input{
		UserID:        userID,
		Entries:       list.ChatsData,
		Friends:       me.Friends,
		Users:         map[string]models.User{},
		Conversations: make(map[string]models.Conversation, len(convs)),
		Query:         query,
	}
	for _, c := range convs {
		in.Conversations[c.ID] = c
	}

	ids := append([]string(nil), me.Friends...)
	for _, e := range list.ChatsData {
		ids = append(ids, e.RID)
	}
	for _, id := range ids {
		if _, ok := in.Users[id]; ok || id == "" {
			continue
		}
		u, err := s.users.Get(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		in.Users[id] = u
	}
	return Compose(in), nil
}

// Open gets or creates the conversation between userID and peerID, resets the
// opener's unread count, records the peer in the opener's chats and makes sure
// the opener's chat list has a seen entry for it. It returns the conversation id.
func (s *Service) Open(ctx context.Context, userID, peerID string) (string, error) {
	if peerID == "" || peerID == userID {
		return "", models.Invalid("peer_id", "choose someone else to chat with")
	}
	if _, err := s.users.Get(ctx, peerID); err != nil {
		return "", err
	}

	id := models.ConversationID(userID, peerID)
	now := s.now().UnixMilli()
	conv, err := s.conversations.Get(ctx, id)
	switch {
	case errors.Is(err, models.ErrNotFound):
		conv = models.Conversation{
			ID:           id,
			Participants: []string{userID, peerID},
			UnreadCount:  map[string]int{userID: 0, peerID: 0},
			Typing:       map[string]int64{},
			CreatedAt:    now,
		}
		if err := s.conversations.Create(ctx, conv); err != nil {
			return "", err
		}
	case err != nil:
		return "", err
	default:
		if !conv.HasParticipant(userID) {
			return "", models.ErrAccessDenied
		}
		if err := s.conversations.ResetUnread(ctx, id, userID); err != nil {
			return "", err
		}
	}

	if err := s.users.AddChat(ctx, userID, peerID); err != nil {
		return "", err
	}

	list, err := s.chatLists.Get(ctx, userID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return "", err
	}
	entries := list.ChatsData
	found := false
	for i := range entries {
		if entries[i].MessageID == id {
			entries[i].MessageSeen = true
			found = true
		}
	}
	if !found {
		entries = append(entries, models.ChatListEntry{
			RID:         peerID,
			MessageID:   id,
			LastMessage: conv.LastMessage,
			UpdatedAt:   now,
			MessageSeen: true,
		})
	}
	if err := s.chatLists.Save(ctx, userID, entries); err != nil {
		return "", err
	}
	s.log.Debugw("conversation opened", "conversation_id", id, "user_id", userID)
	return id, nil
}

// Watch recomposes userID's list whenever the user document, the chat-list
// document or one of the user's conversations changes. onNext runs on a
// background goroutine, one call at a time.
func (s *Service) Watch(ctx context.Context, userID, query string, onNext func([]Item), onError func(error)) (docstore.Unsubscribe, error) {
	ctx, cancel := context.WithCancel(ctx)
	kick := make(chan struct{}, 1)
	signal := func() {
		select {
		case kick <- struct{}{}:
		default:
		}
	}
	fail := func(err error) {
		if ctx.Err() == nil && onError != nil {
			onError(err)
		}
	}

	var unsubs []docstore.Unsubscribe
	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			for _, u := range unsubs {
				u()
			}
		})
	}

	unsub, err := s.users.Subscribe(ctx, userID, func(models.User, bool) { signal() }, fail)
	if err != nil {
		stop()
		return nil, err
	}
	unsubs = append(unsubs, unsub)

	unsub, err = s.chatLists.Subscribe(ctx, userID, func(models.ChatList) { signal() }, fail)
	if err != nil {
		stop()
		return nil, err
	}
	unsubs = append(unsubs, unsub)

	unsub, err = s.conversations.SubscribeForUser(ctx, userID, func([]models.Conversation) { signal() }, fail)
	if err != nil {
		stop()
		return nil, err
	}
	unsubs = append(unsubs, unsub)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-kick:
				items, err := s.List(ctx, userID, query)
				if err != nil {
					fail(err)
					continue
				}
				if ctx.Err() != nil {
					return
				}
				onNext(items)
			}
		}
	}()
	return stop, nil
}
