// Package chatview is the state machine behind one open chat: the live tail of
// the conversation, older pages loaded on scroll, the peer's typing flag and
// outgoing messages. A View is driven by one connection and pushes every state
// change to its Sink.
package chatview

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"dmchat/internal/docstore"
	"dmchat/internal/logging"
	"dmchat/internal/models"
	"dmchat/internal/observability"
	"dmchat/internal/reconciler"
	"dmchat/internal/repositories"
	"dmchat/internal/upload"
)

// Kind tells the renderer how to apply an Update.
type Kind string

const (
	KindSnapshot Kind = "snapshot"
	KindPrepend  Kind = "prepend"
	KindTyping   Kind = "typing"
)

// Update is one render of the view. Messages is always the full ascending list.
type Update struct {
	Kind           Kind             `json:"type"`
	ConversationID string           `json:"conversation_id"`
	Messages       []models.Message `json:"messages,omitempty"`
	HasMore        bool             `json:"has_more"`
	ScrollToBottom bool             `json:"scroll_to_bottom,omitempty"`
	Anchor         *Anchor          `json:"anchor,omitempty"`
	PeerTyping     bool             `json:"peer_typing"`
}

// Sink receives renders and notices. It is called with the view locked, in
// order, and must not call back into the View.
type Sink interface {
	Render(Update)
	Notify(models.Notice)
}

// Deps are the collaborators of a View.
type Deps struct {
	Conversations repositories.ConversationRepository
	Messages      repositories.MessageRepository
	Applier       reconciler.Applier
	Uploader      upload.Uploader
	Log           *zap.SugaredLogger

	Now          func() time.Time
	PageSize     int
	TypingExpire time.Duration
	GateWindow   time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.PageSize <= 0 {
		d.PageSize = 50
	}
	if d.TypingExpire <= 0 {
		d.TypingExpire = 3 * time.Second
	}
	if d.GateWindow <= 0 {
		d.GateWindow = 200 * time.Millisecond
	}
	if d.Log == nil {
		d.Log = zap.NewNop().Sugar()
	}
	return d
}

// View is one user's view of at most one conversation at a time.
type View struct {
	deps   Deps
	userID string
	sink   Sink
	gate   *ScrollGate

	mu             sync.Mutex
	gen            uint64
	conversationID string
	peerID         string
	messages       []models.Message
	cursor         *repositories.MessageCursor
	seeded         bool
	hasMore        bool
	loadingMore    bool
	metrics        ScrollMetrics
	peerTyping     bool
	peerTypingAt   int64
	recheck        *time.Timer
	typing         *TypingSignal
	cancel         context.CancelFunc
	unsubs         []docstore.Unsubscribe
}

// New creates a closed view for userID.
func New(userID string, deps Deps, sink Sink) *View {
	deps = deps.withDefaults()
	return &View{
		deps:   deps,
		userID: userID,
		sink:   sink,
		gate:   NewScrollGate(deps.GateWindow, deps.Now),
	}
}

// ConversationID returns the open conversation, or "" when closed.
func (v *View) ConversationID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.conversationID
}

// Open switches the view to conversationID. Any previous subscription and
// typing signal are torn down first. A missing conversation or one the user
// does not take part in is reported to the sink and returned, and nothing is
// subscribed.
func (v *View) Open(ctx context.Context, conversationID string) error {
	ctx, span := otel.Tracer("dmchat/chatview").Start(ctx, "chatview.open")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	v.mu.Lock()
	stale := v.teardownLocked()
	v.gen++
	gen := v.gen
	v.mu.Unlock()
	release(stale)

	conv, err := v.deps.Conversations.Get(ctx, conversationID)
	if err == nil && !conv.HasParticipant(v.userID) {
		err = models.ErrAccessDenied
	}
	if err != nil {
		span.RecordError(err)
		return v.fail(gen, err)
	}

	if err := v.deps.Conversations.ResetUnread(ctx, conversationID, v.userID); err != nil {
		v.deps.Log.With(logging.Conversation(conversationID)...).Warnw("reset unread failed", "user_id", v.userID, "error", err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	v.mu.Lock()
	if gen != v.gen {
		v.mu.Unlock()
		cancel()
		return nil
	}
	v.conversationID = conversationID
	v.peerID = conv.Peer(v.userID)
	v.cancel = cancel
	v.typing = NewTypingSignal(v.deps.Conversations, conversationID, v.userID, v.deps.TypingExpire, v.deps.Now, v.deps.Log)
	v.mu.Unlock()

	unsub, err := v.deps.Messages.SubscribeLatest(subCtx, conversationID, v.deps.PageSize,
		func(msgs []models.Message) { v.onMessages(gen, msgs) },
		func(err error) { v.onSubscriptionError(gen, err) })
	if err != nil {
		return v.fail(gen, err)
	}
	if !v.keep(gen, unsub) {
		return nil
	}

	unsub, err = v.deps.Conversations.Subscribe(subCtx, conversationID,
		func(conv models.Conversation, exists bool) { v.onConversation(gen, conv, exists) },
		func(err error) { v.onSubscriptionError(gen, err) })
	if err != nil {
		return v.fail(gen, err)
	}
	v.keep(gen, unsub)
	return nil
}

// Close tears the view down and clears the user's typing flag.
func (v *View) Close() {
	v.mu.Lock()
	stale := v.teardownLocked()
	v.gen++
	v.mu.Unlock()
	release(stale)
}

// LoadOlder fetches the page before the oldest loaded message and prepends
// it. It does nothing while a load is in flight or when there is nothing older.
func (v *View) LoadOlder(ctx context.Context) error {
	v.mu.Lock()
	if v.loadingMore || !v.hasMore || v.cursor == nil {
		v.mu.Unlock()
		return nil
	}
	v.loadingMore = true
	gen, conversationID, cursor := v.gen, v.conversationID, *v.cursor
	v.mu.Unlock()

	ctx, span := otel.Tracer("dmchat/chatview").Start(ctx, "chatview.load_older")
	defer span.End()
	page, err := v.deps.Messages.Before(ctx, conversationID, cursor, v.deps.PageSize)

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen {
		return nil
	}
	v.loadingMore = false
	if err != nil {
		span.RecordError(err)
		observability.IncPageLoad("error")
		v.sink.Notify(models.NoticeFor(err))
		return err
	}
	observability.IncPageLoad("ok")

	anchor := AnchorOf(v.metrics)
	v.messages = prependOlder(v.messages, reverse(page))
	if len(page) < v.deps.PageSize {
		v.hasMore = false
	}
	v.moveCursorLocked()
	v.sink.Render(Update{
		Kind:           KindPrepend,
		ConversationID: v.conversationID,
		Messages:       v.snapshotLocked(),
		HasMore:        v.hasMore,
		Anchor:         &anchor,
		PeerTyping:     v.peerTyping,
	})
	return nil
}

// OnScroll records the renderer's scroll geometry and loads the previous page
// when the viewport is near the top and the scroll gate is open.
func (v *View) OnScroll(ctx context.Context, m ScrollMetrics) error {
	v.mu.Lock()
	v.metrics = m
	v.mu.Unlock()
	if !m.InLoadZone() || !v.gate.Allow() {
		return nil
	}
	return v.LoadOlder(ctx)
}

// Keystroke marks the user as typing in the open conversation.
func (v *View) Keystroke() {
	v.mu.Lock()
	t := v.typing
	v.mu.Unlock()
	if t != nil {
		t.Keystroke()
	}
}

// SendText sends text to the open conversation. Whitespace-only text is
// ignored. On error the caller keeps its draft; a *reconciler.PartialApplyError
// means the message itself was stored.
func (v *View) SendText(ctx context.Context, text string) (models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, nil
	}
	return v.send(ctx, models.TextBody{Text: text})
}

// SendImage validates and uploads a, then sends it as an image message.
func (v *View) SendImage(ctx context.Context, a upload.Attachment) (models.Message, error) {
	if err := upload.ValidateImage(a); err != nil {
		v.notify(err)
		return models.Message{}, err
	}
	if _, _, ok := v.target(); !ok {
		v.notify(models.ErrNotFound)
		return models.Message{}, models.ErrNotFound
	}
	url, err := v.deps.Uploader.Upload(ctx, a)
	if err != nil {
		v.notify(err)
		return models.Message{}, err
	}
	return v.send(ctx, models.ImageBody{URL: url})
}

func (v *View) send(ctx context.Context, body models.Body) (models.Message, error) {
	conversationID, peerID, ok := v.target()
	if !ok {
		v.notify(models.ErrNotFound)
		return models.Message{}, models.ErrNotFound
	}
	msg, err := v.deps.Applier.Apply(ctx, reconciler.Outgoing{
		ConversationID: conversationID,
		SenderID:       v.userID,
		RecipientID:    peerID,
		Body:           body,
	})
	var partial *reconciler.PartialApplyError
	if err != nil && !errors.As(err, &partial) {
		v.notify(err)
		return models.Message{}, err
	}

	v.mu.Lock()
	t := v.typing
	v.mu.Unlock()
	if t != nil {
		t.Stop()
	}
	return msg, err
}

func (v *View) target() (string, string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.conversationID, v.peerID, v.conversationID != ""
}

func (v *View) notify(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sink.Notify(models.NoticeFor(err))
}

func (v *View) onMessages(gen uint64, newestFirst []models.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen {
		return
	}
	merged := mergeTail(v.messages, reverse(newestFirst))
	if v.seeded && reflect.DeepEqual(merged, v.messages) {
		return
	}
	v.messages = merged
	v.moveCursorLocked()
	if !v.seeded {
		v.seeded = true
		v.hasMore = len(newestFirst) == v.deps.PageSize
	}
	v.sink.Render(Update{
		Kind:           KindSnapshot,
		ConversationID: v.conversationID,
		Messages:       v.snapshotLocked(),
		HasMore:        v.hasMore,
		ScrollToBottom: true,
		PeerTyping:     v.peerTyping,
	})
}

func (v *View) onConversation(gen uint64, conv models.Conversation, exists bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen || !exists {
		return
	}
	at, ok := peerTypingAt(conv, v.peerID)
	if !ok {
		at = 0
	}
	v.peerTypingAt = at
	v.evaluateTypingLocked(gen)
}

// evaluateTypingLocked renders a typing change and, while the peer is typing,
// schedules a recheck for when the flag goes stale without another write.
func (v *View) evaluateTypingLocked(gen uint64) {
	now := v.deps.Now()
	typing := v.peerTypingAt != 0 && typingActive(v.peerTypingAt, now, v.deps.TypingExpire)

	if v.recheck != nil {
		v.recheck.Stop()
		v.recheck = nil
	}
	if typing {
		wait := time.Duration(v.peerTypingAt+v.deps.TypingExpire.Milliseconds()-now.UnixMilli()) * time.Millisecond
		v.recheck = time.AfterFunc(wait, func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			if gen == v.gen {
				v.evaluateTypingLocked(gen)
			}
		})
	}

	if typing == v.peerTyping {
		return
	}
	v.peerTyping = typing
	v.sink.Render(Update{Kind: KindTyping, ConversationID: v.conversationID, PeerTyping: typing})
}

func (v *View) onSubscriptionError(gen uint64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen || errors.Is(err, context.Canceled) {
		return
	}
	v.deps.Log.With(logging.Conversation(v.conversationID)...).Warnw("subscription failed", "user_id", v.userID, "error", err)
	v.sink.Notify(models.NoticeFor(err))
}

// fail reports err for generation gen and closes the view if it is still on it.
func (v *View) fail(gen uint64, err error) error {
	v.mu.Lock()
	if gen != v.gen {
		v.mu.Unlock()
		return nil
	}
	stale := v.teardownLocked()
	v.sink.Notify(models.NoticeFor(err))
	v.mu.Unlock()
	release(stale)
	return err
}

func (v *View) keep(gen uint64, unsub docstore.Unsubscribe) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen {
		unsub()
		return false
	}
	v.unsubs = append(v.unsubs, unsub)
	return true
}

func (v *View) moveCursorLocked() {
	if len(v.messages) == 0 {
		v.cursor = nil
		return
	}
	c := repositories.CursorOf(v.messages[0])
	v.cursor = &c
}

func (v *View) snapshotLocked() []models.Message {
	out := make([]models.Message, len(v.messages))
	copy(out, v.messages)
	return out
}

type teardown struct {
	unsubs []docstore.Unsubscribe
	cancel context.CancelFunc
	typing *TypingSignal
}

// teardownLocked resets the view and returns what must be released outside
// the lock.
func (v *View) teardownLocked() teardown {
	t := teardown{unsubs: v.unsubs, cancel: v.cancel, typing: v.typing}
	if v.recheck != nil {
		v.recheck.Stop()
	}
	v.conversationID, v.peerID = "", ""
	v.messages, v.cursor = nil, nil
	v.seeded, v.hasMore, v.loadingMore = false, false, false
	v.peerTyping, v.peerTypingAt, v.recheck = false, 0, nil
	v.typing, v.cancel, v.unsubs = nil, nil, nil
	return t
}

func release(t teardown) {
	for _, unsub := range t.unsubs {
		unsub()
	}
	if t.cancel != nil {
		t.cancel()
	}
	if t.typing != nil {
		t.typing.Close()
	}
}
