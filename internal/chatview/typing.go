package chatview

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"dmchat/internal/models"
)

const typingWriteTimeout = 5 * time.Second

// TypingStore persists the typing flag of one participant.
type TypingStore interface {
	SetTyping(ctx context.Context, conversationID, userID string, at int64) error
	ClearTyping(ctx context.Context, conversationID, userID string) error
}

// TypingSignal publishes the local user's typing flag. Each keystroke marks the
// user as typing and restarts the expiry timer; the flag is cleared when the
// timer fires, on Stop and on Close. Writes happen on a single background
// goroutine in the order the state changed and failures are only logged.
type TypingSignal struct {
	store          TypingStore
	conversationID string
	userID         string
	expire         time.Duration
	refresh        time.Duration
	now            func() time.Time
	log            *zap.SugaredLogger

	mu        sync.Mutex
	want      bool
	wantAt    time.Time
	timer     *time.Timer
	closed    bool
	kick      chan struct{}
	done      chan struct{}
	written   bool
	writtenAt time.Time
}

// NewTypingSignal starts the writer goroutine. Close must be called to stop it.
func NewTypingSignal(store TypingStore, conversationID, userID string, expire time.Duration, now func() time.Time, log *zap.SugaredLogger) *TypingSignal {
	if now == nil {
		now = time.Now
	}
	t := &TypingSignal{
		store:          store,
		conversationID: conversationID,
		userID:         userID,
		expire:         expire,
		refresh:        expire / 3,
		now:            now,
		log:            log,
		kick:           make(chan struct{}, 1),
		done:           make(chan struct{}),
	}
	go t.run()
	return t
}

// Keystroke marks the user as typing. The stored timestamp is refreshed at most
// once per refresh interval so fast typists do not write on every key.
func (t *TypingSignal) Keystroke() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	now := t.now()
	if !t.want || now.Sub(t.wantAt) >= t.refresh {
		t.want = true
		t.wantAt = now
		t.signal()
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.expire, t.Stop)
}

// Stop clears the typing flag.
func (t *TypingSignal) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.clearLocked()
}

// Close clears the flag and stops the writer once the clear is written.
func (t *TypingSignal) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.clearLocked()
	t.closed = true
	close(t.kick)
}

// Done is closed when the writer goroutine exits.
func (t *TypingSignal) Done() <-chan struct{} { return t.done }

func (t *TypingSignal) clearLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.want = false
	t.signal()
}

func (t *TypingSignal) signal() {
	select {
	case t.kick <- struct{}{}:
	default:
	}
}

func (t *TypingSignal) run() {
	defer close(t.done)
	for range t.kick {
		t.flush()
	}
}

func (t *TypingSignal) flush() {
	t.mu.Lock()
	want, at := t.want, t.wantAt
	t.mu.Unlock()

	if want == t.written && (!want || at.Equal(t.writtenAt)) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), typingWriteTimeout)
	defer cancel()

	var err error
	if want {
		err = t.store.SetTyping(ctx, t.conversationID, t.userID, at.UnixMilli())
	} else {
		err = t.store.ClearTyping(ctx, t.conversationID, t.userID)
	}
	if err != nil {
		t.log.Warnw("typing update failed",
			"conversation_id", t.conversationID,
			"user_id", t.userID,
			"typing", want,
			"error", err,
		)
		return
	}
	t.written, t.writtenAt = want, at
}

// peerTypingAt returns the peer's typing timestamp, if any.
func peerTypingAt(conv models.Conversation, peerID string) (int64, bool) {
	at, ok := conv.Typing[peerID]
	return at, ok
}

// typingActive reports whether a flag written at ms is still fresh at now.
func typingActive(at int64, now time.Time, expire time.Duration) bool {
	return now.UnixMilli()-at < expire.Milliseconds()
}
