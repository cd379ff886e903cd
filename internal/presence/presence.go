// Package presence keeps users' lastSeen fresh while they are connected and
// answers whether a peer is online.
package presence

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dmchat/internal/logging"
	"dmchat/internal/models"
	"dmchat/internal/repositories"
)

const (
	DefaultInterval = 60 * time.Second
	// OnlineWindow is how recently a user must have been seen to count as
	// online. It is a little longer than the heartbeat interval.
	OnlineWindow = 70 * time.Second
)

// Cache is a fast online index in front of users.lastSeen.
type Cache interface {
	Touch(ctx context.Context, userID string, ttl time.Duration) error
	Online(ctx context.Context, userID string) (bool, error)
}

type Tracker struct {
	users    repositories.UserRepository
	cache    Cache
	interval time.Duration
	window   time.Duration
	now      func() time.Time
	log      *zap.SugaredLogger
}

// NewTracker builds a Tracker. cache may be nil.
func NewTracker(users repositories.UserRepository, cache Cache, interval time.Duration, log *zap.SugaredLogger) *Tracker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	window := OnlineWindow
	if interval+10*time.Second > window {
		window = interval + 10*time.Second
	}
	return &Tracker{users: users, cache: cache, interval: interval, window: window, now: time.Now, log: log}
}

// Beat records userID as seen now.
func (t *Tracker) Beat(ctx context.Context, userID string) error {
	if err := t.users.Update(ctx, userID, map[string]any{"lastSeen": t.now().UnixMilli()}); err != nil {
		return err
	}
	if t.cache != nil {
		if err := t.cache.Touch(ctx, userID, t.window); err != nil {
			t.log.Warnw("presence cache touch failed", "user_id", userID, "error", err)
		}
	}
	return nil
}

// Run beats immediately and then every interval until ctx is done.
func (t *Tracker) Run(ctx context.Context, userID string) {
	log := t.log.With(logging.User(userID)...)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		if err := t.Beat(ctx, userID); err != nil && ctx.Err() == nil {
			log.Warnw("presence heartbeat failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// IsOnline reports whether u was seen within the online window. The cache is
// asked first; lastSeen answers when there is no cache or it fails.
func (t *Tracker) IsOnline(ctx context.Context, u models.User) bool {
	if t.cache != nil {
		online, err := t.cache.Online(ctx, u.ID)
		if err == nil {
			return online
		}
		t.log.Warnw("presence cache lookup failed", "user_id", u.ID, "error", err)
	}
	return Recent(u.LastSeen, t.now(), t.window)
}

// Recent reports whether lastSeen (unix ms) lies within window of now.
func Recent(lastSeen int64, now time.Time, window time.Duration) bool {
	if lastSeen <= 0 {
		return false
	}
	return now.UnixMilli()-lastSeen < window.Milliseconds()
}
