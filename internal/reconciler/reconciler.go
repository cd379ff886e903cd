// Package reconciler applies an outgoing message to the three documents that
// describe a conversation: the message itself, the conversation summary and the
// chat list of each participant.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"dmchat/internal/models"
	"dmchat/internal/observability"
	"dmchat/internal/repositories"
)

// Step names one store write of Apply.
type Step string

const (
	StepAppend    Step = "append"
	StepSummary   Step = "summary"
	StepChatLists Step = "chat_lists"
)

// Outgoing is a message about to be sent.
type Outgoing struct {
	ConversationID string
	SenderID       string
	RecipientID    string
	Body           models.Body
}

// Applier writes an outgoing message. A transactional backend may implement it
// atomically; Reconciler does not.
type Applier interface {
	Apply(ctx context.Context, out Outgoing) (models.Message, error)
}

// PartialApplyError is returned when the message was stored but a later step
// failed. Applied lists the steps that completed.
type PartialApplyError struct {
	Message models.Message
	Applied []Step
	Failed  Step
	Err     error
}

func (e *PartialApplyError) Error() string {
	return fmt.Sprintf("send partially applied (failed at %s): %v", e.Failed, e.Err)
}

func (e *PartialApplyError) Unwrap() error { return e.Err }

// Reconciler is the store-backed Applier.
type Reconciler struct {
	messages      repositories.MessageRepository
	conversations repositories.ConversationRepository
	chatLists     repositories.ChatListRepository
	log           *zap.SugaredLogger
	now           func() time.Time
	newID         func() string
}

// New constructs a Reconciler.
func New(messages repositories.MessageRepository, conversations repositories.ConversationRepository, chatLists repositories.ChatListRepository, log *zap.SugaredLogger) *Reconciler {
	return &Reconciler{
		messages:      messages,
		conversations: conversations,
		chatLists:     chatLists,
		log:           log,
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

// WithClock replaces the time source.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

var _ Applier = (*Reconciler)(nil)

// Apply appends the message, bumps the summary and the recipient's unread
// count, then refreshes both participants' chat-list entries. Whitespace-only
// text is rejected with a *models.ValidationError and nothing is written.
func (r *Reconciler) Apply(ctx context.Context, out Outgoing) (models.Message, error) {
	ctx, span := otel.Tracer("dmchat/reconciler").Start(ctx, "reconciler.apply")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", out.ConversationID))

	body, err := normalizeBody(out.Body)
	if err != nil {
		return models.Message{}, err
	}

	msg := models.Message{
		ID:             r.newID(),
		ConversationID: out.ConversationID,
		SenderID:       out.SenderID,
		CreatedAt:      r.now().UnixMilli(),
		Body:           body,
	}
	preview := msg.Preview()

	if err := r.messages.Create(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		return models.Message{}, err
	}
	applied := []Step{StepAppend}
	observability.IncMessageSent(bodyKind(body))

	if err := r.bumpSummary(ctx, out, preview, msg.CreatedAt); err != nil {
		return msg, r.partial(span, msg, applied, StepSummary, err)
	}
	applied = append(applied, StepSummary)

	var errs []error
	for _, uid := range []string{out.RecipientID, out.SenderID} {
		if err := r.touchChatList(ctx, uid, out.ConversationID, out.SenderID, preview, msg.CreatedAt); err != nil {
			errs = append(errs, fmt.Errorf("chat list of %s: %w", uid, err))
		}
	}
	if len(errs) > 0 {
		return msg, r.partial(span, msg, applied, StepChatLists, errors.Join(errs...))
	}

	_ = observability.PublishEvent(ctx, observability.EventMessageSent, observability.NewEvent("chat", "message_sent", map[string]any{
		"conversation_id": msg.ConversationID,
		"message_id":      msg.ID,
		"sender_id":       msg.SenderID,
		"kind":            bodyKind(body),
	}))
	return msg, nil
}

func (r *Reconciler) partial(span trace.Span, msg models.Message, applied []Step, failed Step, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "partially applied")
	observability.IncReconcileFailure(string(failed))
	r.log.Warnw("send partially applied",
		"conversation_id", msg.ConversationID,
		"message_id", msg.ID,
		"failed_step", failed,
		"error", err,
	)
	return &PartialApplyError{Message: msg, Applied: applied, Failed: failed, Err: err}
}

// bumpSummary is a read-modify-write of the unread counter. Two concurrent
// senders may lose one increment.
func (r *Reconciler) bumpSummary(ctx context.Context, out Outgoing, preview string, at int64) error {
	conv, err := r.conversations.Get(ctx, out.ConversationID)
	if err != nil {
		return err
	}
	fields := map[string]any{
		"lastMessage":   preview,
		"lastMessageAt": at,
	}
	fields["unreadCount."+out.RecipientID] = conv.UnreadCount[out.RecipientID] + 1
	return r.conversations.Update(ctx, out.ConversationID, fields)
}

// touchChatList updates the entry for conversationID in userID's chat list.
// Lists without such an entry are left untouched.
func (r *Reconciler) touchChatList(ctx context.Context, userID, conversationID, senderID, preview string, at int64) error {
	list, err := r.chatLists.Get(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	idx := -1
	for i, e := range list.ChatsData {
		if e.MessageID == conversationID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	entry := &list.ChatsData[idx]
	entry.LastMessage = preview
	entry.UpdatedAt = at
	if entry.RID == senderID {
		entry.MessageSeen = false
	}
	return r.chatLists.Save(ctx, userID, list.ChatsData)
}

func normalizeBody(b models.Body) (models.Body, error) {
	switch body := b.(type) {
	case models.TextBody:
		text := strings.TrimSpace(body.Text)
		if text == "" {
			return nil, models.Invalid("text", "message is empty")
		}
		return models.TextBody{Text: text}, nil
	case models.ImageBody:
		if body.URL == "" {
			return nil, models.Invalid("image", "image url is empty")
		}
		return body, nil
	default:
		return nil, models.Invalid("body", "message has no content")
	}
}

func bodyKind(b models.Body) string {
	switch b.(type) {
	case models.ImageBody:
		return "image"
	default:
		return "text"
	}
}
