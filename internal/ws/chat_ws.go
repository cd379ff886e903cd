package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"dmchat/internal/chatview"
	"dmchat/internal/models"
	"dmchat/internal/observability"
	"dmchat/internal/reconciler"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client frame types.
const (
	inScroll = "scroll"
	inTyping = "typing"
	inSend   = "send"
	inClose  = "close"
	inSearch = "search"
)

type inbound struct {
	Type   string                  `json:"type"`
	Scroll *chatview.ScrollMetrics `json:"scroll,omitempty"`
	Text   string                  `json:"text,omitempty"`
	Query  string                  `json:"query,omitempty"`
}

type noticeFrame struct {
	Type   string        `json:"type"`
	Notice models.Notice `json:"notice"`
}

type sentFrame struct {
	Type    string         `json:"type"`
	Message models.Message `json:"message"`
}

func notice(err error) noticeFrame {
	return noticeFrame{Type: "notice", Notice: models.NoticeFor(err)}
}

// viewSink forwards view renders to the socket.
type viewSink struct {
	c *client
}

func (s viewSink) Render(u chatview.Update) { s.c.send(u) }

func (s viewSink) Notify(n models.Notice) { s.c.send(noticeFrame{Type: "notice", Notice: n}) }

// ChatWebSocketHandler serves the live view of one conversation.
type ChatWebSocketHandler struct {
	hub  *Hub
	deps chatview.Deps
	log  *zap.SugaredLogger
}

// NewChatWebSocketHandler constructs a ChatWebSocketHandler.
func NewChatWebSocketHandler(hub *Hub, deps chatview.Deps, log *zap.SugaredLogger) *ChatWebSocketHandler {
	deps.Log = log
	return &ChatWebSocketHandler{hub: hub, deps: deps, log: log}
}

// Handle checks access, upgrades the connection and runs a chatview.View for
// it until the client goes away.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	conversationID := c.Param("conversationId")
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ctx, span := otel.Tracer("dmchat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	conv, err := h.deps.Conversations.Get(ctx, conversationID)
	if err == nil && !conv.HasParticipant(userID) {
		err = models.ErrAccessDenied
	}
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found", "notice": models.NoticeFor(err)})
		return
	case errors.Is(err, models.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized for chat", "notice": models.NoticeFor(err)})
		return
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load chat", "notice": models.NoticeFor(err)})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := connInfo(c, KindChat, conversationID, userID, span.SpanContext().TraceID().String())
	cl := newClient(conn, info, h.log)
	h.hub.add(cl)
	observability.IncWSActive(KindChat)
	publishConnEvent(ctx, observability.EventWSConnect, "ws_connect", info, "")
	go cl.writePump()

	view := chatview.New(userID, h.deps, viewSink{c: cl})
	go func() {
		reason := h.serve(cl, view, conversationID)
		view.Close()
		h.hub.remove(cl)
		cl.close()
		observability.DecWSActive(KindChat)
		publishConnEvent(context.Background(), observability.EventWSDisconnect, "ws_disconnect", info, reason)
	}()
}

// serve opens the view and dispatches client frames until the connection
// ends. It returns the close reason.
func (h *ChatWebSocketHandler) serve(cl *client, view *chatview.View, conversationID string) string {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := view.Open(ctx, conversationID); err != nil {
		return err.Error()
	}

	cl.prepareRead()
	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case <-cl.done:
				default:
					publishConnEvent(ctx, observability.EventWSError, "ws_error", cl.info, err.Error())
				}
			}
			return err.Error()
		}

		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			cl.send(notice(models.Invalid("frame", "malformed message")))
			continue
		}

		switch in.Type {
		case inScroll:
			if in.Scroll == nil {
				continue
			}
			if err := view.OnScroll(ctx, *in.Scroll); err != nil {
				h.log.Debugw("load older failed", "conversation_id", conversationID, "error", err)
			}
		case inTyping:
			view.Keystroke()
		case inSend:
			msg, err := view.SendText(ctx, in.Text)
			var partial *reconciler.PartialApplyError
			if err == nil || errors.As(err, &partial) {
				if msg.ID != "" {
					cl.send(sentFrame{Type: "sent", Message: msg})
				}
			}
		case inClose:
			return "client closed view"
		default:
			cl.send(notice(models.Invalid("type", "unknown message type "+in.Type)))
		}
	}
}

func connInfo(c *gin.Context, kind, resourceID, userID, traceID string) ConnInfo {
	return ConnInfo{
		ConnID:      newConnID(),
		Kind:        kind,
		ResourceID:  resourceID,
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
}
