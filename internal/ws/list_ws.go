package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"dmchat/internal/chatlist"
	"dmchat/internal/docstore"
	"dmchat/internal/models"
	"dmchat/internal/observability"
)

// ChatListWatcher recomposes a user's chat list on every change.
type ChatListWatcher interface {
	Watch(ctx context.Context, userID, query string, onNext func([]chatlist.Item), onError func(error)) (docstore.Unsubscribe, error)
}

type listFrame struct {
	Type  string          `json:"type"`
	Query string          `json:"query"`
	Items []chatlist.Item `json:"items"`
}

// ChatListWebSocketHandler serves the live chat list of the caller.
type ChatListWebSocketHandler struct {
	hub   *Hub
	lists ChatListWatcher
	log   *zap.SugaredLogger
}

// NewChatListWebSocketHandler constructs a ChatListWebSocketHandler.
func NewChatListWebSocketHandler(hub *Hub, lists ChatListWatcher, log *zap.SugaredLogger) *ChatListWebSocketHandler {
	return &ChatListWebSocketHandler{hub: hub, lists: lists, log: log}
}

// Handle upgrades the connection and pushes a chat_list frame whenever the
// composed list changes. A search frame replaces the name filter.
func (h *ChatListWebSocketHandler) Handle(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ctx, span := otel.Tracer("dmchat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := connInfo(c, KindChats, userID, userID, span.SpanContext().TraceID().String())
	cl := newClient(conn, info, h.log)
	h.hub.add(cl)
	observability.IncWSActive(KindChats)
	publishConnEvent(ctx, observability.EventWSConnect, "ws_connect", info, "")
	go cl.writePump()

	query := c.Query("q")
	go func() {
		reason := h.serve(cl, userID, query)
		h.hub.remove(cl)
		cl.close()
		observability.DecWSActive(KindChats)
		publishConnEvent(context.Background(), observability.EventWSDisconnect, "ws_disconnect", info, reason)
	}()
}

func (h *ChatListWebSocketHandler) serve(cl *client, userID, query string) string {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var unsub docstore.Unsubscribe
	watch := func(q string) bool {
		if unsub != nil {
			unsub()
			unsub = nil
		}
		u, err := h.lists.Watch(ctx, userID, q,
			func(items []chatlist.Item) { cl.send(listFrame{Type: "chat_list", Query: q, Items: items}) },
			func(err error) {
				h.log.Warnw("chat list subscription failed", "user_id", userID, "error", err)
				cl.send(notice(err))
			})
		if err != nil {
			cl.send(notice(err))
			return false
		}
		unsub = u
		return true
	}
	defer func() {
		if unsub != nil {
			unsub()
		}
	}()

	if !watch(query) {
		return "watch failed"
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
		case inSearch:
			if !watch(in.Query) {
				return "watch failed"
			}
		case inClose:
			return "client closed list"
		default:
			cl.send(notice(models.Invalid("type", "unknown message type "+in.Type)))
		}
	}
}
