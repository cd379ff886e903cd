package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dmchat/internal/telemetry"
	"dmchat/internal/ws"
)

// ConnectionStats reports live socket state. *ws.Hub satisfies it.
type ConnectionStats interface {
	RoomSize(kind, resourceID string) int
	Connected(userID string) bool
}

// RegisterDebugRoutes mounts the /debug endpoints when enabled.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, conns ConnectionStats, enabled bool) {
	if !enabled {
		return
	}
	debug := router.Group("/debug")

	debug.GET("/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), telemetry.LevelInfo, "debug audit entry", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ?conversation= counts chat sockets on one conversation; ?user= reports
	// whether the user has any socket open.
	debug.GET("/connections", func(c *gin.Context) {
		if conns == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "hub not configured"})
			return
		}
		resp := gin.H{}
		if id := c.Query("conversation"); id != "" {
			resp["conversation_sockets"] = conns.RoomSize(ws.KindChat, id)
		}
		if id := c.Query("user"); id != "" {
			resp["user_connected"] = conns.Connected(id)
		}
		c.JSON(http.StatusOK, resp)
	})
}
