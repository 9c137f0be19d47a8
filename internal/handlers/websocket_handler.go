package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/csschan/unitpay-sub001/internal/services"
)

// WebSocketHandler upgrades /ws connections into the push hub.
type WebSocketHandler struct {
	pushService *services.WebSocketPushService
}

func NewWebSocketHandler(pushService *services.WebSocketPushService) *WebSocketHandler {
	return &WebSocketHandler{pushService: pushService}
}

// HandleWebSocket GET /ws?address=0x...
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	h.pushService.HandleConnection(c.Writer, c.Request)
}
