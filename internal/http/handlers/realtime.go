package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/lumen-backend/internal/platform/logger"
	"github.com/yungbote/lumen-backend/internal/realtime"
)

type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.SSEHub
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub) *RealtimeHandler {
	return &RealtimeHandler{log: log.With("handler", "RealtimeHandler"), hub: hub}
}

// SSEStream subscribes the connection to the caller's user channel; every
// open tab of the same user receives the same events.
func (h *RealtimeHandler) SSEStream(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	client := h.hub.NewSSEClient(userID)
	client.ID = uuid.New()
	h.hub.AddChannel(client, realtime.UserChannel(userID))
	h.log.Info("SSEStream open", "user_id", userID, "client_id", client.ID)

	h.hub.ServeHTTP(c.Writer, c.Request, client)
	h.hub.CloseClient(client)
}
