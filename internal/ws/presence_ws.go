package ws

import (
	"github.com/gin-gonic/gin"

	"messaging-service/internal/messaging"
	"messaging-service/internal/models"
)

// PresenceWebSocketHandler serves the global presence endpoint. Clients only
// listen; inbound frames are answered with an error.
type PresenceWebSocketHandler struct {
	endpoint
	presence *messaging.PresenceHub
}

// NewPresenceWebSocketHandler constructs a PresenceWebSocketHandler.
func NewPresenceWebSocketHandler(hub *Hub, presence *messaging.PresenceHub, validator TokenValidator, settings Settings) *PresenceWebSocketHandler {
	return &PresenceWebSocketHandler{
		endpoint: endpoint{hub: hub, validator: validator, settings: settings.withDefaults()},
		presence: presence,
	}
}

// Handle upgrades the connection and marks the user online.
func (h *PresenceWebSocketHandler) Handle(c *gin.Context) {
	client, ctx, ok := h.open(c)
	if !ok {
		return
	}
	info := client.Info()

	h.presence.Connect(info.Username, info.ConnID)
	h.run(ctx, client, func([]byte) {
		h.reply(client, models.HubEvent{Type: models.EventError, Error: &models.ErrorPayload{Code: "bad_request", Message: "presence connections accept no commands"}})
	}, func(error) {
		h.presence.Disconnect(info.Username, info.ConnID)
	})
}
