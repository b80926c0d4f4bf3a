package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/messaging"
	"messaging-service/internal/models"
)

// MessageWebSocketHandler serves the conversation endpoint. A connection
// opens on the thread with the user named by the "user" query parameter and
// may then send messages.
type MessageWebSocketHandler struct {
	endpoint
	conversation *messaging.ConversationHub
}

// NewMessageWebSocketHandler constructs a MessageWebSocketHandler.
func NewMessageWebSocketHandler(hub *Hub, conversation *messaging.ConversationHub, validator TokenValidator, settings Settings) *MessageWebSocketHandler {
	return &MessageWebSocketHandler{
		endpoint:     endpoint{hub: hub, validator: validator, settings: settings.withDefaults()},
		conversation: conversation,
	}
}

// Handle upgrades the connection and joins it to the conversation group.
func (h *MessageWebSocketHandler) Handle(c *gin.Context) {
	peer := strings.TrimSpace(c.Query("user"))
	if peer == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user is required"})
		return
	}

	client, ctx, ok := h.open(c)
	if !ok {
		return
	}
	info := client.Info()
	session := messaging.Session{ConnectionID: info.ConnID, Username: info.Username, RequestID: info.RequestID}

	opCtx, cancel := context.WithTimeout(ctx, operationTimeout)
	_, err := h.conversation.Connect(opCtx, session, peer)
	cancel()
	if err != nil {
		h.hub.logger.Warn("conversation connect failed", "conn_id", info.ConnID, "username", info.Username, "peer", peer, "error", err)
		h.reply(client, errorEvent("", err))
		h.abort(ctx, client, err.Error())
		return
	}

	h.run(ctx, client, func(payload []byte) {
		h.handleCommand(ctx, client, session, payload)
	}, func(cause error) {
		opCtx, cancel := context.WithTimeout(ctx, operationTimeout)
		defer cancel()
		_ = h.conversation.Disconnect(opCtx, session, cause)
	})
}

func (h *MessageWebSocketHandler) handleCommand(ctx context.Context, client *Client, session messaging.Session, payload []byte) {
	var cmd models.ClientCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		h.reply(client, models.HubEvent{Type: models.EventError, Error: &models.ErrorPayload{Code: "bad_request", Message: "malformed command"}})
		return
	}
	if cmd.Type != models.CommandSendMessage {
		h.reply(client, models.HubEvent{Type: models.EventError, Error: &models.ErrorPayload{ClientRef: cmd.ClientRef, Code: "bad_request", Message: "unknown command"}})
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()
	res, err := h.conversation.SendMessage(opCtx, session, cmd.RecipientUsername, cmd.Content)
	if err != nil {
		h.reply(client, errorEvent(cmd.ClientRef, err))
		return
	}
	h.reply(client, models.HubEvent{Type: models.EventSendAck, Ack: &models.SendAck{
		ClientRef: cmd.ClientRef,
		Status:    res.Status,
		MessageID: res.Message.ID,
	}})
}

func errorEvent(clientRef string, err error) models.HubEvent {
	return models.HubEvent{Type: models.EventError, Error: &models.ErrorPayload{
		ClientRef: clientRef,
		Code:      messaging.ErrorCode(err),
		Message:   err.Error(),
	}}
}
