package messaging

import (
	"log/slog"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/presence"
)

// PresenceBroadcaster is the transport surface of the presence endpoint.
type PresenceBroadcaster interface {
	SendToConnections(connIDs []string, event models.HubEvent)
	SendToConnection(connID string, event models.HubEvent) bool
	SendToAll(event models.HubEvent, exceptConnID string)
}

// PresenceHub tracks global online status independent of any conversation
// and routes fallback notifications to a user's presence connections.
type PresenceHub struct {
	tracker *presence.Tracker
	clients PresenceBroadcaster
	logger  *slog.Logger
}

// NewPresenceHub builds a PresenceHub over tracker and clients.
func NewPresenceHub(tracker *presence.Tracker, clients PresenceBroadcaster, logger *slog.Logger) *PresenceHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &PresenceHub{
		tracker: tracker,
		clients: clients,
		logger:  logger.With("component", "presence_hub"),
	}
}

// Connect registers a presence connection, announces the user to everyone
// else if they just came online, and sends the caller the online list.
func (h *PresenceHub) Connect(username, connID string) {
	if h.tracker.UserConnected(username, connID) {
		h.clients.SendToAll(models.HubEvent{Type: models.EventUserOnline, Username: username}, connID)
	}
	online := h.tracker.GetOnlineUsers()
	observability.SetOnlineUsers(len(online))
	h.clients.SendToConnection(connID, models.HubEvent{Type: models.EventOnlineUsers, Usernames: online})
	h.logger.Debug("presence connected", "username", username, "conn_id", connID)
}

// Disconnect removes a presence connection and announces the user offline
// when it was their last one.
func (h *PresenceHub) Disconnect(username, connID string) {
	if h.tracker.UserDisconnected(username, connID) {
		h.clients.SendToAll(models.HubEvent{Type: models.EventUserOffline, Username: username}, connID)
	}
	observability.SetOnlineUsers(len(h.tracker.GetOnlineUsers()))
	h.logger.Debug("presence disconnected", "username", username, "conn_id", connID)
}

// ConnectionsFor returns the user's live presence connection ids.
func (h *PresenceHub) ConnectionsFor(username string) []string {
	return h.tracker.GetConnectionsForUser(username)
}

// NotifyNewMessage alerts connIDs that sender wrote to them.
func (h *PresenceHub) NotifyNewMessage(connIDs []string, sender models.User) {
	if len(connIDs) == 0 {
		return
	}
	h.clients.SendToConnections(connIDs, models.HubEvent{
		Type: models.EventNewMessageReceived,
		Notification: &models.MessageNotification{
			Username: sender.Username,
			KnownAs:  sender.DisplayName(),
		},
	})
}
