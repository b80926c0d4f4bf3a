package models

// Event types pushed over websocket connections.
const (
	EventGroupUpdated       = "group_updated"
	EventMessageThread      = "message_thread"
	EventNewMessage         = "new_message"
	EventNewMessageReceived = "new_message_received"
	EventUserOnline         = "user_online"
	EventUserOffline        = "user_offline"
	EventOnlineUsers        = "online_users"
	EventSendAck            = "send_ack"
	EventError              = "error"
)

// Send statuses reported back to the sender in a send_ack.
const (
	SendDelivered = "delivered"
	SendNotified  = "notified"
	SendOffline   = "offline"
)

// HubEvent is the envelope written to websocket clients.
type HubEvent struct {
	Type         string               `json:"type"`
	Group        *Group               `json:"group,omitempty"`
	Messages     []MessageDto         `json:"messages,omitempty"`
	Message      *MessageDto          `json:"message,omitempty"`
	Notification *MessageNotification `json:"notification,omitempty"`
	Username     string               `json:"username,omitempty"`
	Usernames    []string             `json:"usernames,omitempty"`
	Ack          *SendAck             `json:"ack,omitempty"`
	Error        *ErrorPayload        `json:"error,omitempty"`
}

// MessageNotification alerts a user about a message in a thread they are not viewing.
type MessageNotification struct {
	Username string `json:"username"`
	KnownAs  string `json:"known_as"`
}

// SendAck tells the sender how a send_message command was resolved.
type SendAck struct {
	ClientRef string `json:"client_ref,omitempty"`
	Status    string `json:"status"`
	MessageID int    `json:"message_id"`
}

// ErrorPayload reports a failed command to the caller.
type ErrorPayload struct {
	ClientRef string `json:"client_ref,omitempty"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// ClientCommand is a message read from a websocket client.
type ClientCommand struct {
	Type              string `json:"type"`
	RecipientUsername string `json:"recipient_username"`
	Content           string `json:"content"`
	ClientRef         string `json:"client_ref"`
}

// CommandSendMessage is the only command accepted on the message hub.
const CommandSendMessage = "send_message"
