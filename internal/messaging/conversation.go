package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

var tracer = otel.Tracer("messaging-service/messaging")

// Broadcaster is the transport surface of the conversation endpoint. Rooms
// are named after groups.
type Broadcaster interface {
	AddToRoom(room, connID string)
	RemoveFromRoom(room, connID string)
	SendToRoom(room string, event models.HubEvent)
	SendToConnection(connID string, event models.HubEvent) bool
}

// Session identifies the connection an operation runs on behalf of.
type Session struct {
	ConnectionID string
	Username     string
	RequestID    string
}

// SendResult tells the sender how a persisted message was routed.
type SendResult struct {
	Message models.MessageDto
	Status  string
}

// ConversationHub joins connections to conversation groups, delivers thread
// history, and fans new messages out to the group, falling back to a
// presence notification when the recipient is not in the conversation.
//
// Every read-modify-save of a group's membership runs under that group's
// lock and commits through a unit of work, so a failed commit leaves no
// partial membership behind.
type ConversationHub struct {
	store      repositories.Store
	clients    Broadcaster
	presence   *PresenceHub
	audit      *telemetry.AuditEmitter
	groupLocks keyedMutex
	logger     *slog.Logger
}

// NewConversationHub wires a hub. audit may be nil.
func NewConversationHub(store repositories.Store, clients Broadcaster, presenceHub *PresenceHub, audit *telemetry.AuditEmitter, logger *slog.Logger) *ConversationHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationHub{
		store:    store,
		clients:  clients,
		presence: presenceHub,
		audit:    audit,
		logger:   logger.With("component", "conversation_hub"),
	}
}

// Connect joins the session's connection to the group it shares with peer,
// broadcasts the new membership and sends the thread to the caller. On error
// the connection is not joined.
func (h *ConversationHub) Connect(ctx context.Context, s Session, peer string) (*models.Group, error) {
	ctx, span := tracer.Start(ctx, "conversation.connect", trace.WithAttributes(
		attribute.String("conn_id", s.ConnectionID),
	))
	defer span.End()

	peer = strings.ToLower(strings.TrimSpace(peer))
	s.Username = strings.ToLower(s.Username)
	if s.Username == "" || peer == "" || s.ConnectionID == "" {
		return nil, ErrIdentity
	}
	if peer == s.Username {
		return nil, ErrSelfTarget
	}
	if err := h.resolveUser(ctx, s.Username); err != nil {
		return nil, err
	}

	name := GroupName(s.Username, peer)
	span.SetAttributes(attribute.String("group", name))

	group, err := h.join(ctx, name, models.Connection{ConnectionID: s.ConnectionID, Username: s.Username})
	if err != nil {
		observability.IncPersistenceFailure("connect")
		return nil, err
	}

	thread, err := h.loadThread(ctx, s.Username, peer)
	if err != nil {
		observability.IncPersistenceFailure("thread")
		h.leave(ctx, name, s.ConnectionID)
		return nil, err
	}
	h.clients.SendToConnection(s.ConnectionID, models.HubEvent{Type: models.EventMessageThread, Messages: models.ToDtos(thread)})

	h.logger.Info("connection joined group", "group", name, "conn_id", s.ConnectionID, "username", s.Username)
	return group, nil
}

// join looks up or creates the group, attaches conn and announces the new
// membership to the room.
func (h *ConversationHub) join(ctx context.Context, name string, conn models.Connection) (*models.Group, error) {
	unlock := h.groupLocks.Lock(name)
	defer unlock()

	if err := h.ensureGroup(ctx, name); err != nil {
		return nil, err
	}

	uow, err := h.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := uow.Groups().AddConnection(ctx, name, conn); err != nil {
		_ = uow.Rollback()
		return nil, fmt.Errorf("%w: add connection: %v", ErrPersistence, err)
	}
	if err := uow.Complete(); err != nil {
		_ = uow.Rollback()
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	h.clients.AddToRoom(name, conn.ConnectionID)
	group, err := h.readGroup(ctx, name)
	if err != nil {
		h.clients.RemoveFromRoom(name, conn.ConnectionID)
		if undoErr := h.removeConnection(ctx, conn.ConnectionID); undoErr != nil {
			h.logger.Error("failed to undo join", "group", name, "conn_id", conn.ConnectionID, "error", undoErr)
		}
		return nil, fmt.Errorf("%w: reload group: %v", ErrPersistence, err)
	}
	h.clients.SendToRoom(name, models.HubEvent{Type: models.EventGroupUpdated, Group: group})
	return group, nil
}

// ensureGroup creates the group if missing and commits it before returning,
// so racing creators both end up with the one persisted group.
func (h *ConversationHub) ensureGroup(ctx context.Context, name string) error {
	uow, err := h.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	defer uow.Rollback()

	_, err = uow.Groups().GetGroup(ctx, name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repositories.ErrGroupNotFound) {
		return fmt.Errorf("%w: get group: %v", ErrPersistence, err)
	}

	if err := uow.Groups().AddGroup(ctx, &models.Group{Name: name}); err != nil {
		return fmt.Errorf("%w: add group: %v", ErrPersistence, err)
	}
	if err := uow.Complete(); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if _, err := h.readGroup(ctx, name); err != nil {
		return fmt.Errorf("%w: recheck group: %v", ErrPersistence, err)
	}
	return nil
}

func (h *ConversationHub) loadThread(ctx context.Context, username, peer string) ([]models.Message, error) {
	uow, err := h.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	defer uow.Rollback()

	thread, err := uow.Messages().GetMessageThread(ctx, username, peer)
	if err != nil {
		return nil, fmt.Errorf("%w: get thread: %v", ErrPersistence, err)
	}
	if err := uow.Complete(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return thread, nil
}

// leave undoes a join whose later steps failed. Errors are logged only.
func (h *ConversationHub) leave(ctx context.Context, name, connID string) {
	unlock := h.groupLocks.Lock(name)
	defer unlock()

	h.clients.RemoveFromRoom(name, connID)
	if err := h.removeConnection(ctx, connID); err != nil {
		h.logger.Error("failed to undo join", "group", name, "conn_id", connID, "error", err)
		return
	}
	if group, err := h.readGroup(ctx, name); err == nil {
		h.clients.SendToRoom(name, models.HubEvent{Type: models.EventGroupUpdated, Group: group})
	}
}

// Disconnect removes the connection from its group and announces the smaller
// membership. Errors are logged and returned for inspection only; callers
// tear the transport down regardless.
func (h *ConversationHub) Disconnect(ctx context.Context, s Session, cause error) error {
	ctx, span := tracer.Start(ctx, "conversation.disconnect", trace.WithAttributes(
		attribute.String("conn_id", s.ConnectionID),
	))
	defer span.End()

	uow, err := h.store.Begin(ctx)
	if err != nil {
		observability.IncPersistenceFailure("disconnect")
		h.logger.Error("disconnect: begin failed", "conn_id", s.ConnectionID, "error", err)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	group, err := uow.Groups().GetGroupForConnection(ctx, s.ConnectionID)
	_ = uow.Rollback()
	if errors.Is(err, repositories.ErrGroupNotFound) {
		observability.IncIntegrityError()
		h.logger.Error("disconnecting connection has no owning group",
			"conn_id", s.ConnectionID, "username", s.Username)
		h.audit.Emit(ctx, "ERROR", fmt.Sprintf("connection %s has no owning group", s.ConnectionID), s.RequestID, s.Username)
		return ErrIntegrity
	}
	if err != nil {
		observability.IncPersistenceFailure("disconnect")
		h.logger.Error("disconnect: group lookup failed", "conn_id", s.ConnectionID, "error", err)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	name := group.Name
	unlock := h.groupLocks.Lock(name)
	defer unlock()

	h.clients.RemoveFromRoom(name, s.ConnectionID)
	if err := h.removeConnection(ctx, s.ConnectionID); err != nil {
		observability.IncPersistenceFailure("disconnect")
		h.logger.Error("disconnect: failed to persist membership change",
			"group", name, "conn_id", s.ConnectionID, "error", err)
		return err
	}

	updated, err := h.readGroup(ctx, name)
	if err != nil {
		h.logger.Warn("disconnect: reload group failed", "group", name, "error", err)
		return nil
	}
	h.clients.SendToRoom(name, models.HubEvent{Type: models.EventGroupUpdated, Group: updated})

	attrs := []any{"group", name, "conn_id", s.ConnectionID, "username", s.Username}
	if cause != nil {
		attrs = append(attrs, "cause", cause.Error())
	}
	h.logger.Info("connection left group", attrs...)
	return nil
}

func (h *ConversationHub) removeConnection(ctx context.Context, connID string) error {
	uow, err := h.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if err := uow.Groups().RemoveConnection(ctx, connID); err != nil {
		_ = uow.Rollback()
		return fmt.Errorf("%w: remove connection: %v", ErrPersistence, err)
	}
	if err := uow.Complete(); err != nil {
		_ = uow.Rollback()
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// SendMessage persists a message from the session's user to recipient and
// routes it. The returned status distinguishes a recipient reading the thread
// (delivered), one online elsewhere (notified) and one with no connection
// (offline). On error nothing is persisted or broadcast.
func (h *ConversationHub) SendMessage(ctx context.Context, s Session, recipient, content string) (SendResult, error) {
	ctx, span := tracer.Start(ctx, "conversation.send", trace.WithAttributes(
		attribute.String("conn_id", s.ConnectionID),
	))
	defer span.End()

	recipient = strings.ToLower(strings.TrimSpace(recipient))
	if s.Username == "" || recipient == "" {
		return SendResult{}, ErrIdentity
	}
	if recipient == strings.ToLower(strings.TrimSpace(s.Username)) {
		return SendResult{}, ErrSelfTarget
	}
	if strings.TrimSpace(content) == "" {
		return SendResult{}, ErrEmptyContent
	}

	uow, err := h.store.Begin(ctx)
	if err != nil {
		observability.IncPersistenceFailure("send")
		return SendResult{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	defer uow.Rollback()

	sender, err := uow.Users().GetUserByUsername(ctx, s.Username)
	if err != nil {
		return SendResult{}, identityError("sender", err)
	}
	target, err := uow.Users().GetUserByUsername(ctx, recipient)
	if err != nil {
		return SendResult{}, identityError("recipient", err)
	}

	msg := models.Message{
		SenderID:          sender.ID,
		SenderUsername:    sender.Username,
		RecipientID:       target.ID,
		RecipientUsername: target.Username,
		Content:           content,
		MessageSent:       time.Now().UTC(),
	}

	name := GroupName(sender.Username, target.Username)
	group, err := uow.Groups().GetGroup(ctx, name)
	if err != nil && !errors.Is(err, repositories.ErrGroupNotFound) {
		observability.IncPersistenceFailure("send")
		return SendResult{}, fmt.Errorf("%w: get group: %v", ErrPersistence, err)
	}

	status := models.SendOffline
	var fallback []string
	if group.HasUser(target.Username) {
		read := msg.MessageSent
		msg.DateRead = &read
		status = models.SendDelivered
	} else if fallback = h.presence.ConnectionsFor(target.Username); len(fallback) > 0 {
		status = models.SendNotified
	}

	if err := uow.Messages().AddMessage(ctx, &msg); err != nil {
		observability.IncPersistenceFailure("send")
		return SendResult{}, fmt.Errorf("%w: add message: %v", ErrPersistence, err)
	}
	if err := uow.Complete(); err != nil {
		observability.IncPersistenceFailure("send")
		h.logger.Warn("send failed to commit", "sender", sender.Username, "recipient", target.Username, "error", err)
		return SendResult{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if status == models.SendNotified {
		h.presence.NotifyNewMessage(fallback, sender)
	}
	dto := msg.ToDto()
	h.clients.SendToRoom(name, models.HubEvent{Type: models.EventNewMessage, Message: &dto})

	observability.IncMessageSent(status)
	_ = observability.PublishEvent(ctx, "messages.sent", observability.NewEnvelope("message_events", "message_sent", map[string]interface{}{
		"message_id": msg.ID,
		"sender":     sender.Username,
		"recipient":  target.Username,
		"status":     status,
	}), observability.BuildHeaders(s.RequestID, span.SpanContext().TraceID().String()))

	return SendResult{Message: dto, Status: status}, nil
}

func (h *ConversationHub) resolveUser(ctx context.Context, username string) error {
	uow, err := h.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	defer uow.Rollback()
	if _, err := uow.Users().GetUserByUsername(ctx, username); err != nil {
		return identityError("caller", err)
	}
	return nil
}

func (h *ConversationHub) readGroup(ctx context.Context, name string) (*models.Group, error) {
	uow, err := h.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer uow.Rollback()
	return uow.Groups().GetGroup(ctx, name)
}

func identityError(role string, err error) error {
	if errors.Is(err, repositories.ErrUserNotFound) {
		return fmt.Errorf("%w: %s not found", ErrIdentity, role)
	}
	return fmt.Errorf("%w: resolve %s: %v", ErrPersistence, role, err)
}
