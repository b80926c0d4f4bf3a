package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

// MessageHandler serves the REST side of direct messages.
type MessageHandler struct {
	store  repositories.Store
	audit  *telemetry.AuditEmitter
	logger *slog.Logger
}

// NewMessageHandler builds a MessageHandler. audit may be nil.
func NewMessageHandler(store repositories.Store, audit *telemetry.AuditEmitter, logger *slog.Logger) *MessageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageHandler{store: store, audit: audit, logger: logger.With("component", "message_handler")}
}

// GetThread returns the conversation with :username and marks the caller's
// unread messages in it as read.
func (h *MessageHandler) GetThread(c *gin.Context) {
	current := c.GetString(middleware.UsernameKey)
	other := strings.ToLower(strings.TrimSpace(c.Param("username")))
	ctx := c.Request.Context()

	uow, err := h.store.Begin(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	defer uow.Rollback()

	msgs, err := uow.Messages().GetMessageThread(ctx, current, other)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if err := uow.Complete(); err != nil {
		h.logger.Warn("thread read receipts not saved", "username", current, "other", other, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark messages read"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": models.ToDtos(msgs)})
}

// CreateMessage stores a message without live delivery.
func (h *MessageHandler) CreateMessage(c *gin.Context) {
	var req struct {
		RecipientUsername string `json:"recipient_username" binding:"required"`
		Content           string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	current := c.GetString(middleware.UsernameKey)
	recipient := strings.ToLower(strings.TrimSpace(req.RecipientUsername))
	if recipient == current {
		c.JSON(http.StatusBadRequest, gin.H{"error": "you cannot send messages to yourself"})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	ctx := c.Request.Context()
	uow, err := h.store.Begin(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not send message"})
		return
	}
	defer uow.Rollback()

	sender, err := uow.Users().GetUserByUsername(ctx, current)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}
	target, err := uow.Users().GetUserByUsername(ctx, recipient)
	if errors.Is(err, repositories.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "recipient not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not send message"})
		return
	}

	msg := models.Message{
		SenderID:          sender.ID,
		SenderUsername:    sender.Username,
		RecipientID:       target.ID,
		RecipientUsername: target.Username,
		Content:           req.Content,
	}
	if err := uow.Messages().AddMessage(ctx, &msg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not send message"})
		return
	}
	if err := uow.Complete(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save message"})
		return
	}

	c.JSON(http.StatusCreated, msg.ToDto())
}

// DeleteMessage hides a message for the caller. The row is destroyed once
// both participants have deleted it.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	current := c.GetString(middleware.UsernameKey)
	ctx := c.Request.Context()
	uow, err := h.store.Begin(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete message"})
		return
	}
	defer uow.Rollback()

	msg, err := uow.Messages().GetMessage(ctx, id)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load message"})
		return
	}

	var bySender bool
	switch current {
	case msg.SenderUsername:
		bySender = true
	case msg.RecipientUsername:
	default:
		h.audit.Emit(ctx, "WARN", "delete attempt on foreign message "+strconv.Itoa(id), requestIDFromContext(c), current)
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}

	if err := uow.Messages().MarkDeleted(ctx, id, bySender); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete message"})
		return
	}
	if err := uow.Complete(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "problem deleting the message"})
		return
	}

	c.Status(http.StatusNoContent)
}
