package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/middleware"
	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

// LikeHandler toggles and lists likes.
type LikeHandler struct {
	store repositories.Store
}

// NewLikeHandler builds a LikeHandler.
func NewLikeHandler(store repositories.Store) *LikeHandler {
	return &LikeHandler{store: store}
}

// ToggleLike likes the user :id, or removes the like if it already exists.
func (h *LikeHandler) ToggleLike(c *gin.Context) {
	targetID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	ctx := c.Request.Context()
	uow, err := h.store.Begin(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update like"})
		return
	}
	defer uow.Rollback()

	source, err := uow.Users().GetUserByUsername(ctx, c.GetString(middleware.UsernameKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}
	if source.ID == targetID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "you cannot like yourself"})
		return
	}
	if _, err := uow.Users().GetUserByID(ctx, targetID); err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update like"})
		return
	}

	like := models.Like{SourceUserID: source.ID, TargetUserID: targetID}
	liked := false
	_, err = uow.Likes().GetUserLike(ctx, source.ID, targetID)
	switch {
	case err == nil:
		err = uow.Likes().DeleteLike(ctx, like)
	case errors.Is(err, repositories.ErrLikeNotFound):
		liked = true
		err = uow.Likes().AddLike(ctx, like)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update like"})
		return
	}
	if err := uow.Complete(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update like"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"liked": liked})
}

// ListLikes returns the ids of the users the caller has liked.
func (h *LikeHandler) ListLikes(c *gin.Context) {
	ctx := c.Request.Context()
	uow, err := h.store.Begin(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load likes"})
		return
	}
	defer uow.Rollback()

	source, err := uow.Users().GetUserByUsername(ctx, c.GetString(middleware.UsernameKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}
	ids, err := uow.Likes().GetLikedUserIDs(ctx, source.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load likes"})
		return
	}
	if ids == nil {
		ids = []int{}
	}
	c.JSON(http.StatusOK, gin.H{"user_ids": ids})
}
