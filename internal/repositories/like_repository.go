package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrLikeNotFound = errors.New("like not found")

// LikeRepository stores user likes.
type LikeRepository interface {
	GetUserLike(ctx context.Context, sourceUserID, targetUserID int) (models.Like, error)
	AddLike(ctx context.Context, like models.Like) error
	DeleteLike(ctx context.Context, like models.Like) error
	GetLikedUserIDs(ctx context.Context, sourceUserID int) ([]int, error)
}

// LikeRepo is a sqlx implementation of LikeRepository.
type LikeRepo struct {
	db sqlx.ExtContext
}

// NewLikeRepo constructs a LikeRepo.
func NewLikeRepo(db sqlx.ExtContext) *LikeRepo {
	return &LikeRepo{db: db}
}

// GetUserLike fetches a single like.
func (r *LikeRepo) GetUserLike(ctx context.Context, sourceUserID, targetUserID int) (models.Like, error) {
	var like models.Like
	err := sqlx.GetContext(ctx, r.db, &like, `SELECT source_user_id, target_user_id FROM likes WHERE source_user_id=$1 AND target_user_id=$2`, sourceUserID, targetUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Like{}, ErrLikeNotFound
	}
	return like, err
}

// AddLike inserts a like.
func (r *LikeRepo) AddLike(ctx context.Context, like models.Like) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO likes (source_user_id, target_user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, like.SourceUserID, like.TargetUserID)
	return err
}

// DeleteLike removes a like.
func (r *LikeRepo) DeleteLike(ctx context.Context, like models.Like) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM likes WHERE source_user_id=$1 AND target_user_id=$2`, like.SourceUserID, like.TargetUserID)
	return err
}

// GetLikedUserIDs lists the users sourceUserID has liked.
func (r *LikeRepo) GetLikedUserIDs(ctx context.Context, sourceUserID int) ([]int, error) {
	ids := []int{}
	err := sqlx.SelectContext(ctx, r.db, &ids, `SELECT target_user_id FROM likes WHERE source_user_id=$1 ORDER BY target_user_id`, sourceUserID)
	return ids, err
}
