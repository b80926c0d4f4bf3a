package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository resolves users by their canonical username.
type UserRepository interface {
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	GetUserByID(ctx context.Context, id int) (models.User, error)
	TouchLastActive(ctx context.Context, id int, at time.Time) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db sqlx.ExtContext
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db sqlx.ExtContext) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, username, known_as, last_active, created_at`

// GetUserByUsername looks a user up by lower-cased username.
func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := sqlx.GetContext(ctx, r.db, &user, `SELECT `+userColumns+` FROM users WHERE username=$1`, strings.ToLower(username))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetUserByID fetches a user by id.
func (r *UserRepo) GetUserByID(ctx context.Context, id int) (models.User, error) {
	var user models.User
	err := sqlx.GetContext(ctx, r.db, &user, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// TouchLastActive records user activity.
func (r *UserRepo) TouchLastActive(ctx context.Context, id int, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET last_active=$2 WHERE id=$1`, id, at)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}
