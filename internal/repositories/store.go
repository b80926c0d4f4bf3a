package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// UnitOfWork groups repository mutations into one atomic commit.
// Either every mutation made through its repositories becomes visible on
// Complete, or none does.
type UnitOfWork interface {
	Users() UserRepository
	Messages() MessageRepository
	Groups() GroupRepository
	Likes() LikeRepository
	Complete() error
	Rollback() error
}

// Store opens units of work.
type Store interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// SQLStore is a sqlx-backed Store; every unit of work is a database transaction.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore constructs a SQLStore.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Begin starts a transaction.
func (s *SQLStore) Begin(ctx context.Context) (UnitOfWork, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &sqlUnitOfWork{tx: tx}, nil
}

type sqlUnitOfWork struct {
	tx *sqlx.Tx
}

func (u *sqlUnitOfWork) Users() UserRepository       { return NewUserRepo(u.tx) }
func (u *sqlUnitOfWork) Messages() MessageRepository { return NewMessageRepo(u.tx) }
func (u *sqlUnitOfWork) Groups() GroupRepository     { return NewGroupRepo(u.tx) }
func (u *sqlUnitOfWork) Likes() LikeRepository       { return NewLikeRepo(u.tx) }

func (u *sqlUnitOfWork) Complete() error {
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (u *sqlUnitOfWork) Rollback() error {
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
