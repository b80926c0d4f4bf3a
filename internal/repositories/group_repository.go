package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrGroupNotFound = errors.New("group not found")

// GroupRepository persists conversation groups and their live connections.
type GroupRepository interface {
	GetGroup(ctx context.Context, name string) (*models.Group, error)
	GetGroupForConnection(ctx context.Context, connectionID string) (*models.Group, error)
	// AddGroup creates the group unless one with the same name exists.
	AddGroup(ctx context.Context, group *models.Group) error
	// AddConnection attaches conn to the group, detaching it from any other.
	AddConnection(ctx context.Context, groupName string, conn models.Connection) error
	// RemoveConnection detaches the connection; the group itself is kept.
	RemoveConnection(ctx context.Context, connectionID string) error
}

// GroupRepo is a sqlx implementation of GroupRepository.
type GroupRepo struct {
	db sqlx.ExtContext
}

// NewGroupRepo constructs a GroupRepo.
func NewGroupRepo(db sqlx.ExtContext) *GroupRepo {
	return &GroupRepo{db: db}
}

// GetGroup fetches a group with its connections.
func (r *GroupRepo) GetGroup(ctx context.Context, name string) (*models.Group, error) {
	var group models.Group
	err := sqlx.GetContext(ctx, r.db, &group, `SELECT name FROM groups WHERE name=$1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadConnections(ctx, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

// GetGroupForConnection finds the group that owns a connection.
func (r *GroupRepo) GetGroupForConnection(ctx context.Context, connectionID string) (*models.Group, error) {
	var name string
	err := sqlx.GetContext(ctx, r.db, &name, `SELECT g.name FROM groups g
        INNER JOIN connections c ON c.group_name = g.name
        WHERE c.connection_id=$1`, connectionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.GetGroup(ctx, name)
}

// AddGroup inserts the group if it is not already present.
func (r *GroupRepo) AddGroup(ctx context.Context, group *models.Group) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO groups (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, group.Name)
	return err
}

// AddConnection upserts the connection row pointing at groupName.
func (r *GroupRepo) AddConnection(ctx context.Context, groupName string, conn models.Connection) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO connections (connection_id, username, group_name) VALUES ($1, $2, $3)
        ON CONFLICT (connection_id) DO UPDATE SET username = EXCLUDED.username, group_name = EXCLUDED.group_name`,
		conn.ConnectionID, conn.Username, groupName)
	return err
}

// RemoveConnection deletes the connection row.
func (r *GroupRepo) RemoveConnection(ctx context.Context, connectionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM connections WHERE connection_id=$1`, connectionID)
	return err
}

func (r *GroupRepo) loadConnections(ctx context.Context, group *models.Group) error {
	conns := []models.Connection{}
	if err := sqlx.SelectContext(ctx, r.db, &conns, `SELECT connection_id, username, group_name FROM connections WHERE group_name=$1 ORDER BY connection_id`, group.Name); err != nil {
		return err
	}
	group.Connections = conns
	return nil
}
