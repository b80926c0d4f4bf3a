package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for direct messages.
type MessageRepository interface {
	AddMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id int) (models.Message, error)
	// GetMessageThread returns the conversation between currentUsername and
	// otherUsername as seen by currentUsername, oldest first, and marks the
	// messages addressed to currentUsername as read.
	GetMessageThread(ctx context.Context, currentUsername, otherUsername string) ([]models.Message, error)
	// MarkDeleted sets only the caller's side deletion flag and destroys the
	// message once both sides are set.
	MarkDeleted(ctx context.Context, id int, bySender bool) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db sqlx.ExtContext
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db sqlx.ExtContext) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, sender_id, sender_username, recipient_id, recipient_username, content, date_read, message_sent, sender_deleted, recipient_deleted`

// AddMessage inserts msg and fills in its id.
func (r *MessageRepo) AddMessage(ctx context.Context, msg *models.Message) error {
	if msg.MessageSent.IsZero() {
		msg.MessageSent = time.Now().UTC()
	}
	return r.db.QueryRowxContext(ctx, `INSERT INTO messages (sender_id, sender_username, recipient_id, recipient_username, content, date_read, message_sent)
        VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		msg.SenderID, msg.SenderUsername, msg.RecipientID, msg.RecipientUsername, msg.Content, msg.DateRead, msg.MessageSent).
		Scan(&msg.ID)
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, id int) (models.Message, error) {
	var msg models.Message
	err := sqlx.GetContext(ctx, r.db, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// GetMessageThread returns the visible thread and marks unread incoming messages read.
func (r *MessageRepo) GetMessageThread(ctx context.Context, currentUsername, otherUsername string) ([]models.Message, error) {
	if _, err := r.db.ExecContext(ctx, `UPDATE messages SET date_read=$3
        WHERE recipient_username=$1 AND sender_username=$2 AND date_read IS NULL AND recipient_deleted = FALSE`,
		currentUsername, otherUsername, time.Now().UTC()); err != nil {
		return nil, err
	}

	query := `SELECT ` + messageColumns + ` FROM messages
        WHERE (recipient_username=$1 AND sender_username=$2 AND recipient_deleted = FALSE)
        OR (sender_username=$1 AND recipient_username=$2 AND sender_deleted = FALSE)
        ORDER BY message_sent ASC, id ASC`
	var msgs []models.Message
	err := sqlx.SelectContext(ctx, r.db, &msgs, query, currentUsername, otherUsername)
	return msgs, err
}

// MarkDeleted flags the message deleted for one side, then removes the row
// if the other side has already deleted it. Each side writes only its own
// column, so concurrent deletes by both participants cannot undo each other.
func (r *MessageRepo) MarkDeleted(ctx context.Context, id int, bySender bool) error {
	column := "recipient_deleted"
	if bySender {
		column = "sender_deleted"
	}
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET `+column+`=TRUE WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if err := expectOneRow(res, ErrMessageNotFound); err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `DELETE FROM messages WHERE id=$1 AND sender_deleted AND recipient_deleted`, id)
	return err
}

func expectOneRow(res sql.Result, notFound error) error {
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return notFound
	}
	return nil
}
