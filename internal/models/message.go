package models

import "time"

// Message is a direct message between two users.
type Message struct {
	ID                int        `db:"id" json:"id"`
	SenderID          int        `db:"sender_id" json:"sender_id"`
	SenderUsername    string     `db:"sender_username" json:"sender_username"`
	RecipientID       int        `db:"recipient_id" json:"recipient_id"`
	RecipientUsername string     `db:"recipient_username" json:"recipient_username"`
	Content           string     `db:"content" json:"content"`
	DateRead          *time.Time `db:"date_read" json:"date_read,omitempty"`
	MessageSent       time.Time  `db:"message_sent" json:"message_sent"`
	SenderDeleted     bool       `db:"sender_deleted" json:"-"`
	RecipientDeleted  bool       `db:"recipient_deleted" json:"-"`
}

// MessageDto is the client-facing projection of a Message.
type MessageDto struct {
	ID                int        `json:"id"`
	SenderUsername    string     `json:"sender_username"`
	RecipientUsername string     `json:"recipient_username"`
	Content           string     `json:"content"`
	DateRead          *time.Time `json:"date_read,omitempty"`
	MessageSent       time.Time  `json:"message_sent"`
}

// ToDto projects the message for transport.
func (m Message) ToDto() MessageDto {
	return MessageDto{
		ID:                m.ID,
		SenderUsername:    m.SenderUsername,
		RecipientUsername: m.RecipientUsername,
		Content:           m.Content,
		DateRead:          m.DateRead,
		MessageSent:       m.MessageSent,
	}
}

// ToDtos projects a slice of messages, preserving order.
func ToDtos(msgs []Message) []MessageDto {
	out := make([]MessageDto, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ToDto())
	}
	return out
}
