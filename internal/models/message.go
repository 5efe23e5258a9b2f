package models

import (
	"database/sql"
	"time"
)

// timestampLayout is the wire format for message timestamps.
const timestampLayout = "2006-01-02 15:04:05"

// Message is a single group message. GroupID never changes after creation
// and at most one of ImageURL/AudioURL is set.
type Message struct {
	ID        int64          `db:"id"`
	GroupID   int64          `db:"group_id"`
	UserID    int64          `db:"user_id"`
	Content   string         `db:"content"`
	ImageURL  sql.NullString `db:"image_url"`
	AudioURL  sql.NullString `db:"audio_url"`
	ReplyToID sql.NullInt64  `db:"reply_to_id"`
	Pinned    bool           `db:"pinned"`
	CreatedAt time.Time      `db:"created_at"`
}

// SeenUpdate is one entry of a seen_update broadcast.
type SeenUpdate struct {
	ID        int64 `db:"id" json:"id"`
	SeenCount int   `db:"seen_count" json:"seen_count"`
}

// MessagePayload is the serialized message exchanged over the socket and
// the history endpoint.
type MessagePayload struct {
	ID        int64   `json:"id"`
	User      string  `json:"user"`
	UserID    int64   `json:"user_id"`
	Content   string  `json:"content"`
	ImageURL  *string `json:"image_url"`
	ReplyTo   *int64  `json:"reply_to"`
	ReplyText *string `json:"reply_text"`
	SeenCount int     `json:"seen_count"`
	Timestamp string  `json:"timestamp"`
	Audio     *string `json:"audio"`
}

// Payload serializes the message for the wire. Username, reply text and
// seen count live outside the row, so the caller resolves them.
func (m Message) Payload(username string, replyText *string, seenCount int) MessagePayload {
	p := MessagePayload{
		ID:        m.ID,
		User:      username,
		UserID:    m.UserID,
		Content:   m.Content,
		ReplyText: replyText,
		SeenCount: seenCount,
		Timestamp: m.CreatedAt.Format(timestampLayout),
	}
	if m.ImageURL.Valid {
		p.ImageURL = &m.ImageURL.String
	}
	if m.AudioURL.Valid {
		p.Audio = &m.AudioURL.String
	}
	if m.ReplyToID.Valid {
		p.ReplyTo = &m.ReplyToID.Int64
	}
	return p
}
