package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"groupchat-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// CreateMessageParams carries everything needed to persist a message.
// At most one of ImageURL/AudioURL may be set.
type CreateMessageParams struct {
	GroupID   int64
	UserID    int64
	Content   string
	ImageURL  *string
	AudioURL  *string
	ReplyToID *int64
}

// MessageRow is a message joined with its author name, reply text and
// seen count, ready for serialization.
type MessageRow struct {
	models.Message
	Username  string         `db:"username"`
	ReplyText sql.NullString `db:"reply_text"`
	SeenCount int            `db:"seen_count"`
}

// Payload serializes the joined row for the wire.
func (r MessageRow) Payload() models.MessagePayload {
	var replyText *string
	if r.ReplyText.Valid {
		replyText = &r.ReplyText.String
	}
	return r.Message.Payload(r.Username, replyText, r.SeenCount)
}

// MessageRepository defines interactions for group messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, params CreateMessageParams) (models.Message, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	ListGroupMessages(ctx context.Context, groupID int64) ([]MessageRow, error)
	DeleteMessage(ctx context.Context, messageID int64) error
	MarkSeenUpTo(ctx context.Context, groupID, userID, lastSeenID int64) ([]models.SeenUpdate, error)
	SetPinned(ctx context.Context, messageID int64, pinned bool) error
}

// MessageRepo is a sqlx-backed implementation.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs a MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage persists a message. A dangling ReplyToID is the caller's
// problem; this layer stores what it is given.
func (r *MessageRepo) CreateMessage(ctx context.Context, params CreateMessageParams) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (group_id, user_id, content, image_url, audio_url, reply_to_id)
         VALUES ($1, $2, $3, $4, $5, $6)
         RETURNING id, group_id, user_id, content, image_url, audio_url, reply_to_id, pinned, created_at`,
		params.GroupID, params.UserID, params.Content, params.ImageURL, params.AudioURL, params.ReplyToID).
		StructScan(&msg)
	return msg, err
}

// GetMessage fetches a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT id, group_id, user_id, content, image_url, audio_url, reply_to_id, pinned, created_at
         FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListGroupMessages returns the group history, pinned first, then by
// creation time ascending.
func (r *MessageRepo) ListGroupMessages(ctx context.Context, groupID int64) ([]MessageRow, error) {
	rows := []MessageRow{}
	err := r.db.SelectContext(ctx, &rows,
		`SELECT m.id, m.group_id, m.user_id, m.content, m.image_url, m.audio_url,
                m.reply_to_id, m.pinned, m.created_at,
                u.username,
                rm.content AS reply_text,
                (SELECT COUNT(*) FROM message_seen s WHERE s.message_id = m.id) AS seen_count
         FROM messages m
         INNER JOIN users u ON u.id = m.user_id
         LEFT JOIN messages rm ON rm.id = m.reply_to_id
         WHERE m.group_id=$1
         ORDER BY m.pinned DESC, m.created_at ASC`, groupID)
	return rows, err
}

// DeleteMessage removes the row; replies to it are nulled by the schema.
func (r *MessageRepo) DeleteMessage(ctx context.Context, messageID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id=$1`, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// MarkSeenUpTo idempotently marks every group message with id <= lastSeenID
// as seen by the user and returns the updated counts for the touched range.
func (r *MessageRepo) MarkSeenUpTo(ctx context.Context, groupID, userID, lastSeenID int64) ([]models.SeenUpdate, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO message_seen (message_id, user_id)
         SELECT id, $2 FROM messages WHERE group_id=$1 AND id <= $3
         ON CONFLICT DO NOTHING`,
		groupID, userID, lastSeenID); err != nil {
		return nil, err
	}

	updates := []models.SeenUpdate{}
	if err = tx.SelectContext(ctx, &updates,
		`SELECT m.id, COUNT(s.user_id) AS seen_count
         FROM messages m
         LEFT JOIN message_seen s ON s.message_id = m.id
         WHERE m.group_id=$1 AND m.id <= $2
         GROUP BY m.id ORDER BY m.id ASC`,
		groupID, lastSeenID); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return updates, nil
}

// SetPinned flips the pinned flag.
func (r *MessageRepo) SetPinned(ctx context.Context, messageID int64, pinned bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET pinned=$2 WHERE id=$1`, messageID, pinned)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}
