package ws

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"groupchat-service/internal/blob"
	"groupchat-service/internal/observability"
	"groupchat-service/internal/repositories"
)

const anonymousHandle = "Anon"

// Dispatcher validates inbound events, applies the matching domain
// mutation and constructs the broadcast. It holds no per-call state: each
// dispatch consults only the session's bound identity/group and the
// repositories.
type Dispatcher struct {
	groups   repositories.GroupRepository
	messages repositories.MessageRepository
	cache    repositories.MessageCache
	blobs    blob.Store
	hub      *Hub
	logger   *zap.Logger
}

// NewDispatcher wires the dispatcher's collaborators.
func NewDispatcher(
	groups repositories.GroupRepository,
	messages repositories.MessageRepository,
	cache repositories.MessageCache,
	blobs blob.Store,
	hub *Hub,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		groups:   groups,
		messages: messages,
		cache:    cache,
		blobs:    blobs,
		hub:      hub,
		logger:   logger,
	}
}

// Dispatch handles one inbound frame from a group session. A frame that
// fails to decode is dropped; nothing here terminates the session.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *Client, raw []byte) {
	event, err := DecodeInbound(raw)
	if err != nil {
		observability.IncWSEvent("group", "frame_dropped")
		d.logger.Debug("dropping inbound frame", zap.Error(err))
		return
	}

	switch ev := event.(type) {
	case MessageReceived:
		d.handleMessage(ctx, sess, ev)
	case SeenReceived:
		d.handleSeen(ctx, sess, ev)
	case DeleteReceived:
		d.handleDelete(ctx, sess, ev)
	case TypingReceived:
		d.handleTyping(sess)
	case AudioReceived:
		d.handleAudio(ctx, sess, ev)
	}
}

// DispatchRoom handles one inbound frame from a global-room session. The
// room carries no persistence; only typing indicators are meaningful.
func (d *Dispatcher) DispatchRoom(ctx context.Context, sess *Client, raw []byte) {
	event, err := DecodeInbound(raw)
	if err != nil {
		observability.IncWSEvent("room", "frame_dropped")
		return
	}

	if _, ok := event.(TypingReceived); ok {
		d.hub.BroadcastRoom(NewTypingEvent(d.displayHandle(sess)))
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, sess *Client, ev MessageReceived) {
	if sess.Anonymous() {
		return
	}

	content := strings.TrimSpace(ev.Content)

	// a reply target that no longer exists, fails to parse or belongs to
	// another group degrades to no reply
	var replyToID *int64
	var replyText *string
	if ev.ReplyTo != nil {
		target, err := d.messages.GetMessage(ctx, *ev.ReplyTo)
		switch {
		case err == nil && target.GroupID == sess.groupID:
			replyToID = &target.ID
			replyText = &target.Content
		case err != nil && !errors.Is(err, repositories.ErrMessageNotFound):
			d.logger.Error("resolve reply target", zap.Error(err), zap.Int64("reply_to", *ev.ReplyTo))
		}
	}

	var imageURL *string
	if ev.Image != "" {
		url, ok := d.storeAttachment(ctx, ev.Image)
		if !ok {
			return
		}
		imageURL = &url
	}

	msg, err := d.messages.CreateMessage(ctx, repositories.CreateMessageParams{
		GroupID:   sess.groupID,
		UserID:    sess.userID,
		Content:   content,
		ImageURL:  imageURL,
		ReplyToID: replyToID,
	})
	if err != nil {
		d.logger.Error("create message", zap.Error(err), zap.Int64("group_id", sess.groupID))
		return
	}

	d.cache.Invalidate(ctx, sess.groupID)
	observability.IncWSEvent("group", "message")
	d.hub.BroadcastGroup(sess.groupID, NewMessageEvent(msg.Payload(sess.username, replyText, 0)))
}

func (d *Dispatcher) handleSeen(ctx context.Context, sess *Client, ev SeenReceived) {
	if sess.Anonymous() {
		return
	}

	updates, err := d.messages.MarkSeenUpTo(ctx, sess.groupID, sess.userID, ev.LastSeenID)
	if err != nil {
		d.logger.Error("mark seen", zap.Error(err), zap.Int64("group_id", sess.groupID))
		return
	}

	observability.IncWSEvent("group", "seen")
	d.hub.BroadcastGroup(sess.groupID, NewSeenUpdateEvent(updates))
}

func (d *Dispatcher) handleDelete(ctx context.Context, sess *Client, ev DeleteReceived) {
	if sess.Anonymous() {
		return
	}

	msg, err := d.messages.GetMessage(ctx, ev.MessageID)
	if err != nil {
		if !errors.Is(err, repositories.ErrMessageNotFound) {
			d.logger.Error("load message for delete", zap.Error(err), zap.Int64("message_id", ev.MessageID))
		}
		return
	}

	// author or the group's admin; anyone else is a silent no-op
	if msg.UserID != sess.userID {
		group, err := d.groups.GetGroup(ctx, msg.GroupID)
		if err != nil {
			if !errors.Is(err, repositories.ErrGroupNotFound) {
				d.logger.Error("load group for delete", zap.Error(err), zap.Int64("group_id", msg.GroupID))
			}
			return
		}
		if group.AdminID != sess.userID {
			return
		}
	}

	if err := d.messages.DeleteMessage(ctx, msg.ID); err != nil {
		// lost a race with another delete; nothing to broadcast
		if !errors.Is(err, repositories.ErrMessageNotFound) {
			d.logger.Error("delete message", zap.Error(err), zap.Int64("message_id", msg.ID))
		}
		return
	}

	d.cache.Invalidate(ctx, msg.GroupID)
	observability.IncWSEvent("group", "delete")
	d.hub.BroadcastGroup(msg.GroupID, NewMessageDeletedEvent(msg.ID))
}

func (d *Dispatcher) handleTyping(sess *Client) {
	observability.IncWSEvent("group", "typing")
	d.hub.BroadcastGroup(sess.groupID, NewTypingEvent(d.displayHandle(sess)))
}

func (d *Dispatcher) handleAudio(ctx context.Context, sess *Client, ev AudioReceived) {
	if sess.Anonymous() {
		return
	}

	url, ok := d.storeAttachment(ctx, ev.Audio)
	if !ok {
		return
	}

	msg, err := d.messages.CreateMessage(ctx, repositories.CreateMessageParams{
		GroupID:  sess.groupID,
		UserID:   sess.userID,
		AudioURL: &url,
	})
	if err != nil {
		d.logger.Error("create audio message", zap.Error(err), zap.Int64("group_id", sess.groupID))
		return
	}

	d.cache.Invalidate(ctx, sess.groupID)
	observability.IncWSEvent("group", "audio")
	d.hub.BroadcastGroup(sess.groupID, NewAudioEvent(msg.Payload(sess.username, nil, 0)))
}

// storeAttachment decodes an encoded attachment and hands it to the blob
// store. Failure fails the single event, never the session.
func (d *Dispatcher) storeAttachment(ctx context.Context, encoded string) (string, bool) {
	att, err := blob.DecodeDataURL(encoded)
	if err != nil {
		observability.IncWSEvent("group", "bad_attachment")
		d.logger.Debug("dropping event with malformed attachment", zap.Error(err))
		return "", false
	}

	url, err := d.blobs.Save(ctx, att.Data, att.Ext)
	if err != nil {
		d.logger.Error("store attachment", zap.Error(err))
		return "", false
	}
	return url, true
}

func (d *Dispatcher) displayHandle(sess *Client) string {
	if sess.Anonymous() || sess.username == "" {
		return anonymousHandle
	}
	return sess.username
}
