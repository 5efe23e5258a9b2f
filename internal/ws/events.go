package ws

import (
	"encoding/json"
	"errors"
	"strconv"

	"groupchat-service/internal/models"
)

// Inbound event types accepted over a connection.
const (
	inboundTypeMessage = "message"
	inboundTypeSeen    = "seen"
	inboundTypeDelete  = "delete"
	inboundTypeTyping  = "typing"
	inboundTypeAudio   = "audio"
)

var (
	errBadEnvelope  = errors.New("undecodable event envelope")
	errUnknownEvent = errors.New("unknown event type")
)

// InboundEvent is the closed set of events a client may send. Decoding
// happens once at the boundary; the dispatcher switches exhaustively.
type InboundEvent interface {
	isInbound()
}

// MessageReceived asks to create and broadcast a text message, optionally
// replying to another message and/or attaching an encoded image.
type MessageReceived struct {
	Content string
	ReplyTo *int64
	Image   string
}

// SeenReceived marks every group message up to LastSeenID as seen.
type SeenReceived struct {
	LastSeenID int64
}

// DeleteReceived asks to delete a message.
type DeleteReceived struct {
	MessageID int64
}

// TypingReceived announces that the sender is typing. Carries no payload.
type TypingReceived struct{}

// AudioReceived asks to store an encoded audio attachment as a message.
type AudioReceived struct {
	Audio string
}

func (MessageReceived) isInbound() {}
func (SeenReceived) isInbound()    {}
func (DeleteReceived) isInbound()  {}
func (TypingReceived) isInbound()  {}
func (AudioReceived) isInbound()   {}

type inboundEnvelope struct {
	Type       string          `json:"type"`
	Message    string          `json:"message"`
	ReplyTo    json.RawMessage `json:"reply_to"`
	Image      string          `json:"image"`
	LastSeenID json.RawMessage `json:"last_seen_id"`
	MessageID  json.RawMessage `json:"message_id"`
	Audio      string          `json:"audio"`
}

// DecodeInbound parses one inbound frame. Any error means the frame is
// dropped; the session stays alive.
func DecodeInbound(raw []byte) (InboundEvent, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errBadEnvelope
	}

	switch env.Type {
	case inboundTypeMessage:
		// an unparsable reply_to degrades to no reply
		return MessageReceived{
			Content: env.Message,
			ReplyTo: parseOptionalID(env.ReplyTo),
			Image:   env.Image,
		}, nil
	case inboundTypeSeen:
		id := parseOptionalID(env.LastSeenID)
		if id == nil {
			return nil, errBadEnvelope
		}
		return SeenReceived{LastSeenID: *id}, nil
	case inboundTypeDelete:
		id := parseOptionalID(env.MessageID)
		if id == nil {
			return nil, errBadEnvelope
		}
		return DeleteReceived{MessageID: *id}, nil
	case inboundTypeTyping:
		return TypingReceived{}, nil
	case inboundTypeAudio:
		if env.Audio == "" {
			return nil, errBadEnvelope
		}
		return AudioReceived{Audio: env.Audio}, nil
	default:
		return nil, errUnknownEvent
	}
}

// parseOptionalID accepts a JSON number or a numeric string. Anything else
// (null, absent, garbage) yields nil.
func parseOptionalID(raw json.RawMessage) *int64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var num int64
	if err := json.Unmarshal(raw, &num); err == nil {
		return &num
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		if num, err := strconv.ParseInt(str, 10, 64); err == nil {
			return &num
		}
	}
	return nil
}

// OutboundEvent is the closed set of events fanned out to sessions,
// mirroring the wire protocol's outbound types.
type OutboundEvent interface {
	isOutbound()
}

// MessageEvent broadcasts a newly created text message.
type MessageEvent struct {
	Type    string                `json:"type"`
	Message models.MessagePayload `json:"message"`
}

// SeenUpdateEvent broadcasts refreshed seen counts.
type SeenUpdateEvent struct {
	Type    string              `json:"type"`
	Updates []models.SeenUpdate `json:"updates"`
}

// MessageDeletedEvent broadcasts a deletion.
type MessageDeletedEvent struct {
	Type      string `json:"type"`
	MessageID int64  `json:"message_id"`
}

// TypingEvent broadcasts a typing indicator.
type TypingEvent struct {
	Type string `json:"type"`
	User string `json:"user"`
}

// AudioEvent broadcasts a newly created audio message.
type AudioEvent struct {
	Type    string                `json:"type"`
	Message models.MessagePayload `json:"message"`
}

// OnlineCountEvent broadcasts the global-room presence count.
type OnlineCountEvent struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

func (MessageEvent) isOutbound()        {}
func (SeenUpdateEvent) isOutbound()     {}
func (MessageDeletedEvent) isOutbound() {}
func (TypingEvent) isOutbound()         {}
func (AudioEvent) isOutbound()          {}
func (OnlineCountEvent) isOutbound()    {}

// NewMessageEvent wraps a message payload for broadcast.
func NewMessageEvent(payload models.MessagePayload) MessageEvent {
	return MessageEvent{Type: "message", Message: payload}
}

// NewSeenUpdateEvent wraps seen-count updates for broadcast.
func NewSeenUpdateEvent(updates []models.SeenUpdate) SeenUpdateEvent {
	return SeenUpdateEvent{Type: "seen_update", Updates: updates}
}

// NewMessageDeletedEvent wraps a deletion notice for broadcast.
func NewMessageDeletedEvent(messageID int64) MessageDeletedEvent {
	return MessageDeletedEvent{Type: "message_deleted", MessageID: messageID}
}

// NewTypingEvent wraps a typing indicator for broadcast.
func NewTypingEvent(user string) TypingEvent {
	return TypingEvent{Type: "typing", User: user}
}

// NewAudioEvent wraps an audio message payload for broadcast.
func NewAudioEvent(payload models.MessagePayload) AudioEvent {
	return AudioEvent{Type: "audio", Message: payload}
}

// NewOnlineCountEvent wraps the online count for broadcast.
func NewOnlineCountEvent(count int) OnlineCountEvent {
	return OnlineCountEvent{Type: "online_count", Count: count}
}
