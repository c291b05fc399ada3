package wire

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// ChatMessage is a tagged union with exactly one of Text, Typing, or Ack
// set, matching the single-top-level-key JSON shape produced by the
// original Rust `serde` enum tagging (`{"Text": {...}}`, and so on).
type ChatMessage struct {
	Text    *TextMessage     `json:"-"`
	Typing  *TypingIndicator `json:"-"`
	Ack     *MessageAck      `json:"-"`
}

// TextMessage carries free-form chat content.
type TextMessage struct {
	ID           string  `json:"id"`
	SenderPeerID string  `json:"sender_peer_id"`
	Content      string  `json:"content"`
	Timestamp    int64   `json:"timestamp"`
	ReplyTo      *string `json:"reply_to,omitempty"`
}

// TypingIndicator signals that a peer is composing a message.
type TypingIndicator struct {
	SenderPeerID string `json:"sender_peer_id"`
	IsTyping     bool   `json:"is_typing"`
}

// MessageAck confirms receipt of a message by ID.
type MessageAck struct {
	MessageID string `json:"message_id"`
	Received  bool   `json:"received"`
	Timestamp int64  `json:"timestamp"`
}

// NewText builds a Text ChatMessage with a freshly generated UUID.
// SenderPeerID must be stamped by the caller before transmission.
func NewText(content string, nowMillis int64) ChatMessage {
	return ChatMessage{Text: &TextMessage{
		ID:        uuid.NewString(),
		Content:   content,
		Timestamp: nowMillis,
	}}
}

// ID returns the message's identifying ID: TextMessage.ID or
// MessageAck.MessageID. TypingIndicator has none.
func (m ChatMessage) ID() (string, bool) {
	switch {
	case m.Text != nil:
		return m.Text.ID, true
	case m.Ack != nil:
		return m.Ack.MessageID, true
	default:
		return "", false
	}
}

// SenderPeerID returns the sending peer, when the variant carries one.
func (m ChatMessage) SenderPeerID() (string, bool) {
	switch {
	case m.Text != nil:
		return m.Text.SenderPeerID, true
	case m.Typing != nil:
		return m.Typing.SenderPeerID, true
	default:
		return "", false
	}
}

// MarshalJSON emits the single discriminant-keyed object shape.
func (m ChatMessage) MarshalJSON() ([]byte, error) {
	switch {
	case m.Text != nil:
		return json.Marshal(map[string]*TextMessage{"Text": m.Text})
	case m.Typing != nil:
		return json.Marshal(map[string]*TypingIndicator{"TypingIndicator": m.Typing})
	case m.Ack != nil:
		return json.Marshal(map[string]*MessageAck{"Ack": m.Ack})
	default:
		return nil, fmt.Errorf("wire: empty ChatMessage has no variant set")
	}
}

// UnmarshalJSON parses the single discriminant-keyed object shape.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("wire: ChatMessage must have exactly one variant key, got %d", len(raw))
	}
	if v, ok := raw["Text"]; ok {
		var t TextMessage
		if err := json.Unmarshal(v, &t); err != nil {
			return err
		}
		m.Text = &t
		return nil
	}
	if v, ok := raw["TypingIndicator"]; ok {
		var t TypingIndicator
		if err := json.Unmarshal(v, &t); err != nil {
			return err
		}
		m.Typing = &t
		return nil
	}
	if v, ok := raw["Ack"]; ok {
		var a MessageAck
		if err := json.Unmarshal(v, &a); err != nil {
			return err
		}
		m.Ack = &a
		return nil
	}
	return fmt.Errorf("wire: unknown ChatMessage variant")
}

// ChatResponse is the fixed ack returned by the chat request/response
// protocol: `{"received": true}`.
type ChatResponse struct {
	Received bool `json:"received"`
}
