// Package chatsession implements the per-peer chat session layer: bounded
// message history, an outbound pending queue, and a manager that fans chat
// activity out onto a single event channel.
package chatsession

import (
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/localp2p/discoveryd/pkg/wire"
)

// MaxHistorySize bounds the number of messages retained per session; the
// oldest entry is evicted before a new one is appended once full.
const MaxHistorySize = 1000

// Session holds the chat state for a single peer: message history (both
// directions) and the outbound FIFO the engine drains to drive wire
// transmission.
type Session struct {
	peerID  peer.ID
	history []wire.ChatMessage
	pending []wire.ChatMessage
}

// NewSession creates an empty session for peerID.
func NewSession(peerID peer.ID) *Session {
	return &Session{peerID: peerID, history: make([]wire.ChatMessage, 0, MaxHistorySize)}
}

// PeerID returns the session's owning peer.
func (s *Session) PeerID() peer.ID { return s.peerID }

// AddToHistory appends msg, evicting the oldest entry first if the
// session is already at MaxHistorySize.
func (s *Session) AddToHistory(msg wire.ChatMessage) {
	if len(s.history) >= MaxHistorySize {
		s.history = s.history[1:]
	}
	s.history = append(s.history, msg)
}

// History returns a copy of the history ring in insertion order.
func (s *Session) History() []wire.ChatMessage {
	out := make([]wire.ChatMessage, len(s.history))
	copy(out, s.history)
	return out
}

// Enqueue adds an outbound message to the pending FIFO.
func (s *Session) Enqueue(msg wire.ChatMessage) {
	s.pending = append(s.pending, msg)
}

// Dequeue removes and returns the oldest pending message, if any.
func (s *Session) Dequeue() (wire.ChatMessage, bool) {
	if len(s.pending) == 0 {
		return wire.ChatMessage{}, false
	}
	msg := s.pending[0]
	s.pending = s.pending[1:]
	return msg, true
}

// PendingCount returns the number of outbound messages awaiting transmission.
func (s *Session) PendingCount() int {
	return len(s.pending)
}
