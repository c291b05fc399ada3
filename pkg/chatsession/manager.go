package chatsession

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/localp2p/discoveryd/pkg/wire"
)

// VerifiedChecker reports whether a peer is currently admitted. Satisfied
// by *registry.Registry; expressed as an interface here so chatsession has
// no import-time dependency on the registry package.
type VerifiedChecker interface {
	IsVerified(id peer.ID) bool
}

// Event is the chat layer's fan-out union, mirroring the tagging style
// used for wire.ChatMessage: exactly one field is set.
type Event struct {
	MessageSent         *MessageSentEvent
	MessageReceived     *MessageReceivedEvent
	PeerTyping          *PeerTypingEvent
	MessageAcknowledged *MessageAcknowledgedEvent
	MessageFailed       *MessageFailedEvent
	SessionEstablished  *SessionEstablishedEvent
	SessionClosed       *SessionClosedEvent
}

type MessageSentEvent struct {
	To        peer.ID
	MessageID string
}

type MessageReceivedEvent struct {
	From    peer.ID
	Message wire.ChatMessage
}

type PeerTypingEvent struct {
	From     peer.ID
	IsTyping bool
}

type MessageAcknowledgedEvent struct {
	From      peer.ID
	MessageID string
}

// MessageFailedEvent reports that a previously-enqueued message could not
// be delivered. The manager never produces this itself — it only records
// send intent — the engine emits it once a wire write for MessageID
// actually fails, via Manager.MarkSendFailed.
type MessageFailedEvent struct {
	To        peer.ID
	MessageID string
	Err       error
}

// SessionEstablishedEvent reports that a peer's chat session was just
// created, i.e. the first Send/HandleReceived/HandleRaw involving that
// peer.
type SessionEstablishedEvent struct {
	PeerID peer.ID
}

type SessionClosedEvent struct {
	PeerID peer.ID
}

// Manager owns every peer's chat Session and fans activity out onto a
// single buffered event channel.
type Manager struct {
	mu           sync.Mutex
	sessions     map[peer.ID]*Session
	verified     VerifiedChecker
	localPeerID  peer.ID
	events       chan Event
}

// NewManager creates a chat manager backed by verified for admission
// checks. The returned channel receives every chat event the manager
// produces; once its buffer of 256 fills, further events are dropped
// rather than blocking the manager.
func NewManager(verified VerifiedChecker, localPeerID peer.ID) (*Manager, <-chan Event) {
	events := make(chan Event, 256)
	m := &Manager{
		sessions:    make(map[peer.ID]*Session),
		verified:    verified,
		localPeerID: localPeerID,
		events:      events,
	}
	return m, events
}

// sessionFor returns id's session, lazily creating it. isNew reports
// whether this call created it, so callers can emit SessionEstablished
// exactly once outside the lock.
func (m *Manager) sessionFor(id peer.ID) (s *Session, isNew bool) {
	s, ok := m.sessions[id]
	if !ok {
		s = NewSession(id)
		m.sessions[id] = s
		return s, true
	}
	return s, false
}

func (m *Manager) emit(e Event) {
	select {
	case m.events <- e:
	default:
		// Buffer full: drop rather than block the caller holding the
		// session lock. A slow consumer losing an event is preferable to
		// stalling every future send/receive.
	}
}

// stampSender sets SenderPeerID on Text and TypingIndicator variants.
// A field that already holds the local ID is left unwritten.
func (m *Manager) stampSender(msg *wire.ChatMessage) {
	local := m.localPeerID.String()
	if msg.Text != nil && msg.Text.SenderPeerID != local {
		msg.Text.SenderPeerID = local
	}
	if msg.Typing != nil && msg.Typing.SenderPeerID != local {
		msg.Typing.SenderPeerID = local
	}
}

// Send verifies target is admitted, stamps the sender, enqueues the
// message for wire transmission, appends it to history, and emits
// MessageSent. The engine still performs the actual wire write; this
// method only records intent.
func (m *Manager) Send(target peer.ID, msg wire.ChatMessage) error {
	if !m.verified.IsVerified(target) {
		return &ErrNodeNotVerified{Target: target.String()}
	}
	m.stampSender(&msg)

	m.mu.Lock()
	session, isNew := m.sessionFor(target)
	session.AddToHistory(msg)
	session.Enqueue(msg)
	m.mu.Unlock()

	if isNew {
		m.emit(Event{SessionEstablished: &SessionEstablishedEvent{PeerID: target}})
	}
	if id, ok := msg.ID(); ok {
		m.emit(Event{MessageSent: &MessageSentEvent{To: target, MessageID: id}})
	}
	return nil
}

// Broadcast fans Send out over every target. The sender is stamped once so
// every recipient session sees the same SenderPeerID. If any target fails
// admission, ErrPartialFailure{n} is returned with all successful targets'
// MessageSent events still published.
func (m *Manager) Broadcast(targets []peer.ID, msg wire.ChatMessage) error {
	m.stampSender(&msg)

	var wg sync.WaitGroup
	failures := make([]bool, len(targets))
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target peer.ID) {
			defer wg.Done()
			// msg is already stamped; Send's own stampSender call finds the
			// local ID in place and only reads it, so concurrent calls are safe.
			if err := m.Send(target, msg); err != nil {
				failures[i] = true
			}
		}(i, target)
	}
	wg.Wait()

	failed := 0
	for _, f := range failures {
		if f {
			failed++
		}
	}
	if failed > 0 {
		return &ErrPartialFailure{NumFailed: failed}
	}
	return nil
}

// HandleReceived appends an inbound message to from's history and emits
// the matching event variant.
func (m *Manager) HandleReceived(from peer.ID, msg wire.ChatMessage) {
	m.mu.Lock()
	session, isNew := m.sessionFor(from)
	session.AddToHistory(msg)
	m.mu.Unlock()

	if isNew {
		m.emit(Event{SessionEstablished: &SessionEstablishedEvent{PeerID: from}})
	}

	switch {
	case msg.Text != nil:
		m.emit(Event{MessageReceived: &MessageReceivedEvent{From: from, Message: msg}})
	case msg.Typing != nil:
		m.emit(Event{PeerTyping: &PeerTypingEvent{From: from, IsTyping: msg.Typing.IsTyping}})
	case msg.Ack != nil:
		m.emit(Event{MessageAcknowledged: &MessageAcknowledgedEvent{From: from, MessageID: msg.Ack.MessageID}})
	}
}

// HandleRaw decodes a length-prefixed frame and routes it to HandleReceived.
func (m *Manager) HandleRaw(from peer.ID, data []byte) error {
	body, err := wire.ReadFrame(bytes.NewReader(data), wire.ChatRequestMaxFrame)
	if err != nil {
		return &ErrDeserialization{Cause: err}
	}
	var msg wire.ChatMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return &ErrDeserialization{Cause: err}
	}
	m.HandleReceived(from, msg)
	return nil
}

// PendingMessage dequeues one outbound frame for peerID, encoding it as a
// length-prefixed JSON frame ready for wire transmission. The engine calls
// this to drive its own send loop.
func (m *Manager) PendingMessage(peerID peer.ID) ([]byte, bool) {
	m.mu.Lock()
	session, ok := m.sessions[peerID]
	if !ok {
		m.mu.Unlock()
		return nil, false
	}
	msg, ok := session.Dequeue()
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	var buf bytes.Buffer
	if err := wire.WriteFrame(&buf, msg); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}

// MarkSendFailed emits MessageFailed for a message the engine dequeued via
// PendingMessage but could not write to the wire. The manager has no
// knowledge of transport failures itself; the engine calls this once a
// stream write for messageID errors out.
func (m *Manager) MarkSendFailed(to peer.ID, messageID string, cause error) {
	m.emit(Event{MessageFailed: &MessageFailedEvent{To: to, MessageID: messageID, Err: cause}})
}

// History returns a copy of peerID's history ring in insertion order.
func (m *Manager) History(peerID peer.ID) []wire.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[peerID]
	if !ok {
		return nil
	}
	return session.History()
}

// CloseSession removes a peer's session entirely and emits SessionClosed.
func (m *Manager) CloseSession(peerID peer.ID) {
	m.mu.Lock()
	_, existed := m.sessions[peerID]
	delete(m.sessions, peerID)
	m.mu.Unlock()
	if existed {
		m.emit(Event{SessionClosed: &SessionClosedEvent{PeerID: peerID}})
	}
}

// PendingCount returns the number of outbound messages awaiting
// transmission for peerID.
func (m *Manager) PendingCount(peerID peer.ID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[peerID]
	if !ok {
		return 0
	}
	return session.PendingCount()
}
