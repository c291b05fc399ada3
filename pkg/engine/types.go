package engine

import (
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/localp2p/discoveryd/pkg/wire"
)

// Command is the engine's inbound tagged union, mirroring the ChatMessage
// tagging approach: exactly one field is set. Each carries its own reply
// channel so the submitter observes completion without polling.
type Command struct {
	SendMessage      *SendMessageCommand
	BroadcastMessage *BroadcastMessageCommand
	Ping             *PingCommand
	Stop             *StopCommand
}

// SendMessageCommand sends text to a single peer. Reply is nil on success
// or an *Error.
type SendMessageCommand struct {
	Target  string
	Text    string
	ReplyTo chan error
}

// BroadcastMessageCommand fans text out to every target. Reply is nil on
// full success, *Error{Kind: KindPartialFailure} if some targets failed,
// or *Error{Kind: KindInvalidArgument} if any target failed to parse (in
// which case no sends are attempted at all).
type BroadcastMessageCommand struct {
	Targets []string
	Text    string
	ReplyTo chan error
}

// PingCommand proves the event loop is still servicing its command
// channel; it replies immediately with a nil error.
type PingCommand struct {
	ReplyTo chan error
}

// StopCommand shuts the engine down cleanly.
type StopCommand struct {
	ReplyTo chan error
}

// Event is the engine's egress tagged union for discovery/liveness
// lifecycle events. Exactly one field is set per value, published onto a
// single totally-ordered channel. Chat activity flows over the separate
// channel returned by Engine.ChatEvents.
type Event struct {
	Discovered         *DiscoveredEvent
	Expired            *ExpiredEvent
	Verified           *VerifiedEvent
	VerificationFailed *VerificationFailedEvent
	UserInfoReceived   *UserInfoReceivedEvent
	NodeRecovered      *NodeRecoveredEvent
	NodeOffline        *NodeOfflineEvent
}

type DiscoveredEvent struct {
	PeerID  peer.ID
	Address ma.Multiaddr
}

type ExpiredEvent struct {
	PeerID peer.ID
}

type VerifiedEvent struct {
	PeerID peer.ID
}

type VerificationFailedEvent struct {
	PeerID peer.ID
	Reason string
}

type UserInfoReceivedEvent struct {
	PeerID peer.ID
	Info   wire.UserInfo
}

type NodeRecoveredEvent struct {
	PeerID peer.ID
	RTT    time.Duration
}

type NodeOfflineEvent struct {
	PeerID peer.ID
}
