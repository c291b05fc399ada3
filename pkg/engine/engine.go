// Package engine implements the Managed Discovery Engine: the single
// coordinator that multiplexes multicast discovery, identity verification,
// liveness probing, user-info exchange and chat messaging over one libp2p
// host, maintains a cross-protocol view of every verified peer, and
// publishes a totally-ordered lifecycle event stream plus a separate chat
// event stream to its consumers.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/event"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	pingsvc "github.com/libp2p/go-libp2p/p2p/protocol/ping"
	ma "github.com/multiformats/go-multiaddr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/localp2p/discoveryd/internal/validate"
	"github.com/localp2p/discoveryd/pkg/chatsession"
	"github.com/localp2p/discoveryd/pkg/health"
	"github.com/localp2p/discoveryd/pkg/registry"
	"github.com/localp2p/discoveryd/pkg/telemetry"
	"github.com/localp2p/discoveryd/pkg/wire"
)

// Engine is the handle returned by New. It holds no package-level state;
// every consumer operation is a method on an explicitly constructed value.
type Engine struct {
	cfg Config

	host    host.Host
	metrics *telemetry.Metrics

	registry *registry.Registry
	health   *health.Tracker

	chat       *chatsession.Manager
	chatEvents <-chan chatsession.Event

	pingSvc *pingsvc.PingService

	events chan Event

	cmds    chan Command
	stopped atomic.Bool

	lastEventNano atomic.Int64

	localInfoMu   sync.RWMutex
	localUserInfo wire.UserInfo

	userInfoMu sync.RWMutex
	userInfo   map[peer.ID]wire.UserInfo

	connMu            sync.Mutex
	activeConnections map[peer.ID]uint32

	livenessMu     sync.Mutex
	livenessCancel map[peer.ID]context.CancelFunc

	mdnsMu      sync.Mutex
	mdnsSeen    map[peer.ID]time.Time
	dialLimiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	eg     *errgroup.Group

	subBehaviour *subBehaviourStack
}

// New constructs an Engine. If keypair is nil, an ephemeral Ed25519 key is
// generated — the caller (cmd/localp2pd) is responsible for resolving
// persistent-vs-ephemeral identity via internal/identity before calling New.
func New(cfg Config, keypair crypto.PrivKey, localUserInfo wire.UserInfo, metrics *telemetry.Metrics) (*Engine, error) {
	if keypair == nil {
		var err error
		keypair, _, err = crypto.GenerateKeyPair(crypto.Ed25519, -1)
		if err != nil {
			return nil, newError(KindIO, "generate ephemeral keypair", err)
		}
	}

	if cfg.DeviceName != "" {
		if err := validate.DeviceName(cfg.DeviceName); err != nil {
			return nil, errInvalidArgument("invalid device name", err)
		}
	}
	if err := validate.MdnsServiceTag(cfg.MdnsServiceTag); err != nil {
		return nil, errInvalidArgument("invalid mdns service tag", err)
	}

	agentVersion := registry.BuildAgentVersion(cfg.AgentPrefix, "1.0.0", cfg.DeviceName)

	h, err := libp2p.New(
		libp2p.Identity(keypair),
		libp2p.ListenAddrStrings(cfg.ListenAddresses...),
		libp2p.ProtocolVersion(cfg.ProtocolVersion),
		libp2p.UserAgent(agentVersion),
	)
	if err != nil {
		return nil, newError(KindIO, "construct libp2p host", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		cfg:               cfg,
		host:              h,
		metrics:           metrics,
		registry:          registry.New(cfg.registryConfig()),
		health:            health.NewTracker(cfg.healthConfig()),
		events:            make(chan Event, 1024),
		cmds:              make(chan Command, 64),
		localUserInfo:     localUserInfo,
		userInfo:          make(map[peer.ID]wire.UserInfo),
		activeConnections: make(map[peer.ID]uint32),
		livenessCancel:    make(map[peer.ID]context.CancelFunc),
		mdnsSeen:          make(map[peer.ID]time.Time),
		dialLimiter:       rate.NewLimiter(rate.Limit(5), 10),
		ctx:               ctx,
		cancel:            cancel,
		eg:                &errgroup.Group{},
	}
	e.chat, e.chatEvents = chatsession.NewManager(e.registry, h.ID())
	e.pingSvc = pingsvc.NewPingService(h)

	return e, nil
}

// Start spins up every sub-behaviour goroutine: mDNS discovery, identity
// verification, connection accounting, the registry's cleanup reaper, and
// the command-processing loop. Start does not block.
func (e *Engine) Start() error {
	sb, err := newSubBehaviourStack(e)
	if err != nil {
		return err
	}
	e.subBehaviour = sb

	e.host.Network().Notify(&connNotifiee{e: e})
	e.host.SetStreamHandler(protocol.ID(wire.UserInfoProtocolID), e.handleUserInfoStream)
	e.host.SetStreamHandler(protocol.ID(wire.ChatProtocolID), e.handleChatStream)

	e.eg.Go(func() error { e.runCommandLoop(); return nil })
	e.eg.Go(func() error { e.registry.SpawnCleanupTask(e.ctx, e.onCleanupReaped); return nil })
	e.eg.Go(func() error { e.runMdnsExpiryLoop(); return nil })

	return nil
}

// LocalPeerID returns the engine's libp2p peer identifier.
func (e *Engine) LocalPeerID() peer.ID { return e.host.ID() }

// DeviceName returns the configured local device name.
func (e *Engine) DeviceName() string { return e.cfg.DeviceName }

// ListVerifiedNodes returns a snapshot of the registry's current members.
func (e *Engine) ListVerifiedNodes() []registry.VerifiedNode { return e.registry.List() }

// Events returns the engine's lifecycle event stream (Discovered, Expired,
// Verified, VerificationFailed, UserInfoReceived, NodeRecovered,
// NodeOffline). Consumers that stop draining it will see events dropped
// once the internal buffer fills, matching the spec's tolerance for a
// dropped consumer.
func (e *Engine) Events() <-chan Event { return e.events }

// ChatEvents returns the chat layer's event stream, kept separate from
// Events per the specification.
func (e *Engine) ChatEvents() <-chan chatsession.Event { return e.chatEvents }

func (e *Engine) emit(ev Event) {
	e.lastEventNano.Store(time.Now().UnixNano())
	select {
	case e.events <- ev:
	default:
	}
}

// --- Command submission API ---

// SendMessage submits a SendMessage command and waits for its reply.
func (e *Engine) SendMessage(ctx context.Context, target, text string) error {
	reply := make(chan error, 1)
	return e.submit(ctx, Command{SendMessage: &SendMessageCommand{Target: target, Text: text, ReplyTo: reply}}, reply)
}

// BroadcastMessage submits a BroadcastMessage command and waits for its reply.
func (e *Engine) BroadcastMessage(ctx context.Context, targets []string, text string) error {
	reply := make(chan error, 1)
	return e.submit(ctx, Command{BroadcastMessage: &BroadcastMessageCommand{Targets: targets, Text: text, ReplyTo: reply}}, reply)
}

// Ping proves the event loop is still servicing its command channel.
func (e *Engine) Ping(ctx context.Context) error {
	reply := make(chan error, 1)
	return e.submit(ctx, Command{Ping: &PingCommand{ReplyTo: reply}}, reply)
}

// Stop submits a Stop command, which shuts the engine down cleanly. Any
// command submitted after Stop completes fails with KindNotInitialized.
func (e *Engine) Stop(ctx context.Context) error {
	reply := make(chan error, 1)
	return e.submit(ctx, Command{Stop: &StopCommand{ReplyTo: reply}}, reply)
}

func (e *Engine) submit(ctx context.Context, cmd Command, reply chan error) error {
	if e.stopped.Load() {
		return errNotInitialized()
	}
	select {
	case e.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsEventLoopAlive combines a 100ms ping round-trip with a 10s
// last-event-seen check; a supervisor restarts the engine if either fails.
func (e *Engine) IsEventLoopAlive(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if err := e.Ping(pctx); err != nil {
		return false
	}
	last := time.Unix(0, e.lastEventNano.Load())
	return e.lastEventNano.Load() == 0 || time.Since(last) < 10*time.Second
}

// RestartDiscovery tears down the sub-behaviour stack (mDNS, identify
// subscription, liveness probes) while keeping the registry, the keypair
// (hence peer id), the device name, and the local user info; then rebuilds
// it. It must not emit lifecycle events for peers that remain in the
// registry across the transition, so it does not touch the registry at all.
func (e *Engine) RestartDiscovery() error {
	if e.subBehaviour != nil {
		e.subBehaviour.close()
	}
	e.livenessMu.Lock()
	for id, cancel := range e.livenessCancel {
		cancel()
		delete(e.livenessCancel, id)
	}
	e.livenessMu.Unlock()
	e.mdnsMu.Lock()
	e.mdnsSeen = make(map[peer.ID]time.Time)
	e.mdnsMu.Unlock()

	sb, err := newSubBehaviourStack(e)
	if err != nil {
		return newError(KindIO, "restart discovery", err)
	}
	e.subBehaviour = sb
	for _, n := range e.registry.List() {
		e.startLivenessProbe(n.PeerID)
	}
	return nil
}

// shutdown cancels every background goroutine and closes the libp2p host.
// Called once, from the command loop, after a Stop command is dispatched.
func (e *Engine) shutdown() {
	e.cancel()
	if e.subBehaviour != nil {
		e.subBehaviour.close()
	}
	_ = e.eg.Wait()
	e.host.Close()
}

// --- command dispatch ---

func (e *Engine) runCommandLoop() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case cmd, ok := <-e.cmds:
			if !ok {
				return
			}
			e.dispatch(cmd)
			if cmd.Stop != nil {
				return
			}
		}
	}
}

func (e *Engine) dispatch(cmd Command) {
	switch {
	case cmd.SendMessage != nil:
		e.handleSendMessage(cmd.SendMessage)
	case cmd.BroadcastMessage != nil:
		e.handleBroadcastMessage(cmd.BroadcastMessage)
	case cmd.Ping != nil:
		cmd.Ping.ReplyTo <- nil
	case cmd.Stop != nil:
		e.stopped.Store(true)
		cmd.Stop.ReplyTo <- nil
		go e.shutdown()
	}
}

func (e *Engine) handleSendMessage(cmd *SendMessageCommand) {
	target, err := peer.Decode(cmd.Target)
	if err != nil {
		cmd.ReplyTo <- errInvalidArgument("invalid peer id", err)
		return
	}
	if cmd.Text == "" {
		cmd.ReplyTo <- errInvalidArgument("empty message text", nil)
		return
	}
	msg := wire.NewText(cmd.Text, time.Now().UnixMilli())
	if err := e.chat.Send(target, msg); err != nil {
		var notVerified *chatsession.ErrNodeNotVerified
		if errors.As(err, &notVerified) {
			cmd.ReplyTo <- errNodeNotVerified(notVerified.Target)
			return
		}
		cmd.ReplyTo <- err
		return
	}
	if e.metrics != nil {
		e.metrics.ChatMessagesSentTotal.WithLabelValues("text").Inc()
	}
	if err := e.ensureConnected(target); err != nil {
		cmd.ReplyTo <- errSendFailed("peer unreachable", err)
		return
	}
	e.transmitPending(target)
	cmd.ReplyTo <- nil
}

func (e *Engine) handleBroadcastMessage(cmd *BroadcastMessageCommand) {
	targets := make([]peer.ID, 0, len(cmd.Targets))
	for _, t := range cmd.Targets {
		id, err := peer.Decode(t)
		if err != nil {
			cmd.ReplyTo <- errInvalidArgument(fmt.Sprintf("invalid peer id %q", t), err)
			return
		}
		targets = append(targets, id)
	}
	if cmd.Text == "" {
		cmd.ReplyTo <- errInvalidArgument("empty message text", nil)
		return
	}

	msg := wire.NewText(cmd.Text, time.Now().UnixMilli())
	sendErr := e.chat.Broadcast(targets, msg)
	for _, t := range targets {
		if e.ensureConnected(t) == nil {
			e.transmitPending(t)
		}
	}
	if sendErr != nil {
		var partial *chatsession.ErrPartialFailure
		if errors.As(sendErr, &partial) {
			cmd.ReplyTo <- errPartialFailure(partial.NumFailed)
			return
		}
		cmd.ReplyTo <- sendErr
		return
	}
	if e.metrics != nil {
		e.metrics.ChatMessagesSentTotal.WithLabelValues("text").Add(float64(len(targets)))
	}
	cmd.ReplyTo <- nil
}

// ensureConnected implements the spec's lazy-connection policy: dial every
// known address for peer p from the registry, wait a short settle delay,
// then report whether a connection now exists.
func (e *Engine) ensureConnected(p peer.ID) error {
	if e.host.Network().Connectedness(p) == network.Connected {
		return nil
	}
	node, ok := e.registry.Get(p)
	if !ok || len(node.Addresses) == 0 {
		return fmt.Errorf("no known addresses for peer")
	}
	ctx, cancel := context.WithTimeout(e.ctx, 5*time.Second)
	defer cancel()
	if err := e.host.Connect(ctx, peer.AddrInfo{ID: p, Addrs: node.Addresses}); err != nil {
		return err
	}
	time.Sleep(200 * time.Millisecond)
	if e.host.Network().Connectedness(p) != network.Connected {
		return fmt.Errorf("still not connected after settle delay")
	}
	return nil
}

// transmitPending drains one outbound frame for target and writes it over
// a fresh chat stream. Failures are reported to the chat manager as
// MessageFailed rather than propagated, matching the spec's "codec and
// transport errors are always recovered locally" policy.
func (e *Engine) transmitPending(target peer.ID) {
	data, ok := e.chat.PendingMessage(target)
	if !ok {
		return
	}
	msgID, _ := decodeFrameMessageID(data)
	if err := e.writeChatFrame(target, data); err != nil {
		slog.Debug("chat transmit failed", "peer", target, "err", err)
		e.chat.MarkSendFailed(target, msgID, err)
		if e.metrics != nil {
			e.metrics.ChatMessagesFailedTotal.Inc()
		}
	}
}

func (e *Engine) writeChatFrame(target peer.ID, data []byte) error {
	ctx, cancel := context.WithTimeout(e.ctx, 10*time.Second)
	defer cancel()
	s, err := e.host.NewStream(ctx, target, protocol.ID(wire.ChatProtocolID))
	if err != nil {
		return err
	}
	defer s.Close()
	s.SetDeadline(time.Now().Add(10 * time.Second))
	if _, err := s.Write(data); err != nil {
		s.Reset()
		return err
	}
	s.CloseWrite()
	var resp wire.ChatResponse
	if err := wire.ReadJSON(s, wire.ChatResponseMaxFrame, &resp); err != nil {
		return err
	}
	return nil
}

func decodeFrameMessageID(data []byte) (string, bool) {
	if len(data) < 4 {
		return "", false
	}
	var msg wire.ChatMessage
	if err := json.Unmarshal(data[4:], &msg); err != nil {
		return "", false
	}
	return msg.ID()
}

// --- stream handlers (user-info and chat responders) ---

func (e *Engine) handleUserInfoStream(s network.Stream) {
	defer s.Close()
	s.SetDeadline(time.Now().Add(10 * time.Second))
	var req wire.UserInfoRequest
	if err := wire.ReadJSON(s, wire.DefaultMaxFrame, &req); err != nil {
		s.Reset()
		return
	}
	e.localInfoMu.RLock()
	info := e.localUserInfo
	e.localInfoMu.RUnlock()
	if err := wire.WriteFrame(s, info); err != nil {
		s.Reset()
	}
}

func (e *Engine) requestUserInfo(p peer.ID) {
	ctx, cancel := context.WithTimeout(e.ctx, 10*time.Second)
	defer cancel()
	s, err := e.host.NewStream(ctx, p, protocol.ID(wire.UserInfoProtocolID))
	if err != nil {
		slog.Debug("user-info request failed", "peer", p, "err", err)
		return
	}
	defer s.Close()
	s.SetDeadline(time.Now().Add(10 * time.Second))
	if err := wire.WriteFrame(s, wire.UserInfoRequest{}); err != nil {
		s.Reset()
		return
	}
	var info wire.UserInfo
	if err := wire.ReadJSON(s, wire.DefaultMaxFrame, &info); err != nil {
		slog.Debug("user-info decode failed", "peer", p, "err", err)
		return
	}
	e.userInfoMu.Lock()
	_, had := e.userInfo[p]
	e.userInfo[p] = info
	e.userInfoMu.Unlock()
	if !had {
		e.emit(Event{UserInfoReceived: &UserInfoReceivedEvent{PeerID: p, Info: info}})
	}
}

func (e *Engine) handleChatStream(s network.Stream) {
	defer s.Close()
	s.SetDeadline(time.Now().Add(10 * time.Second))
	body, err := wire.ReadFrame(s, wire.ChatRequestMaxFrame)
	if err != nil {
		s.Reset()
		return
	}
	var msg wire.ChatMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		// Chat decode error: logged, inbound message discarded, no event.
		slog.Debug("chat decode failed", "peer", s.Conn().RemotePeer(), "err", err)
		s.Reset()
		return
	}
	from := s.Conn().RemotePeer()
	e.chat.HandleReceived(from, msg)
	if e.metrics != nil {
		e.metrics.ChatMessagesReceivedTotal.WithLabelValues(chatKind(msg)).Inc()
	}
	if err := wire.WriteFrame(s, wire.ChatResponse{Received: true}); err != nil {
		s.Reset()
	}
}

func chatKind(msg wire.ChatMessage) string {
	switch {
	case msg.Text != nil:
		return "text"
	case msg.Typing != nil:
		return "typing"
	case msg.Ack != nil:
		return "ack"
	default:
		return "unknown"
	}
}

// --- identity verification (driven by the identify sub-behaviour) ---

func (e *Engine) onIdentifyCompleted(p peer.ID) {
	if p == e.host.ID() {
		return
	}
	pv, _ := e.host.Peerstore().Get(p, "ProtocolVersion")
	av, _ := e.host.Peerstore().Get(p, "AgentVersion")
	protocolVersion, _ := pv.(string)
	agentVersion, _ := av.(string)

	if err := e.registry.VerifyNodeInfo(protocolVersion, agentVersion); err != nil {
		if e.metrics != nil {
			e.metrics.VerificationTotal.WithLabelValues("failed").Inc()
		}
		e.emit(Event{VerificationFailed: &VerificationFailedEvent{PeerID: p, Reason: err.Error()}})
		return
	}

	addrs := e.host.Peerstore().Addrs(p)
	node := registry.NewVerifiedNode(p, addrs, protocolVersion, agentVersion)
	isNew := e.registry.AddOrUpdate(node)
	if e.metrics != nil {
		e.metrics.VerifiedNodes.Set(float64(e.registry.Count()))
	}
	if !isNew {
		return
	}
	if e.metrics != nil {
		e.metrics.VerificationTotal.WithLabelValues("verified").Inc()
	}
	e.emit(Event{Verified: &VerifiedEvent{PeerID: p}})
	go e.requestUserInfo(p)
	e.startLivenessProbe(p)
}

// --- connection accounting ---

type connNotifiee struct{ e *Engine }

func (n *connNotifiee) Listen(network.Network, ma.Multiaddr)      {}
func (n *connNotifiee) ListenClose(network.Network, ma.Multiaddr) {}

func (n *connNotifiee) Connected(_ network.Network, c network.Conn) {
	n.e.onConnectionEstablished(c.RemotePeer())
}

func (n *connNotifiee) Disconnected(_ network.Network, c network.Conn) {
	n.e.onConnectionClosed(c.RemotePeer())
}

func (e *Engine) onConnectionEstablished(p peer.ID) {
	e.connMu.Lock()
	e.activeConnections[p]++
	e.connMu.Unlock()
}

func (e *Engine) onConnectionClosed(p peer.ID) {
	e.connMu.Lock()
	n := e.activeConnections[p]
	if n > 0 {
		n--
	}
	if n == 0 {
		delete(e.activeConnections, p)
	} else {
		e.activeConnections[p] = n
	}
	e.connMu.Unlock()
	if n != 0 {
		return
	}
	if _, existed := e.registry.Remove(p); existed {
		e.handleNodeOffline(p)
	}
}

// handleNodeOffline centralizes the bookkeeping the spec requires whenever
// a peer leaves the registry via either the connection-close path or the
// liveness path: drop cached user info, forget health state, cancel any
// running probe, and emit exactly one NodeOffline.
func (e *Engine) handleNodeOffline(p peer.ID) {
	e.userInfoMu.Lock()
	delete(e.userInfo, p)
	e.userInfoMu.Unlock()

	e.health.Forget(p.String())

	e.livenessMu.Lock()
	if cancel, ok := e.livenessCancel[p]; ok {
		cancel()
		delete(e.livenessCancel, p)
	}
	e.livenessMu.Unlock()

	if e.metrics != nil {
		e.metrics.NodeOfflineTotal.Inc()
		e.metrics.VerifiedNodes.Set(float64(e.registry.Count()))
	}
	e.emit(Event{NodeOffline: &NodeOfflineEvent{PeerID: p}})
}

// onCleanupReaped is the registry's inactivity-reap callback. Per the
// spec, inactivity reap is distinct from the liveness-driven offline path
// and does not itself emit NodeOffline.
func (e *Engine) onCleanupReaped(removed []peer.ID) {
	for _, p := range removed {
		e.userInfoMu.Lock()
		delete(e.userInfo, p)
		e.userInfoMu.Unlock()
		e.health.Forget(p.String())
		e.livenessMu.Lock()
		if cancel, ok := e.livenessCancel[p]; ok {
			cancel()
			delete(e.livenessCancel, p)
		}
		e.livenessMu.Unlock()
	}
}

// --- liveness probing ---

func (e *Engine) startLivenessProbe(p peer.ID) {
	e.livenessMu.Lock()
	if _, exists := e.livenessCancel[p]; exists {
		e.livenessMu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(e.ctx)
	e.livenessCancel[p] = cancel
	e.livenessMu.Unlock()

	e.eg.Go(func() error {
		results := e.pingSvc.Ping(ctx, p)
		for {
			select {
			case <-ctx.Done():
				return nil
			case res, ok := <-results:
				if !ok {
					return nil
				}
				e.handlePingResult(p, res)
			}
		}
	})
}

func (e *Engine) handlePingResult(p peer.ID, res pingsvc.Result) {
	id := p.String()
	if res.Error == nil {
		recovered := e.health.RecordSuccess(id, res.RTT)
		if e.metrics != nil {
			e.metrics.PingRTTSeconds.WithLabelValues(id).Observe(res.RTT.Seconds())
		}
		if recovered {
			if e.metrics != nil {
				e.metrics.NodeRecoveredTotal.Inc()
			}
			e.emit(Event{NodeRecovered: &NodeRecoveredEvent{PeerID: p, RTT: res.RTT}})
		}
		return
	}

	if e.metrics != nil {
		e.metrics.LivenessFailuresTotal.Inc()
	}
	wentOffline := e.health.RecordFailure(id)
	if !wentOffline {
		return
	}
	if _, existed := e.registry.Remove(p); existed {
		e.handleNodeOffline(p)
	}
}

// --- mDNS expiry (the official go-libp2p mdns Notifee has no native
// expiry signal, so the engine tracks per-peer last-seen times itself and
// declares a peer expired once it has been silent for mdnsExpiryWindow). ---

const (
	mdnsExpiryCheckInterval = 15 * time.Second
	mdnsExpiryWindow        = 90 * time.Second
)

func (e *Engine) onMdnsPeerFound(pi peer.AddrInfo) {
	if pi.ID == e.host.ID() {
		return
	}

	e.mdnsMu.Lock()
	_, wasKnown := e.mdnsSeen[pi.ID]
	e.mdnsSeen[pi.ID] = time.Now()
	e.mdnsMu.Unlock()

	e.host.Peerstore().AddAddrs(pi.ID, pi.Addrs, peerstore.TempAddrTTL)

	if !wasKnown {
		var addr ma.Multiaddr
		if len(pi.Addrs) > 0 {
			addr = pi.Addrs[0]
		}
		if e.metrics != nil {
			e.metrics.MDNSDiscoveredTotal.WithLabelValues("discovered").Inc()
		}
		e.emit(Event{Discovered: &DiscoveredEvent{PeerID: pi.ID, Address: addr}})
	}

	go e.dialDiscovered(pi)
}

func (e *Engine) dialDiscovered(pi peer.AddrInfo) {
	ctx, cancel := context.WithTimeout(e.ctx, 5*time.Second)
	defer cancel()
	if err := e.dialLimiter.Wait(ctx); err != nil {
		return
	}
	if err := e.host.Connect(ctx, pi); err != nil {
		// Dial error: logged, never fatal.
		slog.Debug("mdns dial failed", "peer", pi.ID, "err", err)
	}
}

func (e *Engine) runMdnsExpiryLoop() {
	ticker := time.NewTicker(mdnsExpiryCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.expireStaleMdnsPeers(time.Now())
		}
	}
}

// expireStaleMdnsPeers forgets every peer not announced within
// mdnsExpiryWindow before now and emits Expired for each.
func (e *Engine) expireStaleMdnsPeers(now time.Time) {
	var expired []peer.ID
	e.mdnsMu.Lock()
	for id, last := range e.mdnsSeen {
		if now.Sub(last) > mdnsExpiryWindow {
			expired = append(expired, id)
			delete(e.mdnsSeen, id)
		}
	}
	e.mdnsMu.Unlock()
	for _, id := range expired {
		if e.metrics != nil {
			e.metrics.MDNSDiscoveredTotal.WithLabelValues("expired").Inc()
		}
		e.emit(Event{Expired: &ExpiredEvent{PeerID: id}})
	}
}

// --- identify event-bus subscription ---

func (e *Engine) runIdentifySubscriber(ctx context.Context, sub event.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-sub.Out():
			if !ok {
				return
			}
			evt, ok := raw.(event.EvtPeerIdentificationCompleted)
			if !ok {
				continue
			}
			e.onIdentifyCompleted(evt.Peer)
		}
	}
}
