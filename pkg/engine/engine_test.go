package engine

import (
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/localp2p/discoveryd/pkg/chatsession"
	"github.com/localp2p/discoveryd/pkg/wire"
)

// newTestEngine builds a loopback-only engine with an ephemeral identity,
// grounded on the teacher's newTestHost pattern. Each engine gets its own
// MdnsServiceTag so tests never collide over real multicast; tests that need
// two engines to talk connect them directly.
func newTestEngine(t *testing.T, tag, deviceName string) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ListenAddresses = []string{"/ip4/127.0.0.1/tcp/0"}
	cfg.DeviceName = deviceName
	cfg.MdnsServiceTag = tag

	nickname := deviceName
	e, err := New(cfg, nil, wire.UserInfo{DeviceName: deviceName, Nickname: &nickname}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.Stop(ctx)
	})
	return e
}

func connectEngines(t *testing.T, a, b *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.host.Connect(ctx, peer.AddrInfo{ID: b.LocalPeerID(), Addrs: b.host.Addrs()}); err != nil {
		t.Fatalf("connect engines: %v", err)
	}
}

func waitForEvent(t *testing.T, ch <-chan Event, timeout time.Duration, match func(Event) bool) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-ch:
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event")
		}
	}
}

func waitForChatEvent(t *testing.T, ch <-chan chatsession.Event, timeout time.Duration, match func(chatsession.Event) bool) chatsession.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-ch:
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for chat event")
		}
	}
}

func TestEngineVerifiesPeerOnConnect(t *testing.T) {
	a := newTestEngine(t, "_test-verify-a._udp", "alice")
	b := newTestEngine(t, "_test-verify-b._udp", "bob")

	connectEngines(t, a, b)

	waitForEvent(t, a.Events(), 5*time.Second, func(ev Event) bool {
		return ev.Verified != nil && ev.Verified.PeerID == b.LocalPeerID()
	})
	waitForEvent(t, b.Events(), 5*time.Second, func(ev Event) bool {
		return ev.Verified != nil && ev.Verified.PeerID == a.LocalPeerID()
	})

	if !a.registry.IsVerified(b.LocalPeerID()) {
		t.Fatalf("expected b to be verified in a's registry")
	}
}

func TestEngineUserInfoExchangeOnConnect(t *testing.T) {
	a := newTestEngine(t, "_test-userinfo-a._udp", "alice")
	b := newTestEngine(t, "_test-userinfo-b._udp", "bob")

	connectEngines(t, a, b)

	ev := waitForEvent(t, a.Events(), 5*time.Second, func(ev Event) bool {
		return ev.UserInfoReceived != nil && ev.UserInfoReceived.PeerID == b.LocalPeerID()
	})
	if ev.UserInfoReceived.Info.DeviceName != "bob" {
		t.Fatalf("expected bob's device name, got %q", ev.UserInfoReceived.Info.DeviceName)
	}
}

func TestEngineSendMessageDelivers(t *testing.T) {
	a := newTestEngine(t, "_test-chat-a._udp", "alice")
	b := newTestEngine(t, "_test-chat-b._udp", "bob")

	connectEngines(t, a, b)
	waitForEvent(t, a.Events(), 5*time.Second, func(ev Event) bool {
		return ev.Verified != nil && ev.Verified.PeerID == b.LocalPeerID()
	})
	waitForEvent(t, b.Events(), 5*time.Second, func(ev Event) bool {
		return ev.Verified != nil && ev.Verified.PeerID == a.LocalPeerID()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.SendMessage(ctx, b.LocalPeerID().String(), "hello bob"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	ev := waitForChatEvent(t, b.ChatEvents(), 5*time.Second, func(ev chatsession.Event) bool {
		return ev.MessageReceived != nil && ev.MessageReceived.From == a.LocalPeerID()
	})
	if ev.MessageReceived.Message.Text == nil || ev.MessageReceived.Message.Text.Content != "hello bob" {
		t.Fatalf("unexpected received message: %+v", ev.MessageReceived.Message)
	}
}

func TestEngineSendMessageRejectsUnverifiedTarget(t *testing.T) {
	a := newTestEngine(t, "_test-unverified._udp", "alice")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	randomID, err := peer.Decode("12D3KooWDpJ7As7BWAwRMfu1VU2WCqNjvq387JEYKDBj4kx6nXTN")
	if err != nil {
		t.Fatalf("decode test peer id: %v", err)
	}
	err = a.SendMessage(ctx, randomID.String(), "hi")
	if err == nil {
		t.Fatalf("expected error sending to unverified peer")
	}
	var engErr *Error
	if !asError(err, &engErr) || engErr.Kind != KindNodeNotVerified {
		t.Fatalf("expected KindNodeNotVerified, got %v", err)
	}
}

func TestEngineSendMessageRejectsEmptyText(t *testing.T) {
	a := newTestEngine(t, "_test-empty._udp", "alice")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := a.SendMessage(ctx, a.LocalPeerID().String(), "")
	if err == nil {
		t.Fatalf("expected error for empty message text")
	}
	var engErr *Error
	if !asError(err, &engErr) || engErr.Kind != KindInvalidArgument {
		t.Fatalf("expected KindInvalidArgument, got %v", err)
	}
}

func TestEnginePingRepliesImmediately(t *testing.T) {
	a := newTestEngine(t, "_test-ping._udp", "alice")
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := a.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestEngineIsEventLoopAlive(t *testing.T) {
	a := newTestEngine(t, "_test-alive._udp", "alice")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !a.IsEventLoopAlive(ctx) {
		t.Fatalf("expected event loop to report alive")
	}
}

func TestEngineMdnsDiscoveredAndExpired(t *testing.T) {
	a := newTestEngine(t, "_test-mdns-a._udp", "alice")
	b := newTestEngine(t, "_test-mdns-b._udp", "bob")

	a.onMdnsPeerFound(peer.AddrInfo{ID: b.LocalPeerID(), Addrs: b.host.Addrs()})

	waitForEvent(t, a.Events(), 2*time.Second, func(ev Event) bool {
		return ev.Discovered != nil && ev.Discovered.PeerID == b.LocalPeerID()
	})

	a.mdnsMu.Lock()
	a.mdnsSeen[b.LocalPeerID()] = time.Now().Add(-2 * mdnsExpiryWindow)
	a.mdnsMu.Unlock()

	// Directly exercise the expiry sweep rather than waiting on the real
	// 15s ticker.
	a.expireStaleMdnsPeers(time.Now())

	waitForEvent(t, a.Events(), 2*time.Second, func(ev Event) bool {
		return ev.Expired != nil && ev.Expired.PeerID == b.LocalPeerID()
	})
}

func TestEngineStopRejectsFurtherCommands(t *testing.T) {
	a := newTestEngine(t, "_test-stop._udp", "alice")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := a.Ping(ctx); err == nil {
		t.Fatalf("expected error submitting command after Stop")
	}
}

// asError reports whether err is itself an *Error (a plain type assertion,
// without the unwrapping errors.As would do) and stores it in target.
func asError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
