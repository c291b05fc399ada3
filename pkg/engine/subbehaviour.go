package engine

import (
	"context"

	"github.com/libp2p/go-libp2p/core/event"
	"github.com/libp2p/go-libp2p/core/peer"
	mdns "github.com/libp2p/go-libp2p/p2p/discovery/mdns"
)

// subBehaviourStack bundles everything RestartDiscovery needs to tear down
// and rebuild: the mDNS service and the identify event-bus subscription.
// The registry, keypair, and libp2p host itself outlive a restart.
type subBehaviourStack struct {
	mdnsService mdns.Service
	identifySub event.Subscription
	cancel      context.CancelFunc
}

type mdnsNotifee struct{ e *Engine }

func (n *mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	n.e.onMdnsPeerFound(pi)
}

func newSubBehaviourStack(e *Engine) (*subBehaviourStack, error) {
	sub, err := e.host.EventBus().Subscribe(new(event.EvtPeerIdentificationCompleted))
	if err != nil {
		return nil, newError(KindIO, "subscribe to identify completion", err)
	}

	ctx, cancel := context.WithCancel(e.ctx)
	e.eg.Go(func() error { e.runIdentifySubscriber(ctx, sub); return nil })

	svc := mdns.NewMdnsService(e.host, e.cfg.MdnsServiceTag, &mdnsNotifee{e: e})
	if err := svc.Start(); err != nil {
		cancel()
		sub.Close()
		return nil, newError(KindIO, "start mdns service", err)
	}

	return &subBehaviourStack{
		mdnsService: svc,
		identifySub: sub,
		cancel:      cancel,
	}, nil
}

func (s *subBehaviourStack) close() {
	s.cancel()
	s.identifySub.Close()
	s.mdnsService.Close()
}
