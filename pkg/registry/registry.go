// Package registry implements the verified-node registry: a thread-safe
// map of peers that have passed protocol/agent-prefix admission, with
// timeout-based reaping of inactive entries.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
)

// VerifiedNode is a peer that has passed admission.
type VerifiedNode struct {
	PeerID          peer.ID
	Addresses       []ma.Multiaddr
	ProtocolVersion string
	AgentVersion    string
	Name            string // parsed from AgentVersion, "" if absent
	FirstSeen       time.Time
	LastSeen        time.Time
}

// NewVerifiedNode builds a VerifiedNode, parsing the device name out of
// agentVersion via ParseDeviceName.
func NewVerifiedNode(id peer.ID, addrs []ma.Multiaddr, protocolVersion, agentVersion string) VerifiedNode {
	name, _ := ParseDeviceName(agentVersion)
	now := time.Now()
	return VerifiedNode{
		PeerID:          id,
		Addresses:       addrs,
		ProtocolVersion: protocolVersion,
		AgentVersion:    agentVersion,
		Name:            name,
		FirstSeen:       now,
		LastSeen:        now,
	}
}

// DisplayName returns Name followed by the peer ID, or just the peer ID
// when no device name was parsed from the agent version.
func (n VerifiedNode) DisplayName() string {
	if n.Name == "" {
		return n.PeerID.String()
	}
	return fmt.Sprintf("%s (%s)", n.Name, n.PeerID.String())
}

// Config holds the registry's admission and reaping parameters.
type Config struct {
	NodeTimeout            time.Duration // default 300s
	CleanupInterval         time.Duration // default 60s
	ExpectedProtocolVersion string        // default "/localp2p/1.0.0"
	ExpectedAgentPrefix     string        // default "localp2p-go/"
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		NodeTimeout:             300 * time.Second,
		CleanupInterval:         60 * time.Second,
		ExpectedProtocolVersion: "/localp2p/1.0.0",
		ExpectedAgentPrefix:     "localp2p-go/",
	}
}

// Registry is a thread-safe map of verified nodes. Multi-reader/single-writer:
// mutating operations take the write lock only for the duration of the
// mutation; reads use the read lock.
type Registry struct {
	mu     sync.RWMutex
	nodes  map[peer.ID]VerifiedNode
	config Config
}

// New creates an empty registry with the given configuration.
func New(cfg Config) *Registry {
	return &Registry{
		nodes:  make(map[peer.ID]VerifiedNode),
		config: cfg,
	}
}

// Config returns the registry's admission/reaping configuration.
func (r *Registry) Config() Config {
	return r.config
}

// AddOrUpdate inserts a new node or refreshes LastSeen/Addresses for an
// existing one. Returns true if this is a newly admitted peer (the caller
// uses this to decide whether to emit a Verified event exactly once).
func (r *Registry) AddOrUpdate(node VerifiedNode) (isNew bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.nodes[node.PeerID]
	if ok {
		existing.LastSeen = node.LastSeen
		existing.Addresses = node.Addresses
		r.nodes[node.PeerID] = existing
		return false
	}
	r.nodes[node.PeerID] = node
	return true
}

// Remove deletes a node and returns it plus whether it was present. Both
// the liveness-offline path and the connection-close-offline path in the
// engine call Remove and only emit NodeOffline when existed is true,
// guaranteeing exactly one emission regardless of which path wins a race.
func (r *Registry) Remove(id peer.ID) (node VerifiedNode, existed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	node, existed = r.nodes[id]
	if existed {
		delete(r.nodes, id)
	}
	return node, existed
}

// Get returns the node for id, if present.
func (r *Registry) Get(id peer.ID) (VerifiedNode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[id]
	return n, ok
}

// IsVerified reports whether id is currently in the registry.
func (r *Registry) IsVerified(id peer.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.nodes[id]
	return ok
}

// List returns a snapshot of every verified node.
func (r *Registry) List() []VerifiedNode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]VerifiedNode, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	return out
}

// Count returns the number of verified nodes.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// VerificationError describes why an admission check failed.
type VerificationError struct {
	Reason string
}

func (e *VerificationError) Error() string { return e.Reason }

// VerifyNodeInfo is a pure admission check against the registry's expected
// protocol version and agent prefix.
func (r *Registry) VerifyNodeInfo(protocolVersion, agentVersion string) error {
	if protocolVersion != r.config.ExpectedProtocolVersion {
		return &VerificationError{Reason: fmt.Sprintf(
			"protocol version mismatch: expected %s, got %s",
			r.config.ExpectedProtocolVersion, protocolVersion)}
	}
	if r.config.ExpectedAgentPrefix != "" && !strings.HasPrefix(agentVersion, r.config.ExpectedAgentPrefix) {
		return &VerificationError{Reason: fmt.Sprintf(
			"agent version mismatch: expected prefix %s, got %s",
			r.config.ExpectedAgentPrefix, agentVersion)}
	}
	return nil
}

// CleanupInactive removes every node whose LastSeen is older than
// NodeTimeout and returns the evicted peer IDs. This is distinct from the
// liveness-driven NodeOffline path: inactivity reap does not by itself
// cause the engine to emit NodeOffline.
func (r *Registry) CleanupInactive() []peer.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var removed []peer.ID
	for id, n := range r.nodes {
		if now.Sub(n.LastSeen) > r.config.NodeTimeout {
			removed = append(removed, id)
			delete(r.nodes, id)
		}
	}
	return removed
}

// SpawnCleanupTask runs CleanupInactive on CleanupInterval until ctx is
// cancelled. onRemoved, if non-nil, is invoked with each reap's evicted IDs.
func (r *Registry) SpawnCleanupTask(ctx context.Context, onRemoved func([]peer.ID)) {
	interval := r.config.CleanupInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := r.CleanupInactive()
			if len(removed) > 0 && onRemoved != nil {
				onRemoved(removed)
			}
		}
	}
}

// ParseDeviceName parses the device name from the last balanced
// parenthesis pair in an agent-version string. An empty trimmed name
// counts as absent, matching `"{prefix}{version} ()"` → not present.
func ParseDeviceName(agentVersion string) (name string, ok bool) {
	end := strings.LastIndex(agentVersion, ")")
	if end < 0 {
		return "", false
	}
	start := strings.LastIndex(agentVersion[:end], "(")
	if start < 0 {
		return "", false
	}
	trimmed := strings.TrimSpace(agentVersion[start+1 : end])
	if trimmed == "" {
		return "", false
	}
	return trimmed, true
}

// BuildAgentVersion composes the agent-version string the engine advertises
// locally: "{prefix}{version} ({name})", or without the suffix if name=="".
func BuildAgentVersion(prefix, version, name string) string {
	if name == "" {
		return prefix + version
	}
	return fmt.Sprintf("%s%s (%s)", prefix, version, name)
}
