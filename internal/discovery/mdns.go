// Package discovery implements peer discovery over mDNS and a
// heartbeat-driven health monitor.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the mDNS service type this node publishes and
// browses for, matching the original prototype's exact string.
const ServiceType = "_librorum._tcp.local."

// Peer describes a discovered node.
type Peer struct {
	NodeID  NodeID
	Address string
	Port    int
	Version string
	System  string
}

// PeerFoundFunc is called when a new peer is discovered.
type PeerFoundFunc func(Peer)

// PeerLostFunc is the callback type for a previously discovered peer
// that stops being visible. Browse stores it but never invokes it: mDNS
// record expiry is not tracked, so a peer stays known until the caller
// drops it.
type PeerLostFunc func(NodeID)

// Publisher announces this node's presence via mDNS.
type Publisher struct {
	server *zeroconf.Server
}

// Publish registers an mDNS service record for this node. version and
// system populate the TXT records alongside node_id.
func Publish(nodeID NodeID, port int, version, system string) (*Publisher, error) {
	txt := []string{
		"node_id=" + string(nodeID),
		"version=" + version,
		"system=" + system,
	}
	server, err := zeroconf.Register(string(nodeID), ServiceType, "local.", port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: register mdns service: %w", err)
	}
	return &Publisher{server: server}, nil
}

// Shutdown withdraws the mDNS announcement.
func (p *Publisher) Shutdown() {
	p.server.Shutdown()
}

// Browser watches for peers of ServiceType, filtering out this node's
// own announcements by NodeID.
type Browser struct {
	selfID NodeID
	onFound PeerFoundFunc
	onLost  PeerLostFunc
	cancel  context.CancelFunc
}

// Browse starts background discovery. onFound/onLost may be nil; only
// onFound is ever called.
func Browse(selfID NodeID, onFound PeerFoundFunc, onLost PeerLostFunc) (*Browser, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: create resolver: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	entries := make(chan *zeroconf.ServiceEntry)

	b := &Browser{selfID: selfID, onFound: onFound, onLost: onLost, cancel: cancel}

	go func() {
		seen := make(map[NodeID]time.Time)
		for entry := range entries {
			peer, ok := parseEntry(entry)
			if !ok || peer.NodeID == selfID {
				continue
			}
			seen[peer.NodeID] = time.Now()
			if b.onFound != nil {
				b.onFound(peer)
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, "local.", entries); err != nil {
		cancel()
		return nil, fmt.Errorf("discovery: browse: %w", err)
	}
	return b, nil
}

// Stop cancels the browse loop.
func (b *Browser) Stop() { b.cancel() }

func parseEntry(entry *zeroconf.ServiceEntry) (Peer, bool) {
	peer := Peer{Port: entry.Port}
	if len(entry.AddrIPv4) > 0 {
		peer.Address = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		peer.Address = entry.AddrIPv6[0].String()
	} else {
		return peer, false
	}
	for _, field := range entry.Text {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch k {
		case "node_id":
			peer.NodeID = NodeID(v)
		case "version":
			peer.Version = v
		case "system":
			peer.System = v
		}
	}
	return peer, peer.NodeID != ""
}
