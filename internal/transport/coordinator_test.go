package transport

import (
	"context"
	"testing"
	"time"

	"github.com/librorum/vdfs/internal/shmem"
	"github.com/librorum/vdfs/internal/wire"
)

// TestCanCommunicateWithSameMachine reproduces the scenario where a
// peer reports the same machine id as the local node: the coordinator
// should report the shmem leg as reachable without registering any
// link or leaving a region open for later lookups.
func TestCanCommunicateWithSameMachine(t *testing.T) {
	c := NewCoordinator(Config{})

	peer := PeerInfo{NodeID: "peer-a", MachineID: c.localMachineID}
	got := c.CanCommunicateWith(peer)
	if got.Leg != LegShmem || !got.Reachable {
		t.Fatalf("expected reachable shmem leg, got %+v", got)
	}

	if _, ok := c.LinkMetrics(peer.NodeID); ok {
		t.Fatalf("CanCommunicateWith must not register a link for the peer")
	}
	if _, ok := c.links[peer.NodeID]; ok {
		t.Fatalf("CanCommunicateWith must not leave an entry in the link table")
	}

	// After a real write through LinkFor, the region does exist.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	link, err := c.LinkFor(ctx, peer, true)
	if err != nil {
		t.Fatalf("LinkFor: %v", err)
	}
	defer link.Close()
	if err := link.Send(ctx, wire.Header{Type: wire.MessageHeartbeat}, []byte("ping")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !shmem.Exists("peer-" + peer.NodeID) {
		t.Fatalf("expected shmem region to exist after a real write for the same-machine peer")
	}
}

// TestCanCommunicateWithDifferentMachine reproduces the scenario where
// a peer reports a different machine id: the coordinator must never
// probe or open a shared-memory region for it, and the choice comes
// down to whether the peer advertised a network address.
func TestCanCommunicateWithDifferentMachine(t *testing.T) {
	c := NewCoordinator(Config{})

	reachable := c.CanCommunicateWith(PeerInfo{NodeID: "peer-b", MachineID: "other-host", Address: "10.0.0.5:9000"})
	if reachable.Leg != LegNetwork || !reachable.Reachable {
		t.Fatalf("expected reachable network leg, got %+v", reachable)
	}

	unreachable := c.CanCommunicateWith(PeerInfo{NodeID: "peer-c", MachineID: "other-host"})
	if unreachable.Leg != LegNetwork || unreachable.Reachable {
		t.Fatalf("expected unreachable network leg with no address, got %+v", unreachable)
	}

	if shmem.Exists("peer-peer-b") || shmem.Exists("peer-peer-c") {
		t.Fatalf("a different-machine peer must never have a shmem region probed for it")
	}
}

// TestLinkMetricsUnknownPeer confirms the metrics query reports "no
// data" rather than a zero-valued snapshot for a peer that has never
// had a link established, matching the atomic-snapshot contract
// LinkFor/AdoptIncoming populate.
func TestLinkMetricsUnknownPeer(t *testing.T) {
	c := NewCoordinator(Config{})
	if _, ok := c.LinkMetrics("no-such-peer"); ok {
		t.Fatalf("expected no metrics for an unknown peer")
	}
}
