package discovery

import (
	"errors"
	"testing"
	"time"
)

func TestMonitorMarksOnlineOnSuccessfulPing(t *testing.T) {
	m := NewMonitor(func(peer Peer) (time.Duration, error) {
		return 5 * time.Millisecond, nil
	}, time.Hour, time.Hour)

	peer := Peer{NodeID: "11111111-1111-1111-1111-111111111111"}
	m.Track(peer)
	m.heartbeatOne(peer)

	h, ok := m.Status(peer.NodeID)
	if !ok {
		t.Fatalf("expected tracked status")
	}
	if h.Status != StatusOnline {
		t.Fatalf("expected online, got %v", h.Status)
	}
}

func TestMonitorMarksOfflineAfterTimeout(t *testing.T) {
	m := NewMonitor(func(peer Peer) (time.Duration, error) {
		return 0, errors.New("no response")
	}, time.Millisecond, time.Millisecond)

	peer := Peer{NodeID: "22222222-2222-2222-2222-222222222222"}
	m.Track(peer)
	m.heartbeatOne(peer)
	time.Sleep(2 * time.Millisecond)
	m.heartbeatOne(peer)

	h, _ := m.Status(peer.NodeID)
	if h.Status != StatusOffline {
		t.Fatalf("expected offline, got %v", h.Status)
	}
	if h.FailureCount != 2 {
		t.Fatalf("expected 2 failures, got %d", h.FailureCount)
	}
}

func TestNodeIDValid(t *testing.T) {
	if !NodeID("11111111-1111-1111-1111-111111111111").Valid() {
		t.Fatalf("expected valid node id")
	}
	if NodeID("not a node id!").Valid() {
		t.Fatalf("expected invalid node id to fail")
	}
}
