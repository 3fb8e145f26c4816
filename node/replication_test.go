// Copyright 2024 The go-kadvault Authors
// This file is part of the go-kadvault library.
//
// The go-kadvault library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-kadvault library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-kadvault library. If not, see <http://www.gnu.org/licenses/>.

package node

import (
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/kadvault/go-kadvault/common"
	"github.com/kadvault/go-kadvault/network"
	"github.com/kadvault/go-kadvault/protocol"
)

// Removing a peer forces a replication announcement of every local key
// towards the peer that took its place, regardless of close group
// membership.
func TestPeerRemovedForcesReplication(t *testing.T) {
	drv := newFakeDriver()
	n, store := newTestNode(t, drv)

	k1 := common.ContentId([]byte("k1"))
	k2 := common.ContentId([]byte("k2"))
	store.Put(&protocol.Record{Key: k1, Value: []byte("a")})
	store.Put(&protocol.Record{Key: k2, Value: []byte("b")})

	removed := peer.ID("departed")
	replacement := peer.ID("successor")
	// The removed peer may still linger in the table; the successor is the
	// nearest other peer to its address.
	drv.defaults = []peer.ID{removed, replacement, "further"}

	n.handleNetworkEvent(network.PeerRemovedEvent{Peer: removed})

	reqs := drv.sentRequests()
	if len(reqs) != 1 {
		t.Fatalf("sent %d requests, want 1", len(reqs))
	}
	if reqs[0].to != replacement {
		t.Fatalf("replication sent to %s, want %s", reqs[0].to, replacement)
	}
	cmd, ok := reqs[0].req.(*protocol.ReplicateCmd)
	if !ok {
		t.Fatalf("wrong request type %T", reqs[0].req)
	}
	if holder, _ := cmd.Holder.AsPeerID(); holder != drv.self {
		t.Fatal("holder is not self")
	}
	got := map[common.Id]bool{}
	for _, k := range cmd.Keys {
		got[k] = true
	}
	if !got[k1] || !got[k2] {
		t.Fatalf("announced keys %v miss %s or %s", cmd.Keys, k1.TerminalString(), k2.TerminalString())
	}
}

func TestPeerRemovedWithoutReplacementSkips(t *testing.T) {
	drv := newFakeDriver()
	n, store := newTestNode(t, drv)
	store.Put(&protocol.Record{Key: common.ContentId([]byte("k")), Value: []byte("v")})

	removed := peer.ID("last-one")
	drv.defaults = []peer.ID{removed} // only the departed peer is known
	n.handleNetworkEvent(network.PeerRemovedEvent{Peer: removed})

	if len(drv.sentRequests()) != 0 {
		t.Fatal("replication attempted without a replacement peer")
	}
}

// Without force, only keys whose close group contains the peer are
// announced.
func TestTargetedReplicationFiltersByCloseGroup(t *testing.T) {
	drv := newFakeDriver()
	n, store := newTestNode(t, drv)

	inGroup := common.ContentId([]byte("near the peer"))
	outGroup := common.ContentId([]byte("far from the peer"))
	store.Put(&protocol.Record{Key: inGroup, Value: []byte("a")})
	store.Put(&protocol.Record{Key: outGroup, Value: []byte("b")})

	target := peer.ID("new-neighbour")
	drv.closest[inGroup] = []peer.ID{target, "p2", "p3"}
	drv.closest[outGroup] = []peer.ID{"p2", "p3", "p4"}

	if err := n.tryTriggerTargetedReplication(target, false); err != nil {
		t.Fatal(err)
	}
	reqs := drv.sentRequests()
	if len(reqs) != 1 {
		t.Fatalf("sent %d requests, want 1", len(reqs))
	}
	cmd := reqs[0].req.(*protocol.ReplicateCmd)
	if len(cmd.Keys) != 1 || cmd.Keys[0] != inGroup {
		t.Fatalf("announced %v, want only %s", cmd.Keys, inGroup.TerminalString())
	}
}

// With nothing to announce, no request goes out at all.
func TestTargetedReplicationSkipsEmptyAnnouncement(t *testing.T) {
	drv := newFakeDriver()
	n, _ := newTestNode(t, drv)

	if err := n.tryTriggerTargetedReplication(peer.ID("anyone"), true); err != nil {
		t.Fatal(err)
	}
	if len(drv.sentRequests()) != 0 {
		t.Fatal("empty announcement was sent")
	}
}

func TestPeriodicReplicationWithoutPeers(t *testing.T) {
	drv := newFakeDriver()
	n, store := newTestNode(t, drv)
	store.Put(&protocol.Record{Key: common.ContentId([]byte("k")), Value: []byte("v")})

	// No closest peers known: the tick logs and skips.
	n.periodicReplication()
	if len(drv.sentRequests()) != 0 {
		t.Fatal("replication ran without any peers")
	}
}

func TestPeriodicReplicationTargetsCloseGroupPeer(t *testing.T) {
	drv := newFakeDriver()
	n, store := newTestNode(t, drv)
	store.Put(&protocol.Record{Key: common.ContentId([]byte("k")), Value: []byte("v")})

	drv.defaults = []peer.ID{"g1", "g2", "g3"}
	n.periodicReplication()

	reqs := drv.sentRequests()
	if len(reqs) != 1 {
		t.Fatalf("sent %d requests, want 1", len(reqs))
	}
	found := false
	for _, p := range drv.defaults {
		if reqs[0].to == p {
			found = true
		}
	}
	if !found {
		t.Fatalf("replication target %s not from the close group", reqs[0].to)
	}
}

func TestFetcherSkipsHeldAndDuplicateKeys(t *testing.T) {
	drv := newFakeDriver()
	n, store := newTestNode(t, drv)

	held := common.ContentId([]byte("held already"))
	store.Put(&protocol.Record{Key: held, Value: []byte("v")})
	missing := common.ContentId([]byte("wanted"))

	keys := []network.ReplicationKey{
		{Holder: "h", Key: held},
		{Holder: "h", Key: missing},
		{Holder: "h", Key: missing}, // duplicate in one batch
	}
	if err := n.fetcher.AddKeys(keys); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(drv.sentRequests()) == 1 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	reqs := drv.sentRequests()
	if len(reqs) != 1 {
		t.Fatalf("sent %d fetches, want 1", len(reqs))
	}
	q, ok := reqs[0].req.(*protocol.GetReplicatedRecordQuery)
	if !ok || q.Key != missing {
		t.Fatalf("unexpected fetch %v", reqs[0].req)
	}

	// Re-adding while the fetch is in flight changes nothing.
	if err := n.fetcher.AddKeys(keys[1:2]); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if len(drv.sentRequests()) != 1 {
		t.Fatal("pending key fetched twice")
	}
}
