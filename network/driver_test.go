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

package network

import (
	"fmt"
	"sync"
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/kadvault/go-kadvault/common"
	"github.com/kadvault/go-kadvault/params"
	"github.com/kadvault/go-kadvault/protocol"
)

// stubDriver records the calls the facade makes into the overlay.
type stubDriver struct {
	mu      sync.Mutex
	self    peer.ID
	buckets uint64
	nextID  QueryID
	queries [][]byte
}

func (d *stubDriver) SelfID() peer.ID { return d.self }

func (d *stubDriver) GetClosestPeers(target []byte) (QueryID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.queries = append(d.queries, target)
	return d.nextID, nil
}

func (d *stubDriver) NonEmptyBucketCount() uint64 { return d.buckets }

func (d *stubDriver) GetLocalClosestPeers(common.Id) ([]peer.ID, error) { return nil, nil }

func (d *stubDriver) SendRequest(peer.ID, protocol.Request) error { return nil }

func (d *stubDriver) SendResponse(protocol.Response, MsgResponder) error { return nil }

func (d *stubDriver) Dial(multiaddr.Multiaddr) error { return nil }

func (d *stubDriver) SubscribeToTopic(string) error { return nil }

func (d *stubDriver) Publish(string, []byte) error { return nil }

func (d *stubDriver) queryCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queries)
}

func TestTriggerNetworkDiscoveryIssuesQueries(t *testing.T) {
	drv := &stubDriver{self: peer.ID("self"), buckets: 4}
	n := NewNetwork(drv)

	n.TriggerNetworkDiscovery()
	if got := drv.queryCount(); got != params.MaxDiscoveryCandidates {
		t.Fatalf("issued %d queries, want %d", got, params.MaxDiscoveryCandidates)
	}
	if n.PendingQueries() != params.MaxDiscoveryCandidates {
		t.Fatalf("pending = %d, want %d", n.PendingQueries(), params.MaxDiscoveryCandidates)
	}

	// The scheduler just triggered with 4 non-empty buckets, so an immediate
	// second wave must be suppressed.
	n.TriggerNetworkDiscovery()
	if got := drv.queryCount(); got != params.MaxDiscoveryCandidates {
		t.Fatalf("back-off violated, %d queries issued", got)
	}
}

func TestQueryLifecycle(t *testing.T) {
	drv := &stubDriver{self: peer.ID("self"), buckets: 0}
	n := NewNetwork(drv)

	n.TriggerNetworkDiscovery()
	if n.PendingQueries() == 0 {
		t.Fatal("no pending queries after trigger")
	}

	var peers []peer.ID
	for i := 0; i < 8; i++ {
		peers = append(peers, peer.ID(fmt.Sprintf("found-%d", i)))
	}
	for id := QueryID(1); int(id) <= drv.queryCount(); id++ {
		n.QueryProgressed(id, peers[0])
		n.QueryCompleted(id, peers)
	}
	if n.PendingQueries() != 0 {
		t.Fatalf("pending = %d after completion", n.PendingQueries())
	}
	if n.discovery.PoolSize() == 0 {
		t.Fatal("completed discovery queries did not seed the candidate pool")
	}

	// Completing an unknown query is a no-op.
	n.QueryCompleted(QueryID(9999), peers)
}

func TestQueryFailedDropsPending(t *testing.T) {
	drv := &stubDriver{self: peer.ID("self")}
	n := NewNetwork(drv)

	n.TriggerNetworkDiscovery()
	before := n.PendingQueries()
	n.QueryFailed(QueryID(1), fmt.Errorf("timed out"))
	if n.PendingQueries() != before-1 {
		t.Fatalf("pending = %d, want %d", n.PendingQueries(), before-1)
	}
}
