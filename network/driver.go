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

// Package network ties the node core to the overlay driver: it declares the
// driver interface the core consumes, the overlay events the driver
// delivers, and runs the continuous discovery process on top of both.
package network

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/kadvault/go-kadvault/common"
	"github.com/kadvault/go-kadvault/params"
	"github.com/kadvault/go-kadvault/protocol"
)

// QueryID identifies an in-flight closest-peer query.
type QueryID uint64

// QueryKind says why a closest-peer query was issued.
type QueryKind int

const (
	NetworkDiscoveryQuery QueryKind = iota + 1
	ClientRequestQuery
	ReplicationQuery
)

// MsgResponder is the reply channel handed out with an inbound request.
// Exactly one response must be sent on it.
type MsgResponder interface {
	Respond(resp protocol.Response) error
}

// Driver is the overlay interface the core consumes. Implementations wrap
// the DHT/transport library; they deliver Events on the channel passed to
// the node and answer the calls below.
type Driver interface {
	// SelfID returns the local peer id.
	SelfID() peer.ID

	// GetClosestPeers enqueues a DHT closest-peers query for target. The
	// result is delivered through QueryCompleted on the issuing Network.
	GetClosestPeers(target []byte) (QueryID, error)

	// NonEmptyBucketCount reports how many routing table buckets hold at
	// least one peer.
	NonEmptyBucketCount() uint64

	// GetLocalClosestPeers returns the locally known peers closest to
	// target, nearest first.
	GetLocalClosestPeers(target common.Id) ([]peer.ID, error)

	// SendRequest sends a request to a peer without awaiting its response;
	// the response arrives later as a ResponseReceivedEvent.
	SendRequest(p peer.ID, req protocol.Request) error

	// SendResponse sends a response on the channel an inbound request
	// carried.
	SendResponse(resp protocol.Response, channel MsgResponder) error

	// Dial connects to a peer at the given address.
	Dial(addr multiaddr.Multiaddr) error

	// SubscribeToTopic joins a gossip topic.
	SubscribeToTopic(topic string) error

	// Publish broadcasts data on a gossip topic.
	Publish(topic string, data []byte) error
}

// pendingQuery tracks an issued closest-peer query until its terminal result.
type pendingQuery struct {
	target protocol.NetworkAddress
	kind   QueryKind
	found  []peer.ID
}

// Network is the core-side facade over the overlay driver. It owns the
// discovery scheduler, the candidate generator and the pending query map.
type Network struct {
	drv    Driver
	self   peer.ID
	selfId common.Id

	bootstrap *ContinuousBootstrap
	discovery *NetworkDiscovery

	qmu     sync.Mutex
	pending map[QueryID]*pendingQuery

	logger log.Logger
}

// NewNetwork wraps a driver.
func NewNetwork(drv Driver) *Network {
	self := drv.SelfID()
	selfId := common.ContentId([]byte(self))
	return &Network{
		drv:       drv,
		self:      self,
		selfId:    selfId,
		bootstrap: NewContinuousBootstrap(),
		discovery: NewNetworkDiscovery(selfId, time.Now().UnixNano()),
		pending:   make(map[QueryID]*pendingQuery),
		logger:    log.New("peer", self),
	}
}

// SelfID returns the local peer id.
func (n *Network) SelfID() peer.ID { return n.self }

// SelfAddress returns the local peer's network address.
func (n *Network) SelfAddress() protocol.NetworkAddress { return protocol.PeerAddr(n.self) }

// Driver exposes the wrapped driver.
func (n *Network) Driver() Driver { return n.drv }

// GetLocalClosestPeers returns the locally known peers closest to addr.
func (n *Network) GetLocalClosestPeers(addr protocol.NetworkAddress) ([]peer.ID, error) {
	return n.drv.GetLocalClosestPeers(addr.AsId())
}

// SendRequest forwards to the driver.
func (n *Network) SendRequest(p peer.ID, req protocol.Request) error {
	return n.drv.SendRequest(p, req)
}

// SendResponse forwards to the driver.
func (n *Network) SendResponse(resp protocol.Response, channel MsgResponder) error {
	return n.drv.SendResponse(resp, channel)
}

// Dial forwards to the driver.
func (n *Network) Dial(addr multiaddr.Multiaddr) error { return n.drv.Dial(addr) }

// SubscribeToTopic forwards to the driver.
func (n *Network) SubscribeToTopic(topic string) error { return n.drv.SubscribeToTopic(topic) }

// Publish forwards to the driver.
func (n *Network) Publish(topic string, data []byte) error { return n.drv.Publish(topic, data) }

// RunDiscovery drives the continuous bootstrap process until ctx is done.
// Each tick re-evaluates whether a wave is due; the scheduler's own back-off
// keeps the effective rate proportional to table sparseness.
func (n *Network) RunDiscovery(ctx context.Context) {
	ticker := time.NewTicker(params.BootstrapInterval / 3)
	defer ticker.Stop()

	n.TriggerNetworkDiscovery()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.TriggerNetworkDiscovery()
		}
	}
}

// TriggerNetworkDiscovery emits one wave of closest-peer queries when the
// scheduler says one is due. Issued queries are tracked so their results can
// refill the candidate pool of the harder buckets.
func (n *Network) TriggerNetworkDiscovery() {
	if !n.bootstrap.ShallDiscover(n.drv.NonEmptyBucketCount()) {
		return
	}
	start := time.Now()
	issued := 0
	for _, addr := range n.discovery.Candidates() {
		qid, err := n.drv.GetClosestPeers(addr.AsId().Bytes())
		if err != nil {
			n.logger.Debug("Closest peers query rejected", "target", addr, "err", err)
			continue
		}
		n.qmu.Lock()
		n.pending[qid] = &pendingQuery{target: addr, kind: NetworkDiscoveryQuery}
		n.qmu.Unlock()
		issued++
	}
	n.bootstrap.Initiated()
	n.logger.Info("Triggered network discovery", "queries", issued, "elapsed", time.Since(start))
}

// QueryProgressed accumulates a peer found by an in-flight query.
func (n *Network) QueryProgressed(id QueryID, found peer.ID) {
	n.qmu.Lock()
	defer n.qmu.Unlock()
	if q, ok := n.pending[id]; ok {
		q.found = append(q.found, found)
	}
}

// QueryCompleted resolves a pending query with the closest peers it
// discovered. Discovery queries seed the candidate generator.
func (n *Network) QueryCompleted(id QueryID, closest []peer.ID) {
	n.qmu.Lock()
	q, ok := n.pending[id]
	if ok {
		delete(n.pending, id)
	}
	n.qmu.Unlock()
	if !ok {
		return
	}

	switch q.kind {
	case NetworkDiscoveryQuery:
		n.discovery.HandleQueryResult(append(q.found, closest...))
		n.logger.Trace("Discovery query completed", "target", q.target, "found", len(closest))
	default:
		n.logger.Trace("Query completed", "kind", q.kind, "target", q.target)
	}
}

// QueryFailed drops a pending query on overlay-level timeout or failure.
func (n *Network) QueryFailed(id QueryID, err error) {
	n.qmu.Lock()
	defer n.qmu.Unlock()
	if q, ok := n.pending[id]; ok {
		delete(n.pending, id)
		n.logger.Debug("Query failed", "target", q.target, "err", err)
	}
}

// PendingQueries reports the number of in-flight queries.
func (n *Network) PendingQueries() int {
	n.qmu.Lock()
	defer n.qmu.Unlock()
	return len(n.pending)
}
