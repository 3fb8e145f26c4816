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

// Package node implements the kadvault node runtime: the event loop
// multiplexing overlay events against replication timers, the readiness
// gate, the request dispatcher and the gossip router.
package node

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"golang.org/x/sync/errgroup"

	"github.com/kadvault/go-kadvault/common"
	"github.com/kadvault/go-kadvault/network"
	"github.com/kadvault/go-kadvault/params"
	"github.com/kadvault/go-kadvault/protocol"
	"github.com/kadvault/go-kadvault/rewards"
)

// RecordStore is the slice of the local store the node consumes.
// *storage.RecordStore satisfies it.
type RecordStore interface {
	Put(rec *protocol.Record) error
	Get(key common.Id) (*protocol.Record, error)
	Has(key common.Id) (bool, error)
	Remove(key common.Id) error
	Keys() ([]common.Id, error)
	StoreCost() (rewards.NanoTokens, error)
}

// Node is a single node in the storage network. It handles overlay events,
// serves requests against the local record store and broadcasts node events
// to its subscribers. The zero value is not usable; construct through
// Builder.
type Node struct {
	net    *network.Network
	store  RecordStore
	events *NodeEventsChannel

	initialPeers  []multiaddr.Multiaddr
	rewardAddress *rewards.MainPubkey
	local         bool

	fetcher *replicationFetcher
	metrics *nodeMetrics // nil when metrics are disabled

	// peersConnected counts PeerAdded events. It is a one-way readiness
	// latch, not an accurate connection gauge: PeerRemoved does not
	// decrement it. The accurate gauge lives in the metrics.
	peersConnected int64

	logger log.Logger
}

// Events returns the node's broadcast channel.
func (n *Node) Events() *NodeEventsChannel { return n.events }

// RewardAddress returns the payment address quoted to uploaders.
func (n *Node) RewardAddress() *rewards.MainPubkey { return n.rewardAddress }

// Run starts the event loop and the continuous discovery process. It
// returns immediately; the loop runs until ctx is cancelled or the overlay
// event channel closes.
func (n *Node) Run(ctx context.Context, events <-chan network.Event) {
	go n.net.RunDiscovery(ctx)
	go n.loop(ctx, events)
}

// loop multiplexes the overlay event channel against the periodic
// replication ticker and the inactivity watchdog. The loop itself never
// blocks on event handling: every event is dispatched onto its own
// goroutine so a handler stuck in the readiness gate cannot starve the
// timers.
func (n *Node) loop(ctx context.Context, events <-chan network.Event) {
	// Randomise the watchdog so a fleet of nodes does not log inactivity in
	// phase.
	inactivity := time.Duration(params.MinInactivitySecs+rand.Intn(params.MaxInactivitySecs-params.MinInactivitySecs)) * time.Second
	idle := time.NewTimer(inactivity)
	defer idle.Stop()

	// The ticker's first fire lands a full interval in, which doubles as the
	// warm-up the replication machinery wants.
	replication := time.NewTicker(params.PeriodicReplicationInterval)
	defer replication.Stop()

	n.logger.Info("Node event loop started", "inactivity", inactivity)
	for {
		select {
		case <-ctx.Done():
			n.logger.Info("Node event loop stopping", "err", ctx.Err())
			return

		case ev, ok := <-events:
			if !ok {
				n.logger.Error("The network event channel is closed")
				n.events.Broadcast(ChannelClosedEvent{})
				return
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(inactivity)

			go func() {
				start := time.Now()
				n.handleNetworkEvent(ev)
				n.logger.Trace("Handled network event", "event", ev, "elapsed", time.Since(start))
			}()

		case <-idle.C:
			n.logger.Debug("No network activity", "timeout", inactivity)
			idle.Reset(inactivity)

		case <-replication.C:
			go n.periodicReplication()
		}
	}
}

// awaitReady blocks gated events until the routing table first held a full
// close group. Pass-through events proceed immediately, among them the
// PeerAdded events that raise the counter.
func (n *Node) awaitReady(ev network.Event) {
	if !network.Gated(ev) {
		return
	}
	logged := false
	for atomic.LoadInt64(&n.peersConnected) < params.CloseGroupSize {
		if !logged {
			n.logger.Debug("Delaying event until close group is connected", "event", ev, "need", params.CloseGroupSize)
			logged = true
		}
		time.Sleep(params.ReadinessPollInterval)
	}
}

func (n *Node) handleNetworkEvent(ev network.Event) {
	n.awaitReady(ev)
	n.metrics.eventHandled(ev)

	switch ev := ev.(type) {
	case network.PeerAddedEvent:
		n.onPeerAdded(ev.Peer)

	case network.PeerRemovedEvent:
		n.logger.Debug("Peer removed from routing table", "removed", ev.Peer)
		n.metrics.peerRemoved()
		n.onPeerRemoved(ev.Peer)

	case network.RequestReceivedEvent:
		n.handleRequest(ev.Req, ev.Channel)

	case network.ResponseReceivedEvent:
		n.handleResponse(ev.Res)

	case network.KeysForReplicationEvent:
		n.metrics.keysForReplication(len(ev.Keys))
		if err := n.fetcher.AddKeys(ev.Keys); err != nil {
			n.logger.Error("Failed to enqueue replication fetches", "err", err)
		}

	case network.NewListenAddrEvent:
		n.logger.Info("Listening", "addr", ev.Addr)
		if !n.local {
			go n.dialInitialPeers()
		}

	case network.NatStatusChangedEvent:
		if ev.Status == network.NatStatusPrivate {
			n.logger.Warn("NAT status is determined to be private")
			n.events.Broadcast(BehindNatEvent{})
		}

	case network.UnverifiedRecordEvent:
		n.storeUnverifiedRecord(ev.Record)

	case network.FailedToWriteEvent:
		if err := n.store.Remove(ev.Key); err != nil {
			n.logger.Error("Failed to remove local record", "key", ev.Key, "err", err)
		}

	case network.GossipsubMsgReceivedEvent:
		n.handleGossipMsg(ev.Topic, ev.Msg)

	case network.GossipsubMsgPublishedEvent:
		n.handleGossipMsg(ev.Topic, ev.Msg)

	default:
		n.logger.Warn("Unhandled network event", "event", ev)
	}
}

func (n *Node) onPeerAdded(p peer.ID) {
	count := atomic.AddInt64(&n.peersConnected, 1)
	n.logger.Debug("Peer added to routing table", "added", p, "connected", count)
	n.metrics.peerAdded()
	if count == params.CloseGroupSize {
		n.events.Broadcast(ConnectedToNetworkEvent{})
		n.logger.Info("Connected to the network", "peers", count)
	}
	if err := n.tryTriggerTargetedReplication(p, false); err != nil {
		n.logger.Error("Replication on close group update failed", "added", p, "err", err)
	}
}

// onPeerRemoved force-replicates towards the peer that took the removed
// one's place. A restarting node gets added before its old identity is
// dropped; when the old identity was pushed out of a close group by the new
// one, the ordinary close-group-update path has already run and skipped the
// keys that only now lost a holder.
func (n *Node) onPeerRemoved(removed peer.ID) {
	closest, err := n.net.GetLocalClosestPeers(protocol.PeerAddr(removed))
	if err != nil {
		n.logger.Error("Cannot resolve replacement for removed peer", "removed", removed, "err", err)
		return
	}
	var replacement peer.ID
	for _, p := range closest {
		if p != removed {
			replacement = p
			break
		}
	}
	if replacement == "" {
		n.logger.Debug("No replacement peer to replicate to", "removed", removed)
		return
	}
	if err := n.tryTriggerTargetedReplication(replacement, true); err != nil {
		n.logger.Error("Replication on peer removal failed", "removed", removed, "target", replacement, "err", err)
	}
}

func (n *Node) storeUnverifiedRecord(rec *protocol.Record) {
	if err := n.store.Put(rec); err != nil {
		n.metrics.recordRejected()
		n.logger.Debug("Unverified record rejected", "key", rec.Key, "err", err)
		return
	}
	n.logger.Trace("Unverified record stored", "key", rec.Key)
}

func (n *Node) dialInitialPeers() {
	g := new(errgroup.Group)
	g.SetLimit(4)
	for _, addr := range n.initialPeers {
		addr := addr
		g.Go(func() error {
			if err := n.net.Dial(addr); err != nil {
				n.logger.Error("Failed to dial initial peer", "addr", addr, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
