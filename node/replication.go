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
	"context"
	"math/rand"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru"
	"github.com/libp2p/go-libp2p/core/peer"
	"golang.org/x/time/rate"

	"github.com/kadvault/go-kadvault/common"
	"github.com/kadvault/go-kadvault/network"
	"github.com/kadvault/go-kadvault/params"
	"github.com/kadvault/go-kadvault/protocol"
)

// periodicReplication picks a random peer from the local close group and
// force-replicates towards it, simulating the coverage repair that peer
// churn would otherwise trigger.
func (n *Node) periodicReplication() {
	start := time.Now()
	n.logger.Debug("Periodic replication triggered")

	closest, err := n.net.GetLocalClosestPeers(n.net.SelfAddress())
	if err != nil {
		n.logger.Error("Periodic replication cannot fetch local closest peers", "err", err)
		return
	}
	if len(closest) == 0 {
		n.logger.Info("No peers to replicate to")
		return
	}
	target := closest[rand.Intn(len(closest))]
	n.metrics.replicationTriggered()
	if err := n.tryTriggerTargetedReplication(target, true); err != nil {
		n.logger.Error("Periodic replication failed", "target", target, "err", err)
		return
	}
	n.logger.Debug("Periodic replication done", "target", target, "elapsed", time.Since(start))
}

// tryTriggerTargetedReplication announces locally held keys to p. Without
// force, only keys whose close group includes p are announced; with force
// every local key is, restoring coverage after removals.
func (n *Node) tryTriggerTargetedReplication(p peer.ID, force bool) error {
	keys, err := n.store.Keys()
	if err != nil {
		return err
	}
	var announce []common.Id
	for _, key := range keys {
		if !force && !n.peerInCloseGroup(p, key) {
			continue
		}
		announce = append(announce, key)
	}
	if len(announce) == 0 {
		return nil
	}
	n.logger.Debug("Announcing replication keys", "target", p, "keys", len(announce), "force", force)
	return n.net.SendRequest(p, &protocol.ReplicateCmd{
		Holder: n.net.SelfAddress(),
		Keys:   announce,
	})
}

func (n *Node) peerInCloseGroup(p peer.ID, key common.Id) bool {
	closest, err := n.net.GetLocalClosestPeers(protocol.RecordAddr(key))
	if err != nil {
		n.logger.Debug("Cannot resolve close group", "key", key, "err", err)
		return false
	}
	if len(closest) > params.CloseGroupSize {
		closest = closest[:params.CloseGroupSize]
	}
	for _, member := range closest {
		if member == p {
			return true
		}
	}
	return false
}

const (
	// fetchedKeysCacheSize bounds the recently-fetched dedup cache.
	fetchedKeysCacheSize = 4096

	// fetchRatePerSec caps outbound replicated-record fetches so a large
	// replication list does not flood a holder.
	fetchRatePerSec = 32
	fetchBurst      = 8
)

// replicationFetcher pulls records the node learned it should hold. Keys
// arrive via replication lists; the fetcher drops keys already held, already
// fetched recently or already in flight, and rate-limits the rest.
type replicationFetcher struct {
	net   *network.Network
	store RecordStore

	limiter *rate.Limiter
	recent  *lru.Cache
	pending mapset.Set

	logger log.Logger
}

func newReplicationFetcher(net *network.Network, store RecordStore, logger log.Logger) (*replicationFetcher, error) {
	recent, err := lru.New(fetchedKeysCacheSize)
	if err != nil {
		return nil, err
	}
	return &replicationFetcher{
		net:     net,
		store:   store,
		limiter: rate.NewLimiter(rate.Limit(fetchRatePerSec), fetchBurst),
		recent:  recent,
		pending: mapset.NewSet(),
		logger:  logger,
	}, nil
}

// AddKeys enqueues fetches for the missing keys of a replication list.
func (f *replicationFetcher) AddKeys(keys []network.ReplicationKey) error {
	for _, rk := range keys {
		held, err := f.store.Has(rk.Key)
		if err != nil {
			return err
		}
		if held || f.recent.Contains(rk.Key) || !f.pending.Add(rk.Key) {
			continue
		}
		go f.fetch(rk.Holder, rk.Key)
	}
	return nil
}

// AddKeysFromHolder enqueues a replication list received as a single
// Replicate command.
func (f *replicationFetcher) AddKeysFromHolder(holder peer.ID, keys []common.Id) error {
	list := make([]network.ReplicationKey, 0, len(keys))
	for _, key := range keys {
		list = append(list, network.ReplicationKey{Holder: holder, Key: key})
	}
	return f.AddKeys(list)
}

func (f *replicationFetcher) fetch(holder peer.ID, key common.Id) {
	if err := f.limiter.Wait(context.Background()); err != nil {
		f.pending.Remove(key)
		return
	}
	req := &protocol.GetReplicatedRecordQuery{
		Requester: f.net.SelfAddress(),
		Key:       key,
	}
	if err := f.net.SendRequest(holder, req); err != nil {
		f.pending.Remove(key)
		f.logger.Warn("Failed to request replicated record", "holder", holder, "key", key, "err", err)
	}
}

// HandleFetchedRecord resolves an in-flight fetch with the response a holder
// sent back, storing the carried record on success.
func (f *replicationFetcher) HandleFetchedRecord(resp *protocol.GetReplicatedRecordResponse) {
	f.pending.Remove(resp.Key)
	if resp.Err != nil {
		f.logger.Debug("Replicated record not served", "key", resp.Key, "err", resp.Err)
		return
	}
	f.recent.Add(resp.Key, struct{}{})
	if err := f.store.Put(&protocol.Record{Key: resp.Key, Value: resp.Value}); err != nil {
		f.logger.Warn("Failed to store replicated record", "key", resp.Key, "err", err)
	}
}

// PendingFetches reports in-flight fetch count, for logs and tests.
func (f *replicationFetcher) PendingFetches() int { return f.pending.Cardinality() }
