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
	"math/rand"
	"sync"

	mapset "github.com/deckarep/golang-set"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/kadvault/go-kadvault/common"
	"github.com/kadvault/go-kadvault/params"
	"github.com/kadvault/go-kadvault/protocol"
)

// NetworkDiscovery generates closest-peer query targets for the routing table
// buckets 0 to MaxDiscoveryCandidates-1. It keeps a per-bucket pool of
// candidate ids; completed queries feed the peers they found back into the
// pool as future targets. Every wave targets the same buckets whatever their
// fill, and pooled ids that fall into deeper buckets are kept but never
// handed out.
type NetworkDiscovery struct {
	self common.Id

	mu   sync.Mutex
	pool map[int][]common.Id
	seen mapset.Set
	rng  *rand.Rand
}

// NewNetworkDiscovery creates a candidate generator centred on self.
func NewNetworkDiscovery(self common.Id, seed int64) *NetworkDiscovery {
	return &NetworkDiscovery{
		self: self,
		pool: make(map[int][]common.Id),
		seen: mapset.NewThreadUnsafeSet(),
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Candidates returns one query target for each bucket from 0 (the farthest)
// up to MaxDiscoveryCandidates-1, in that order. Pool entries are consumed; buckets
// with an empty pool get a freshly generated target so no single bucket
// dominates a wave.
func (d *NetworkDiscovery) Candidates() []protocol.NetworkAddress {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]protocol.NetworkAddress, 0, params.MaxDiscoveryCandidates)
	for bucket := 0; bucket < params.MaxDiscoveryCandidates; bucket++ {
		var target common.Id
		if pool := d.pool[bucket]; len(pool) > 0 {
			target = pool[0]
			d.pool[bucket] = pool[1:]
		} else {
			target = d.generate(bucket)
		}
		out = append(out, protocol.RecordAddr(target))
	}
	return out
}

// generate constructs an id whose common prefix with self is exactly bucket
// bits: the bit at the bucket index is flipped and everything past it is
// randomised.
func (d *NetworkDiscovery) generate(bucket int) common.Id {
	id := common.FlipBit(d.self, bucket)
	tail := common.RandomId(d.rng)

	first := bucket + 1
	for i := first / 8; i < common.IdLength; i++ {
		if i == first/8 && first%8 != 0 {
			keep := byte(0xff) << uint(8-first%8)
			id[i] = id[i]&keep | tail[i]&^keep
			continue
		}
		id[i] = tail[i]
	}
	return id
}

// HandleQueryResult feeds the peers found by a completed closest-peer query
// back into the candidate pool as future seeds.
func (d *NetworkDiscovery) HandleQueryResult(peers []peer.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range peers {
		id := common.ContentId([]byte(p))
		if !d.seen.Add(id) {
			continue
		}
		bucket := common.CommonPrefixLen(d.self, id)
		if bucket >= common.IdBits {
			continue // our own id
		}
		if len(d.pool[bucket]) >= params.MaxCandidatesPerBucket {
			continue
		}
		d.pool[bucket] = append(d.pool[bucket], id)
	}
}

// PoolSize reports the number of pooled candidates, for logs and tests.
func (d *NetworkDiscovery) PoolSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, pool := range d.pool {
		n += len(pool)
	}
	return n
}
