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
	"fmt"

	"github.com/ethereum/go-ethereum/log"
	"github.com/multiformats/go-multiaddr"

	"github.com/kadvault/go-kadvault/network"
	"github.com/kadvault/go-kadvault/rewards"
	"github.com/kadvault/go-kadvault/storage"
)

// Config is the node's construction surface.
type Config struct {
	// InitialPeers are dialed once the first listen address is up, unless
	// Local is set.
	InitialPeers []multiaddr.Multiaddr

	// Local suppresses initial peer dialing; discovery is left to the
	// local network.
	Local bool

	// RootDir holds the wallet and the record store.
	RootDir string

	// MetricsPort exposes a prometheus endpoint when non-zero.
	MetricsPort int

	// MaxRecords caps the record store; zero selects the default.
	MaxRecords int
}

// Builder assembles and starts a Node.
type Builder struct {
	cfg Config
	drv network.Driver
}

// NewBuilder prepares a builder around an overlay driver.
func NewBuilder(cfg Config, drv network.Driver) *Builder {
	return &Builder{cfg: cfg, drv: drv}
}

// RunningNode is a handle on a started node.
type RunningNode struct {
	node   *Node
	net    *network.Network
	wallet *rewards.LocalWallet
	store  *storage.RecordStore
}

// Node returns the running node.
func (r *RunningNode) Node() *Node { return r.node }

// Network returns the node's overlay facade.
func (r *RunningNode) Network() *network.Network { return r.net }

// Events returns the node's broadcast channel.
func (r *RunningNode) Events() *NodeEventsChannel { return r.node.events }

// Close releases the node's local resources. The event loop itself stops
// with the context passed to BuildAndRun.
func (r *RunningNode) Close() error {
	err := r.store.Close()
	if werr := r.wallet.Close(); err == nil {
		err = werr
	}
	return err
}

// BuildAndRun loads the reward wallet, opens the record store, starts the
// event loop on events and subscribes the royalty notification topics.
func (b *Builder) BuildAndRun(ctx context.Context, events <-chan network.Event) (*RunningNode, error) {
	wallet, err := rewards.LoadWallet(b.cfg.RootDir)
	if err != nil {
		return nil, fmt.Errorf("loading reward wallet: %w", err)
	}
	store, err := storage.Open(b.cfg.RootDir, b.cfg.MaxRecords)
	if err != nil {
		wallet.Close()
		return nil, fmt.Errorf("opening record store: %w", err)
	}

	net := network.NewNetwork(b.drv)
	logger := log.New("node", net.SelfID())

	n := &Node{
		net:           net,
		store:         store,
		events:        NewNodeEventsChannel(),
		initialPeers:  b.cfg.InitialPeers,
		rewardAddress: wallet.MainPubkey(),
		local:         b.cfg.Local,
		logger:        logger,
	}
	n.fetcher, err = newReplicationFetcher(net, store, logger)
	if err != nil {
		store.Close()
		wallet.Close()
		return nil, err
	}
	if b.cfg.MetricsPort != 0 {
		n.metrics = newNodeMetrics()
		n.metrics.serve(b.cfg.MetricsPort)
	}

	logger.Info("Starting node",
		"peer", net.SelfID(),
		"rewardAddress", n.rewardAddress,
		"local", b.cfg.Local,
	)
	n.Run(ctx, events)

	// Only nodes genuinely interested in royalty payments need these; a
	// storage node is, since royalties fund it.
	if err := n.subscribeRoyaltyTopics(); err != nil {
		store.Close()
		wallet.Close()
		return nil, err
	}

	return &RunningNode{node: n, net: net, wallet: wallet, store: store}, nil
}
