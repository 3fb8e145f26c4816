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

// Package p2p provides the libp2p-backed overlay driver: request/response
// streams, gossipsub topics and a prefix-bucketed view of the connected
// peer set.
package p2p

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	lpnet "github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	lpproto "github.com/libp2p/go-libp2p/core/protocol"
	"github.com/multiformats/go-multiaddr"

	"github.com/kadvault/go-kadvault/common"
	"github.com/kadvault/go-kadvault/network"
	"github.com/kadvault/go-kadvault/protocol"
)

// ProtocolID is the stream protocol of the request/response exchange.
const ProtocolID = lpproto.ID("/kadvault/req/1.0.0")

const (
	eventBuffer     = 256
	maxMessageBytes = 4 * 1024 * 1024
	streamDeadline  = 30 * time.Second
	closestPeersK   = 20
)

// Config configures the driver.
type Config struct {
	// ListenAddrs are the multiaddresses to listen on.
	ListenAddrs []string
}

// Driver implements network.Driver on top of a libp2p host. Closest-peer
// queries are answered from the locally connected peer set; query results
// are delivered through OnQueryResult.
type Driver struct {
	host host.Host
	ps   *pubsub.PubSub

	self   peer.ID
	selfId common.Id

	events chan network.Event

	// OnQueryResult receives completed closest-peer query results. Set it
	// before issuing queries; typically wired to Network.QueryCompleted.
	OnQueryResult func(id network.QueryID, peers []peer.ID)

	mu      sync.Mutex
	buckets map[int]map[peer.ID]struct{}
	peerIds map[peer.ID]common.Id
	topics  map[string]*pubsub.Topic
	nextQ   network.QueryID

	ctx    context.Context
	cancel context.CancelFunc
	logger log.Logger
}

// New starts a libp2p host and wraps it into a Driver.
func New(cfg Config) (*Driver, error) {
	h, err := libp2p.New(libp2p.ListenAddrStrings(cfg.ListenAddrs...))
	if err != nil {
		return nil, fmt.Errorf("starting libp2p host: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		cancel()
		h.Close()
		return nil, fmt.Errorf("starting gossipsub: %w", err)
	}

	d := &Driver{
		host:    h,
		ps:      ps,
		self:    h.ID(),
		selfId:  common.ContentId([]byte(h.ID())),
		events:  make(chan network.Event, eventBuffer),
		buckets: make(map[int]map[peer.ID]struct{}),
		peerIds: make(map[peer.ID]common.Id),
		topics:  make(map[string]*pubsub.Topic),
		ctx:     ctx,
		cancel:  cancel,
		logger:  log.New("peer", h.ID()),
	}
	h.SetStreamHandler(ProtocolID, d.handleStream)
	h.Network().Notify(&lpnet.NotifyBundle{
		ConnectedF:    func(_ lpnet.Network, c lpnet.Conn) { d.peerConnected(c.RemotePeer()) },
		DisconnectedF: func(_ lpnet.Network, c lpnet.Conn) { d.peerDisconnected(c.RemotePeer()) },
	})

	for _, addr := range h.Addrs() {
		d.deliver(network.NewListenAddrEvent{Addr: addr})
	}
	return d, nil
}

// Events is the channel the node loop consumes. It closes when the driver
// shuts down.
func (d *Driver) Events() <-chan network.Event { return d.events }

// Close tears the host down and closes the event channel.
func (d *Driver) Close() error {
	d.cancel()
	err := d.host.Close()
	close(d.events)
	return err
}

func (d *Driver) deliver(ev network.Event) {
	select {
	case d.events <- ev:
	case <-d.ctx.Done():
	}
}

// SelfID implements network.Driver.
func (d *Driver) SelfID() peer.ID { return d.self }

func (d *Driver) peerConnected(p peer.ID) {
	id := common.ContentId([]byte(p))
	bucket := common.CommonPrefixLen(d.selfId, id)

	d.mu.Lock()
	if _, ok := d.peerIds[p]; ok {
		d.mu.Unlock()
		return
	}
	d.peerIds[p] = id
	if d.buckets[bucket] == nil {
		d.buckets[bucket] = make(map[peer.ID]struct{})
	}
	d.buckets[bucket][p] = struct{}{}
	d.mu.Unlock()

	d.deliver(network.PeerAddedEvent{Peer: p})
}

func (d *Driver) peerDisconnected(p peer.ID) {
	d.mu.Lock()
	id, ok := d.peerIds[p]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.peerIds, p)
	bucket := common.CommonPrefixLen(d.selfId, id)
	delete(d.buckets[bucket], p)
	if len(d.buckets[bucket]) == 0 {
		delete(d.buckets, bucket)
	}
	d.mu.Unlock()

	d.deliver(network.PeerRemovedEvent{Peer: p})
}

// NonEmptyBucketCount implements network.Driver.
func (d *Driver) NonEmptyBucketCount() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint64(len(d.buckets))
}

// GetLocalClosestPeers implements network.Driver: the connected peers
// nearest to target, nearest first.
func (d *Driver) GetLocalClosestPeers(target common.Id) ([]peer.ID, error) {
	d.mu.Lock()
	peers := make([]peer.ID, 0, len(d.peerIds))
	ids := make(map[peer.ID]common.Id, len(d.peerIds))
	for p, id := range d.peerIds {
		peers = append(peers, p)
		ids[p] = id
	}
	d.mu.Unlock()

	sort.Slice(peers, func(i, j int) bool {
		return target.Cmp(ids[peers[i]], ids[peers[j]]) < 0
	})
	if len(peers) > closestPeersK {
		peers = peers[:closestPeersK]
	}
	return peers, nil
}

// GetClosestPeers implements network.Driver. Without a full recursive
// lookup, the result is the local closest set, delivered asynchronously
// like a remote query's would be.
func (d *Driver) GetClosestPeers(target []byte) (network.QueryID, error) {
	d.mu.Lock()
	d.nextQ++
	id := d.nextQ
	d.mu.Unlock()

	go func() {
		closest, _ := d.GetLocalClosestPeers(common.BytesToId(target))
		if cb := d.OnQueryResult; cb != nil {
			cb(id, closest)
		}
	}()
	return id, nil
}

// Dial implements network.Driver.
func (d *Driver) Dial(addr multiaddr.Multiaddr) error {
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(d.ctx, streamDeadline)
	defer cancel()
	return d.host.Connect(ctx, *info)
}

// streamResponder sends the single response of an inbound request back on
// its stream.
type streamResponder struct {
	stream lpnet.Stream
}

func (r *streamResponder) Respond(resp protocol.Response) error {
	defer r.stream.Close()
	data, err := protocol.EncodeResponse(resp)
	if err != nil {
		return err
	}
	if _, err := r.stream.Write(data); err != nil {
		return err
	}
	return r.stream.CloseWrite()
}

func (d *Driver) handleStream(s lpnet.Stream) {
	_ = s.SetDeadline(time.Now().Add(streamDeadline))
	data, err := io.ReadAll(io.LimitReader(s, maxMessageBytes))
	if err != nil {
		d.logger.Debug("Failed to read request stream", "from", s.Conn().RemotePeer(), "err", err)
		s.Reset()
		return
	}
	req, err := protocol.DecodeRequest(data)
	if err != nil {
		d.logger.Debug("Undecodable request", "from", s.Conn().RemotePeer(), "err", err)
		s.Reset()
		return
	}
	d.deliver(network.RequestReceivedEvent{Req: req, Channel: &streamResponder{stream: s}})
}

// SendRequest implements network.Driver: fire the request and surface the
// response later as a ResponseReceivedEvent.
func (d *Driver) SendRequest(p peer.ID, req protocol.Request) error {
	data, err := protocol.EncodeRequest(req)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(d.ctx, streamDeadline)
	s, err := d.host.NewStream(ctx, p, ProtocolID)
	if err != nil {
		cancel()
		return err
	}
	_ = s.SetDeadline(time.Now().Add(streamDeadline))
	if _, err := s.Write(data); err != nil {
		cancel()
		s.Reset()
		return err
	}
	if err := s.CloseWrite(); err != nil {
		cancel()
		s.Reset()
		return err
	}

	go func() {
		defer cancel()
		defer s.Close()
		respData, err := io.ReadAll(io.LimitReader(s, maxMessageBytes))
		if err != nil {
			d.logger.Debug("Failed to read response stream", "to", p, "err", err)
			return
		}
		resp, err := protocol.DecodeResponse(respData)
		if err != nil {
			d.logger.Debug("Undecodable response", "from", p, "err", err)
			return
		}
		d.deliver(network.ResponseReceivedEvent{Res: resp})
	}()
	return nil
}

// SendResponse implements network.Driver.
func (d *Driver) SendResponse(resp protocol.Response, channel network.MsgResponder) error {
	return channel.Respond(resp)
}

// SubscribeToTopic implements network.Driver. Received messages surface as
// GossipsubMsgReceivedEvents.
func (d *Driver) SubscribeToTopic(name string) error {
	d.mu.Lock()
	if _, ok := d.topics[name]; ok {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	topic, err := d.ps.Join(name)
	if err != nil {
		return err
	}
	sub, err := topic.Subscribe()
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.topics[name] = topic
	d.mu.Unlock()

	go func() {
		for {
			msg, err := sub.Next(d.ctx)
			if err != nil {
				return
			}
			if msg.ReceivedFrom == d.self {
				continue
			}
			d.deliver(network.GossipsubMsgReceivedEvent{Topic: name, Msg: msg.GetData()})
		}
	}()
	return nil
}

// Publish implements network.Driver.
func (d *Driver) Publish(name string, data []byte) error {
	d.mu.Lock()
	topic, ok := d.topics[name]
	d.mu.Unlock()
	if !ok {
		t, err := d.ps.Join(name)
		if err != nil {
			return err
		}
		d.mu.Lock()
		d.topics[name] = t
		d.mu.Unlock()
		topic = t
	}
	if err := topic.Publish(d.ctx, data); err != nil {
		return err
	}
	d.deliver(network.GossipsubMsgPublishedEvent{Topic: name, Msg: data})
	return nil
}
