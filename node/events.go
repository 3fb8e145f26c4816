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
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/kadvault/go-kadvault/rewards"
)

// NodeEvent is an event broadcast by the node to its local subscribers.
type NodeEvent interface {
	nodeEvent()
	String() string
}

// ConnectedToNetworkEvent fires once, when the routing table first holds a
// full close group of peers.
type ConnectedToNetworkEvent struct{}

// BehindNatEvent fires when NAT probing concludes the node is unreachable.
type BehindNatEvent struct{}

// ChannelClosedEvent fires when the overlay event channel closes and the
// node loop exits.
type ChannelClosedEvent struct{}

// GossipsubMsgEvent relays a gossip message to local subscribers.
type GossipsubMsgEvent struct {
	Topic string
	Msg   []byte
}

// TransferNotifEvent announces decoded royalty payment transfers addressed
// to Key.
type TransferNotifEvent struct {
	Key       *rewards.MainPubkey
	Transfers []rewards.Transfer
}

func (ConnectedToNetworkEvent) nodeEvent() {}
func (BehindNatEvent) nodeEvent()          {}
func (ChannelClosedEvent) nodeEvent()      {}
func (GossipsubMsgEvent) nodeEvent()       {}
func (TransferNotifEvent) nodeEvent()      {}

func (ConnectedToNetworkEvent) String() string { return "ConnectedToNetwork" }
func (BehindNatEvent) String() string          { return "BehindNat" }
func (ChannelClosedEvent) String() string      { return "ChannelClosed" }
func (e GossipsubMsgEvent) String() string {
	return fmt.Sprintf("GossipsubMsg{topic: %s, %d bytes}", e.Topic, len(e.Msg))
}
func (e TransferNotifEvent) String() string {
	return fmt.Sprintf("TransferNotif{key: %s, transfers: %d}", e.Key, len(e.Transfers))
}

// subscriptionBuffer is the per-subscriber queue depth. A subscriber that
// stops draining loses events rather than stalling handler tasks.
const subscriptionBuffer = 64

// NodeEventsChannel fans node events out to its subscribers. Delivery is
// non-blocking: a full subscriber queue drops the event for that subscriber.
type NodeEventsChannel struct {
	mu   sync.RWMutex
	subs map[*NodeEventSubscription]struct{}
}

// NewNodeEventsChannel returns an empty broadcast channel.
func NewNodeEventsChannel() *NodeEventsChannel {
	return &NodeEventsChannel{subs: make(map[*NodeEventSubscription]struct{})}
}

// NodeEventSubscription receives broadcast node events until unsubscribed.
type NodeEventSubscription struct {
	ch      chan NodeEvent
	channel *NodeEventsChannel
	once    sync.Once
}

// Chan returns the receive side of the subscription.
func (s *NodeEventSubscription) Chan() <-chan NodeEvent { return s.ch }

// Unsubscribe detaches the subscription and closes its channel.
func (s *NodeEventSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.channel.mu.Lock()
		delete(s.channel.subs, s)
		s.channel.mu.Unlock()
		close(s.ch)
	})
}

// Subscribe registers a new subscriber.
func (c *NodeEventsChannel) Subscribe() *NodeEventSubscription {
	sub := &NodeEventSubscription{
		ch:      make(chan NodeEvent, subscriptionBuffer),
		channel: c,
	}
	c.mu.Lock()
	c.subs[sub] = struct{}{}
	c.mu.Unlock()
	return sub
}

// ReceiverCount returns the number of live subscribers.
func (c *NodeEventsChannel) ReceiverCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// Broadcast delivers ev to every subscriber that has queue space left.
func (c *NodeEventsChannel) Broadcast(ev NodeEvent) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for sub := range c.subs {
		select {
		case sub.ch <- ev:
		default:
			log.Trace("Node event dropped for slow subscriber", "event", ev)
		}
	}
}
