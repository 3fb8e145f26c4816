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

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/kadvault/go-kadvault/common"
	"github.com/kadvault/go-kadvault/protocol"
)

// NatStatus is the reachability verdict of the NAT probing machinery.
type NatStatus int

const (
	NatStatusUnknown NatStatus = iota
	NatStatusPublic
	NatStatusPrivate
)

func (s NatStatus) String() string {
	switch s {
	case NatStatusPublic:
		return "public"
	case NatStatusPrivate:
		return "private"
	default:
		return "unknown"
	}
}

// Event is an overlay event delivered by the driver to the node loop.
type Event interface {
	netEvent()
	String() string
}

// PeerAddedEvent fires when a peer enters the routing table.
type PeerAddedEvent struct{ Peer peer.ID }

// PeerRemovedEvent fires when a peer leaves the routing table.
type PeerRemovedEvent struct{ Peer peer.ID }

// NewListenAddrEvent fires when a listen address becomes active.
type NewListenAddrEvent struct{ Addr multiaddr.Multiaddr }

// NatStatusChangedEvent fires when NAT probing changes its verdict.
type NatStatusChangedEvent struct{ Status NatStatus }

// RequestReceivedEvent delivers an inbound request together with the channel
// its single response must be sent on.
type RequestReceivedEvent struct {
	Req     protocol.Request
	Channel MsgResponder
}

// ResponseReceivedEvent delivers a response that was not awaited at the call
// site.
type ResponseReceivedEvent struct{ Res protocol.Response }

// UnverifiedRecordEvent delivers a record received from the overlay that has
// not yet passed local validation.
type UnverifiedRecordEvent struct{ Record *protocol.Record }

// FailedToWriteEvent reports a record key whose local write failed and should
// be dropped.
type FailedToWriteEvent struct{ Key common.Id }

// ReplicationKey pairs a record key with the peer currently holding it.
type ReplicationKey struct {
	Holder peer.ID
	Key    common.Id
}

// KeysForReplicationEvent lists keys that should be fetched from their
// holders.
type KeysForReplicationEvent struct{ Keys []ReplicationKey }

// GossipsubMsgReceivedEvent delivers a gossip message received on a
// subscribed topic.
type GossipsubMsgReceivedEvent struct {
	Topic string
	Msg   []byte
}

// GossipsubMsgPublishedEvent mirrors a gossip message published by this node.
type GossipsubMsgPublishedEvent struct {
	Topic string
	Msg   []byte
}

func (PeerAddedEvent) netEvent()             {}
func (PeerRemovedEvent) netEvent()           {}
func (NewListenAddrEvent) netEvent()         {}
func (NatStatusChangedEvent) netEvent()      {}
func (RequestReceivedEvent) netEvent()       {}
func (ResponseReceivedEvent) netEvent()      {}
func (UnverifiedRecordEvent) netEvent()      {}
func (FailedToWriteEvent) netEvent()         {}
func (KeysForReplicationEvent) netEvent()    {}
func (GossipsubMsgReceivedEvent) netEvent()  {}
func (GossipsubMsgPublishedEvent) netEvent() {}

func (e PeerAddedEvent) String() string   { return fmt.Sprintf("PeerAdded(%s)", e.Peer) }
func (e PeerRemovedEvent) String() string { return fmt.Sprintf("PeerRemoved(%s)", e.Peer) }
func (e NewListenAddrEvent) String() string {
	return fmt.Sprintf("NewListenAddr(%s)", e.Addr)
}
func (e NatStatusChangedEvent) String() string {
	return fmt.Sprintf("NatStatusChanged(%s)", e.Status)
}
func (e RequestReceivedEvent) String() string {
	return fmt.Sprintf("RequestReceived(%s)", e.Req)
}
func (e ResponseReceivedEvent) String() string {
	return fmt.Sprintf("ResponseReceived(%s)", e.Res)
}
func (e UnverifiedRecordEvent) String() string {
	return fmt.Sprintf("UnverifiedRecord(%s)", e.Record.Key.TerminalString())
}
func (e FailedToWriteEvent) String() string {
	return fmt.Sprintf("FailedToWrite(%s)", e.Key.TerminalString())
}
func (e KeysForReplicationEvent) String() string {
	return fmt.Sprintf("KeysForReplication(%d)", len(e.Keys))
}
func (e GossipsubMsgReceivedEvent) String() string {
	return fmt.Sprintf("GossipsubMsgReceived(%s)", e.Topic)
}
func (e GossipsubMsgPublishedEvent) String() string {
	return fmt.Sprintf("GossipsubMsgPublished(%s)", e.Topic)
}

// Gated reports whether an event must wait for initial network readiness.
// Gated events need routing table peers to be handled successfully; the rest
// pass through unconditionally, and PeerAdded is what raises the readiness
// counter in the first place.
func Gated(ev Event) bool {
	switch ev.(type) {
	case RequestReceivedEvent, ResponseReceivedEvent, UnverifiedRecordEvent,
		FailedToWriteEvent, KeysForReplicationEvent:
		return true
	default:
		return false
	}
}
