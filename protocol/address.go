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

// Package protocol defines the network addresses, records and wire messages
// exchanged between kadvault nodes.
package protocol

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/kadvault/go-kadvault/common"
)

// AddressKind tags the variant held by a NetworkAddress.
type AddressKind uint8

const (
	PeerAddress AddressKind = iota + 1
	RecordAddress
	ChunkAddress
)

// NetworkAddress names a point in the xor space together with what lives
// there: a peer, a record or a chunk. Requests and replication lists carry
// addresses rather than raw ids so the receiver knows how to resolve them.
type NetworkAddress struct {
	Kind AddressKind
	Peer string    // peer id bytes, set when Kind == PeerAddress
	Key  common.Id // set for record and chunk addresses
}

// PeerAddr wraps a peer id into an address.
func PeerAddr(p peer.ID) NetworkAddress {
	return NetworkAddress{Kind: PeerAddress, Peer: string(p)}
}

// RecordAddr wraps a record key into an address.
func RecordAddr(key common.Id) NetworkAddress {
	return NetworkAddress{Kind: RecordAddress, Key: key}
}

// ChunkAddr wraps a chunk name into an address.
func ChunkAddr(key common.Id) NetworkAddress {
	return NetworkAddress{Kind: ChunkAddress, Key: key}
}

// AsId projects the address into the xor space. Peer addresses are hashed
// from their id bytes; record and chunk addresses are already points.
func (a NetworkAddress) AsId() common.Id {
	if a.Kind == PeerAddress {
		return common.ContentId([]byte(a.Peer))
	}
	return a.Key
}

// AsRecordKey returns the record key named by the address, if any.
func (a NetworkAddress) AsRecordKey() (common.Id, bool) {
	switch a.Kind {
	case RecordAddress, ChunkAddress:
		return a.Key, true
	default:
		return common.Id{}, false
	}
}

// AsPeerID returns the peer id named by the address, if any.
func (a NetworkAddress) AsPeerID() (peer.ID, bool) {
	if a.Kind != PeerAddress || a.Peer == "" {
		return "", false
	}
	return peer.ID(a.Peer), true
}

func (a NetworkAddress) String() string {
	switch a.Kind {
	case PeerAddress:
		return fmt.Sprintf("peer(%s)", peer.ID(a.Peer))
	case RecordAddress:
		return fmt.Sprintf("record(%s)", a.Key.TerminalString())
	case ChunkAddress:
		return fmt.Sprintf("chunk(%s)", a.Key.TerminalString())
	default:
		return "addr(unknown)"
	}
}

// Record is an immutable key/value pair held by the close group of its key.
type Record struct {
	Key       common.Id
	Value     []byte
	Publisher string `rlp:"optional"` // peer id bytes of the original publisher, if known
}

// PublisherID returns the publisher peer id, if the record carries one.
func (r *Record) PublisherID() (peer.ID, bool) {
	if r.Publisher == "" {
		return "", false
	}
	return peer.ID(r.Publisher), true
}
