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

// Package params holds the protocol constants of the kadvault network.
package params

import "time"

const (
	// CloseGroupSize is the number of peers forming the close group of an
	// address. Replication targets the close group, and a node is considered
	// connected to the network once this many peers entered its routing table.
	CloseGroupSize = 5

	// BootstrapInterval is the base interval between network discovery waves.
	// The effective interval scales linearly with the number of non-empty
	// routing table buckets, so discovery backs off as the table fills.
	BootstrapInterval = 30 * time.Second

	// PeriodicReplicationInterval is how often the node force-replicates its
	// keys towards a random close group peer.
	PeriodicReplicationInterval = 10 * time.Second

	// ReadinessPollInterval is the sleep between readiness checks while an
	// event waits for the routing table to hold CloseGroupSize peers.
	ReadinessPollInterval = 10 * time.Millisecond

	// MinInactivitySecs and MaxInactivitySecs bound the per-node random
	// inactivity watchdog. The randomisation keeps a fleet of nodes from
	// logging inactivity in phase.
	MinInactivitySecs = 20
	MaxInactivitySecs = 40
)

const (
	// RoyaltyTransferNotifTopic is the gossip topic prefix where royalty
	// payment transfer notifications are published. A notification payload is
	// the serialised public key followed by the serialised transfers
	// encrypted against that key.
	RoyaltyTransferNotifTopic = "ROYALTY_TRANSFER"

	// RoyaltyTopicGroups is the number of sub-topics the notification traffic
	// is sharded into. A peer maps onto the group whose index is the common
	// prefix length of the hashed topic prefix and its hashed peer id.
	RoyaltyTopicGroups = 256
)

const (
	// MaxDiscoveryCandidates caps the number of closest-peer queries emitted
	// per discovery wave, one per targeted bucket.
	MaxDiscoveryCandidates = 16

	// MaxCandidatesPerBucket caps the per-bucket candidate pool kept by the
	// discovery candidate generator.
	MaxCandidatesPerBucket = 8
)
