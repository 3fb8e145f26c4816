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
	"strings"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/kadvault/go-kadvault/common"
	"github.com/kadvault/go-kadvault/params"
	"github.com/kadvault/go-kadvault/rewards"
)

// RoyaltyTopicName formats the sharded royalty notification topic for a
// group index.
func RoyaltyTopicName(group int) string {
	return fmt.Sprintf("%s_GROUP_%d", params.RoyaltyTransferNotifTopic, group)
}

// RoyaltyTopicGroup assigns a peer its royalty notification group: the
// common prefix length between the hashed topic prefix and the hashed peer
// id. Sharding by xor proximity spreads notification traffic over the
// sub-topics.
func RoyaltyTopicGroup(p peer.ID) int {
	return common.CommonPrefixLen(
		common.ContentId([]byte(params.RoyaltyTransferNotifTopic)),
		common.ContentId([]byte(p)),
	)
}

// handleGossipMsg classifies a gossip message. Messages on royalty topics
// are decoded into transfer notifications; everything else reaches
// subscribers as a generic gossip event, including royalty-topic messages
// that fail to decode. Without subscribers the message is dropped silently.
func (n *Node) handleGossipMsg(topic string, msg []byte) {
	n.logger.Trace("Received a gossip msg", "topic", topic, "size", len(msg))
	n.metrics.gossipReceived()

	if n.events.ReceiverCount() == 0 {
		return
	}
	if strings.Contains(topic, params.RoyaltyTransferNotifTopic) {
		key, transfers, err := rewards.DecodeTransferNotif(msg)
		if err == nil {
			n.events.Broadcast(TransferNotifEvent{Key: key, Transfers: transfers})
			return
		}
		n.logger.Warn("Gossip msg on transfer notif topic couldn't be decoded", "topic", topic, "err", err)
	}
	n.events.Broadcast(GossipsubMsgEvent{Topic: topic, Msg: msg})
}

// subscribeRoyaltyTopics joins every royalty notification sub-topic. Nodes
// interested in royalty payments listen on all shards; publishers pick the
// single shard of the payee.
func (n *Node) subscribeRoyaltyTopics() error {
	for group := 0; group < params.RoyaltyTopicGroups; group++ {
		topic := RoyaltyTopicName(group)
		if err := n.net.SubscribeToTopic(topic); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
	}
	n.logger.Info("Subscribed to royalty transfer notification topics", "topics", params.RoyaltyTopicGroups)
	return nil
}
