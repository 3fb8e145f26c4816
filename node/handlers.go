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
	"github.com/kadvault/go-kadvault/network"
	"github.com/kadvault/go-kadvault/protocol"
)

// handleRequest dispatches an inbound request and sends its single response.
func (n *Node) handleRequest(req protocol.Request, channel network.MsgResponder) {
	n.logger.Trace("Handling request", "req", req)

	var resp protocol.Response
	switch req := req.(type) {
	case *protocol.ReplicateCmd:
		resp = n.handleReplicateCmd(req)
	case *protocol.GetStoreCostQuery:
		resp = n.handleGetStoreCost(req)
	case *protocol.GetReplicatedRecordQuery:
		resp = n.handleGetReplicatedRecord(req)
	default:
		n.logger.Error("Request without a handler", "req", req)
		return
	}
	n.sendResponse(resp, channel)
}

// handleReplicateCmd enqueues the announced keys for fetching. The ack is
// sent regardless, so the announcing peer does not read silence as a
// connection failure.
func (n *Node) handleReplicateCmd(cmd *protocol.ReplicateCmd) protocol.Response {
	n.logger.Debug("Received replication list", "holder", cmd.Holder, "keys", len(cmd.Keys))

	if holder, ok := cmd.Holder.AsPeerID(); ok {
		if err := n.fetcher.AddKeysFromHolder(holder, cmd.Keys); err != nil {
			n.logger.Error("Failed to enqueue replication list", "holder", cmd.Holder, "err", err)
		}
	} else {
		n.logger.Error("Replication list holder is not a peer address", "holder", cmd.Holder)
	}
	return &protocol.ReplicateResponse{}
}

// handleGetStoreCost quotes the price of storing a record at the queried
// address. An already-held record quotes as RecordExists. The payment
// address side always carries this node's reward address.
func (n *Node) handleGetStoreCost(q *protocol.GetStoreCostQuery) protocol.Response {
	n.logger.Trace("Got store cost query", "address", q.Address)
	resp := &protocol.GetStoreCostResponse{
		PaymentAddress: n.rewardAddress.Bytes(),
	}

	exists := false
	if key, ok := q.Address.AsRecordKey(); ok {
		held, err := n.store.Has(key)
		if err != nil {
			n.logger.Error("Problem getting record key's existence", "key", key, "err", err)
		} else {
			exists = held
		}
		if exists {
			resp.Err = protocol.RecordExistsErr(key)
			return resp
		}
	}

	cost, err := n.store.StoreCost()
	if err != nil {
		n.logger.Error("Local store cannot quote a cost", "err", err)
		resp.Err = protocol.GetStoreCostFailedErr()
		return resp
	}
	resp.Cost = cost
	return resp
}

// handleGetReplicatedRecord serves a record previously announced in a
// replication list, or a not-found error naming this node as the holder.
func (n *Node) handleGetReplicatedRecord(q *protocol.GetReplicatedRecordQuery) protocol.Response {
	n.logger.Trace("Got replicated record query", "requester", q.Requester, "key", q.Key)

	resp := &protocol.GetReplicatedRecordResponse{
		Holder: n.net.SelfAddress(),
		Key:    q.Key,
	}
	rec, err := n.store.Get(q.Key)
	if err != nil {
		n.logger.Error("Local record lookup failed", "key", q.Key, "err", err)
	}
	if rec == nil {
		resp.Err = protocol.ReplicatedRecordNotFoundErr(q.Key)
		return resp
	}
	resp.Value = rec.Value
	return resp
}

// handleResponse deals with responses that were not awaited at the call
// site.
func (n *Node) handleResponse(res protocol.Response) {
	switch res := res.(type) {
	case *protocol.ReplicateResponse:
		// The ack only exists so the announcing side sees traffic; nothing
		// to do beyond noting a refusal.
		if res.Err != nil {
			n.logger.Debug("Replication list refused", "err", res.Err)
		}
	case *protocol.GetReplicatedRecordResponse:
		n.fetcher.HandleFetchedRecord(res)
	default:
		n.logger.Warn("Response without a handler", "res", res)
	}
}

func (n *Node) sendResponse(resp protocol.Response, channel network.MsgResponder) {
	if err := n.net.SendResponse(resp, channel); err != nil {
		n.logger.Warn("Error while sending response", "resp", resp, "err", err)
	}
}
