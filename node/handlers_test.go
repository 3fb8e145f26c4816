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
	"errors"
	"testing"

	"github.com/kadvault/go-kadvault/common"
	"github.com/kadvault/go-kadvault/protocol"
)

func TestGetStoreCostOnExistingKey(t *testing.T) {
	drv := newFakeDriver()
	n, store := newTestNode(t, drv)

	key := common.ContentId([]byte("already here"))
	store.Put(&protocol.Record{Key: key, Value: []byte("v")})

	responder := &fakeResponder{}
	n.handleRequest(&protocol.GetStoreCostQuery{Address: protocol.RecordAddr(key)}, responder)

	if responder.count() != 1 {
		t.Fatalf("sent %d responses, want 1", responder.count())
	}
	resp, ok := responder.last().(*protocol.GetStoreCostResponse)
	if !ok {
		t.Fatalf("wrong response type %T", responder.last())
	}
	if resp.Err == nil || resp.Err.Code != protocol.ErrCodeRecordExists {
		t.Fatalf("cost err = %v, want RecordExists", resp.Err)
	}
	if resp.PaymentAddress != n.rewardAddress.Bytes() {
		t.Fatal("payment address is not the reward address")
	}
}

func TestGetStoreCostQuotesMissingKey(t *testing.T) {
	drv := newFakeDriver()
	n, _ := newTestNode(t, drv)

	responder := &fakeResponder{}
	n.handleRequest(&protocol.GetStoreCostQuery{
		Address: protocol.RecordAddr(common.ContentId([]byte("fresh"))),
	}, responder)

	resp := responder.last().(*protocol.GetStoreCostResponse)
	if resp.Err != nil {
		t.Fatalf("unexpected cost error %v", resp.Err)
	}
	if resp.Cost == 0 {
		t.Fatal("zero cost quoted")
	}
	if resp.PaymentAddress != n.rewardAddress.Bytes() {
		t.Fatal("payment address is not the reward address")
	}
}

func TestGetStoreCostQuoteFailure(t *testing.T) {
	drv := newFakeDriver()
	n, store := newTestNode(t, drv)
	store.costErr = errors.New("store sick")

	responder := &fakeResponder{}
	n.handleRequest(&protocol.GetStoreCostQuery{
		Address: protocol.RecordAddr(common.ContentId([]byte("fresh"))),
	}, responder)

	resp := responder.last().(*protocol.GetStoreCostResponse)
	if resp.Err == nil || resp.Err.Code != protocol.ErrCodeGetStoreCostFailed {
		t.Fatalf("cost err = %v, want GetStoreCostFailed", resp.Err)
	}
	if resp.PaymentAddress != n.rewardAddress.Bytes() {
		t.Fatal("payment address missing on the failure path")
	}
}

func TestGetReplicatedRecordHit(t *testing.T) {
	drv := newFakeDriver()
	n, store := newTestNode(t, drv)

	key := common.ContentId([]byte("held"))
	store.Put(&protocol.Record{Key: key, Value: []byte("record body")})

	responder := &fakeResponder{}
	n.handleRequest(&protocol.GetReplicatedRecordQuery{
		Requester: protocol.PeerAddr("asker"),
		Key:       key,
	}, responder)

	resp := responder.last().(*protocol.GetReplicatedRecordResponse)
	if resp.Err != nil {
		t.Fatalf("unexpected error %v", resp.Err)
	}
	if string(resp.Value) != "record body" {
		t.Fatalf("value = %q", resp.Value)
	}
	if holder, _ := resp.Holder.AsPeerID(); holder != drv.self {
		t.Fatalf("holder = %s, want self", holder)
	}
}

func TestGetReplicatedRecordMiss(t *testing.T) {
	drv := newFakeDriver()
	n, _ := newTestNode(t, drv)

	key := common.ContentId([]byte("absent"))
	responder := &fakeResponder{}
	n.handleRequest(&protocol.GetReplicatedRecordQuery{
		Requester: protocol.PeerAddr("asker"),
		Key:       key,
	}, responder)

	if responder.count() != 1 {
		t.Fatalf("sent %d responses, want 1", responder.count())
	}
	resp := responder.last().(*protocol.GetReplicatedRecordResponse)
	if resp.Err == nil || resp.Err.Code != protocol.ErrCodeReplicatedRecordNotFound {
		t.Fatalf("err = %v, want ReplicatedRecordNotFound", resp.Err)
	}
	if holder, _ := resp.Holder.AsPeerID(); holder != drv.self {
		t.Fatalf("miss names holder %s, want self", holder)
	}
	if resp.Key != key {
		t.Fatal("miss does not name the queried key")
	}
}

// Replicate commands are always acked, also when the holder address cannot
// be resolved into a peer.
func TestReplicateCmdAlwaysAcked(t *testing.T) {
	drv := newFakeDriver()
	n, _ := newTestNode(t, drv)

	for _, holder := range []protocol.NetworkAddress{
		protocol.PeerAddr("holder-peer"),
		protocol.RecordAddr(common.ContentId([]byte("not a peer"))),
	} {
		responder := &fakeResponder{}
		n.handleRequest(&protocol.ReplicateCmd{
			Holder: holder,
			Keys:   []common.Id{common.ContentId([]byte("k1"))},
		}, responder)

		if responder.count() != 1 {
			t.Fatalf("holder %s: %d responses, want 1", holder, responder.count())
		}
		if _, ok := responder.last().(*protocol.ReplicateResponse); !ok {
			t.Fatalf("holder %s: wrong response type %T", holder, responder.last())
		}
	}
}

func TestResponseTotality(t *testing.T) {
	drv := newFakeDriver()
	n, store := newTestNode(t, drv)

	key := common.ContentId([]byte("seeded"))
	store.Put(&protocol.Record{Key: key, Value: []byte("v")})

	requests := []protocol.Request{
		&protocol.ReplicateCmd{Holder: protocol.PeerAddr("h"), Keys: nil},
		&protocol.GetStoreCostQuery{Address: protocol.RecordAddr(key)},
		&protocol.GetStoreCostQuery{Address: protocol.PeerAddr("p")},
		&protocol.GetReplicatedRecordQuery{Requester: protocol.PeerAddr("r"), Key: key},
		&protocol.GetReplicatedRecordQuery{Requester: protocol.PeerAddr("r"), Key: common.Id{}},
	}
	for _, req := range requests {
		responder := &fakeResponder{}
		n.handleRequest(req, responder)
		if responder.count() != 1 {
			t.Fatalf("request %s produced %d responses", req, responder.count())
		}
	}
}

func TestHandleResponseStoresFetchedRecord(t *testing.T) {
	drv := newFakeDriver()
	n, store := newTestNode(t, drv)

	key := common.ContentId([]byte("fetched"))
	n.handleResponse(&protocol.GetReplicatedRecordResponse{
		Holder: protocol.PeerAddr("holder"),
		Key:    key,
		Value:  []byte("replicated body"),
	})
	rec, _ := store.Get(key)
	if rec == nil || string(rec.Value) != "replicated body" {
		t.Fatalf("fetched record not stored: %v", rec)
	}

	// A not-found response stores nothing.
	missing := common.ContentId([]byte("still missing"))
	n.handleResponse(&protocol.GetReplicatedRecordResponse{
		Holder: protocol.PeerAddr("holder"),
		Key:    missing,
		Err:    protocol.ReplicatedRecordNotFoundErr(missing),
	})
	if rec, _ := store.Get(missing); rec != nil {
		t.Fatal("not-found response stored a record")
	}
}
