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

package protocol

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/kadvault/go-kadvault/common"
	"github.com/kadvault/go-kadvault/rewards"
)

// Message codes of the request/response protocol. Commands are fire-and-ack,
// queries expect a data-carrying answer.
const (
	ReplicateMsg uint64 = 0x01 + iota
	GetStoreCostMsg
	GetReplicatedRecordMsg
)

const (
	ReplicateRespMsg uint64 = 0x11 + iota
	GetStoreCostRespMsg
	GetReplicatedRecordRespMsg
)

// Request is an inbound command or query.
type Request interface {
	Code() uint64
	String() string
}

// Response answers a Request. Every request yields exactly one response.
type Response interface {
	Code() uint64
	String() string
}

// ReplicateCmd announces keys a holder keeps for the receiver to replicate:
// those whose close group includes the receiver, or every local key when the
// announcement is forced. The receiver fetches any keys it is missing.
type ReplicateCmd struct {
	Holder NetworkAddress
	Keys   []common.Id
}

func (*ReplicateCmd) Code() uint64 { return ReplicateMsg }

func (c *ReplicateCmd) String() string {
	return fmt.Sprintf("Replicate{holder: %s, keys: %d}", c.Holder, len(c.Keys))
}

// GetStoreCostQuery asks the receiver for its current price quote to store a
// record at the given address.
type GetStoreCostQuery struct {
	Address NetworkAddress
}

func (*GetStoreCostQuery) Code() uint64 { return GetStoreCostMsg }

func (q *GetStoreCostQuery) String() string {
	return fmt.Sprintf("GetStoreCost{%s}", q.Address)
}

// GetReplicatedRecordQuery asks a holder for a record it previously announced
// in a replication list.
type GetReplicatedRecordQuery struct {
	Requester NetworkAddress
	Key       common.Id
}

func (*GetReplicatedRecordQuery) Code() uint64 { return GetReplicatedRecordMsg }

func (q *GetReplicatedRecordQuery) String() string {
	return fmt.Sprintf("GetReplicatedRecord{requester: %s, key: %s}", q.Requester, q.Key.TerminalString())
}

// ReplicateResponse acks a replication list. It is always sent, even when the
// list could not be processed, so the sender does not mistake silence for a
// dropped connection.
type ReplicateResponse struct {
	Err *WireError `rlp:"nil"`
}

func (*ReplicateResponse) Code() uint64 { return ReplicateRespMsg }

func (r *ReplicateResponse) String() string {
	if r.Err != nil {
		return fmt.Sprintf("ReplicateResponse{err: %v}", r.Err)
	}
	return "ReplicateResponse{ok}"
}

// GetStoreCostResponse carries the store cost quote. PaymentAddress is always
// the responder's reward address, also when the cost side is an error.
type GetStoreCostResponse struct {
	Cost           rewards.NanoTokens
	Err            *WireError `rlp:"nil"`
	PaymentAddress rewards.PubkeyBytes
}

func (*GetStoreCostResponse) Code() uint64 { return GetStoreCostRespMsg }

func (r *GetStoreCostResponse) String() string {
	if r.Err != nil {
		return fmt.Sprintf("GetStoreCostResponse{err: %v}", r.Err)
	}
	return fmt.Sprintf("GetStoreCostResponse{cost: %s}", r.Cost)
}

// GetReplicatedRecordResponse returns the record held for Key, or a not-found
// error naming the responder as the queried holder.
type GetReplicatedRecordResponse struct {
	Holder NetworkAddress
	Key    common.Id
	Value  []byte
	Err    *WireError `rlp:"nil"`
}

func (*GetReplicatedRecordResponse) Code() uint64 { return GetReplicatedRecordRespMsg }

func (r *GetReplicatedRecordResponse) String() string {
	if r.Err != nil {
		return fmt.Sprintf("GetReplicatedRecordResponse{key: %s, err: %v}", r.Key.TerminalString(), r.Err)
	}
	return fmt.Sprintf("GetReplicatedRecordResponse{key: %s, %d bytes}", r.Key.TerminalString(), len(r.Value))
}

// envelope frames a message on the wire: a code followed by the
// rlp-encoded payload.
type envelope struct {
	MsgCode uint64
	Payload rlp.RawValue
}

func encode(code uint64, msg interface{}) ([]byte, error) {
	payload, err := rlp.EncodeToBytes(msg)
	if err != nil {
		return nil, err
	}
	return rlp.EncodeToBytes(&envelope{MsgCode: code, Payload: payload})
}

// EncodeRequest frames a request for the wire.
func EncodeRequest(req Request) ([]byte, error) {
	return encode(req.Code(), req)
}

// EncodeResponse frames a response for the wire.
func EncodeResponse(resp Response) ([]byte, error) {
	return encode(resp.Code(), resp)
}

// DecodeRequest parses a framed request.
func DecodeRequest(data []byte) (Request, error) {
	var env envelope
	if err := rlp.DecodeBytes(data, &env); err != nil {
		return nil, err
	}
	var req Request
	switch env.MsgCode {
	case ReplicateMsg:
		req = new(ReplicateCmd)
	case GetStoreCostMsg:
		req = new(GetStoreCostQuery)
	case GetReplicatedRecordMsg:
		req = new(GetReplicatedRecordQuery)
	default:
		return nil, fmt.Errorf("unknown request code %#x", env.MsgCode)
	}
	if err := rlp.DecodeBytes(env.Payload, req); err != nil {
		return nil, err
	}
	return req, nil
}

// DecodeResponse parses a framed response.
func DecodeResponse(data []byte) (Response, error) {
	var env envelope
	if err := rlp.DecodeBytes(data, &env); err != nil {
		return nil, err
	}
	var resp Response
	switch env.MsgCode {
	case ReplicateRespMsg:
		resp = new(ReplicateResponse)
	case GetStoreCostRespMsg:
		resp = new(GetStoreCostResponse)
	case GetReplicatedRecordRespMsg:
		resp = new(GetReplicatedRecordResponse)
	default:
		return nil, fmt.Errorf("unknown response code %#x", env.MsgCode)
	}
	if err := rlp.DecodeBytes(env.Payload, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
