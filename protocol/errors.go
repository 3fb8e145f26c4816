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

	"github.com/kadvault/go-kadvault/common"
)

// Wire error codes carried inside response payloads. These cross the network,
// so the numbering is part of the protocol.
const (
	ErrCodeRecordExists uint64 = iota + 1
	ErrCodeReplicatedRecordNotFound
	ErrCodeGetStoreCostFailed
)

// WireError is a structured error embedded in a response payload. No Go error
// crosses the wire directly; handlers translate storage and lookup failures
// into one of these.
type WireError struct {
	Code   uint64
	Detail string
}

func (e *WireError) Error() string {
	switch e.Code {
	case ErrCodeRecordExists:
		return fmt.Sprintf("record already exists: %s", e.Detail)
	case ErrCodeReplicatedRecordNotFound:
		return fmt.Sprintf("replicated record not found: %s", e.Detail)
	case ErrCodeGetStoreCostFailed:
		return "failed to get store cost"
	default:
		return fmt.Sprintf("wire error %d: %s", e.Code, e.Detail)
	}
}

// RecordExistsErr builds the error returned by a store cost quote when the
// queried record is already held locally.
func RecordExistsErr(key common.Id) *WireError {
	return &WireError{Code: ErrCodeRecordExists, Detail: key.TerminalString()}
}

// ReplicatedRecordNotFoundErr builds the error returned by a replicated
// record lookup miss.
func ReplicatedRecordNotFoundErr(key common.Id) *WireError {
	return &WireError{Code: ErrCodeReplicatedRecordNotFound, Detail: key.TerminalString()}
}

// GetStoreCostFailedErr reports that the local store could not quote a cost.
func GetStoreCostFailedErr() *WireError {
	return &WireError{Code: ErrCodeGetStoreCostFailed}
}
