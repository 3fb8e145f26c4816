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

package rewards

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// Transfer is a redemption notice encrypted against the recipient's public
// key. The ciphertext is opaque to relaying nodes; only the holder of the
// matching secret key can redeem it.
type Transfer struct {
	Ciphertext []byte
}

// EncodeTransferNotif builds the wire form of a royalty transfer
// notification: the serialised recipient key followed by the rlp-encoded
// transfers encrypted against it.
func EncodeTransferNotif(key *MainPubkey, transfers []Transfer) ([]byte, error) {
	payload, err := rlp.EncodeToBytes(transfers)
	if err != nil {
		return nil, err
	}
	raw := key.Bytes()
	return append(raw[:], payload...), nil
}

// DecodeTransferNotif parses a royalty transfer notification. The first
// PKSize bytes must deserialise into a valid public key; the remainder into
// the transfer sequence. Either failure leaves the message to the generic
// gossip path.
func DecodeTransferNotif(msg []byte) (*MainPubkey, []Transfer, error) {
	if len(msg) < PKSize {
		return nil, nil, fmt.Errorf("notification of %d bytes is shorter than a public key", len(msg))
	}
	var raw PubkeyBytes
	copy(raw[:], msg[:PKSize])
	key, err := PubkeyFromBytes(raw)
	if err != nil {
		return nil, nil, err
	}
	var transfers []Transfer
	if err := rlp.DecodeBytes(msg[PKSize:], &transfers); err != nil {
		return nil, nil, err
	}
	return key, transfers, nil
}
