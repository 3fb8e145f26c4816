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

// Package rewards implements the payment side of the node: BLS reward keys,
// token amounts, royalty transfer notifications and the on-disk reward
// wallet.
package rewards

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	blsu "github.com/protolambda/bls12-381-util"
)

// PKSize is the byte length of a serialised BLS public key.
const PKSize = 48

// SKSize is the byte length of a serialised BLS secret key.
const SKSize = 32

// PubkeyBytes is the wire form of a public key.
type PubkeyBytes [PKSize]byte

// MainPubkey is a validated BLS public key used as a payment address.
type MainPubkey struct {
	raw PubkeyBytes
	pk  blsu.Pubkey
}

// PubkeyFromBytes deserialises and subgroup-checks a public key.
func PubkeyFromBytes(b PubkeyBytes) (*MainPubkey, error) {
	mp := &MainPubkey{raw: b}
	buf := [PKSize]byte(b)
	if err := mp.pk.Deserialize(&buf); err != nil {
		return nil, fmt.Errorf("invalid bls public key: %w", err)
	}
	return mp, nil
}

// PubkeyFromHex parses a hex-encoded public key.
func PubkeyFromHex(s string) (*MainPubkey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != PKSize {
		return nil, fmt.Errorf("invalid public key length %d", len(b))
	}
	var raw PubkeyBytes
	copy(raw[:], b)
	return PubkeyFromBytes(raw)
}

// MustPubkeyFromHex parses a hex-encoded public key, panicking on failure.
// Reserved for the hard-coded process-wide network keys.
func MustPubkeyFromHex(s string) *MainPubkey {
	pk, err := PubkeyFromHex(s)
	if err != nil {
		panic(fmt.Sprintf("rewards: invalid hard-coded public key: %v", err))
	}
	return pk
}

// Bytes returns the serialised key.
func (p *MainPubkey) Bytes() PubkeyBytes { return p.raw }

// Hex returns the hex encoding of the serialised key.
func (p *MainPubkey) Hex() string { return hex.EncodeToString(p.raw[:]) }

func (p *MainPubkey) String() string { return p.Hex()[:8] + ".." }

// Equal reports whether two keys serialise identically.
func (p *MainPubkey) Equal(other *MainPubkey) bool {
	return other != nil && p.raw == other.raw
}

// MainSecretKey is the node's reward signing key. Only its public half ever
// leaves the process.
type MainSecretKey struct {
	raw [SKSize]byte
	sk  blsu.SecretKey
}

// SecretKeyFromBytes deserialises a secret key scalar.
func SecretKeyFromBytes(b [SKSize]byte) (*MainSecretKey, error) {
	ms := &MainSecretKey{raw: b}
	buf := b
	if err := ms.sk.Deserialize(&buf); err != nil {
		return nil, fmt.Errorf("invalid bls secret key: %w", err)
	}
	return ms, nil
}

// GenerateSecretKey draws a fresh random secret key from crypto/rand.
func GenerateSecretKey() (*MainSecretKey, error) {
	// Rejection-sample until the scalar is within the field order.
	for i := 0; i < 128; i++ {
		var b [SKSize]byte
		if _, err := rand.Read(b[:]); err != nil {
			return nil, err
		}
		// Clearing the top two bits keeps the draw below the field order.
		b[0] &= 0x3f
		sk, err := SecretKeyFromBytes(b)
		if err != nil {
			continue
		}
		if sk.raw == [SKSize]byte{} {
			continue
		}
		return sk, nil
	}
	return nil, fmt.Errorf("could not sample a valid secret key")
}

// Bytes returns the serialised scalar.
func (s *MainSecretKey) Bytes() [SKSize]byte { return s.raw }

// MainPubkey derives the public half of the key.
func (s *MainSecretKey) MainPubkey() (*MainPubkey, error) {
	pk, err := blsu.SkToPk(&s.sk)
	if err != nil {
		return nil, err
	}
	raw := pk.Serialize()
	return PubkeyFromBytes(PubkeyBytes(raw))
}

// The following public keys are process-wide constants of the network. They
// shall be updated to match their correspondent secret keys before a formal
// release.
const (
	// foundationPKHex is the foundation wallet public key, which receives the
	// initial disbursement from the genesis wallet.
	foundationPKHex = "8f73b97377f30bed96df1c92daf9f21b4a82c862615439fab8095e68860a5d0dff9f97dba5aef503a26c065e5cb3c7ca"
	// networkRoyaltiesPKHex is the public key network royalties payments are
	// expected to be made to.
	networkRoyaltiesPKHex = "b4243ec9ceaec374ef992684cd911b209758c5de53d1e406b395bc37ebc8ce50e68755ea6d32da480ae927e1af4ddadb"
)

var (
	// FoundationPK is the hard-coded foundation wallet address.
	FoundationPK = MustPubkeyFromHex(foundationPKHex)
	// NetworkRoyaltiesPK is the hard-coded network royalties address.
	NetworkRoyaltiesPK = MustPubkeyFromHex(networkRoyaltiesPKHex)
)
