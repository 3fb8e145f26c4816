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

// Package common contains the xor address space primitives used throughout
// the node: the fixed-size network identifier and bit-level distance helpers.
package common

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math/big"
	"math/rand"

	"golang.org/x/crypto/sha3"
)

// IdLength is the byte length of a network identifier.
const IdLength = 32

// IdBits is the identifier size in bits. Common prefix lengths and bucket
// indices range over [0, IdBits].
const IdBits = IdLength * 8

// Id is a point in the 256-bit xor address space. Record keys, chunk names
// and hashed peer ids all live in this space.
type Id [IdLength]byte

// BytesToId sets b to an Id, left-padding with zeros if b is short and
// cropping from the left if it is too long.
func BytesToId(b []byte) Id {
	var id Id
	if len(b) > IdLength {
		b = b[len(b)-IdLength:]
	}
	copy(id[IdLength-len(b):], b)
	return id
}

// ContentId hashes arbitrary content into the xor space with sha3-256.
func ContentId(content []byte) Id {
	var id Id
	h := sha3.New256()
	h.Write(content)
	h.Sum(id[:0])
	return id
}

// HexToId parses a hex string (with or without 0x prefix) into an Id.
func HexToId(s string) (Id, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return Id{}, err
	}
	if len(b) != IdLength {
		return Id{}, fmt.Errorf("invalid id length %d", len(b))
	}
	return BytesToId(b), nil
}

// RandomId returns a uniformly random Id drawn from r.
func RandomId(r *rand.Rand) Id {
	var id Id
	r.Read(id[:])
	return id
}

// Bytes returns a copy of the identifier bytes.
func (id Id) Bytes() []byte { return append([]byte(nil), id[:]...) }

// Hex encodes the identifier as a 0x-prefixed hex string.
func (id Id) Hex() string { return "0x" + hex.EncodeToString(id[:]) }

func (id Id) String() string { return id.Hex() }

// TerminalString implements log.TerminalStringer, formatting the id for
// console output during logging.
func (id Id) TerminalString() string {
	return fmt.Sprintf("%x..%x", id[:3], id[29:])
}

// IsZero reports whether the identifier is all zeros.
func (id Id) IsZero() bool { return id == Id{} }

// Xor returns the bit-wise xor of two identifiers.
func (id Id) Xor(other Id) Id {
	var out Id
	for i := 0; i < IdLength; i++ {
		out[i] = id[i] ^ other[i]
	}
	return out
}

// Distance interprets the xor of the two identifiers as a 256-bit integer.
// Smaller means closer.
func (id Id) Distance(other Id) *big.Int {
	d := id.Xor(other)
	return new(big.Int).SetBytes(d[:])
}

// Cmp compares the xor distances of a and b from id. It returns -1 if a is
// closer, 1 if b is closer and 0 if they are equidistant.
func (id Id) Cmp(a, b Id) int {
	for i := 0; i < IdLength; i++ {
		da, db := id[i]^a[i], id[i]^b[i]
		if da != db {
			if da < db {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Equal reports byte equality.
func (id Id) Equal(other Id) bool { return bytes.Equal(id[:], other[:]) }
