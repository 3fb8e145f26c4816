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
	"encoding/binary"
	"math/rand"

	"golang.org/x/crypto/sha3"
)

// RngFromBytes derives a deterministic rng from arbitrary seed bytes by
// hashing them. Intended for tests that need reproducible keys.
func RngFromBytes(seed []byte) *rand.Rand {
	h := sha3.Sum256(seed)
	return rand.New(rand.NewSource(int64(binary.BigEndian.Uint64(h[:8]))))
}
